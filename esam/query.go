package esam

import (
	"io"
	"os"

	"go.uber.org/multierr"

	"github.com/jhidalgocarrio/esam/factorgraph"
	"github.com/jhidalgocarrio/esam/pointcloud"
	"github.com/jhidalgocarrio/esam/spatialmath"
)

// Pose returns a pose variable's current estimate with covariance.
func (e *ESAM) Pose(sym factorgraph.Symbol) (spatialmath.PoseWithCovariance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames.Pose(sym.String())
}

// PoseByName is Pose addressed by frame name.
func (e *ESAM) PoseByName(name string) (spatialmath.PoseWithCovariance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames.Pose(name)
}

// LastPoseValueAndID returns the current pose estimate along with its frame
// name.
func (e *ESAM) LastPoseValueAndID() (spatialmath.PoseWithCovariance, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	name := e.poseSymbol(e.poseIdx).String()
	pwc, err := e.frames.Pose(name)
	return pwc, name, err
}

// Trajectory returns every pose estimate with covariance in index order.
func (e *ESAM) Trajectory() ([]spatialmath.PoseWithCovariance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]spatialmath.PoseWithCovariance, 0, e.poseIdx+1)
	for i := uint64(0); i <= e.poseIdx; i++ {
		pwc, err := e.frames.Pose(e.poseSymbol(i).String())
		if err != nil {
			return nil, err
		}
		out = append(out, pwc)
	}
	return out, nil
}

// PoseCorrespondences returns the pose indices of the active search partners
// along with the index of the frame being searched. ok is false before any
// search frontier has been promoted.
func (e *ESAM) PoseCorrespondences() ([]uint64, uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.frameToSearchLandmarks == nil {
		return nil, 0, false
	}
	indices := make([]uint64, 0, len(e.framesToSearch))
	for _, sym := range e.framesToSearch {
		indices = append(indices, sym.Index)
	}
	return indices, e.frameToSearchLandmarks.Index, true
}

// WriteGraphViz writes the spatial graph in DOT format.
func (e *ESAM) WriteGraphViz(w io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames.WriteDOT(w)
}

// PushPointCloud cleans a captured cloud and attaches it to the current pose
// frame, merging with any cloud already there and re-downsampling the union
// at twice the leaf size.
func (e *ESAM) PushPointCloud(cloud *pointcloud.PointCloud) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cleaner := e.conf.Cleaner
	if cleaner == nil {
		conf := e.conf.Clean
		if conf.DownsampleLeaf == 0 {
			conf.DownsampleLeaf = e.conf.DownsampleLeaf
		}
		cleaner = &pointcloud.BasicCleaner{Config: conf}
	}
	cleaned, err := cleaner.Clean(cloud)
	if err != nil {
		return err
	}

	name := e.poseSymbol(e.poseIdx).String()
	if !e.frames.HasPointCloud(name) {
		return e.frames.SetPointCloud(name, cleaned)
	}
	existing, err := e.frames.PointCloud(name)
	if err != nil {
		return err
	}
	merged := existing.Clone()
	merged.Merge(cleaned)
	return e.frames.SetPointCloud(name, merged.VoxelDownsample(2*e.conf.DownsampleLeaf))
}

// PointCloud returns the cloud attached to a frame.
func (e *ESAM) PointCloud(name string) (*pointcloud.PointCloud, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames.PointCloud(name)
}

// CurrentPointCloud returns the cloud of the last finished frame, empty when
// none has been attached yet.
func (e *ESAM) CurrentPointCloud(downsample bool) (*pointcloud.PointCloud, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, cloud, err := e.currentPointCloudLocked(downsample)
	return cloud, err
}

func (e *ESAM) currentPointCloudLocked(downsample bool) (string, *pointcloud.PointCloud, error) {
	if e.poseIdx == 0 {
		return e.poseSymbol(0).String(), pointcloud.New(), nil
	}
	name := e.poseSymbol(e.poseIdx - 1).String()
	if !e.frames.HasPointCloud(name) {
		return name, pointcloud.New(), nil
	}
	cloud, err := e.frames.PointCloud(name)
	if err != nil {
		return name, nil, err
	}
	out := cloud.Clone()
	if downsample {
		out = out.VoxelDownsample(e.conf.DownsampleLeaf)
	}
	return name, out, nil
}

// MergedPointCloud concatenates every per-frame cloud transformed into the
// global frame, optionally voxel-downsampled.
func (e *ESAM) MergedPointCloud(downsample bool) (*pointcloud.PointCloud, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	merged := pointcloud.New()
	for i := uint64(0); i <= e.poseIdx; i++ {
		name := e.poseSymbol(i).String()
		if !e.frames.HasPointCloud(name) {
			continue
		}
		cloud, err := e.frames.PointCloud(name)
		if err != nil {
			return nil, err
		}
		pwc, err := e.frames.Pose(name)
		if err != nil {
			return nil, err
		}
		merged.Merge(cloud.Transformed(pwc.Pose))
	}
	if downsample {
		merged = merged.VoxelDownsample(e.conf.DownsampleLeaf)
	}
	return merged, nil
}

// WriteCurrentPLY writes the last finished frame's cloud as an ASCII PLY
// file named after the frame, returning the file path.
func (e *ESAM) WriteCurrentPLY(prefix string, downsample bool) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	name, cloud, err := e.currentPointCloudLocked(downsample)
	if err != nil {
		return "", err
	}
	filename := prefix + name + ".ply"
	f, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	err = cloud.WritePLY(f)
	return filename, multierr.Combine(err, f.Close())
}
