package framegraph

import (
	"github.com/golang/geo/r3"

	"github.com/jhidalgocarrio/esam/features"
	"github.com/jhidalgocarrio/esam/pointcloud"
	"github.com/jhidalgocarrio/esam/spatialmath"
)

// SetPose attaches or replaces a frame's pose estimate.
func (g *Graph) SetPose(name string, pose spatialmath.PoseWithCovariance) error {
	f, err := g.frameFor(name)
	if err != nil {
		return err
	}
	f.pose = &pose
	return nil
}

// Pose returns a frame's pose estimate.
func (g *Graph) Pose(name string) (spatialmath.PoseWithCovariance, error) {
	f, err := g.frameFor(name)
	if err != nil {
		return spatialmath.PoseWithCovariance{}, err
	}
	if f.pose == nil {
		return spatialmath.PoseWithCovariance{}, &UnknownFrameError{Frame: name}
	}
	return *f.pose, nil
}

// HasPose reports whether a frame carries a pose estimate.
func (g *Graph) HasPose(name string) bool {
	f, ok := g.frames[name]
	return ok && f.pose != nil
}

// SetLandmark attaches or replaces a frame's landmark position estimate.
func (g *Graph) SetLandmark(name string, position r3.Vector) error {
	f, err := g.frameFor(name)
	if err != nil {
		return err
	}
	f.landmark = &position
	return nil
}

// Landmark returns a frame's landmark position estimate.
func (g *Graph) Landmark(name string) (r3.Vector, error) {
	f, err := g.frameFor(name)
	if err != nil {
		return r3.Vector{}, err
	}
	if f.landmark == nil {
		return r3.Vector{}, &UnknownFrameError{Frame: name}
	}
	return *f.landmark, nil
}

// SetPointCloud attaches or replaces a frame's point cloud.
func (g *Graph) SetPointCloud(name string, cloud *pointcloud.PointCloud) error {
	f, err := g.frameFor(name)
	if err != nil {
		return err
	}
	f.cloud = cloud
	return nil
}

// PointCloud returns a frame's point cloud.
func (g *Graph) PointCloud(name string) (*pointcloud.PointCloud, error) {
	f, err := g.frameFor(name)
	if err != nil {
		return nil, err
	}
	if f.cloud == nil {
		return nil, &UnknownFrameError{Frame: name}
	}
	return f.cloud, nil
}

// HasPointCloud reports whether a frame carries a point cloud.
func (g *Graph) HasPointCloud(name string) bool {
	f, ok := g.frames[name]
	return ok && f.cloud != nil
}

// SetKeypoints attaches a frame's detected keypoints.
func (g *Graph) SetKeypoints(name string, kps []features.Keypoint) error {
	f, err := g.frameFor(name)
	if err != nil {
		return err
	}
	f.keypoints = kps
	return nil
}

// Keypoints returns a frame's keypoints.
func (g *Graph) Keypoints(name string) ([]features.Keypoint, error) {
	f, err := g.frameFor(name)
	if err != nil {
		return nil, err
	}
	return f.keypoints, nil
}

// HasKeypoints reports whether a frame carries keypoints.
func (g *Graph) HasKeypoints(name string) bool {
	f, ok := g.frames[name]
	return ok && len(f.keypoints) > 0
}

// SetDescriptors attaches a frame's feature descriptors, parallel to its
// keypoints.
func (g *Graph) SetDescriptors(name string, descs []features.Descriptor) error {
	f, err := g.frameFor(name)
	if err != nil {
		return err
	}
	f.descriptors = descs
	return nil
}

// Descriptors returns a frame's feature descriptors.
func (g *Graph) Descriptors(name string) ([]features.Descriptor, error) {
	f, err := g.frameFor(name)
	if err != nil {
		return nil, err
	}
	return f.descriptors, nil
}

// HasDescriptors reports whether a frame carries descriptors.
func (g *Graph) HasDescriptors(name string) bool {
	f, ok := g.frames[name]
	return ok && len(f.descriptors) > 0
}

// SetBound attaches a frame's bounding volume.
func (g *Graph) SetBound(name string, bound *spatialmath.AlignedBox) error {
	f, err := g.frameFor(name)
	if err != nil {
		return err
	}
	f.bound = bound
	return nil
}

// Bound returns a frame's bounding volume, or nil if none is set.
func (g *Graph) Bound(name string) (*spatialmath.AlignedBox, error) {
	f, err := g.frameFor(name)
	if err != nil {
		return nil, err
	}
	return f.bound, nil
}

// HasBound reports whether a frame carries a bounding volume.
func (g *Graph) HasBound(name string) bool {
	f, ok := g.frames[name]
	return ok && f.bound != nil
}
