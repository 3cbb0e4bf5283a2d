package pointcloud

// OutlierMode selects the outlier removal stage of the capture pipeline.
type OutlierMode int

// Supported outlier removal modes.
const (
	OutlierNone OutlierMode = iota
	OutlierRadius
	OutlierStatistical
)

// BilateralFilterConfig parameterizes the edge-preserving smoothing stage.
type BilateralFilterConfig struct {
	SpatialWidth float64
	RangeSigma   float64
}

// OutlierRemovalConfig parameterizes the outlier removal stage. For radius
// mode the parameters are search radius and minimum neighbors; for
// statistical mode they are mean-k and the stddev multiplier.
type OutlierRemovalConfig struct {
	Mode         OutlierMode
	ParameterOne float64
	ParameterTwo float64
}

// CleanConfig enumerates the capture cleaning stages applied to a raw cloud
// before it is attached to a frame.
type CleanConfig struct {
	Bilateral       BilateralFilterConfig
	Outliers        OutlierRemovalConfig
	DownsampleLeaf  float64
	RemoveColorless bool
}

// Cleaner turns a raw captured cloud into one fit to attach to a frame. It
// must be idempotent on an already-clean cloud. Smoothing and outlier removal
// implementations live with the sensor drivers; BasicCleaner covers the
// geometric stages.
type Cleaner interface {
	Clean(cloud *PointCloud) (*PointCloud, error)
}

// BasicCleaner applies the voxel downsample and colorless culling stages of
// the configured pipeline, passing the cloud through the remaining stages
// untouched.
type BasicCleaner struct {
	Config CleanConfig
}

// Clean implements Cleaner.
func (c *BasicCleaner) Clean(cloud *PointCloud) (*PointCloud, error) {
	out := cloud.VoxelDownsample(c.Config.DownsampleLeaf)
	if c.Config.RemoveColorless && out.HasColor() {
		out = out.RemoveColorless()
	}
	return out, nil
}
