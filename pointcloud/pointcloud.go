// Package pointcloud provides an ordered 3D point cloud with optional
// per-point color, plus the transforms and filters the mapping pipeline needs.
package pointcloud

import (
	"image/color"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/jhidalgocarrio/esam/spatialmath"
)

// PointCloud is an ordered collection of 3D points. Colors, when present,
// parallel the points slice one to one.
type PointCloud struct {
	points []r3.Vector
	colors []color.NRGBA
}

// New returns an empty point cloud.
func New() *PointCloud {
	return &PointCloud{}
}

// NewWithPrealloc returns an empty point cloud with capacity for size points.
func NewWithPrealloc(size int) *PointCloud {
	return &PointCloud{points: make([]r3.Vector, 0, size)}
}

// Size returns the number of points in the cloud.
func (cloud *PointCloud) Size() int {
	return len(cloud.points)
}

// HasColor reports whether the cloud carries per-point color.
func (cloud *PointCloud) HasColor() bool {
	return len(cloud.colors) > 0
}

// Add appends a colorless point to the cloud.
func (cloud *PointCloud) Add(pt r3.Vector) error {
	if cloud.HasColor() {
		return errors.New("cannot add colorless point to a colored cloud")
	}
	cloud.points = append(cloud.points, pt)
	return nil
}

// AddColored appends a colored point to the cloud.
func (cloud *PointCloud) AddColored(pt r3.Vector, c color.NRGBA) error {
	if len(cloud.points) > 0 && !cloud.HasColor() {
		return errors.New("cannot add colored point to a colorless cloud")
	}
	cloud.points = append(cloud.points, pt)
	cloud.colors = append(cloud.colors, c)
	return nil
}

// At returns the i-th point.
func (cloud *PointCloud) At(i int) r3.Vector {
	return cloud.points[i]
}

// ColorAt returns the i-th color; the zero color if the cloud is colorless.
func (cloud *PointCloud) ColorAt(i int) color.NRGBA {
	if !cloud.HasColor() {
		return color.NRGBA{}
	}
	return cloud.colors[i]
}

// Iterate calls fn on every point in order, stopping early if fn returns
// false.
func (cloud *PointCloud) Iterate(fn func(pt r3.Vector, c color.NRGBA) bool) {
	for i, pt := range cloud.points {
		if !fn(pt, cloud.ColorAt(i)) {
			return
		}
	}
}

// Clone returns an independent copy of the cloud.
func (cloud *PointCloud) Clone() *PointCloud {
	out := &PointCloud{points: make([]r3.Vector, len(cloud.points))}
	copy(out.points, cloud.points)
	if cloud.HasColor() {
		out.colors = make([]color.NRGBA, len(cloud.colors))
		copy(out.colors, cloud.colors)
	}
	return out
}

// Transform applies a rigid transform to every point in place.
func (cloud *PointCloud) Transform(pose spatialmath.Pose) {
	for i, pt := range cloud.points {
		cloud.points[i] = pose.TransformPoint(pt)
	}
}

// Transformed returns a transformed copy, leaving the cloud untouched.
func (cloud *PointCloud) Transformed(pose spatialmath.Pose) *PointCloud {
	out := cloud.Clone()
	out.Transform(pose)
	return out
}

// Merge appends all of other's points to the cloud. Merging a colored cloud
// into a colorless one (or vice versa) drops the colors.
func (cloud *PointCloud) Merge(other *PointCloud) {
	keepColor := cloud.HasColor() && other.HasColor() ||
		(cloud.Size() == 0 && other.HasColor())
	cloud.points = append(cloud.points, other.points...)
	if keepColor {
		cloud.colors = append(cloud.colors, other.colors...)
	} else {
		cloud.colors = nil
	}
}

// Bounds returns the axis-aligned bounding box of the cloud.
func (cloud *PointCloud) Bounds() *spatialmath.AlignedBox {
	b := spatialmath.NewAlignedBox()
	for _, pt := range cloud.points {
		b.Extend(pt)
	}
	return b
}
