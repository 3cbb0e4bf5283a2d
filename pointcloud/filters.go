package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// voxelKey identifies the grid cell a point falls in at a given leaf size.
type voxelKey struct {
	x, y, z int64
}

func keyFor(pt r3.Vector, leaf float64) voxelKey {
	return voxelKey{
		x: int64(math.Floor(pt.X / leaf)),
		y: int64(math.Floor(pt.Y / leaf)),
		z: int64(math.Floor(pt.Z / leaf)),
	}
}

// VoxelDownsample returns a cloud with at most one point per cubic cell of
// the given leaf size: the centroid of the cell's points, carrying the color
// of the first point seen in the cell. A non-positive leaf returns a copy.
func (cloud *PointCloud) VoxelDownsample(leaf float64) *PointCloud {
	if leaf <= 0 {
		return cloud.Clone()
	}
	type cell struct {
		sum   r3.Vector
		count int
		first int
	}
	cells := make(map[voxelKey]*cell)
	order := make([]voxelKey, 0)
	for i, pt := range cloud.points {
		k := keyFor(pt, leaf)
		c, ok := cells[k]
		if !ok {
			c = &cell{first: i}
			cells[k] = c
			order = append(order, k)
		}
		c.sum = c.sum.Add(pt)
		c.count++
	}
	out := NewWithPrealloc(len(order))
	for _, k := range order {
		c := cells[k]
		centroid := c.sum.Mul(1 / float64(c.count))
		if cloud.HasColor() {
			//nolint:errcheck // out is built colored from the start
			out.AddColored(centroid, cloud.colors[c.first])
		} else {
			//nolint:errcheck
			out.Add(centroid)
		}
	}
	return out
}

// RemoveColorless returns a cloud containing only points with a nonzero
// color. A colorless cloud comes back empty, matching the capture pipeline's
// treatment of uncolored returns as invalid.
func (cloud *PointCloud) RemoveColorless() *PointCloud {
	out := New()
	if !cloud.HasColor() {
		return out
	}
	for i, pt := range cloud.points {
		c := cloud.colors[i]
		if c.R != 0 || c.G != 0 || c.B != 0 || c.A != 0 {
			//nolint:errcheck
			out.AddColored(pt, c)
		}
	}
	return out
}
