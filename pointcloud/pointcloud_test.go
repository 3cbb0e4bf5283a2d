package pointcloud

import (
	"bytes"
	"image/color"
	"math"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/jhidalgocarrio/esam/spatialmath"
)

func TestPointCloudBasic(t *testing.T) {
	cloud := New()
	test.That(t, cloud.Size(), test.ShouldEqual, 0)
	test.That(t, cloud.Add(r3.Vector{X: 1}), test.ShouldBeNil)
	test.That(t, cloud.Add(r3.Vector{Y: 2}), test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 2)
	test.That(t, cloud.At(1), test.ShouldResemble, r3.Vector{Y: 2})
	test.That(t, cloud.HasColor(), test.ShouldBeFalse)

	// mixing colored and colorless points is rejected
	err := cloud.AddColored(r3.Vector{}, color.NRGBA{R: 1})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPointCloudTransform(t *testing.T) {
	cloud := New()
	test.That(t, cloud.Add(r3.Vector{X: 1}), test.ShouldBeNil)
	pose := spatialmath.NewPoseFromRPY(r3.Vector{Z: 1}, 0, 0, math.Pi/2)

	moved := cloud.Transformed(pose)
	test.That(t, moved.At(0).X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, moved.At(0).Y, test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, moved.At(0).Z, test.ShouldAlmostEqual, 1, 1e-9)
	// the original is untouched
	test.That(t, cloud.At(0), test.ShouldResemble, r3.Vector{X: 1})
}

func TestVoxelDownsample(t *testing.T) {
	cloud := New()
	// two clusters well inside separate 1m cells
	for _, pt := range []r3.Vector{
		{X: 0.1, Y: 0.1, Z: 0.1},
		{X: 0.2, Y: 0.2, Z: 0.2},
		{X: 5.1, Y: 5.1, Z: 5.1},
	} {
		test.That(t, cloud.Add(pt), test.ShouldBeNil)
	}
	down := cloud.VoxelDownsample(1.0)
	test.That(t, down.Size(), test.ShouldEqual, 2)
	test.That(t, down.At(0).X, test.ShouldAlmostEqual, 0.15, 1e-9)

	// non-positive leaf is a no-op copy
	test.That(t, cloud.VoxelDownsample(0).Size(), test.ShouldEqual, 3)
}

func TestRemoveColorless(t *testing.T) {
	cloud := New()
	test.That(t, cloud.AddColored(r3.Vector{X: 1}, color.NRGBA{R: 10, A: 255}), test.ShouldBeNil)
	test.That(t, cloud.AddColored(r3.Vector{X: 2}, color.NRGBA{}), test.ShouldBeNil)
	out := cloud.RemoveColorless()
	test.That(t, out.Size(), test.ShouldEqual, 1)
	test.That(t, out.At(0), test.ShouldResemble, r3.Vector{X: 1})
}

func TestMerge(t *testing.T) {
	a := New()
	test.That(t, a.Add(r3.Vector{X: 1}), test.ShouldBeNil)
	b := New()
	test.That(t, b.Add(r3.Vector{X: 2}), test.ShouldBeNil)
	a.Merge(b)
	test.That(t, a.Size(), test.ShouldEqual, 2)
}

func TestWritePLY(t *testing.T) {
	cloud := New()
	test.That(t, cloud.AddColored(r3.Vector{X: 1, Y: 2, Z: 3}, color.NRGBA{R: 255, G: 128, B: 0, A: 255}), test.ShouldBeNil)

	var buf bytes.Buffer
	test.That(t, cloud.WritePLY(&buf), test.ShouldBeNil)
	out := buf.String()
	test.That(t, strings.HasPrefix(out, "ply\nformat ascii 1.0\nelement vertex 1\n"), test.ShouldBeTrue)
	test.That(t, strings.Contains(out, "property uchar red"), test.ShouldBeTrue)
	test.That(t, strings.Contains(out, "1 2 3 255 128 0 255"), test.ShouldBeTrue)
}

func TestBasicCleanerIdempotent(t *testing.T) {
	cloud := New()
	test.That(t, cloud.Add(r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}), test.ShouldBeNil)
	test.That(t, cloud.Add(r3.Vector{X: 0.9, Y: 0.9, Z: 0.9}), test.ShouldBeNil)

	cleaner := &BasicCleaner{Config: CleanConfig{DownsampleLeaf: 0.5}}
	once, err := cleaner.Clean(cloud)
	test.That(t, err, test.ShouldBeNil)
	twice, err := cleaner.Clean(once)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, twice.Size(), test.ShouldEqual, once.Size())
}
