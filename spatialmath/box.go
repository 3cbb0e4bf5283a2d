package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// AlignedBox is an axis-aligned bounding volume. The zero value is empty;
// Extend grows it to cover points.
type AlignedBox struct {
	min, max r3.Vector
	nonempty bool
}

// NewAlignedBox returns an empty box.
func NewAlignedBox() *AlignedBox {
	return &AlignedBox{}
}

// NewAlignedBoxFromPoints returns the smallest box covering all given points.
func NewAlignedBoxFromPoints(pts ...r3.Vector) *AlignedBox {
	b := NewAlignedBox()
	for _, pt := range pts {
		b.Extend(pt)
	}
	return b
}

// Extend grows the box to cover the given point.
func (b *AlignedBox) Extend(pt r3.Vector) {
	if !b.nonempty {
		b.min, b.max = pt, pt
		b.nonempty = true
		return
	}
	b.min.X = math.Min(b.min.X, pt.X)
	b.min.Y = math.Min(b.min.Y, pt.Y)
	b.min.Z = math.Min(b.min.Z, pt.Z)
	b.max.X = math.Max(b.max.X, pt.X)
	b.max.Y = math.Max(b.max.Y, pt.Y)
	b.max.Z = math.Max(b.max.Z, pt.Z)
}

// Contains reports whether the point lies inside the box, boundary included.
func (b *AlignedBox) Contains(pt r3.Vector) bool {
	if !b.nonempty {
		return false
	}
	return pt.X >= b.min.X && pt.X <= b.max.X &&
		pt.Y >= b.min.Y && pt.Y <= b.max.Y &&
		pt.Z >= b.min.Z && pt.Z <= b.max.Z
}

// Intersects reports whether the two boxes overlap, touching included.
func (b *AlignedBox) Intersects(other *AlignedBox) bool {
	if !b.nonempty || other == nil || !other.nonempty {
		return false
	}
	return b.min.X <= other.max.X && b.max.X >= other.min.X &&
		b.min.Y <= other.max.Y && b.max.Y >= other.min.Y &&
		b.min.Z <= other.max.Z && b.max.Z >= other.min.Z
}

// Center returns the center of the box.
func (b *AlignedBox) Center() r3.Vector {
	return b.min.Add(b.max).Mul(0.5)
}

// Min returns the lower corner of the box.
func (b *AlignedBox) Min() r3.Vector { return b.min }

// Max returns the upper corner of the box.
func (b *AlignedBox) Max() r3.Vector { return b.max }

// IsEmpty reports whether the box covers no points.
func (b *AlignedBox) IsEmpty() bool { return !b.nonempty }

// String returns a human readable representation of the box.
func (b *AlignedBox) String() string {
	if !b.nonempty {
		return "AlignedBox(empty)"
	}
	return fmt.Sprintf("AlignedBox(min: %.3f,%.3f,%.3f max: %.3f,%.3f,%.3f)",
		b.min.X, b.min.Y, b.min.Z, b.max.X, b.max.Y, b.max.Z)
}
