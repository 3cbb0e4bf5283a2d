package factorgraph

import (
	"fmt"
	"strings"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/jhidalgocarrio/esam/spatialmath"
)

// Factor is a probabilistic constraint over one or two variables.
type Factor interface {
	// Keys returns the variables the factor constrains.
	Keys() []Symbol
	// dim is the dimension of the factor's residual.
	dim() int
}

// PriorFactor pins a pose variable to an absolute estimate.
type PriorFactor struct {
	Key  Symbol
	Pose spatialmath.Pose
	Cov  *mat.SymDense
}

// Keys implements Factor.
func (f *PriorFactor) Keys() []Symbol { return []Symbol{f.Key} }

func (f *PriorFactor) dim() int { return spatialmath.PoseDOF }

// BetweenFactor constrains the relative transform between two poses.
type BetweenFactor struct {
	Key1, Key2 Symbol
	Delta      spatialmath.Pose
	Cov        *mat.SymDense
}

// Keys implements Factor.
func (f *BetweenFactor) Keys() []Symbol { return []Symbol{f.Key1, f.Key2} }

func (f *BetweenFactor) dim() int { return spatialmath.PoseDOF }

// BearingRangeFactor constrains a landmark by its planar bearing and range
// from a pose.
type BearingRangeFactor struct {
	PoseKey     Symbol
	LandmarkKey Symbol
	Bearing     float64
	Range       float64
	Var         [2]float64
}

// Keys implements Factor.
func (f *BearingRangeFactor) Keys() []Symbol { return []Symbol{f.PoseKey, f.LandmarkKey} }

func (f *BearingRangeFactor) dim() int { return 2 }

// LandmarkFactor constrains a landmark by its position measured in a pose's
// local frame.
type LandmarkFactor struct {
	PoseKey     Symbol
	LandmarkKey Symbol
	Point       r3.Vector
	Var         [3]float64
}

// Keys implements Factor.
func (f *LandmarkFactor) Keys() []Symbol { return []Symbol{f.PoseKey, f.LandmarkKey} }

func (f *LandmarkFactor) dim() int { return 3 }

// Graph is an append-only multiset of factors.
type Graph struct {
	factors []Factor
}

// NewGraph returns an empty factor graph.
func NewGraph() *Graph {
	return &Graph{}
}

// Add appends a factor to the graph.
func (g *Graph) Add(f Factor) {
	g.factors = append(g.factors, f)
}

// Size returns the number of factors in the graph.
func (g *Graph) Size() int {
	return len(g.factors)
}

// Factors returns the graph's factors in insertion order.
func (g *Graph) Factors() []Factor {
	return g.factors
}

// CountLandmarkFactors returns how many factors constrain landmarks.
func (g *Graph) CountLandmarkFactors() int {
	var n int
	for _, f := range g.factors {
		switch f.(type) {
		case *LandmarkFactor, *BearingRangeFactor:
			n++
		}
	}
	return n
}

// String renders the graph one factor per line for diagnostics.
func (g *Graph) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "factor graph with %d factors\n", len(g.factors))
	for i, f := range g.factors {
		switch factor := f.(type) {
		case *PriorFactor:
			fmt.Fprintf(&b, "  %d: prior on %s\n", i, factor.Key)
		case *BetweenFactor:
			fmt.Fprintf(&b, "  %d: between %s -> %s\n", i, factor.Key1, factor.Key2)
		case *BearingRangeFactor:
			fmt.Fprintf(&b, "  %d: bearing-range %s -> %s\n", i, factor.PoseKey, factor.LandmarkKey)
		case *LandmarkFactor:
			fmt.Fprintf(&b, "  %d: landmark %s -> %s\n", i, factor.PoseKey, factor.LandmarkKey)
		}
	}
	return b.String()
}
