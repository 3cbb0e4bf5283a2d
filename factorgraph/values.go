package factorgraph

import (
	"sort"

	"github.com/golang/geo/r3"

	"github.com/jhidalgocarrio/esam/spatialmath"
)

// Values assigns an estimate to every variable: a pose or a 3D point
// depending on the variable's kind.
type Values struct {
	poses  map[Symbol]spatialmath.Pose
	points map[Symbol]r3.Vector
}

// NewValues returns an empty assignment.
func NewValues() *Values {
	return &Values{
		poses:  make(map[Symbol]spatialmath.Pose),
		points: make(map[Symbol]r3.Vector),
	}
}

// SetPose assigns a pose estimate to a variable.
func (v *Values) SetPose(key Symbol, pose spatialmath.Pose) {
	v.poses[key] = pose
}

// Pose returns the pose assigned to a variable.
func (v *Values) Pose(key Symbol) (spatialmath.Pose, bool) {
	p, ok := v.poses[key]
	return p, ok
}

// SetPoint assigns a point estimate to a variable.
func (v *Values) SetPoint(key Symbol, pt r3.Vector) {
	v.points[key] = pt
}

// Point returns the point assigned to a variable.
func (v *Values) Point(key Symbol) (r3.Vector, bool) {
	p, ok := v.points[key]
	return p, ok
}

// Len returns the number of assigned variables.
func (v *Values) Len() int {
	return len(v.poses) + len(v.points)
}

// Keys returns all assigned variables in symbol order.
func (v *Values) Keys() []Symbol {
	keys := make([]Symbol, 0, v.Len())
	for k := range v.poses {
		keys = append(keys, k)
	}
	for k := range v.points {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Clone returns an independent copy of the assignment.
func (v *Values) Clone() *Values {
	out := NewValues()
	for k, p := range v.poses {
		out.poses[k] = p
	}
	for k, p := range v.points {
		out.points[k] = p
	}
	return out
}

// dof returns the local dimension of a variable in this assignment.
func (v *Values) dof(key Symbol) int {
	if _, ok := v.poses[key]; ok {
		return spatialmath.PoseDOF
	}
	return 3
}
