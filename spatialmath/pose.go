// Package spatialmath defines spatial mathematical operations: rigid 6-DoF
// poses, their covariances, and axis-aligned bounding volumes.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

const defaultEpsilon = 1e-8

// Pose is a rigid transform in 3D space: a rotation followed by a translation.
type Pose struct {
	translation r3.Vector
	rotation    quat.Number
}

// NewZeroPose returns the identity pose.
func NewZeroPose() Pose {
	return Pose{rotation: quat.Number{Real: 1}}
}

// NewPose returns a pose with the given translation and rotation. The rotation
// quaternion is normalized so downstream math can assume a unit quaternion.
func NewPose(translation r3.Vector, rotation quat.Number) Pose {
	return Pose{translation: translation, rotation: normalize(rotation)}
}

// NewPoseFromPoint returns a pose at the given point with no rotation.
func NewPoseFromPoint(translation r3.Vector) Pose {
	return Pose{translation: translation, rotation: quat.Number{Real: 1}}
}

// NewPoseFromRPY returns a pose at the given point whose orientation is built
// from intrinsic roll, pitch, yaw angles in radians.
func NewPoseFromRPY(translation r3.Vector, roll, pitch, yaw float64) Pose {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	return NewPose(translation, quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	})
}

// Point returns the translation of the pose.
func (p Pose) Point() r3.Vector {
	return p.translation
}

// Orientation returns the rotation of the pose as a unit quaternion.
func (p Pose) Orientation() quat.Number {
	return p.rotation
}

// Compose returns the pose equivalent to applying b in the frame of a.
func Compose(a, b Pose) Pose {
	return Pose{
		translation: a.TransformPoint(b.translation),
		rotation:    normalize(quat.Mul(a.rotation, b.rotation)),
	}
}

// Invert returns the pose that undoes this one.
func Invert(p Pose) Pose {
	inv := quat.Conj(p.rotation)
	return Pose{
		translation: rotateVector(inv, p.translation).Mul(-1),
		rotation:    inv,
	}
}

// TransformPoint applies the pose to a point, rotating then translating it.
func (p Pose) TransformPoint(pt r3.Vector) r3.Vector {
	return rotateVector(p.rotation, pt).Add(p.translation)
}

// Delta returns the pose of b relative to a, i.e. Compose(a, Delta(a,b)) == b.
func Delta(a, b Pose) Pose {
	return Compose(Invert(a), b)
}

// PoseAlmostEqual compares two poses within the given translational and
// angular tolerance, treating q and -q as the same rotation.
func PoseAlmostEqual(a, b Pose, epsilon float64) bool {
	if a.translation.Sub(b.translation).Norm() > epsilon {
		return false
	}
	return QuatAlmostEqual(a.rotation, b.rotation, epsilon)
}

// QuatAlmostEqual compares two unit quaternions up to sign.
func QuatAlmostEqual(a, b quat.Number, epsilon float64) bool {
	d := quat.Mul(quat.Conj(a), b)
	return math.Abs(1-math.Abs(d.Real)) < epsilon
}

// RotationExp maps a rotation vector (axis * angle, radians) to a unit
// quaternion.
func RotationExp(v r3.Vector) quat.Number {
	angle := v.Norm()
	if angle < defaultEpsilon {
		// first order expansion near identity
		return normalize(quat.Number{Real: 1, Imag: v.X / 2, Jmag: v.Y / 2, Kmag: v.Z / 2})
	}
	axis := v.Mul(1 / angle)
	s := math.Sin(angle / 2)
	return quat.Number{Real: math.Cos(angle / 2), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

// RotationLog maps a unit quaternion to its rotation vector.
func RotationLog(q quat.Number) r3.Vector {
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	imag := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	s := imag.Norm()
	if s < defaultEpsilon {
		return imag.Mul(2)
	}
	angle := 2 * math.Atan2(s, q.Real)
	return imag.Mul(angle / s)
}

// rotateVector rotates v by the unit quaternion q.
func rotateVector(q quat.Number, v r3.Vector) r3.Vector {
	qv := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, qv), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

func normalize(q quat.Number) quat.Number {
	n := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}
