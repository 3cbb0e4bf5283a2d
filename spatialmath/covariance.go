package spatialmath

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PoseDOF is the dimension of a pose variable: translation xyz followed by
// rotation about x, y, z.
const PoseDOF = 6

// PoseWithCovariance pairs a pose estimate with its 6x6 covariance.
type PoseWithCovariance struct {
	Pose Pose
	Cov  *mat.SymDense
}

// NewPoseWithCovariance returns a pose estimate with the given covariance.
// A nil covariance is replaced with the zero matrix.
func NewPoseWithCovariance(pose Pose, cov *mat.SymDense) (PoseWithCovariance, error) {
	if cov == nil {
		cov = mat.NewSymDense(PoseDOF, nil)
	}
	if cov.SymmetricDim() != PoseDOF {
		return PoseWithCovariance{}, errors.Errorf("pose covariance must be %dx%d, got %dx%d",
			PoseDOF, PoseDOF, cov.SymmetricDim(), cov.SymmetricDim())
	}
	return PoseWithCovariance{Pose: pose, Cov: cov}, nil
}

// CovarianceFromDiagonal builds a diagonal covariance matrix from per-axis
// variances.
func CovarianceFromDiagonal(variances []float64) *mat.SymDense {
	cov := mat.NewSymDense(len(variances), nil)
	for i, v := range variances {
		cov.SetSym(i, i, v)
	}
	return cov
}

// PositionCovariance extracts the positional 3x3 block of a 6x6 pose
// covariance.
func PositionCovariance(cov *mat.SymDense) *mat.SymDense {
	out := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			out.SetSym(i, j, cov.At(i, j))
		}
	}
	return out
}

// CopyCovariance returns an independent copy of a covariance matrix.
func CopyCovariance(cov *mat.SymDense) *mat.SymDense {
	n := cov.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(cov)
	return out
}
