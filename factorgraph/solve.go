package factorgraph

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/jhidalgocarrio/esam/spatialmath"
)

// Options is the convergence policy for Solve.
type Options struct {
	// RelativeErrorTol stops iterating once the change in error between
	// steps falls below this fraction of the current error.
	RelativeErrorTol float64
	// MaxIterations caps the number of Gauss-Newton steps.
	MaxIterations int
}

// DefaultOptions returns the solver policy used by the mapping core.
func DefaultOptions() Options {
	return Options{RelativeErrorTol: 1e-5, MaxIterations: 100}
}

const jacobianEps = 1e-6

// Solve runs batch Gauss-Newton over the graph starting from the initial
// assignment and returns the optimized assignment along with per-variable
// marginal covariances. Hitting the iteration cap is not an error; the
// best estimate found is returned.
func Solve(g *Graph, initial *Values, opts Options) (*Values, *Marginals, error) {
	if initial.Len() == 0 {
		return nil, nil, errors.New("cannot solve with no initial values")
	}
	for _, f := range g.Factors() {
		for _, k := range f.Keys() {
			if _, okPose := initial.Pose(k); !okPose {
				if _, okPoint := initial.Point(k); !okPoint {
					return nil, nil, errors.Errorf("factor references %s which has no initial value", k)
				}
			}
		}
	}

	order := initial.Keys()
	offsets := make(map[Symbol]int, len(order))
	n := 0
	for _, k := range order {
		offsets[k] = n
		n += initial.dof(k)
	}

	current := initial.Clone()
	prevErr, err := totalError(g, current)
	if err != nil {
		return nil, nil, err
	}

	for iter := 0; iter < opts.MaxIterations; iter++ {
		hess, grad, buildErr := buildNormalEquations(g, current, order, offsets, n)
		if buildErr != nil {
			return nil, nil, buildErr
		}
		step, solveErr := solveStep(hess, grad)
		if solveErr != nil {
			return nil, nil, solveErr
		}
		applyStep(current, order, offsets, step)

		newErr, evalErr := totalError(g, current)
		if evalErr != nil {
			return nil, nil, evalErr
		}
		if math.Abs(prevErr-newErr) < opts.RelativeErrorTol*math.Max(prevErr, 1e-12) {
			prevErr = newErr
			break
		}
		prevErr = newErr
	}

	marginals, err := newMarginals(g, current, order, offsets, n)
	if err != nil {
		return nil, nil, err
	}
	return current, marginals, nil
}

// residual evaluates a factor's whitened-free residual at the assignment.
func residual(f Factor, v *Values) ([]float64, error) {
	switch factor := f.(type) {
	case *PriorFactor:
		est, ok := v.Pose(factor.Key)
		if !ok {
			return nil, errors.Errorf("no pose value for %s", factor.Key)
		}
		return poseResidual(factor.Pose, est), nil
	case *BetweenFactor:
		p1, ok1 := v.Pose(factor.Key1)
		p2, ok2 := v.Pose(factor.Key2)
		if !ok1 || !ok2 {
			return nil, errors.Errorf("no pose value for %s or %s", factor.Key1, factor.Key2)
		}
		return poseResidual(factor.Delta, spatialmath.Delta(p1, p2)), nil
	case *BearingRangeFactor:
		pose, ok1 := v.Pose(factor.PoseKey)
		pt, ok2 := v.Point(factor.LandmarkKey)
		if !ok1 || !ok2 {
			return nil, errors.Errorf("no value for %s or %s", factor.PoseKey, factor.LandmarkKey)
		}
		local := spatialmath.Invert(pose).TransformPoint(pt)
		bearing := math.Atan2(local.Y, local.X)
		rng := math.Hypot(local.X, local.Y)
		return []float64{wrapAngle(bearing - factor.Bearing), rng - factor.Range}, nil
	case *LandmarkFactor:
		pose, ok1 := v.Pose(factor.PoseKey)
		pt, ok2 := v.Point(factor.LandmarkKey)
		if !ok1 || !ok2 {
			return nil, errors.Errorf("no value for %s or %s", factor.PoseKey, factor.LandmarkKey)
		}
		local := spatialmath.Invert(pose).TransformPoint(pt)
		diff := local.Sub(factor.Point)
		return []float64{diff.X, diff.Y, diff.Z}, nil
	default:
		return nil, errors.Errorf("unsupported factor type %T", f)
	}
}

// poseResidual is the 6-vector error between a measured and a predicted
// pose: translational difference then the rotation-vector difference.
func poseResidual(measured, predicted spatialmath.Pose) []float64 {
	dt := predicted.Point().Sub(measured.Point())
	dr := spatialmath.RotationLog(quat.Mul(quat.Conj(measured.Orientation()), predicted.Orientation()))
	return []float64{dt.X, dt.Y, dt.Z, dr.X, dr.Y, dr.Z}
}

// information returns the factor's information (inverse covariance) matrix.
func information(f Factor) (*mat.Dense, error) {
	switch factor := f.(type) {
	case *PriorFactor:
		return invertCovariance(factor.Cov)
	case *BetweenFactor:
		return invertCovariance(factor.Cov)
	case *BearingRangeFactor:
		return diagonalInformation(factor.Var[:])
	case *LandmarkFactor:
		return diagonalInformation(factor.Var[:])
	default:
		return nil, errors.Errorf("unsupported factor type %T", f)
	}
}

func invertCovariance(cov *mat.SymDense) (*mat.Dense, error) {
	n := cov.SymmetricDim()
	inv := mat.NewDense(n, n, nil)
	if err := inv.Inverse(cov); err != nil {
		return nil, errors.Wrap(err, "factor covariance is not invertible")
	}
	return inv, nil
}

func diagonalInformation(variances []float64) (*mat.Dense, error) {
	inv := mat.NewDense(len(variances), len(variances), nil)
	for i, v := range variances {
		if v <= 0 {
			return nil, errors.Errorf("variance %d must be positive, got %v", i, v)
		}
		inv.Set(i, i, 1/v)
	}
	return inv, nil
}

// totalError is the weighted least-squares error 0.5 * sum(r^T W r).
func totalError(g *Graph, v *Values) (float64, error) {
	var total float64
	for _, f := range g.Factors() {
		r, err := residual(f, v)
		if err != nil {
			return 0, err
		}
		w, err := information(f)
		if err != nil {
			return 0, err
		}
		rv := mat.NewVecDense(len(r), r)
		var wr mat.VecDense
		wr.MulVec(w, rv)
		total += 0.5 * mat.Dot(rv, &wr)
	}
	return total, nil
}

// perturb moves a single variable along its local coordinates, returning a
// function that restores the previous value.
func perturb(v *Values, key Symbol, dof int, delta float64) func() {
	if pose, ok := v.Pose(key); ok {
		step := make([]float64, spatialmath.PoseDOF)
		step[dof] = delta
		v.SetPose(key, retractPose(pose, step))
		return func() { v.SetPose(key, pose) }
	}
	pt, _ := v.Point(key)
	moved := pt
	switch dof {
	case 0:
		moved.X += delta
	case 1:
		moved.Y += delta
	default:
		moved.Z += delta
	}
	v.SetPoint(key, moved)
	return func() { v.SetPoint(key, pt) }
}

// retractPose applies a 6-dof local step: additive translation, exponential
// map on the rotation.
func retractPose(pose spatialmath.Pose, step []float64) spatialmath.Pose {
	t := pose.Point().Add(r3.Vector{X: step[0], Y: step[1], Z: step[2]})
	rot := quat.Mul(pose.Orientation(), spatialmath.RotationExp(r3.Vector{X: step[3], Y: step[4], Z: step[5]}))
	return spatialmath.NewPose(t, rot)
}

// buildNormalEquations linearizes every factor with central-difference
// Jacobians and accumulates H = J^T W J and g = J^T W r.
func buildNormalEquations(
	g *Graph, v *Values, order []Symbol, offsets map[Symbol]int, n int,
) (*mat.Dense, *mat.VecDense, error) {
	hess := mat.NewDense(n, n, nil)
	grad := mat.NewVecDense(n, nil)

	for _, f := range g.Factors() {
		r0, err := residual(f, v)
		if err != nil {
			return nil, nil, err
		}
		w, err := information(f)
		if err != nil {
			return nil, nil, err
		}
		m := len(r0)
		keys := f.Keys()

		jacs := make([]*mat.Dense, len(keys))
		for ki, key := range keys {
			dk := v.dof(key)
			jac := mat.NewDense(m, dk, nil)
			for d := 0; d < dk; d++ {
				restore := perturb(v, key, d, jacobianEps)
				rp, err := residual(f, v)
				restore()
				if err != nil {
					return nil, nil, err
				}
				restore = perturb(v, key, d, -jacobianEps)
				rm, err := residual(f, v)
				restore()
				if err != nil {
					return nil, nil, err
				}
				for row := 0; row < m; row++ {
					jac.Set(row, d, (rp[row]-rm[row])/(2*jacobianEps))
				}
			}
			jacs[ki] = jac
		}

		rv := mat.NewVecDense(m, r0)
		var wr mat.VecDense
		wr.MulVec(w, rv)
		for ki, key := range keys {
			dk := v.dof(key)
			off := offsets[key]

			var jtw mat.Dense
			jtw.Mul(jacs[ki].T(), w)

			var jtwr mat.VecDense
			jtwr.MulVec(jacs[ki].T(), &wr)
			for d := 0; d < dk; d++ {
				grad.SetVec(off+d, grad.AtVec(off+d)+jtwr.AtVec(d))
			}

			for kj, key2 := range keys {
				dk2 := v.dof(key2)
				off2 := offsets[key2]
				var block mat.Dense
				block.Mul(&jtw, jacs[kj])
				for a := 0; a < dk; a++ {
					for b := 0; b < dk2; b++ {
						hess.Set(off+a, off2+b, hess.At(off+a, off2+b)+block.At(a, b))
					}
				}
			}
		}
	}
	return hess, grad, nil
}

// solveStep solves H dx = -g via Cholesky. A Hessian with unconstrained
// directions (e.g. a landmark seen only by planar measurements) gets an
// increasing diagonal jitter until it factorizes.
func solveStep(hess *mat.Dense, grad *mat.VecDense) (*mat.VecDense, error) {
	n := grad.Len()
	neg := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		neg.SetVec(i, -grad.AtVec(i))
	}

	sym := symmetrize(hess)
	var chol mat.Cholesky
	for jitter := 0.0; jitter <= 1e-3; {
		jittered := mat.NewSymDense(n, nil)
		jittered.CopySym(sym)
		for i := 0; i < n; i++ {
			jittered.SetSym(i, i, jittered.At(i, i)+jitter)
		}
		if chol.Factorize(jittered) {
			step := mat.NewVecDense(n, nil)
			if err := chol.SolveVecTo(step, neg); err == nil {
				return step, nil
			}
		}
		if jitter == 0 {
			jitter = 1e-9
		} else {
			jitter *= 100
		}
	}
	return nil, errors.New("normal equations are singular")
}

func symmetrize(m *mat.Dense) *mat.SymDense {
	n, _ := m.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return sym
}

func applyStep(v *Values, order []Symbol, offsets map[Symbol]int, step *mat.VecDense) {
	for _, key := range order {
		off := offsets[key]
		if pose, ok := v.Pose(key); ok {
			local := make([]float64, spatialmath.PoseDOF)
			for d := range local {
				local[d] = step.AtVec(off + d)
			}
			v.SetPose(key, retractPose(pose, local))
			continue
		}
		pt, _ := v.Point(key)
		v.SetPoint(key, pt.Add(r3.Vector{
			X: step.AtVec(off),
			Y: step.AtVec(off + 1),
			Z: step.AtVec(off + 2),
		}))
	}
}

func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
