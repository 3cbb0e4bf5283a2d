package factorgraph

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Marginals exposes the per-variable covariance blocks of the solved joint
// estimate.
type Marginals struct {
	offsets map[Symbol]int
	dims    map[Symbol]int
	cov     *mat.Dense
}

// newMarginals inverts the information matrix at the solution.
func newMarginals(g *Graph, v *Values, order []Symbol, offsets map[Symbol]int, n int) (*Marginals, error) {
	hess, _, err := buildNormalEquations(g, v, order, offsets, n)
	if err != nil {
		return nil, err
	}
	cov := mat.NewDense(n, n, nil)
	if err := cov.Inverse(hess); err != nil && !isConditionErr(err) {
		// unconstrained directions get the same jitter the step solver uses
		for i := 0; i < n; i++ {
			hess.Set(i, i, hess.At(i, i)+1e-9)
		}
		if err := cov.Inverse(hess); err != nil && !isConditionErr(err) {
			return nil, errors.Wrap(err, "information matrix is singular; graph is underconstrained")
		}
	}
	dims := make(map[Symbol]int, len(order))
	for _, k := range order {
		dims[k] = v.dof(k)
	}
	return &Marginals{offsets: offsets, dims: dims, cov: cov}, nil
}

// isConditionErr reports whether err only flags an ill-conditioned matrix,
// for which gonum still produces a usable result.
func isConditionErr(err error) bool {
	_, ok := err.(mat.Condition)
	return ok
}

// MarginalCovariance returns the covariance block of a single variable.
func (m *Marginals) MarginalCovariance(key Symbol) (*mat.SymDense, error) {
	off, ok := m.offsets[key]
	if !ok {
		return nil, errors.Errorf("no marginal for %s", key)
	}
	d := m.dims[key]
	out := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			out.SetSym(i, j, 0.5*(m.cov.At(off+i, off+j)+m.cov.At(off+j, off+i)))
		}
	}
	return out, nil
}
