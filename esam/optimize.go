package esam

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/jhidalgocarrio/esam/factorgraph"
	"github.com/jhidalgocarrio/esam/spatialmath"
)

// Optimize re-solves the whole graph from the current frame estimates and
// writes the refined assignment back, poses with their marginal covariance
// and landmarks as position only.
func (e *ESAM) Optimize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.optimizeLocked()
}

func (e *ESAM) optimizeLocked() error {
	initial := factorgraph.NewValues()
	for i := uint64(0); i <= e.poseIdx; i++ {
		sym := e.poseSymbol(i)
		pwc, err := e.frames.Pose(sym.String())
		if err != nil {
			return errors.Wrapf(err, "initial estimate for %s", sym)
		}
		initial.SetPose(sym, pwc.Pose)
	}
	for i := uint64(0); i < e.landmarkIdx; i++ {
		sym := e.landmarkSymbol(i)
		position, err := e.frames.Landmark(sym.String())
		if err != nil {
			return errors.Wrapf(err, "initial estimate for %s", sym)
		}
		initial.SetPoint(sym, position)
	}

	result, marginals, err := factorgraph.Solve(e.factors, initial, factorgraph.DefaultOptions())
	if err != nil {
		return err
	}
	e.marginals = marginals

	// Write-back can fail partway; the frames updated so far keep their
	// refined estimates.
	for _, key := range result.Keys() {
		switch key.Category {
		case e.conf.PoseKey:
			pose, _ := result.Pose(key)
			cov, err := marginals.MarginalCovariance(key)
			if err != nil {
				return errors.Wrapf(err, "marginal covariance for %s", key)
			}
			pwc, err := spatialmath.NewPoseWithCovariance(pose, cov)
			if err != nil {
				return err
			}
			if err := e.frames.SetPose(key.String(), pwc); err != nil {
				return errors.Wrapf(err, "writing back %s", key)
			}
		case e.conf.LandmarkKey:
			position, _ := result.Point(key)
			if err := e.frames.SetLandmark(key.String(), position); err != nil {
				return errors.Wrapf(err, "writing back %s", key)
			}
		}
	}
	return nil
}

// MarginalsString renders the marginal covariance of every variable from the
// last solve. It is empty before the first solve.
func (e *ESAM) MarginalsString() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.marginals == nil {
		return ""
	}
	var b strings.Builder
	for i := uint64(0); i <= e.poseIdx; i++ {
		writeMarginal(&b, e.marginals, e.poseSymbol(i))
	}
	for i := uint64(0); i < e.landmarkIdx; i++ {
		writeMarginal(&b, e.marginals, e.landmarkSymbol(i))
	}
	return b.String()
}

func writeMarginal(b *strings.Builder, marginals *factorgraph.Marginals, sym factorgraph.Symbol) {
	cov, err := marginals.MarginalCovariance(sym)
	if err != nil {
		return
	}
	fmt.Fprintf(b, "%s covariance:\n%.3v\n", sym, mat.Formatted(cov))
}
