package esam

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/jhidalgocarrio/esam/factorgraph"
	"github.com/jhidalgocarrio/esam/framegraph"
	"github.com/jhidalgocarrio/esam/spatialmath"
)

// AddDeltaPoseFactor allocates the next pose index and constrains it
// relative to the previous pose. The estimation factor and the mirrored
// transform edge are added together; if any precondition fails neither graph
// changes. Cross terms of a full covariance are preserved.
func (e *ESAM) AddDeltaPoseFactor(t time.Time, delta spatialmath.Pose, cov *mat.SymDense) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cov == nil || cov.SymmetricDim() != spatialmath.PoseDOF {
		return errors.New("delta pose needs a full 6x6 covariance")
	}
	prev := e.poseSymbol(e.poseIdx)
	if !e.frames.HasFrame(prev.String()) {
		return &framegraph.UnknownFrameError{Frame: prev.String()}
	}
	curr := e.poseSymbol(e.newPoseIndex())
	e.factors.Add(&factorgraph.BetweenFactor{
		Key1:  prev,
		Key2:  curr,
		Delta: delta,
		Cov:   spatialmath.CopyCovariance(cov),
	})
	e.frames.AddTransform(framegraph.TransformEdge{
		Source:    prev.String(),
		Target:    curr.String(),
		Time:      t,
		Transform: delta,
		Cov:       spatialmath.CopyCovariance(cov),
	})
	return nil
}

// AddDeltaPoseFactorVariances is AddDeltaPoseFactor with a diagonal
// uncertainty.
func (e *ESAM) AddDeltaPoseFactorVariances(t time.Time, delta spatialmath.Pose, variances [6]float64) error {
	return e.AddDeltaPoseFactor(t, delta, spatialmath.CovarianceFromDiagonal(variances[:]))
}

// AddBearingRangeFactor allocates the next landmark index and constrains it
// by a planar bearing and range observed from the given pose. Variance order
// is bearing then range.
func (e *ESAM) AddBearingRangeFactor(pose factorgraph.Symbol, t time.Time, bearing, distance float64, variance [2]float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.frames.HasFrame(pose.String()) {
		return &framegraph.UnknownFrameError{Frame: pose.String()}
	}
	landmark := e.landmarkSymbol(e.newLandmarkIndex())
	e.factors.Add(&factorgraph.BearingRangeFactor{
		PoseKey:     pose,
		LandmarkKey: landmark,
		Bearing:     bearing,
		Range:       distance,
		Var:         variance,
	})
	cov := mat.NewSymDense(spatialmath.PoseDOF, nil)
	cov.SetSym(0, 0, variance[1])
	cov.SetSym(5, 5, variance[0])
	e.frames.AddTransform(framegraph.TransformEdge{
		Source:    pose.String(),
		Target:    landmark.String(),
		Time:      t,
		Transform: spatialmath.NewPoseFromRPY(r3.Vector{X: distance}, 0, 0, bearing),
		Cov:       cov,
	})
	return nil
}

// AddLandmarkFactor allocates the next landmark index and constrains it by a
// position measured in the given pose's local frame.
func (e *ESAM) AddLandmarkFactor(pose factorgraph.Symbol, t time.Time, measurement r3.Vector, variance [3]float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.frames.HasFrame(pose.String()) {
		return &framegraph.UnknownFrameError{Frame: pose.String()}
	}
	e.insertLandmarkFactor(pose, e.landmarkSymbol(e.newLandmarkIndex()), t, measurement, variance)
	return nil
}

// insertLandmarkFactor appends a landmark observation and its mirrored
// transform edge without touching the landmark counter.
func (e *ESAM) insertLandmarkFactor(pose, landmark factorgraph.Symbol, t time.Time, measurement r3.Vector, variance [3]float64) {
	e.factors.Add(&factorgraph.LandmarkFactor{
		PoseKey:     pose,
		LandmarkKey: landmark,
		Point:       measurement,
		Var:         variance,
	})
	cov := mat.NewSymDense(spatialmath.PoseDOF, nil)
	for i, v := range variance {
		cov.SetSym(i, i, v)
	}
	e.frames.AddTransform(framegraph.TransformEdge{
		Source:    pose.String(),
		Target:    landmark.String(),
		Time:      t,
		Transform: spatialmath.NewPoseFromPoint(measurement),
		Cov:       cov,
	})
}

// AddPoseValue attaches the estimate for the current pose to its frame,
// creating the frame when only the incoming transform edge created it so
// far.
func (e *ESAM) AddPoseValue(pose spatialmath.PoseWithCovariance) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	name := e.poseSymbol(e.poseIdx).String()
	if err := e.ensureFrame(name); err != nil {
		return err
	}
	return e.frames.SetPose(name, pose)
}

// AddLandmarkValue attaches the position estimate for the current landmark
// index to its frame.
func (e *ESAM) AddLandmarkValue(position r3.Vector) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.insertLandmarkValue(e.landmarkSymbol(e.landmarkIdx), position)
}

func (e *ESAM) insertLandmarkValue(landmark factorgraph.Symbol, position r3.Vector) error {
	if err := e.ensureFrame(landmark.String()); err != nil {
		return err
	}
	return e.frames.SetLandmark(landmark.String(), position)
}

func (e *ESAM) ensureFrame(name string) error {
	if e.frames.HasFrame(name) {
		return nil
	}
	return e.frames.AddFrame(name)
}
