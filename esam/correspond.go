package esam

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/jhidalgocarrio/esam/factorgraph"
	"github.com/jhidalgocarrio/esam/features"
	"github.com/jhidalgocarrio/esam/spatialmath"
)

// chi-square critical values at 5% significance by degrees of freedom
var chiSquareCritical = map[int]float64{1: 3.84, 2: 5.99, 3: 7.81, 4: 9.49}

// acceptPointDistance reports whether a squared Mahalanobis distance falls
// strictly below the chi-square critical value for its degrees of freedom.
// Unsupported degrees of freedom always reject.
func acceptPointDistance(mahalanobis2 float64, dof int) bool {
	critical, ok := chiSquareCritical[dof]
	if !ok {
		return false
	}
	return mahalanobis2 < critical
}

// DetectLandmarks matches the active search frame's descriptors against its
// candidate partners and turns gated matches into landmark constraints. If at
// least one landmark is accepted the whole graph is re-solved once at the
// end. A nil return before any search frontier exists is not an error.
func (e *ESAM) DetectLandmarks(t time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.framesToSearch) == 0 || e.frameToSearchLandmarks == nil {
		return nil
	}
	return e.featuresCorrespondences(t, *e.frameToSearchLandmarks, e.framesToSearch)
}

func (e *ESAM) featuresCorrespondences(t time.Time, source factorgraph.Symbol, candidates []factorgraph.Symbol) error {
	name := source.String()
	if !e.frames.HasKeypoints(name) || !e.frames.HasDescriptors(name) {
		e.logger.Debugw("search frame has no features to match", "frame", name)
		return nil
	}
	sourcePose, err := e.frames.Pose(name)
	if err != nil {
		return err
	}
	sourceKeypoints, err := e.frames.Keypoints(name)
	if err != nil {
		return err
	}
	sourceDescriptors, err := e.frames.Descriptors(name)
	if err != nil {
		return err
	}
	if len(sourceKeypoints) != len(sourceDescriptors) {
		e.logger.Debugw("keypoint and descriptor counts differ",
			"frame", name, "keypoints", len(sourceKeypoints), "descriptors", len(sourceDescriptors))
		return nil
	}

	found := false
	for _, candidate := range candidates {
		candName := candidate.String()
		if !e.frames.HasKeypoints(candName) || !e.frames.HasDescriptors(candName) {
			continue
		}
		targetPose, err := e.frames.Pose(candName)
		if err != nil {
			return err
		}
		targetKeypoints, err := e.frames.Keypoints(candName)
		if err != nil {
			return err
		}
		targetDescriptors, err := e.frames.Descriptors(candName)
		if err != nil {
			return err
		}
		if len(targetKeypoints) != len(targetDescriptors) {
			e.logger.Debugw("keypoint and descriptor counts differ",
				"frame", candName, "keypoints", len(targetKeypoints), "descriptors", len(targetDescriptors))
			continue
		}

		matches, scores, err := features.Correspondences(sourceDescriptors, targetDescriptors)
		if err != nil {
			return err
		}
		median := features.MedianScore(scores)

		for i, keypoint := range sourceKeypoints {
			if scores[i] > e.conf.MatchPercentage*median {
				e.logger.Debugw("match score rejected",
					"source", name, "candidate", candName, "score", scores[i], "median", median)
				continue
			}
			pSource := keypoint.Position
			pTarget := targetKeypoints[matches[i]].Position
			sourceGlobal := sourcePose.Pose.TransformPoint(pSource)
			targetGlobal := targetPose.Pose.TransformPoint(pTarget)
			innovation := sourceGlobal.Sub(targetGlobal)

			mahalanobis2, err := e.gateDistance(innovation, sourcePose.Cov)
			if err != nil {
				return err
			}
			if !acceptPointDistance(mahalanobis2, len(e.conf.LandmarkVar)) {
				e.logger.Debugw("mahalanobis rejected",
					"source", name, "candidate", candName, "distance", mahalanobis2)
				continue
			}

			landmark := e.landmarkSymbol(e.newLandmarkIndex())
			e.insertLandmarkFactor(source, landmark, t, pSource, e.conf.LandmarkVar)
			e.insertLandmarkFactor(candidate, landmark, t, pTarget, e.conf.LandmarkVar)
			if err := e.insertLandmarkValue(landmark, sourceGlobal); err != nil {
				return err
			}
			found = true
		}
	}

	if found {
		return e.optimizeLocked()
	}
	return nil
}

// gateDistance evaluates the squared Mahalanobis distance of a positional
// residual under the source pose's positional uncertainty plus the landmark
// observation noise.
func (e *ESAM) gateDistance(innovation r3.Vector, poseCov *mat.SymDense) (float64, error) {
	gate := spatialmath.PositionCovariance(poseCov)
	for i, v := range e.conf.LandmarkVar {
		gate.SetSym(i, i, gate.At(i, i)+v)
	}
	var inv mat.Dense
	if err := inv.Inverse(gate); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return 0, errors.Wrap(err, "gate covariance not invertible")
		}
	}
	vec := mat.NewVecDense(3, []float64{innovation.X, innovation.Y, innovation.Z})
	var tmp mat.VecDense
	tmp.MulVec(&inv, vec)
	return mat.Dot(vec, &tmp), nil
}
