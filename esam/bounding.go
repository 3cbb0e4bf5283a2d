package esam

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/jhidalgocarrio/esam/factorgraph"
	"github.com/jhidalgocarrio/esam/features"
	"github.com/jhidalgocarrio/esam/spatialmath"
)

// computeBoundingVolume inflates the segment between the previous and the
// current pose into an axis-aligned box and attaches it to the previous
// frame, whose observation it brackets. ok is false while fewer than two
// poses exist.
func (e *ESAM) computeBoundingVolume() (factorgraph.Symbol, bool, error) {
	if e.poseIdx == 0 {
		return factorgraph.Symbol{}, false, nil
	}
	prev := e.poseSymbol(e.poseIdx - 1)
	curr := e.poseSymbol(e.poseIdx)
	prevPose, err := e.frames.Pose(prev.String())
	if err != nil {
		return factorgraph.Symbol{}, false, err
	}
	currPose, err := e.frames.Pose(curr.String())
	if err != nil {
		return factorgraph.Symbol{}, false, err
	}

	// The statistical sigmas underestimate the sensor footprint, so the
	// platform margins supersede them.
	margin := r3.Vector{X: e.conf.LateralMargin, Y: e.conf.LongitudinalMargin, Z: e.conf.VerticalMargin}
	e.logger.Debugw("margins supersede pose sigmas",
		"prev", positionSigmas(prevPose.Cov), "curr", positionSigmas(currPose.Cov), "margin", margin)

	front := currPose.Pose.Point()
	rear := prevPose.Pose.Point()
	frontAxes := [3]*float64{&front.X, &front.Y, &front.Z}
	rearAxes := [3]*float64{&rear.X, &rear.Y, &rear.Z}
	frontMargins := [3]float64{margin.X, margin.Y, margin.Z}
	rearMargins := [3]float64{margin.X, margin.Y, margin.Z}
	for i := 0; i < 3; i++ {
		if *frontAxes[i] > *rearAxes[i] {
			*frontAxes[i] += frontMargins[i]
			*rearAxes[i] -= rearMargins[i]
		} else {
			*frontAxes[i] -= frontMargins[i]
			*rearAxes[i] += rearMargins[i]
		}
	}

	bound := spatialmath.NewAlignedBoxFromPoints(front, rear)
	if err := e.frames.SetBound(prev.String(), bound); err != nil {
		return factorgraph.Symbol{}, false, err
	}
	return prev, true, nil
}

func positionSigmas(cov *mat.SymDense) r3.Vector {
	return r3.Vector{
		X: math.Sqrt(cov.At(0, 0)),
		Y: math.Sqrt(cov.At(1, 1)),
		Z: math.Sqrt(cov.At(2, 2)),
	}
}

// contains tests whether the container frame's bounding volume holds the
// candidate. Candidates newer than the container may not carry a bounding
// volume yet, so for those the volume center is tried as well as the raw
// position.
func (e *ESAM) contains(container, candidate factorgraph.Symbol) (bool, error) {
	bound, err := e.frames.Bound(container.String())
	if err != nil {
		return false, err
	}
	if bound == nil {
		return false, nil
	}
	pose, err := e.frames.Pose(candidate.String())
	if err != nil {
		return false, err
	}
	if bound.Contains(pose.Pose.Point()) {
		return true, nil
	}
	if candidate.Index > container.Index && e.frames.HasBound(candidate.String()) {
		candBound, err := e.frames.Bound(candidate.String())
		if err != nil {
			return false, err
		}
		return bound.Contains(candBound.Center()), nil
	}
	return false, nil
}

// findCandidates returns every pose whose estimate falls inside the
// container's bounding volume, in increasing index order. The container
// itself is never a candidate.
func (e *ESAM) findCandidates(container factorgraph.Symbol) ([]factorgraph.Symbol, error) {
	var candidates []factorgraph.Symbol
	for i := uint64(0); i <= e.poseIdx; i++ {
		if i == container.Index {
			continue
		}
		candidate := e.poseSymbol(i)
		ok, err := e.contains(container, candidate)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		candidates = append(candidates, candidate)
		gap := container.Index - i
		if i > container.Index {
			gap = i - container.Index
		}
		if gap > e.conf.LoopClosureGap {
			e.logger.Debugw("probable loop closure",
				"container", container.String(), "candidate", candidate.String())
		}
	}
	return candidates, nil
}

// ComputeKeypoints closes the bookkeeping for the frame that just finished
// being observed: its bounding volume is computed, its point cloud is turned
// into keypoints and descriptors, the candidates staged on the previous call
// become the active search set, and the next candidate generation is staged.
func (e *ESAM) ComputeKeypoints() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	frame, ok, err := e.computeBoundingVolume()
	if err != nil {
		return err
	}
	if !ok || !e.frames.HasPointCloud(frame.String()) {
		return nil
	}

	cloud, err := e.frames.PointCloud(frame.String())
	if err != nil {
		return err
	}
	points := make([]r3.Vector, cloud.Size())
	for i := range points {
		points[i] = cloud.At(i)
	}
	extractor := e.conf.Extractor
	if extractor == nil {
		extractor = &features.GridExtractor{Keypoint: e.conf.Keypoint, Descriptor: e.conf.Feature, Stride: 1}
	}
	keypoints, descriptors, err := extractor.DetectAndDescribe(points)
	if err != nil {
		return err
	}
	if err := e.frames.SetKeypoints(frame.String(), keypoints); err != nil {
		return err
	}
	if err := e.frames.SetDescriptors(frame.String(), descriptors); err != nil {
		return err
	}

	e.framesToSearch = e.candidatesToSearch
	e.frameToSearchLandmarks = e.candidateToSearchLandmarks

	candidates, err := e.findCandidates(frame)
	if err != nil {
		return err
	}
	e.candidatesToSearch = candidates
	staged := frame
	e.candidateToSearchLandmarks = &staged
	return nil
}
