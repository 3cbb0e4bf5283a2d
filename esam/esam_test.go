package esam

import (
	"bytes"
	"math"
	"os"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/jhidalgocarrio/esam/factorgraph"
	"github.com/jhidalgocarrio/esam/features"
	"github.com/jhidalgocarrio/esam/framegraph"
	"github.com/jhidalgocarrio/esam/pointcloud"
	"github.com/jhidalgocarrio/esam/spatialmath"
)

var smallVariances = [6]float64{1e-4, 1e-4, 1e-4, 1e-4, 1e-4, 1e-4}

func newTestESAM(t *testing.T) *ESAM {
	t.Helper()
	e, err := NewFromVariances(spatialmath.NewZeroPose(), smallVariances, Config{}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return e
}

func pwcAt(t *testing.T, x, y, z float64) spatialmath.PoseWithCovariance {
	t.Helper()
	pwc, err := spatialmath.NewPoseWithCovariance(
		spatialmath.NewPoseFromPoint(r3.Vector{X: x, Y: y, Z: z}),
		spatialmath.CovarianceFromDiagonal(smallVariances[:]),
	)
	test.That(t, err, test.ShouldBeNil)
	return pwc
}

func TestConfigDefaults(t *testing.T) {
	e, err := NewFromVariances(spatialmath.NewZeroPose(), smallVariances,
		Config{MatchPercentage: 0.5}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e.conf.MatchPercentage, test.ShouldEqual, 0.5)
	test.That(t, e.conf.PoseKey, test.ShouldEqual, byte('x'))
	test.That(t, e.conf.LandmarkKey, test.ShouldEqual, byte('l'))
	test.That(t, e.conf.LateralMargin, test.ShouldEqual, 0.05)
	test.That(t, e.conf.LongitudinalMargin, test.ShouldEqual, 0.4)
	test.That(t, e.conf.VerticalMargin, test.ShouldEqual, 1.0)
	test.That(t, e.conf.LandmarkVar, test.ShouldResemble, [3]float64{0.01, 0.01, 0.01})

	_, err = New(spatialmath.NewZeroPose(), nil, Config{}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFullCovarianceRoundTrip(t *testing.T) {
	cov := spatialmath.CovarianceFromDiagonal(smallVariances[:])
	cov.SetSym(0, 1, 2e-5)
	cov.SetSym(2, 4, -1e-5)

	e, err := New(spatialmath.NewZeroPose(), cov, Config{}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	// the prior's cross terms survive the round trip through the frame
	// graph
	pwc, err := e.PoseByName("x0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Equal(pwc.Cov, cov), test.ShouldBeTrue)
	test.That(t, pwc.Cov.At(0, 1), test.ShouldAlmostEqual, 2e-5)
	test.That(t, pwc.Cov.At(2, 4), test.ShouldAlmostEqual, -1e-5)

	// and so do a relative constraint's, on the mirrored edge
	err = e.AddDeltaPoseFactor(time.Now(), spatialmath.NewPoseFromPoint(r3.Vector{X: 1}), cov)
	test.That(t, err, test.ShouldBeNil)
	edge, err := e.frames.Transform("x0", "x1")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Equal(edge.Cov, cov), test.ShouldBeTrue)
	test.That(t, edge.Cov.At(0, 1), test.ShouldAlmostEqual, 2e-5)
}

func TestPoseCounters(t *testing.T) {
	e := newTestESAM(t)
	test.That(t, e.PoseIndex(), test.ShouldEqual, 0)
	test.That(t, e.CurrentPoseID(), test.ShouldEqual, "x0")
	test.That(t, e.CurrentLandmarkID(), test.ShouldEqual, "l0")

	now := time.Now()
	for i := 1; i <= 3; i++ {
		err := e.AddDeltaPoseFactorVariances(now, spatialmath.NewPoseFromPoint(r3.Vector{X: 1}), smallVariances)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, e.AddPoseValue(pwcAt(t, float64(i), 0, 0)), test.ShouldBeNil)
	}
	test.That(t, e.PoseIndex(), test.ShouldEqual, 3)
	test.That(t, e.CurrentPoseID(), test.ShouldEqual, "x3")
	test.That(t, e.LandmarkIndex(), test.ShouldEqual, 0)
}

func TestDualGraphMirroring(t *testing.T) {
	e := newTestESAM(t)
	now := time.Now()
	for i := 1; i <= 2; i++ {
		err := e.AddDeltaPoseFactorVariances(now, spatialmath.NewPoseFromPoint(r3.Vector{X: 1}), smallVariances)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, e.AddPoseValue(pwcAt(t, float64(i), 0, 0)), test.ShouldBeNil)
	}
	err := e.AddLandmarkFactor(factorgraph.NewSymbol('x', 1), now, r3.Vector{X: 0.5}, [3]float64{0.01, 0.01, 0.01})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e.LandmarkIndex(), test.ShouldEqual, 1)
	err = e.AddBearingRangeFactor(factorgraph.NewSymbol('x', 2), now, 0.1, 2.0, [2]float64{0.01, 0.01})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e.LandmarkIndex(), test.ShouldEqual, 2)

	// every relative factor has exactly one mirrored transform edge; the
	// prior has none
	test.That(t, e.factors.Size(), test.ShouldEqual, 5)
	test.That(t, e.frames.TransformCount(), test.ShouldEqual, 4)

	// a failed precondition must leave both representations untouched
	err = e.AddLandmarkFactor(factorgraph.NewSymbol('x', 99), now, r3.Vector{}, [3]float64{0.01, 0.01, 0.01})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, framegraph.IsUnknownFrame(err), test.ShouldBeTrue)
	test.That(t, e.factors.Size(), test.ShouldEqual, 5)
	test.That(t, e.frames.TransformCount(), test.ShouldEqual, 4)
	test.That(t, e.LandmarkIndex(), test.ShouldEqual, 2)
}

func TestBoundingVolumeMargins(t *testing.T) {
	e := newTestESAM(t)

	_, ok, err := e.computeBoundingVolume()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeFalse)

	now := time.Now()
	err = e.AddDeltaPoseFactorVariances(now, spatialmath.NewPoseFromPoint(r3.Vector{X: 1}), smallVariances)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e.AddPoseValue(pwcAt(t, 1, 0, 0)), test.ShouldBeNil)

	frame, ok, err := e.computeBoundingVolume()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, frame.String(), test.ShouldEqual, "x0")

	bound, err := e.frames.Bound("x0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bound, test.ShouldNotBeNil)
	test.That(t, bound.Min().X, test.ShouldAlmostEqual, -0.05)
	test.That(t, bound.Max().X, test.ShouldAlmostEqual, 1.05)
	test.That(t, bound.Min().Y, test.ShouldAlmostEqual, -0.4)
	test.That(t, bound.Max().Y, test.ShouldAlmostEqual, 0.4)
	test.That(t, bound.Min().Z, test.ShouldAlmostEqual, -1.0)
	test.That(t, bound.Max().Z, test.ShouldAlmostEqual, 1.0)

	// the current frame carries no bound yet
	currBound, err := e.frames.Bound("x1")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, currBound, test.ShouldBeNil)
}

func TestCandidateContainment(t *testing.T) {
	e := newTestESAM(t)
	now := time.Now()
	for i := 1; i <= 2; i++ {
		err := e.AddDeltaPoseFactorVariances(now, spatialmath.NewPoseFromPoint(r3.Vector{X: 1}), smallVariances)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, e.AddPoseValue(pwcAt(t, 10, 0, 0)), test.ShouldBeNil)
	}

	// x0 and x2 sit far outside x1's volume; only their own volume
	// centers fall inside it
	test.That(t, e.frames.SetPose("x0", pwcAt(t, 10, 0, 0)), test.ShouldBeNil)
	test.That(t, e.frames.SetPose("x1", pwcAt(t, 0, 0, 0)), test.ShouldBeNil)
	centered := spatialmath.NewAlignedBoxFromPoints(r3.Vector{X: -1, Y: -1, Z: -1}, r3.Vector{X: 1, Y: 1, Z: 1})
	test.That(t, e.frames.SetBound("x1", centered), test.ShouldBeNil)
	farCentered := spatialmath.NewAlignedBoxFromPoints(r3.Vector{X: -1, Y: -1, Z: -1}, r3.Vector{X: 1, Y: 1, Z: 1})
	test.That(t, e.frames.SetBound("x0", farCentered), test.ShouldBeNil)
	test.That(t, e.frames.SetBound("x2", farCentered), test.ShouldBeNil)

	container := factorgraph.NewSymbol('x', 1)
	candidates, err := e.findCandidates(container)
	test.That(t, err, test.ShouldBeNil)

	// the newer x2 is admitted through its volume center, the older x0
	// is judged on position alone, and x1 never reports itself
	test.That(t, candidates, test.ShouldHaveLength, 1)
	test.That(t, candidates[0].String(), test.ShouldEqual, "x2")
}

func TestAcceptPointDistance(t *testing.T) {
	test.That(t, acceptPointDistance(3.83, 1), test.ShouldBeTrue)
	test.That(t, acceptPointDistance(3.84, 1), test.ShouldBeFalse)
	test.That(t, acceptPointDistance(5.98, 2), test.ShouldBeTrue)
	test.That(t, acceptPointDistance(5.99, 2), test.ShouldBeFalse)
	test.That(t, acceptPointDistance(7.80, 3), test.ShouldBeTrue)
	test.That(t, acceptPointDistance(7.81, 3), test.ShouldBeFalse)
	test.That(t, acceptPointDistance(9.48, 4), test.ShouldBeTrue)
	test.That(t, acceptPointDistance(9.49, 4), test.ShouldBeFalse)
	test.That(t, acceptPointDistance(0.0, 0), test.ShouldBeFalse)
	test.That(t, acceptPointDistance(0.0, 5), test.ShouldBeFalse)
}

func TestOdometryChainOptimize(t *testing.T) {
	e := newTestESAM(t)
	now := time.Now()
	for i := 1; i <= 5; i++ {
		err := e.AddDeltaPoseFactorVariances(now,
			spatialmath.NewPoseFromPoint(r3.Vector{X: 1}),
			[6]float64{1e-3, 1e-3, 1e-3, 1e-3, 1e-3, 1e-3})
		test.That(t, err, test.ShouldBeNil)
		// deliberately rough initial estimates
		test.That(t, e.AddPoseValue(pwcAt(t, float64(i)*1.1, 0.05, 0)), test.ShouldBeNil)
	}
	test.That(t, e.factors.Size(), test.ShouldEqual, 6)
	test.That(t, e.factors.CountLandmarkFactors(), test.ShouldEqual, 0)

	test.That(t, e.Optimize(), test.ShouldBeNil)

	last, err := e.PoseByName("x5")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, math.Abs(last.Pose.Point().X-5.0), test.ShouldBeLessThan, 1e-2)
	test.That(t, math.IsNaN(last.Cov.At(0, 0)), test.ShouldBeFalse)
	test.That(t, last.Cov.At(0, 0), test.ShouldBeGreaterThan, 0)

	first, err := e.PoseByName("x0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, last.Cov.At(0, 0), test.ShouldBeGreaterThan, first.Cov.At(0, 0))
}

func observationCloud(t *testing.T) *pointcloud.PointCloud {
	t.Helper()
	points := []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 0.3, Y: 0, Z: 0},
		{X: 0, Y: 0.3, Z: 0},
		{X: 0, Y: 0, Z: 0.3},
		{X: 0.3, Y: 0.3, Z: 0},
		{X: 0.2, Y: 0.1, Z: 0.3},
		{X: 0.1, Y: 0.2, Z: 0.1},
		{X: 0.3, Y: 0.1, Z: 0.2},
		{X: 0.1, Y: 0.3, Z: 0.3},
		{X: 0.2, Y: 0.2, Z: 0.2},
	}
	cloud := pointcloud.New()
	for _, pt := range points {
		test.That(t, cloud.Add(pt), test.ShouldBeNil)
	}
	return cloud
}

func TestDetectLandmarksLoopClosure(t *testing.T) {
	e := newTestESAM(t)
	now := time.Now()
	delta := spatialmath.NewPoseFromPoint(r3.Vector{X: 0.02})

	test.That(t, e.PushPointCloud(observationCloud(t)), test.ShouldBeNil)

	test.That(t, e.AddDeltaPoseFactorVariances(now, delta, smallVariances), test.ShouldBeNil)
	test.That(t, e.AddPoseValue(pwcAt(t, 0.02, 0, 0)), test.ShouldBeNil)
	test.That(t, e.PushPointCloud(observationCloud(t)), test.ShouldBeNil)
	test.That(t, e.ComputeKeypoints(), test.ShouldBeNil)

	// no frontier promoted yet
	_, _, ok := e.PoseCorrespondences()
	test.That(t, ok, test.ShouldBeFalse)

	test.That(t, e.AddDeltaPoseFactorVariances(now, delta, smallVariances), test.ShouldBeNil)
	test.That(t, e.AddPoseValue(pwcAt(t, 0.04, 0, 0)), test.ShouldBeNil)
	test.That(t, e.ComputeKeypoints(), test.ShouldBeNil)

	indices, searched, ok := e.PoseCorrespondences()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, searched, test.ShouldEqual, 0)
	test.That(t, len(indices), test.ShouldBeGreaterThan, 0)

	test.That(t, e.DetectLandmarks(now), test.ShouldBeNil)

	landmarks := e.LandmarkIndex()
	test.That(t, landmarks, test.ShouldBeGreaterThan, 0)
	test.That(t, e.factors.CountLandmarkFactors(), test.ShouldEqual, int(2*landmarks))

	// the accepted landmarks triggered a solve with finite uncertainty
	for _, name := range []string{"x0", "x1"} {
		pwc, err := e.PoseByName(name)
		test.That(t, err, test.ShouldBeNil)
		for i := 0; i < spatialmath.PoseDOF; i++ {
			test.That(t, math.IsNaN(pwc.Cov.At(i, i)), test.ShouldBeFalse)
			test.That(t, math.IsInf(pwc.Cov.At(i, i), 0), test.ShouldBeFalse)
		}
	}
	test.That(t, e.MarginalsString(), test.ShouldContainSubstring, "x0 covariance")

	landmark, err := e.frames.Landmark("l0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, math.IsNaN(landmark.X), test.ShouldBeFalse)
}

func TestDetectLandmarksSkipsMismatchedFeatures(t *testing.T) {
	e := newTestESAM(t)
	now := time.Now()
	test.That(t, e.AddDeltaPoseFactorVariances(now, spatialmath.NewPoseFromPoint(r3.Vector{X: 0.02}), smallVariances), test.ShouldBeNil)
	test.That(t, e.AddPoseValue(pwcAt(t, 0.02, 0, 0)), test.ShouldBeNil)

	keypoints := []features.Keypoint{{Position: r3.Vector{}}, {Position: r3.Vector{X: 0.1}}}
	matched := []features.Descriptor{{1, 0}, {0, 1}}
	short := []features.Descriptor{{1, 0}}

	// a search frame whose keypoint and descriptor counts diverged must
	// not match at all
	test.That(t, e.frames.SetKeypoints("x0", keypoints), test.ShouldBeNil)
	test.That(t, e.frames.SetDescriptors("x0", short), test.ShouldBeNil)
	test.That(t, e.frames.SetKeypoints("x1", keypoints), test.ShouldBeNil)
	test.That(t, e.frames.SetDescriptors("x1", matched), test.ShouldBeNil)
	source := factorgraph.NewSymbol('x', 0)
	candidates := []factorgraph.Symbol{factorgraph.NewSymbol('x', 1)}
	test.That(t, e.featuresCorrespondences(now, source, candidates), test.ShouldBeNil)
	test.That(t, e.LandmarkIndex(), test.ShouldEqual, 0)

	// a diverged candidate is skipped while the search frame is fine
	test.That(t, e.frames.SetDescriptors("x0", matched), test.ShouldBeNil)
	test.That(t, e.frames.SetDescriptors("x1", short), test.ShouldBeNil)
	test.That(t, e.featuresCorrespondences(now, source, candidates), test.ShouldBeNil)
	test.That(t, e.LandmarkIndex(), test.ShouldEqual, 0)
}

func TestPushPointCloudMerges(t *testing.T) {
	e := newTestESAM(t)
	test.That(t, e.PushPointCloud(observationCloud(t)), test.ShouldBeNil)
	first, err := e.PointCloud("x0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, first.Size(), test.ShouldEqual, 10)

	// pushing the same observation again merges and collapses duplicates
	test.That(t, e.PushPointCloud(observationCloud(t)), test.ShouldBeNil)
	merged, err := e.PointCloud("x0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, merged.Size(), test.ShouldEqual, 10)
}

func TestMergedPointCloud(t *testing.T) {
	e := newTestESAM(t)
	now := time.Now()
	test.That(t, e.PushPointCloud(observationCloud(t)), test.ShouldBeNil)
	err := e.AddDeltaPoseFactorVariances(now, spatialmath.NewPoseFromPoint(r3.Vector{X: 5}), smallVariances)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e.AddPoseValue(pwcAt(t, 5, 0, 0)), test.ShouldBeNil)
	test.That(t, e.PushPointCloud(observationCloud(t)), test.ShouldBeNil)

	merged, err := e.MergedPointCloud(false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, merged.Size(), test.ShouldEqual, 20)
	bounds := merged.Bounds()
	test.That(t, bounds.Max().X, test.ShouldAlmostEqual, 5.3)
}

func TestQueriesAndExports(t *testing.T) {
	e := newTestESAM(t)
	now := time.Now()
	test.That(t, e.AddDeltaPoseFactorVariances(now, spatialmath.NewPoseFromPoint(r3.Vector{X: 1}), smallVariances), test.ShouldBeNil)
	test.That(t, e.AddPoseValue(pwcAt(t, 1, 0, 0)), test.ShouldBeNil)

	pwc, name, err := e.LastPoseValueAndID()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, name, test.ShouldEqual, "x1")
	test.That(t, pwc.Pose.Point().X, test.ShouldAlmostEqual, 1)

	traj, err := e.Trajectory()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, traj, test.ShouldHaveLength, 2)
	test.That(t, traj[0].Pose.Point().X, test.ShouldAlmostEqual, 0)
	test.That(t, traj[1].Pose.Point().X, test.ShouldAlmostEqual, 1)

	_, err = e.PoseByName("zz")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, framegraph.IsUnknownFrame(err), test.ShouldBeTrue)

	var dot bytes.Buffer
	test.That(t, e.WriteGraphViz(&dot), test.ShouldBeNil)
	test.That(t, dot.String(), test.ShouldContainSubstring, "digraph")
	test.That(t, dot.String(), test.ShouldContainSubstring, "x0")

	test.That(t, e.FactorGraphString(), test.ShouldContainSubstring, "x0")
}

func TestWriteCurrentPLY(t *testing.T) {
	e := newTestESAM(t)
	now := time.Now()
	test.That(t, e.PushPointCloud(observationCloud(t)), test.ShouldBeNil)
	test.That(t, e.AddDeltaPoseFactorVariances(now, spatialmath.NewPoseFromPoint(r3.Vector{X: 1}), smallVariances), test.ShouldBeNil)
	test.That(t, e.AddPoseValue(pwcAt(t, 1, 0, 0)), test.ShouldBeNil)

	path, err := e.WriteCurrentPLY(t.TempDir()+"/map_", false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, path, test.ShouldContainSubstring, "x0.ply")
	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, "element vertex 10")
}
