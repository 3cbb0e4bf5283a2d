// Package esam is the estimation backend of a SLAM pipeline: it maintains a
// growing graph of robot poses and landmarks, finds where newly observed
// surroundings overlap previously visited space, associates features across
// overlapping regions into landmark constraints, and periodically re-solves
// the joint estimate of all poses and landmarks with their uncertainty.
//
// The estimation (factor) graph and the spatial/attribute (frame) graph are
// two views of the same state; every relative factor has exactly one
// mirrored transform edge, added in the same operation.
package esam

import (
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/jhidalgocarrio/esam/factorgraph"
	"github.com/jhidalgocarrio/esam/features"
	"github.com/jhidalgocarrio/esam/framegraph"
	"github.com/jhidalgocarrio/esam/pointcloud"
	"github.com/jhidalgocarrio/esam/spatialmath"
)

// Config parameterizes the graph manager. The zero value gets the platform
// defaults filled in by New, and any individual zero-valued field is likewise
// replaced with its default. Zero is therefore not a usable explicit setting;
// a value like MatchPercentage that must effectively gate everything out
// should be set to a small positive number instead.
type Config struct {
	// PoseKey and LandmarkKey are the symbol categories for the two
	// variable kinds.
	PoseKey     byte
	LandmarkKey byte
	// LandmarkVar is the sensor noise attributed to a landmark
	// observation, per axis.
	LandmarkVar [3]float64
	// MatchPercentage scales the median correspondence score; matches
	// scoring above MatchPercentage*median are rejected.
	MatchPercentage float64
	// Per-axis margins inflating a pose pair into its swept bounding
	// volume. These supersede the statistically derived sigmas.
	LateralMargin      float64
	LongitudinalMargin float64
	VerticalMargin     float64
	// DownsampleLeaf is the voxel size for point cloud reduction.
	DownsampleLeaf float64
	// LoopClosureGap is the index gap beyond which a candidate is flagged
	// as a probable large loop closure.
	LoopClosureGap uint64

	Keypoint  features.KeypointConfig
	Feature   features.DescriptorConfig
	Clean     pointcloud.CleanConfig
	Extractor features.Extractor
	Cleaner   pointcloud.Cleaner
}

// DefaultConfig returns the platform defaults.
func DefaultConfig() Config {
	return Config{
		PoseKey:            'x',
		LandmarkKey:        'l',
		LandmarkVar:        [3]float64{0.01, 0.01, 0.01},
		MatchPercentage:    1.0,
		LateralMargin:      0.05,
		LongitudinalMargin: 0.4,
		VerticalMargin:     1.0,
		DownsampleLeaf:     0.01,
		LoopClosureGap:     10,
		Keypoint: features.KeypointConfig{
			MinScale:        0.06,
			Octaves:         3,
			ScalesPerOctave: 3,
			MinContrast:     10.0,
		},
		Feature: features.DescriptorConfig{
			NormalRadius:  0.1,
			FeatureRadius: 1.0,
		},
	}
}

// ESAM owns the dual estimation/spatial representation of the map. All
// methods serialize on an internal mutex so the dual-graph invariant holds
// even when wrapped by a service.
type ESAM struct {
	mu     sync.Mutex
	conf   Config
	logger golog.Logger

	factors *factorgraph.Graph
	frames  *framegraph.Graph

	poseIdx     uint64
	landmarkIdx uint64

	marginals *factorgraph.Marginals

	// the active search frontier and the one being staged for the next
	// finished frame
	framesToSearch             []factorgraph.Symbol
	candidatesToSearch         []factorgraph.Symbol
	frameToSearchLandmarks     *factorgraph.Symbol
	candidateToSearchLandmarks *factorgraph.Symbol
}

// New creates a graph manager seeded with an absolute prior on pose 0.
func New(initial spatialmath.Pose, cov *mat.SymDense, conf Config, logger golog.Logger) (*ESAM, error) {
	conf = applyDefaults(conf)
	if cov == nil || cov.SymmetricDim() != spatialmath.PoseDOF {
		return nil, errors.New("initial pose needs a full 6x6 covariance")
	}
	if logger == nil {
		logger = golog.NewLogger("esam")
	}
	e := &ESAM{
		conf:    conf,
		logger:  logger,
		factors: factorgraph.NewGraph(),
		frames:  framegraph.NewGraph(),
	}

	first := e.poseSymbol(0)
	e.factors.Add(&factorgraph.PriorFactor{
		Key:  first,
		Pose: initial,
		Cov:  spatialmath.CopyCovariance(cov),
	})
	if err := e.frames.AddFrame(first.String()); err != nil {
		return nil, err
	}
	pwc, err := spatialmath.NewPoseWithCovariance(initial, spatialmath.CopyCovariance(cov))
	if err != nil {
		return nil, err
	}
	if err := e.frames.SetPose(first.String(), pwc); err != nil {
		return nil, err
	}
	return e, nil
}

// NewFromVariances is New with a diagonal initial uncertainty.
func NewFromVariances(initial spatialmath.Pose, variances [6]float64, conf Config, logger golog.Logger) (*ESAM, error) {
	return New(initial, spatialmath.CovarianceFromDiagonal(variances[:]), conf, logger)
}

// applyDefaults fills zero-valued config fields with the platform defaults.
func applyDefaults(conf Config) Config {
	def := DefaultConfig()
	if conf.PoseKey == 0 {
		conf.PoseKey = def.PoseKey
	}
	if conf.LandmarkKey == 0 {
		conf.LandmarkKey = def.LandmarkKey
	}
	if conf.LandmarkVar == [3]float64{} {
		conf.LandmarkVar = def.LandmarkVar
	}
	if conf.MatchPercentage == 0 {
		conf.MatchPercentage = def.MatchPercentage
	}
	if conf.LateralMargin == 0 {
		conf.LateralMargin = def.LateralMargin
	}
	if conf.LongitudinalMargin == 0 {
		conf.LongitudinalMargin = def.LongitudinalMargin
	}
	if conf.VerticalMargin == 0 {
		conf.VerticalMargin = def.VerticalMargin
	}
	if conf.DownsampleLeaf == 0 {
		conf.DownsampleLeaf = def.DownsampleLeaf
	}
	if conf.LoopClosureGap == 0 {
		conf.LoopClosureGap = def.LoopClosureGap
	}
	if conf.Keypoint == (features.KeypointConfig{}) {
		conf.Keypoint = def.Keypoint
	}
	if conf.Feature == (features.DescriptorConfig{}) {
		conf.Feature = def.Feature
	}
	return conf
}

func (e *ESAM) poseSymbol(idx uint64) factorgraph.Symbol {
	return factorgraph.NewSymbol(e.conf.PoseKey, idx)
}

func (e *ESAM) landmarkSymbol(idx uint64) factorgraph.Symbol {
	return factorgraph.NewSymbol(e.conf.LandmarkKey, idx)
}

// newPoseIndex allocates the next pose index. Indices are contiguous from 0,
// one per accepted delta-pose constraint.
func (e *ESAM) newPoseIndex() uint64 {
	e.poseIdx++
	return e.poseIdx
}

// newLandmarkIndex allocates the next landmark index.
func (e *ESAM) newLandmarkIndex() uint64 {
	idx := e.landmarkIdx
	e.landmarkIdx++
	return idx
}

// PoseIndex returns the index of the current pose. It equals the number of
// delta-pose factors accepted since initialization.
func (e *ESAM) PoseIndex() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.poseIdx
}

// LandmarkIndex returns the number of landmarks created so far.
func (e *ESAM) LandmarkIndex() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.landmarkIdx
}

// CurrentPoseID returns the frame name of the current pose.
func (e *ESAM) CurrentPoseID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.poseSymbol(e.poseIdx).String()
}

// CurrentLandmarkID returns the frame name the next landmark will get.
func (e *ESAM) CurrentLandmarkID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.landmarkSymbol(e.landmarkIdx).String()
}

// FactorGraphString renders the estimation graph for diagnostics.
func (e *ESAM) FactorGraphString() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.factors.String()
}
