// Package features holds 3D keypoints and their local descriptors, and
// matches descriptor sets across frames.
package features

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Keypoint is a salient 3D point detected in a frame's point cloud.
type Keypoint struct {
	Position r3.Vector
	Scale    float64
}

// Descriptor is a fixed-length numeric signature of the local geometry
// around a keypoint. All descriptors matched against each other must share
// one length.
type Descriptor []float64

// KeypointConfig parameterizes scale-space keypoint detection.
type KeypointConfig struct {
	MinScale        float64
	Octaves         int
	ScalesPerOctave int
	MinContrast     float64
}

// DescriptorConfig parameterizes local descriptor computation.
type DescriptorConfig struct {
	NormalRadius  float64
	FeatureRadius float64
}

// Extractor detects keypoints in a cloud of points and describes each one.
// Implementations must return descriptors parallel to keypoints, same length
// and order.
type Extractor interface {
	DetectAndDescribe(points []r3.Vector) ([]Keypoint, []Descriptor, error)
}

// SquaredDistance returns the squared Euclidean distance between two
// descriptors of equal length.
func SquaredDistance(a, b Descriptor) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.Errorf("descriptor lengths differ: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum, nil
}
