package features

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// descriptorBins is the signature length produced by GridExtractor, chosen
// to match the FPFH signature length so stored descriptor sets stay
// interchangeable with a PCL-backed extractor.
const descriptorBins = 33

// GridExtractor is a deterministic Extractor used when no sensor-specific
// detector is wired in: every Stride-th point becomes a keypoint, described
// by a normalized histogram of distances to the other keypoints within the
// feature radius.
type GridExtractor struct {
	Keypoint   KeypointConfig
	Descriptor DescriptorConfig
	Stride     int
}

// DetectAndDescribe implements Extractor.
func (e *GridExtractor) DetectAndDescribe(points []r3.Vector) ([]Keypoint, []Descriptor, error) {
	if e.Descriptor.FeatureRadius <= 0 {
		return nil, nil, errors.New("feature radius must be positive")
	}
	stride := e.Stride
	if stride < 1 {
		stride = 1
	}
	keypoints := make([]Keypoint, 0, len(points)/stride+1)
	for i := 0; i < len(points); i += stride {
		keypoints = append(keypoints, Keypoint{Position: points[i], Scale: e.Keypoint.MinScale})
	}
	descriptors := make([]Descriptor, len(keypoints))
	for i, kp := range keypoints {
		desc := make(Descriptor, descriptorBins)
		var total float64
		for j, other := range keypoints {
			if i == j {
				continue
			}
			d := kp.Position.Sub(other.Position).Norm()
			if d >= e.Descriptor.FeatureRadius {
				continue
			}
			bin := int(d / e.Descriptor.FeatureRadius * descriptorBins)
			desc[bin]++
			total++
		}
		if total > 0 {
			for b := range desc {
				desc[b] /= total
			}
		}
		descriptors[i] = desc
	}
	return keypoints, descriptors, nil
}
