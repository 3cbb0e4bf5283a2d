package features

import (
	"sort"

	"github.com/pkg/errors"
)

// Correspondences finds, for every source descriptor, the index of its
// nearest target descriptor and the squared distance between them. Both
// returned slices parallel the source set.
func Correspondences(source, target []Descriptor) ([]int, []float64, error) {
	if len(source) == 0 || len(target) == 0 {
		return nil, nil, errors.New("cannot match empty descriptor sets")
	}
	indices := make([]int, len(source))
	scores := make([]float64, len(source))
	for i, src := range source {
		bestIdx := -1
		bestDist := 0.0
		for j, tgt := range target {
			d, err := SquaredDistance(src, tgt)
			if err != nil {
				return nil, nil, err
			}
			if bestIdx < 0 || d < bestDist {
				bestIdx, bestDist = j, d
			}
		}
		indices[i] = bestIdx
		scores[i] = bestDist
	}
	return indices, scores, nil
}

// MedianScore returns the middle element of the sorted scores. The input is
// left untouched.
func MedianScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	tmp := make([]float64, len(scores))
	copy(tmp, scores)
	sort.Float64s(tmp)
	return tmp[len(tmp)/2]
}
