package sampler

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// NegativeSampler draws nodes with replacement from the unigram distribution
// proportional to degree^distortion. Isolated nodes have weight zero and are
// never drawn.
type NegativeSampler struct {
	dist distuv.Categorical
}

// DegreeDistortion is the exponent applied to node degrees when building the
// negative sampling distribution.
const DegreeDistortion = 0.75

// NewNegativeSampler creates a sampler over the given degree distribution.
func NewNegativeSampler(degrees []int32, seed uint64) (*NegativeSampler, error) {
	if len(degrees) == 0 {
		return nil, errors.New("negative sampler needs a non-empty degree distribution")
	}
	weights := make([]float64, len(degrees))
	var total float64
	for i, degree := range degrees {
		if degree < 0 {
			return nil, errors.Errorf("node %d has negative degree %d", i, degree)
		}
		weights[i] = math.Pow(float64(degree), DegreeDistortion)
		total += weights[i]
	}
	if total == 0 {
		return nil, errors.New("all nodes are isolated, cannot build negative sampling distribution")
	}
	return &NegativeSampler{
		dist: distuv.NewCategorical(weights, rand.NewSource(seed)),
	}, nil
}

// Sample draws n node ids with replacement.
func (s *NegativeSampler) Sample(n int) []int32 {
	sampled := make([]int32, n)
	for i := range sampled {
		sampled[i] = int32(s.dist.Rand())
	}
	return sampled
}
