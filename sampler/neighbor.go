package sampler

import (
	"math/rand/v2"

	. "github.com/gomlx/exceptions"
)

// NeighborSampler draws uniform samples with replacement from the rows of an
// AdjacencyTable.
type NeighborSampler struct {
	table *AdjacencyTable
	rng   *rand.Rand
}

// NewNeighborSampler creates a sampler over the given table.
func NewNeighborSampler(table *AdjacencyTable, rng *rand.Rand) *NeighborSampler {
	return &NeighborSampler{table: table, rng: rng}
}

// Sample draws k neighbors with replacement for each of the given nodes and
// returns them flattened, k consecutive entries per input node. k may exceed
// the table's row width.
func (s *NeighborSampler) Sample(nodes []int32, k int) []int32 {
	if k <= 0 {
		Panicf("number of neighbors to sample must be positive, got %d", k)
	}
	sampled := make([]int32, 0, len(nodes)*k)
	width := int(s.table.MaxDegree)
	for _, node := range nodes {
		if node < 0 || node >= s.table.NumNodes {
			Panicf("node %d out of range [0, %d)", node, s.table.NumNodes)
		}
		row := s.table.Row(node)
		for i := 0; i < k; i++ {
			sampled = append(sampled, row[s.rng.IntN(width)])
		}
	}
	return sampled
}
