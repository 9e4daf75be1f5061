package sampler

import (
	"fmt"
	"math/rand/v2"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// AdjacencyTable stores for every node a fixed-width row of neighbor ids.
//
// Rows are built from the raw adjacency lists: nodes with more than MaxDegree
// neighbors get a uniform sub-sample without replacement; nodes with fewer get
// padded by re-sampling their neighbors with replacement; isolated nodes get a
// row of their own id, so sampling them yields self-loops instead of failing.
//
// Degrees keeps the true degree of each node, before capping or padding. It
// drives the negative sampling distribution.
type AdjacencyTable struct {
	NumNodes  int32
	MaxDegree int32

	// Neighbors is the flattened [NumNodes, MaxDegree] table.
	Neighbors []int32

	// Degrees are the original degrees, one per node.
	Degrees []int32
}

// BuildAdjacency creates the fixed-width adjacency table for the graph.
// maxDegree must be positive. The rng drives the sub-sampling of rows of
// high-degree nodes and the padding of low-degree ones.
func BuildAdjacency(g *Graph, maxDegree int32, rng *rand.Rand) (*AdjacencyTable, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if maxDegree <= 0 {
		return nil, errors.Errorf("maxDegree must be positive, got %d", maxDegree)
	}

	lists := make([][]int32, g.NumNodes)
	for _, edge := range g.Edges {
		lists[edge[0]] = append(lists[edge[0]], edge[1])
		lists[edge[1]] = append(lists[edge[1]], edge[0])
	}

	table := &AdjacencyTable{
		NumNodes:  g.NumNodes,
		MaxDegree: maxDegree,
		Neighbors: make([]int32, int(g.NumNodes)*int(maxDegree)),
		Degrees:   make([]int32, g.NumNodes),
	}
	for node, neighbors := range lists {
		table.Degrees[node] = int32(len(neighbors))
		row := table.Neighbors[node*int(maxDegree) : (node+1)*int(maxDegree)]
		switch {
		case len(neighbors) == 0:
			for i := range row {
				row[i] = int32(node)
			}
		case len(neighbors) >= int(maxDegree):
			perm := rng.Perm(len(neighbors))
			for i := range row {
				row[i] = neighbors[perm[i]]
			}
		default:
			// Fewer neighbors than the row width: pad by re-sampling.
			for i := range row {
				row[i] = neighbors[rng.IntN(len(neighbors))]
			}
		}
	}
	return table, nil
}

// Row returns the neighbor row for the given node. The slice aliases the
// table, don't modify it.
func (t *AdjacencyTable) Row(node int32) []int32 {
	return t.Neighbors[int(node)*int(t.MaxDegree) : (int(node)+1)*int(t.MaxDegree)]
}

// String implements fmt.Stringer.
func (t *AdjacencyTable) String() string {
	return fmt.Sprintf("AdjacencyTable: %s nodes, max degree %d (%s entries)",
		humanize.Comma(int64(t.NumNodes)), t.MaxDegree, humanize.Comma(int64(len(t.Neighbors))))
}
