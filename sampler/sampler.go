// Package sampler builds fixed-width neighborhood samples from an in-memory
// undirected graph.
//
// It provides the pieces needed to assemble mini-batches for neighborhood
// aggregating models:
//
//   - AdjacencyTable: a dense [NumNodes, MaxDegree] table of neighbor ids,
//     sub-sampled (or padded by re-sampling) from the raw adjacency lists.
//   - NeighborSampler: uniform sampling with replacement from table rows.
//   - NegativeSampler: unigram sampling proportional to degree^distortion.
//   - EdgeBatch: shuffled iteration over training edges, and sequential
//     iteration over nodes for embedding extraction.
//
// All randomness is drawn from explicitly seeded generators, so batches are
// reproducible for a fixed seed.
package sampler

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Graph holds an undirected graph as an edge list.
//
// Node ids are dense in [0, NumNodes). Each edge appears once, in either
// orientation; adjacency construction inserts both directions.
type Graph struct {
	NumNodes int32

	// Edges are (source, target) pairs. Self-edges are not allowed.
	Edges [][2]int32
}

// Validate checks node ids are within range and there are no self-edges.
func (g *Graph) Validate() error {
	if g.NumNodes <= 0 {
		return errors.Errorf("graph must have at least one node, got NumNodes=%d", g.NumNodes)
	}
	for i, edge := range g.Edges {
		for _, node := range edge {
			if node < 0 || node >= g.NumNodes {
				return errors.Errorf("edge #%d (%d, %d) refers to node %d, out of range [0, %d)",
					i, edge[0], edge[1], node, g.NumNodes)
			}
		}
		if edge[0] == edge[1] {
			return errors.Errorf("edge #%d is a self-edge on node %d", i, edge[0])
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (g *Graph) String() string {
	return fmt.Sprintf("Graph: %s nodes, %s edges",
		humanize.Comma(int64(g.NumNodes)), humanize.Comma(int64(len(g.Edges))))
}
