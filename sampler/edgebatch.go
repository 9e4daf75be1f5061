package sampler

import (
	"math/rand/v2"

	"github.com/pkg/errors"
)

// EdgeBatch iterates over training edges in shuffled mini-batches, and over
// all nodes in sequential mini-batches for embedding extraction.
//
// The two cursors are independent: edge iteration drives training epochs,
// node iteration drives inference over every node exactly once.
type EdgeBatch struct {
	edges     [][2]int32
	numNodes  int32
	batchSize int
	rng       *rand.Rand

	edgeCursor int
	nodeCursor int32
}

// NewEdgeBatch creates a batcher over the given training pairs, typically the
// graph's edges or co-occurrence pairs from random walks. It fails when there
// are no pairs, there is nothing to train on.
func NewEdgeBatch(numNodes int32, pairs [][2]int32, batchSize int, rng *rand.Rand) (*EdgeBatch, error) {
	if len(pairs) == 0 {
		return nil, errors.New("no training pairs to batch")
	}
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}
	b := &EdgeBatch{
		edges:     make([][2]int32, len(pairs)),
		numNodes:  numNodes,
		batchSize: batchSize,
		rng:       rng,
	}
	copy(b.edges, pairs)
	return b, nil
}

// NumEdges returns the number of training edges.
func (b *EdgeBatch) NumEdges() int { return len(b.edges) }

// NumEdgeBatches returns the number of batches per epoch, counting the final
// partial batch.
func (b *EdgeBatch) NumEdgeBatches() int {
	return (len(b.edges) + b.batchSize - 1) / b.batchSize
}

// Shuffle reorders the edges. Called at the start of each epoch.
func (b *EdgeBatch) Shuffle() {
	b.rng.Shuffle(len(b.edges), func(i, j int) {
		b.edges[i], b.edges[j] = b.edges[j], b.edges[i]
	})
}

// ResetEdges rewinds the edge cursor to the start of the epoch.
func (b *EdgeBatch) ResetEdges() { b.edgeCursor = 0 }

// EndEdges reports whether the epoch's edges are exhausted.
func (b *EdgeBatch) EndEdges() bool { return b.edgeCursor >= len(b.edges) }

// NextEdgeBatch returns the source and target nodes of the next batch of
// edges. The final batch of an epoch may be smaller than the batch size.
func (b *EdgeBatch) NextEdgeBatch() (src, dst []int32) {
	end := min(b.edgeCursor+b.batchSize, len(b.edges))
	src = make([]int32, 0, end-b.edgeCursor)
	dst = make([]int32, 0, end-b.edgeCursor)
	for _, edge := range b.edges[b.edgeCursor:end] {
		src = append(src, edge[0])
		dst = append(dst, edge[1])
	}
	b.edgeCursor = end
	return
}

// NumNodes returns the total number of nodes iterated by node batches.
func (b *EdgeBatch) NumNodes() int32 { return b.numNodes }

// NumNodeBatches returns the number of node batches, counting the final
// partial batch.
func (b *EdgeBatch) NumNodeBatches() int {
	return (int(b.numNodes) + b.batchSize - 1) / b.batchSize
}

// ResetNodes rewinds the node cursor.
func (b *EdgeBatch) ResetNodes() { b.nodeCursor = 0 }

// EndNodes reports whether all nodes have been returned.
func (b *EdgeBatch) EndNodes() bool { return b.nodeCursor >= b.numNodes }

// NextNodeBatch returns the next batch of node ids, in increasing order.
func (b *EdgeBatch) NextNodeBatch() []int32 {
	end := min(b.nodeCursor+int32(b.batchSize), b.numNodes)
	nodes := make([]int32, 0, end-b.nodeCursor)
	for node := b.nodeCursor; node < end; node++ {
		nodes = append(nodes, node)
	}
	b.nodeCursor = end
	return nodes
}
