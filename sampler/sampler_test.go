package sampler

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGraph(t *testing.T) *Graph {
	// 0-1, 0-2, 0-3, 1-2; node 4 is isolated.
	g := &Graph{
		NumNodes: 5,
		Edges:    [][2]int32{{0, 1}, {0, 2}, {0, 3}, {1, 2}},
	}
	require.NoError(t, g.Validate())
	return g
}

func TestGraphValidate(t *testing.T) {
	g := &Graph{NumNodes: 2, Edges: [][2]int32{{0, 2}}}
	assert.Error(t, g.Validate(), "out-of-range node id")

	g = &Graph{NumNodes: 2, Edges: [][2]int32{{1, 1}}}
	assert.Error(t, g.Validate(), "self-edge")

	g = &Graph{NumNodes: 0}
	assert.Error(t, g.Validate(), "empty graph")
}

func TestBuildAdjacency(t *testing.T) {
	g := testGraph(t)
	rng := rand.New(rand.NewPCG(42, 0))
	table, err := BuildAdjacency(g, 2, rng)
	require.NoError(t, err)

	assert.Equal(t, []int32{3, 2, 2, 1}, table.Degrees[:4])
	assert.Equal(t, int32(0), table.Degrees[4])

	// Node 0 has 3 neighbors for a row of width 2: entries must be distinct
	// neighbors of 0.
	row0 := table.Row(0)
	assert.Len(t, row0, 2)
	assert.NotEqual(t, row0[0], row0[1])
	for _, n := range row0 {
		assert.Contains(t, []int32{1, 2, 3}, n)
	}

	// Node 3 has a single neighbor, its row is padded with it.
	assert.Equal(t, []int32{0, 0}, table.Row(3))

	// Isolated node 4 self-loops.
	assert.Equal(t, []int32{4, 4}, table.Row(4))
}

func TestNeighborSampler(t *testing.T) {
	g := testGraph(t)
	rng := rand.New(rand.NewPCG(7, 0))
	table, err := BuildAdjacency(g, 3, rng)
	require.NoError(t, err)
	s := NewNeighborSampler(table, rng)

	// k larger than the row width is fine, sampling is with replacement.
	sampled := s.Sample([]int32{0, 3}, 5)
	require.Len(t, sampled, 10)
	for _, n := range sampled[:5] {
		assert.Contains(t, []int32{1, 2, 3}, n, "neighbors of node 0")
	}
	for _, n := range sampled[5:] {
		assert.Equal(t, int32(0), n, "node 3 only neighbors node 0")
	}

	assert.Panics(t, func() { s.Sample([]int32{99}, 1) })
	assert.Panics(t, func() { s.Sample([]int32{0}, 0) })
}

func TestNegativeSampler(t *testing.T) {
	_, err := NewNegativeSampler([]int32{0, 0, 0}, 1)
	assert.Error(t, err, "all nodes isolated")

	s, err := NewNegativeSampler([]int32{3, 2, 1, 0}, 13)
	require.NoError(t, err)
	counts := make([]int, 4)
	for _, n := range s.Sample(10000) {
		counts[n]++
	}
	assert.Zero(t, counts[3], "zero-degree node must never be drawn")
	assert.Greater(t, counts[0], counts[2], "higher degree nodes are drawn more often")
	for i := 0; i < 3; i++ {
		assert.Greater(t, counts[i], 0)
	}
}

func TestEdgeTexts(t *testing.T) {
	texts := map[[2]int32]map[int32]int32{
		{1, 0}: {0: 2, 3: 1},
		{1, 2}: {2: 5},
	}
	e, err := NewEdgeTexts(4, texts)
	require.NoError(t, err)
	assert.Equal(t, 2, e.NumDocs())

	// Both orientations resolve to the same row.
	row := e.RowFor(0, 1)
	require.NotZero(t, row)
	assert.Equal(t, row, e.RowFor(1, 0))
	assert.Equal(t, []float32{2, 0, 0, 1}, e.Table[row])

	// Missing pairs map to the reserved zero row.
	assert.Zero(t, e.RowFor(0, 3))
	assert.Equal(t, []float32{0, 0, 0, 0}, e.Table[0])

	_, err = NewEdgeTexts(4, map[[2]int32]map[int32]int32{{0, 1}: {7: 1}})
	assert.Error(t, err, "word id out of vocabulary")
}

func TestEdgeBatch(t *testing.T) {
	g := testGraph(t)
	_, err := NewEdgeBatch(3, nil, 2, rand.New(rand.NewPCG(1, 0)))
	assert.Error(t, err, "no edges")

	b, err := NewEdgeBatch(g.NumNodes, g.Edges, 3, rand.New(rand.NewPCG(1, 0)))
	require.NoError(t, err)
	assert.Equal(t, 4, b.NumEdges())
	assert.Equal(t, 2, b.NumEdgeBatches())

	b.Shuffle()
	var seen [][2]int32
	for !b.EndEdges() {
		src, dst := b.NextEdgeBatch()
		require.Equal(t, len(src), len(dst))
		for i := range src {
			seen = append(seen, [2]int32{src[i], dst[i]})
		}
	}
	assert.ElementsMatch(t, g.Edges, seen, "one epoch visits every edge once")

	// Second epoch after reset.
	b.ResetEdges()
	assert.False(t, b.EndEdges())
	src, _ := b.NextEdgeBatch()
	assert.Len(t, src, 3)

	// Node iteration covers every node in order.
	var nodes []int32
	for !b.EndNodes() {
		nodes = append(nodes, b.NextNodeBatch()...)
	}
	assert.Equal(t, []int32{0, 1, 2, 3, 4}, nodes)
	assert.Equal(t, 2, b.NumNodeBatches())
}
