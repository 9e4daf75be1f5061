package gnn

import (
	"io"
	"math"
	"math/rand/v2"
	"testing"

	_ "github.com/gomlx/gomlx/backends/default"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/graphemb/graphemb/sampler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSetup builds a small graph with features and edge texts and the
// samplers to expand neighborhoods over it.
func testSetup(t *testing.T) (*sampler.Graph, *sampler.NeighborSampler, *sampler.EdgeTexts) {
	g := &sampler.Graph{
		NumNodes: 4,
		Edges:    [][2]int32{{0, 1}, {1, 2}, {2, 3}, {3, 0}},
	}
	rng := rand.New(rand.NewPCG(3, 0))
	table, err := sampler.BuildAdjacency(g, 3, rng)
	require.NoError(t, err)

	texts, err := sampler.NewEdgeTexts(5, map[[2]int32]map[int32]int32{
		{0, 1}: {0: 1, 1: 2},
		{1, 2}: {2: 1},
		{2, 3}: {3: 3},
		{3, 0}: {4: 1, 0: 1},
	})
	require.NoError(t, err)
	return g, sampler.NewNeighborSampler(table, rng), texts
}

func testFeatures(numNodes, dim int) *tensors.Tensor {
	features := make([][]float32, numNodes)
	for i := range features {
		features[i] = make([]float32, dim)
		for j := range features[i] {
			features[i][j] = float32(i*dim+j)/float32(numNodes*dim) - 0.5
		}
	}
	return tensors.FromValue(features)
}

func docTableTensor(texts *sampler.EdgeTexts) *tensors.Tensor {
	return tensors.FromValue(texts.Table)
}

// expand replicates the dataset's branch expansion for a hand-picked plan.
func expand(p *Plan, neighbors *sampler.NeighborSampler, texts *sampler.EdgeTexts, seeds []int32) []*tensors.Tensor {
	ds := NewDataset("test", p, nil, neighbors, nil, texts, 0)
	return ds.BranchTensors(seeds)
}

func callExec(exec *context.Exec, inputs []*tensors.Tensor) []*tensors.Tensor {
	args := make([]any, len(inputs))
	for i, input := range inputs {
		args[i] = input
	}
	return exec.Call(args...)
}

func rowNorms(values [][]float32) []float64 {
	norms := make([]float64, len(values))
	for i, row := range values {
		var sum float64
		for _, v := range row {
			sum += float64(v) * float64(v)
		}
		norms[i] = math.Sqrt(sum)
	}
	return norms
}

func TestEmbeddingsMeanSAGE(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	_, neighbors, _ := testSetup(t)
	p := &Plan{
		Kind:     MeanSAGE,
		InputDim: 3,
		Layers: []LayerInfo{
			{NumSamples: 3, OutputDim: 4},
			{NumSamples: 2, OutputDim: 2},
		},
	}
	require.NoError(t, p.Validate())

	ctx := context.New()
	UploadFrozenData(ctx, testFeatures(4, 3), nil)
	exec := context.NewExec(backend, ctx, func(ctx *context.Context, ids []*Node) *Node {
		embeddings, stats := Embeddings(ctx.Checked(false), p, ids, nil)
		require.Empty(t, stats, "mean aggregation has no variational stats")
		return embeddings
	})

	seeds := []int32{0, 2}
	inputs := expand(p, neighbors, nil, seeds)
	require.Len(t, inputs, 3)
	assert.Equal(t, 2*2, inputs[1].Shape().Dimensions[0])
	assert.Equal(t, 2*2*3, inputs[2].Shape().Dimensions[0])

	results := callExec(exec, inputs)
	embeddings := results[0].Value().([][]float32)
	require.Len(t, embeddings, len(seeds))
	require.Len(t, embeddings[0], p.OutputDim())
	for _, norm := range rowNorms(embeddings) {
		assert.InDelta(t, 1.0, norm, 1e-4, "embeddings are L2 normalized")
	}
}

func TestEmbeddingsGAT(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	_, neighbors, _ := testSetup(t)
	p := &Plan{
		Kind:     GAT,
		InputDim: 3,
		Layers: []LayerInfo{
			{NumSamples: 3, OutputDim: 4, NumHeads: 2},
			{NumSamples: 2, OutputDim: 2, NumHeads: 2},
		},
	}
	require.NoError(t, p.Validate())

	ctx := context.New()
	UploadFrozenData(ctx, testFeatures(4, 3), nil)
	exec := context.NewExec(backend, ctx, func(ctx *context.Context, ids []*Node) *Node {
		embeddings, _ := Embeddings(ctx.Checked(false), p, ids, nil)
		return embeddings
	})

	seeds := []int32{1, 2, 3}
	results := callExec(exec, expand(p, neighbors, nil, seeds))
	embeddings := results[0].Value().([][]float32)
	require.Len(t, embeddings, len(seeds))
	require.Len(t, embeddings[0], p.OutputDim())
	for _, norm := range rowNorms(embeddings) {
		assert.InDelta(t, 1.0, norm, 1e-4)
	}
}

func TestEmbeddingsChannelGAT(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	_, neighbors, texts := testSetup(t)
	p := &Plan{
		Kind:      ChannelGAT,
		InputDim:  3,
		VocabSize: texts.VocabSize,
		Layers: []LayerInfo{
			{NumSamples: 3, OutputDim: 4, NumHeads: 3},
			{NumSamples: 2, OutputDim: 4, NumHeads: 3},
		},
	}
	require.NoError(t, p.Validate())

	ctx := context.New()
	UploadFrozenData(ctx, testFeatures(4, 3), docTableTensor(texts))
	exec := context.NewExec(backend, ctx, func(ctx *context.Context, inputs []*Node) []*Node {
		ctx = ctx.Checked(false)
		k := p.NumLayers()
		embeddings, stats := Embeddings(ctx, p, inputs[:k+1], inputs[k+1:])
		require.Len(t, stats, 3, "one variational evaluation per (layer, hop)")
		var lossSum *Node
		for _, s := range stats {
			recon, kl := VAELoss(s)
			if lossSum == nil {
				lossSum = Add(recon, kl)
			} else {
				lossSum = Add(lossSum, Add(recon, kl))
			}
		}
		return []*Node{embeddings, lossSum}
	})

	seeds := []int32{0, 3}
	results := callExec(exec, expand(p, neighbors, texts, seeds))
	embeddings := results[0].Value().([][]float32)
	require.Len(t, embeddings, len(seeds))
	require.Len(t, embeddings[0], p.OutputDim())
	for _, norm := range rowNorms(embeddings) {
		assert.InDelta(t, 1.0, norm, 1e-4)
	}

	lossSum := float64(results[1].Value().(float32))
	assert.False(t, math.IsNaN(lossSum) || math.IsInf(lossSum, 0),
		"variational losses must be finite, got %v", lossSum)
}

func TestDatasetYield(t *testing.T) {
	g, neighbors, _ := testSetup(t)
	rng := rand.New(rand.NewPCG(11, 0))
	batches, err := sampler.NewEdgeBatch(g.NumNodes, g.Edges, 3, rng)
	require.NoError(t, err)
	table, err := sampler.BuildAdjacency(g, 3, rng)
	require.NoError(t, err)
	negatives, err := sampler.NewNegativeSampler(table.Degrees, 5)
	require.NoError(t, err)

	p := &Plan{
		Kind:     MeanSAGE,
		InputDim: 3,
		Layers: []LayerInfo{
			{NumSamples: 3, OutputDim: 4},
			{NumSamples: 2, OutputDim: 2},
		},
	}
	ds := NewDataset("train", p, batches, neighbors, negatives, nil, 7)
	assert.Equal(t, "train", ds.Name())

	var numBatches int
	for {
		spec, inputs, labels, err := ds.Yield()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		numBatches++
		assert.Same(t, p, spec.(*Plan))
		assert.Nil(t, labels)
		require.Len(t, inputs, 3*p.InputsPerBranch())
		// Negative branch has its own batch dimension.
		assert.Equal(t, 7, inputs[2*p.InputsPerBranch()].Shape().Dimensions[0])
	}
	assert.Equal(t, batches.NumEdgeBatches(), numBatches)

	// Reset starts a new epoch.
	ds.Reset()
	_, _, _, err = ds.Yield()
	assert.NoError(t, err)
}
