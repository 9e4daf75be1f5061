package graphemb

import (
	"path/filepath"
	"testing"

	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphemb/graphemb/gnn"
	"github.com/graphemb/graphemb/loader"
)

// testData is a ring of 6 nodes with a chord, features and per-edge texts.
func testData() *loader.Data {
	edges := [][2]int32{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}, {5, 0}, {0, 3}}
	features := make([][]float32, 6)
	for i := range features {
		features[i] = make([]float32, 4)
		for j := range features[i] {
			features[i][j] = float32((i+1)*(j+1)) / 24.0
		}
	}
	texts := make(map[[2]int32]map[int32]int32, len(edges))
	for i, edge := range edges {
		texts[edge] = map[int32]int32{
			int32(i % 5):       1,
			int32((i + 2) % 5): 2,
		}
	}
	return &loader.Data{
		NumNodes:  6,
		Edges:     edges,
		Features:  features,
		VocabSize: 5,
		EdgeTexts: texts,
	}
}

func testContext(model string) *context.Context {
	ctx := DefaultContext()
	ctx.SetParams(map[string]any{
		ParamModel:         model,
		ParamEpochs:        1,
		ParamBatchSize:     3,
		ParamNegSampleSize: 4,
		ParamMaxDegree:     3,
		ParamSample1:       3,
		ParamSample2:       2,
		ParamDim1:          4,
		ParamDim2:          3,
		ParamHead1:         2,
		ParamHead2:         2,
	})
	return ctx
}

func TestNewPlan(t *testing.T) {
	ctx := testContext("gat")
	plan, err := NewPlan(ctx, testData())
	require.NoError(t, err)
	assert.Equal(t, gnn.GAT, plan.Kind)
	assert.Equal(t, 4, plan.InputDim)
	assert.Equal(t, []int{1, 2, 6}, plan.SupportSizes())

	ctx = testContext("channel_gat")
	data := testData()
	data.EdgeTexts = nil
	_, err = NewPlan(ctx, data)
	assert.Error(t, err, "channel model without edge texts")
}

func TestTrainAndExtract(t *testing.T) {
	for _, model := range []string{"graphsage_mean", "gat", "channel_gat"} {
		t.Run(model, func(t *testing.T) {
			backend := graphtest.BuildTestBackend()
			ctx := testContext(model)
			m, err := New(backend, ctx, testData())
			require.NoError(t, err)

			require.NoError(t, m.Train())
			assert.NotZero(t, optimizers.GetGlobalStep(m.ctx), "training must have stepped")

			table, err := m.ExtractEmbeddings()
			require.NoError(t, err)
			assert.Equal(t, model, table.Model)
			assert.Equal(t, m.Plan.OutputDim(), table.Dim)
			require.Len(t, table.NodeIDs, 6)
			require.Len(t, table.Vectors, 6)
			for i, id := range table.NodeIDs {
				assert.Equal(t, int32(i), id)
				assert.Len(t, table.Vectors[i], table.Dim)
			}

			// Extraction is deterministic: same samples, no dropout, zero noise.
			again, err := m.ExtractEmbeddings()
			require.NoError(t, err)
			assert.Equal(t, table.Vectors, again.Vectors)
			assert.NotEqual(t, table.RunID, again.RunID)
		})
	}
}

func TestEmbeddingTableSaveLoad(t *testing.T) {
	table := &EmbeddingTable{
		RunID:   "run-1",
		Model:   "gat",
		Dim:     2,
		NodeIDs: []int32{0, 1},
		Vectors: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
	}
	path := filepath.Join(t.TempDir(), "gat.bin")
	require.NoError(t, table.Save(path))

	loaded, err := LoadEmbeddings(path)
	require.NoError(t, err)
	assert.Equal(t, table, loaded)

	_, err = LoadEmbeddings(filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)
}
