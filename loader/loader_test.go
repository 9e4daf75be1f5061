package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testData() *Data {
	return &Data{
		NumNodes: 3,
		Edges:    [][2]int32{{0, 1}, {1, 2}},
		Features: [][]float32{{1, 2}, {3, 4}, {5, 6}},
		VocabSize: 4,
		EdgeTexts: map[[2]int32]map[int32]int32{
			{0, 1}: {0: 1, 2: 3},
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, testData().Validate())

	d := testData()
	d.Features = d.Features[:2]
	assert.Error(t, d.Validate(), "feature row count mismatch")

	d = testData()
	d.Features[1] = []float32{1}
	assert.Error(t, d.Validate(), "ragged feature matrix")

	d = testData()
	d.EdgeTexts[[2]int32{0, 5}] = map[int32]int32{0: 1}
	assert.Error(t, d.Validate(), "edge text on unknown node")

	d = testData()
	d.Walks = [][2]int32{{0, 7}}
	assert.Error(t, d.Validate(), "walk pair on unknown node")
}

func TestTrainPairs(t *testing.T) {
	d := testData()
	assert.Equal(t, d.Edges, d.TrainPairs(), "falls back to edges")
	d.Walks = [][2]int32{{0, 2}, {2, 0}}
	assert.Equal(t, d.Walks, d.TrainPairs())
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	d := testData()
	require.NoError(t, d.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, d, loaded)
	assert.Equal(t, 2, loaded.InputDim())
	assert.Equal(t, int32(3), loaded.Graph().NumNodes)

	_, err = Load(t.TempDir())
	assert.Error(t, err, "missing dataset file")
}
