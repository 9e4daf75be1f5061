package graphemb

import (
	"encoding/gob"
	"os"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"

	"github.com/graphemb/graphemb/gnn"
	"github.com/graphemb/graphemb/sampler"
)

// EmbeddingTable holds the extracted embedding of every node.
type EmbeddingTable struct {
	// RunID identifies the extraction run.
	RunID string

	// Model is the name of the model kind that produced the embeddings.
	Model string

	// Dim is the embedding dimension.
	Dim int

	// NodeIDs[i] is the node whose embedding is Vectors[i].
	NodeIDs []int32
	Vectors [][]float32
}

// ExtractEmbeddings computes the embedding of every node of the graph, in
// mini-batches over the trained model.
//
// Extraction runs the model in inference mode: dropout is disabled and the
// variational noise is zero. Neighborhoods are still sampled, but from a
// dedicated random stream restarted at a fixed seed, so extracting twice
// from the same model yields identical embeddings.
func (m *Model) ExtractEmbeddings() (*EmbeddingTable, error) {
	ctx := m.ctx
	batchSize := context.GetParamOr(ctx, ParamBatchSize, 128)
	rng := m.rng(rngExtraction)
	batches, err := sampler.NewEdgeBatch(m.data.NumNodes, m.data.TrainPairs(), batchSize, rng)
	if err != nil {
		return nil, err
	}
	neighbors := sampler.NewNeighborSampler(m.adjacency, rng)
	ds := gnn.NewDataset("extract", m.Plan, batches, neighbors, nil, m.texts, 0)

	plan := m.Plan
	exec := context.NewExec(m.backend, ctx, func(ctx *context.Context, inputs []*Node) *Node {
		g := inputs[0].Graph()
		ctx.SetTraining(g, false)
		k := plan.NumLayers()
		var docRows []*Node
		if plan.Kind == gnn.ChannelGAT {
			docRows = inputs[k+1:]
		}
		embeddings, _ := gnn.Embeddings(ctx.Checked(false), plan, inputs[:k+1], docRows)
		return embeddings
	})

	table := &EmbeddingTable{
		RunID:   uuid.NewString(),
		Model:   plan.Kind.String(),
		Dim:     plan.OutputDim(),
		NodeIDs: make([]int32, 0, m.data.NumNodes),
		Vectors: make([][]float32, 0, m.data.NumNodes),
	}
	bar := progressbar.Default(int64(batches.NumNodeBatches()), "extracting embeddings")
	batches.ResetNodes()
	err = exceptions.TryCatch[error](func() {
		for !batches.EndNodes() {
			seeds := batches.NextNodeBatch()
			inputs := ds.BranchTensors(seeds)
			args := make([]any, len(inputs))
			for i, input := range inputs {
				args[i] = input
			}
			results := exec.Call(args...)
			table.NodeIDs = append(table.NodeIDs, seeds...)
			table.Vectors = append(table.Vectors, results[0].Value().([][]float32)...)
			_ = bar.Add(1)
		}
	})
	_ = bar.Finish()
	if err != nil {
		return nil, errors.WithMessage(err, "while extracting embeddings")
	}
	return table, nil
}

// Save writes the table gob-encoded to the given path.
func (e *EmbeddingTable) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create embeddings file %q", path)
	}
	if err := gob.NewEncoder(f).Encode(e); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to encode embeddings to %q", path)
	}
	return errors.Wrapf(f.Close(), "failed to close embeddings file %q", path)
}

// LoadEmbeddings reads a table saved with Save.
func LoadEmbeddings(path string) (*EmbeddingTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open embeddings file %q", path)
	}
	defer func() { _ = f.Close() }()
	var e EmbeddingTable
	if err := gob.NewDecoder(f).Decode(&e); err != nil {
		return nil, errors.Wrapf(err, "failed to decode embeddings from %q", path)
	}
	return &e, nil
}
