// Package graphemb trains unsupervised node embeddings on a graph with node
// features, using neighborhood sampling aggregation models: GraphSAGE-style
// mean aggregation, GAT-style attention and channel attention driven by a
// variational topic model over edge texts.
//
// Typical usage:
//
//	data := must.M1(loader.Load(inFolder))
//	ctx := graphemb.DefaultContext()
//	model := must.M1(graphemb.New(backends.New(), ctx, data))
//	must.M(model.Train())
//	table := must.M1(model.ExtractEmbeddings())
//	must.M(table.Save(path.Join(outFolder, table.Model+".bin")))
package graphemb

import (
	"math/rand/v2"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/graphemb/graphemb/gnn"
	"github.com/graphemb/graphemb/loader"
	"github.com/graphemb/graphemb/sampler"
)

const (
	// ParamModel selects the model kind: "graphsage_mean", "gat" or
	// "channel_gat".
	ParamModel = "model"

	// ParamEpochs is the number of training epochs, each one full pass
	// over the shuffled training pairs.
	ParamEpochs = "epochs"

	// ParamBatchSize is the number of edges per training batch.
	ParamBatchSize = "batch_size"

	// ParamNegSampleSize is the number of negative nodes sampled per
	// batch.
	ParamNegSampleSize = "neg_sample"

	// ParamMaxDegree caps the width of the adjacency table rows.
	ParamMaxDegree = "max_degree"

	// ParamSample1 and ParamSample2 are the neighbor sample counts of the
	// first (deepest hop) and second aggregation layers.
	ParamSample1 = "sample_1"
	ParamSample2 = "sample_2"

	// ParamDim1 and ParamDim2 are the per-head hidden dimensions of the
	// two aggregation layers.
	ParamDim1 = "dim_1"
	ParamDim2 = "dim_2"

	// ParamHead1 and ParamHead2 are the attention head (and topic) counts
	// of the two aggregation layers. Ignored by graphsage_mean.
	ParamHead1 = "head_1"
	ParamHead2 = "head_2"

	// ParamCheckpoint is the directory to save checkpoints to. Empty
	// disables checkpointing.
	ParamCheckpoint = "checkpoint"

	// ParamNumCheckpoints is how many checkpoints to keep.
	ParamNumCheckpoints = "num_checkpoints"

	// ParamSeed seeds every sampler, making runs reproducible.
	ParamSeed = "seed"
)

// DefaultContext returns a context with the default hyperparameters.
func DefaultContext() *context.Context {
	ctx := context.New()
	ctx.RngStateReset()
	ctx.SetParams(map[string]any{
		ParamModel:          "graphsage_mean",
		ParamEpochs:         20,
		ParamBatchSize:      128,
		ParamNegSampleSize:  20,
		ParamMaxDegree:      100,
		ParamSample1:        25,
		ParamSample2:        10,
		ParamDim1:           128,
		ParamDim2:           128,
		ParamHead1:          8,
		ParamHead2:          1,
		ParamCheckpoint:     "",
		ParamNumCheckpoints: 3,
		ParamSeed:           42,

		optimizers.ParamOptimizer:       "adam",
		optimizers.ParamLearningRate:    1e-4,
		optimizers.ParamClipStepByValue: 5.0,
		layers.ParamL2Regularization:    0.0,

		gnn.ParamAggregatorDropout:  0.2,
		gnn.ParamFeedForwardDropout: 0.2,
		gnn.ParamAttentionDropout:   0.2,
		gnn.ParamVAEDropout:         0.2,
	})
	return ctx
}

// NewPlan builds the aggregation plan from the context hyperparameters and
// the dataset's dimensions.
func NewPlan(ctx *context.Context, data *loader.Data) (*gnn.Plan, error) {
	kind, err := gnn.ParseModelKind(context.GetParamOr(ctx, ParamModel, "graphsage_mean"))
	if err != nil {
		return nil, err
	}
	plan := &gnn.Plan{
		Kind:      kind,
		InputDim:  data.InputDim(),
		VocabSize: data.VocabSize,
		Layers: []gnn.LayerInfo{
			{
				NumSamples: context.GetParamOr(ctx, ParamSample1, 25),
				OutputDim:  context.GetParamOr(ctx, ParamDim1, 128),
				NumHeads:   context.GetParamOr(ctx, ParamHead1, 8),
			},
			{
				NumSamples: context.GetParamOr(ctx, ParamSample2, 10),
				OutputDim:  context.GetParamOr(ctx, ParamDim2, 128),
				NumHeads:   context.GetParamOr(ctx, ParamHead2, 1),
			},
		},
	}
	if kind == gnn.ChannelGAT && len(data.EdgeTexts) == 0 {
		return nil, errors.Errorf("%s requires edge texts in the dataset", kind)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// Model holds a plan and the samplers over one dataset, ready to train and
// extract embeddings.
type Model struct {
	Plan *gnn.Plan

	backend   backends.Backend
	ctx       *context.Context
	data      *loader.Data
	adjacency *sampler.AdjacencyTable
	texts     *sampler.EdgeTexts
	seed      uint64
}

// New builds the model for the dataset: it creates the plan from the context
// hyperparameters, builds the adjacency table and edge text table, and
// uploads the static data tables to the context.
func New(backend backends.Backend, ctx *context.Context, data *loader.Data) (*Model, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	plan, err := NewPlan(ctx, data)
	if err != nil {
		return nil, err
	}
	m := &Model{
		Plan:    plan,
		backend: backend,
		ctx:     ctx,
		data:    data,
		seed:    uint64(context.GetParamOr(ctx, ParamSeed, 42)),
	}

	maxDegree := context.GetParamOr(ctx, ParamMaxDegree, 100)
	m.adjacency, err = sampler.BuildAdjacency(data.Graph(), int32(maxDegree), m.rng(rngAdjacency))
	if err != nil {
		return nil, err
	}

	var docsTensor *tensors.Tensor
	if plan.Kind == gnn.ChannelGAT {
		m.texts, err = sampler.NewEdgeTexts(data.VocabSize, data.EdgeTexts)
		if err != nil {
			return nil, err
		}
		docsTensor = tensors.FromValue(m.texts.Table)
		klog.V(1).Infof("%s", m.texts)
	}
	gnn.UploadFrozenData(ctx, data.FeaturesTensor(), docsTensor)

	klog.V(1).Infof("%s", data.Graph())
	klog.V(1).Infof("%s", m.adjacency)
	klog.V(1).Infof("model %s: embedding dimension %d", plan.Kind, plan.OutputDim())
	return m, nil
}

// Keys for the per-purpose random streams, so training and extraction don't
// disturb each other's sequences.
const (
	rngAdjacency uint64 = iota + 1
	rngTraining
	rngExtraction
)

func (m *Model) rng(stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(m.seed, stream))
}
