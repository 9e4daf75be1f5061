package graphemb

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/metrics"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/graphemb/graphemb/gnn"
	"github.com/graphemb/graphemb/sampler"
)

// Train runs the configured number of epochs of the edge reconstruction
// objective: per batch of training pairs it samples neighborhoods for the
// sources, the targets and a fresh draw of negative nodes, and optimizes the
// summed softplus affinity losses, plus the variational losses for
// channel_gat. Progress and the mean reciprocal rank metric are reported on
// a progress bar.
func (m *Model) Train() error {
	ctx := m.ctx
	batchSize := context.GetParamOr(ctx, ParamBatchSize, 128)
	negSampleSize := context.GetParamOr(ctx, ParamNegSampleSize, 20)
	epochs := context.GetParamOr(ctx, ParamEpochs, 20)

	trainRng := m.rng(rngTraining)
	batches, err := sampler.NewEdgeBatch(m.data.NumNodes, m.data.TrainPairs(), batchSize, trainRng)
	if err != nil {
		return err
	}
	neighbors := sampler.NewNeighborSampler(m.adjacency, trainRng)
	negatives, err := sampler.NewNegativeSampler(m.adjacency.Degrees, m.seed)
	if err != nil {
		return err
	}
	ds := gnn.NewDataset("train", m.Plan, batches, neighbors, negatives, m.texts, negSampleSize)

	checkpoint, err := m.buildCheckpoint()
	if err != nil {
		return err
	}

	trainer := train.NewTrainer(m.backend, ctx, gnn.BuildModelFn(m.Plan),
		gnn.EdgeLoss,
		optimizers.FromContext(ctx),
		[]metrics.Interface{gnn.NewMRRMetric()}, // trainMetrics
		[]metrics.Interface{gnn.NewMRRMetric()}) // evalMetrics
	loop := train.NewLoop(trainer)
	commandline.AttachProgressBar(loop)

	// Checkpoint every minute of training.
	if checkpoint != nil {
		train.PeriodicCallback(loop, time.Minute, true, "saving checkpoint", 100,
			func(loop *train.Loop, metrics []*tensors.Tensor) error {
				return checkpoint.Save()
			})
	}

	klog.V(1).Infof("training %s for %d epochs, %s pairs in %s batches per epoch",
		m.Plan.Kind, epochs, humanize.Comma(int64(batches.NumEdges())),
		humanize.Comma(int64(batches.NumEdgeBatches())))
	if _, err := loop.RunEpochs(ds, epochs); err != nil {
		return errors.WithMessage(err, "while training")
	}
	if checkpoint != nil {
		return checkpoint.Save()
	}
	return nil
}

// buildCheckpoint sets up checkpointing if ParamCheckpoint is set. The frozen
// data tables are excluded from saving, they are rebuilt from the dataset.
func (m *Model) buildCheckpoint() (*checkpoints.Handler, error) {
	dir := context.GetParamOr(m.ctx, ParamCheckpoint, "")
	if dir == "" {
		return nil, nil
	}
	keep := context.GetParamOr(m.ctx, ParamNumCheckpoints, 3)
	var varsToExclude []*context.Variable
	m.ctx.InAbsPath(gnn.FrozenDataScope).EnumerateVariablesInScope(func(v *context.Variable) {
		varsToExclude = append(varsToExclude, v)
	})
	checkpoint, err := checkpoints.Build(m.ctx).
		Dir(dir).Keep(keep).ExcludeVars(varsToExclude...).Done()
	if err != nil {
		return nil, errors.WithMessagef(err, "while setting up checkpoint to %q", dir)
	}
	return checkpoint, nil
}
