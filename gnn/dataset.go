package gnn

import (
	"io"
	"sync"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/graphemb/graphemb/sampler"
)

// Dataset yields training batches for the edge reconstruction objective.
// It implements train.Dataset.
//
// Each batch expands three branches of sampled neighborhoods, the sources
// and targets of a batch of edges and a fresh draw of negative samples, and
// yields their flattened node ids (plus edge document rows for ChannelGAT)
// as int32 tensors. One pass over the shuffled edges is one epoch, ended
// with io.EOF. Reset reshuffles and rewinds.
type Dataset struct {
	name string
	plan *Plan

	mu        sync.Mutex
	batches   *sampler.EdgeBatch
	neighbors *sampler.NeighborSampler
	negatives *sampler.NegativeSampler
	texts     *sampler.EdgeTexts

	negSampleSize int
}

// NewDataset creates a training dataset over the given samplers. texts must
// be non-nil exactly for ChannelGAT plans.
func NewDataset(name string, plan *Plan, batches *sampler.EdgeBatch,
	neighbors *sampler.NeighborSampler, negatives *sampler.NegativeSampler,
	texts *sampler.EdgeTexts, negSampleSize int) *Dataset {
	return &Dataset{
		name:          name,
		plan:          plan,
		batches:       batches,
		neighbors:     neighbors,
		negatives:     negatives,
		texts:         texts,
		negSampleSize: negSampleSize,
	}
}

// Name implements train.Dataset.
func (d *Dataset) Name() string { return d.name }

// Reset implements train.Dataset: it reshuffles the edges and restarts the
// epoch.
func (d *Dataset) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches.Shuffle()
	d.batches.ResetEdges()
}

// Yield implements train.Dataset. The spec is the dataset's *Plan, constant
// across batches so the computation graph is only built once per batch
// shape. No labels are yielded, the objective is a function of the model
// outputs only.
func (d *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.batches.EndEdges() {
		return nil, nil, nil, io.EOF
	}
	src, dst := d.batches.NextEdgeBatch()
	neg := d.negatives.Sample(d.negSampleSize)

	spec = d.plan
	inputs = make([]*tensors.Tensor, 0, 3*d.plan.InputsPerBranch())
	for _, seeds := range [][]int32{src, dst, neg} {
		inputs = append(inputs, d.branchTensors(seeds)...)
	}
	return
}

// BranchTensors expands one branch of seeds into its input tensors. It is
// used both by Yield and by embedding extraction, which feeds node batches
// instead of edge endpoints.
func (d *Dataset) BranchTensors(seeds []int32) []*tensors.Tensor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.branchTensors(seeds)
}

func (d *Dataset) branchTensors(seeds []int32) []*tensors.Tensor {
	k := d.plan.NumLayers()
	ids := make([][]int32, k+1)
	ids[0] = seeds
	var docRows [][]int32
	if d.plan.Kind == ChannelGAT {
		docRows = make([][]int32, k)
	}
	for hop := 0; hop < k; hop++ {
		numSamples := d.plan.Layers[k-1-hop].NumSamples
		ids[hop+1] = d.neighbors.Sample(ids[hop], numSamples)
		if docRows != nil {
			rows := make([]int32, len(ids[hop+1]))
			for i, child := range ids[hop+1] {
				parent := ids[hop][i/numSamples]
				rows[i] = d.texts.RowFor(parent, child)
			}
			docRows[hop] = rows
		}
	}

	out := make([]*tensors.Tensor, 0, d.plan.InputsPerBranch())
	for _, hopIds := range ids {
		out = append(out, tensors.FromValue(hopIds))
	}
	for _, rows := range docRows {
		out = append(out, tensors.FromValue(rows))
	}
	return out
}
