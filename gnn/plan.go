// Package gnn implements unsupervised node embedding models over sampled
// neighborhoods.
//
// Three model kinds are supported: mean aggregation (GraphSAGE style),
// multi-head attention (GAT style), and channel attention, where the
// attention coefficients are gated by topic weights inferred by a
// variational model over the texts attached to each edge.
//
// The models are trained on an edge reconstruction objective: embeddings of
// adjacent nodes should have high affinity, embeddings of negatively sampled
// node pairs low affinity.
package gnn

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ModelKind selects the aggregation model.
type ModelKind int

const (
	// MeanSAGE aggregates neighborhoods with a mean followed by separate
	// dense transforms of self and neighbors.
	MeanSAGE ModelKind = iota

	// GAT aggregates neighborhoods with multi-head self-attention.
	GAT

	// ChannelGAT is GAT with the attention coefficients multiplied by
	// per-edge topic weights from a variational topic model. It requires
	// edge texts.
	ChannelGAT
)

// String implements fmt.Stringer.
func (k ModelKind) String() string {
	switch k {
	case MeanSAGE:
		return "graphsage_mean"
	case GAT:
		return "gat"
	case ChannelGAT:
		return "channel_gat"
	}
	return fmt.Sprintf("ModelKind(%d)", int(k))
}

// ParseModelKind converts a model name to its ModelKind.
func ParseModelKind(name string) (ModelKind, error) {
	switch strings.ToLower(name) {
	case "graphsage_mean", "sage":
		return MeanSAGE, nil
	case "gat":
		return GAT, nil
	case "channel_gat", "cgat":
		return ChannelGAT, nil
	}
	return 0, errors.Errorf("unknown model %q, valid values are graphsage_mean, gat and channel_gat", name)
}

// LayerInfo configures one aggregation layer.
type LayerInfo struct {
	// NumSamples is the number of neighbors sampled per node for the hop
	// this layer contracts. Layer 0 holds the deepest hop's sample count.
	NumSamples int

	// OutputDim is the hidden dimension produced by this layer, per head.
	OutputDim int

	// NumHeads is the number of attention heads for GAT, and doubles as
	// the number of topics for the channel model. Ignored by MeanSAGE.
	NumHeads int
}

// Plan describes a full aggregation model: its kind, the input feature
// dimension and one LayerInfo per aggregation layer.
type Plan struct {
	Kind     ModelKind
	InputDim int

	// VocabSize is the edge text vocabulary size. Only used by ChannelGAT.
	VocabSize int

	Layers []LayerInfo
}

// NumLayers returns the number of aggregation layers, which is also the
// number of sampled hops.
func (p *Plan) NumLayers() int { return len(p.Layers) }

// Validate checks the plan is consistent.
func (p *Plan) Validate() error {
	if len(p.Layers) == 0 {
		return errors.New("plan needs at least one layer")
	}
	if p.InputDim <= 0 {
		return errors.Errorf("input feature dimension must be positive, got %d", p.InputDim)
	}
	for i, layer := range p.Layers {
		if layer.NumSamples <= 0 {
			return errors.Errorf("layer %d: number of samples must be positive, got %d", i, layer.NumSamples)
		}
		if layer.OutputDim <= 0 {
			return errors.Errorf("layer %d: output dimension must be positive, got %d", i, layer.OutputDim)
		}
		if p.Kind != MeanSAGE && layer.NumHeads <= 0 {
			return errors.Errorf("layer %d: number of heads must be positive for %s, got %d",
				i, p.Kind, layer.NumHeads)
		}
	}
	if p.Kind == ChannelGAT && p.VocabSize <= 0 {
		return errors.Errorf("%s requires a positive edge text vocabulary size, got %d", p.Kind, p.VocabSize)
	}
	return nil
}

// SupportSizes returns, per seed node, the number of nodes at each hop of the
// sampled neighborhood tree: 1 at hop 0, growing by the per-hop sample count.
// The deepest hop is sampled with Layers[0].NumSamples, the hop adjacent to
// the seeds with Layers[NumLayers()-1].NumSamples.
func (p *Plan) SupportSizes() []int {
	k := p.NumLayers()
	support := make([]int, k+1)
	support[0] = 1
	for hop := 0; hop < k; hop++ {
		support[hop+1] = support[hop] * p.Layers[k-1-hop].NumSamples
	}
	return support
}

// WidthBefore returns the hidden width entering the given layer.
func (p *Plan) WidthBefore(layer int) int {
	if layer == 0 {
		return p.InputDim
	}
	return p.WidthAfter(layer - 1)
}

// WidthAfter returns the hidden width produced by the given layer.
//
// MeanSAGE concatenates the self and neighbor transforms, so every layer
// doubles its output dimension. GAT concatenates its heads except at the
// final layer, where heads are averaged. ChannelGAT averages heads at every
// layer.
func (p *Plan) WidthAfter(layer int) int {
	info := p.Layers[layer]
	switch p.Kind {
	case MeanSAGE:
		return 2 * info.OutputDim
	case GAT:
		if layer == p.NumLayers()-1 {
			return info.OutputDim
		}
		return info.NumHeads * info.OutputDim
	default:
		return info.OutputDim
	}
}

// OutputDim returns the dimension of the final embeddings.
func (p *Plan) OutputDim() int {
	return p.WidthAfter(p.NumLayers() - 1)
}
