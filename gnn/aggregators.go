package gnn

import (
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
)

const (
	// ParamAggregatorDropout is the dropout rate applied to the inputs of
	// the mean aggregator. Defaults to 0.0.
	ParamAggregatorDropout = "dropout"

	// ParamFeedForwardDropout is the dropout rate applied to the inputs
	// and transformed values of the attention aggregators. Defaults to 0.0.
	ParamFeedForwardDropout = "ffd_dropout"

	// ParamAttentionDropout is the dropout rate applied to the attention
	// coefficients. Defaults to 0.0.
	ParamAttentionDropout = "attn_dropout"

	// ParamVAEDropout is the dropout rate used inside the channel topic
	// model. Defaults to 0.0.
	ParamVAEDropout = "vae_dropout"
)

// AttentionLeakyReluAlpha is the negative slope of the LeakyRelu applied to
// attention logits.
const AttentionLeakyReluAlpha = 0.2

// MeanAggregate contracts sampled neighborhoods by averaging the neighbors
// and concatenating dense transforms of the self and neighbor vectors.
//
// self is shaped [numNodes, width] and neigh [numNodes, numSamples, width].
// The result is shaped [numNodes, 2*outputDim]. act may be nil for the final
// layer.
func MeanAggregate(ctx *context.Context, self, neigh *Node, outputDim int, act func(*Node) *Node) *Node {
	dropout := context.GetParamOr(ctx, ParamAggregatorDropout, 0.0)
	if dropout > 0 {
		self = layers.DropoutStatic(ctx, self, dropout)
		neigh = layers.DropoutStatic(ctx, neigh, dropout)
	}
	neighMean := ReduceMean(neigh, 1)
	fromSelf := layers.Dense(ctx.In("self"), self, false, outputDim)
	fromNeigh := layers.Dense(ctx.In("neighbors"), neighMean, false, outputDim)
	output := Concatenate([]*Node{fromSelf, fromNeigh}, -1)
	if act != nil {
		output = act(output)
	}
	return output
}

// AttentionAggregate contracts sampled neighborhoods with one head of
// self-attention over the sequence [self; neighbors].
//
// A shared dense scores each position; the attention logits for the self
// position against every position are the self score plus each positional
// score, passed through a LeakyRelu and a softmax. If channel is non-nil it
// must be shaped [numNodes, numSamples, 1] and its weights multiply the
// attention coefficients of the neighbor positions, the self position keeps
// weight one.
//
// The result is shaped [numNodes, outputDim]. act may be nil for the final
// layer.
func AttentionAggregate(ctx *context.Context, self, neigh, channel *Node, outputDim int, act func(*Node) *Node) *Node {
	ffdDropout := context.GetParamOr(ctx, ParamFeedForwardDropout, 0.0)
	attnDropout := context.GetParamOr(ctx, ParamAttentionDropout, 0.0)
	numNodes := self.Shape().Dimensions[0]

	// [numNodes, 1+numSamples, width]
	vecs := Concatenate([]*Node{InsertAxes(self, 1), neigh}, 1)
	if ffdDropout > 0 {
		vecs = layers.DropoutStatic(ctx.In("inputs"), vecs, ffdDropout)
	}

	transformed := layers.DenseWithBias(ctx.In("transform"), vecs, outputDim)
	scores := layers.DenseWithBias(ctx.In("score"), transformed, 1) // [numNodes, 1+numSamples, 1]
	selfScore := Slice(scores, AxisRange(), AxisRange(0, 1))        // [numNodes, 1, 1]
	logits := Add(selfScore, TransposeAllDims(scores, 0, 2, 1))     // [numNodes, 1, 1+numSamples]
	coefs := Softmax(activations.LeakyReluWithAlpha(logits, AttentionLeakyReluAlpha))

	if channel != nil {
		// Neighbor coefficients are gated by their channel weight.
		gates := Concatenate([]*Node{OnesLike(selfScore), channel}, 1)
		coefs = Mul(coefs, TransposeAllDims(gates, 0, 2, 1))
	}
	if attnDropout > 0 {
		coefs = layers.DropoutStatic(ctx.In("coefficients"), coefs, attnDropout)
	}
	if ffdDropout > 0 {
		transformed = layers.DropoutStatic(ctx.In("values"), transformed, ffdDropout)
	}

	output := Einsum("bqs,bsd->bqd", coefs, transformed) // [numNodes, 1, outputDim]
	output = Reshape(output, numNodes, outputDim)
	if act != nil {
		output = act(output)
	}
	return output
}

// elu matches the attention aggregators' default activation.
func elu(x *Node) *Node {
	return Where(GreaterThan(x, ZerosLike(x)), x, AddScalar(Exp(x), -1))
}
