package gnn

import (
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/batchnorm"
	"github.com/gomlx/gomlx/types/shapes"
)

// VAEStats holds the tensors of one channel topic model evaluation that the
// loss needs: the input texts, their reconstruction, the inferred topic
// weights and the parameters of the prior and posterior distributions.
//
// All tensors are shaped [numNodes, numSamples, ...]: texts and their
// reconstruction over the vocabulary, the rest over topics.
type VAEStats struct {
	Texts, Recon, Theta *Node

	PriorMean, PriorVar *Node

	PostMean, PostVar, PostLogVar *Node
}

const (
	vaeHiddenDim = 100

	// reconEpsilon keeps the reconstruction log away from log(0).
	reconEpsilon = 1e-10
)

// ChannelVAE infers per-edge topic weights from the text attached to each
// (node, sampled neighbor) pair.
//
// The prior over topics is a logistic normal approximation of a Dirichlet
// whose concentration comes from the element-wise product of the node pair's
// hidden vectors, projected onto the topics. The posterior is an encoder over
// the edge text. Topic weights theta are a softmax of the reparameterized
// posterior sample: a single noise vector is drawn per evaluation and shared
// by every edge in the batch, and at inference the noise is zero, so
// inference is deterministic.
//
// self is shaped [numNodes, width], neigh [numNodes, numSamples, width] and
// texts [numNodes, numSamples, vocabSize]. Theta in the result is shaped
// [numNodes, numSamples, numTopics].
func ChannelVAE(ctx *context.Context, self, neigh, texts *Node, numTopics int) *VAEStats {
	g := self.Graph()
	dtype := self.DType()
	width := self.Shape().Dimensions[1]
	vocabSize := texts.Shape().Dimensions[2]
	dropout := context.GetParamOr(ctx, ParamVAEDropout, 0.0)

	// Prior from the pair interaction: a plays the role of the Dirichlet
	// concentration.
	pair := Mul(InsertAxes(self, 1), neigh)
	phi := ctx.VariableWithShape("phi", shapes.Make(dtype, width, numTopics)).ValueGraph(g)
	a := Exp(Softmax(Einsum("bsw,wt->bst", pair, phi)))
	logA := Log(a)
	numTopicsF := float64(numTopics)
	priorMean := Sub(logA, ReduceAndKeep(logA, ReduceMean, -1))
	priorVar := Add(
		MulScalar(Inverse(a), 1.0-2.0/numTopicsF),
		MulScalar(ReduceAndKeep(Inverse(a), ReduceSum, -1), 1.0/(numTopicsF*numTopicsF)))
	priorMean = Softmax(priorMean)
	priorVar = Softmax(priorVar)

	// Posterior encoder over the edge texts.
	hidden := Softplus(layers.DenseWithBias(ctx.In("encoder_0"), texts, vaeHiddenDim))
	hidden = Softplus(layers.DenseWithBias(ctx.In("encoder_1"), hidden, vaeHiddenDim))
	if dropout > 0 {
		hidden = layers.DropoutStatic(ctx.In("encoder"), hidden, dropout)
	}
	postMean := Softmax(batchnorm.New(ctx.In("mean_norm"),
		layers.DenseWithBias(ctx.In("mean"), hidden, numTopics), -1).Done())
	postLogVar := Log(Softmax(batchnorm.New(ctx.In("log_var_norm"),
		layers.DenseWithBias(ctx.In("log_var"), hidden, numTopics), -1).Done()))
	postVar := Exp(postLogVar)

	// Reparameterization with one shared noise vector.
	var eps *Node
	if ctx.IsTraining(g) {
		eps = ctx.RandomNormal(g, shapes.Make(dtype, 1, 1, numTopics))
	} else {
		eps = Zeros(g, shapes.Make(dtype, 1, 1, numTopics))
	}
	z := Add(postMean, Mul(Sqrt(postVar), eps))

	// Decoder: topic weights times the topic-word matrix.
	theta := Softmax(z)
	if dropout > 0 {
		theta = layers.DropoutStatic(ctx.In("theta"), theta, dropout)
	}
	betaVar := ctx.VariableWithShape("beta", shapes.Make(dtype, numTopics, vocabSize)).ValueGraph(g)
	beta := Softmax(batchnorm.New(ctx.In("beta_norm"), betaVar, -1).Done())
	recon := Einsum("bst,tv->bsv", theta, beta)

	return &VAEStats{
		Texts:      texts,
		Recon:      recon,
		Theta:      theta,
		PriorMean:  priorMean,
		PriorVar:   priorVar,
		PostMean:   postMean,
		PostVar:    postVar,
		PostLogVar: postLogVar,
	}
}
