package gnn

import (
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train/metrics"
)

// EdgeLoss is the unsupervised edge reconstruction objective.
//
// predictions holds the three embedding tensors output by the model: sources
// and targets of the batch edges, shaped [batchSize, dim], and the negative
// samples, shaped [negSampleSize, dim]. labels is unused.
//
// Every edge contributes Softplus(-affinity(src, dst)), and every
// (source, negative) pair Softplus(affinity(src, neg)), affinity being the
// dot product of the normalized embeddings. The summed loss is divided by
// the batch size.
func EdgeLoss(labels, predictions []*Node) *Node {
	src, dst, neg := predictions[0], predictions[1], predictions[2]
	batchSize := src.Shape().Dimensions[0]

	posAffinity := ReduceSum(Mul(src, dst), -1)  // [batchSize]
	negAffinity := Einsum("bd,nd->bn", src, neg) // [batchSize, negSampleSize]

	loss := Add(
		ReduceAllSum(Softplus(Neg(posAffinity))),
		ReduceAllSum(Softplus(negAffinity)))
	return DivScalar(loss, float64(batchSize))
}

// MRRGraph computes the batch mean reciprocal rank of each edge's target
// among the negative samples, ranked by affinity to the edge's source. Ties
// rank the target below the tied negatives.
func MRRGraph(ctx *context.Context, labels, predictions []*Node) *Node {
	src, dst, neg := predictions[0], predictions[1], predictions[2]
	posAffinity := InsertAxes(ReduceSum(Mul(src, dst), -1), -1) // [batchSize, 1]
	negAffinity := Einsum("bd,nd->bn", src, neg)                // [batchSize, negSampleSize]

	outranked := ConvertDType(GreaterOrEqual(negAffinity, posAffinity), src.DType())
	ranks := AddScalar(ReduceSum(outranked, -1), 1)
	return ReduceAllMean(Inverse(ranks))
}

// NewMRRMetric returns a mean metric over MRRGraph.
func NewMRRMetric() metrics.Interface {
	return metrics.NewMeanMetric("Mean Reciprocal Rank", "MRR", "mrr", MRRGraph, nil)
}

// VAELoss computes the reconstruction and KL divergence terms for one
// evaluation of the channel topic model.
//
// The reconstruction term is the negative text log-likelihood under the
// decoded topic mixture. The KL term is the divergence between the posterior
// and the logistic normal prior, with its partial sums taken over the
// samples axis and the constant term using the number of topics.
func VAELoss(stats *VAEStats) (recon, kl *Node) {
	numTopics := stats.PostMean.Shape().Dimensions[2]

	logRecon := Log(AddScalar(stats.Recon, reconEpsilon))
	recon = ReduceAllMean(Neg(ReduceSum(Mul(stats.Texts, logRecon), 1)))

	kl = MulScalar(ReduceSum(Div(stats.PostVar, stats.PriorVar), 1), 0.5)
	diff := Sub(stats.PriorMean, stats.PostMean)
	kl = Add(kl, MulScalar(ReduceSum(Mul(Div(diff, stats.PriorVar), diff), 1), 0.5))
	kl = AddScalar(kl, -0.5*float64(numTopics))
	kl = Add(kl, MulScalar(
		Sub(ReduceMean(Log(stats.PriorVar), 1), ReduceMean(stats.PostLogVar, 1)), 0.5))
	kl = ReduceAllMean(kl)
	return
}
