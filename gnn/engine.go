package gnn

import (
	"fmt"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/tensors"
)

const (
	// FrozenDataScope is the context scope holding the static data tables
	// used by the models: the node feature matrix and, for ChannelGAT, the
	// edge document table. Variables there are not trainable and are not
	// part of checkpoints.
	FrozenDataScope = "/graph_data"

	// FeaturesVarName is the [numNodes, inputDim] feature matrix.
	FeaturesVarName = "features"

	// EdgeDocsVarName is the [numDocs+1, vocabSize] edge document table,
	// with the all-zero document at row 0.
	EdgeDocsVarName = "edge_documents"
)

// UploadFrozenData creates the frozen variables with the static data tables,
// so model graphs can gather from them. edgeDocs may be nil for models that
// don't use edge texts.
func UploadFrozenData(ctx *context.Context, features, edgeDocs *tensors.Tensor) {
	ctxData := ctx.InAbsPath(FrozenDataScope)
	v := ctxData.VariableWithValue(FeaturesVarName, features)
	v.Trainable = false
	if edgeDocs != nil {
		v = ctxData.VariableWithValue(EdgeDocsVarName, edgeDocs)
		v.Trainable = false
	}
}

// frozenVar fetches a static data table as a graph node.
func frozenVar(ctx *context.Context, g *Graph, name string) *Node {
	v := ctx.GetVariableByScopeAndName(FrozenDataScope, name)
	if v == nil {
		Panicf("missing frozen data variable %q, UploadFrozenData must be called before building the model", name)
		panic(nil) // Quiet linter.
	}
	return v.ValueGraph(g)
}

// Embeddings builds the recursive aggregation for one branch of sampled
// neighborhoods and returns the L2-normalized embeddings of the seed nodes.
//
// ids holds NumLayers()+1 int tensors: the seeds at index 0, then the sampled
// nodes of each hop, flattened. For ChannelGAT, docRows holds NumLayers()
// tensors with the edge document row of each (parent, sampled child) pair;
// otherwise it must be nil.
//
// Each layer contracts every hop against the next deeper one. The same layer
// variables are reused by every hop and every branch, so the caller's context
// must have variable checking disabled. For ChannelGAT the per-evaluation
// VAE statistics are also returned, for the variational loss terms.
func Embeddings(ctx *context.Context, p *Plan, ids, docRows []*Node) (embeddings *Node, stats []*VAEStats) {
	g := ids[0].Graph()
	k := p.NumLayers()
	if len(ids) != k+1 {
		Panicf("model with %d layers requires %d id tensors per branch, got %d", k, k+1, len(ids))
	}
	if p.Kind == ChannelGAT && len(docRows) != k {
		Panicf("%s requires %d edge document tensors per branch, got %d", p.Kind, k, len(docRows))
	}

	features := frozenVar(ctx, g, FeaturesVarName)
	hidden := make([]*Node, k+1)
	for hop, hopIds := range ids {
		hidden[hop] = Gather(features, InsertAxes(hopIds, -1))
	}
	var docs []*Node
	if p.Kind == ChannelGAT {
		table := frozenVar(ctx, g, EdgeDocsVarName)
		docs = make([]*Node, k)
		for hop, rows := range docRows {
			docs[hop] = Gather(table, InsertAxes(rows, -1))
		}
	}

	for layer := 0; layer < k; layer++ {
		ctxLayer := ctx.In(fmt.Sprintf("layer_%d", layer))
		isFinal := layer == k-1
		width := p.WidthBefore(layer)
		info := p.Layers[layer]
		next := make([]*Node, 0, k-layer)
		for hop := 0; hop < k-layer; hop++ {
			self := hidden[hop]
			numNodes := self.Shape().Dimensions[0]
			numSamples := p.Layers[k-1-hop].NumSamples
			neigh := Reshape(hidden[hop+1], numNodes, numSamples, width)

			var act func(*Node) *Node
			var contracted *Node
			switch p.Kind {
			case MeanSAGE:
				if !isFinal {
					act = activations.Relu
				}
				contracted = MeanAggregate(ctxLayer, self, neigh, info.OutputDim, act)

			case GAT:
				if !isFinal {
					act = elu
				}
				heads := make([]*Node, info.NumHeads)
				for head := range heads {
					heads[head] = AttentionAggregate(ctxLayer.In(fmt.Sprintf("head_%d", head)),
						self, neigh, nil, info.OutputDim, act)
				}
				if isFinal {
					contracted = averageHeads(heads)
				} else {
					contracted = Concatenate(heads, -1)
				}

			case ChannelGAT:
				if !isFinal {
					act = elu
				}
				texts := Reshape(docs[hop], numNodes, numSamples, p.VocabSize)
				vae := ChannelVAE(ctxLayer.In("vae"), self, neigh, texts, info.NumHeads)
				stats = append(stats, vae)
				heads := make([]*Node, info.NumHeads)
				for head := range heads {
					channel := Slice(vae.Theta, AxisRange(), AxisRange(), AxisElem(head))
					heads[head] = AttentionAggregate(ctxLayer.In(fmt.Sprintf("head_%d", head)),
						self, neigh, channel, info.OutputDim, act)
				}
				contracted = averageHeads(heads)
			}
			next = append(next, contracted)
		}
		hidden = next
	}
	return L2Normalize(hidden[0], -1), stats
}

func averageHeads(heads []*Node) *Node {
	sum := heads[0]
	for _, head := range heads[1:] {
		sum = Add(sum, head)
	}
	return DivScalar(sum, float64(len(heads)))
}

// InputsPerBranch returns how many input tensors a batch carries per branch:
// the seed and hop id tensors, plus the edge document rows for ChannelGAT.
func (p *Plan) InputsPerBranch() int {
	n := p.NumLayers() + 1
	if p.Kind == ChannelGAT {
		n += p.NumLayers()
	}
	return n
}

// BuildModelFn returns the model graph building function for the plan.
//
// It expects the inputs of three branches back to back, source and target
// nodes of the batch edges and the negatively sampled nodes, and outputs
// their three embedding tensors. For ChannelGAT it also registers the
// variational reconstruction and KL losses, normalized by batch size, as
// additional losses on the context.
func BuildModelFn(p *Plan) train.ModelFn {
	return func(ctx *context.Context, spec any, inputs []*Node) []*Node {
		ctx = ctx.WithInitializer(initializers.GlorotUniformFn(ctx)).Checked(false)
		perBranch := p.InputsPerBranch()
		if len(inputs) != 3*perBranch {
			Panicf("model expects %d input tensors (3 branches of %d), got %d",
				3*perBranch, perBranch, len(inputs))
		}
		batchSize := inputs[0].Shape().Dimensions[0]

		outputs := make([]*Node, 0, 3)
		var vaeLoss *Node
		for branch := 0; branch < 3; branch++ {
			branchInputs := inputs[branch*perBranch : (branch+1)*perBranch]
			ids := branchInputs[:p.NumLayers()+1]
			var docRows []*Node
			if p.Kind == ChannelGAT {
				docRows = branchInputs[p.NumLayers()+1:]
			}
			embeddings, stats := Embeddings(ctx, p, ids, docRows)
			outputs = append(outputs, embeddings)
			for _, s := range stats {
				recon, kl := VAELoss(s)
				if vaeLoss == nil {
					vaeLoss = Add(recon, kl)
				} else {
					vaeLoss = Add(vaeLoss, Add(recon, kl))
				}
			}
		}
		if vaeLoss != nil {
			train.AddLoss(ctx, DivScalar(vaeLoss, float64(batchSize)))
		}
		return outputs
	}
}
