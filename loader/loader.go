// Package loader reads and writes the on-disk graph dataset consumed by the
// trainer: the graph structure, the node feature matrix and, optionally, the
// bag-of-words texts attached to edges.
//
// The dataset is one gob-encoded file per folder, see GraphFileName.
package loader

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/graphemb/graphemb/sampler"
)

// GraphFileName is the file inside the input folder holding the gob-encoded
// Data.
const GraphFileName = "graph.bin"

// Data is the full input dataset.
type Data struct {
	NumNodes int32

	// Edges of the undirected graph, one entry per edge.
	Edges [][2]int32

	// Features has one row per node, all rows with the same length.
	Features [][]float32

	// Walks are optional co-occurrence pairs from random walks, used as
	// training pairs instead of the edges when present.
	Walks [][2]int32

	// VocabSize and EdgeTexts describe the texts attached to edges, as
	// word-id counts per unordered node pair. Only required by the
	// channel attention model, may be empty otherwise.
	VocabSize int
	EdgeTexts map[[2]int32]map[int32]int32
}

// Validate checks the dataset is consistent.
func (d *Data) Validate() error {
	g := d.Graph()
	if err := g.Validate(); err != nil {
		return err
	}
	if len(d.Features) != int(d.NumNodes) {
		return errors.Errorf("feature matrix has %d rows for %d nodes", len(d.Features), d.NumNodes)
	}
	dim := len(d.Features[0])
	if dim == 0 {
		return errors.New("node features must have at least one dimension")
	}
	for i, row := range d.Features {
		if len(row) != dim {
			return errors.Errorf("feature row %d has %d values, expected %d", i, len(row), dim)
		}
	}
	for i, pair := range d.Walks {
		for _, node := range pair {
			if node < 0 || node >= d.NumNodes {
				return errors.Errorf("walk pair #%d (%d, %d) refers to node %d, out of range [0, %d)",
					i, pair[0], pair[1], node, d.NumNodes)
			}
		}
	}
	for pair := range d.EdgeTexts {
		for _, node := range pair {
			if node < 0 || node >= d.NumNodes {
				return errors.Errorf("edge text pair (%d, %d) refers to node %d, out of range [0, %d)",
					pair[0], pair[1], node, d.NumNodes)
			}
		}
	}
	return nil
}

// Graph returns the graph structure part of the dataset.
func (d *Data) Graph() *sampler.Graph {
	return &sampler.Graph{NumNodes: d.NumNodes, Edges: d.Edges}
}

// InputDim returns the node feature dimension.
func (d *Data) InputDim() int {
	if len(d.Features) == 0 {
		return 0
	}
	return len(d.Features[0])
}

// TrainPairs returns the pairs to train the edge objective on: the random
// walk co-occurrence pairs when present, the edges otherwise.
func (d *Data) TrainPairs() [][2]int32 {
	if len(d.Walks) > 0 {
		return d.Walks
	}
	return d.Edges
}

// FeaturesTensor converts the feature matrix to a tensor.
func (d *Data) FeaturesTensor() *tensors.Tensor {
	return tensors.FromValue(d.Features)
}

// Load reads and validates the dataset from the given folder.
func Load(inFolder string) (*Data, error) {
	path := filepath.Join(inFolder, GraphFileName)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open dataset from %q", path)
	}
	defer func() { _ = f.Close() }()
	var d Data
	if err := gob.NewDecoder(f).Decode(&d); err != nil {
		return nil, errors.Wrapf(err, "failed to decode dataset from %q", path)
	}
	if err := d.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid dataset in %q", path)
	}
	return &d, nil
}

// Save writes the dataset to the given folder, creating it if needed.
func (d *Data) Save(inFolder string) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(inFolder, 0777); err != nil {
		return errors.Wrapf(err, "failed to create dataset folder %q", inFolder)
	}
	path := filepath.Join(inFolder, GraphFileName)
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create dataset file %q", path)
	}
	if err := gob.NewEncoder(f).Encode(d); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to encode dataset to %q", path)
	}
	return errors.Wrapf(f.Close(), "failed to close dataset file %q", path)
}
