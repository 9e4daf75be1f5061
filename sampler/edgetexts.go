package sampler

import (
	"fmt"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// EdgeTexts maps unordered node pairs to bag-of-words vectors over a fixed
// vocabulary.
//
// The dense table reserves row 0 as the all-zero document, so pairs without an
// associated text resolve to a zero vector. RowFor returns the table row for a
// pair in either orientation.
type EdgeTexts struct {
	VocabSize int

	// Table is the dense [numDocs+1, VocabSize] matrix of word counts.
	// Row 0 is all zeros.
	Table [][]float32

	rows map[[2]int32]int32
}

// pairKey normalizes a pair to (min, max) so both orientations share a row.
func pairKey(a, b int32) [2]int32 {
	if a > b {
		a, b = b, a
	}
	return [2]int32{a, b}
}

// NewEdgeTexts builds the dense document table from per-pair word counts.
// Word ids must be in [0, vocabSize).
func NewEdgeTexts(vocabSize int, texts map[[2]int32]map[int32]int32) (*EdgeTexts, error) {
	if vocabSize <= 0 {
		return nil, errors.Errorf("vocabulary size must be positive, got %d", vocabSize)
	}

	// Sort pairs so row assignment is deterministic.
	pairs := make([][2]int32, 0, len(texts))
	for pair := range texts {
		pairs = append(pairs, pairKey(pair[0], pair[1]))
	}
	slices.SortFunc(pairs, func(a, b [2]int32) int {
		if a[0] != b[0] {
			return int(a[0]) - int(b[0])
		}
		return int(a[1]) - int(b[1])
	})
	pairs = slices.Compact(pairs)

	e := &EdgeTexts{
		VocabSize: vocabSize,
		Table:     make([][]float32, len(pairs)+1),
		rows:      make(map[[2]int32]int32, len(pairs)),
	}
	e.Table[0] = make([]float32, vocabSize)
	for i, pair := range pairs {
		e.rows[pair] = int32(i + 1)
		e.Table[i+1] = make([]float32, vocabSize)
	}
	for pair, counts := range texts {
		row := e.Table[e.rows[pairKey(pair[0], pair[1])]]
		for word, count := range counts {
			if word < 0 || int(word) >= vocabSize {
				return nil, errors.Errorf("pair (%d, %d) refers to word %d, out of vocabulary range [0, %d)",
					pair[0], pair[1], word, vocabSize)
			}
			if count < 0 {
				return nil, errors.Errorf("pair (%d, %d) has negative count %d for word %d",
					pair[0], pair[1], count, word)
			}
			row[word] += float32(count)
		}
	}
	return e, nil
}

// NumDocs returns the number of distinct pair documents, not counting the
// reserved zero row.
func (e *EdgeTexts) NumDocs() int { return len(e.Table) - 1 }

// RowFor returns the table row index for the pair (src, dst), in either
// orientation, or 0 if the pair has no text.
func (e *EdgeTexts) RowFor(src, dst int32) int32 {
	return e.rows[pairKey(src, dst)]
}

// String implements fmt.Stringer.
func (e *EdgeTexts) String() string {
	return fmt.Sprintf("EdgeTexts: %s documents, vocabulary of %s words",
		humanize.Comma(int64(e.NumDocs())), humanize.Comma(int64(e.VocabSize)))
}
