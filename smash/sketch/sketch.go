package sketch

import (
	"context"
	"path/filepath"

	"github.com/ZanzyTHEbar/streammash/smash/common"

	"github.com/pkg/errors"
)

// ReferenceSketch is one reference genome reduced to a fixed-size, ordered
// list of k-mers. Sketches are immutable once loaded.
type ReferenceSketch struct {
	InputFileName string
	KSize         int
	Kmers         []string
}

// Name is the label used for report rows.
func (s ReferenceSketch) Name() string {
	return filepath.Base(s.InputFileName)
}

// NumHashes is the number of k-mer slots in the sketch.
func (s ReferenceSketch) NumHashes() int {
	return len(s.Kmers)
}

// Store provides the reference sketches for a run.
type Store interface {
	LoadSketches(ctx context.Context) ([]ReferenceSketch, error)
}

// Shape summarises a validated sketch set.
type Shape struct {
	NumSketches int
	NumHashes   int
	KSize       int
}

// Validate checks that sketches form a consistent set and that every query
// k-mer size can be served by them. All sketches must share the same ksize
// and number of hashes, and each k-mer must be exactly ksize long.
func Validate(sketches []ReferenceSketch, kSizes []int) (Shape, error) {
	if len(sketches) == 0 {
		return Shape{}, common.ErrNoSketches
	}
	if err := common.NewValidationUtils().ValidateKSizes(kSizes); err != nil {
		return Shape{}, err
	}

	first := sketches[0]
	shape := Shape{
		NumSketches: len(sketches),
		NumHashes:   first.NumHashes(),
		KSize:       first.KSize,
	}
	if shape.KSize <= 0 {
		return Shape{}, errors.Wrapf(common.ErrInvalidKSize, "sketch %s has ksize %d", first.InputFileName, first.KSize)
	}

	for i, s := range sketches {
		if s.NumHashes() == 0 {
			return Shape{}, errors.Wrapf(common.ErrEmptySketch, "sketch %d (%s)", i, s.InputFileName)
		}
		if s.KSize != shape.KSize {
			return Shape{}, errors.Wrapf(common.ErrInconsistentKSize,
				"sketch %d (%s) has ksize %d, expected %d", i, s.InputFileName, s.KSize, shape.KSize)
		}
		if s.NumHashes() != shape.NumHashes {
			return Shape{}, errors.Wrapf(common.ErrInconsistentNumHashes,
				"sketch %d (%s) has %d k-mers, expected %d", i, s.InputFileName, s.NumHashes(), shape.NumHashes)
		}
		for j, kmer := range s.Kmers {
			if len(kmer) != shape.KSize {
				return Shape{}, errors.Wrapf(common.ErrKmerLength,
					"sketch %d (%s) slot %d has length %d, expected %d", i, s.InputFileName, j, len(kmer), shape.KSize)
			}
		}
	}

	for _, k := range kSizes {
		if k > shape.KSize {
			return Shape{}, errors.Wrapf(common.ErrInvalidKSize,
				"k-mer size %d exceeds reference ksize %d", k, shape.KSize)
		}
	}

	return shape, nil
}

// Limit returns at most max sketches. A non-positive max means no cap.
func Limit(sketches []ReferenceSketch, max int) []ReferenceSketch {
	if max <= 0 || len(sketches) <= max {
		return sketches
	}
	return sketches[:max]
}
