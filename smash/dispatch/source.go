package dispatch

import (
	"io"

	"github.com/ZanzyTHEbar/streammash/smash/common"
	"github.com/ZanzyTHEbar/streammash/smash/sketch"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seqio/fastx"
)

// SequenceSource yields raw query sequences one at a time. Next returns io.EOF
// once the source is exhausted.
type SequenceSource interface {
	Next() (string, error)
}

// SliceSource serves sequences from memory.
type SliceSource struct {
	seqs []string
	pos  int
}

func NewSliceSource(seqs ...string) *SliceSource {
	return &SliceSource{seqs: seqs}
}

func (s *SliceSource) Next() (string, error) {
	if s.pos >= len(s.seqs) {
		return "", io.EOF
	}
	seq := s.seqs[s.pos]
	s.pos++
	return seq, nil
}

// FastxSource reads FASTA/FASTQ records (plain or gzipped) from a list of
// files in order.
type FastxSource struct {
	files  []string
	next   int
	reader *fastx.Reader
}

// NewFastxSource checks that every file exists before any reading starts.
func NewFastxSource(files ...string) (*FastxSource, error) {
	if len(files) == 0 {
		return nil, errors.Wrap(common.ErrSourceNotExist, "no query files given")
	}
	vu := common.NewValidationUtils()
	for _, f := range files {
		if err := vu.ValidateFileExists(f); err != nil {
			return nil, err
		}
	}
	sketch.DisableSequenceValidation()
	return &FastxSource{files: files}, nil
}

func (s *FastxSource) Next() (string, error) {
	for {
		if s.reader == nil {
			if s.next >= len(s.files) {
				return "", io.EOF
			}
			file := s.files[s.next]
			s.next++
			reader, err := fastx.NewDefaultReader(file)
			if err != nil {
				return "", errors.Wrap(err, file)
			}
			s.reader = reader
		}

		record, err := s.reader.Read()
		if err != nil {
			s.reader.Close()
			s.reader = nil
			if err == io.EOF {
				continue
			}
			return "", errors.Wrapf(err, "reading %s", s.files[s.next-1])
		}
		return string(record.Seq.Seq), nil
	}
}

// Close releases the current reader, if any.
func (s *FastxSource) Close() {
	if s.reader != nil {
		s.reader.Close()
		s.reader = nil
	}
}
