package sketch

import (
	"io"
	"sync"

	"github.com/ZanzyTHEbar/streammash/smash/common"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
)

var relaxValidation sync.Once

// DisableSequenceValidation turns off alphabet checks in the fastx reader so
// that unusual characters reach the matcher untouched instead of failing the
// read.
func DisableSequenceValidation() {
	relaxValidation.Do(func() {
		seq.ValidateSeq = false
	})
}

// ImportFastx builds a sketch from a FASTA/FASTQ file (optionally gzipped)
// whose records are the sketch k-mers in slot order. The sketch ksize is the
// length of the first record and every other record must match it. An empty
// name defaults to the file path.
func ImportFastx(path, name string) (ReferenceSketch, error) {
	if err := common.NewValidationUtils().ValidateFileExists(path); err != nil {
		return ReferenceSketch{}, err
	}
	DisableSequenceValidation()

	reader, err := fastx.NewDefaultReader(path)
	if err != nil {
		return ReferenceSketch{}, errors.Wrap(err, path)
	}
	defer reader.Close()

	if name == "" {
		name = path
	}
	sk := ReferenceSketch{InputFileName: name}

	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return ReferenceSketch{}, errors.Wrapf(err, "reading %s", path)
		}

		kmer := string(record.Seq.Seq)
		if sk.KSize == 0 {
			sk.KSize = len(kmer)
		}
		if len(kmer) != sk.KSize {
			return ReferenceSketch{}, errors.Wrapf(common.ErrKmerLength,
				"%s record %s has length %d, expected %d", path, record.ID, len(kmer), sk.KSize)
		}
		sk.Kmers = append(sk.Kmers, kmer)
	}

	if len(sk.Kmers) == 0 {
		return ReferenceSketch{}, errors.Wrap(common.ErrEmptySketch, path)
	}
	return sk, nil
}
