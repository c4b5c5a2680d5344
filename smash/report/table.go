// Package report turns a finished count matrix into a per-sketch table.
// Everything here runs single-threaded after all workers have stopped.
package report

import (
	"encoding/csv"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/ZanzyTHEbar/streammash/smash/common"
	"github.com/ZanzyTHEbar/streammash/smash/counts"
	"github.com/ZanzyTHEbar/streammash/smash/sketch"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Row is the result for one reference sketch.
type Row struct {
	// Name is the base name of the sketch input file. Sketches from different
	// directories may share it; Sketch tells them apart.
	Name string
	// Sketch is the position of the sketch in the reference set.
	Sketch int
	// Counts holds the number of distinct matched slots, one per k-size column.
	Counts []int
	// Containment is Counts divided by the sketch size.
	Containment []float64
	Slots       *SlotBitmaps
}

// Table is the aggregated result of a run. Columns follow KSizes order.
type Table struct {
	KSizes    []int
	NumHashes int
	Rows      []Row
}

// Column returns the column index of k, or -1.
func (t *Table) Column(k int) int {
	for i, ks := range t.KSizes {
		if ks == k {
			return i
		}
	}
	return -1
}

// Count returns the count of the named sketch at k. When several rows share
// the name, the one with the lowest sketch index wins.
func (t *Table) Count(name string, k int) (int, bool) {
	col := t.Column(k)
	if col < 0 {
		return 0, false
	}
	var (
		best  Row
		found bool
	)
	for _, r := range t.Rows {
		if r.Name == name && (!found || r.Sketch < best.Sketch) {
			best, found = r, true
		}
	}
	if !found {
		return 0, false
	}
	return best.Counts[col], true
}

// Aggregate reads the matrix into one row per sketch, in sketch order.
func Aggregate(m *counts.Matrix, sketches []sketch.ReferenceSketch, kSizes []int) *Table {
	_, numHashes, _ := m.Dims()
	t := &Table{
		KSizes:    append([]int(nil), kSizes...),
		NumHashes: numHashes,
		Rows:      make([]Row, len(sketches)),
	}

	for i, s := range sketches {
		row := Row{
			Name:        s.Name(),
			Sketch:      i,
			Counts:      make([]int, len(kSizes)),
			Containment: make([]float64, len(kSizes)),
			Slots:       newSlotBitmaps(len(kSizes)),
		}
		for b := range kSizes {
			for slot := 0; slot < numHashes; slot++ {
				if m.Observed(i, slot, b) {
					row.Slots.add(b, uint32(slot))
				}
			}
			row.Counts[b] = m.TotalMarks(i, b)
			if numHashes > 0 {
				row.Containment[b] = float64(row.Counts[b]) / float64(numHashes)
			}
		}
		t.Rows[i] = row
	}
	return t
}

// FilterAndSort keeps rows whose count at keyKSize is strictly greater than
// threshold, ordered by that count descending, then by name, then by sketch
// index.
func FilterAndSort(t *Table, keyKSize, threshold int) (*Table, error) {
	col := t.Column(keyKSize)
	if col < 0 {
		return nil, errors.Wrapf(common.ErrUnknownKSize, "key k-mer size %d not in %v", keyKSize, t.KSizes)
	}

	out := &Table{
		KSizes:    t.KSizes,
		NumHashes: t.NumHashes,
	}
	for _, r := range t.Rows {
		if r.Counts[col] > threshold {
			out.Rows = append(out.Rows, r)
		}
	}
	sort.SliceStable(out.Rows, func(i, j int) bool {
		a, b := out.Rows[i], out.Rows[j]
		if a.Counts[col] != b.Counts[col] {
			return a.Counts[col] > b.Counts[col]
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Sketch < b.Sketch
	})
	return out, nil
}

// ColumnSummary describes the containment distribution of one k-size column.
type ColumnSummary struct {
	KSize   int
	Matched int
	Mean    float64
	StdDev  float64
	Max     float64
}

// Summary computes per-column containment statistics over all rows.
func (t *Table) Summary() []ColumnSummary {
	out := make([]ColumnSummary, len(t.KSizes))
	for c, k := range t.KSizes {
		xs := make([]float64, len(t.Rows))
		sum := ColumnSummary{KSize: k}
		for i, r := range t.Rows {
			xs[i] = r.Containment[c]
			if r.Counts[c] > 0 {
				sum.Matched++
			}
			sum.Max = math.Max(sum.Max, xs[i])
		}
		switch len(xs) {
		case 0:
		case 1:
			sum.Mean = xs[0]
		default:
			sum.Mean, sum.StdDev = stat.MeanStdDev(xs, nil)
		}
		out[c] = sum
	}
	return out
}

// WriteCSV writes a header of name,k=<k>... and one line per row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(t.KSizes)+1)
	header = append(header, "name")
	for _, k := range t.KSizes {
		header = append(header, "k="+strconv.Itoa(k))
	}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "writing csv header")
	}

	record := make([]string, len(header))
	for _, r := range t.Rows {
		record[0] = r.Name
		for i, c := range r.Counts {
			record[i+1] = strconv.Itoa(c)
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "writing csv row %s", r.Name)
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}
