// Package counts holds the shared count matrix written by match workers.
//
// Cells are indexed by [sketch][slot][k-size bucket] and stored flat. Every
// cell is a saturating counter updated with atomics, so any goroutine may mark
// any cell without coordination. Readers that need a consistent view must
// wait until all writers are done.
package counts

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Matrix is a concurrently writable [sketch][slot][bucket] counter array.
type Matrix struct {
	numSketches int
	numHashes   int
	numKSizes   int
	cells       []atomic.Uint32
}

// New returns a zeroed matrix.
func New(numSketches, numHashes, numKSizes int) *Matrix {
	if numSketches < 0 || numHashes < 0 || numKSizes < 0 {
		panic(fmt.Sprintf("counts: negative dimension %dx%dx%d", numSketches, numHashes, numKSizes))
	}
	return &Matrix{
		numSketches: numSketches,
		numHashes:   numHashes,
		numKSizes:   numKSizes,
		cells:       make([]atomic.Uint32, numSketches*numHashes*numKSizes),
	}
}

// Dims returns the matrix shape.
func (m *Matrix) Dims() (numSketches, numHashes, numKSizes int) {
	return m.numSketches, m.numHashes, m.numKSizes
}

func (m *Matrix) offset(sketch, slot, bucket int) int {
	if sketch < 0 || sketch >= m.numSketches || slot < 0 || slot >= m.numHashes || bucket < 0 || bucket >= m.numKSizes {
		panic(fmt.Sprintf("counts: index [%d][%d][%d] out of range [%d][%d][%d]",
			sketch, slot, bucket, m.numSketches, m.numHashes, m.numKSizes))
	}
	return (sketch*m.numHashes+slot)*m.numKSizes + bucket
}

// Mark records one observation of the cell. The counter saturates at
// math.MaxUint32.
func (m *Matrix) Mark(sketch, slot, bucket int) {
	cell := &m.cells[m.offset(sketch, slot, bucket)]
	for {
		old := cell.Load()
		if old == math.MaxUint32 {
			return
		}
		if cell.CompareAndSwap(old, old+1) {
			return
		}
	}
}

// Observed reports whether the cell was marked at least once.
func (m *Matrix) Observed(sketch, slot, bucket int) bool {
	return m.cells[m.offset(sketch, slot, bucket)].Load() > 0
}

// Occurrences is the raw counter of one cell.
func (m *Matrix) Occurrences(sketch, slot, bucket int) uint32 {
	return m.cells[m.offset(sketch, slot, bucket)].Load()
}

// TotalMarks is the number of distinct slots of sketch observed at bucket.
// Repeated marks of one cell count once.
func (m *Matrix) TotalMarks(sketch, bucket int) int {
	total := 0
	for slot := 0; slot < m.numHashes; slot++ {
		if m.Observed(sketch, slot, bucket) {
			total++
		}
	}
	return total
}

// TotalOccurrences sums the raw counters of sketch across slots at bucket.
func (m *Matrix) TotalOccurrences(sketch, bucket int) uint64 {
	var total uint64
	for slot := 0; slot < m.numHashes; slot++ {
		total += uint64(m.Occurrences(sketch, slot, bucket))
	}
	return total
}
