package report

import (
	roaring "github.com/RoaringBitmap/roaring"
)

// SlotBitmaps holds, per k-size column, the bitmap of matched slot ids of one
// sketch.
type SlotBitmaps struct {
	cols []*roaring.Bitmap
}

func newSlotBitmaps(numKSizes int) *SlotBitmaps {
	sb := &SlotBitmaps{cols: make([]*roaring.Bitmap, numKSizes)}
	for i := range sb.cols {
		sb.cols[i] = roaring.New()
	}
	return sb
}

func (sb *SlotBitmaps) add(col int, slot uint32) {
	sb.cols[col].Add(slot)
}

// Column returns a copy of the bitmap for one k-size column.
func (sb *SlotBitmaps) Column(col int) *roaring.Bitmap {
	if col < 0 || col >= len(sb.cols) {
		return roaring.New()
	}
	return sb.clone(sb.cols[col])
}

// And returns the slots matched in every listed column.
func (sb *SlotBitmaps) And(cols ...int) *roaring.Bitmap {
	if len(cols) == 0 {
		return roaring.New()
	}
	res := sb.Column(cols[0])
	for _, c := range cols[1:] {
		if c < 0 || c >= len(sb.cols) {
			return roaring.New()
		}
		res.And(sb.cols[c])
	}
	return res
}

// Or returns the slots matched in any column.
func (sb *SlotBitmaps) Or() *roaring.Bitmap {
	return roaring.FastOr(sb.cols...)
}

func (sb *SlotBitmaps) clone(b *roaring.Bitmap) *roaring.Bitmap {
	c := roaring.New()
	c.Or(b)
	return c
}
