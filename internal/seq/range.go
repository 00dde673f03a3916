package seq

import "fmt"

// Range is a half-open interval [From, To) of sequence positions.
type Range struct {
	From int32
	To   int32
}

// NewRange creates a range, returning an error if it is reversed or negative.
func NewRange(from, to int32) (Range, error) {
	if from < 0 || to < from {
		return Range{}, fmt.Errorf("invalid range [%d, %d)", from, to)
	}
	return Range{From: from, To: to}, nil
}

// Len returns the number of positions covered.
func (r Range) Len() int {
	return int(r.To - r.From)
}

// Contains reports whether o lies entirely within r.
func (r Range) Contains(o Range) bool {
	return o.From >= r.From && o.To <= r.To
}

// ContainsPosition reports whether pos is a position or boundary inside r.
func (r Range) ContainsPosition(pos int32) bool {
	return pos >= r.From && pos <= r.To
}

// Intersects reports whether the two ranges share at least one position.
func (r Range) Intersects(o Range) bool {
	return r.From < o.To && o.From < r.To
}

// Move shifts the range by offset.
func (r Range) Move(offset int32) Range {
	return Range{From: r.From + offset, To: r.To + offset}
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.From, r.To)
}
