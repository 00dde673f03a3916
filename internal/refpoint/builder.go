package refpoint

import "fmt"

// InvalidCoordinateError reports a rejected anchor assignment.
type InvalidCoordinateError struct {
	Point    Point
	Position int32
	Reason   string
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid position %d for %s: %s", e.Position, e.Point, e.Reason)
}

// Builder assembles ReferencePoints one anchor at a time. A rejected
// assignment leaves the builder exactly as it was. Builders are single-owner
// and not safe for concurrent use.
type Builder struct {
	points ReferencePoints
}

// NewBuilder returns a builder with every anchor undefined.
func NewBuilder() *Builder {
	return &Builder{}
}

// SetPosition assigns pos to p, or clears it when pos is -1.
func (b *Builder) SetPosition(p Point, pos int32) error {
	if !p.Valid() {
		return &InvalidCoordinateError{Point: p, Position: pos, Reason: "unknown reference point"}
	}
	if pos < -1 {
		return &InvalidCoordinateError{Point: p, Position: pos, Reason: "negative position"}
	}
	next := b.points
	next.shifted[p] = pos + 1
	if err := next.check(); err != nil {
		return &InvalidCoordinateError{Point: p, Position: pos, Reason: err.Error()}
	}
	b.points = next
	return nil
}

// SetPositionsFrom copies every defined anchor of other through SetPosition,
// in canonical order. It stops at the first rejected anchor; anchors copied
// before it stay applied.
func (b *Builder) SetPositionsFrom(other ReferencePoints) error {
	for i, v := range other.shifted {
		if v == 0 {
			continue
		}
		if err := b.SetPosition(Point(i), v-1); err != nil {
			return err
		}
	}
	return nil
}

// Points returns a snapshot of the current state.
func (b *Builder) Points() ReferencePoints {
	return b.points
}

// Build returns the assembled reference points.
func (b *Builder) Build() ReferencePoints {
	return b.points
}
