package refpoint

import (
	"fmt"
	"strings"

	"github.com/inodb/vibe-repseq/internal/seq"
)

// ReferencePoints holds one offset per anchor. Undefined anchors report -1.
// Defined offsets are non-decreasing in canonical anchor order.
//
// Offsets are stored shifted by one so the zero value has every anchor
// undefined.
type ReferencePoints struct {
	shifted [NumPoints]int32
}

// FromArray builds reference points from a full offset array, validating
// the ordering.
func FromArray(offsets []int32) (ReferencePoints, error) {
	if len(offsets) != NumPoints {
		return ReferencePoints{}, fmt.Errorf("expected %d reference points, got %d", NumPoints, len(offsets))
	}
	b := NewBuilder()
	for i, off := range offsets {
		if off == -1 {
			continue
		}
		if err := b.SetPosition(Point(i), off); err != nil {
			return ReferencePoints{}, err
		}
	}
	return b.Build(), nil
}

// Position returns the offset of p, or -1 if it is undefined.
func (rp ReferencePoints) Position(p Point) int32 {
	return rp.shifted[p] - 1
}

// Defined reports whether p has an offset.
func (rp ReferencePoints) Defined(p Point) bool {
	return rp.shifted[p] != 0
}

// Array returns all offsets in canonical order.
func (rp ReferencePoints) Array() []int32 {
	out := make([]int32, NumPoints)
	for i := range out {
		out[i] = rp.shifted[i] - 1
	}
	return out
}

// IsEmpty reports whether no anchor is defined.
func (rp ReferencePoints) IsEmpty() bool {
	return rp == ReferencePoints{}
}

// Equal reports whether both sets define the same anchors at the same offsets.
func (rp ReferencePoints) Equal(o ReferencePoints) bool {
	return rp == o
}

// First returns the smallest defined offset.
func (rp ReferencePoints) First() (int32, bool) {
	for _, v := range rp.shifted {
		if v != 0 {
			return v - 1, true
		}
	}
	return -1, false
}

// Last returns the largest defined offset.
func (rp ReferencePoints) Last() (int32, bool) {
	for i := NumPoints - 1; i >= 0; i-- {
		if v := rp.shifted[i]; v != 0 {
			return v - 1, true
		}
	}
	return -1, false
}

// Move shifts every defined anchor by offset.
func (rp ReferencePoints) Move(offset int32) ReferencePoints {
	for i, v := range rp.shifted {
		if v != 0 {
			rp.shifted[i] = v + offset
		}
	}
	return rp
}

// RegionRange maps an anchor region to a sequence range. It reports false if
// either anchor is undefined.
func (rp ReferencePoints) RegionRange(r Region) (seq.Range, bool) {
	if !rp.Defined(r.Begin) || !rp.Defined(r.End) {
		return seq.Range{}, false
	}
	return seq.Range{From: rp.Position(r.Begin), To: rp.Position(r.End)}, true
}

// Range maps a simple feature to a sequence range. Composite features map to
// the range spanning their first and last anchor.
func (rp ReferencePoints) Range(f GeneFeature) (seq.Range, bool) {
	if f.IsZero() {
		return seq.Range{}, false
	}
	return rp.RegionRange(Region{Begin: f.First(), End: f.Last()})
}

// Ranges maps every region of f. It reports false if any anchor is undefined.
func (rp ReferencePoints) Ranges(f GeneFeature) ([]seq.Range, bool) {
	out := make([]seq.Range, 0, len(f.regions))
	for _, r := range f.regions {
		rg, ok := rp.RegionRange(r)
		if !ok {
			return nil, false
		}
		out = append(out, rg)
	}
	return out, len(out) > 0
}

// Within returns the anchors inside rg, relative to rg.From.
func (rp ReferencePoints) Within(rg seq.Range) ReferencePoints {
	var out ReferencePoints
	for i, v := range rp.shifted {
		if v != 0 && rg.ContainsPosition(v-1) {
			out.shifted[i] = v - rg.From
		}
	}
	return out
}

// Map applies fn to every defined offset and revalidates the ordering.
func (rp ReferencePoints) Map(fn func(int32) int32) (ReferencePoints, error) {
	b := NewBuilder()
	for i, v := range rp.shifted {
		if v == 0 {
			continue
		}
		if err := b.SetPosition(Point(i), fn(v-1)); err != nil {
			return ReferencePoints{}, err
		}
	}
	return b.Build(), nil
}

func (rp ReferencePoints) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	for i, v := range rp.shifted {
		if v == 0 {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&sb, "%s:%d", Point(i), v-1)
	}
	sb.WriteByte('}')
	return sb.String()
}

func (rp *ReferencePoints) check() error {
	last := int32(0)
	lastPoint := Point(-1)
	for i, v := range rp.shifted {
		if v == 0 {
			continue
		}
		if v < last {
			return fmt.Errorf("%s at %d precedes %s at %d", Point(i), v-1, lastPoint, last-1)
		}
		last, lastPoint = v, Point(i)
	}
	return nil
}
