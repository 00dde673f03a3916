package refpoint

import (
	"fmt"

	"github.com/inodb/vibe-repseq/internal/seq"
)

// SequenceSource serves sub-sequences by range.
type SequenceSource interface {
	Sequence(r seq.Range) (seq.Sequence, error)
}

// SequenceSourceFunc adapts a function to SequenceSource.
type SequenceSourceFunc func(r seq.Range) (seq.Sequence, error)

// Sequence calls f(r).
func (f SequenceSourceFunc) Sequence(r seq.Range) (seq.Sequence, error) {
	return f(r)
}

// Static serves ranges of an in-memory sequence.
func Static(s seq.Sequence) SequenceSource {
	return SequenceSourceFunc(func(r seq.Range) (seq.Sequence, error) {
		if r.To > int32(s.Len()) {
			return seq.Sequence{}, fmt.Errorf("range %s beyond sequence end %d", r, s.Len())
		}
		return s.Range(r), nil
	})
}

// GetFeature extracts f from src using points. It reports false when an anchor
// of f is undefined. Composite features are concatenated in declared order
// into a new sequence.
func GetFeature(src SequenceSource, points ReferencePoints, f GeneFeature) (seq.Sequence, bool, error) {
	ranges, ok := points.Ranges(f)
	if !ok {
		return seq.Sequence{}, false, nil
	}
	if len(ranges) == 1 {
		s, err := src.Sequence(ranges[0])
		if err != nil {
			return seq.Sequence{}, false, err
		}
		return s, true, nil
	}
	size := 0
	for _, r := range ranges {
		size += r.Len()
	}
	b := seq.NewBuilder(size)
	for _, r := range ranges {
		s, err := src.Sequence(r)
		if err != nil {
			return seq.Sequence{}, false, err
		}
		b.Append(s)
	}
	return b.Build(), true, nil
}
