package seqbase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/inodb/vibe-repseq/internal/seq"
)

// ErrRegionConflict is returned when a region overlaps already known
// sequence with different bases.
var ErrRegionConflict = errors.New("region conflicts with known sequence")

// SequenceUnavailableError reports a region a provider could not serve.
type SequenceUnavailableError struct {
	Address Address
	Range   seq.Range
	Err     error
}

func (e *SequenceUnavailableError) Error() string {
	msg := fmt.Sprintf("cannot get sequence for address %s, range %s", e.Address, e.Range)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SequenceUnavailableError) Unwrap() error {
	return e.Err
}

// FillFunc loads sequence into a provider on first access. It typically calls
// SetRegion one or more times.
type FillFunc func(ctx context.Context, p *Provider) error

// Fragment is a known stretch of sequence starting at From.
type Fragment struct {
	From     int32
	Sequence seq.Sequence
}

// Range returns the positions covered by the fragment.
func (f Fragment) Range() seq.Range {
	return seq.Range{From: f.From, To: f.From + int32(f.Sequence.Len())}
}

// Provider caches the known regions of one address. Regions can be added
// but never changed. The fill function runs at most once, the first time a
// request cannot be served from the cache.
type Provider struct {
	address Address
	metrics *Metrics

	mu        sync.RWMutex
	fragments []Fragment // sorted by From, disjoint and non-adjacent

	fill     FillFunc
	fillOnce sync.Once
	fillErr  error
}

func newProvider(addr Address, fill FillFunc, metrics *Metrics) *Provider {
	return &Provider{address: addr, fill: fill, metrics: metrics}
}

// Address returns the address the provider serves.
func (p *Provider) Address() Address {
	return p.address
}

// SetRegion records s at offset from. Overlapping known sequence must agree
// base for base; a repeated identical region is a no-op.
func (p *Provider) SetRegion(from int32, s seq.Sequence) error {
	if from < 0 {
		return fmt.Errorf("set region of %s: negative offset %d", p.address, from)
	}
	if s.IsEmpty() {
		return nil
	}
	add := Fragment{From: from, Sequence: s}
	r := add.Range()

	p.mu.Lock()
	defer p.mu.Unlock()

	lo := from
	hi := r.To
	first, last := -1, -1
	for i, f := range p.fragments {
		fr := f.Range()
		if fr.To < r.From || fr.From > r.To {
			continue
		}
		if ov := intersect(fr, r); ov.Len() > 0 {
			a := f.Sequence.Range(ov.Move(-fr.From))
			b := s.Range(ov.Move(-from))
			if !a.Equal(b) {
				return fmt.Errorf("set region %s of %s: %w", r, p.address, ErrRegionConflict)
			}
		}
		if first < 0 {
			first = i
		}
		last = i
		lo = min(lo, fr.From)
		hi = max(hi, fr.To)
	}

	if first < 0 {
		i, _ := slices.BinarySearchFunc(p.fragments, from, func(f Fragment, from int32) int {
			return int(f.From - from)
		})
		p.fragments = slices.Insert(p.fragments, i, add)
		return nil
	}
	if first == last && p.fragments[first].Range().Contains(r) {
		return nil
	}

	b := seq.NewBuilder(int(hi - lo))
	cursor := lo
	for _, f := range p.fragments[first : last+1] {
		fr := f.Range()
		if cursor < fr.From {
			b.Append(s.Range(seq.Range{From: cursor - from, To: fr.From - from}))
			cursor = fr.From
		}
		if fr.To > cursor {
			b.Append(f.Sequence.Range(seq.Range{From: cursor - fr.From, To: fr.To - fr.From}))
			cursor = fr.To
		}
	}
	if cursor < hi {
		b.Append(s.Range(seq.Range{From: cursor - from, To: hi - from}))
	}
	merged := Fragment{From: lo, Sequence: b.Build()}
	p.fragments = slices.Replace(p.fragments, first, last+1, merged)
	return nil
}

func intersect(a, b seq.Range) seq.Range {
	from := max(a.From, b.From)
	to := min(a.To, b.To)
	if to < from {
		return seq.Range{From: from, To: from}
	}
	return seq.Range{From: from, To: to}
}

// Fragments returns the known regions in position order.
func (p *Provider) Fragments() []Fragment {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.fragments)
}

func (p *Provider) cached(r seq.Range) (seq.Sequence, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, f := range p.fragments {
		fr := f.Range()
		if fr.Contains(r) {
			return f.Sequence.Range(r.Move(-fr.From)), true
		}
	}
	return seq.Sequence{}, false
}

// Region returns the sequence in r, filling the provider on the first miss.
// The fill is shared by every caller and is not retried, so it keeps the
// values of ctx but ignores its cancellation.
func (p *Provider) Region(ctx context.Context, r seq.Range) (seq.Sequence, error) {
	if s, ok := p.cached(r); ok {
		return s, nil
	}
	p.fillOnce.Do(func() {
		if p.fill == nil {
			return
		}
		p.fillErr = p.fill(context.WithoutCancel(ctx), p)
		if p.fillErr != nil {
			p.metrics.fillDone("error")
		} else {
			p.metrics.fillDone("ok")
		}
	})
	if s, ok := p.cached(r); ok {
		return s, nil
	}
	return seq.Sequence{}, &SequenceUnavailableError{Address: p.address, Range: r, Err: p.fillErr}
}

// Source returns a view of the provider for a fixed context.
func (p *Provider) Source(ctx context.Context) func(seq.Range) (seq.Sequence, error) {
	return func(r seq.Range) (seq.Sequence, error) {
		return p.Region(ctx, r)
	}
}
