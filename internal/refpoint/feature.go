package refpoint

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Region is a span between two anchors, Begin inclusive and End exclusive.
type Region struct {
	Begin Point
	End   Point
}

func (r Region) String() string {
	return r.Begin.String() + ":" + r.End.String()
}

// GeneFeature is an ordered list of anchor regions. A feature with a single
// region is simple; one with several regions is composite and denotes the
// concatenation of its parts in declared order.
type GeneFeature struct {
	regions []Region
}

// NewFeature builds a feature from regions, merging adjacent ones.
func NewFeature(regions ...Region) (GeneFeature, error) {
	if len(regions) == 0 {
		return GeneFeature{}, errors.New("gene feature needs at least one region")
	}
	merged := make([]Region, 0, len(regions))
	for _, r := range regions {
		if !r.Begin.Valid() || !r.End.Valid() {
			return GeneFeature{}, fmt.Errorf("invalid region %s", r)
		}
		if r.Begin >= r.End {
			return GeneFeature{}, fmt.Errorf("region %s is empty or reversed", r)
		}
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.End == r.Begin {
				last.End = r.End
				continue
			}
			if r.Begin < last.End {
				return GeneFeature{}, fmt.Errorf("region %s overlaps %s", r, *last)
			}
		}
		merged = append(merged, r)
	}
	return GeneFeature{regions: merged}, nil
}

func mustFeature(regions ...Region) GeneFeature {
	f, err := NewFeature(regions...)
	if err != nil {
		panic(err)
	}
	return f
}

// Named features.
var (
	V5UTR       = mustFeature(Region{UTR5Begin, V5UTREnd})
	L1          = mustFeature(Region{L1Begin, L1End})
	VIntron     = mustFeature(Region{VIntronBegin, VIntronEnd})
	L2          = mustFeature(Region{L2Begin, L2End})
	FR1         = mustFeature(Region{FR1Begin, CDR1Begin})
	CDR1        = mustFeature(Region{CDR1Begin, FR2Begin})
	FR2         = mustFeature(Region{FR2Begin, CDR2Begin})
	CDR2        = mustFeature(Region{CDR2Begin, FR3Begin})
	FR3         = mustFeature(Region{FR3Begin, CDR3Begin})
	CDR3        = mustFeature(Region{CDR3Begin, CDR3End})
	VCDR3Part   = mustFeature(Region{CDR3Begin, VEnd})
	VRegion     = mustFeature(Region{FR1Begin, VEnd})
	VGene       = mustFeature(Region{UTR5Begin, VEnd})
	VExon2      = mustFeature(Region{L2Begin, VEnd})
	VTranscript = mustFeature(Region{UTR5Begin, L1End}, Region{L2Begin, VEnd})
	DRegion     = mustFeature(Region{DBegin, DEnd})
	JRegion     = mustFeature(Region{JBegin, FR4End})
	JCDR3Part   = mustFeature(Region{JBegin, CDR3End})
	FR4         = mustFeature(Region{FR4Begin, FR4End})
	CExon1      = mustFeature(Region{CBegin, CExon1End})
	CRegion     = mustFeature(Region{CBegin, CEnd})
)

var namedFeatures = []struct {
	name    string
	feature GeneFeature
}{
	{"V5UTR", V5UTR}, {"L1", L1}, {"VIntron", VIntron}, {"L2", L2},
	{"FR1", FR1}, {"CDR1", CDR1}, {"FR2", FR2}, {"CDR2", CDR2}, {"FR3", FR3},
	{"CDR3", CDR3}, {"VCDR3Part", VCDR3Part}, {"VRegion", VRegion},
	{"VGene", VGene}, {"VExon2", VExon2}, {"VTranscript", VTranscript},
	{"DRegion", DRegion}, {"JRegion", JRegion}, {"JCDR3Part", JCDR3Part},
	{"FR4", FR4}, {"CExon1", CExon1}, {"CRegion", CRegion},
}

// ParseFeature parses a feature expression: named features or Begin:End
// regions, joined with '+'.
func ParseFeature(s string) (GeneFeature, error) {
	var regions []Region
	for _, part := range strings.Split(s, "+") {
		part = strings.TrimSpace(part)
		if f, ok := featureByName(part); ok {
			regions = append(regions, f.regions...)
			continue
		}
		begin, end, ok := strings.Cut(part, ":")
		if !ok {
			return GeneFeature{}, fmt.Errorf("unknown gene feature %q", part)
		}
		b, err := ParsePoint(strings.TrimSpace(begin))
		if err != nil {
			return GeneFeature{}, fmt.Errorf("parse gene feature %q: %w", s, err)
		}
		e, err := ParsePoint(strings.TrimSpace(end))
		if err != nil {
			return GeneFeature{}, fmt.Errorf("parse gene feature %q: %w", s, err)
		}
		regions = append(regions, Region{b, e})
	}
	f, err := NewFeature(regions...)
	if err != nil {
		return GeneFeature{}, fmt.Errorf("parse gene feature %q: %w", s, err)
	}
	return f, nil
}

func featureByName(name string) (GeneFeature, bool) {
	for _, nf := range namedFeatures {
		if strings.EqualFold(nf.name, name) {
			return nf.feature, true
		}
	}
	return GeneFeature{}, false
}

// Regions returns a copy of the feature's regions.
func (f GeneFeature) Regions() []Region {
	return slices.Clone(f.regions)
}

// IsComposite reports whether the feature has more than one region.
func (f GeneFeature) IsComposite() bool {
	return len(f.regions) > 1
}

// IsZero reports whether f is the zero feature.
func (f GeneFeature) IsZero() bool {
	return len(f.regions) == 0
}

// First returns the first anchor of the feature.
func (f GeneFeature) First() Point {
	return f.regions[0].Begin
}

// Last returns the last anchor of the feature.
func (f GeneFeature) Last() Point {
	return f.regions[len(f.regions)-1].End
}

// Equal reports whether two features have the same regions.
func (f GeneFeature) Equal(o GeneFeature) bool {
	return slices.Equal(f.regions, o.regions)
}

// String returns the feature's name if it has one, else its regions joined
// with '+', each region named where possible.
func (f GeneFeature) String() string {
	for _, nf := range namedFeatures {
		if nf.feature.Equal(f) {
			return nf.name
		}
	}
	parts := make([]string, len(f.regions))
	for i, r := range f.regions {
		parts[i] = r.String()
		for _, nf := range namedFeatures {
			if len(nf.feature.regions) == 1 && nf.feature.regions[0] == r {
				parts[i] = nf.name
				break
			}
		}
	}
	return strings.Join(parts, "+")
}

// Encode returns the binary form: a region count byte followed by a
// (begin, end) anchor index byte pair per region.
func (f GeneFeature) Encode() []byte {
	out := make([]byte, 0, 1+2*len(f.regions))
	out = append(out, byte(len(f.regions)))
	for _, r := range f.regions {
		out = append(out, byte(r.Begin), byte(r.End))
	}
	return out
}

// DecodeFeature reads a feature written by Encode.
func DecodeFeature(r io.Reader) (GeneFeature, error) {
	var count [1]byte
	if _, err := io.ReadFull(r, count[:]); err != nil {
		return GeneFeature{}, fmt.Errorf("read gene feature: %w", err)
	}
	buf := make([]byte, 2*int(count[0]))
	if _, err := io.ReadFull(r, buf); err != nil {
		return GeneFeature{}, fmt.Errorf("read gene feature: %w", err)
	}
	regions := make([]Region, count[0])
	for i := range regions {
		regions[i] = Region{Begin: Point(buf[2*i]), End: Point(buf[2*i+1])}
	}
	return NewFeature(regions...)
}
