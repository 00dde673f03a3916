package library

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/inodb/vibe-repseq/internal/refpoint"
	"github.com/inodb/vibe-repseq/internal/seq"
	"github.com/inodb/vibe-repseq/internal/seqbase"
)

// Library is a loaded set of loci together with the species names it
// declares and the resolver its sequences come from. It is immutable.
type Library struct {
	name       string
	context    string
	resolver   seqbase.Resolver
	loci       []*LocusContainer
	species    map[string]int32
	properties map[string]string
	fragments  []string
	logger     *zap.Logger
}

// Name returns the library name.
func (l *Library) Name() string { return l.name }

// Context returns the directory relative sequence addresses are resolved in.
func (l *Library) Context() string { return l.context }

// Resolver returns the resolver serving the library's sequences.
func (l *Library) Resolver() seqbase.Resolver { return l.resolver }

// Loci returns every locus in load order.
func (l *Library) Loci() []*LocusContainer { return slices.Clone(l.loci) }

// Properties returns a copy of the library metadata.
func (l *Library) Properties() map[string]string { return maps.Clone(l.properties) }

// SpeciesNames returns a copy of the species name to taxon id aliases.
func (l *Library) SpeciesNames() map[string]int32 { return maps.Clone(l.species) }

// FragmentAccessions returns the accessions of embedded sequence fragments.
func (l *Library) FragmentAccessions() []string { return slices.Clone(l.fragments) }

// SetLogger sets the logger used for sequence reconstruction diagnostics.
func (l *Library) SetLogger(logger *zap.Logger) {
	l.logger = logger
}

// TaxonIDs returns the distinct taxon ids of the loci, sorted.
func (l *Library) TaxonIDs() []int32 {
	seen := make(map[int32]bool)
	var ids []int32
	for _, locus := range l.loci {
		if id := locus.sac.TaxonID; !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Gene finds a gene by name in any locus.
func (l *Library) Gene(name string) (*Gene, bool) {
	for _, locus := range l.loci {
		if g, ok := locus.Gene(name); ok {
			return g, true
		}
	}
	return nil, false
}

// Allele finds an allele by name in any locus.
func (l *Library) Allele(name string) (Allele, bool) {
	for _, locus := range l.loci {
		if a, ok := locus.Allele(name); ok {
			return a, true
		}
	}
	return nil, false
}

// Genes returns every gene of every locus.
func (l *Library) Genes() []*Gene {
	var out []*Gene
	for _, locus := range l.loci {
		out = append(out, locus.allGenes...)
	}
	return out
}

// Address returns the sequence address of a reference allele.
func (l *Library) Address(a *ReferenceAllele) seqbase.Address {
	return seqbase.NewAddress(l.context, a.accession)
}

// Provider returns the provider holding a reference allele's sequence.
func (l *Library) Provider(a *ReferenceAllele) *seqbase.Provider {
	return l.resolver.Resolve(l.Address(a))
}

// CreateSequence reconstructs the allele's sequence. A reference allele
// spans its first to last defined anchor; a variant is its parent's window
// with the edits applied.
func (l *Library) CreateSequence(ctx context.Context, a Allele) (seq.Sequence, error) {
	switch v := a.(type) {
	case *ReferenceAllele:
		first, _ := v.points.First()
		last, _ := v.points.Last()
		s, err := l.Provider(v).Region(ctx, seq.Range{From: first, To: last})
		if err != nil {
			return seq.Sequence{}, fmt.Errorf("create sequence of %s: %w", v.name, err)
		}
		return s, nil
	case *AllelicVariant:
		src, err := l.source(ctx, v.parent)
		if err != nil {
			return seq.Sequence{}, err
		}
		window, _ := v.parent.Points().Range(v.feature)
		base, err := src.Sequence(window)
		if err != nil {
			return seq.Sequence{}, fmt.Errorf("create sequence of %s: %w", v.name, err)
		}
		out, err := v.mutations.Apply(base)
		if err != nil {
			l.logger.Warn("cannot apply mutations",
				zap.String("allele", v.name),
				zap.String("parent", v.parent.Name()),
				zap.Error(err))
			return seq.Sequence{}, fmt.Errorf("create sequence of %s: %w", v.name, err)
		}
		return out, nil
	}
	return seq.Sequence{}, fmt.Errorf("create sequence: unsupported allele %T", a)
}

// WithEmbeddedSequences returns a copy of the library whose fragment index
// also lists every reference allele accession, after resolving the anchored
// span of each. Encoding the copy stores the resolved sequences inline.
func (l *Library) WithEmbeddedSequences(ctx context.Context) (*Library, error) {
	var refs []Allele
	for _, locus := range l.loci {
		for _, a := range locus.allAlleles {
			if a.IsReference() {
				refs = append(refs, a)
			}
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	out := *l
	out.fragments = slices.Clone(l.fragments)
	err := OrderedCollect(l.ParallelSequences(ctx, SequenceJobs(ctx, refs), 0), func(r SequenceResult) error {
		if r.Err != nil {
			cancel()
			return fmt.Errorf("embed sequences: %w", r.Err)
		}
		acc := r.Allele.(*ReferenceAllele).accession
		if !slices.Contains(out.fragments, acc) {
			out.fragments = append(out.fragments, acc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// source returns a sequence source in the coordinates of a.Points().
func (l *Library) source(ctx context.Context, a Allele) (refpoint.SequenceSource, error) {
	if r, ok := a.(*ReferenceAllele); ok {
		return refpoint.SequenceSourceFunc(l.Provider(r).Source(ctx)), nil
	}
	s, err := l.CreateSequence(ctx, a)
	if err != nil {
		return nil, err
	}
	return refpoint.Static(s), nil
}

// Feature extracts a gene feature from the allele. It reports false when
// the feature uses an anchor the allele does not define.
func (l *Library) Feature(ctx context.Context, a Allele, f refpoint.GeneFeature) (seq.Sequence, bool, error) {
	if _, ok := a.Points().Ranges(f); !ok {
		return seq.Sequence{}, false, nil
	}
	src, err := l.source(ctx, a)
	if err != nil {
		return seq.Sequence{}, false, err
	}
	return refpoint.GetFeature(src, a.Points(), f)
}

// Stat counts the genes of one type on one chain of one species.
type Stat struct {
	TaxonID    int32
	Chain      Chain
	GeneType   GeneType
	Genes      int
	Alleles    int
	Functional int
}

// Stats counts genes and alleles per species, chain and gene type.
func (l *Library) Stats() []Stat {
	type key struct {
		sac SpeciesAndChain
		gt  GeneType
	}
	counts := make(map[key]*Stat)
	for _, locus := range l.loci {
		for _, gt := range GeneTypes {
			genes := locus.genes[gt]
			if len(genes) == 0 {
				continue
			}
			k := key{locus.sac, gt}
			st, ok := counts[k]
			if !ok {
				st = &Stat{TaxonID: locus.sac.TaxonID, Chain: locus.sac.Chain, GeneType: gt}
				counts[k] = st
			}
			st.Genes += len(genes)
			for _, a := range locus.alleles[gt] {
				st.Alleles++
				if a.IsFunctional() {
					st.Functional++
				}
			}
		}
	}
	out := make([]Stat, 0, len(counts))
	for _, st := range counts {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TaxonID != b.TaxonID {
			return a.TaxonID < b.TaxonID
		}
		if a.Chain != b.Chain {
			return a.Chain < b.Chain
		}
		return geneTypeOrder(a.GeneType) < geneTypeOrder(b.GeneType)
	})
	return out
}

func geneTypeOrder(g GeneType) int {
	return slices.Index(GeneTypes, g)
}

// Builder assembles a Library. Builders are single-owner.
type Builder struct {
	lib *Library
}

// NewBuilder starts a library. Sequence fragments are stored through resolver.
func NewBuilder(name, dir string, resolver seqbase.Resolver) *Builder {
	return &Builder{lib: &Library{
		name:       name,
		context:    dir,
		resolver:   resolver,
		species:    make(map[string]int32),
		properties: make(map[string]string),
		logger:     zap.NewNop(),
	}}
}

// SetProperty records a library metadata entry.
func (b *Builder) SetProperty(key, value string) {
	b.lib.properties[key] = value
}

// AddSpeciesName declares a common name for a taxon id.
func (b *Builder) AddSpeciesName(name string, taxonID int32) error {
	if prev, ok := b.lib.species[name]; ok && prev != taxonID {
		return fmt.Errorf("species name %q maps to both %d and %d", name, prev, taxonID)
	}
	b.lib.species[name] = taxonID
	return nil
}

// AddFragment stores a known stretch of an accession in the resolver.
func (b *Builder) AddFragment(accession string, from int32, s seq.Sequence) error {
	addr := seqbase.NewAddress(b.lib.context, accession)
	if err := b.lib.resolver.Resolve(addr).SetRegion(from, s); err != nil {
		return fmt.Errorf("add sequence fragment: %w", err)
	}
	if !slices.Contains(b.lib.fragments, accession) {
		b.lib.fragments = append(b.lib.fragments, accession)
	}
	return nil
}

// AddLocus appends a built locus.
func (b *Builder) AddLocus(locus *LocusContainer) {
	b.lib.loci = append(b.lib.loci, locus)
}

// Build returns the library. The builder must not be used again.
func (b *Builder) Build() *Library {
	lib := b.lib
	b.lib = nil
	return lib
}
