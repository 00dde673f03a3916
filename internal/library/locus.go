package library

import (
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/inodb/vibe-repseq/internal/refpoint"
	"github.com/inodb/vibe-repseq/internal/seq"
)

// UnresolvedReferenceError reports an allele whose parent is unknown.
type UnresolvedReferenceError struct {
	Allele string
	Parent string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("allele %s references unknown parent allele %s", e.Allele, e.Parent)
}

// Gene groups the alleles sharing a gene name within a locus.
type Gene struct {
	name     string
	geneType GeneType
	locus    *LocusContainer
	alleles  []Allele
}

func (g *Gene) Name() string { return g.name }
func (g *Gene) Type() GeneType { return g.geneType }
func (g *Gene) Locus() *LocusContainer { return g.locus }
func (g *Gene) Chain() Chain { return g.locus.sac.Chain }
func (g *Gene) TaxonID() int32 { return g.locus.sac.TaxonID }
func (g *Gene) Alleles() []Allele { return slices.Clone(g.alleles) }
func (g *Gene) Reference() *ReferenceAllele { return Root(g.alleles[0]) }

// LocusContainer holds the genes and alleles of one chain of one species.
// It is immutable once built.
type LocusContainer struct {
	id         uuid.UUID
	sac        SpeciesAndChain
	properties map[string]string

	genes      [numGeneTypes][]*Gene
	alleles    [numGeneTypes][]Allele
	allGenes   []*Gene
	allAlleles []Allele

	geneByName   map[string]*Gene
	alleleByName map[string]Allele
}

func (l *LocusContainer) ID() uuid.UUID { return l.id }
func (l *LocusContainer) SpeciesAndChain() SpeciesAndChain { return l.sac }

// Properties returns a copy of the locus metadata.
func (l *LocusContainer) Properties() map[string]string {
	return maps.Clone(l.properties)
}

// Genes returns the genes of one type, in load order.
func (l *LocusContainer) Genes(t GeneType) []*Gene {
	return slices.Clone(l.genes[t])
}

// AllGenes returns every gene, in load order.
func (l *LocusContainer) AllGenes() []*Gene {
	return slices.Clone(l.allGenes)
}

// Alleles returns the alleles of one type, in load order.
func (l *LocusContainer) Alleles(t GeneType) []Allele {
	return slices.Clone(l.alleles[t])
}

// AllAlleles returns every allele, in load order.
func (l *LocusContainer) AllAlleles() []Allele {
	return slices.Clone(l.allAlleles)
}

// Gene looks a gene up by name.
func (l *LocusContainer) Gene(name string) (*Gene, bool) {
	g, ok := l.geneByName[name]
	return g, ok
}

// Allele looks an allele up by name.
func (l *LocusContainer) Allele(name string) (Allele, bool) {
	a, ok := l.alleleByName[name]
	return a, ok
}

// AlleleRecord is the neutral description of one allele used to populate a
// locus, whatever the source format.
type AlleleRecord struct {
	Name       string
	GeneType   GeneType
	Functional bool
	Reference  bool

	// reference alleles
	Accession string
	Points    refpoint.ReferencePoints

	// allelic variants
	Parent    string
	Feature   refpoint.GeneFeature
	Mutations seq.Mutations
}

// LocusBuilder accumulates alleles for one locus. Parents must be added
// before their variants. Builders are single-owner.
type LocusBuilder struct {
	locus *LocusContainer
}

// NewLocusBuilder starts a locus.
func NewLocusBuilder(id uuid.UUID, sac SpeciesAndChain) *LocusBuilder {
	return &LocusBuilder{locus: &LocusContainer{
		id:           id,
		sac:          sac,
		properties:   make(map[string]string),
		geneByName:   make(map[string]*Gene),
		alleleByName: make(map[string]Allele),
	}}
}

// SpeciesAndChain returns the locus being built.
func (b *LocusBuilder) SpeciesAndChain() SpeciesAndChain {
	return b.locus.sac
}

// SetProperty records a metadata entry on the locus.
func (b *LocusBuilder) SetProperty(key, value string) {
	b.locus.properties[key] = value
}

// HasAllele reports whether an allele with the name was already added.
func (b *LocusBuilder) HasAllele(name string) bool {
	_, ok := b.locus.alleleByName[name]
	return ok
}

// AddAllele adds an allele. The first allele of a gene creates the gene and
// must carry anchor points.
func (b *LocusBuilder) AddAllele(rec AlleleRecord) (Allele, error) {
	l := b.locus
	if !rec.GeneType.Valid() {
		return nil, fmt.Errorf("allele %s: unknown gene type %d", rec.Name, rec.GeneType)
	}
	if _, dup := l.alleleByName[rec.Name]; dup {
		return nil, fmt.Errorf("duplicate allele %s", rec.Name)
	}

	var parent Allele
	if !rec.Reference {
		if rec.Parent == "" {
			return nil, fmt.Errorf("allele %s: variant without parent", rec.Name)
		}
		p, ok := l.alleleByName[rec.Parent]
		if !ok {
			return nil, &UnresolvedReferenceError{Allele: rec.Name, Parent: rec.Parent}
		}
		parent = p
	}

	geneName := GeneName(rec.Name)
	gene, ok := l.geneByName[geneName]
	if !ok {
		if !rec.Reference {
			return nil, fmt.Errorf("allele %s: first allele of gene %s is not a reference allele", rec.Name, geneName)
		}
		if rec.Points.IsEmpty() {
			return nil, fmt.Errorf("allele %s: first allele of gene %s has no anchor points", rec.Name, geneName)
		}
		gene = &Gene{name: geneName, geneType: rec.GeneType, locus: l}
	} else if gene.geneType != rec.GeneType {
		return nil, fmt.Errorf("allele %s: gene type %s differs from gene %s (%s)", rec.Name, rec.GeneType, geneName, gene.geneType)
	}

	var allele Allele
	if rec.Reference {
		if rec.Accession == "" {
			return nil, fmt.Errorf("allele %s: reference allele without accession", rec.Name)
		}
		allele = &ReferenceAllele{
			name:       rec.Name,
			gene:       gene,
			functional: rec.Functional,
			accession:  rec.Accession,
			points:     rec.Points,
		}
	} else {
		points, err := variantPoints(parent.Points(), rec.Feature, rec.Mutations)
		if err != nil {
			return nil, fmt.Errorf("allele %s: %w", rec.Name, err)
		}
		allele = &AllelicVariant{
			name:       rec.Name,
			gene:       gene,
			functional: rec.Functional,
			parent:     parent,
			feature:    rec.Feature,
			mutations:  slices.Clone(rec.Mutations),
			points:     points,
		}
	}

	if !ok {
		l.geneByName[geneName] = gene
		l.genes[rec.GeneType] = append(l.genes[rec.GeneType], gene)
		l.allGenes = append(l.allGenes, gene)
	}
	gene.alleles = append(gene.alleles, allele)
	l.alleles[rec.GeneType] = append(l.alleles[rec.GeneType], allele)
	l.allAlleles = append(l.allAlleles, allele)
	l.alleleByName[rec.Name] = allele
	return allele, nil
}

// variantPoints derives a variant's anchors: the parent's anchors inside the
// reference window, made relative to the window and moved through the edits.
func variantPoints(parent refpoint.ReferencePoints, feature refpoint.GeneFeature, ms seq.Mutations) (refpoint.ReferencePoints, error) {
	if feature.IsZero() {
		return refpoint.ReferencePoints{}, fmt.Errorf("variant without reference feature")
	}
	if feature.IsComposite() {
		return refpoint.ReferencePoints{}, fmt.Errorf("reference feature %s is composite", feature)
	}
	window, ok := parent.Range(feature)
	if !ok {
		return refpoint.ReferencePoints{}, fmt.Errorf("reference feature %s is not defined in parent", feature)
	}
	n := int32(window.Len())
	for _, m := range ms {
		limit := n - 1
		if m.Kind() == seq.Insertion {
			limit = n
		}
		if m.Pos > limit {
			return refpoint.ReferencePoints{}, fmt.Errorf("mutation %s outside reference feature %s", m, feature)
		}
	}
	return parent.Within(window).Map(ms.ConvertPosition)
}

// Build freezes and returns the locus. The builder must not be used again.
func (b *LocusBuilder) Build() *LocusContainer {
	l := b.locus
	b.locus = nil
	for t := range l.genes {
		l.genes[t] = slices.Clip(l.genes[t])
		l.alleles[t] = slices.Clip(l.alleles[t])
	}
	return l
}
