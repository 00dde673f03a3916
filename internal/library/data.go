package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/inodb/vibe-repseq/internal/refpoint"
	"github.com/inodb/vibe-repseq/internal/seq"
	"github.com/inodb/vibe-repseq/internal/seqbase"
)

// Data is the JSON exchange form of the genes of one species.
// A library file holds a JSON array of Data.
type Data struct {
	TaxonID           int32             `json:"taxonId"`
	SpeciesNames      []string          `json:"speciesNames,omitempty"`
	Meta              map[string]string `json:"meta,omitempty"`
	LibraryMeta       map[string]string `json:"libraryMeta,omitempty"`
	Genes             []GeneData        `json:"genes"`
	SequenceFragments []FragmentData    `json:"sequenceFragments,omitempty"`
}

// GeneData describes one allele. Reference alleles carry BaseSequence and
// absolute AnchorPoints; variants carry Parent, ReferenceFeature and
// Mutations.
type GeneData struct {
	Name             string           `json:"name"`
	GeneType         string           `json:"geneType"`
	Chain            string           `json:"chain"`
	IsFunctional     bool             `json:"isFunctional"`
	BaseSequence     string           `json:"baseSequence,omitempty"`
	AnchorPoints     map[string]int32 `json:"anchorPoints,omitempty"`
	Parent           string           `json:"parent,omitempty"`
	ReferenceFeature string           `json:"referenceFeature,omitempty"`
	Mutations        []string         `json:"mutations,omitempty"`
}

// FragmentData is a stretch of sequence embedded in the library.
type FragmentData struct {
	URI      string `json:"uri"`
	From     int32  `json:"from"`
	Sequence string `json:"sequence"`
}

// ReadData decodes a JSON array of Data.
func ReadData(r io.Reader) ([]Data, error) {
	var out []Data
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode library JSON: %w", err)
	}
	return out, nil
}

// WriteData encodes data as an indented JSON array.
func WriteData(w io.Writer, data []Data) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encode library JSON: %w", err)
	}
	return nil
}

var locusNamespace = uuid.MustParse("6b1a4f3e-2d0c-4b8e-9a57-3f2e1d0c9b8a")

// LocusID returns the stable identifier given to loci loaded from JSON.
func LocusID(sac SpeciesAndChain) uuid.UUID {
	return uuid.NewSHA1(locusNamespace, []byte(strconv.Itoa(int(sac.TaxonID))+":"+string(sac.Chain)))
}

// ParseAnchorPoints converts a name to offset map to reference points.
func ParseAnchorPoints(m map[string]int32) (refpoint.ReferencePoints, error) {
	names := slices.Collect(maps.Keys(m))
	sort.Strings(names)
	b := refpoint.NewBuilder()
	for _, name := range names {
		p, err := refpoint.ParsePoint(name)
		if err != nil {
			return refpoint.ReferencePoints{}, err
		}
		if err := b.SetPosition(p, m[name]); err != nil {
			return refpoint.ReferencePoints{}, err
		}
	}
	return b.Build(), nil
}

// AnchorPointsMap is the inverse of ParseAnchorPoints.
func AnchorPointsMap(rp refpoint.ReferencePoints) map[string]int32 {
	if rp.IsEmpty() {
		return nil
	}
	m := make(map[string]int32)
	for _, p := range refpoint.Points() {
		if rp.Defined(p) {
			m[p.String()] = rp.Position(p)
		}
	}
	return m
}

func (g GeneData) record() (AlleleRecord, Chain, error) {
	rec := AlleleRecord{Name: g.Name, Functional: g.IsFunctional}
	if g.Name == "" {
		return rec, "", errors.New("gene record without name")
	}
	gt, err := ParseGeneType(g.GeneType)
	if err != nil {
		return rec, "", fmt.Errorf("gene %s: %w", g.Name, err)
	}
	rec.GeneType = gt
	chain, err := ParseChain(g.Chain)
	if err != nil {
		return rec, "", fmt.Errorf("gene %s: %w", g.Name, err)
	}

	if g.Parent == "" {
		rec.Reference = true
		rec.Accession = g.BaseSequence
		rec.Points, err = ParseAnchorPoints(g.AnchorPoints)
		if err != nil {
			return rec, "", fmt.Errorf("gene %s: %w", g.Name, err)
		}
		return rec, chain, nil
	}

	rec.Parent = g.Parent
	rec.Feature, err = refpoint.ParseFeature(g.ReferenceFeature)
	if err != nil {
		return rec, "", fmt.Errorf("gene %s: %w", g.Name, err)
	}
	rec.Mutations, err = seq.ParseMutations(g.Mutations)
	if err != nil {
		return rec, "", fmt.Errorf("gene %s: %w", g.Name, err)
	}
	return rec, chain, nil
}

// Build materializes a library from its JSON form. Sequence fragments are
// stored in the resolver before any gene is created. Variants may appear
// before their parents; parent cycles and unknown parents are errors.
func Build(name, dir string, data []Data, resolver seqbase.Resolver) (*Library, error) {
	b := NewBuilder(name, dir, resolver)

	for _, d := range data {
		for k, v := range d.LibraryMeta {
			b.SetProperty(k, v)
		}
		for _, f := range d.SequenceFragments {
			s, err := seq.New(f.Sequence)
			if err != nil {
				return nil, fmt.Errorf("sequence fragment %s: %w", f.URI, err)
			}
			if err := b.AddFragment(f.URI, f.From, s); err != nil {
				return nil, err
			}
		}
	}

	for _, d := range data {
		for _, sn := range d.SpeciesNames {
			if err := b.AddSpeciesName(sn, d.TaxonID); err != nil {
				return nil, err
			}
		}

		byChain := make(map[Chain][]AlleleRecord)
		var chains []Chain
		for _, g := range d.Genes {
			rec, chain, err := g.record()
			if err != nil {
				return nil, err
			}
			if _, ok := byChain[chain]; !ok {
				chains = append(chains, chain)
			}
			byChain[chain] = append(byChain[chain], rec)
		}

		for _, chain := range chains {
			sac := SpeciesAndChain{TaxonID: d.TaxonID, Chain: chain}
			lb := NewLocusBuilder(LocusID(sac), sac)
			for k, v := range d.Meta {
				lb.SetProperty(k, v)
			}
			if err := addInDependencyOrder(lb, byChain[chain]); err != nil {
				return nil, fmt.Errorf("locus %s: %w", sac, err)
			}
			b.AddLocus(lb.Build())
		}
	}
	return b.Build(), nil
}

// addInDependencyOrder adds reference alleles in input order, then variants
// as soon as their parent is present.
func addInDependencyOrder(lb *LocusBuilder, recs []AlleleRecord) error {
	names := make(map[string]bool, len(recs))
	for _, r := range recs {
		names[r.Name] = true
	}

	var pending []AlleleRecord
	for _, r := range recs {
		if !r.Reference {
			if !names[r.Parent] {
				return &UnresolvedReferenceError{Allele: r.Name, Parent: r.Parent}
			}
			pending = append(pending, r)
			continue
		}
		if _, err := lb.AddAllele(r); err != nil {
			return err
		}
	}

	for len(pending) > 0 {
		var next []AlleleRecord
		for _, r := range pending {
			if !lb.HasAllele(r.Parent) {
				next = append(next, r)
				continue
			}
			if _, err := lb.AddAllele(r); err != nil {
				return err
			}
		}
		if len(next) == len(pending) {
			return fmt.Errorf("allele %s: cyclic parent chain", next[0].Name)
		}
		pending = next
	}
	return nil
}

// Data splits the library back into its JSON form, one entry per taxon id.
// Library metadata is copied to every entry. Each embedded sequence fragment
// goes to every entry with a reference allele on its accession, so entries
// stay usable on their own; fragments nothing refers to go to the first one.
func (l *Library) Data() []Data {
	var out []Data
	index := make(map[int32]int)
	users := make(map[string][]int)
	for _, locus := range l.loci {
		id := locus.sac.TaxonID
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, Data{TaxonID: id})
		}
		d := &out[i]
		for k, v := range locus.properties {
			if d.Meta == nil {
				d.Meta = make(map[string]string)
			}
			if _, exists := d.Meta[k]; !exists {
				d.Meta[k] = v
			}
		}
		for _, a := range locus.allAlleles {
			d.Genes = append(d.Genes, geneData(a, locus.sac.Chain))
			if ra, ok := a.(*ReferenceAllele); ok && !slices.Contains(users[ra.accession], i) {
				users[ra.accession] = append(users[ra.accession], i)
			}
		}
	}

	for i := range out {
		for name, id := range l.species {
			if id == out[i].TaxonID {
				out[i].SpeciesNames = append(out[i].SpeciesNames, name)
			}
		}
		sort.Strings(out[i].SpeciesNames)
		if len(l.properties) > 0 {
			out[i].LibraryMeta = maps.Clone(l.properties)
		}
	}

	if len(out) > 0 {
		for _, acc := range l.fragments {
			targets := users[acc]
			if len(targets) == 0 {
				targets = []int{0}
			}
			p := l.resolver.Resolve(seqbase.NewAddress(l.context, acc))
			for _, f := range p.Fragments() {
				fd := FragmentData{URI: acc, From: f.From, Sequence: f.Sequence.String()}
				for _, i := range targets {
					out[i].SequenceFragments = append(out[i].SequenceFragments, fd)
				}
			}
		}
	}
	return out
}

func geneData(a Allele, chain Chain) GeneData {
	g := GeneData{
		Name:         a.Name(),
		GeneType:     a.Gene().Type().String(),
		Chain:        string(chain),
		IsFunctional: a.IsFunctional(),
	}
	switch v := a.(type) {
	case *ReferenceAllele:
		g.BaseSequence = v.accession
		g.AnchorPoints = AnchorPointsMap(v.points)
	case *AllelicVariant:
		g.Parent = v.parent.Name()
		g.ReferenceFeature = v.feature.String()
		g.Mutations = v.mutations.Strings()
	}
	return g
}
