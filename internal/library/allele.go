package library

import (
	"github.com/inodb/vibe-repseq/internal/refpoint"
	"github.com/inodb/vibe-repseq/internal/seq"
)

// Allele is either a *ReferenceAllele or an *AllelicVariant.
type Allele interface {
	Name() string
	Gene() *Gene
	IsFunctional() bool
	IsReference() bool
	// Points returns the allele's anchors. Reference alleles report absolute
	// offsets in their accession; variants report offsets in their own
	// reconstructed sequence.
	Points() refpoint.ReferencePoints

	sealed()
}

// ReferenceAllele owns its anchors and the accession its sequence comes from.
type ReferenceAllele struct {
	name       string
	gene       *Gene
	functional bool
	accession  string
	points     refpoint.ReferencePoints
}

func (a *ReferenceAllele) Name() string { return a.name }
func (a *ReferenceAllele) Gene() *Gene { return a.gene }
func (a *ReferenceAllele) IsFunctional() bool { return a.functional }
func (a *ReferenceAllele) IsReference() bool { return true }
func (a *ReferenceAllele) Points() refpoint.ReferencePoints { return a.points }
func (a *ReferenceAllele) sealed() {}

// Accession returns the URI of the sequence the anchors refer to.
func (a *ReferenceAllele) Accession() string { return a.accession }

// AllelicVariant is stored as edits against the window of its parent
// selected by a reference feature. Mutation positions are relative to the
// start of that window.
type AllelicVariant struct {
	name       string
	gene       *Gene
	functional bool
	parent     Allele
	feature    refpoint.GeneFeature
	mutations  seq.Mutations
	points     refpoint.ReferencePoints
}

func (a *AllelicVariant) Name() string { return a.name }
func (a *AllelicVariant) Gene() *Gene { return a.gene }
func (a *AllelicVariant) IsFunctional() bool { return a.functional }
func (a *AllelicVariant) IsReference() bool { return false }
func (a *AllelicVariant) Points() refpoint.ReferencePoints { return a.points }
func (a *AllelicVariant) sealed() {}

// Parent returns the allele the edits are expressed against.
func (a *AllelicVariant) Parent() Allele { return a.parent }

// ReferenceFeature returns the window of the parent the edits apply to.
func (a *AllelicVariant) ReferenceFeature() refpoint.GeneFeature { return a.feature }

// Mutations returns a copy of the edit list.
func (a *AllelicVariant) Mutations() seq.Mutations {
	out := make(seq.Mutations, len(a.mutations))
	copy(out, a.mutations)
	return out
}

// Root follows parents up to the reference allele.
func Root(a Allele) *ReferenceAllele {
	for {
		switch v := a.(type) {
		case *ReferenceAllele:
			return v
		case *AllelicVariant:
			a = v.parent
		default:
			return nil
		}
	}
}
