package library

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/inodb/vibe-repseq/internal/refpoint"
	"github.com/inodb/vibe-repseq/internal/seq"
	"github.com/inodb/vibe-repseq/internal/seqbase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 40 nt accession: padding, FR1, CDR1, FR2, CDR2, FR3, CDR3 part of V, tail
const testAccession = "GGGGG" + "ACGTA" + "CCCCC" + "TTTAA" + "GAGAG" + "CATCA" + "TGCATGCA" + "AA"

func testData() []Data {
	return []Data{{
		TaxonID:      9606,
		SpeciesNames: []string{"hs", "human"},
		Meta:         map[string]string{"source": "test"},
		Genes: []GeneData{
			{
				Name: "TRBV1*02", GeneType: "V", Chain: "TRB", IsFunctional: false,
				Parent: "TRBV1*01", ReferenceFeature: "VRegion",
				Mutations: []string{"SA0G", "DC7", "I25T"},
			},
			{
				Name: "TRBV1*01", GeneType: "V", Chain: "TRB", IsFunctional: true,
				BaseSequence: "ACC1",
				AnchorPoints: map[string]int32{
					"FR1Begin": 5, "CDR1Begin": 10, "FR2Begin": 15, "CDR2Begin": 20,
					"FR3Begin": 25, "CDR3Begin": 30, "VEnd": 38,
				},
			},
			{
				Name: "TRBJ1-1*01", GeneType: "J", Chain: "TRB", IsFunctional: true,
				BaseSequence: "ACC1",
				AnchorPoints: map[string]int32{"JBegin": 30, "FR4Begin": 33, "FR4End": 40},
			},
			{
				Name: "TRAV1*01", GeneType: "V", Chain: "TRA", IsFunctional: true,
				BaseSequence: "ACC1",
				AnchorPoints: map[string]int32{"FR1Begin": 0, "VEnd": 20},
			},
		},
		SequenceFragments: []FragmentData{{URI: "ACC1", From: 0, Sequence: testAccession}},
	}}
}

func buildTestLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := Build("test", "/libs", testData(), seqbase.NewAnyResolver())
	require.NoError(t, err)
	return lib
}

func TestBuild_Structure(t *testing.T) {
	lib := buildTestLibrary(t)

	assert.Equal(t, "test", lib.Name())
	assert.Equal(t, []int32{9606}, lib.TaxonIDs())
	assert.Equal(t, map[string]int32{"hs": 9606, "human": 9606}, lib.SpeciesNames())
	assert.Equal(t, []string{"ACC1"}, lib.FragmentAccessions())
	require.Len(t, lib.Loci(), 2)

	trb := lib.Loci()[0]
	assert.Equal(t, SpeciesAndChain{9606, TRB}, trb.SpeciesAndChain())
	assert.Equal(t, LocusID(trb.SpeciesAndChain()), trb.ID())
	assert.Equal(t, "test", trb.Properties()["source"])
	assert.Len(t, trb.Genes(Variable), 1)
	assert.Len(t, trb.Genes(Joining), 1)
	assert.Len(t, trb.Alleles(Variable), 2)

	gene, ok := lib.Gene("TRBV1")
	require.True(t, ok)
	assert.Equal(t, TRB, gene.Chain())
	assert.Equal(t, "TRBV1*01", gene.Reference().Name())
	require.Len(t, gene.Alleles(), 2)

	a, ok := lib.Allele("TRBV1*02")
	require.True(t, ok)
	v, ok := a.(*AllelicVariant)
	require.True(t, ok)
	assert.False(t, v.IsReference())
	assert.Equal(t, "TRBV1*01", v.Parent().Name())
	assert.Same(t, gene.Reference(), Root(v))
	assert.Equal(t, seqbase.NewAddress("/libs", "ACC1"), lib.Address(Root(v)))
}

func TestLibrary_CreateSequence(t *testing.T) {
	lib := buildTestLibrary(t)
	ctx := context.Background()

	ref, _ := lib.Allele("TRBV1*01")
	s, err := lib.CreateSequence(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, testAccession[5:38], s.String())

	variant, _ := lib.Allele("TRBV1*02")
	s, err = lib.CreateSequence(ctx, variant)
	require.NoError(t, err)
	assert.Equal(t, "GCGTA"+"CCCC"+"TTTAA"+"GAGAG"+"CATCA"+"T"+"TGCATGCA", s.String())
}

func TestLibrary_VariantPoints(t *testing.T) {
	lib := buildTestLibrary(t)
	variant, _ := lib.Allele("TRBV1*02")
	rp := variant.Points()

	assert.Equal(t, int32(0), rp.Position(refpoint.FR1Begin))
	assert.Equal(t, int32(5), rp.Position(refpoint.CDR1Begin))
	assert.Equal(t, int32(9), rp.Position(refpoint.FR2Begin))
	assert.Equal(t, int32(14), rp.Position(refpoint.CDR2Begin))
	assert.Equal(t, int32(19), rp.Position(refpoint.FR3Begin))
	assert.Equal(t, int32(24), rp.Position(refpoint.CDR3Begin))
	assert.Equal(t, int32(33), rp.Position(refpoint.VEnd))
	assert.False(t, rp.Defined(refpoint.UTR5Begin))
}

func TestLibrary_Feature(t *testing.T) {
	lib := buildTestLibrary(t)
	ctx := context.Background()
	ref, _ := lib.Allele("TRBV1*01")
	variant, _ := lib.Allele("TRBV1*02")

	tests := []struct {
		allele  Allele
		feature refpoint.GeneFeature
		want    string
		ok      bool
	}{
		{ref, refpoint.VCDR3Part, "TGCATGCA", true},
		{ref, refpoint.CDR1, "CCCCC", true},
		{variant, refpoint.VCDR3Part, "TTGCATGCA", true},
		{variant, refpoint.CDR1, "CCCC", true},
		{variant, refpoint.FR2, "TTTAA", true},
		{ref, refpoint.L1, "", false},
		{variant, refpoint.JRegion, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.allele.Name()+"/"+tt.feature.String(), func(t *testing.T) {
			s, ok, err := lib.Feature(ctx, tt.allele, tt.feature)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, s.String())
		})
	}

	// composite feature concatenates in order
	f, err := refpoint.ParseFeature("CDR1+CDR2")
	require.NoError(t, err)
	s, ok, err := lib.Feature(ctx, ref, f)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "CCCCC"+"GAGAG", s.String())
}

func TestLibrary_MissingSequence(t *testing.T) {
	data := testData()
	data[0].SequenceFragments = nil
	lib, err := Build("test", "", data, seqbase.NewAnyResolver())
	require.NoError(t, err)

	ref, _ := lib.Allele("TRBV1*01")
	_, err = lib.CreateSequence(context.Background(), ref)
	var sue *seqbase.SequenceUnavailableError
	assert.True(t, errors.As(err, &sue))

	variant, _ := lib.Allele("TRBV1*02")
	_, _, err = lib.Feature(context.Background(), variant, refpoint.CDR1)
	assert.True(t, errors.As(err, &sue))
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Data)
		check  func(t *testing.T, err error)
	}{
		{"unknown parent", func(d *Data) {
			d.Genes[0].Parent = "TRBV9*01"
		}, func(t *testing.T, err error) {
			var ure *UnresolvedReferenceError
			require.True(t, errors.As(err, &ure))
			assert.Equal(t, "TRBV1*02", ure.Allele)
			assert.Equal(t, "TRBV9*01", ure.Parent)
		}},
		{"cycle", func(d *Data) {
			d.Genes = append(d.Genes, GeneData{Name: "TRBV2*02", GeneType: "V", Chain: "TRB",
				Parent: "TRBV2*03", ReferenceFeature: "VRegion"},
				GeneData{Name: "TRBV2*03", GeneType: "V", Chain: "TRB",
					Parent: "TRBV2*02", ReferenceFeature: "VRegion"})
		}, func(t *testing.T, err error) {
			assert.ErrorContains(t, err, "cyclic")
		}},
		{"bad anchor order", func(d *Data) {
			d.Genes[1].AnchorPoints["VEnd"] = 3
		}, func(t *testing.T, err error) {
			var ice *refpoint.InvalidCoordinateError
			assert.True(t, errors.As(err, &ice))
		}},
		{"bad chain", func(d *Data) {
			d.Genes[2].Chain = "XYZ"
		}, func(t *testing.T, err error) {
			assert.ErrorContains(t, err, "unknown chain")
		}},
		{"composite reference feature", func(d *Data) {
			d.Genes[0].ReferenceFeature = "VTranscript"
		}, func(t *testing.T, err error) {
			assert.ErrorContains(t, err, "composite")
		}},
		{"mutation outside window", func(d *Data) {
			d.Genes[0].Mutations = []string{"SA40G"}
		}, func(t *testing.T, err error) {
			assert.ErrorContains(t, err, "outside reference feature")
		}},
		{"conflicting fragment", func(d *Data) {
			d.SequenceFragments = append(d.SequenceFragments, FragmentData{URI: "ACC1", From: 0, Sequence: "TTTT"})
		}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, seqbase.ErrRegionConflict)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := testData()
			tt.mutate(&data[0])
			_, err := Build("test", "", data, seqbase.NewAnyResolver())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestLibrary_DataRoundTrip(t *testing.T) {
	lib := buildTestLibrary(t)

	var buf bytes.Buffer
	require.NoError(t, WriteData(&buf, lib.Data()))
	data, err := ReadData(&buf)
	require.NoError(t, err)

	again, err := Build("test", "/libs", data, seqbase.NewAnyResolver())
	require.NoError(t, err)
	assert.Equal(t, lib.Data(), again.Data())

	ctx := context.Background()
	v1, _ := lib.Allele("TRBV1*02")
	v2, _ := again.Allele("TRBV1*02")
	s1, err := lib.CreateSequence(ctx, v1)
	require.NoError(t, err)
	s2, err := again.CreateSequence(ctx, v2)
	require.NoError(t, err)
	assert.Equal(t, s1.String(), s2.String())
}

func TestLibrary_Stats(t *testing.T) {
	lib := buildTestLibrary(t)
	assert.Equal(t, []Stat{
		{TaxonID: 9606, Chain: TRA, GeneType: Variable, Genes: 1, Alleles: 1, Functional: 1},
		{TaxonID: 9606, Chain: TRB, GeneType: Variable, Genes: 1, Alleles: 2, Functional: 1},
		{TaxonID: 9606, Chain: TRB, GeneType: Joining, Genes: 1, Alleles: 1, Functional: 1},
	}, lib.Stats())
}

func TestLocusBuilder_CodecRules(t *testing.T) {
	points := refpoint.NewBuilder()
	require.NoError(t, points.SetPosition(refpoint.DBegin, 0))
	require.NoError(t, points.SetPosition(refpoint.DEnd, 12))

	lb := NewLocusBuilder(LocusID(SpeciesAndChain{9606, TRB}), SpeciesAndChain{9606, TRB})

	_, err := lb.AddAllele(AlleleRecord{Name: "TRBD1*01", GeneType: Diversity, Reference: true, Accession: "X"})
	assert.ErrorContains(t, err, "no anchor points")

	_, err = lb.AddAllele(AlleleRecord{Name: "TRBD1*02", GeneType: Diversity, Parent: "TRBD1*01",
		Feature: refpoint.DRegion})
	var ure *UnresolvedReferenceError
	assert.True(t, errors.As(err, &ure))

	_, err = lb.AddAllele(AlleleRecord{Name: "TRBD1*01", GeneType: Diversity, Reference: true,
		Accession: "X", Points: points.Build()})
	require.NoError(t, err)

	_, err = lb.AddAllele(AlleleRecord{Name: "TRBD1*01", GeneType: Diversity, Reference: true,
		Accession: "X", Points: points.Build()})
	assert.ErrorContains(t, err, "duplicate")

	_, err = lb.AddAllele(AlleleRecord{Name: "TRBD1*02", GeneType: Joining, Parent: "TRBD1*01",
		Feature: refpoint.DRegion})
	assert.ErrorContains(t, err, "gene type")

	v, err := lb.AddAllele(AlleleRecord{Name: "TRBD1*02", GeneType: Diversity, Parent: "TRBD1*01",
		Feature: refpoint.DRegion, Mutations: seq.Mutations{seq.Insert(6, 'A')}})
	require.NoError(t, err)
	assert.Equal(t, int32(13), v.Points().Position(refpoint.DEnd))

	locus := lb.Build()
	assert.Len(t, locus.AllAlleles(), 2)
	assert.Len(t, locus.AllGenes(), 1)
}

func TestTypes(t *testing.T) {
	gt, err := ParseGeneType("j")
	require.NoError(t, err)
	assert.Equal(t, Joining, gt)
	assert.Equal(t, "J", gt.String())
	assert.Len(t, Variable.Points(), 11)
	assert.Len(t, Constant.Points(), 3)
	_, err = ParseGeneType("X")
	assert.Error(t, err)

	c, err := ParseChain("igh")
	require.NoError(t, err)
	assert.Equal(t, IGH, c)

	assert.Equal(t, "TRBV12-3", GeneName("TRBV12-3*01"))
	assert.Equal(t, "TRBV1", GeneName("TRBV1"))
}

func TestLibrary_DataFragmentsPerTaxon(t *testing.T) {
	data := testData()
	data[0].LibraryMeta = map[string]string{"release": "7"}
	data = append(data, Data{
		TaxonID: 10090,
		Genes: []GeneData{{
			Name: "TRBJ1-1*01", GeneType: "J", Chain: "TRB", IsFunctional: true,
			BaseSequence: "ACC2",
			AnchorPoints: map[string]int32{"JBegin": 0, "FR4Begin": 2, "FR4End": 4},
		}, {
			Name: "TRBJ2-1*01", GeneType: "J", Chain: "TRB", IsFunctional: true,
			BaseSequence: "ACC1",
			AnchorPoints: map[string]int32{"JBegin": 30, "FR4Begin": 33, "FR4End": 40},
		}},
		SequenceFragments: []FragmentData{
			{URI: "ACC2", From: 0, Sequence: "ACGT"},
			{URI: "SPARE", From: 0, Sequence: "GG"},
		},
	})
	lib, err := Build("test", "/libs", data, seqbase.NewAnyResolver())
	require.NoError(t, err)

	uris := func(d Data) []string {
		var out []string
		for _, f := range d.SequenceFragments {
			out = append(out, f.URI)
		}
		return out
	}
	out := lib.Data()
	require.Len(t, out, 2)
	assert.Equal(t, []string{"ACC1", "SPARE"}, uris(out[0]))
	assert.Equal(t, []string{"ACC1", "ACC2"}, uris(out[1]))
	for _, d := range out {
		assert.Equal(t, map[string]string{"release": "7"}, d.LibraryMeta)
	}

	mouse, err := Build("mouse", "/libs", out[1:], seqbase.NewAnyResolver())
	require.NoError(t, err)
	a, ok := mouse.Allele("TRBJ1-1*01")
	require.True(t, ok)
	s, err := mouse.CreateSequence(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, "ACGT", s.String())
	assert.Equal(t, "7", mouse.Properties()["release"])
}

func TestLibrary_WithEmbeddedSequences(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "genes.fasta"), []byte(">g1 test\n"+testAccession+"\n"), 0o644))

	data := []Data{{
		TaxonID: 9606,
		Genes: []GeneData{{
			Name: "TRBJ1*01", GeneType: "J", Chain: "TRB", IsFunctional: true,
			BaseSequence: "file://genes.fasta#g1",
			AnchorPoints: map[string]int32{"JBegin": 30, "FR4Begin": 33, "FR4End": 40},
		}},
	}}
	resolver := seqbase.NewChainResolver(seqbase.NewFileResolver(), seqbase.NewAnyResolver())
	lib, err := Build("test", dir, data, resolver)
	require.NoError(t, err)
	assert.Empty(t, lib.FragmentAccessions())

	embedded, err := lib.WithEmbeddedSequences(context.Background())
	require.NoError(t, err)
	assert.Empty(t, lib.FragmentAccessions(), "original unchanged")
	assert.Equal(t, []string{"file://genes.fasta#g1"}, embedded.FragmentAccessions())

	frags := embedded.Data()[0].SequenceFragments
	require.Len(t, frags, 1)
	assert.Equal(t, testAccession, frags[0].Sequence)

	data[0].Genes[0].BaseSequence = "file://absent.fasta#g1"
	broken, err := Build("test", dir, data, seqbase.NewChainResolver(seqbase.NewFileResolver()))
	require.NoError(t, err)
	_, err = broken.WithEmbeddedSequences(context.Background())
	assert.Error(t, err)
}
