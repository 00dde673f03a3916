package convert

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-repseq/internal/fasta"
	"github.com/inodb/vibe-repseq/internal/library"
	"github.com/inodb/vibe-repseq/internal/refpoint"
	"github.com/inodb/vibe-repseq/internal/registry"
	"github.com/inodb/vibe-repseq/internal/seqbase"
)

const padded = `>g1|desc|F
AC..GT.A
>g2|desc|F
..TTGCAAT.
`

func testOptions() Options {
	return Options{
		GeneType:           library.Variable,
		Chain:              library.TRB,
		TaxonID:            9606,
		NameIndex:          0,
		FunctionalityIndex: 2,
		Points: map[refpoint.Point]int32{
			refpoint.FR1Begin:  0,
			refpoint.CDR1Begin: 4,
			refpoint.VEnd:      -1,
		},
	}
}

func TestConvertFiles_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "padded.fasta")
	require.NoError(t, os.WriteFile(in, []byte(padded), 0o644))
	outFasta := filepath.Join(dir, "seqs", "genes.fasta")
	require.NoError(t, os.MkdirAll(filepath.Dir(outFasta), 0o755))
	outJSON := filepath.Join(dir, "lib.json")

	stats, err := New(testOptions()).ConvertFiles(in, outFasta, outJSON)
	require.NoError(t, err)
	assert.Equal(t, Stats{Records: 2, Genes: 2}, stats)

	recs, err := fasta.ReadFile(outFasta)
	require.NoError(t, err)
	assert.Equal(t, []fasta.Record{
		{Header: "g1|desc|F", Sequence: "ACGTA"},
		{Header: "g2|desc|F", Sequence: "TTGCAAT"},
	}, recs)

	jf, err := os.Open(outJSON)
	require.NoError(t, err)
	data, err := library.ReadData(jf)
	jf.Close()
	require.NoError(t, err)
	require.Len(t, data, 1)
	require.Len(t, data[0].Genes, 2)

	g1, g2 := data[0].Genes[0], data[0].Genes[1]
	assert.Equal(t, "g1", g1.Name)
	assert.Equal(t, "file://seqs/genes.fasta#g1", g1.BaseSequence)
	assert.Equal(t, map[string]int32{"FR1Begin": 0, "CDR1Begin": 2, "VEnd": 4}, g1.AnchorPoints)
	assert.Equal(t, map[string]int32{"CDR1Begin": 2, "VEnd": 6}, g2.AnchorPoints)
	assert.True(t, g1.IsFunctional)
	assert.Equal(t, "V", g1.GeneType)
	assert.Equal(t, "TRB", g1.Chain)

	// the JSON library loads and reads its sequences from the FASTA file
	resolver := seqbase.NewChainResolver(seqbase.NewFileResolver(), seqbase.NewAnyResolver())
	reg := registry.New(resolver)
	require.NoError(t, reg.RegisterLibraries(outJSON))
	lib, err := reg.GetLibrary(registry.NewKey(9606, "lib"))
	require.NoError(t, err)
	a, ok := lib.Allele("g1")
	require.True(t, ok)
	s, err := lib.CreateSequence(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, "ACGT", s.String())

	f, err := refpoint.ParseFeature("CDR1Begin:VEnd")
	require.NoError(t, err)
	cdr1, ok, err := lib.Feature(context.Background(), a, f)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "GT", cdr1.String())
}

func TestConvert_SkipsAndDuplicates(t *testing.T) {
	input := `>a|x|F
ACGT
>b|x|P
AC.GT
>n|x|F
ACNT
>a|x|F
GGGG
`
	opts := testOptions()
	opts.Points = map[refpoint.Point]int32{refpoint.VEnd: -1}

	_, _, err := New(opts).Convert(strings.NewReader(input), &bytes.Buffer{}, "out.fasta")
	assert.ErrorContains(t, err, "duplicate records for a")

	opts.IgnoreDuplicates = true
	var out bytes.Buffer
	data, stats, err := New(opts).Convert(strings.NewReader(input), &out, "out.fasta")
	require.NoError(t, err)
	assert.Equal(t, Stats{Records: 4, Genes: 2, Wildcards: 1, Duplicates: 1}, stats)
	assert.Equal(t, ">a|x|F\nACGT\n>b|x|P\nACGT\n", out.String())

	require.Len(t, data[0].Genes, 2)
	assert.True(t, data[0].Genes[0].IsFunctional)
	assert.False(t, data[0].Genes[1].IsFunctional)
}

func TestConvert_Functionality(t *testing.T) {
	opts := testOptions()
	opts.Points = nil
	opts.Functionality = regexp.MustCompile(`F|ORF`)
	input := ">a|x|F\nA\n>b|x|ORF\nA\n>c|x|(F)\nA\n"

	data, _, err := New(opts).Convert(strings.NewReader(input), &bytes.Buffer{}, "x")
	require.NoError(t, err)
	got := map[string]bool{}
	for _, g := range data[0].Genes {
		got[g.Name] = g.IsFunctional
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": false}, got)
}

func TestConvert_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		modify func(*Options)
		want   string
	}{
		{"missing name field", ">a\nACGT\n", func(o *Options) { o.NameIndex = 3 }, "gene name"},
		{"missing functionality field", ">a\nACGT\n", nil, "functionality"},
		{"position beyond end", ">a|x|F\nACGT\n", func(o *Options) { o.Points = map[refpoint.Point]int32{refpoint.VEnd: 9} }, "beyond padded length"},
		{"position before start", ">a|x|F\nACGT\n", func(o *Options) { o.Points = map[refpoint.Point]int32{refpoint.VEnd: -9} }, "before sequence start"},
		{"invalid letters", ">a|x|F\nACXT\n", nil, "invalid nucleotide"},
		{"anchors out of order", ">a|x|F\nACGT\n", func(o *Options) {
			o.Points = map[refpoint.Point]int32{refpoint.FR1Begin: 3, refpoint.VEnd: 1}
		}, "a|x|F"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			if tt.modify != nil {
				tt.modify(&opts)
			}
			_, _, err := New(opts).Convert(strings.NewReader(tt.input), &bytes.Buffer{}, "x")
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParsePoints(t *testing.T) {
	got, err := ParsePoints(map[string]string{"VEnd": "-1", "FR1Begin": "0"})
	require.NoError(t, err)
	assert.Equal(t, map[refpoint.Point]int32{refpoint.VEnd: -1, refpoint.FR1Begin: 0}, got)

	_, err = ParsePoints(map[string]string{"Nowhere": "1"})
	assert.Error(t, err)
	_, err = ParsePoints(map[string]string{"VEnd": "end"})
	assert.Error(t, err)
}

func TestRemovePadding(t *testing.T) {
	s, m := removePadding("A..CG.", '.')
	assert.Equal(t, "ACG", s)
	assert.Equal(t, []int32{0, -1, -1, 1, 2, -1, 3}, m)
}
