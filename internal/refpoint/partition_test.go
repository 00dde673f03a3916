package refpoint

import (
	"errors"
	"testing"

	"github.com/inodb/vibe-repseq/internal/seq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqRange(from, to int32) seq.Range {
	return seq.Range{From: from, To: to}
}

func vPoints(t *testing.T) ReferencePoints {
	t.Helper()
	b := NewBuilder()
	require.NoError(t, b.SetPosition(UTR5Begin, 0))
	require.NoError(t, b.SetPosition(L1Begin, 2))
	require.NoError(t, b.SetPosition(L1End, 5))
	require.NoError(t, b.SetPosition(L2Begin, 8))
	require.NoError(t, b.SetPosition(FR1Begin, 10))
	require.NoError(t, b.SetPosition(CDR3Begin, 16))
	require.NoError(t, b.SetPosition(VEnd, 20))
	return b.Build()
}

func TestGetFeature_Simple(t *testing.T) {
	s := seq.MustNew("AACCCGGGTTACGTACGTAC")
	rp := vPoints(t)

	for _, f := range []GeneFeature{VRegion, VGene, VCDR3Part, L1} {
		t.Run(f.String(), func(t *testing.T) {
			got, ok, err := GetFeature(Static(s), rp, f)
			require.NoError(t, err)
			require.True(t, ok)
			r, _ := rp.Range(f)
			assert.Equal(t, r.Len(), got.Len())
			assert.Equal(t, s.Range(r).String(), got.String())
		})
	}
}

func TestGetFeature_Undefined(t *testing.T) {
	s := seq.MustNew("AACCCGGGTTACGTACGTAC")
	got, ok, err := GetFeature(Static(s), vPoints(t), CDR1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, got.IsEmpty())

	_, ok, err = GetFeature(Static(s), vPoints(t), JRegion)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetFeature_CompositeConcatenates(t *testing.T) {
	s := seq.MustNew("AACCCGGGTTACGTACGTAC")
	rp := vPoints(t)

	got, ok, err := GetFeature(Static(s), rp, VTranscript)
	require.NoError(t, err)
	require.True(t, ok)

	ranges, ok := rp.Ranges(VTranscript)
	require.True(t, ok)
	require.Len(t, ranges, 2)
	assert.Equal(t, ranges[0].Len()+ranges[1].Len(), got.Len())
	assert.Equal(t, s.Range(ranges[0]).String()+s.Range(ranges[1]).String(), got.String())
	assert.Equal(t, "AACCC"+"TTACGTACGTAC", got.String())
}

func TestGetFeature_SourceError(t *testing.T) {
	boom := errors.New("boom")
	src := SequenceSourceFunc(func(seq.Range) (seq.Sequence, error) { return seq.Sequence{}, boom })
	_, ok, err := GetFeature(src, vPoints(t), VTranscript)
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)

	_, _, err = GetFeature(Static(seq.MustNew("ACGT")), vPoints(t), VRegion)
	assert.Error(t, err)
}
