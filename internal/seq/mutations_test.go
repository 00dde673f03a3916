package seq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutation_EncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		m    Mutation
		code int32
	}{
		{"substitution", Substitute(12, 'A', 'G'), 12<<6 | 0<<3 | 2},
		{"insertion", Insert(0, 'T'), 7<<3 | 3},
		{"deletion", Delete(5, 'C'), 5<<6 | 1<<3 | 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := tt.m.Encode()
			require.NoError(t, err)
			assert.Equal(t, tt.code, code)

			got, err := DecodeMutation(code)
			require.NoError(t, err)
			assert.Equal(t, tt.m, got)
		})
	}
}

func TestMutation_EncodeInvalid(t *testing.T) {
	_, err := Mutation{Pos: 1}.Encode()
	assert.Error(t, err)
	_, err = Mutation{Pos: -1, To: 'A'}.Encode()
	assert.Error(t, err)
	_, err = Mutation{Pos: 1, From: 'X', To: 'A'}.Encode()
	assert.Error(t, err)

	_, err = DecodeMutation(7<<3 | 7)
	assert.Error(t, err)
}

func TestParseMutation(t *testing.T) {
	tests := []struct {
		in      string
		want    Mutation
		wantErr bool
	}{
		{"SA12G", Substitute(12, 'A', 'G'), false},
		{"DA12", Delete(12, 'A'), false},
		{"I12T", Insert(12, 'T'), false},
		{"X12T", Mutation{}, true},
		{"SA12", Mutation{}, true},
		{"Iab", Mutation{}, true},
		{"D", Mutation{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMutation(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestMutations_Apply(t *testing.T) {
	ref := MustNew("ACGTACGT")

	tests := []struct {
		name string
		ms   Mutations
		want string
	}{
		{"empty", nil, "ACGTACGT"},
		{"substitution", Mutations{Substitute(0, 'A', 'T')}, "TCGTACGT"},
		{"deletion", Mutations{Delete(3, 'T')}, "ACGACGT"},
		{"insertion at start", Mutations{Insert(0, 'G')}, "GACGTACGT"},
		{"insertion at end", Mutations{Insert(8, 'A')}, "ACGTACGTA"},
		{"mixed", Mutations{Substitute(1, 'C', 'A'), Insert(4, 'T'), Delete(7, 'T')}, "AAGTTACG"},
		{"insertion before deletion", Mutations{Delete(2, 'G'), Insert(2, 'C')}, "ACCTACGT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.ms.Apply(ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestMutations_ApplyOrderIndependent(t *testing.T) {
	ref := MustNew("GATTACAGATTACA")
	ms := Mutations{Substitute(1, 'A', 'C'), Insert(5, 'G'), Insert(5, 'T'), Delete(9, 'T'), Substitute(13, 'A', 'G')}
	want, err := ms.Apply(ref)
	require.NoError(t, err)

	reversed := Mutations{ms[4], ms[3], ms[1], ms[2], ms[0]}
	got, err := reversed.Apply(ref)
	require.NoError(t, err)
	assert.Equal(t, want.String(), got.String())
	assert.Equal(t, "GCTTAGTCAGATACG", want.String())
}

func TestMutations_ApplyErrors(t *testing.T) {
	ref := MustNew("ACGT")

	tests := []struct {
		name string
		ms   Mutations
	}{
		{"from mismatch", Mutations{Substitute(0, 'C', 'G')}},
		{"overlap", Mutations{Substitute(1, 'C', 'G'), Delete(1, 'C')}},
		{"beyond end", Mutations{Delete(4, 'A')}},
		{"insertion beyond end", Mutations{Insert(5, 'A')}},
		{"negative substitution", Mutations{Substitute(-1, 'A', 'G')}},
		{"negative insertion", Mutations{Insert(-2, 'A')}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.ms.Apply(ref)
			assert.Error(t, err)
		})
	}
}

func TestMutations_ConvertPosition(t *testing.T) {
	ms := Mutations{Insert(2, 'A'), Delete(5, 'C'), Substitute(7, 'G', 'T')}

	assert.Equal(t, int32(0), ms.ConvertPosition(0))
	assert.Equal(t, int32(2), ms.ConvertPosition(2))
	assert.Equal(t, int32(4), ms.ConvertPosition(3))
	assert.Equal(t, int32(6), ms.ConvertPosition(5))
	assert.Equal(t, int32(6), ms.ConvertPosition(6))
	assert.Equal(t, int32(10), ms.ConvertPosition(10))
}

func TestMutations_TextAndCodes(t *testing.T) {
	ms, err := ParseMutations([]string{"SA1G", " I3T", "DC4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"SA1G", "I3T", "DC4"}, ms.Strings())

	codes, err := ms.Encode()
	require.NoError(t, err)
	back, err := DecodeMutations(codes)
	require.NoError(t, err)
	assert.Equal(t, ms, back)

	_, err = ParseMutations([]string{"bad"})
	assert.Error(t, err)
}
