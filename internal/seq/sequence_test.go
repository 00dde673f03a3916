package seq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ACGT", "ACGT", false},
		{"acgtn", "ACGTN", false},
		{"", "", false},
		{"ACGX", "", true},
		{"AC-G", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s, err := New(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.String())
		})
	}
}

func TestSequence_RangeCopies(t *testing.T) {
	s := MustNew("AACCGGTT")
	sub := s.Range(Range{From: 2, To: 6})
	assert.Equal(t, "CCGG", sub.String())

	b := sub.Bytes()
	b[0] = 'T'
	assert.Equal(t, "CCGG", sub.String())
	assert.Equal(t, "AACCGGTT", s.String())
}

func TestConcat(t *testing.T) {
	a := MustNew("ACG")
	b := MustNew("TTN")
	c := Concat(a, b)
	assert.Equal(t, "ACGTTN", c.String())
	assert.True(t, c.HasWildcards())
	assert.False(t, a.HasWildcards())
	assert.True(t, Concat().IsEmpty())
}

func TestBuilder(t *testing.T) {
	b := NewBuilder(4)
	b.Append(MustNew("AC")).AppendByte('G')
	assert.Equal(t, 3, b.Len())

	s := b.Build()
	assert.Equal(t, "ACG", s.String())
	assert.Equal(t, 0, b.Len())

	b.AppendByte('T')
	assert.Equal(t, "ACG", s.String())
}

func TestRange(t *testing.T) {
	_, err := NewRange(3, 2)
	assert.Error(t, err)
	_, err = NewRange(-1, 2)
	assert.Error(t, err)

	r, err := NewRange(2, 10)
	require.NoError(t, err)
	assert.Equal(t, 8, r.Len())
	assert.True(t, r.Contains(Range{From: 2, To: 10}))
	assert.False(t, r.Contains(Range{From: 1, To: 5}))
	assert.True(t, r.ContainsPosition(10))
	assert.False(t, r.ContainsPosition(11))
	assert.True(t, r.Intersects(Range{From: 9, To: 12}))
	assert.False(t, r.Intersects(Range{From: 10, To: 12}))
	assert.Equal(t, Range{From: 0, To: 8}, r.Move(-2))
	assert.Equal(t, "[2, 10)", r.String())
}
