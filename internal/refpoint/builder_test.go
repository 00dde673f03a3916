package refpoint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_SetPosition(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.SetPosition(FR1Begin, 10))
	require.NoError(t, b.SetPosition(CDR1Begin, 85))
	require.NoError(t, b.SetPosition(FR2Begin, 85))
	require.NoError(t, b.SetPosition(VEnd, 300))

	rp := b.Build()
	assert.Equal(t, int32(10), rp.Position(FR1Begin))
	assert.Equal(t, int32(-1), rp.Position(CDR2Begin))
	assert.True(t, rp.Defined(VEnd))
	assert.False(t, rp.Defined(JBegin))
}

func TestBuilder_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		pos  int32
	}{
		{"before earlier anchor", CDR2Begin, 5},
		{"after later anchor", FR1Begin, 400},
		{"negative", FR3Begin, -2},
		{"unknown point", Point(NumPoints), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			require.NoError(t, b.SetPosition(FR1Begin, 10))
			require.NoError(t, b.SetPosition(CDR1Begin, 80))
			require.NoError(t, b.SetPosition(VEnd, 300))
			before := b.Points()

			err := b.SetPosition(tt.p, tt.pos)
			var ice *InvalidCoordinateError
			require.True(t, errors.As(err, &ice), "expected InvalidCoordinateError, got %v", err)
			assert.Equal(t, tt.p, ice.Point)
			assert.Equal(t, tt.pos, ice.Position)
			assert.True(t, before.Equal(b.Points()), "rejected call changed state")
		})
	}
}

func TestBuilder_ClearPosition(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.SetPosition(DBegin, 3))
	require.NoError(t, b.SetPosition(DBegin, -1))
	assert.True(t, b.Build().IsEmpty())
}

func TestBuilder_SetPositionsFromPartial(t *testing.T) {
	src := NewBuilder()
	require.NoError(t, src.SetPosition(FR1Begin, 5))
	require.NoError(t, src.SetPosition(FR3Begin, 50))
	other := src.Build()

	b := NewBuilder()
	require.NoError(t, b.SetPosition(CDR2Begin, 20))

	// both anchors fit around CDR2Begin
	require.NoError(t, b.SetPositionsFrom(other))
	assert.Equal(t, int32(5), b.Points().Position(FR1Begin))
	assert.Equal(t, int32(50), b.Points().Position(FR3Begin))

	// FR1Begin applies, CDR3Begin at 10 violates CDR2Begin at 20
	src2 := NewBuilder()
	require.NoError(t, src2.SetPosition(FR1Begin, 1))
	require.NoError(t, src2.SetPosition(CDR3Begin, 10))

	b2 := NewBuilder()
	require.NoError(t, b2.SetPosition(CDR2Begin, 20))
	err := b2.SetPositionsFrom(src2.Build())
	require.Error(t, err)
	assert.Equal(t, int32(1), b2.Points().Position(FR1Begin))
	assert.False(t, b2.Points().Defined(CDR3Begin))
}

func TestFromArray(t *testing.T) {
	arr := make([]int32, NumPoints)
	for i := range arr {
		arr[i] = -1
	}
	arr[JBegin] = 0
	arr[FR4Begin] = 12
	arr[FR4End] = 40

	rp, err := FromArray(arr)
	require.NoError(t, err)
	assert.Equal(t, arr, rp.Array())
	assert.Equal(t, "{JBegin:0, FR4Begin:12, FR4End:40}", rp.String())

	first, ok := rp.First()
	assert.True(t, ok)
	assert.Equal(t, int32(0), first)
	last, ok := rp.Last()
	assert.True(t, ok)
	assert.Equal(t, int32(40), last)

	arr[FR4End] = 5
	_, err = FromArray(arr)
	assert.Error(t, err)

	_, err = FromArray(arr[:3])
	assert.Error(t, err)
}

func TestReferencePoints_WithinAndMap(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.SetPosition(FR1Begin, 10))
	require.NoError(t, b.SetPosition(CDR1Begin, 20))
	require.NoError(t, b.SetPosition(VEnd, 50))
	rp := b.Build()

	w := rp.Within(seqRange(15, 50))
	assert.False(t, w.Defined(FR1Begin))
	assert.Equal(t, int32(5), w.Position(CDR1Begin))
	assert.Equal(t, int32(35), w.Position(VEnd))

	moved := rp.Move(-10)
	assert.Equal(t, int32(0), moved.Position(FR1Begin))
	assert.Equal(t, int32(10), rp.Position(FR1Begin))

	mapped, err := rp.Map(func(v int32) int32 { return v * 2 })
	require.NoError(t, err)
	assert.Equal(t, int32(100), mapped.Position(VEnd))

	_, err = rp.Map(func(v int32) int32 { return 60 - v })
	assert.Error(t, err)
}
