package library

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allAlleles(lib *Library) []Allele {
	var out []Allele
	for _, locus := range lib.Loci() {
		out = append(out, locus.AllAlleles()...)
	}
	return out
}

// repeat cycles through alleles to build a long job list.
func repeat(alleles []Allele, n int) []Allele {
	out := make([]Allele, n)
	for i := range out {
		out[i] = alleles[i%len(alleles)]
	}
	return out
}

func TestParallelSequences_OrderPreservation(t *testing.T) {
	lib := buildTestLibrary(t)
	ctx := context.Background()
	alleles := repeat(allAlleles(lib), 200)

	var collected []int
	err := OrderedCollect(lib.ParallelSequences(ctx, SequenceJobs(ctx, alleles), 8), func(r SequenceResult) error {
		require.NoError(t, r.Err)
		want, err := lib.CreateSequence(ctx, r.Allele)
		require.NoError(t, err)
		assert.Equal(t, want.String(), r.Sequence.String())
		collected = append(collected, r.Seq)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, collected, 200)
	for i, seq := range collected {
		assert.Equal(t, i, seq, "result %d out of order", i)
	}
}

func TestParallelSequences_SingleWorker(t *testing.T) {
	lib := buildTestLibrary(t)
	ctx := context.Background()
	alleles := allAlleles(lib)

	var names []string
	err := OrderedCollect(lib.ParallelSequences(ctx, SequenceJobs(ctx, alleles), 1), func(r SequenceResult) error {
		names = append(names, r.Allele.Name())
		return nil
	})
	require.NoError(t, err)
	require.Len(t, names, len(alleles))
	for i, a := range alleles {
		assert.Equal(t, a.Name(), names[i])
	}
}

func TestParallelSequences_EmptyInput(t *testing.T) {
	lib := buildTestLibrary(t)
	ctx := context.Background()

	count := 0
	err := OrderedCollect(lib.ParallelSequences(ctx, SequenceJobs(ctx, nil), 4), func(r SequenceResult) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestOrderedCollect_EarlyError(t *testing.T) {
	lib := buildTestLibrary(t)
	ctx := context.Background()
	alleles := repeat(allAlleles(lib), 100)

	count := 0
	err := OrderedCollect(lib.ParallelSequences(ctx, SequenceJobs(ctx, alleles), 4), func(r SequenceResult) error {
		count++
		if count == 5 {
			return fmt.Errorf("stop at 5")
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 5, count)
}

func TestSequenceJobs_Cancelled(t *testing.T) {
	lib := buildTestLibrary(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := 0
	for range SequenceJobs(ctx, repeat(allAlleles(lib), 1000)) {
		n++
	}
	assert.Less(t, n, 1000)
}
