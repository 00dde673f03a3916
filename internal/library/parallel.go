package library

import (
	"context"
	"runtime"
	"sync"

	"github.com/inodb/vibe-repseq/internal/seq"
)

// SequenceJob asks for the sequence of one allele.
type SequenceJob struct {
	Seq    int
	Allele Allele
}

// SequenceResult holds the reconstructed sequence of a single allele.
type SequenceResult struct {
	Seq      int
	Allele   Allele
	Sequence seq.Sequence
	Err      error
}

// ParallelSequences reconstructs allele sequences using a pool of workers.
// Results are sent to the returned channel in arrival order (not sequence order).
// Use OrderedCollect to consume results in sequence-number order.
// If workers is 0, runtime.NumCPU() is used.
func (l *Library) ParallelSequences(ctx context.Context, jobs <-chan SequenceJob, workers int) <-chan SequenceResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan SequenceResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()
			for job := range jobs {
				s, err := l.CreateSequence(ctx, job.Allele)
				results <- SequenceResult{
					Seq:      job.Seq,
					Allele:   job.Allele,
					Sequence: s,
					Err:      err,
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// SequenceJobs feeds alleles to a job channel in order, numbering them from
// zero. Feeding stops early when ctx is done.
func SequenceJobs(ctx context.Context, alleles []Allele) <-chan SequenceJob {
	jobs := make(chan SequenceJob)
	go func() {
		defer close(jobs)
		for i, a := range alleles {
			select {
			case jobs <- SequenceJob{Seq: i, Allele: a}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return jobs
}

// OrderedCollect calls fn for each result in sequence-number order.
// It buffers out-of-order results in a pending map and emits them
// as soon as the next expected sequence number is available.
// Blocks until the results channel is closed.
func OrderedCollect(results <-chan SequenceResult, fn func(SequenceResult) error) error {
	pending := make(map[int]SequenceResult)
	nextSeq := 0

	for r := range results {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}
