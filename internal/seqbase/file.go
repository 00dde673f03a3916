package seqbase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/inodb/vibe-repseq/internal/fasta"
	"github.com/inodb/vibe-repseq/internal/seq"
)

// recordIndex holds the records of one FASTA file, keyed by full header, by
// ID and by each '|'-separated header field. Full headers take precedence,
// otherwise the first record claiming a key keeps it.
type recordIndex map[string]string

func indexRecords(recs []fasta.Record) recordIndex {
	idx := make(recordIndex, 2*len(recs))
	for _, rec := range recs {
		idx[rec.Header] = rec.Sequence
	}
	for _, rec := range recs {
		keys := append([]string{rec.ID()}, rec.Fields("|")...)
		for _, k := range keys {
			if _, ok := idx[k]; !ok && k != "" {
				idx[k] = rec.Sequence
			}
		}
	}
	return idx
}

// lookup returns the record called name. An empty name selects the only
// record of a single-record file.
func (idx recordIndex) lookup(name string, count int) (string, bool) {
	if name == "" && count == 1 {
		for _, s := range idx {
			return s, true
		}
	}
	s, ok := idx[name]
	return s, ok
}

// fastaCache parses each FASTA file once.
type fastaCache struct {
	mu    sync.Mutex
	files map[string]*parsedFile
}

type parsedFile struct {
	once  sync.Once
	index recordIndex
	count int
	err   error
}

func (c *fastaCache) load(path string) (*parsedFile, error) {
	c.mu.Lock()
	if c.files == nil {
		c.files = make(map[string]*parsedFile)
	}
	pf, ok := c.files[path]
	if !ok {
		pf = &parsedFile{}
		c.files[path] = pf
	}
	c.mu.Unlock()

	pf.once.Do(func() {
		recs, err := fasta.ReadFile(path)
		if err != nil {
			pf.err = err
			return
		}
		pf.index = indexRecords(recs)
		pf.count = len(recs)
	})
	return pf, pf.err
}

func (c *fastaCache) record(path, name string) (seq.Sequence, error) {
	pf, err := c.load(path)
	if err != nil {
		return seq.Sequence{}, err
	}
	raw, ok := pf.index.lookup(name, pf.count)
	if !ok {
		return seq.Sequence{}, fmt.Errorf("record %q not found in %s", name, path)
	}
	s, err := seq.New(raw)
	if err != nil {
		return seq.Sequence{}, fmt.Errorf("record %q in %s: %w", name, path, err)
	}
	return s, nil
}

// FileResolver serves file://path#record addresses from local FASTA files.
// Relative paths are resolved against the address context.
type FileResolver struct {
	providers providerMap
	files     fastaCache
	metrics   *Metrics
}

// NewFileResolver creates a resolver for local FASTA files.
func NewFileResolver() *FileResolver {
	return &FileResolver{}
}

// SetMetrics sets the metrics sink.
func (r *FileResolver) SetMetrics(m *Metrics) {
	r.metrics = m
}

// CanResolve accepts file:// addresses.
func (r *FileResolver) CanResolve(addr Address) bool {
	return addr.Scheme() == "file" && addr.Opaque() != ""
}

// Resolve returns the provider for addr. The file is read on first access.
func (r *FileResolver) Resolve(addr Address) *Provider {
	return r.providers.get(addr, func() *Provider {
		r.metrics.providerCreated("file")
		return newProvider(addr, r.fill, r.metrics)
	})
}

func (r *FileResolver) fill(_ context.Context, p *Provider) error {
	addr := p.Address()
	path := addr.Opaque()
	if !filepath.IsAbs(path) && addr.Context != "" {
		path = filepath.Join(addr.Context, path)
	}
	s, err := r.files.record(path, addr.Fragment())
	if err != nil {
		return err
	}
	return p.SetRegion(0, s)
}
