package seqbase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Source describes how a RemoteResolver locates, caches and fetches the
// FASTA file behind an address.
type Source interface {
	// Scheme is the URI scheme the source serves.
	Scheme() string
	CanResolve(addr Address) bool
	// CacheFileName names the local copy of the remote file.
	CacheFileName(addr Address) string
	// RecordID selects the record within the file; "" takes the only record.
	RecordID(addr Address) string
	Open(ctx context.Context, addr Address) (io.ReadCloser, error)
}

// RemoteResolver resolves addresses through a Source, downloading each file
// once into a local cache directory and reusing the local copy afterwards.
type RemoteResolver struct {
	source    Source
	cacheDir  string
	providers providerMap
	files     fastaCache
	logger    *zap.Logger
	metrics   *Metrics
}

// NewRemoteResolver creates a resolver that caches downloads in cacheDir.
func NewRemoteResolver(source Source, cacheDir string) *RemoteResolver {
	return &RemoteResolver{
		source:   source,
		cacheDir: cacheDir,
		logger:   zap.NewNop(),
	}
}

// SetLogger sets the logger for download reporting.
func (r *RemoteResolver) SetLogger(logger *zap.Logger) {
	r.logger = logger
}

// SetMetrics sets the metrics sink.
func (r *RemoteResolver) SetMetrics(m *Metrics) {
	r.metrics = m
}

// CanResolve delegates to the source.
func (r *RemoteResolver) CanResolve(addr Address) bool {
	return r.source.CanResolve(addr)
}

// Resolve returns the provider for addr. Nothing is fetched until the first
// region request.
func (r *RemoteResolver) Resolve(addr Address) *Provider {
	return r.providers.get(addr, func() *Provider {
		r.metrics.providerCreated(r.source.Scheme())
		return newProvider(addr, r.fill, r.metrics)
	})
}

func (r *RemoteResolver) fill(ctx context.Context, p *Provider) error {
	addr := p.Address()
	if !r.source.CanResolve(addr) {
		return fmt.Errorf("%s cannot resolve %s", r.source.Scheme(), addr)
	}
	path, err := r.ensureLocal(ctx, addr)
	if err != nil {
		return err
	}
	s, err := r.files.record(path, r.source.RecordID(addr))
	if err != nil {
		return err
	}
	return p.SetRegion(0, s)
}

// ensureLocal downloads the file behind addr unless a cached copy exists.
func (r *RemoteResolver) ensureLocal(ctx context.Context, addr Address) (string, error) {
	name := r.source.CacheFileName(addr)
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid cache file name %q for %s", name, addr)
	}
	destPath := filepath.Join(r.cacheDir, name)
	if _, err := os.Stat(destPath); err == nil {
		return destPath, nil
	}

	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create sequence cache dir: %w", err)
	}

	start := time.Now()
	body, err := r.source.Open(ctx, addr)
	if err != nil {
		r.metrics.downloadDone(r.source.Scheme(), "error")
		return "", fmt.Errorf("fetch %s: %w", addr, err)
	}
	defer body.Close()

	f, err := os.CreateTemp(r.cacheDir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	tmp := f.Name()
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		r.metrics.downloadDone(r.source.Scheme(), "error")
		return "", fmt.Errorf("write %s: %w", destPath, err)
	}

	if err := os.Rename(tmp, destPath); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename %s: %w", destPath, err)
	}
	r.metrics.downloadDone(r.source.Scheme(), "ok")
	r.logger.Info("downloaded sequence",
		zap.String("address", addr.URI),
		zap.String("path", destPath),
		zap.Int64("bytes", n),
		zap.Duration("elapsed", time.Since(start)))
	return destPath, nil
}

// Fetcher retrieves the body at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPFetcher fetches over HTTP with a fixed timeout.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher creates a fetcher. A zero timeout defaults to 30 seconds.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch issues a GET request and returns the body of a 200 response.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

// NucCoreBaseURL is the NCBI E-utilities efetch endpoint.
const NucCoreBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"

// NucCoreGISource serves gi://<id> addresses from the NCBI nucleotide database.
type NucCoreGISource struct {
	BaseURL string
	Fetcher Fetcher
}

// NewNucCoreGIResolver creates a resolver for gi:// addresses.
func NewNucCoreGIResolver(fetcher Fetcher, cacheDir string) *RemoteResolver {
	return NewRemoteResolver(&NucCoreGISource{BaseURL: NucCoreBaseURL, Fetcher: fetcher}, cacheDir)
}

func (s *NucCoreGISource) Scheme() string { return "gi" }

// id returns the numeric GI of addr, or "" if it has none.
func (s *NucCoreGISource) id(addr Address) string {
	id := addr.Opaque()
	if id == "" {
		return ""
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return ""
		}
	}
	return id
}

func (s *NucCoreGISource) CanResolve(addr Address) bool {
	return addr.Scheme() == "gi" && s.id(addr) != ""
}

func (s *NucCoreGISource) CacheFileName(addr Address) string {
	return "gi_" + s.id(addr)
}

// RecordID returns "": efetch answers with exactly the requested record.
func (s *NucCoreGISource) RecordID(Address) string {
	return ""
}

// URL returns the efetch URL for addr.
func (s *NucCoreGISource) URL(addr Address) string {
	q := url.Values{}
	q.Set("db", "nuccore")
	q.Set("id", s.id(addr))
	q.Set("rettype", "fasta")
	q.Set("retmode", "text")
	return s.BaseURL + "?" + q.Encode()
}

func (s *NucCoreGISource) Open(ctx context.Context, addr Address) (io.ReadCloser, error) {
	if s.Fetcher == nil {
		return nil, errors.New("no fetcher configured")
	}
	return s.Fetcher.Fetch(ctx, s.URL(addr))
}

