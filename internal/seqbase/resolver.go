package seqbase

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Resolver maps addresses to providers. Resolve must return the same
// provider for equal addresses for the lifetime of the resolver.
type Resolver interface {
	CanResolve(addr Address) bool
	Resolve(addr Address) *Provider
}

// providerMap is an identity map of providers guarded by a mutex.
type providerMap struct {
	mu        sync.Mutex
	providers map[Address]*Provider
}

func (m *providerMap) get(addr Address, create func() *Provider) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.providers[addr]; ok {
		return p
	}
	if m.providers == nil {
		m.providers = make(map[Address]*Provider)
	}
	p := create()
	m.providers[addr] = p
	return p
}

func (m *providerMap) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.providers)
}

// AnyResolver accepts every address and hands out providers that only serve
// what has been put into them with SetRegion.
type AnyResolver struct {
	providers providerMap
	metrics   *Metrics
}

// NewAnyResolver creates a cache-only resolver.
func NewAnyResolver() *AnyResolver {
	return &AnyResolver{}
}

// SetMetrics sets the metrics sink.
func (r *AnyResolver) SetMetrics(m *Metrics) {
	r.metrics = m
}

// CanResolve always returns true.
func (r *AnyResolver) CanResolve(Address) bool {
	return true
}

// Resolve returns the provider for addr, creating an empty one if needed.
func (r *AnyResolver) Resolve(addr Address) *Provider {
	return r.providers.get(addr, func() *Provider {
		r.metrics.providerCreated("any")
		return newProvider(addr, nil, r.metrics)
	})
}

// Len returns the number of providers created so far.
func (r *AnyResolver) Len() int {
	return r.providers.len()
}

// ChainResolver delegates each address to the first resolver that can
// resolve it and remembers the result.
type ChainResolver struct {
	resolvers []Resolver
	providers providerMap
}

// NewChainResolver creates a chain over resolvers, in priority order.
func NewChainResolver(resolvers ...Resolver) *ChainResolver {
	return &ChainResolver{resolvers: resolvers}
}

// CanResolve reports whether any resolver in the chain accepts addr.
func (c *ChainResolver) CanResolve(addr Address) bool {
	for _, r := range c.resolvers {
		if r.CanResolve(addr) {
			return true
		}
	}
	return false
}

// Resolve returns the provider for addr. When no resolver accepts addr the
// returned provider fails on first access.
func (c *ChainResolver) Resolve(addr Address) *Provider {
	return c.providers.get(addr, func() *Provider {
		for _, r := range c.resolvers {
			if r.CanResolve(addr) {
				return r.Resolve(addr)
			}
		}
		return newProvider(addr, nil, nil)
	})
}

// ChainConfig configures NewDefaultChain.
type ChainConfig struct {
	// CacheDir holds downloaded remote sequence files.
	CacheDir    string
	HTTPTimeout time.Duration
	// S3 enables s3:// addresses when set.
	S3      S3API
	Metrics *Metrics
	Logger  *zap.Logger
}

// NewDefaultChain builds the standard chain: local files, NCBI nuccore gi://
// records, S3 objects when configured, then cache-only for everything else.
func NewDefaultChain(cfg ChainConfig) *ChainResolver {
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	file := NewFileResolver()
	file.SetMetrics(cfg.Metrics)
	gi := NewNucCoreGIResolver(NewHTTPFetcher(cfg.HTTPTimeout), cfg.CacheDir)
	gi.SetMetrics(cfg.Metrics)
	gi.SetLogger(cfg.Logger)
	cacheOnly := NewAnyResolver()
	cacheOnly.SetMetrics(cfg.Metrics)

	resolvers := []Resolver{file, gi}
	if cfg.S3 != nil {
		s3r := NewS3Resolver(cfg.S3, cfg.CacheDir)
		s3r.SetMetrics(cfg.Metrics)
		s3r.SetLogger(cfg.Logger)
		resolvers = append(resolvers, s3r)
	}
	resolvers = append(resolvers, cacheOnly)
	return NewChainResolver(resolvers...)
}

// DefaultCacheDir returns the per-user directory for downloaded sequences.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "vibe-repseq", "sequences")
}

var (
	defaultMu       sync.Mutex
	defaultResolver Resolver
)

// Default returns the process-wide resolver, creating the default chain on
// first use.
func Default() Resolver {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultResolver == nil {
		defaultResolver = NewDefaultChain(ChainConfig{})
	}
	return defaultResolver
}

// SetDefault replaces the process-wide resolver.
func SetDefault(r Resolver) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultResolver = r
}

// ResetDefault drops the process-wide resolver and everything it cached.
func ResetDefault() {
	SetDefault(nil)
}
