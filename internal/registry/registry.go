// Package registry keeps the loaded libraries of a process, keyed by species
// and library name, and discovers missing ones through library resolvers.
package registry

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/inodb/vibe-repseq/internal/container"
	"github.com/inodb/vibe-repseq/internal/library"
	"github.com/inodb/vibe-repseq/internal/seqbase"
)

var (
	ErrUnknownSpecies   = errors.New("unknown species")
	ErrLibraryNotFound  = errors.New("library not found")
	ErrAliasConflict    = errors.New("species alias conflict")
	ErrDuplicateLibrary = errors.New("duplicate library")
)

// Key identifies a library: a taxon id (or a species name still to be
// resolved) plus a library name.
type Key struct {
	TaxonID int32
	Species string
	Name    string
}

// NewKey returns a resolved key.
func NewKey(taxonID int32, name string) Key {
	return Key{TaxonID: taxonID, Name: name}
}

// SpeciesKey returns a key that names the species instead of its taxon id.
func SpeciesKey(species, name string) Key {
	return Key{Species: species, Name: name}
}

// Resolved reports whether the key carries a taxon id.
func (k Key) Resolved() bool {
	return k.Species == ""
}

func (k Key) String() string {
	if k.Resolved() {
		return strconv.Itoa(int(k.TaxonID)) + ":" + k.Name
	}
	return k.Species + ":" + k.Name
}

// LibraryResolver finds library records by library name.
type LibraryResolver interface {
	// Resolve returns the records of the named library, or nil if it has
	// none.
	Resolve(name string) ([]library.Data, error)
	// Context returns the directory relative sequence addresses of the named
	// library resolve against.
	Context(name string) string
}

// Registry is a catalog of loaded libraries. Each library holds the genes of
// one taxon. A Registry is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	resolver  seqbase.Resolver
	resolvers []LibraryResolver
	species   map[string]int32
	libraries map[Key]*library.Library
	order     []Key
	logger    *zap.Logger
}

// New creates a registry. Sequence fragments of registered libraries go to
// resolver; nil selects the process default resolver at use time.
func New(resolver seqbase.Resolver) *Registry {
	return &Registry{
		resolver:  resolver,
		species:   make(map[string]int32),
		libraries: make(map[Key]*library.Library),
		logger:    zap.NewNop(),
	}
}

// SetLogger sets the logger.
func (r *Registry) SetLogger(logger *zap.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// SequenceResolver returns the resolver libraries of this registry use.
func (r *Registry) SequenceResolver() seqbase.Resolver {
	if r.resolver == nil {
		return seqbase.Default()
	}
	return r.resolver
}

// AddLibraryResolver appends a discovery resolver. Resolvers are consulted in
// the order they were added.
func (r *Registry) AddLibraryResolver(lr LibraryResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers = append(r.resolvers, lr)
}

// AddSearchPath adds a FolderResolver for dir.
func (r *Registry) AddSearchPath(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve search path: %w", err)
	}
	fr := NewFolderResolver(abs)
	r.mu.Lock()
	defer r.mu.Unlock()
	fr.SetLogger(r.logger)
	r.resolvers = append(r.resolvers, fr)
	return nil
}

// ResolveSpecies maps a species name to its taxon id.
func (r *Registry) ResolveSpecies(name string) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveSpecies(name)
}

func (r *Registry) resolveSpecies(name string) (int32, error) {
	id, ok := r.species[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSpecies, name)
	}
	return id, nil
}

// ResolveKey replaces the species name of an unresolved key by its taxon id.
func (r *Registry) ResolveKey(k Key) (Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveKey(k)
}

func (r *Registry) resolveKey(k Key) (Key, error) {
	if k.Resolved() {
		return k, nil
	}
	id, err := r.resolveSpecies(k.Species)
	if err != nil {
		return Key{}, err
	}
	return NewKey(id, k.Name), nil
}

// AddSpeciesAlias declares a common species name.
func (r *Registry) AddSpeciesAlias(name string, taxonID int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.species[name]; ok && prev != taxonID {
		return fmt.Errorf("%w: %q maps to both %d and %d", ErrAliasConflict, name, prev, taxonID)
	}
	r.species[name] = taxonID
	return nil
}

// GetLibrary returns the library for k, loading it through the library
// resolvers if needed. Records for other taxa found on the way are
// registered too, unless a library with their key is already loaded.
func (r *Registry) GetLibrary(k Key) (*library.Library, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, err := r.resolveKey(k)
	if err != nil {
		return nil, err
	}
	if lib, ok := r.libraries[k]; ok {
		return lib, nil
	}

	for _, lr := range r.resolvers {
		records, err := lr.Resolve(k.Name)
		if err != nil {
			return nil, fmt.Errorf("resolve library %s: %w", k.Name, err)
		}
		if records == nil {
			continue
		}
		for _, d := range records {
			if _, loaded := r.libraries[NewKey(d.TaxonID, k.Name)]; loaded {
				continue
			}
			if _, err := r.register(lr.Context(k.Name), k.Name, d); err != nil {
				return nil, err
			}
		}
		if lib, ok := r.libraries[k]; ok {
			return lib, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, k)
}

// LoadByName registers every record any library resolver yields for name,
// skipping keys already loaded, and returns all loaded libraries with that
// name.
func (r *Registry) LoadByName(name string) ([]*library.Library, error) {
	r.mu.Lock()
	for _, lr := range r.resolvers {
		records, err := lr.Resolve(name)
		if err != nil {
			r.mu.Unlock()
			return nil, fmt.Errorf("resolve library %s: %w", name, err)
		}
		for _, d := range records {
			if _, loaded := r.libraries[NewKey(d.TaxonID, name)]; loaded {
				continue
			}
			if _, err := r.register(lr.Context(name), name, d); err != nil {
				r.mu.Unlock()
				return nil, err
			}
		}
	}
	r.mu.Unlock()

	libs := r.LibrariesByName(name)
	if len(libs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, name)
	}
	return libs, nil
}

// RegisterLibrary builds a library from one record and adds it. Relative
// sequence addresses resolve against dir.
func (r *Registry) RegisterLibrary(dir, name string, data library.Data) (*library.Library, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.register(dir, name, data)
}

func (r *Registry) register(dir, name string, data library.Data) (*library.Library, error) {
	k := NewKey(data.TaxonID, name)
	if _, ok := r.libraries[k]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateLibrary, k)
	}
	for _, sn := range data.SpeciesNames {
		if prev, ok := r.species[sn]; ok && prev != data.TaxonID {
			return nil, fmt.Errorf("%w: library %s maps %q to %d, already %d", ErrAliasConflict, name, sn, data.TaxonID, prev)
		}
	}

	lib, err := library.Build(name, dir, []library.Data{data}, r.SequenceResolver())
	if err != nil {
		return nil, fmt.Errorf("build library %s: %w", k, err)
	}
	lib.SetLogger(r.logger)

	for _, sn := range data.SpeciesNames {
		r.species[sn] = data.TaxonID
	}
	r.libraries[k] = lib
	r.order = append(r.order, k)
	r.logger.Debug("registered library",
		zap.String("name", name),
		zap.Int32("taxon_id", data.TaxonID),
		zap.Int("genes", len(data.Genes)))
	return lib, nil
}

// RegisterLibraries registers every record of a library file, naming the
// libraries after the file.
func (r *Registry) RegisterLibraries(path string) error {
	return r.RegisterLibrariesAs(path, container.LibraryName(path))
}

// RegisterLibrariesAs registers every record of a library file under name.
// Records registered before a failing one stay registered.
func (r *Registry) RegisterLibrariesAs(path, name string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve library path: %w", err)
	}
	records, err := ReadLibraryFile(abs)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range records {
		if _, err := r.register(filepath.Dir(abs), name, d); err != nil {
			return err
		}
	}
	return nil
}

// LoadedLibraries returns the loaded libraries in registration order.
func (r *Registry) LoadedLibraries() []*library.Library {
	return r.filter(func(Key) bool { return true })
}

// LibrariesByName returns the loaded libraries with the given name.
func (r *Registry) LibrariesByName(name string) []*library.Library {
	return r.filter(func(k Key) bool { return k.Name == name })
}

// LibrariesByNamePattern returns the loaded libraries whose whole name
// matches re.
func (r *Registry) LibrariesByNamePattern(re *regexp.Regexp) []*library.Library {
	whole := regexp.MustCompile(`^(?:` + re.String() + `)$`)
	return r.filter(func(k Key) bool { return whole.MatchString(k.Name) })
}

func (r *Registry) filter(keep func(Key) bool) []*library.Library {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*library.Library
	for _, k := range r.order {
		if keep(k) {
			out = append(out, r.libraries[k])
		}
	}
	return out
}

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide registry, created on first use with the
// default sequence resolver.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = New(nil)
	}
	return defaultRegistry
}

// ResetDefault replaces the process-wide registry by an empty one using
// resolver.
func ResetDefault(resolver seqbase.Resolver) *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = New(resolver)
	return defaultRegistry
}
