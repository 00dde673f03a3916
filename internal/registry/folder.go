package registry

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
	"go.uber.org/zap"

	"github.com/inodb/vibe-repseq/internal/container"
	"github.com/inodb/vibe-repseq/internal/library"
	"github.com/inodb/vibe-repseq/internal/seqbase"
)

// libraryExtensions lists the file forms a library may take, in lookup order.
var libraryExtensions = []string{".json", ".json.xz", container.Extension}

// ReadLibraryFile reads library records from a JSON, xz-compressed JSON or
// binary container file.
func ReadLibraryFile(path string) ([]library.Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	defer f.Close()

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".json.xz"):
		zr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open xz library %s: %w", path, err)
		}
		return readJSON(path, zr)
	case strings.HasSuffix(lower, container.Extension):
		// Fragments land in a scratch resolver and travel on in the records.
		lib, err := container.NewDecoder(f, container.LibraryName(path), filepath.Dir(path), seqbase.NewAnyResolver()).Decode()
		if err != nil {
			return nil, fmt.Errorf("decode library %s: %w", path, err)
		}
		return lib.Data(), nil
	}
	return readJSON(path, f)
}

func readJSON(path string, r io.Reader) ([]library.Data, error) {
	data, err := library.ReadData(r)
	if err != nil {
		return nil, fmt.Errorf("read library %s: %w", path, err)
	}
	return data, nil
}

// FolderResolver finds {name}.json, {name}.json.xz or {name}.rsl in a
// directory.
//
// With a compiled directory set, JSON libraries are compiled once into binary
// containers there and later loads read the container while the JSON source
// is unchanged.
type FolderResolver struct {
	dir         string
	compiledDir string
	logger      *zap.Logger
}

// NewFolderResolver creates a resolver for dir.
func NewFolderResolver(dir string) *FolderResolver {
	return &FolderResolver{dir: dir, logger: zap.NewNop()}
}

// SetCompiledDir enables the compiled-library cache.
func (fr *FolderResolver) SetCompiledDir(dir string) {
	fr.compiledDir = dir
}

// SetLogger sets the logger.
func (fr *FolderResolver) SetLogger(logger *zap.Logger) {
	fr.logger = logger
}

// Context returns the searched directory.
func (fr *FolderResolver) Context(string) string {
	return fr.dir
}

// Resolve loads the first library file named name. It returns nil records
// when there is none.
func (fr *FolderResolver) Resolve(name string) ([]library.Data, error) {
	for _, ext := range libraryExtensions {
		path := filepath.Join(fr.dir, name+ext)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat library: %w", err)
		}
		if ext == ".json" && fr.compiledDir != "" {
			return fr.resolveCompiled(name, path)
		}
		fr.logger.Info("loading library", zap.String("path", path))
		return ReadLibraryFile(path)
	}
	return nil, nil
}

func (fr *FolderResolver) resolveCompiled(name, src string) ([]library.Data, error) {
	fp, err := container.StatFile(src)
	if err != nil {
		return nil, fmt.Errorf("stat library: %w", err)
	}
	cc := container.NewCompiledCache(filepath.Join(fr.compiledDir, name+container.Extension))
	if cc.Valid(fp) {
		fr.logger.Info("loading compiled library", zap.String("path", cc.Path()))
		lib, err := cc.Load(seqbase.NewAnyResolver(), fr.logger)
		if err == nil {
			return lib.Data(), nil
		}
		fr.logger.Warn("compiled library unreadable, recompiling", zap.String("path", cc.Path()), zap.Error(err))
	}

	fr.logger.Info("loading library", zap.String("path", src))
	records, err := ReadLibraryFile(src)
	if err != nil {
		return nil, err
	}
	lib, err := library.Build(name, fr.dir, records, seqbase.NewAnyResolver())
	if err != nil {
		return nil, fmt.Errorf("build library %s: %w", name, err)
	}
	if err := cc.Write(lib, fp, container.EncodeOptions{Compress: true}); err != nil {
		fr.logger.Warn("could not write compiled library", zap.String("path", cc.Path()), zap.Error(err))
		cc.Clear()
	}
	return records, nil
}
