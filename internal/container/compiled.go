package container

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/inodb/vibe-repseq/internal/library"
	"github.com/inodb/vibe-repseq/internal/seqbase"
)

// FileFingerprint holds stat-based identity for a file.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile creates a FileFingerprint from an on-disk file.
func StatFile(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// CompiledCache manages a binary container compiled from a JSON library:
//
//	{name}.rsl       (compiled container)
//	{name}.rsl.meta  (source fingerprint and container checksum)
type CompiledCache struct {
	path string
}

// NewCompiledCache creates a cache for the container at path.
func NewCompiledCache(path string) *CompiledCache {
	return &CompiledCache{path: path}
}

// Path returns the container path.
func (cc *CompiledCache) Path() string {
	return cc.path
}

func (cc *CompiledCache) metaPath() string {
	return cc.path + ".meta"
}

// Valid reports whether the container was compiled from src as it is now
// and has not been modified since.
func (cc *CompiledCache) Valid(src FileFingerprint) bool {
	meta, err := cc.readMeta()
	if err != nil {
		return false
	}

	checks := []struct{ key, val string }{
		{"source_size", strconv.FormatInt(src.Size, 10)},
		{"source_modtime", src.ModTime.UTC().Format(time.RFC3339Nano)},
	}
	for _, c := range checks {
		if meta[c.key] != c.val {
			return false
		}
	}

	sum, err := checksumFile(cc.path)
	if err != nil {
		return false
	}
	return meta["blake3"] == sum
}

// Write compiles lib into the container and records src's fingerprint.
func (cc *CompiledCache) Write(lib *library.Library, src FileFingerprint, opts EncodeOptions) error {
	if err := os.MkdirAll(filepath.Dir(cc.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := cc.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create compiled library: %w", err)
	}

	h := blake3.New()
	if err := Encode(io.MultiWriter(f, h), lib, opts); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode compiled library: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close compiled library: %w", err)
	}
	if err := os.Rename(tmp, cc.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename compiled library: %w", err)
	}
	return cc.writeMeta(src, hex.EncodeToString(h.Sum(nil)))
}

// Load decodes the compiled container.
func (cc *CompiledCache) Load(resolver seqbase.Resolver, logger *zap.Logger) (*library.Library, error) {
	return ReadFile(cc.path, resolver, logger)
}

// Clear removes the compiled container and its metadata.
func (cc *CompiledCache) Clear() {
	os.Remove(cc.path)
	os.Remove(cc.metaPath())
}

func (cc *CompiledCache) writeMeta(src FileFingerprint, sum string) error {
	lines := []string{
		"source=" + src.Path,
		"source_size=" + strconv.FormatInt(src.Size, 10),
		"source_modtime=" + src.ModTime.UTC().Format(time.RFC3339Nano),
		"blake3=" + sum,
		"created_at=" + time.Now().UTC().Format(time.RFC3339),
		"",
	}
	return os.WriteFile(cc.metaPath(), []byte(strings.Join(lines, "\n")), 0644)
}

func (cc *CompiledCache) readMeta() (map[string]string, error) {
	data, err := os.ReadFile(cc.metaPath())
	if err != nil {
		return nil, err
	}

	meta := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			meta[k] = v
		}
	}
	return meta, nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
