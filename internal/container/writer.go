package container

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"

	"github.com/inodb/vibe-repseq/internal/library"
	"github.com/inodb/vibe-repseq/internal/refpoint"
	"github.com/inodb/vibe-repseq/internal/seq"
	"github.com/inodb/vibe-repseq/internal/seqbase"
)

// Writer emits container blocks. Call Flush when done.
type Writer struct {
	bw      *bufio.Writer
	w       blockWriter
	inLocus bool
}

// NewWriter creates a block writer over w.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	return &Writer{bw: bw, w: blockWriter{w: bw}}
}

// WriteMagic writes the container header. A stream may hold several.
func (w *Writer) WriteMagic() error {
	if w.inLocus {
		return errors.New("magic inside locus")
	}
	w.w.write(Magic[:])
	return w.w.err
}

// WriteMeta writes a key/value pair for the open locus, or for the library
// when no locus is open.
func (w *Writer) WriteMeta(key, value string) error {
	w.w.byte(byte(Meta))
	w.w.string(key)
	w.w.string(value)
	return w.w.err
}

// WriteSpeciesName writes a common name for a taxon id.
func (w *Writer) WriteSpeciesName(taxonID int32, name string) error {
	if w.inLocus {
		return errors.New("species name inside locus")
	}
	w.w.byte(byte(SpeciesName))
	w.w.int32(taxonID)
	w.w.string(name)
	return w.w.err
}

// WriteSequencePart writes a known stretch of an accession, optionally
// DEFLATE-compressed.
func (w *Writer) WriteSequencePart(accession string, from int32, s seq.Sequence, compressed bool) error {
	var packed bytes.Buffer
	if compressed {
		fw, err := flate.NewWriter(&packed, flate.BestCompression)
		if err != nil {
			return fmt.Errorf("create deflate writer: %w", err)
		}
		if err := seq.WriteBit2(fw, s); err != nil {
			return fmt.Errorf("sequence part %s: %w", accession, err)
		}
		if err := fw.Close(); err != nil {
			return fmt.Errorf("deflate sequence part %s: %w", accession, err)
		}
	} else if err := seq.WriteBit2(&packed, s); err != nil {
		return fmt.Errorf("sequence part %s: %w", accession, err)
	}

	if compressed {
		w.w.byte(byte(SequencePartCompressed))
	} else {
		w.w.byte(byte(SequencePart))
	}
	w.w.string(accession)
	w.w.int32(from)
	if compressed {
		w.w.int32(int32(packed.Len()))
	}
	w.w.write(packed.Bytes())
	return w.w.err
}

// BeginLocus opens a locus.
func (w *Writer) BeginLocus(id uuid.UUID, sac library.SpeciesAndChain) error {
	if w.inLocus {
		return errors.New("nested locus")
	}
	w.w.byte(byte(LocusBegin))
	w.w.string(string(sac.Chain))
	w.w.int32(sac.TaxonID)
	w.w.int64(int64(binary.BigEndian.Uint64(id[8:])))
	w.w.int64(int64(binary.BigEndian.Uint64(id[:8])))
	w.inLocus = true
	return w.w.err
}

// WriteAllele writes one allele of the open locus. Parents must be written
// before their variants.
func (w *Writer) WriteAllele(a library.Allele) error {
	if !w.inLocus {
		return errors.New("allele outside locus")
	}
	gt := a.Gene().Type()
	var flags byte
	if a.IsFunctional() {
		flags |= flagFunctional
	}

	switch v := a.(type) {
	case *library.ReferenceAllele:
		flags |= flagReference | flagAnchors
		for _, p := range refpoint.Points() {
			if v.Points().Defined(p) && !slices.Contains(gt.Points(), p) {
				return fmt.Errorf("allele %s: anchor %s is not stored for %s genes", v.Name(), p, gt)
			}
		}
		w.w.byte(byte(Allele))
		w.w.byte(byte(gt))
		w.w.string(v.Name())
		w.w.byte(flags)
		w.w.string(v.Accession())
		for _, p := range gt.Points() {
			w.w.int32(v.Points().Position(p))
		}

	case *library.AllelicVariant:
		flags |= flagParentEdits
		codes, err := v.Mutations().Encode()
		if err != nil {
			return fmt.Errorf("allele %s: %w", v.Name(), err)
		}
		w.w.byte(byte(Allele))
		w.w.byte(byte(gt))
		w.w.string(v.Name())
		w.w.byte(flags)
		w.w.string(v.Parent().Name())
		w.w.write(v.ReferenceFeature().Encode())
		w.w.int32(int32(len(codes)))
		for _, c := range codes {
			w.w.int32(c)
		}

	default:
		return fmt.Errorf("unsupported allele type %T", a)
	}
	return w.w.err
}

// EndLocus closes the open locus.
func (w *Writer) EndLocus() error {
	if !w.inLocus {
		return errors.New("no open locus")
	}
	w.w.byte(byte(LocusEnd))
	w.inLocus = false
	return w.w.err
}

// Flush writes buffered blocks to the underlying writer.
func (w *Writer) Flush() error {
	if w.w.err != nil {
		return w.w.err
	}
	return w.bw.Flush()
}

// EncodeOptions controls Encode.
type EncodeOptions struct {
	// Compress stores sequence fragments DEFLATE-compressed.
	Compress bool
}

// Encode writes the whole library as one container: magic, library
// metadata, species names, embedded sequence fragments, then the loci.
func Encode(out io.Writer, lib *library.Library, opts EncodeOptions) error {
	w := NewWriter(out)
	if err := w.WriteMagic(); err != nil {
		return err
	}

	props := lib.Properties()
	for _, k := range slices.Sorted(maps.Keys(props)) {
		if err := w.WriteMeta(k, props[k]); err != nil {
			return err
		}
	}

	species := lib.SpeciesNames()
	for _, name := range slices.Sorted(maps.Keys(species)) {
		if err := w.WriteSpeciesName(species[name], name); err != nil {
			return err
		}
	}

	for _, acc := range lib.FragmentAccessions() {
		p := lib.Resolver().Resolve(seqbase.NewAddress(lib.Context(), acc))
		for _, f := range p.Fragments() {
			if err := w.WriteSequencePart(acc, f.From, f.Sequence, opts.Compress); err != nil {
				return err
			}
		}
	}

	for _, locus := range lib.Loci() {
		if err := w.BeginLocus(locus.ID(), locus.SpeciesAndChain()); err != nil {
			return err
		}
		lp := locus.Properties()
		for _, k := range slices.Sorted(maps.Keys(lp)) {
			if err := w.WriteMeta(k, lp[k]); err != nil {
				return err
			}
		}
		for _, a := range locus.AllAlleles() {
			if err := w.WriteAllele(a); err != nil {
				return err
			}
		}
		if err := w.EndLocus(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteFile encodes lib to path through a temporary file.
func WriteFile(path string, lib *library.Library, opts EncodeOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	if err := Encode(f, lib, opts); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode container: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close container: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename container: %w", err)
	}
	return nil
}
