package container

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	"go.uber.org/zap"

	"github.com/inodb/vibe-repseq/internal/library"
	"github.com/inodb/vibe-repseq/internal/refpoint"
	"github.com/inodb/vibe-repseq/internal/seq"
	"github.com/inodb/vibe-repseq/internal/seqbase"
)

// Event describes a decoded block. Begin and End are the byte offsets of the
// block in the stream; the remaining fields are set according to Type.
type Event struct {
	Type  BlockType
	Begin int64
	End   int64

	// META
	Key, Value string
	// LOCUS_BEGIN and LOCUS_END
	Locus library.SpeciesAndChain
	// ALLELE
	Allele library.Allele
	// SPECIES_NAME
	TaxonID int32
	Name    string
	// SEQUENCE_PART
	Accession string
	From      int32
	Length    int
}

// Listener observes decoding block by block. It cannot influence the result.
type Listener func(Event)

// Decoder reads a container into a library.
type Decoder struct {
	r        *countingReader
	builder  *library.Builder
	listener Listener
	logger   *zap.Logger

	// open is the locus under construction, nil between LOCUS_END and the
	// next LOCUS_BEGIN.
	open *library.LocusBuilder
}

// NewDecoder creates a decoder. Relative sequence addresses resolve in dir;
// embedded sequence fragments are stored through resolver.
func NewDecoder(r io.Reader, name, dir string, resolver seqbase.Resolver) *Decoder {
	return &Decoder{
		r:       &countingReader{r: bufio.NewReader(r)},
		builder: library.NewBuilder(name, dir, resolver),
		logger:  zap.NewNop(),
	}
}

// SetListener sets the block observer.
func (d *Decoder) SetListener(l Listener) {
	d.listener = l
}

// SetLogger sets the logger.
func (d *Decoder) SetLogger(logger *zap.Logger) {
	d.logger = logger
}

// Decode reads the whole stream. On error no library is returned.
func (d *Decoder) Decode() (*library.Library, error) {
	if d.builder == nil {
		return nil, errors.New("decoder already used")
	}
	if err := d.readMagic(0); err != nil {
		return nil, err
	}
	blocks := 1
	for {
		begin := d.r.n
		tag, err := d.r.readByte()
		if errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, &FramingError{Offset: begin, Message: "read block tag", Err: err}
		}
		ev, err := d.readBlock(BlockType(tag), begin)
		if err != nil {
			return nil, err
		}
		blocks++
		if d.listener != nil {
			ev.Type = BlockType(tag)
			ev.Begin = begin
			ev.End = d.r.n
			d.listener(ev)
		}
	}
	if d.open != nil {
		return nil, &FramingError{Offset: d.r.n, Message: fmt.Sprintf("premature end of stream inside locus %s", d.open.SpeciesAndChain())}
	}
	lib := d.builder.Build()
	d.builder = nil
	d.logger.Debug("decoded container",
		zap.String("library", lib.Name()),
		zap.Int("blocks", blocks),
		zap.Int64("bytes", d.r.n),
		zap.Int("loci", len(lib.Loci())))
	return lib, nil
}

func (d *Decoder) readMagic(begin int64) error {
	var got [4]byte
	if begin == 0 {
		if err := d.r.full(got[:]); err != nil {
			return &FramingError{Offset: 0, Message: "read magic", Err: err}
		}
	} else {
		got[0] = byte(MagicType)
		if err := d.r.full(got[1:]); err != nil {
			return &FramingError{Offset: begin, Message: "read magic", Err: err}
		}
	}
	if got != Magic {
		return &FramingError{Offset: begin, Message: fmt.Sprintf("wrong magic bytes % x", got[:])}
	}
	if begin == 0 && d.listener != nil {
		d.listener(Event{Type: MagicType, Begin: 0, End: d.r.n})
	}
	return nil
}

func (d *Decoder) readBlock(t BlockType, begin int64) (Event, error) {
	var ev Event
	fail := func(msg string, err error) (Event, error) {
		return Event{}, &FramingError{Offset: begin, Message: msg, Err: err}
	}

	switch t {
	case MagicType:
		if err := d.readMagic(begin); err != nil {
			return Event{}, err
		}

	case Meta:
		key, err := d.r.readString()
		if err != nil {
			return fail("read meta key", err)
		}
		value, err := d.r.readString()
		if err != nil {
			return fail("read meta value", err)
		}
		if d.open != nil {
			d.open.SetProperty(key, value)
		} else {
			d.builder.SetProperty(key, value)
		}
		ev.Key, ev.Value = key, value

	case SequencePart, SequencePartCompressed:
		accession, err := d.r.readString()
		if err != nil {
			return fail("read sequence accession", err)
		}
		from, err := d.r.readInt32()
		if err != nil {
			return fail("read sequence offset", err)
		}
		s, err := d.readSequence(t == SequencePartCompressed)
		if err != nil {
			return fail("read sequence part "+accession, err)
		}
		if err := d.builder.AddFragment(accession, from, s); err != nil {
			return fail("store sequence part "+accession, err)
		}
		ev.Accession, ev.From, ev.Length = accession, from, s.Len()

	case LocusBegin:
		if d.open != nil {
			return fail(fmt.Sprintf("LOCUS_BEGIN inside open locus %s", d.open.SpeciesAndChain()), nil)
		}
		chainID, err := d.r.readString()
		if err != nil {
			return fail("read chain", err)
		}
		chain, err := library.ParseChain(chainID)
		if err != nil {
			return fail("read chain", err)
		}
		taxon, err := d.r.readInt32()
		if err != nil {
			return fail("read taxon id", err)
		}
		id, err := d.readUUID()
		if err != nil {
			return fail("read locus id", err)
		}
		sac := library.SpeciesAndChain{TaxonID: taxon, Chain: chain}
		d.open = library.NewLocusBuilder(id, sac)
		ev.Locus = sac

	case Allele:
		if d.open == nil {
			return fail("ALLELE outside locus", nil)
		}
		a, err := d.readAllele()
		if err != nil {
			return fail("read allele", err)
		}
		ev.Allele = a

	case LocusEnd:
		if d.open == nil {
			return fail("LOCUS_END without LOCUS_BEGIN", nil)
		}
		ev.Locus = d.open.SpeciesAndChain()
		d.builder.AddLocus(d.open.Build())
		d.open = nil

	case SpeciesName:
		if d.open != nil {
			return fail("SPECIES_NAME inside locus", nil)
		}
		taxon, err := d.r.readInt32()
		if err != nil {
			return fail("read species taxon id", err)
		}
		name, err := d.r.readString()
		if err != nil {
			return fail("read species name", err)
		}
		if err := d.builder.AddSpeciesName(name, taxon); err != nil {
			return fail("register species name", err)
		}
		ev.TaxonID, ev.Name = taxon, name

	default:
		return fail(fmt.Sprintf("unknown block type %d", byte(t)), nil)
	}
	return ev, nil
}

func (d *Decoder) readSequence(compressed bool) (seq.Sequence, error) {
	if !compressed {
		return seq.ReadBit2(d.r)
	}
	n, err := d.r.readInt32()
	if err != nil {
		return seq.Sequence{}, err
	}
	if n < 0 {
		return seq.Sequence{}, fmt.Errorf("negative compressed length %d", n)
	}
	buf, err := d.r.bytes(n)
	if err != nil {
		return seq.Sequence{}, err
	}
	fr := flate.NewReader(bytes.NewReader(buf))
	defer fr.Close()
	s, err := seq.ReadBit2(fr)
	if err != nil {
		return seq.Sequence{}, fmt.Errorf("inflate: %w", err)
	}
	return s, nil
}

// readUUID reads the least significant half, then the most significant one.
func (d *Decoder) readUUID() (uuid.UUID, error) {
	lsb, err := d.r.readInt64()
	if err != nil {
		return uuid.UUID{}, err
	}
	msb, err := d.r.readInt64()
	if err != nil {
		return uuid.UUID{}, err
	}
	var id uuid.UUID
	binary.BigEndian.PutUint64(id[:8], uint64(msb))
	binary.BigEndian.PutUint64(id[8:], uint64(lsb))
	return id, nil
}

func (d *Decoder) readAllele() (library.Allele, error) {
	code, err := d.r.readByte()
	if err != nil {
		return nil, err
	}
	gt := library.GeneType(code)
	if !gt.Valid() {
		return nil, fmt.Errorf("unknown gene type %d", code)
	}
	rec := library.AlleleRecord{GeneType: gt}
	if rec.Name, err = d.r.readString(); err != nil {
		return nil, err
	}
	flags, err := d.r.readByte()
	if err != nil {
		return nil, err
	}
	rec.Reference = flags&flagReference != 0
	rec.Functional = flags&flagFunctional != 0

	if flags&flagAnchors != 0 {
		if rec.Accession, err = d.r.readString(); err != nil {
			return nil, err
		}
		b := refpoint.NewBuilder()
		for _, p := range gt.Points() {
			pos, err := d.r.readInt32()
			if err != nil {
				return nil, err
			}
			if pos == -1 {
				continue
			}
			if err := b.SetPosition(p, pos); err != nil {
				return nil, fmt.Errorf("allele %s: %w", rec.Name, err)
			}
		}
		rec.Points = b.Build()
	}

	if flags&flagParentEdits != 0 {
		if rec.Parent, err = d.r.readString(); err != nil {
			return nil, err
		}
		if rec.Feature, err = refpoint.DecodeFeature(d.r); err != nil {
			return nil, err
		}
		n, err := d.r.readInt32()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("allele %s: negative mutation count %d", rec.Name, n)
		}
		codes := make([]int32, 0, min(n, 64))
		for range n {
			c, err := d.r.readInt32()
			if err != nil {
				return nil, err
			}
			codes = append(codes, c)
		}
		if rec.Mutations, err = seq.DecodeMutations(codes); err != nil {
			return nil, fmt.Errorf("allele %s: %w", rec.Name, err)
		}
	}
	return d.open.AddAllele(rec)
}

// ReadFile decodes the container at path. The library is named after the
// file and resolves relative addresses in the file's directory.
func ReadFile(path string, resolver seqbase.Resolver, logger *zap.Logger) (*library.Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	defer f.Close()

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve container dir: %w", err)
	}
	d := NewDecoder(f, LibraryName(path), dir, resolver)
	if logger != nil {
		d.SetLogger(logger)
	}
	lib, err := d.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return lib, nil
}

// Extension is the file extension of binary containers.
const Extension = ".rsl"

// LibraryName derives a library name from a file name: the lower-cased base
// name without its library extension.
func LibraryName(path string) string {
	name := strings.ToLower(filepath.Base(path))
	for _, ext := range []string{".json.xz", ".json", Extension} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}
