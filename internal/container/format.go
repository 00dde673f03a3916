// Package container reads and writes the binary library container: a magic
// header followed by tagged blocks carrying metadata, packed sequence
// fragments and locus-scoped allele records.
package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic opens every container. Its first byte doubles as a block tag so that
// concatenated containers decode as one stream.
var Magic = [4]byte{0x52, 'S', 'L', 0x01}

// BlockType is the one-byte tag that starts each block.
type BlockType byte

const (
	Meta                   BlockType = 1
	SequencePart           BlockType = 2
	SequencePartCompressed BlockType = 3
	LocusBegin             BlockType = 4
	Allele                 BlockType = 5
	LocusEnd               BlockType = 6
	SpeciesName            BlockType = 7
	MagicType              BlockType = 0x52
)

func (t BlockType) String() string {
	switch t {
	case Meta:
		return "META"
	case SequencePart:
		return "SEQUENCE_PART"
	case SequencePartCompressed:
		return "SEQUENCE_PART_COMPRESSED"
	case LocusBegin:
		return "LOCUS_BEGIN"
	case Allele:
		return "ALLELE"
	case LocusEnd:
		return "LOCUS_END"
	case SpeciesName:
		return "SPECIES_NAME"
	case MagicType:
		return "MAGIC"
	}
	return fmt.Sprintf("BlockType(%d)", byte(t))
}

// Allele flag bits.
const (
	flagReference   = 1 << 0
	flagFunctional  = 1 << 1
	flagAnchors     = 1 << 2
	flagParentEdits = 1 << 3
	maxStringLength = 1<<16 - 1
)

// FramingError reports a malformed or truncated container.
type FramingError struct {
	Offset  int64
	Message string
	Err     error
}

func (e *FramingError) Error() string {
	msg := fmt.Sprintf("container offset %d: %s", e.Offset, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// countingReader tracks the number of bytes consumed.
type countingReader struct {
	r io.Reader
	n int64
	b [8]byte
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// full reads exactly len(p) bytes, mapping a short read to io.ErrUnexpectedEOF.
func (c *countingReader) full(p []byte) error {
	_, err := io.ReadFull(c, p)
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (c *countingReader) readByte() (byte, error) {
	if err := c.full(c.b[:1]); err != nil {
		return 0, err
	}
	return c.b[0], nil
}

func (c *countingReader) readInt32() (int32, error) {
	if err := c.full(c.b[:4]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(c.b[:4])), nil
}

func (c *countingReader) readInt64() (int64, error) {
	if err := c.full(c.b[:8]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(c.b[:8])), nil
}

// bytes reads n bytes. The buffer grows with the data actually read, so a
// corrupt length cannot force a large allocation up front.
func (c *countingReader) bytes(n int32) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, c, int64(n)); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *countingReader) readString() (string, error) {
	if err := c.full(c.b[:2]); err != nil {
		return "", err
	}
	buf := make([]byte, binary.BigEndian.Uint16(c.b[:2]))
	if err := c.full(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// blockWriter appends big-endian primitives, keeping the first error.
type blockWriter struct {
	w   io.Writer
	err error
	b   [8]byte
}

func (w *blockWriter) write(p []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(p)
}

func (w *blockWriter) byte(v byte) {
	w.b[0] = v
	w.write(w.b[:1])
}

func (w *blockWriter) int32(v int32) {
	binary.BigEndian.PutUint32(w.b[:4], uint32(v))
	w.write(w.b[:4])
}

func (w *blockWriter) int64(v int64) {
	binary.BigEndian.PutUint64(w.b[:8], uint64(v))
	w.write(w.b[:8])
}

func (w *blockWriter) string(s string) {
	if len(s) > maxStringLength {
		if w.err == nil {
			w.err = fmt.Errorf("string of %d bytes exceeds container limit", len(s))
		}
		return
	}
	binary.BigEndian.PutUint16(w.b[:2], uint16(len(s)))
	w.write(w.b[:2])
	w.write([]byte(s))
}
