package seq

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WriteBit2 writes s as an int32 length followed by 2-bit packed nucleotides,
// four per byte, most significant bits first. Wildcards cannot be packed.
func WriteBit2(w io.Writer, s Sequence) error {
	packed, err := PackBit2(s)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, int32(s.Len())); err != nil {
		return fmt.Errorf("write 2-bit length: %w", err)
	}
	if _, err := w.Write(packed); err != nil {
		return fmt.Errorf("write 2-bit data: %w", err)
	}
	return nil
}

// PackBit2 packs the nucleotides of s without a length prefix.
func PackBit2(s Sequence) ([]byte, error) {
	packed := make([]byte, (s.Len()+3)/4)
	for i, c := range s.data {
		code := Code(c)
		if code < 0 {
			return nil, fmt.Errorf("cannot pack %q at position %d into 2 bits", c, i)
		}
		packed[i/4] |= byte(code) << (6 - 2*(i%4))
	}
	return packed, nil
}

// ReadBit2 reads a sequence written by WriteBit2.
func ReadBit2(r io.Reader) (Sequence, error) {
	var n int32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return Sequence{}, fmt.Errorf("read 2-bit length: %w", err)
	}
	if n < 0 {
		return Sequence{}, fmt.Errorf("negative 2-bit length %d", n)
	}
	// grow with the data read rather than trusting n up front
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, (int64(n)+3)/4); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Sequence{}, fmt.Errorf("read 2-bit data: %w", err)
	}
	return UnpackBit2(buf.Bytes(), int(n)), nil
}

// UnpackBit2 expands n nucleotides from packed 2-bit data.
func UnpackBit2(packed []byte, n int) Sequence {
	data := make([]byte, n)
	for i := range data {
		data[i] = Alphabet[(packed[i/4]>>(6-2*(i%4)))&3]
	}
	return Sequence{data: data}
}
