// Package seq provides nucleotide sequences, ranges and edit operations.
package seq

import (
	"bytes"
	"fmt"
)

// Alphabet lists the nucleotides that can be packed into 2 bits, in code order.
const Alphabet = "ACGT"

// Wildcard is the only non-ACGT letter accepted in a sequence.
const Wildcard = 'N'

// Sequence is an immutable nucleotide sequence.
// Every operation that derives a new sequence copies the underlying bytes.
type Sequence struct {
	data []byte
}

// New creates a sequence from a string of nucleotides.
// Lowercase letters are upper-cased; anything outside ACGTN is rejected.
func New(s string) (Sequence, error) {
	data := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if Code(c) < 0 && c != Wildcard {
			return Sequence{}, fmt.Errorf("invalid nucleotide %q at position %d", s[i], i)
		}
		data[i] = c
	}
	return Sequence{data: data}, nil
}

// MustNew is like New but panics on invalid input. Intended for tests and constants.
func MustNew(s string) Sequence {
	sq, err := New(s)
	if err != nil {
		panic(err)
	}
	return sq
}

// Code returns the 2-bit code of a nucleotide, or -1 if it has none.
func Code(c byte) int {
	switch c {
	case 'A':
		return 0
	case 'C':
		return 1
	case 'G':
		return 2
	case 'T':
		return 3
	}
	return -1
}

// Len returns the number of nucleotides.
func (s Sequence) Len() int {
	return len(s.data)
}

// IsEmpty reports whether the sequence has no nucleotides.
func (s Sequence) IsEmpty() bool {
	return len(s.data) == 0
}

// At returns the nucleotide at position i.
func (s Sequence) At(i int) byte {
	return s.data[i]
}

// String returns the nucleotides as a string.
func (s Sequence) String() string {
	return string(s.data)
}

// Bytes returns a copy of the nucleotides.
func (s Sequence) Bytes() []byte {
	return bytes.Clone(s.data)
}

// Equal reports whether two sequences have identical content.
func (s Sequence) Equal(o Sequence) bool {
	return bytes.Equal(s.data, o.data)
}

// HasWildcards reports whether the sequence contains letters outside ACGT.
func (s Sequence) HasWildcards() bool {
	for _, c := range s.data {
		if Code(c) < 0 {
			return true
		}
	}
	return false
}

// Range returns a copy of the nucleotides in r.
// It panics if r is not inside the sequence, like slicing does.
func (s Sequence) Range(r Range) Sequence {
	return Sequence{data: bytes.Clone(s.data[r.From:r.To])}
}

// Concat builds a new sequence from the given parts, in order.
func Concat(parts ...Sequence) Sequence {
	size := 0
	for _, p := range parts {
		size += p.Len()
	}
	b := NewBuilder(size)
	for _, p := range parts {
		b.Append(p)
	}
	return b.Build()
}

// Builder accumulates nucleotides into a new sequence.
// A Builder is not safe for concurrent use.
type Builder struct {
	buf []byte
}

// NewBuilder creates a builder with the given capacity hint.
func NewBuilder(capacity int) *Builder {
	return &Builder{buf: make([]byte, 0, capacity)}
}

// Append adds a sequence to the end of the builder.
func (b *Builder) Append(s Sequence) *Builder {
	b.buf = append(b.buf, s.data...)
	return b
}

// AppendByte adds a single nucleotide.
func (b *Builder) AppendByte(c byte) *Builder {
	b.buf = append(b.buf, c)
	return b
}

// Len returns the number of nucleotides accumulated so far.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Build returns the accumulated sequence and resets the builder.
func (b *Builder) Build() Sequence {
	s := Sequence{data: b.buf}
	b.buf = nil
	return s
}
