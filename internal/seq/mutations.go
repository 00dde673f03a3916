package seq

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MutationKind distinguishes the three edit operations.
type MutationKind byte

const (
	Substitution MutationKind = iota
	Insertion
	Deletion
)

func (k MutationKind) String() string {
	switch k {
	case Substitution:
		return "S"
	case Insertion:
		return "I"
	case Deletion:
		return "D"
	}
	return "?"
}

// Mutation is a single edit against a reference sequence.
//
// Substitutions and deletions address the reference letter at Pos.
// Insertions place To before the reference letter at Pos (Pos may equal the
// reference length to append). A zero From marks an insertion, a zero To a
// deletion.
type Mutation struct {
	Pos  int32
	From byte
	To   byte
}

// Substitute returns a substitution of from by to at pos.
func Substitute(pos int32, from, to byte) Mutation {
	return Mutation{Pos: pos, From: from, To: to}
}

// Insert returns an insertion of to before pos.
func Insert(pos int32, to byte) Mutation {
	return Mutation{Pos: pos, To: to}
}

// Delete returns a deletion of from at pos.
func Delete(pos int32, from byte) Mutation {
	return Mutation{Pos: pos, From: from}
}

// Kind returns the edit operation type.
func (m Mutation) Kind() MutationKind {
	switch {
	case m.From == 0:
		return Insertion
	case m.To == 0:
		return Deletion
	}
	return Substitution
}

const (
	noLetter     = 7
	letterBits   = 3
	positionBits = 2 * letterBits
	// MaxMutationPosition is the largest position the int32 encoding can carry.
	MaxMutationPosition = 1<<(31-positionBits) - 1
)

const mutationLetters = "ACGTN"

func letterCode(c byte) (int32, error) {
	if c == 0 {
		return noLetter, nil
	}
	i := strings.IndexByte(mutationLetters, c)
	if i < 0 {
		return 0, fmt.Errorf("invalid mutation letter %q", c)
	}
	return int32(i), nil
}

func codeLetter(code int32) (byte, error) {
	if code == noLetter {
		return 0, nil
	}
	if code < 0 || int(code) >= len(mutationLetters) {
		return 0, fmt.Errorf("invalid mutation letter code %d", code)
	}
	return mutationLetters[code], nil
}

// Encode packs the mutation into an int32:
// bits 0-2 hold To, bits 3-5 hold From (7 = none), the rest hold Pos.
func (m Mutation) Encode() (int32, error) {
	if m.Pos < 0 || m.Pos > MaxMutationPosition {
		return 0, fmt.Errorf("mutation position %d out of range", m.Pos)
	}
	if m.From == 0 && m.To == 0 {
		return 0, fmt.Errorf("mutation at %d has neither from nor to", m.Pos)
	}
	from, err := letterCode(m.From)
	if err != nil {
		return 0, err
	}
	to, err := letterCode(m.To)
	if err != nil {
		return 0, err
	}
	return m.Pos<<positionBits | from<<letterBits | to, nil
}

// DecodeMutation unpacks a mutation produced by Encode.
func DecodeMutation(code int32) (Mutation, error) {
	if code < 0 {
		return Mutation{}, fmt.Errorf("invalid mutation code %d", code)
	}
	from, err := codeLetter((code >> letterBits) & noLetter)
	if err != nil {
		return Mutation{}, err
	}
	to, err := codeLetter(code & noLetter)
	if err != nil {
		return Mutation{}, err
	}
	if from == 0 && to == 0 {
		return Mutation{}, fmt.Errorf("invalid mutation code %d", code)
	}
	return Mutation{Pos: code >> positionBits, From: from, To: to}, nil
}

// String formats the mutation as SA12G, DA12 or I12G.
func (m Mutation) String() string {
	switch m.Kind() {
	case Insertion:
		return fmt.Sprintf("I%d%c", m.Pos, m.To)
	case Deletion:
		return fmt.Sprintf("D%c%d", m.From, m.Pos)
	}
	return fmt.Sprintf("S%c%d%c", m.From, m.Pos, m.To)
}

// ParseMutation parses the format produced by Mutation.String.
func ParseMutation(s string) (Mutation, error) {
	if len(s) < 3 {
		return Mutation{}, fmt.Errorf("invalid mutation %q", s)
	}
	body := s[1:]
	var m Mutation
	switch s[0] {
	case 'S':
		if len(body) < 3 {
			return Mutation{}, fmt.Errorf("invalid substitution %q", s)
		}
		m.From, m.To = body[0], body[len(body)-1]
		body = body[1 : len(body)-1]
	case 'D':
		m.From = body[0]
		body = body[1:]
	case 'I':
		m.To = body[len(body)-1]
		body = body[:len(body)-1]
	default:
		return Mutation{}, fmt.Errorf("unknown mutation type in %q", s)
	}
	pos, err := strconv.ParseInt(body, 10, 32)
	if err != nil {
		return Mutation{}, fmt.Errorf("invalid mutation position in %q", s)
	}
	m.Pos = int32(pos)
	if _, err := m.Encode(); err != nil {
		return Mutation{}, fmt.Errorf("invalid mutation %q: %w", s, err)
	}
	return m, nil
}

// Mutations is a list of non-overlapping edits against one reference sequence.
type Mutations []Mutation

// ParseMutations parses a list of mutation strings.
func ParseMutations(items []string) (Mutations, error) {
	if len(items) == 0 {
		return nil, nil
	}
	ms := make(Mutations, 0, len(items))
	for _, item := range items {
		m, err := ParseMutation(strings.TrimSpace(item))
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return ms, nil
}

// Strings formats every mutation with Mutation.String.
func (ms Mutations) Strings() []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.String()
	}
	return out
}

// Encode packs every mutation into its int32 form.
func (ms Mutations) Encode() ([]int32, error) {
	codes := make([]int32, len(ms))
	for i, m := range ms {
		c, err := m.Encode()
		if err != nil {
			return nil, err
		}
		codes[i] = c
	}
	return codes, nil
}

// DecodeMutations unpacks a list of int32 codes.
func DecodeMutations(codes []int32) (Mutations, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	ms := make(Mutations, len(codes))
	for i, c := range codes {
		m, err := DecodeMutation(c)
		if err != nil {
			return nil, err
		}
		ms[i] = m
	}
	return ms, nil
}

// Sorted returns a position-ordered copy. At equal positions insertions come
// first (in their original relative order), since they sit before the letter.
func (ms Mutations) Sorted() Mutations {
	out := make(Mutations, len(ms))
	copy(out, ms)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pos != out[j].Pos {
			return out[i].Pos < out[j].Pos
		}
		return out[i].Kind() == Insertion && out[j].Kind() != Insertion
	})
	return out
}

// Apply returns the result of applying the mutations to ref in a single
// left-to-right pass. The input order of the list does not matter.
func (ms Mutations) Apply(ref Sequence) (Sequence, error) {
	sorted := ms.Sorted()
	n := int32(ref.Len())
	lastEdited := int32(-1)
	for _, m := range sorted {
		if m.Pos < 0 {
			return Sequence{}, fmt.Errorf("mutation %s at negative position", m)
		}
		if m.Kind() == Insertion {
			if m.Pos > n {
				return Sequence{}, fmt.Errorf("insertion %s beyond sequence end %d", m, n)
			}
			continue
		}
		if m.Pos >= n {
			return Sequence{}, fmt.Errorf("mutation %s beyond sequence end %d", m, n)
		}
		if ref.At(int(m.Pos)) != m.From {
			return Sequence{}, fmt.Errorf("mutation %s does not match reference letter %c", m, ref.At(int(m.Pos)))
		}
		if m.Pos == lastEdited {
			return Sequence{}, fmt.Errorf("overlapping mutations at position %d", m.Pos)
		}
		lastEdited = m.Pos
	}

	b := NewBuilder(ref.Len() + len(sorted))
	cursor := int32(0)
	for _, m := range sorted {
		if m.Pos > cursor {
			b.Append(Sequence{data: ref.data[cursor:m.Pos]})
			cursor = m.Pos
		}
		switch m.Kind() {
		case Insertion:
			b.AppendByte(m.To)
		case Substitution:
			b.AppendByte(m.To)
			cursor++
		case Deletion:
			cursor++
		}
	}
	b.Append(Sequence{data: ref.data[cursor:]})
	return b.Build(), nil
}

// ConvertPosition maps a boundary position in the reference to the mutated
// sequence. Insertions exactly at pos stay to the right of the boundary.
func (ms Mutations) ConvertPosition(pos int32) int32 {
	shift := int32(0)
	for _, m := range ms {
		if m.Pos >= pos {
			continue
		}
		switch m.Kind() {
		case Insertion:
			shift++
		case Deletion:
			shift--
		}
	}
	return pos + shift
}
