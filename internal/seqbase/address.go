// Package seqbase resolves sequence addresses to cached nucleotide data.
package seqbase

import (
	"cmp"
	"strings"
)

// Address identifies a sequence: a URI interpreted relative to a context,
// usually the directory of the library that mentions it. Addresses are
// comparable and usable as map keys.
type Address struct {
	Context string
	URI     string
}

// NewAddress creates an address.
func NewAddress(context, uri string) Address {
	return Address{Context: context, URI: uri}
}

// Compare orders addresses by context, then URI.
func (a Address) Compare(o Address) int {
	if c := cmp.Compare(a.Context, o.Context); c != 0 {
		return c
	}
	return cmp.Compare(a.URI, o.URI)
}

// Scheme returns the lower-cased URI scheme, or "" if there is none.
func (a Address) Scheme() string {
	i := strings.Index(a.URI, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(a.URI[:i])
}

// Fragment returns the part of the URI after '#'.
func (a Address) Fragment() string {
	_, frag, _ := strings.Cut(a.URI, "#")
	return frag
}

// Opaque returns the URI without its scheme and fragment.
func (a Address) Opaque() string {
	u := a.URI
	if i := strings.Index(u, "://"); i > 0 {
		u = u[i+3:]
	}
	u, _, _ = strings.Cut(u, "#")
	return u
}

func (a Address) String() string {
	if a.Context == "" {
		return a.URI
	}
	return a.URI + " (in " + a.Context + ")"
}
