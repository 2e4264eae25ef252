// Package headers provides a case-insensitive, order-preserving header
// collection shared by requests and responses.
package headers

import (
	"fmt"
	"io"
	"net/textproto"
	"strings"
)

// entry is one (name, value) pair in wire order.
type entry struct {
	name  string // canonical form
	value string
}

// Set is an ordered sequence of (name, value) pairs with case-insensitive
// lookup. Duplicates are preserved in write order.
type Set struct {
	entries []entry
}

// New returns an empty header set.
func New() *Set {
	return &Set{}
}

// canon canonicalizes a header name the way HTTP/1.1 does.
func canon(name string) string {
	return textproto.CanonicalMIMEHeaderKey(name)
}

// Add appends a value for name, preserving any existing values.
// Returns an error if name or value contain CR/LF.
func (s *Set) Add(name, value string) error {
	if err := validate(name, value); err != nil {
		return err
	}
	s.entries = append(s.entries, entry{canon(name), value})
	return nil
}

// Set replaces all existing values for name with a single value.
func (s *Set) Set(name, value string) error {
	if err := validate(name, value); err != nil {
		return err
	}
	c := canon(name)
	s.Del(name)
	s.entries = append(s.entries, entry{c, value})
	return nil
}

func validate(name, value string) error {
	if strings.ContainsAny(name, "\r\n") || strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("headers: name/value must not contain CR or LF (name=%q)", name)
	}
	if name == "" {
		return fmt.Errorf("headers: name must not be empty")
	}
	return nil
}

// Get returns the first value for name, and whether it was present.
func (s *Set) Get(name string) (string, bool) {
	c := canon(name)
	for _, e := range s.entries {
		if e.name == c {
			return e.value, true
		}
	}
	return "", false
}

// Values returns every value recorded for name, in write order.
func (s *Set) Values(name string) []string {
	c := canon(name)
	var out []string
	for _, e := range s.entries {
		if e.name == c {
			out = append(out, e.value)
		}
	}
	return out
}

// Has reports whether name has at least one value.
func (s *Set) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Del removes every value for name.
func (s *Set) Del(name string) {
	c := canon(name)
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.name != c {
			kept = append(kept, e)
		}
	}
	s.entries = kept
}

// Names returns the canonical names present, in first-seen order.
func (s *Set) Names() []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range s.entries {
		if !seen[e.name] {
			seen[e.name] = true
			out = append(out, e.name)
		}
	}
	return out
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	out := &Set{entries: make([]entry, len(s.entries))}
	copy(out.entries, s.entries)
	return out
}

// Len returns the number of (name, value) pairs, including duplicates.
func (s *Set) Len() int {
	return len(s.entries)
}

// WriteTo serializes the set as "name: value\r\n" lines, in write order.
func (s *Set) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, e := range s.entries {
		n, err := fmt.Fprintf(w, "%s: %s\r\n", e.name, e.value)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ToMap flattens the set into map[string][]string keyed by canonical name,
// with each name's values in write order.
func (s *Set) ToMap() map[string][]string {
	out := make(map[string][]string, len(s.entries))
	for _, e := range s.entries {
		out[e.name] = append(out[e.name], e.value)
	}
	return out
}
