// Package mime assembles a structured [Message] into the RFC 5322 +
// RFC 2045 byte stream an SMTP DATA phase expects.
package mime

import (
	"strings"

	"github.com/trasherdk/emailjs"
)

// headerKind distinguishes the three shapes a header value may take
// (spec.md §3: string, string-list, or address-list).
type headerKind int

const (
	kindText headerKind = iota
	kindList
	kindAddr
)

type headerValue struct {
	canonical string // canonical wire capitalization, e.g. "Message-Id"
	kind      headerKind
	text      string
	list      []string
	addrs     []smtp.Address
}

// Header is an ordered, case-insensitive mapping of header names to
// values. Lookups are case-insensitive; iteration order follows insertion
// order, letting callers round-trip user-supplied custom headers
// verbatim while the encoder still drives its own canonical ordering for
// the well-known fields (spec.md §4.2).
type Header struct {
	order  []string
	values map[string]*headerValue
}

// NewHeader returns an empty Header.
func NewHeader() *Header {
	return &Header{values: make(map[string]*headerValue)}
}

func (h *Header) entry(name string) *headerValue {
	v, ok := h.values[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return v
}

func (h *Header) set(name string, v *headerValue) {
	key := strings.ToLower(name)
	if _, exists := h.values[key]; !exists {
		h.order = append(h.order, key)
	}
	v.canonical = name
	h.values[key] = v
}

// Set stores a plain string header value, e.g. Set("subject", "Hello").
func (h *Header) Set(name, value string) {
	h.set(name, &headerValue{kind: kindText, text: value})
}

// SetList stores a string-list header value (e.g. multiple Received
// lines are not modeled here, but custom multi-value headers are).
func (h *Header) SetList(name string, values []string) {
	h.set(name, &headerValue{kind: kindList, list: values})
}

// SetAddressList stores an address-list header value (From/To/Cc/Bcc/
// Reply-To/Sender).
func (h *Header) SetAddressList(name string, addrs []smtp.Address) {
	h.set(name, &headerValue{kind: kindAddr, addrs: addrs})
}

// AddAddressList parses addrs as an RFC 5322 address-list string (per
// [smtp.ParseAddressList]) and stores the result under name.
func (h *Header) AddAddressList(name, addrs string) {
	h.SetAddressList(name, smtp.ParseAddressList(addrs))
}

// Has reports whether name has been set, case-insensitively.
func (h *Header) Has(name string) bool {
	return h.entry(name) != nil
}

// Text returns the plain string value for name, parsing a list or
// address-list value into a single comma-joined string if necessary.
func (h *Header) Text(name string) string {
	v := h.entry(name)
	if v == nil {
		return ""
	}
	switch v.kind {
	case kindText:
		return v.text
	case kindList:
		return strings.Join(v.list, ", ")
	case kindAddr:
		parts := make([]string, len(v.addrs))
		for i, a := range v.addrs {
			parts[i] = a.String()
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

// Addresses returns the address-list value for name. A text value is
// parsed on demand via [smtp.ParseAddressList]; a list value has each
// entry parsed independently.
func (h *Header) Addresses(name string) []smtp.Address {
	v := h.entry(name)
	if v == nil {
		return nil
	}
	switch v.kind {
	case kindAddr:
		return v.addrs
	case kindText:
		return smtp.ParseAddressList(v.text)
	case kindList:
		var out []smtp.Address
		for _, s := range v.list {
			out = append(out, smtp.ParseAddressList(s)...)
		}
		return out
	}
	return nil
}

// Keys returns the header names in insertion order, with their canonical
// wire capitalization.
func (h *Header) Keys() []string {
	out := make([]string, len(h.order))
	for i, k := range h.order {
		out[i] = h.values[k].canonical
	}
	return out
}
