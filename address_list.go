package smtp

import "strings"

// Address represents one entry of an RFC 5322 address-list: an optional
// display name and an address-spec. Unlike [ParseMailbox], ParseAddressList
// never fails — on malformed input it returns a best-effort entry and lets
// the caller decide whether [Address.Valid] holds.
type Address struct {
	Name string
	Addr string
}

// Valid reports whether Addr looks like a usable address (contains "@").
// Downstream consumers treat an Address failing this check as invalid.
func (a Address) Valid() bool {
	return strings.Contains(a.Addr, "@")
}

// String renders the address as "Name <addr>" when a display name is
// present, quoting it if it contains specials, or bare "addr" otherwise.
func (a Address) String() string {
	if a.Name == "" {
		return a.Addr
	}
	return quoteDisplayName(a.Name) + " <" + a.Addr + ">"
}

// ParseAddressList splits an RFC 5322 address-list string into its
// entries. It honours quoted display names ("Last, First" <a@b>),
// bracketed addresses, comma separators outside quoted regions, and
// group syntax (Group: a@b, c@d;) — the group name is discarded and its
// members are flattened into the result. Comments in parentheses are
// stripped. Malformed input yields a best-effort parse rather than an
// error.
func ParseAddressList(s string) []Address {
	var out []Address
	for _, seg := range splitAddressList(s) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		seg = strings.TrimSuffix(seg, ";")
		seg = strings.TrimSpace(stripGroupName(seg))
		if seg == "" {
			continue
		}
		out = append(out, parseAddressSpec(seg))
	}
	return out
}

// splitAddressList splits s on top-level commas (outside quoted strings
// and angle-bracketed address specs) and strips parenthesized comments
// that appear outside quotes.
func splitAddressList(s string) []string {
	var segs []string
	var cur strings.Builder
	inQuotes := false
	escaped := false
	parenDepth := 0
	angleDepth := 0

	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case inQuotes:
			cur.WriteRune(r)
			switch r {
			case '\\':
				escaped = true
			case '"':
				inQuotes = false
			}
		case parenDepth > 0:
			switch r {
			case '(':
				parenDepth++
			case ')':
				parenDepth--
			}
		case r == '"':
			inQuotes = true
			cur.WriteRune(r)
		case r == '(':
			parenDepth++
		case r == '<':
			angleDepth++
			cur.WriteRune(r)
		case r == '>':
			if angleDepth > 0 {
				angleDepth--
			}
			cur.WriteRune(r)
		case r == ',' && angleDepth == 0:
			segs = append(segs, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	segs = append(segs, cur.String())
	return segs
}

// stripGroupName removes a leading "group-name:" prefix from seg, honoring
// quoted strings and angle brackets so a colon inside either is not mistaken
// for the group delimiter.
func stripGroupName(seg string) string {
	idx := indexTopLevel(seg, ':')
	if idx < 0 {
		return seg
	}
	if lt := indexTopLevel(seg, '<'); lt >= 0 && lt < idx {
		return seg
	}
	return seg[idx+1:]
}

// parseAddressSpec parses a single "[display-name] <addr>" or bare "addr"
// entry into an Address.
func parseAddressSpec(seg string) Address {
	lt := indexTopLevel(seg, '<')
	if lt < 0 {
		return Address{Addr: strings.TrimSpace(seg)}
	}

	name := unquoteDisplayName(strings.TrimSpace(seg[:lt]))
	rest := seg[lt+1:]
	addr := rest
	if gt := strings.IndexByte(rest, '>'); gt >= 0 {
		addr = rest[:gt]
	}
	return Address{Name: name, Addr: strings.TrimSpace(addr)}
}

// indexTopLevel returns the byte index of the first occurrence of target
// outside a quoted string, or -1 if none is found.
func indexTopLevel(s string, target byte) int {
	inQuotes := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inQuotes:
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inQuotes = false
			}
		case c == '"':
			inQuotes = true
		case c == target:
			return i
		}
	}
	return -1
}

// unquoteDisplayName strips surrounding DQUOTEs and resolves backslash
// escapes from a quoted-string display name. Unquoted names pass through.
func unquoteDisplayName(name string) string {
	if len(name) < 2 || name[0] != '"' || name[len(name)-1] != '"' {
		return name
	}
	inner := name[1 : len(name)-1]
	var b strings.Builder
	escaped := false
	for _, r := range inner {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// needsQuoting reports whether a display name must be wrapped in DQUOTEs
// when rendered on the wire.
func needsQuoting(name string) bool {
	for _, r := range name {
		switch r {
		case ',', '<', '>', '"', '\\', ':', ';', '@':
			return true
		}
	}
	return false
}

// quoteDisplayName renders a display name for wire output, quoting and
// escaping it only if it contains characters that require it.
func quoteDisplayName(name string) string {
	if !needsQuoting(name) {
		return name
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range name {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
