package mime

import (
	"fmt"
	gomime "mime"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/trasherdk/emailjs"
)

// qEncodeCap is the maximum length of one RFC 2047 encoded-word,
// including the "=?UTF-8?Q?" / "?=" wrapping (spec.md §4.2).
const qEncodeCap = 75

// isASCII reports whether s contains only 7-bit ASCII bytes.
func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// qEncodeIfNeeded Q-encodes s as RFC 2047 encoded-words when it contains
// non-ASCII characters, leaving ASCII values untouched.
func qEncodeIfNeeded(s string) string {
	if isASCII(s) {
		return s
	}
	return qEncodeWord(s)
}

// qEncodeWord renders s as one or more "=?UTF-8?Q?...?=" encoded-words,
// each at most qEncodeCap bytes, space-separated so header folding can
// break between them.
func qEncodeWord(s string) string {
	if isASCII(s) {
		return s
	}
	const prefix, suffix = "=?UTF-8?Q?", "?="
	maxPayload := qEncodeCap - len(prefix) - len(suffix)

	var words []string
	var cur strings.Builder
	for _, r := range s {
		enc := qEncodeRune(r)
		if cur.Len()+len(enc) > maxPayload && cur.Len() > 0 {
			words = append(words, prefix+cur.String()+suffix)
			cur.Reset()
		}
		cur.WriteString(enc)
	}
	if cur.Len() > 0 {
		words = append(words, prefix+cur.String()+suffix)
	}
	return strings.Join(words, " ")
}

func qEncodeRune(r rune) string {
	var buf [utf8.UTFMax]byte
	n := utf8.EncodeRune(buf[:], r)
	var b strings.Builder
	for _, c := range buf[:n] {
		b.WriteString(qEncodeByte(c))
	}
	return b.String()
}

func qEncodeByte(c byte) string {
	if c == ' ' {
		return "_"
	}
	if isQSafeByte(c) {
		return string(c)
	}
	return fmt.Sprintf("=%02X", c)
}

func isQSafeByte(c byte) bool {
	if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
		return true
	}
	switch c {
	case '!', '*', '+', '-', '/':
		return true
	}
	return false
}

// foldHeader renders "Name: value\r\n", folding value across continuation
// lines of the form "\r\n\t" so no line exceeds 76 characters of content
// (spec.md §4.2). Folding happens on whitespace boundaries, which lines up
// with RFC 2047's rule of only breaking between encoded-words.
func foldHeader(name, value string) string {
	const maxLen = 76
	prefix := name + ": "
	words := strings.Fields(value)
	if len(words) == 0 {
		return prefix + "\r\n"
	}

	var b strings.Builder
	b.WriteString(prefix)
	lineLen := len(prefix)
	for i, w := range words {
		sep := " "
		if i == 0 {
			sep = ""
		}
		if lineLen+len(sep)+len(w) > maxLen && lineLen > 0 {
			b.WriteString("\r\n\t")
			lineLen = 1
			sep = ""
		}
		b.WriteString(sep)
		b.WriteString(w)
		lineLen += len(sep) + len(w)
	}
	b.WriteString("\r\n")
	return b.String()
}

// renderAddress renders one address for an address-valued header,
// preserving "Name <addr>" format and Q-encoding non-ASCII display names
// (spec.md §4.2).
func renderAddress(a smtp.Address) string {
	if a.Name == "" {
		return a.Addr
	}
	if isASCII(a.Name) {
		return a.String()
	}
	return qEncodeWord(a.Name) + " <" + a.Addr + ">"
}

// formatParams renders value followed by its parameters in sorted key
// order, always writing each parameter value as a quoted string. A
// non-ASCII value makes it fall back to gomime.FormatMediaType, which uses
// RFC 2231 encoding for such values.
func formatParams(value string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if !isASCII(v) {
			return gomime.FormatMediaType(value, params)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(value)
	for _, k := range keys {
		b.WriteString("; " + k + `="` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(params[k]) + `"`)
	}
	return b.String()
}

// buildContentType renders an attachment's Content-Type header value,
// including name/charset/method parameters, quoted by formatParams.
func buildContentType(a *Attachment) string {
	params := map[string]string{}
	if a.Name != "" {
		params["name"] = a.Name
	}
	if a.Charset != "" {
		params["charset"] = a.Charset
	}
	if a.Method != "" {
		params["method"] = a.Method
	}
	if ct := formatParams(a.contentType(), params); ct != "" {
		return ct
	}
	return a.contentType()
}

// buildDisposition renders an attachment's Content-Disposition header
// value.
func buildDisposition(a *Attachment) string {
	params := map[string]string{}
	if a.Name != "" {
		params["filename"] = a.Name
	}
	if d := formatParams(a.disposition(), params); d != "" {
		return d
	}
	return a.disposition()
}
