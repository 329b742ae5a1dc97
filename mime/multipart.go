package mime

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime/quotedprintable"
	"os"
	"strings"
)

// part is one MIME body part: a fully rendered header block (each line
// ending "\r\n") and a function that streams the part's body.
type part struct {
	headers string
	write   func(w io.Writer) error
}

// writeMultipart writes a boundary-delimited sequence of parts followed by
// the closing delimiter (RFC 2046 §5.1).
func writeMultipart(w io.Writer, boundary string, parts []part) error {
	for _, p := range parts {
		if _, err := io.WriteString(w, "--"+boundary+"\r\n"); err != nil {
			return err
		}
		if _, err := io.WriteString(w, p.headers); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return err
		}
		if err := p.write(w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "--"+boundary+"--\r\n")
	return err
}

// multipartPart wraps children in a fresh-boundary multipart/<subtype>
// part (spec.md §4.5: a new random boundary token per nesting level).
func (e *Encoder) multipartPart(subtype string, children []part) part {
	boundary := newBoundary(e.rand)
	return part{
		headers: "Content-Type: " + subtype + "; boundary=\"" + boundary + "\"\r\n",
		write: func(w io.Writer) error {
			return writeMultipart(w, boundary, children)
		},
	}
}

// textLeafPart renders a plain-text body part, picking 7bit or
// quoted-printable transfer encoding per spec.md §4.6.
func (e *Encoder) textLeafPart(text, contentType string) part {
	body, cte := encodeTextBody(text)
	headers := "Content-Type: " + contentType + "\r\n" +
		"Content-Transfer-Encoding: " + cte + "\r\n"
	return part{headers: headers, write: func(w io.Writer) error {
		_, err := w.Write(body)
		return err
	}}
}

// attachmentPart renders one attachment, recursing into a
// multipart/related wrapper when it carries Related sub-attachments
// (spec.md §4.5).
func (e *Encoder) attachmentPart(a *Attachment) part {
	if len(a.Related) == 0 {
		return e.attachmentLeafPart(a)
	}

	root := *a
	root.Related = nil
	children := []part{e.attachmentLeafPart(&root)}
	for _, rel := range a.Related {
		children = append(children, e.attachmentPart(rel))
	}
	return e.multipartPart("multipart/related", children)
}

func (e *Encoder) attachmentLeafPart(a *Attachment) part {
	var headers strings.Builder
	headers.WriteString("Content-Type: " + buildContentType(a) + "\r\n")

	var cte string
	var bodyWriter func(w io.Writer) error

	switch {
	case a.Encoded:
		cte = "base64"
		bodyWriter = e.verbatimWriter(a)
	case a.Alternative:
		body, enc := encodeTextBody(string(a.Data))
		cte = enc
		bodyWriter = func(w io.Writer) error {
			_, err := w.Write(body)
			return err
		}
	default:
		cte = "base64"
		bodyWriter = e.base64Writer(a)
	}
	headers.WriteString("Content-Transfer-Encoding: " + cte + "\r\n")

	if disp := buildDisposition(a); disp != "" && !a.Alternative {
		headers.WriteString("Content-Disposition: " + disp + "\r\n")
	}
	if a.ContentID != "" {
		headers.WriteString("Content-ID: <" + strings.Trim(a.ContentID, "<>") + ">\r\n")
	}

	return part{headers: headers.String(), write: bodyWriter}
}

// openSource resolves an attachment's content source in the order
// spec.md §3 prescribes: Data, then Stream, then Path.
func (e *Encoder) openSource(a *Attachment) (io.Reader, io.Closer, error) {
	switch {
	case a.Data != nil:
		return bytes.NewReader(a.Data), nil, nil
	case a.Stream != nil:
		return a.Stream, nil, nil
	case a.Path != "":
		f, err := os.Open(a.Path)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	default:
		return bytes.NewReader(nil), nil, nil
	}
}

func (e *Encoder) verbatimWriter(a *Attachment) func(w io.Writer) error {
	return func(w io.Writer) error {
		src, closer, err := e.openSource(a)
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}
		_, err = io.Copy(w, src)
		return err
	}
}

func (e *Encoder) base64Writer(a *Attachment) func(w io.Writer) error {
	return func(w io.Writer) error {
		src, closer, err := e.openSource(a)
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}
		lw := &base64LineWriter{w: w}
		enc := base64.NewEncoder(base64.StdEncoding, lw)
		if _, err := io.Copy(enc, src); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
		return lw.Close()
	}
}

// base64LineWriter inserts a CRLF every 76 base64 characters, the
// line-length convention spec.md §4.6 requires for binary attachments.
type base64LineWriter struct {
	w   io.Writer
	col int
}

func (b *base64LineWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		room := 76 - b.col
		n := room
		if n > len(p) {
			n = len(p)
		}
		if n > 0 {
			if _, err := b.w.Write(p[:n]); err != nil {
				return written, err
			}
			written += n
			b.col += n
			p = p[n:]
		}
		if b.col == 76 {
			if _, err := b.w.Write([]byte("\r\n")); err != nil {
				return written, err
			}
			b.col = 0
		}
	}
	return written, nil
}

func (b *base64LineWriter) Close() error {
	if b.col > 0 {
		if _, err := b.w.Write([]byte("\r\n")); err != nil {
			return err
		}
		b.col = 0
	}
	return nil
}

// encodeTextBody picks the transfer encoding for a plain-text body:
// 7bit if it is strictly ASCII with no line longer than 998 bytes,
// quoted-printable otherwise (spec.md §4.6).
func encodeTextBody(text string) ([]byte, string) {
	normalized := normalizeCRLF(text)
	if isSevenBitSafe(normalized) {
		return []byte(normalized), "7bit"
	}

	var buf bytes.Buffer
	qw := quotedprintable.NewWriter(&buf)
	_, _ = qw.Write([]byte(normalized))
	_ = qw.Close()
	return buf.Bytes(), "quoted-printable"
}

func normalizeCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func isSevenBitSafe(s string) bool {
	lineLen := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c > 127 {
			return false
		}
		if c == '\n' {
			lineLen = 0
			continue
		}
		if c == '\r' {
			continue
		}
		lineLen++
		if lineLen > 998 {
			return false
		}
	}
	return true
}
