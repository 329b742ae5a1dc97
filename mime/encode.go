package mime

import (
	"io"
	"net/mail"
	"strings"
	"time"
)

// EncoderOption configures an [Encoder].
type EncoderOption func(*Encoder)

// WithNow overrides the clock an Encoder uses to stamp a default Date
// header, in place of time.Now.
func WithNow(now time.Time) EncoderOption {
	return func(e *Encoder) { e.now = now }
}

// WithRand overrides the random-byte source an Encoder uses for boundary
// tokens and a default Message-Id, in place of crypto/rand.
func WithRand(randFunc func(int) []byte) EncoderOption {
	return func(e *Encoder) { e.rand = randFunc }
}

// Encoder renders a [MessageStack] into the RFC 5322 + RFC 2045 byte
// stream an SMTP DATA phase transmits (spec.md §4). It is a one-shot,
// streaming writer: it never buffers the whole message, pulling
// attachment bytes from their sources as it writes.
type Encoder struct {
	stack *MessageStack
	now   time.Time
	rand  func(int) []byte

	dateCache string
	midCache  string
}

// NewEncoder returns an Encoder for stack.
func NewEncoder(stack *MessageStack, opts ...EncoderOption) *Encoder {
	e := &Encoder{stack: stack, now: time.Now(), rand: defaultRand}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WriteTo streams the encoded message to w, returning the number of
// bytes written. It satisfies [io.WriterTo].
func (e *Encoder) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	if err := e.writeHeaders(cw); err != nil {
		return cw.n, err
	}

	root := e.buildRoot()
	if _, err := io.WriteString(cw, root.headers); err != nil {
		return cw.n, err
	}
	if _, err := io.WriteString(cw, "\r\n"); err != nil {
		return cw.n, err
	}
	if err := root.write(cw); err != nil {
		return cw.n, err
	}

	return cw.n, nil
}

// addressFields lists the address-valued headers in the wire order
// spec.md §4.2 prescribes, paired with their canonical wire capitalization.
var addressFields = []struct{ key, wire string }{
	{"from", "From"},
	{"reply-to", "Reply-To"},
	{"sender", "Sender"},
	{"to", "To"},
	{"cc", "Cc"},
	{"bcc", "Bcc"},
}

// skipHeaders lists header keys writeHeaders never passes through as a
// user-supplied extra, either because it renders them itself or because
// they describe envelope state rather than a DATA header.
var skipHeaders = map[string]bool{
	"from": true, "reply-to": true, "sender": true,
	"to": true, "cc": true, "bcc": true,
	"subject": true, "message-id": true, "date": true,
	"mime-version": true, "content-type": true,
	"content-transfer-encoding": true, "return-path": true,
}

// writeHeaders renders every header line up to and including
// "MIME-Version: 1.0", in the fixed order spec.md §4.2 defines: address
// fields, subject, message-id, date, then any user-supplied extras.
func (e *Encoder) writeHeaders(w io.Writer) error {
	h := e.stack.Message.Header

	for _, f := range addressFields {
		if err := writeAddressHeader(w, h, f.key, f.wire); err != nil {
			return err
		}
	}

	if err := writeNamedTextHeader(w, h, "subject", "Subject"); err != nil {
		return err
	}
	if _, err := io.WriteString(w, foldHeader("Message-Id", e.effectiveMessageID())); err != nil {
		return err
	}
	if _, err := io.WriteString(w, foldHeader("Date", e.effectiveDate())); err != nil {
		return err
	}

	for _, name := range h.Keys() {
		if skipHeaders[strings.ToLower(name)] {
			continue
		}
		if _, err := io.WriteString(w, foldHeader(name, qEncodeIfNeeded(h.Text(name)))); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, "MIME-Version: 1.0\r\n")
	return err
}

func writeAddressHeader(w io.Writer, h *Header, key, wireName string) error {
	if !h.Has(key) {
		return nil
	}
	addrs := h.Addresses(key)
	if len(addrs) == 0 {
		return nil
	}
	rendered := make([]string, len(addrs))
	for i, a := range addrs {
		rendered[i] = renderAddress(a)
	}
	_, err := io.WriteString(w, wireName+": "+strings.Join(rendered, ",\r\n\t")+"\r\n")
	return err
}

func writeNamedTextHeader(w io.Writer, h *Header, key, wireName string) error {
	if !h.Has(key) {
		return nil
	}
	_, err := io.WriteString(w, foldHeader(wireName, qEncodeIfNeeded(h.Text(key))))
	return err
}

// effectiveDate returns the Date header value to render: the existing
// value if present and RFC 5322-parseable, otherwise the encoder's clock
// formatted per spec.md §4.2. NewMessageStack's Message is never mutated.
func (e *Encoder) effectiveDate() string {
	if e.dateCache != "" {
		return e.dateCache
	}
	if val := e.stack.Message.Header.Text("date"); val != "" {
		if _, err := mail.ParseDate(val); err == nil {
			e.dateCache = val
			return val
		}
	}
	e.dateCache = e.now.Format(time.RFC1123Z)
	return e.dateCache
}

// effectiveMessageID returns the Message-Id header value to render:
// the existing value normalized with enclosing angle brackets, or a
// freshly generated id (spec.md §4.2).
func (e *Encoder) effectiveMessageID() string {
	if e.midCache != "" {
		return e.midCache
	}
	val := e.stack.Message.Header.Text("message-id")
	if val == "" {
		e.midCache = newMessageID(e.now, e.rand)
	} else {
		e.midCache = normalizeMessageID(val)
	}
	return e.midCache
}

// buildRoot assembles the message body's top-level MIME structure per
// the table in spec.md §4.5.
func (e *Encoder) buildRoot() part {
	m := e.stack.Message
	hasAlt := m.Alternative != nil && m.Alternative.HasContent()
	hasAttach := len(m.Attachments) > 0

	if !hasAlt && !hasAttach {
		return e.textLeafPart(m.Text, m.contentType())
	}

	var body part
	if hasAlt {
		body = e.multipartPart("multipart/alternative", []part{
			e.textLeafPart(m.Text, m.contentType()),
			e.attachmentPart(m.Alternative),
		})
	} else {
		body = e.textLeafPart(m.Text, m.contentType())
	}

	if !hasAttach {
		return body
	}

	children := []part{body}
	for _, a := range m.Attachments {
		children = append(children, e.attachmentPart(a))
	}
	return e.multipartPart("multipart/mixed", children)
}

// countingWriter tracks the number of bytes written, for WriteTo's
// io.WriterTo byte count.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
