package mime

import (
	"errors"

	"github.com/trasherdk/emailjs"
)

// Fixed validation-error catalogue (spec.md §8 universal invariants).
var (
	// ErrMissingFrom is returned when a Message has no valid `from` header.
	ErrMissingFrom = errors.New("Message must have a `from` header")
	// ErrMissingRecipient is returned when a Message has no valid `to`,
	// `cc`, or `bcc` header.
	ErrMissingRecipient = errors.New("Message must have at least one `to`, `cc`, or `bcc` header")
)

// DefaultContentType is the primary body content-type used when a
// Message does not specify one.
const DefaultContentType = "text/plain; charset=utf-8"

// Message is an in-memory email: headers, an optional plain-text body, an
// optional alternate representation, and an ordered list of attachments
// (spec.md §3).
type Message struct {
	Header *Header

	// Content is the MIME content-type of the primary body.
	// Defaults to DefaultContentType when empty.
	Content string

	// Text is the primary plain-text body.
	Text string

	// Alternative is an alternate representation of Text (typically
	// text/html); when set alongside Text it forms a multipart/alternative.
	Alternative *Attachment

	// Attachments is the ordered list of attachment descriptors.
	Attachments []*Attachment
}

// NewMessage returns an empty Message ready for headers and a body to be
// set on it.
func NewMessage() *Message {
	return &Message{Header: NewHeader()}
}

// SetAlternative sets the alternate body representation (typically
// text/html), normalizing it into an [Attachment] with Alternative set —
// the "constructor's convenience field" normalization spec.md §4.4 refers
// to.
func (m *Message) SetAlternative(contentType, body string) {
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	m.Alternative = &Attachment{
		Type:        contentType,
		Data:        []byte(body),
		Alternative: true,
	}
}

// Attach appends an attachment to the message, in the order attachments
// are rendered.
func (m *Message) Attach(a *Attachment) {
	m.Attachments = append(m.Attachments, a)
}

// contentType returns Content, defaulting to DefaultContentType.
func (m *Message) contentType() string {
	if m.Content == "" {
		return DefaultContentType
	}
	return m.Content
}

// CheckValidity validates the message's headers per spec.md §4.4: `from`
// must be present and parse to at least one address, and at least one of
// `to`, `cc`, `bcc` must yield at least one parseable recipient. It is
// idempotent and does not mutate the Message.
func (m *Message) CheckValidity() (bool, error) {
	if !hasValidAddress(m.Header.Addresses("from")) {
		return false, ErrMissingFrom
	}

	hasRecipient := false
	for _, h := range [...]string{"to", "cc", "bcc"} {
		if hasValidAddress(m.Header.Addresses(h)) {
			hasRecipient = true
			break
		}
	}
	if !hasRecipient {
		return false, ErrMissingRecipient
	}

	return true, nil
}

func hasValidAddress(addrs []smtp.Address) bool {
	for _, a := range addrs {
		if a.Valid() {
			return true
		}
	}
	return false
}
