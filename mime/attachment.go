package mime

import "io"

// Attachment describes one part of a message body: an inline buffer, a
// readable byte stream, or a filesystem path. Exactly one of Data, Stream,
// or Path should be set; the encoder checks them in that order when more
// than one is present.
type Attachment struct {
	// Data holds the attachment's bytes inline.
	Data []byte
	// Stream is a readable byte stream, consumed once.
	Stream io.Reader
	// Path is a filesystem path read via the encoder's injected file I/O.
	Path string

	// Type is the attachment's MIME content-type.
	Type string
	// Name is the attachment's filename, used in Content-Disposition and
	// Content-Type's "name" parameter.
	Name string
	// Charset overrides the attachment's charset parameter.
	Charset string
	// Method is used for calendar invites (e.g. "REQUEST") and rendered
	// as a Content-Type parameter when set.
	Method string
	// Encoded indicates the bytes are already base64-encoded and must be
	// emitted verbatim. Such a part is always labelled
	// Content-Transfer-Encoding: base64; no other transfer encoding can be
	// declared for it.
	Encoded bool
	// Alternative marks this attachment as an alternate body
	// representation rather than a true attachment.
	Alternative bool
	// Inline marks this attachment for Content-Disposition: inline
	// rather than attachment.
	Inline bool
	// Related holds sub-attachments referenced from this attachment's
	// body via Content-ID (forms a multipart/related part).
	Related []*Attachment

	// ContentID is the Content-ID used to reference this attachment from
	// HTML via cid: URIs, relevant only inside Related.
	ContentID string
}

// HasContent reports whether the attachment has a usable content source.
func (a *Attachment) HasContent() bool {
	return a.Data != nil || a.Stream != nil || a.Path != ""
}

// contentType returns Type, defaulting to a generic binary type.
func (a *Attachment) contentType() string {
	if a.Type == "" {
		return "application/octet-stream"
	}
	return a.Type
}

// disposition returns the Content-Disposition value for this attachment.
func (a *Attachment) disposition() string {
	if a.Inline {
		return "inline"
	}
	return "attachment"
}
