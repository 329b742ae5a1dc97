// Package smtp provides shared types for the SMTP protocol (RFC 5321).
//
// This package contains reply codes, enhanced status codes, error types,
// email address parsing, SMTP extension definitions, and SASL authentication
// mechanisms. It underpins the [github.com/trasherdk/emailjs/connection]
// and [github.com/trasherdk/emailjs/client] packages, which together form
// the submission client: connection negotiates the wire protocol, client
// drives a sequential per-client send queue on top of it.
//
// # Reply Codes
//
// [ReplyCode] constants cover the standard SMTP reply codes this module
// uses (455 is not among them). The [SMTPError]
// type carries a reply code, optional [EnhancedCode], and human-readable
// message.
//
// # Address Types
//
// [Mailbox], [ReversePath], and [ForwardPath] represent RFC 5321 envelope
// addresses (MAIL FROM / RCPT TO) with full parsing and validation,
// including support for internationalized domain names (RFC 6531).
// [Address] and [ParseAddressList] instead parse RFC 5322 header
// address-lists — the From/To/Cc/Bcc values a [github.com/trasherdk/emailjs/mime.Message]
// carries — which may include display names, quoted strings, comments, and
// group syntax, and which tolerate malformed input with a best-effort parse.
//
// # Authentication
//
// The [SASLMechanism] interface and its implementations ([PlainAuth],
// [LoginAuth], [CramMD5Auth], [XOAuth2Auth]) provide client-side SASL
// authentication for PLAIN, LOGIN, CRAM-MD5, and XOAUTH2.
//
// # Extensions
//
// The [Extension] type and [Extensions] map track EHLO-advertised
// capabilities. Use [ParseEHLOResponse] to parse a server's EHLO reply, and
// [Extensions.AuthMechanisms] to read the server's advertised SASL
// mechanism list.
package smtp
