// Package smtptest is a minimal SMTP server used only by this module's
// own tests, standing in for a real mail server on the other end of a
// connection.Connection or client.Client.
package smtptest

import (
	"context"
	"io"

	"github.com/trasherdk/emailjs"
)

// HeloHandler is called when the client sends EHLO or HELO.
type HeloHandler interface {
	OnHelo(ctx context.Context, hostname string) error
}

// RcptHandler is called for RCPT TO commands. Returning a *smtp.SMTPError
// controls the wire reply, which is how fixtures simulate greylisting
// (450) or permanent rejection without a bespoke hook type.
type RcptHandler interface {
	OnRcpt(ctx context.Context, to smtp.ForwardPath) error
}

// DataHandler is called once the DATA body has been fully received. The
// reader yields the de-stuffed message body.
type DataHandler interface {
	OnData(ctx context.Context, from smtp.ReversePath, to []smtp.ForwardPath, r io.Reader) error
}

// AuthHandler authenticates a client against mechanism-specific credentials.
type AuthHandler interface {
	Authenticate(ctx context.Context, mechanism string, username string, password string) error
}
