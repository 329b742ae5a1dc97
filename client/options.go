package client

import (
	"crypto/rand"
	"log/slog"
	"time"

	"github.com/trasherdk/emailjs/connection"
)

// DefaultBackoff is how long Client waits before retrying a RCPT TO that
// was rejected with a transient 450 (greylisting), when Options.Backoff
// is left zero.
const DefaultBackoff = 5 * time.Second

// Options configures a Client. It embeds connection.Options, so every
// dial/auth/TLS knob of the underlying Connection is also a Client option.
type Options struct {
	connection.Options

	// Backoff is how long to wait before the single greylist retry on a
	// 450 RCPT TO reply. Defaults to DefaultBackoff.
	Backoff time.Duration
}

// withDefaults fills the fields Client itself reads directly (Logger,
// NowFunc, RandFunc, Backoff) — connection.Connection fills its own copy
// of the embedded Options independently when it is constructed.
func (o Options) withDefaults() Options {
	if o.Backoff == 0 {
		o.Backoff = DefaultBackoff
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.NowFunc == nil {
		o.NowFunc = time.Now
	}
	if o.RandFunc == nil {
		o.RandFunc = func(n int) []byte {
			b := make([]byte, n)
			_, _ = rand.Read(b)
			return b
		}
	}
	return o
}
