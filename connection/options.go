// Package connection implements the SMTP protocol state machine: socket
// setup, EHLO/HELO negotiation, STARTTLS upgrade, SASL authentication,
// and the MAIL/RCPT/DATA command sequence (RFC 5321), built on
// internal/textproto.
package connection

import (
	"crypto/rand"
	"crypto/tls"
	"log/slog"
	"net"
	"os"
	"time"
)

// Mechanism identifies an authentication method selector token
// (spec.md §6: exactly PLAIN, LOGIN, CRAM-MD5, XOAUTH2).
type Mechanism string

const (
	MechPlain   Mechanism = "PLAIN"
	MechLogin   Mechanism = "LOGIN"
	MechCRAMMD5 Mechanism = "CRAM-MD5"
	MechXOAuth2 Mechanism = "XOAUTH2"
)

// mechanismOrder is the fixed preference order a Connection walks when
// picking an authentication mechanism (spec.md §4.3).
var mechanismOrder = []Mechanism{MechCRAMMD5, MechLogin, MechPlain, MechXOAuth2}

// DefaultTimeout is the default command and idle timeout (spec.md §3).
const DefaultTimeout = 5000 * time.Millisecond

// Options configures a Connection.
type Options struct {
	// Host is the remote server hostname, default "localhost".
	Host string
	// Port is the remote server port. Defaults to 25, or 465/587 when
	// SSL/TLS is requested, chosen by New if left zero.
	Port int
	// SSL requests implicit TLS: the socket is TLS-wrapped from byte 0.
	SSL bool
	// TLS requests opportunistic STARTTLS when the server advertises it.
	TLS bool
	// TLSConfig configures the TLS handshake for SSL or STARTTLS.
	TLSConfig *tls.Config

	// User and Password configure authentication. Authentication is
	// skipped entirely when both are empty.
	User     string
	Password string
	// OAuthToken, when set, selects XOAUTH2 with User as the bearer
	// identity instead of password authentication.
	OAuthToken string
	// Authentication restricts which mechanisms may be used, filtered
	// against the server's advertised list. A nil slice allows all four,
	// or only XOAUTH2 when OAuthToken is set.
	Authentication []Mechanism

	// Domain is the HELO/EHLO identity, default the local hostname.
	Domain string
	// Timeout bounds both command round-trips and connection idle time.
	// Zero defaults to DefaultTimeout.
	Timeout time.Duration

	// Dialer is used to establish the TCP connection. Defaults to
	// &net.Dialer{}.
	Dialer *net.Dialer

	// Logger receives diagnostic output, including swallowed errors on
	// an idle connection (spec.md §7). Defaults to slog.Default().
	Logger *slog.Logger

	// NowFunc returns the current time, injected for deterministic
	// Date/Message-Id generation in tests. Defaults to time.Now.
	NowFunc func() time.Time
	// RandFunc returns n random bytes, injected for deterministic
	// boundary/Message-Id generation in tests. Defaults to crypto/rand.
	RandFunc func(n int) []byte
}

func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = "localhost"
	}
	if o.Port == 0 {
		switch {
		case o.SSL:
			o.Port = 465
		case o.TLS:
			o.Port = 587
		default:
			o.Port = 25
		}
	}
	if o.Domain == "" {
		if h, err := os.Hostname(); err == nil && h != "" {
			o.Domain = h
		} else {
			o.Domain = "localhost"
		}
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Dialer == nil {
		o.Dialer = &net.Dialer{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.NowFunc == nil {
		o.NowFunc = time.Now
	}
	if o.RandFunc == nil {
		o.RandFunc = defaultRand
	}
	return o
}

func defaultRand(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}
