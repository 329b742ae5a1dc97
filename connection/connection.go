package connection

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/trasherdk/emailjs"
	"github.com/trasherdk/emailjs/internal/textproto"
)

// State identifies the connection's position in the SMTP protocol state
// machine (spec.md §4.3).
type State int

const (
	StateNotConnected State = iota // 0
	StateConnecting                // 1
	StateConnected                 // 2
	StateAuthorizing                // 3
	StateAuthorized                 // 4
	StateSending                    // 5
	StateData                       // 6
)

func (s State) String() string {
	switch s {
	case StateNotConnected:
		return "NOT_CONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateAuthorizing:
		return "AUTHORIZING"
	case StateAuthorized:
		return "AUTHORIZED"
	case StateSending:
		return "SENDING"
	case StateData:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// ErrTimeout is returned by Mail, Rcpt, Reset, and by Data's DATA command
// and end-of-data reply, when that exchange hits the deadline derived from
// Options.Timeout; the connection is torn down first (spec.md §4.3, §7).
// Code is always -1, a sentinel distinguishing a socket-level timeout from
// any SMTP reply code. A timeout during Connect (greeting, EHLO, STARTTLS,
// AUTH) or while Data streams the message body is returned as a wrapped
// network error instead.
type ErrTimeout struct {
	Op   string
	Code int
}

func (e *ErrTimeout) Error() string { return fmt.Sprintf("smtp: timeout: %s", e.Op) }

// TLSUpgradeError wraps a failure to negotiate STARTTLS or implicit TLS
// (spec.md §7). It is always fatal to the connection.
type TLSUpgradeError struct {
	Err error
}

func (e *TLSUpgradeError) Error() string { return fmt.Sprintf("smtp: TLS upgrade: %v", e.Err) }
func (e *TLSUpgradeError) Unwrap() error { return e.Err }

// Connection drives one SMTP session: dial, EHLO/HELO, STARTTLS,
// authentication, and the MAIL/RCPT/DATA command sequence. It is not
// safe for concurrent use — a Client serializes access to it.
type Connection struct {
	opts Options

	mu    sync.Mutex
	state State

	conn     *textproto.Conn
	netConn  net.Conn
	hostname string
	tlsOn    bool
	exts     smtp.Extensions

	idleTimer *time.Timer
}

// New returns a Connection configured by opts. It does not dial; the
// connection is established lazily by Connect.
func New(opts Options) *Connection {
	return &Connection{opts: opts.withDefaults(), state: StateNotConnected}
}

// State reports the connection's current protocol state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Connect dials the server (plain or implicit TLS per Options.SSL),
// reads the banner, negotiates EHLO/HELO, upgrades via STARTTLS when
// requested and advertised, and authenticates when credentials are
// configured (spec.md §4.3).
func (c *Connection) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	addr := fmt.Sprintf("%s:%d", c.opts.Host, c.opts.Port)
	dialCtx, dialCancel := c.cmdCtx(ctx)
	nc, err := c.opts.Dialer.DialContext(dialCtx, "tcp", addr)
	dialCancel()
	if err != nil {
		c.setState(StateNotConnected)
		return fmt.Errorf("smtp: dial %s: %w", addr, err)
	}

	if c.opts.SSL {
		tlsConn := tls.Client(nc, c.tlsConfig())
		tlsCtx, tlsCancel := c.cmdCtx(ctx)
		err := tlsConn.HandshakeContext(tlsCtx)
		tlsCancel()
		if err != nil {
			nc.Close()
			c.setState(StateNotConnected)
			return &TLSUpgradeError{Err: err}
		}
		nc = tlsConn
		c.tlsOn = true
	}

	c.netConn = nc
	c.conn = textproto.NewConn(nc)
	greetCtx, greetCancel := c.cmdCtx(ctx)
	c.conn.SetDeadlineFromContext(greetCtx)
	greetCancel()

	reply, err := c.conn.ReadReply()
	if err != nil {
		c.fail()
		return fmt.Errorf("smtp: reading greeting: %w", err)
	}
	if reply.Code != int(smtp.ReplyServiceReady) {
		c.fail()
		return replyToError(reply)
	}
	if len(reply.Lines) > 0 {
		c.hostname = reply.Lines[0]
	}
	c.setState(StateConnected)

	if err := c.ehlo(ctx); err != nil {
		c.fail()
		return err
	}

	if c.opts.TLS && !c.tlsOn && c.exts.Has(smtp.ExtSTARTTLS) {
		if err := c.startTLS(ctx); err != nil {
			c.fail()
			return err
		}
	}

	if c.opts.User != "" || c.opts.OAuthToken != "" {
		c.setState(StateAuthorizing)
		if err := c.authenticate(ctx); err != nil {
			c.fail()
			return err
		}
	}

	c.setState(StateAuthorized)
	c.resetIdleTimer()
	return nil
}

func (c *Connection) tlsConfig() *tls.Config {
	if c.opts.TLSConfig != nil {
		return c.opts.TLSConfig
	}
	return &tls.Config{ServerName: c.opts.Host}
}

// ehlo sends EHLO and falls back to HELO on 5xx rejection (RFC 5321
// §4.1.1.1).
func (c *Connection) ehlo(ctx context.Context) error {
	dctx, cancel := c.cmdCtx(ctx)
	c.conn.SetDeadlineFromContext(dctx)
	cancel()

	reply, err := c.conn.Cmd("EHLO %s", c.opts.Domain)
	if err != nil {
		return fmt.Errorf("smtp: EHLO: %w", err)
	}

	if reply.Code == int(smtp.ReplyOK) {
		c.exts = smtp.ParseEHLOResponse(reply.Lines)
		return nil
	}

	if smtp.ReplyCode(reply.Code).IsPermanent() {
		reply, err = c.conn.Cmd("HELO %s", c.opts.Domain)
		if err != nil {
			return fmt.Errorf("smtp: HELO: %w", err)
		}
		if reply.Code != int(smtp.ReplyOK) {
			return replyToError(reply)
		}
		c.exts = nil
		return nil
	}

	return replyToError(reply)
}

// startTLS sends STARTTLS, upgrades the socket, and re-issues EHLO to
// refresh capabilities (RFC 3207 §4.2).
func (c *Connection) startTLS(ctx context.Context) error {
	dctx, cancel := c.cmdCtx(ctx)
	c.conn.SetDeadlineFromContext(dctx)
	cancel()

	reply, err := c.conn.Cmd("STARTTLS")
	if err != nil {
		return fmt.Errorf("smtp: STARTTLS: %w", err)
	}
	if reply.Code != int(smtp.ReplyServiceReady) {
		return replyToError(reply)
	}

	tlsConn := tls.Client(c.netConn, c.tlsConfig())
	handshakeCtx, handshakeCancel := c.cmdCtx(ctx)
	err = tlsConn.HandshakeContext(handshakeCtx)
	handshakeCancel()
	if err != nil {
		return &TLSUpgradeError{Err: err}
	}
	c.netConn = tlsConn
	c.conn.ReplaceConn(tlsConn)
	c.tlsOn = true

	return c.ehlo(ctx)
}

// authenticate walks the fixed mechanism preference order, filtered by
// Options.Authentication and the server's advertised AUTH mechanism
// list, and runs the first match to completion (spec.md §4.3). A 535
// failure is terminal — it never falls through to the next mechanism.
func (c *Connection) authenticate(ctx context.Context) error {
	advertised := map[string]bool{}
	for _, m := range c.exts.AuthMechanisms() {
		advertised[strings.ToUpper(m)] = true
	}
	allowed := map[Mechanism]bool{}
	switch {
	case len(c.opts.Authentication) > 0:
		for _, m := range c.opts.Authentication {
			allowed[m] = true
		}
	case c.opts.OAuthToken != "":
		allowed[MechXOAuth2] = true
	default:
		for _, m := range mechanismOrder {
			allowed[m] = true
		}
	}

	for _, m := range mechanismOrder {
		if !allowed[m] || !advertised[string(m)] {
			continue
		}
		mech, err := c.buildMechanism(m)
		if err != nil {
			return err
		}
		return c.runAuth(ctx, mech)
	}

	return fmt.Errorf("smtp: no acceptable authentication mechanism advertised by server")
}

func (c *Connection) buildMechanism(m Mechanism) (smtp.SASLMechanism, error) {
	switch m {
	case MechPlain:
		return smtp.PlainAuth("", c.opts.User, c.opts.Password), nil
	case MechLogin:
		return smtp.LoginAuth(c.opts.User, c.opts.Password), nil
	case MechCRAMMD5:
		return smtp.CramMD5Auth(c.opts.User, c.opts.Password), nil
	case MechXOAuth2:
		return smtp.XOAuth2Auth(c.opts.User, c.opts.OAuthToken), nil
	default:
		return nil, fmt.Errorf("smtp: unknown authentication mechanism %q", m)
	}
}

// runAuth drives one AUTH exchange to completion (RFC 4954).
func (c *Connection) runAuth(ctx context.Context, mech smtp.SASLMechanism) error {
	dctx, cancel := c.cmdCtx(ctx)
	c.conn.SetDeadlineFromContext(dctx)
	cancel()

	initial, err := mech.Start()
	if err != nil {
		return fmt.Errorf("smtp: auth start: %w", err)
	}

	var cmd string
	if initial != nil {
		cmd = fmt.Sprintf("AUTH %s %s", mech.Name(), base64.StdEncoding.EncodeToString(initial))
	} else {
		cmd = fmt.Sprintf("AUTH %s", mech.Name())
	}
	if err := c.conn.WriteLine(cmd); err != nil {
		return fmt.Errorf("smtp: auth write: %w", err)
	}

	for {
		reply, err := c.conn.ReadReply()
		if err != nil {
			return fmt.Errorf("smtp: auth read: %w", err)
		}

		if reply.Code == int(smtp.ReplyAuthOK) {
			return nil
		}

		if reply.Code == int(smtp.ReplyAuthFailed) {
			return replyToError(reply)
		}

		if reply.Code != int(smtp.ReplyAuthContinue) {
			return replyToError(reply)
		}

		challengeStr := ""
		if len(reply.Lines) > 0 {
			challengeStr = reply.Lines[0]
		}
		challenge, err := base64.StdEncoding.DecodeString(challengeStr)
		if err != nil {
			challenge = []byte(challengeStr)
		}

		resp, err := mech.Next(challenge)
		if err != nil {
			c.conn.WriteLine(base64.StdEncoding.EncodeToString(nil))
			return fmt.Errorf("smtp: auth mechanism: %w", err)
		}

		if err := c.conn.WriteLine(base64.StdEncoding.EncodeToString(resp)); err != nil {
			return fmt.Errorf("smtp: auth response: %w", err)
		}
	}
}

// Mail sends MAIL FROM (spec.md §4.3, §4.5).
func (c *Connection) Mail(ctx context.Context, from string) error {
	c.stopIdleTimer()
	c.setState(StateSending)
	dctx, cancel := c.cmdCtx(ctx)
	c.conn.SetDeadlineFromContext(dctx)
	cancel()

	reply, err := c.conn.Cmd("MAIL FROM:<%s>", from)
	if err != nil {
		return c.timeoutOr(err, "MAIL FROM")
	}
	if reply.Code != int(smtp.ReplyOK) {
		return replyToError(reply)
	}
	return nil
}

// Rcpt sends RCPT TO (spec.md §4.3, §4.5). Greylist retry (450 handling)
// is the Client's responsibility, not the Connection's.
func (c *Connection) Rcpt(ctx context.Context, to string) error {
	dctx, cancel := c.cmdCtx(ctx)
	c.conn.SetDeadlineFromContext(dctx)
	cancel()

	reply, err := c.conn.Cmd("RCPT TO:<%s>", to)
	if err != nil {
		return c.timeoutOr(err, "RCPT TO")
	}
	if reply.Code != int(smtp.ReplyOK) {
		return replyToError(reply)
	}
	return nil
}

// Data sends the DATA command, then streams enc through a dot-stuffing
// writer (spec.md §4.2, §4.3). On success the connection returns to
// AUTHORIZED and the idle timer restarts.
func (c *Connection) Data(ctx context.Context, enc io.WriterTo) error {
	dctx, cancel := c.cmdCtx(ctx)
	defer cancel()
	c.conn.SetDeadlineFromContext(dctx)

	reply, err := c.conn.Cmd("DATA")
	if err != nil {
		return c.timeoutOr(err, "DATA")
	}
	if reply.Code != int(smtp.ReplyStartMailInput) {
		return replyToError(reply)
	}

	c.setState(StateData)

	dw := c.conn.DotWriter()
	if _, err := enc.WriteTo(dw); err != nil {
		dw.Close()
		return fmt.Errorf("smtp: writing DATA body: %w", err)
	}
	if err := dw.Close(); err != nil {
		return fmt.Errorf("smtp: closing DATA body: %w", err)
	}

	reply, err = c.conn.ReadReply()
	if err != nil {
		return c.timeoutOr(err, "DATA")
	}
	if reply.Code != int(smtp.ReplyOK) {
		return replyToError(reply)
	}

	c.setState(StateAuthorized)
	c.resetIdleTimer()
	return nil
}

// Reset sends RSET, returning the session to AUTHORIZED without
// tearing down the connection (RFC 5321 §4.1.1.5).
func (c *Connection) Reset(ctx context.Context) error {
	dctx, cancel := c.cmdCtx(ctx)
	c.conn.SetDeadlineFromContext(dctx)
	cancel()
	reply, err := c.conn.Cmd("RSET")
	if err != nil {
		return c.timeoutOr(err, "RSET")
	}
	if reply.Code != int(smtp.ReplyOK) {
		return replyToError(reply)
	}
	c.setState(StateAuthorized)
	return nil
}

// Close sends QUIT (unless force) and tears down the socket, always
// resetting state to NOT_CONNECTED (spec.md §4.3).
func (c *Connection) Close(force bool) error {
	c.stopIdleTimer()
	if c.conn == nil {
		c.setState(StateNotConnected)
		return nil
	}
	if !force {
		c.conn.Cmd("QUIT")
	}
	err := c.netConn.Close()
	c.setState(StateNotConnected)
	return err
}

// fail tears the connection down hard and resets state to NOT_CONNECTED
// — the uniform response to any fatal protocol or socket error.
func (c *Connection) fail() {
	c.stopIdleTimer()
	if c.netConn != nil {
		c.netConn.Close()
	}
	c.setState(StateNotConnected)
}

func (c *Connection) timeoutOr(err error, op string) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		c.fail()
		return &ErrTimeout{Op: op, Code: -1}
	}
	return fmt.Errorf("smtp: %s: %w", op, err)
}

// cmdCtx derives a context bounded by Options.Timeout for a single command
// round-trip, so SetDeadlineFromContext always has a concrete deadline to
// set instead of clearing the socket's deadline outright (spec.md §4.3,
// §7 — Timeout must bound each round-trip, not only connection idle time).
func (c *Connection) cmdCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.Timeout)
}

// resetIdleTimer (re)starts the idle timer: if no send begins within
// Options.Timeout, the connection sends QUIT and returns to
// NOT_CONNECTED (spec.md §4.3).
func (c *Connection) resetIdleTimer() {
	c.stopIdleTimer()
	c.mu.Lock()
	c.idleTimer = time.AfterFunc(c.opts.Timeout, func() {
		c.opts.Logger.Debug("smtp: closing idle connection", slog.Duration("timeout", c.opts.Timeout))
		if err := c.Close(false); err != nil {
			c.opts.Logger.Debug("smtp: error closing idle connection", slog.Any("err", err))
		}
	})
	c.mu.Unlock()
}

func (c *Connection) stopIdleTimer() {
	c.mu.Lock()
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	c.mu.Unlock()
}

// replyToError converts a textproto.Reply to an *smtp.SMTPError.
func replyToError(reply textproto.Reply) *smtp.SMTPError {
	msg := strings.Join(reply.Lines, "\n")

	enhanced := smtp.EnhancedCode{}
	if len(reply.Lines) > 0 {
		cl, su, de, rest := textproto.ParseEnhancedCode(reply.Lines[0])
		if cl != 0 {
			enhanced = smtp.EnhancedCode{Class: cl, Subject: su, Detail: de}
			if len(reply.Lines) == 1 {
				msg = rest
			}
		}
	}

	return &smtp.SMTPError{
		Code:         smtp.ReplyCode(reply.Code),
		EnhancedCode: enhanced,
		Message:      msg,
	}
}
