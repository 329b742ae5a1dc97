package smtptest

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/trasherdk/emailjs"
	"github.com/trasherdk/emailjs/internal/textproto"
)

var base64Encoding = base64.StdEncoding

type sessionState int

const (
	stateNew     sessionState = iota
	stateGreeted
	stateMail
	stateRcpt
	stateData
)

// session is a single fixture SMTP connection.
type session struct {
	server *Server
	conn   *textproto.Conn
	state  sessionState

	clientHostname string
	esmtp          bool
	tls            bool
	authenticated  bool

	reversePath  smtp.ReversePath
	forwardPaths []smtp.ForwardPath
}

func (s *Server) handleConn(nc net.Conn) {
	conn := textproto.NewConn(nc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-s.quit:
			cancel()
			nc.Close()
		case <-ctx.Done():
		}
	}()

	sess := &session{server: s, conn: conn, state: stateNew}
	defer conn.Close()

	if err := conn.WriteReply(int(smtp.ReplyServiceReady), fmt.Sprintf("%s ESMTP ready", s.hostname)); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.WriteReply(int(smtp.ReplyServiceNotAvailable), "Server shutting down")
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		line, err := conn.ReadLine(textproto.MaxCommandLineLen)
		if err != nil {
			return
		}

		if strings.ContainsRune(line, 0) {
			sess.reply(smtp.ReplySyntaxError, smtp.EnhancedCodeInvalidCommand, "NUL not allowed in commands")
			continue
		}

		verb, args := parseCommand(line)

		switch verb {
		case "EHLO":
			sess.handleEHLO(args)
		case "HELO":
			sess.handleHELO(args)
		case "MAIL":
			sess.handleMAIL(args)
		case "RCPT":
			sess.handleRCPT(args)
		case "DATA":
			sess.handleDATA()
		case "RSET":
			sess.handleRSET()
		case "NOOP":
			sess.handleNOOP()
		case "QUIT":
			sess.handleQUIT()
			return
		case "VRFY":
			sess.reply(smtp.ReplyCannotVRFY, smtp.EnhancedCodeOK, "Cannot VRFY user, but will accept message")
		case "EXPN":
			sess.reply(smtp.ReplyCommandNotImpl, smtp.EnhancedCodeInvalidCommand, "EXPN not implemented")
		case "STARTTLS":
			sess.handleSTARTTLS()
		case "AUTH":
			sess.handleAUTH(args)
		default:
			sess.reply(smtp.ReplySyntaxError, smtp.EnhancedCodeInvalidCommand, "Command not recognized")
		}
	}
}

func parseCommand(line string) (verb string, args string) {
	verb, args, _ = strings.Cut(line, " ")
	verb = strings.ToUpper(verb)
	return
}

func (s *session) reply(code smtp.ReplyCode, enhanced smtp.EnhancedCode, msg string) {
	var line string
	if !enhanced.IsZero() {
		line = fmt.Sprintf("%s %s", enhanced, msg)
	} else {
		line = msg
	}
	s.conn.WriteReply(int(code), line)
}

func (s *session) replyMulti(code smtp.ReplyCode, lines ...string) {
	s.conn.WriteReply(int(code), lines...)
}

func (s *session) handleEHLO(args string) {
	if args == "" {
		s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeSyntaxError, "EHLO requires a hostname")
		return
	}

	if s.server.heloHandler != nil {
		if err := s.server.heloHandler.OnHelo(context.Background(), args); err != nil {
			if smtpErr, ok := err.(*smtp.SMTPError); ok {
				s.reply(smtpErr.Code, smtpErr.EnhancedCode, smtpErr.Message)
			} else {
				s.reply(smtp.ReplyLocalError, smtp.EnhancedCodeOtherNetwork, "Internal error")
			}
			return
		}
	}

	s.resetTransaction()
	s.clientHostname = args
	s.esmtp = true
	s.state = stateGreeted

	lines := []string{fmt.Sprintf("%s Hello %s", s.server.hostname, args)}

	lines = append(lines, "PIPELINING", "8BITMIME", "ENHANCEDSTATUSCODES", "DSN", "SMTPUTF8")

	if s.server.tlsConfig != nil && !s.tls {
		lines = append(lines, "STARTTLS")
	}

	if s.server.authHandler != nil && !s.authenticated {
		lines = append(lines, "AUTH PLAIN LOGIN CRAM-MD5 XOAUTH2")
	}

	s.replyMulti(smtp.ReplyOK, lines...)
}

func (s *session) handleHELO(args string) {
	if args == "" {
		s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeSyntaxError, "HELO requires a hostname")
		return
	}

	if s.server.heloHandler != nil {
		if err := s.server.heloHandler.OnHelo(context.Background(), args); err != nil {
			if smtpErr, ok := err.(*smtp.SMTPError); ok {
				s.reply(smtpErr.Code, smtpErr.EnhancedCode, smtpErr.Message)
			} else {
				s.reply(smtp.ReplyLocalError, smtp.EnhancedCodeOtherNetwork, "Internal error")
			}
			return
		}
	}

	s.resetTransaction()
	s.clientHostname = args
	s.esmtp = false
	s.state = stateGreeted

	s.reply(smtp.ReplyOK, smtp.EnhancedCodeOK, fmt.Sprintf("%s Hello %s", s.server.hostname, args))
}

func (s *session) handleMAIL(args string) {
	if s.state < stateGreeted {
		s.reply(smtp.ReplyBadSequence, smtp.EnhancedCodeInvalidCommand, "Send EHLO/HELO first")
		return
	}
	if s.state >= stateMail {
		s.reply(smtp.ReplyBadSequence, smtp.EnhancedCodeInvalidCommand, "MAIL already specified")
		return
	}

	upper := strings.ToUpper(args)
	if !strings.HasPrefix(upper, "FROM:") {
		s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeSyntaxError, "Syntax: MAIL FROM:<address>")
		return
	}

	pathAndParams := args[5:]
	pathStr, _, _ := strings.Cut(pathAndParams, " ")
	pathStr = strings.TrimSpace(pathStr)

	reversePath, err := smtp.ParseReversePath(pathStr)
	if err != nil {
		s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeBadSenderSyntax, "Invalid sender address")
		return
	}

	s.reversePath = reversePath
	s.forwardPaths = nil
	s.state = stateMail

	s.reply(smtp.ReplyOK, smtp.EnhancedCodeOtherAddress, "Originator ok")
}

func (s *session) handleRCPT(args string) {
	if s.state < stateMail {
		s.reply(smtp.ReplyBadSequence, smtp.EnhancedCodeInvalidCommand, "Send MAIL first")
		return
	}

	upper := strings.ToUpper(args)
	if !strings.HasPrefix(upper, "TO:") {
		s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeSyntaxError, "Syntax: RCPT TO:<address>")
		return
	}

	pathAndParams := args[3:]
	pathStr, _, _ := strings.Cut(pathAndParams, " ")
	pathStr = strings.TrimSpace(pathStr)

	forwardPath, err := smtp.ParseForwardPath(pathStr)
	if err != nil {
		s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeBadDestSyntax, "Invalid recipient address")
		return
	}

	if s.server.rcptHandler != nil {
		if err := s.server.rcptHandler.OnRcpt(context.Background(), forwardPath); err != nil {
			if smtpErr, ok := err.(*smtp.SMTPError); ok {
				s.reply(smtpErr.Code, smtpErr.EnhancedCode, smtpErr.Message)
			} else {
				s.reply(smtp.ReplyLocalError, smtp.EnhancedCodeOtherNetwork, "Internal error")
			}
			return
		}
	}

	s.forwardPaths = append(s.forwardPaths, forwardPath)
	if s.state < stateRcpt {
		s.state = stateRcpt
	}

	s.reply(smtp.ReplyOK, smtp.EnhancedCodeDestValid, "Recipient ok")
}

func (s *session) handleDATA() {
	if s.state < stateRcpt {
		s.reply(smtp.ReplyBadSequence, smtp.EnhancedCodeInvalidCommand, "Send RCPT first")
		return
	}

	s.reply(smtp.ReplyStartMailInput, smtp.EnhancedCode{}, "Start mail input; end with <CRLF>.<CRLF>")
	s.state = stateData

	reader := s.conn.DotReader()

	if s.server.dataHandler != nil {
		err := s.server.dataHandler.OnData(context.Background(), s.reversePath, s.forwardPaths, reader)
		if err != nil {
			io.Copy(io.Discard, reader)
			if smtpErr, ok := err.(*smtp.SMTPError); ok {
				s.reply(smtpErr.Code, smtpErr.EnhancedCode, smtpErr.Message)
			} else {
				s.reply(smtp.ReplyLocalError, smtp.EnhancedCodeOtherNetwork, "Internal error")
			}
			s.resetTransaction()
			s.state = stateGreeted
			return
		}
	}

	io.Copy(io.Discard, reader)

	s.reply(smtp.ReplyOK, smtp.EnhancedCodeOK, "Message accepted")
	s.resetTransaction()
	s.state = stateGreeted
}

func (s *session) handleRSET() {
	s.resetTransaction()
	if s.state > stateGreeted {
		s.state = stateGreeted
	}
	s.reply(smtp.ReplyOK, smtp.EnhancedCodeOK, "Reset ok")
}

func (s *session) handleNOOP() {
	s.reply(smtp.ReplyOK, smtp.EnhancedCodeOK, "OK")
}

func (s *session) handleQUIT() {
	s.reply(smtp.ReplyServiceClosing, smtp.EnhancedCodeOK, fmt.Sprintf("%s closing connection", s.server.hostname))
}

// handleAUTH processes the AUTH command, dispatching to the PLAIN, LOGIN,
// CRAM-MD5, and XOAUTH2 exchanges matching the mechanisms connection.Connection
// implements.
func (s *session) handleAUTH(args string) {
	if s.server.authHandler == nil {
		s.reply(smtp.ReplyCommandNotImpl, smtp.EnhancedCodeInvalidCommand, "AUTH not available")
		return
	}
	if s.state < stateGreeted {
		s.reply(smtp.ReplyBadSequence, smtp.EnhancedCodeInvalidCommand, "Send EHLO/HELO first")
		return
	}
	if s.state >= stateMail {
		s.reply(smtp.ReplyBadSequence, smtp.EnhancedCodeInvalidCommand, "AUTH not allowed during mail transaction")
		return
	}
	if s.authenticated {
		s.reply(smtp.ReplyBadSequence, smtp.EnhancedCodeInvalidCommand, "Already authenticated")
		return
	}

	mechanism, initialResp, _ := strings.Cut(args, " ")
	mechanism = strings.ToUpper(mechanism)

	switch mechanism {
	case "PLAIN":
		s.authPLAIN(initialResp)
	case "LOGIN":
		s.authLOGIN()
	case "CRAM-MD5":
		s.authCRAMMD5()
	case "XOAUTH2":
		s.authXOAUTH2(initialResp)
	default:
		s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeInvalidParams, "Unrecognized authentication mechanism")
	}
}

func (s *session) authPLAIN(initialResp string) {
	var decoded []byte
	var err error

	if initialResp != "" && initialResp != "=" {
		decoded, err = base64Decode(initialResp)
		if err != nil {
			s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeSyntaxError, "Invalid base64")
			return
		}
	} else {
		s.reply(smtp.ReplyAuthContinue, smtp.EnhancedCode{}, "")
		line, readErr := s.conn.ReadLine(textproto.MaxCommandLineLen)
		if readErr != nil {
			return
		}
		if line == "*" {
			s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeInvalidCommand, "Authentication cancelled")
			return
		}
		decoded, err = base64Decode(line)
		if err != nil {
			s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeSyntaxError, "Invalid base64")
			return
		}
	}

	parts := splitNull(decoded)
	if len(parts) != 3 {
		s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeSyntaxError, "Invalid PLAIN data")
		return
	}
	username := parts[1]
	password := parts[2]

	if err := s.server.authHandler.Authenticate(context.Background(), "PLAIN", username, password); err != nil {
		if smtpErr, ok := err.(*smtp.SMTPError); ok {
			s.reply(smtpErr.Code, smtpErr.EnhancedCode, smtpErr.Message)
		} else {
			s.reply(smtp.ReplyAuthFailed, smtp.EnhancedCodeAuthCredentials, "Authentication failed")
		}
		return
	}
	s.authenticated = true
	s.reply(smtp.ReplyAuthOK, smtp.EnhancedCodeOK, "Authentication successful")
}

func (s *session) authLOGIN() {
	s.reply(smtp.ReplyAuthContinue, smtp.EnhancedCode{}, base64Encode([]byte("Username:")))
	userLine, err := s.conn.ReadLine(textproto.MaxCommandLineLen)
	if err != nil {
		return
	}
	if userLine == "*" {
		s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeInvalidCommand, "Authentication cancelled")
		return
	}
	userBytes, err := base64Decode(userLine)
	if err != nil {
		s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeSyntaxError, "Invalid base64")
		return
	}

	s.reply(smtp.ReplyAuthContinue, smtp.EnhancedCode{}, base64Encode([]byte("Password:")))
	passLine, err := s.conn.ReadLine(textproto.MaxCommandLineLen)
	if err != nil {
		return
	}
	if passLine == "*" {
		s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeInvalidCommand, "Authentication cancelled")
		return
	}
	passBytes, err := base64Decode(passLine)
	if err != nil {
		s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeSyntaxError, "Invalid base64")
		return
	}

	if err := s.server.authHandler.Authenticate(context.Background(), "LOGIN", string(userBytes), string(passBytes)); err != nil {
		if smtpErr, ok := err.(*smtp.SMTPError); ok {
			s.reply(smtpErr.Code, smtpErr.EnhancedCode, smtpErr.Message)
		} else {
			s.reply(smtp.ReplyAuthFailed, smtp.EnhancedCodeAuthCredentials, "Authentication failed")
		}
		return
	}
	s.authenticated = true
	s.reply(smtp.ReplyAuthOK, smtp.EnhancedCodeOK, "Authentication successful")
}

func (s *session) authCRAMMD5() {
	challenge := fmt.Sprintf("<%d.%d@%s>", time.Now().UnixNano(), time.Now().Unix(), s.server.hostname)
	s.reply(smtp.ReplyAuthContinue, smtp.EnhancedCode{}, base64Encode([]byte(challenge)))

	line, err := s.conn.ReadLine(textproto.MaxCommandLineLen)
	if err != nil {
		return
	}
	if line == "*" {
		s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeInvalidCommand, "Authentication cancelled")
		return
	}

	decoded, err := base64Decode(line)
	if err != nil {
		s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeSyntaxError, "Invalid base64")
		return
	}

	resp := string(decoded)
	spaceIdx := strings.LastIndex(resp, " ")
	if spaceIdx < 0 {
		s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeSyntaxError, "Invalid CRAM-MD5 response")
		return
	}
	username := resp[:spaceIdx]
	digest := resp[spaceIdx+1:]
	password := challenge + ":" + digest

	if err := s.server.authHandler.Authenticate(context.Background(), "CRAM-MD5", username, password); err != nil {
		if smtpErr, ok := err.(*smtp.SMTPError); ok {
			s.reply(smtpErr.Code, smtpErr.EnhancedCode, smtpErr.Message)
		} else {
			s.reply(smtp.ReplyAuthFailed, smtp.EnhancedCodeAuthCredentials, "Authentication failed")
		}
		return
	}
	s.authenticated = true
	s.reply(smtp.ReplyAuthOK, smtp.EnhancedCodeOK, "Authentication successful")
}

// authXOAUTH2 decodes the "user=<id>\x01auth=Bearer <token>\x01\x01" wire
// format connection.Connection's XOAUTH2 mechanism sends as its initial
// response (RFC: draft-ietf-kitten-sasl-oauth).
func (s *session) authXOAUTH2(initialResp string) {
	if initialResp == "" {
		s.reply(smtp.ReplyAuthContinue, smtp.EnhancedCode{}, "")
		line, err := s.conn.ReadLine(textproto.MaxCommandLineLen)
		if err != nil {
			return
		}
		initialResp = line
	}

	decoded, err := base64Decode(initialResp)
	if err != nil {
		s.reply(smtp.ReplySyntaxParamError, smtp.EnhancedCodeSyntaxError, "Invalid base64")
		return
	}

	var username, token string
	for _, field := range strings.Split(string(decoded), "\x01") {
		switch {
		case strings.HasPrefix(field, "user="):
			username = strings.TrimPrefix(field, "user=")
		case strings.HasPrefix(field, "auth=Bearer "):
			token = strings.TrimPrefix(field, "auth=Bearer ")
		}
	}

	if err := s.server.authHandler.Authenticate(context.Background(), "XOAUTH2", username, token); err != nil {
		// RFC draft-ietf-kitten-sasl-oauth-17 §3.2.2: reply with a 334
		// continuation carrying a JSON error payload, then require an
		// empty response before the final failure reply.
		s.reply(smtp.ReplyAuthContinue, smtp.EnhancedCode{}, base64Encode([]byte(`{"status":"401","schemes":"bearer"}`)))
		s.conn.ReadLine(textproto.MaxCommandLineLen)
		if smtpErr, ok := err.(*smtp.SMTPError); ok {
			s.reply(smtpErr.Code, smtpErr.EnhancedCode, smtpErr.Message)
		} else {
			s.reply(smtp.ReplyAuthFailed, smtp.EnhancedCodeAuthCredentials, "Authentication failed")
		}
		return
	}
	s.authenticated = true
	s.reply(smtp.ReplyAuthOK, smtp.EnhancedCodeOK, "Authentication successful")
}

func splitNull(data []byte) []string {
	var parts []string
	start := 0
	for i, b := range data {
		if b == 0 {
			parts = append(parts, string(data[start:i]))
			start = i + 1
		}
	}
	parts = append(parts, string(data[start:]))
	return parts
}

func base64Encode(data []byte) string       { return base64Encoding.EncodeToString(data) }
func base64Decode(s string) ([]byte, error) { return base64Encoding.DecodeString(s) }

func (s *session) handleSTARTTLS() bool {
	if s.server.tlsConfig == nil {
		s.reply(smtp.ReplyCommandNotImpl, smtp.EnhancedCodeInvalidCommand, "STARTTLS not available")
		return false
	}
	if s.tls {
		s.reply(smtp.ReplyBadSequence, smtp.EnhancedCodeInvalidCommand, "Already running TLS")
		return false
	}

	s.reply(smtp.ReplyServiceReady, smtp.EnhancedCode{}, "Ready to start TLS")

	tlsConn := tls.Server(s.conn.NetConn(), s.server.tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		s.server.logger.Error("TLS handshake failed", "err", err)
		return false
	}

	s.conn.ReplaceConn(tlsConn)
	s.tls = true

	s.resetTransaction()
	s.state = stateNew
	s.clientHostname = ""
	s.esmtp = false

	return true
}

func (s *session) resetTransaction() {
	s.reversePath = smtp.ReversePath{}
	s.forwardPaths = nil
}
