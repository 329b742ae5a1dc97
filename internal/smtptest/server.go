package smtptest

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Server is a throwaway SMTP server that dispatches to handler interfaces,
// used to drive connection.Connection and client.Client against a real
// socket in tests instead of a mock transport.
type Server struct {
	addr         string
	hostname     string
	readTimeout  time.Duration
	writeTimeout time.Duration
	tlsConfig    *tls.Config
	logger       *slog.Logger

	heloHandler HeloHandler
	rcptHandler RcptHandler
	dataHandler DataHandler
	authHandler AuthHandler

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// NewServer creates a fixture SMTP server with the given options.
func NewServer(opts ...Option) *Server {
	s := &Server{
		addr:         "127.0.0.1:0",
		hostname:     "localhost",
		readTimeout:  5 * time.Minute,
		writeTimeout: 5 * time.Minute,
		logger:       slog.Default(),
		quit:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithAddr(addr string) Option             { return func(s *Server) { s.addr = addr } }
func WithHostname(hostname string) Option     { return func(s *Server) { s.hostname = hostname } }
func WithReadTimeout(d time.Duration) Option  { return func(s *Server) { s.readTimeout = d } }
func WithWriteTimeout(d time.Duration) Option { return func(s *Server) { s.writeTimeout = d } }
func WithTLSConfig(c *tls.Config) Option      { return func(s *Server) { s.tlsConfig = c } }
func WithLogger(l *slog.Logger) Option        { return func(s *Server) { s.logger = l } }
func WithHeloHandler(h HeloHandler) Option    { return func(s *Server) { s.heloHandler = h } }
func WithRcptHandler(h RcptHandler) Option    { return func(s *Server) { s.rcptHandler = h } }
func WithDataHandler(h DataHandler) Option    { return func(s *Server) { s.dataHandler = h } }

// WithAuthHandler sets the handler for SMTP AUTH. When set, the server
// advertises AUTH with PLAIN, LOGIN, CRAM-MD5, and XOAUTH2. For XOAUTH2,
// authXOAUTH2 decodes the client's wire format and passes the bearer token
// to AuthHandler.Authenticate as the password argument.
func WithAuthHandler(h AuthHandler) Option { return func(s *Server) { s.authHandler = h } }

// ListenAndServe starts listening on the configured address and blocks
// serving connections until Shutdown or Close is called.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and dispatches them to handlers.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				s.logger.Error("accept error", "err", err)
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Addr returns the listener's address, or nil if not listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting new connections and waits for active sessions
// to finish, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.quit)

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close immediately closes the listener.
func (s *Server) Close() error {
	close(s.quit)
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		return ln.Close()
	}
	return nil
}
