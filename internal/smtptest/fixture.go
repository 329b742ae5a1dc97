package smtptest

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/trasherdk/emailjs"
)

// Start brings up a fixture server on a loopback port and returns its
// address and a cleanup func that shuts it down. Defaults mirror a real
// submission server closely enough to exercise connection.Connection and
// client.Client end to end.
func Start(opts ...Option) (addr string, cleanup func(), err error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}

	defaults := []Option{
		WithHostname("test.example.com"),
		WithReadTimeout(5 * time.Second),
		WithWriteTimeout(5 * time.Second),
	}
	srv := NewServer(append(defaults, opts...)...)

	go srv.Serve(ln)

	cleanup = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}

	return ln.Addr().String(), cleanup, nil
}

// DeliveredMessage is one message accepted by CollectingDataHandler.
type DeliveredMessage struct {
	From smtp.ReversePath
	To   []smtp.ForwardPath
	Body string
}

// CollectingDataHandler implements DataHandler, recording every delivered
// message for assertions instead of actually relaying it anywhere.
type CollectingDataHandler struct {
	mu       sync.Mutex
	messages []DeliveredMessage
}

func (h *CollectingDataHandler) OnData(_ context.Context, from smtp.ReversePath, to []smtp.ForwardPath, r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.messages = append(h.messages, DeliveredMessage{From: from, To: to, Body: string(body)})
	h.mu.Unlock()
	return nil
}

// Messages returns every message delivered so far, oldest first.
func (h *CollectingDataHandler) Messages() []DeliveredMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]DeliveredMessage, len(h.messages))
	copy(out, h.messages)
	return out
}

// Last returns the most recently delivered message, or the zero value if
// none have arrived yet.
func (h *CollectingDataHandler) Last() DeliveredMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.messages) == 0 {
		return DeliveredMessage{}
	}
	return h.messages[len(h.messages)-1]
}

// GreylistRcptHandler implements RcptHandler, rejecting the first RCPT TO
// for each recipient with a 450 "mailbox busy" reply and accepting every
// attempt after that — simulating a greylisting mail server for the
// client package's one-shot-retry tests. Set AlwaysFail to keep rejecting
// every attempt, for tests that expect the retry to also fail.
type GreylistRcptHandler struct {
	AlwaysFail bool

	mu       sync.Mutex
	attempts map[string]int
}

func (h *GreylistRcptHandler) OnRcpt(_ context.Context, to smtp.ForwardPath) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.attempts == nil {
		h.attempts = make(map[string]int)
	}
	addr := to.Mailbox.String()
	h.attempts[addr]++
	if h.AlwaysFail || h.attempts[addr] == 1 {
		return &smtp.SMTPError{
			Code:         smtp.ReplyMailboxBusy,
			EnhancedCode: smtp.EnhancedCodeTempCongestion,
			Message:      "greylist",
		}
	}
	return nil
}

// Attempts reports how many RCPT TO attempts a recipient has made so far.
func (h *GreylistRcptHandler) Attempts(addr string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts[addr]
}

// GenerateCert creates a self-signed ECDSA TLS certificate for STARTTLS
// and implicit-TLS fixtures, valid for "test.example.com", "localhost",
// and 127.0.0.1.
func GenerateCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test.example.com"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"test.example.com", "localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{
		Certificate: [][]byte{certBytes},
		PrivateKey:  key,
	}, nil
}
