package client

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/trasherdk/emailjs/connection"
	"github.com/trasherdk/emailjs/internal/smtptest"
	"github.com/trasherdk/emailjs/mime"
)

func newMessage(from, to, text string) *mime.Message {
	m := mime.NewMessage()
	m.Header.AddAddressList("from", from)
	m.Header.AddAddressList("to", to)
	m.Text = text
	return m
}

func addrOpts(t *testing.T, addr string) connection.Options {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi: %v", err)
	}
	return connection.Options{Host: host, Port: port}
}

// scenario 1: basic send success.
func TestSend_Success(t *testing.T) {
	data := &smtptest.CollectingDataHandler{}
	addr, cleanup, err := smtptest.Start(smtptest.WithDataHandler(data))
	if err != nil {
		t.Fatalf("smtptest.Start: %v", err)
	}
	defer cleanup()

	c, err := New(Options{Options: addrOpts(t, addr)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	msg := newMessage("a@x", "b@x", "hi")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := c.SendAsync(ctx, msg)
	if err != nil {
		t.Fatalf("SendAsync: %v", err)
	}
	if got != msg {
		t.Error("callback received a different message pointer than sent")
	}

	body := data.Last().Body
	if !strings.Contains(body, "hi") {
		t.Errorf("body = %q, want it to contain %q", body, "hi")
	}
}

// scenario 2: invalid host, callback fires exactly once.
func TestSend_InvalidHostDoesNotDoubleInvokeCallback(t *testing.T) {
	c, err := New(Options{Options: connection.Options{
		Host:    "bar.baz.invalid",
		Port:    25,
		Timeout: 200 * time.Millisecond,
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	msg := newMessage("a@x", "b@x", "hi")

	var calls int
	done := make(chan struct{})
	c.Send(msg, func(_ *mime.Message, err error) {
		calls++
		if err == nil {
			t.Error("expected an error for an invalid host")
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for callback")
	}

	// Give any spurious late error a chance to misfire before asserting.
	time.Sleep(50 * time.Millisecond)
	if calls != 1 {
		t.Errorf("callback invoked %d times, want 1", calls)
	}
}

// scenario 3: recipient dedup across to/cc/bcc.
func TestCreateMessageStack_DedupesRecipients(t *testing.T) {
	c, err := New(Options{Options: connection.Options{Host: "localhost"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	m := mime.NewMessage()
	m.Header.AddAddressList("from", "a@x")
	m.Header.AddAddressList("to", "b@x")
	m.Header.AddAddressList("cc", "b@x")
	m.Header.AddAddressList("bcc", "b@x")

	stack, err := c.CreateMessageStack(m)
	if err != nil {
		t.Fatalf("CreateMessageStack: %v", err)
	}
	if len(stack.To) != 1 || stack.To[0].Addr != "b@x" {
		t.Errorf("To = %v, want exactly one b@x", stack.To)
	}
}

// scenario 4: greylist succeeds on retry.
func TestSend_GreylistSucceedsOnRetry(t *testing.T) {
	rcpt := &smtptest.GreylistRcptHandler{}
	data := &smtptest.CollectingDataHandler{}
	addr, cleanup, err := smtptest.Start(
		smtptest.WithRcptHandler(rcpt),
		smtptest.WithDataHandler(data),
	)
	if err != nil {
		t.Fatalf("smtptest.Start: %v", err)
	}
	defer cleanup()

	c, err := New(Options{
		Options: addrOpts(t, addr),
		Backoff: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	msg := newMessage("a@x", "slow@x", "hi")

	var calls int
	done := make(chan error, 1)
	c.Send(msg, func(_ *mime.Message, err error) {
		calls++
		done <- err
	})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("send error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for send")
	}

	if calls != 1 {
		t.Errorf("callback invoked %d times, want 1", calls)
	}
}

// scenario 5: greylist double-fail surfaces the server's message.
func TestSend_GreylistDoubleFail(t *testing.T) {
	rcpt := &smtptest.GreylistRcptHandler{AlwaysFail: true}
	addr, cleanup, err := smtptest.Start(smtptest.WithRcptHandler(rcpt))
	if err != nil {
		t.Fatalf("smtptest.Start: %v", err)
	}
	defer cleanup()

	c, err := New(Options{
		Options: addrOpts(t, addr),
		Backoff: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	msg := newMessage("a@x", "slow@x", "hi")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = c.SendAsync(ctx, msg)
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Error() != "bad response on command 'RCPT': greylist" {
		t.Errorf("err = %q, want %q", err.Error(), "bad response on command 'RCPT': greylist")
	}
}

// scenario 6: stream and path attachments round-trip byte-for-byte.
func TestSend_StreamAndPathAttachmentsRoundTrip(t *testing.T) {
	data := &smtptest.CollectingDataHandler{}
	addr, cleanup, err := smtptest.Start(smtptest.WithDataHandler(data))
	if err != nil {
		t.Fatalf("smtptest.Start: %v", err)
	}
	defer cleanup()

	c, err := New(Options{Options: addrOpts(t, addr)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	path := writeTempFile(t, "path attachment content")

	msg := newMessage("a@x", "b@x", "hi")
	msg.Attach(&mime.Attachment{Stream: strings.NewReader("stream attachment content"), Name: "stream.txt"})
	msg.Attach(&mime.Attachment{Path: path, Name: "path.txt"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.SendAsync(ctx, msg); err != nil {
		t.Fatalf("SendAsync: %v", err)
	}

	body := data.Last().Body
	if !strings.Contains(body, "stream.txt") || !strings.Contains(body, "path.txt") {
		t.Errorf("body missing attachment headers: %q", body)
	}
	for _, content := range []string{"stream attachment content", "path attachment content"} {
		if enc := base64.StdEncoding.EncodeToString([]byte(content)); !strings.Contains(body, enc) {
			t.Errorf("body missing base64 of %q (%s): %q", content, enc, body)
		}
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "path.txt")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// scenario 7: implicit TLS connect, then state() returns 0 after close.
func TestSend_ImplicitTLS(t *testing.T) {
	cert, err := smtptest.GenerateCert()
	if err != nil {
		t.Fatalf("GenerateCert: %v", err)
	}
	serverTLS := &tls.Config{Certificates: []tls.Certificate{cert}}

	addr, cleanup, err := smtptest.Start(smtptest.WithTLSConfig(serverTLS))
	if err != nil {
		t.Fatalf("smtptest.Start: %v", err)
	}
	defer cleanup()

	opts := addrOpts(t, addr)
	opts.SSL = true
	opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}

	c, err := New(Options{Options: opts})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Force a connect by sending, since New never dials eagerly.
	msg := newMessage("a@x", "b@x", "hi")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.SendAsync(ctx, msg); err != nil {
		t.Fatalf("SendAsync: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.State() != connection.StateNotConnected {
		t.Errorf("State() = %v, want 0 (NOT_CONNECTED)", c.State())
	}
}

func TestNew_RejectsPasswordWithoutUser(t *testing.T) {
	_, err := New(Options{Options: connection.Options{Password: "secret"}})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("New error = %v, want *ConfigurationError", err)
	}
}
