package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/trasherdk/emailjs/connection"
	"github.com/trasherdk/emailjs/mime"
)

// Client is a queued SMTP submission client: sends are enqueued in order
// and driven one at a time by a single background goroutine against one
// underlying [connection.Connection] (spec.md §5 "Scheduling model").
// A Client is not safe for concurrent Send calls from multiple goroutines
// racing to observe Ready/Sending consistently with a specific send — the
// queue itself is safe, but callers wanting strict per-call visibility
// should serialize from their side too.
type Client struct {
	opts Options
	conn *connection.Connection

	queue  *queue
	closed chan struct{}

	mu      sync.Mutex
	sending bool
}

// New constructs a Client and starts its event-loop goroutine. It fails
// immediately, without dialing, if Password is set without User
// (spec.md §4.5 "Constructor requirement").
func New(opts Options) (*Client, error) {
	if opts.Password != "" && opts.User == "" {
		return nil, &ConfigurationError{Msg: "Password set without User"}
	}
	opts = opts.withDefaults()

	c := &Client{
		opts:   opts,
		conn:   connection.New(opts.Options),
		queue:  newQueue(),
		closed: make(chan struct{}),
	}
	go c.run()
	return c, nil
}

// CreateMessageStack builds msg's MessageStack without enqueuing or
// sending anything (spec.md §4.5 "createMessageStack", a pure operation).
func (c *Client) CreateMessageStack(msg *mime.Message) (*mime.MessageStack, error) {
	stack, err := mime.NewMessageStack(msg)
	if err != nil {
		return nil, &InvalidMessageError{Err: err}
	}
	return stack, nil
}

// Send enqueues msg. cb is invoked exactly once, after the send completes
// or fails fatally; a synchronous panic anywhere in the send path,
// including inside cb itself, is recovered and still resolves the
// callback, never skipping the job's position or losing the queue
// (spec.md §4.5, §5 "Queue invariant").
func (c *Client) Send(msg *mime.Message, cb func(*mime.Message, error)) {
	c.queue.push(&job{msg: msg, cb: cb})
}

// SendAsync is a promise-shaped wrapper over Send.
func (c *Client) SendAsync(ctx context.Context, msg *mime.Message) (*mime.Message, error) {
	type result struct {
		msg *mime.Message
		err error
	}
	done := make(chan result, 1)
	c.Send(msg, func(m *mime.Message, err error) {
		done <- result{m, err}
	})
	select {
	case r := <-done:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ready reports whether the underlying Connection is AUTHORIZED and ready
// to drive a send without first dialing (spec.md §6 "Public observable
// properties").
func (c *Client) Ready() bool {
	return c.conn.State() == connection.StateAuthorized
}

// Sending reports whether a job is currently driving the connection.
func (c *Client) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// State returns the underlying Connection's protocol state.
func (c *Client) State() connection.State {
	return c.conn.State()
}

// Close stops the event loop, closes the connection, and fails every
// queued job with a close error — never silently dropping one (spec.md
// §5 "Cancellation").
func (c *Client) Close() error {
	select {
	case <-c.closed:
		return nil
	default:
		close(c.closed)
	}

	err := c.conn.Close(true)

	closeErr := fmt.Errorf("smtp: client closed")
	pending := c.queue.drain()
	if len(pending) > 0 {
		c.opts.Logger.Warn("smtp: draining queued jobs on close", slog.Int("count", len(pending)))
	}
	for _, j := range pending {
		j.finish(nil, closeErr)
	}

	return err
}

func (c *Client) setSending(v bool) {
	c.mu.Lock()
	c.sending = v
	c.mu.Unlock()
}

// run is the Client's single event-loop goroutine: it blocks until a job
// is queued, then drains the queue strictly in FIFO order before going
// idle again (spec.md §5 "Ordering guarantees").
func (c *Client) run() {
	for {
		select {
		case <-c.closed:
			return
		case <-c.queue.notify:
		}

		for {
			select {
			case <-c.closed:
				return
			default:
			}

			j := c.queue.pop()
			if j == nil {
				break
			}
			c.setSending(true)
			c.processJob(j)
			c.setSending(false)
		}
	}
}

// processJob runs one send to completion and invokes j's callback exactly
// once. A panic anywhere in the send path — including inside the callback
// itself — is recovered here and turned into a j.finish call, so the event
// loop never dies and the callback is never simply skipped (spec.md §5
// "Synchronous throws must not bypass the callback"). j.finish's sync.Once
// makes the recover's own finish call a no-op when the callback already
// ran before panicking.
func (c *Client) processJob(j *job) {
	defer func() {
		if r := recover(); r != nil {
			c.opts.Logger.Warn("smtp: recovered panic processing send job", slog.Any("panic", r))
			j.finish(nil, fmt.Errorf("smtp: panic: %v", r))
		}
	}()

	stack, err := c.CreateMessageStack(j.msg)
	if err != nil {
		j.finish(nil, err)
		return
	}

	ctx := context.Background()
	if err := c.ensureAuthorized(ctx); err != nil {
		j.finish(nil, err)
		return
	}

	if err := c.sendStack(ctx, stack); err != nil {
		j.finish(nil, err)
		return
	}

	j.finish(j.msg, nil)
}

// ensureAuthorized dials and authenticates if the Connection is not
// already AUTHORIZED (spec.md §4.5 "ensure Connection in AUTHORIZED").
func (c *Client) ensureAuthorized(ctx context.Context) error {
	if c.conn.State() == connection.StateAuthorized {
		return nil
	}
	return c.conn.Connect(ctx)
}

// sendStack drives one MAIL/RCPT/DATA sequence for stack (spec.md §4.5
// "Per-send sequence" steps c–g).
func (c *Client) sendStack(ctx context.Context, stack *mime.MessageStack) error {
	if err := c.conn.Mail(ctx, stack.ReturnPath); err != nil {
		return err
	}

	for _, to := range stack.To {
		if err := c.rcptWithGreylistRetry(ctx, to.Addr); err != nil {
			return err
		}
	}

	enc := mime.NewEncoder(stack, mime.WithNow(c.opts.NowFunc()), mime.WithRand(c.opts.RandFunc))
	return c.conn.Data(ctx, enc)
}
