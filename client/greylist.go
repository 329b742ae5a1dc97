package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trasherdk/emailjs"
)

// rcptWithGreylistRetry sends RCPT TO for addr, and if the server responds
// with a transient 450 retries exactly once after Options.Backoff
// (spec.md §4.5 "Greylist retry"). A second 450 surfaces as a
// ProtocolReply error formatted to match the server's own error-reporting
// convention.
func (c *Client) rcptWithGreylistRetry(ctx context.Context, addr string) error {
	err := c.conn.Rcpt(ctx, addr)
	if err == nil {
		return nil
	}

	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) || smtpErr.Code != smtp.ReplyMailboxBusy {
		return err
	}

	select {
	case <-time.After(c.opts.Backoff):
	case <-ctx.Done():
		return ctx.Err()
	}

	err = c.conn.Rcpt(ctx, addr)
	if err == nil {
		return nil
	}

	var retryErr *smtp.SMTPError
	if errors.As(err, &retryErr) {
		return fmt.Errorf("bad response on command 'RCPT': %s", retryErr.Message)
	}
	return err
}
