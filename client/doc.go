// Package client implements a queued, retrying SMTP submission client
// built on package connection.
//
// # Quick Start
//
// Construct a [Client] with [New], then call [Client.Send] or
// [Client.SendAsync] with a [*mime.Message]:
//
//	c, err := client.New(client.Options{Options: connection.Options{Host: "mail.example.com"}})
//	if err != nil { ... }
//	defer c.Close()
//	msg, err := c.SendAsync(ctx, m)
//
// # Queueing
//
// Send calls enqueue; one background goroutine drives the underlying
// Connection and processes jobs strictly in the order they were sent.
// [Client.Ready] and [Client.Sending] expose the queue's observable state
// for tests.
//
// # Greylisting
//
// A RCPT TO rejected with a transient 450 is retried exactly once after
// [Options.Backoff]. A second 450 surfaces as the send's error.
package client
