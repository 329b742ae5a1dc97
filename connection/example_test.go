package connection_test

import (
	"context"
	"fmt"
	"time"

	"github.com/trasherdk/emailjs/connection"
)

func Example() {
	ctx := context.Background()
	c := connection.New(connection.Options{
		Host:    "mail.example.com",
		Port:    587,
		TLS:     true,
		Timeout: 30 * time.Second,
	})
	defer c.Close(false)

	if err := c.Connect(ctx); err != nil {
		fmt.Println("connect error:", err)
		return
	}

	if err := c.Mail(ctx, "sender@example.com"); err != nil {
		fmt.Println("mail error:", err)
		return
	}
	if err := c.Rcpt(ctx, "recipient@example.com"); err != nil {
		fmt.Println("rcpt error:", err)
		return
	}

	fmt.Println("ready to send DATA")
}

func ExampleConnection_Connect_auth() {
	ctx := context.Background()
	c := connection.New(connection.Options{
		Host:     "mail.example.com",
		Port:     587,
		TLS:      true,
		User:     "user@example.com",
		Password: "password",
	})
	defer c.Close(false)

	if err := c.Connect(ctx); err != nil {
		fmt.Println("connect error:", err)
		return
	}
	fmt.Println("state:", c.State())
}

func ExampleConnection_Connect_xoauth2() {
	ctx := context.Background()
	c := connection.New(connection.Options{
		Host:       "mail.example.com",
		Port:       587,
		TLS:        true,
		User:       "user@example.com",
		OAuthToken: "ya29.bearer-token",
	})
	defer c.Close(false)

	if err := c.Connect(ctx); err != nil {
		fmt.Println("connect error:", err)
		return
	}
	fmt.Println("state:", c.State())
}
