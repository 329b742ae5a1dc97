package client

import "fmt"

// InvalidMessageError wraps a Message validation failure (spec.md §7
// "InvalidMessage"). It is fatal to that send only; the connection is
// untouched.
type InvalidMessageError struct {
	Err error
}

func (e *InvalidMessageError) Error() string { return fmt.Sprintf("smtp: invalid message: %v", e.Err) }
func (e *InvalidMessageError) Unwrap() error { return e.Err }

// ConfigurationError reports constructor-time misuse, such as supplying
// Password without User (spec.md §7 "Configuration").
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "smtp: configuration: " + e.Msg }
