package connection

import (
	"net"
	"testing"
)

func TestOptions_WithDefaults_Port(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		want int
	}{
		{"plain", Options{}, 25},
		{"ssl", Options{SSL: true}, 465},
		{"starttls", Options{TLS: true}, 587},
		{"explicit", Options{Port: 2525}, 2525},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.opts.withDefaults()
			if got.Port != tc.want {
				t.Errorf("Port = %d, want %d", got.Port, tc.want)
			}
		})
	}
}

func TestOptions_WithDefaults_Host(t *testing.T) {
	got := Options{}.withDefaults()
	if got.Host != "localhost" {
		t.Errorf("Host = %q, want %q", got.Host, "localhost")
	}
}

func TestOptions_WithDefaults_Timeout(t *testing.T) {
	got := Options{}.withDefaults()
	if got.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", got.Timeout, DefaultTimeout)
	}
}

func TestOptions_WithDefaults_PreservesExplicitValues(t *testing.T) {
	dialer := &net.Dialer{}
	got := Options{Host: "mail.example.com", Dialer: dialer}.withDefaults()
	if got.Host != "mail.example.com" {
		t.Errorf("Host = %q", got.Host)
	}
	if got.Dialer != dialer {
		t.Error("Dialer should not be replaced when explicitly set")
	}
}

func TestOptions_WithDefaults_RandFuncProducesRequestedLength(t *testing.T) {
	got := Options{}.withDefaults()
	b := got.RandFunc(16)
	if len(b) != 16 {
		t.Errorf("RandFunc(16) returned %d bytes", len(b))
	}
}
