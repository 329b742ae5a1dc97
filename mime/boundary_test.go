package mime

import (
	"strings"
	"testing"
	"time"
)

func TestNewBoundary_Unique(t *testing.T) {
	a := newBoundary(defaultRand)
	b := newBoundary(defaultRand)
	if a == b {
		t.Errorf("expected distinct boundaries, got %q twice", a)
	}
	if !strings.HasPrefix(a, "----=_Boundary_") {
		t.Errorf("newBoundary() = %q, missing expected prefix", a)
	}
}

func TestNewMessageID_Format(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	id := newMessageID(now, fixedRand)
	if !strings.HasPrefix(id, "<") || !strings.HasSuffix(id, ">") {
		t.Errorf("newMessageID() = %q, want bracketed id", id)
	}
	if !strings.Contains(id, "@") {
		t.Errorf("newMessageID() = %q, want hostname suffix", id)
	}
}

func TestNormalizeMessageID(t *testing.T) {
	cases := map[string]string{
		"abc@example.com":   "<abc@example.com>",
		"<abc@example.com>":  "<abc@example.com>",
		"abc@example.com>":  "<abc@example.com>",
		"<abc@example.com":   "<abc@example.com>",
		"":                   "",
	}
	for in, want := range cases {
		if got := normalizeMessageID(in); got != want {
			t.Errorf("normalizeMessageID(%q) = %q, want %q", in, got, want)
		}
	}
}
