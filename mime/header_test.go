package mime

import (
	"reflect"
	"testing"

	"github.com/trasherdk/emailjs"
)

func TestHeader_SetAndText(t *testing.T) {
	h := NewHeader()
	h.Set("Subject", "hello world")
	if got := h.Text("subject"); got != "hello world" {
		t.Errorf("Text() = %q, want %q", got, "hello world")
	}
	if !h.Has("SUBJECT") {
		t.Error("Has() should be case-insensitive")
	}
}

func TestHeader_AddressList(t *testing.T) {
	h := NewHeader()
	h.AddAddressList("to", "a@example.com, B <b@example.com>")
	want := []smtp.Address{{Addr: "a@example.com"}, {Name: "B", Addr: "b@example.com"}}
	if got := h.Addresses("to"); !reflect.DeepEqual(got, want) {
		t.Errorf("Addresses() = %+v, want %+v", got, want)
	}
}

func TestHeader_KeysPreservesInsertionOrder(t *testing.T) {
	h := NewHeader()
	h.Set("X-Second", "2")
	h.Set("X-First", "1")
	want := []string{"X-Second", "X-First"}
	if got := h.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestHeader_ListTextJoinsWithComma(t *testing.T) {
	h := NewHeader()
	h.SetList("x-tags", []string{"a", "b", "c"})
	if got := h.Text("x-tags"); got != "a, b, c" {
		t.Errorf("Text() = %q, want %q", got, "a, b, c")
	}
}

func TestHeader_MissingNameReturnsZeroValue(t *testing.T) {
	h := NewHeader()
	if h.Has("missing") {
		t.Error("Has() should report false for an unset header")
	}
	if got := h.Text("missing"); got != "" {
		t.Errorf("Text() = %q, want empty", got)
	}
	if got := h.Addresses("missing"); got != nil {
		t.Errorf("Addresses() = %v, want nil", got)
	}
}
