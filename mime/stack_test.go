package mime

import "testing"

func TestNewMessageStack_DedupesAcrossToCcBcc(t *testing.T) {
	m := NewMessage()
	m.Header.AddAddressList("from", "sender@example.com")
	m.Header.AddAddressList("to", "a@example.com, A2@Example.com")
	m.Header.AddAddressList("cc", "a@example.com, b@example.com")
	m.Header.AddAddressList("bcc", "c@example.com")

	stack, err := NewMessageStack(m)
	if err != nil {
		t.Fatalf("NewMessageStack: %v", err)
	}

	var got []string
	for _, a := range stack.To {
		got = append(got, a.Addr)
	}
	want := []string{"a@example.com", "b@example.com", "c@example.com"}
	if len(got) != len(want) {
		t.Fatalf("To = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("To[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewMessageStack_ReturnPathDefaultsToFrom(t *testing.T) {
	m := NewMessage()
	m.Header.AddAddressList("from", "sender@example.com")
	m.Header.AddAddressList("to", "a@example.com")

	stack, err := NewMessageStack(m)
	if err != nil {
		t.Fatalf("NewMessageStack: %v", err)
	}
	if stack.ReturnPath != "sender@example.com" {
		t.Errorf("ReturnPath = %q, want sender@example.com", stack.ReturnPath)
	}
}

func TestNewMessageStack_ReturnPathHeaderOverride(t *testing.T) {
	m := NewMessage()
	m.Header.AddAddressList("from", "sender@example.com")
	m.Header.AddAddressList("to", "a@example.com")
	m.Header.Set("return-path", "bounce@example.com")

	stack, err := NewMessageStack(m)
	if err != nil {
		t.Fatalf("NewMessageStack: %v", err)
	}
	if stack.ReturnPath != "bounce@example.com" {
		t.Errorf("ReturnPath = %q, want bounce@example.com", stack.ReturnPath)
	}
}

func TestNewMessageStack_InvalidMessage(t *testing.T) {
	m := NewMessage()
	if _, err := NewMessageStack(m); err != ErrMissingFrom {
		t.Errorf("NewMessageStack() err = %v, want ErrMissingFrom", err)
	}
}

func TestNewMessageStack_DoesNotMutateMessage(t *testing.T) {
	m := NewMessage()
	m.Header.AddAddressList("from", "sender@example.com")
	m.Header.AddAddressList("to", "a@example.com")
	before := m.Header.Text("to")

	if _, err := NewMessageStack(m); err != nil {
		t.Fatalf("NewMessageStack: %v", err)
	}
	if after := m.Header.Text("to"); after != before {
		t.Errorf("Message header mutated: before=%q after=%q", before, after)
	}
}
