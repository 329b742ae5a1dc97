package mime

import "testing"

func TestMessage_CheckValidity_MissingFrom(t *testing.T) {
	m := NewMessage()
	m.Header.AddAddressList("to", "a@example.com")
	if ok, err := m.CheckValidity(); ok || err != ErrMissingFrom {
		t.Errorf("CheckValidity() = (%v, %v), want (false, ErrMissingFrom)", ok, err)
	}
}

func TestMessage_CheckValidity_MissingRecipient(t *testing.T) {
	m := NewMessage()
	m.Header.AddAddressList("from", "a@example.com")
	if ok, err := m.CheckValidity(); ok || err != ErrMissingRecipient {
		t.Errorf("CheckValidity() = (%v, %v), want (false, ErrMissingRecipient)", ok, err)
	}
}

func TestMessage_CheckValidity_RecipientFromCcOrBcc(t *testing.T) {
	m := NewMessage()
	m.Header.AddAddressList("from", "a@example.com")
	m.Header.AddAddressList("cc", "b@example.com")
	if ok, err := m.CheckValidity(); !ok || err != nil {
		t.Errorf("CheckValidity() = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestMessage_ContentTypeDefault(t *testing.T) {
	m := NewMessage()
	if got := m.contentType(); got != DefaultContentType {
		t.Errorf("contentType() = %q, want %q", got, DefaultContentType)
	}
}

func TestMessage_SetAlternativeDefaultsContentType(t *testing.T) {
	m := NewMessage()
	m.SetAlternative("", "<p>hi</p>")
	if m.Alternative.Type != "text/html; charset=utf-8" {
		t.Errorf("Alternative.Type = %q, want default html type", m.Alternative.Type)
	}
	if !m.Alternative.Alternative {
		t.Error("Alternative.Alternative should be true")
	}
}

func TestMessage_Attach(t *testing.T) {
	m := NewMessage()
	a := &Attachment{Data: []byte("x")}
	m.Attach(a)
	if len(m.Attachments) != 1 || m.Attachments[0] != a {
		t.Errorf("Attach() did not append attachment, got %+v", m.Attachments)
	}
}
