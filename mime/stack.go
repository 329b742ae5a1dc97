package mime

import (
	"strings"

	"github.com/trasherdk/emailjs"
)

// MessageStack is the per-send envelope derived from a Message: the
// sender, a deduplicated recipient list, and a reference to the source
// Message (spec.md §3). It is built once per send and is otherwise
// immutable.
type MessageStack struct {
	From       smtp.Address
	To         []smtp.Address
	ReturnPath string
	Message    *Message
}

// NewMessageStack validates m and builds its MessageStack: a single From
// address, and the deduplicated union of To, Cc, and Bcc — insertion order
// preserved across To then Cc then Bcc, first occurrence wins (spec.md
// §4.5). NewMessageStack is pure: it never mutates m.
func NewMessageStack(m *Message) (*MessageStack, error) {
	if ok, err := m.CheckValidity(); !ok {
		return nil, err
	}

	from := firstValid(m.Header.Addresses("from"))

	returnPath := from.Addr
	if rp := m.Header.Text("return-path"); rp != "" {
		if a := firstValid(smtp.ParseAddressList(rp)); a.Valid() {
			returnPath = a.Addr
		}
	}

	stack := &MessageStack{
		From:       from,
		ReturnPath: returnPath,
		Message:    m,
	}

	seen := make(map[string]bool)
	for _, h := range [...]string{"to", "cc", "bcc"} {
		for _, a := range m.Header.Addresses(h) {
			if !a.Valid() {
				continue
			}
			key := strings.ToLower(a.Addr)
			if seen[key] {
				continue
			}
			seen[key] = true
			stack.To = append(stack.To, a)
		}
	}

	return stack, nil
}

func firstValid(addrs []smtp.Address) smtp.Address {
	for _, a := range addrs {
		if a.Valid() {
			return a
		}
	}
	return smtp.Address{}
}
