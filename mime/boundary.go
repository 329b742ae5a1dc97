package mime

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// defaultRand reads n random bytes via crypto/rand, the injected
// RandomBytes(n) primitive of spec.md §6.
func defaultRand(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b) // crypto/rand.Read never errors on a well-formed buffer.
	return b
}

// newBoundary returns a fresh multipart boundary token. Each part level
// gets its own boundary, and the token is escaped against ever needing
// escaping by construction: it is pure hex.
func newBoundary(randFunc func(int) []byte) string {
	return "----=_Boundary_" + hex.EncodeToString(randFunc(16))
}

// newMessageID generates a message-id of the shape
// "<base36-timestamp.random@hostname>" (spec.md §4.2).
func newMessageID(now time.Time, randFunc func(int) []byte) string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	ts := strconv.FormatInt(now.UnixNano(), 36)
	rnd := hex.EncodeToString(randFunc(6))
	return fmt.Sprintf("<%s.%s@%s>", ts, rnd, hostname)
}

// normalizeMessageID adds enclosing angle brackets to a user-supplied
// message-id if missing (spec.md §4.2).
func normalizeMessageID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return id
	}
	if !strings.HasPrefix(id, "<") {
		id = "<" + id
	}
	if !strings.HasSuffix(id, ">") {
		id = id + ">"
	}
	return id
}
