// Package cursor implements the opaque pagination token used by every
// trade-listing query: base64 of "timestamp_micros:id", ordered
// timestamp DESC, id DESC with id as tie-breaker, per the specification's
// cursor format design note. Callers must not parse the token.
package cursor

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cursor is the decoded form of the opaque pagination token.
type Cursor struct {
	Timestamp time.Time
	ID        int64
}

// Encode produces the opaque token for the given position.
func Encode(ts time.Time, id int64) string {
	raw := fmt.Sprintf("%d:%d", ts.UnixMicro(), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a token produced by Encode. An empty token decodes to
// the zero Cursor, meaning "start from the most recent row".
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("decode cursor: malformed token")
	}
	micros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	return Cursor{Timestamp: time.UnixMicro(micros), ID: id}, nil
}
