package cursor

import (
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 5, 12, 30, 0, 0, time.UTC)
	token := Encode(ts, 42)

	got, err := Decode(token)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, ts)
	}
	if got.ID != 42 {
		t.Errorf("ID = %d, want 42", got.ID)
	}
}

func TestDecodeEmptyTokenIsZeroCursor(t *testing.T) {
	got, err := Decode("")
	if err != nil {
		t.Fatalf("Decode(\"\") error = %v", err)
	}
	if got != (Cursor{}) {
		t.Errorf("expected zero Cursor for empty token, got %+v", got)
	}
}

func TestDecodeMalformedTokenErrors(t *testing.T) {
	if _, err := Decode("not-valid-base64!!"); err == nil {
		t.Error("expected error decoding malformed token")
	}
	if _, err := Decode("aGVsbG8"); err == nil {
		t.Error("expected error decoding base64 payload with no colon separator")
	}
}

func TestEncodeOrderingIsStable(t *testing.T) {
	earlier := Encode(time.Unix(100, 0), 1)
	later := Encode(time.Unix(200, 0), 1)
	if earlier == later {
		t.Error("expected distinct tokens for distinct timestamps")
	}
	a, errA := Decode(earlier)
	b, errB := Decode(later)
	if errA != nil || errB != nil {
		t.Fatalf("Decode() errors = %v, %v", errA, errB)
	}
	if !a.Timestamp.Before(b.Timestamp) {
		t.Error("expected decoded cursors to keep the order of their timestamps")
	}
}
