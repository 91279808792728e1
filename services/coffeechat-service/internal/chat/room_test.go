package chat

import (
	"strings"
	"testing"
)

func TestRoomKeySymmetric(t *testing.T) {
	if RoomKey("alice", "bob") != RoomKey("bob", "alice") {
		t.Fatal("room key must not depend on who initiates")
	}
	if got := RoomKey("bob", "alice"); got != "chat_alice_bob" {
		t.Fatalf("RoomKey = %q, want chat_alice_bob", got)
	}
}

func TestValidateBody(t *testing.T) {
	if err := ValidateBody("hello"); err != nil {
		t.Fatalf("valid body rejected: %v", err)
	}
	if err := ValidateBody(""); err == nil {
		t.Fatal("empty body accepted")
	}
	if err := ValidateBody("   \n\t"); err == nil {
		t.Fatal("whitespace-only body accepted")
	}
	if err := ValidateBody(strings.Repeat("a", 4097)); err == nil {
		t.Fatal("oversized body accepted")
	}
	if err := ValidateBody(string([]byte{0xff, 0xfe})); err == nil {
		t.Fatal("invalid utf-8 accepted")
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("short"); got != "short" {
		t.Fatalf("short body should pass through, got %q", got)
	}

	long := strings.Repeat("x", 45)
	got := Preview(long)
	if got != strings.Repeat("x", 30)+"..." {
		t.Fatalf("Preview = %q", got)
	}

	// Truncation counts runes, not bytes.
	accented := strings.Repeat("é", 40)
	got = Preview(accented)
	if got != strings.Repeat("é", 30)+"..." {
		t.Fatalf("multibyte preview = %q", got)
	}
}
