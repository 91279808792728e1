// Package chat holds the pure pieces of the messaging layer: room keys,
// payload validation and notification previews.
package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxBodyBytes  = 4096
	previewLength = 30
)

// RoomKey is the deterministic identifier for a two-party conversation.
// The pair is ordered lexicographically so both participants resolve the same
// room no matter who initiates.
func RoomKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "chat_" + a + "_" + b
}

// ValidateBody rejects empty and oversized message bodies. Malformed input is
// a per-connection problem; callers log and drop, they never propagate it.
func ValidateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("empty message body")
	}
	if len(body) > maxBodyBytes {
		return fmt.Errorf("message body exceeds %d bytes", maxBodyBytes)
	}
	if !utf8.ValidString(body) {
		return fmt.Errorf("message body is not valid utf-8")
	}
	return nil
}

// Preview truncates a message body for unread notifications.
func Preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewLength {
		return body
	}
	return string(runes[:previewLength]) + "..."
}
