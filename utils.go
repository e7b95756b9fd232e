package main

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// generateSignature creates a hash signature for content
func generateSignature(content string) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hash)[:16] // First 16 chars of hash
}

// truncateForTitle derives a session title from the first user input.
func truncateForTitle(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "New Session"
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	// Truncate on runes so a multi-byte character at the cut point
	// doesn't leave invalid UTF-8 in the title.
	const maxTitle = 40
	if runes := []rune(text); len(runes) > maxTitle {
		return string(runes[:maxTitle]) + "..."
	}
	return text
}
