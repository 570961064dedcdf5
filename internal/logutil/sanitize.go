// Package logutil keeps caller-supplied strings safe to print in log lines.
package logutil

import (
	"strings"
	"unicode/utf8"
)

// SanitizeForLog strips newlines and control characters from user-provided
// strings so a hostile value cannot forge log entries.
func SanitizeForLog(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r >= 32 {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Truncate caps a string at n bytes for compact log and close-frame messages.
// The cut never splits a multi-byte rune, so the result stays valid UTF-8.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
