package utils

import "strings"

func AssertInvariant(condition bool, message string) {
	if !condition {
		panic("invariant violated - " + message)
	}
}

// TruncateRunes shortens s to at most max runes, appending an ellipsis when cut.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
}

// IsBotCredential reports whether a credential carries the bot token prefix.
func IsBotCredential(credential string) bool {
	return strings.HasPrefix(strings.TrimSpace(credential), "Bot ")
}
