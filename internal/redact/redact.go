package redact

import "strings"

// Redact tokenizes every sensitive value in text, recording the mapping
// in tm. The same value maps to the same token across calls on one map.
func Redact(text string, tm *TokenMap) string {
	for _, m := range Scan(text) {
		tm.Token(m.Kind, m.Value)
	}
	out := text
	for _, v := range tm.values() {
		out = strings.ReplaceAll(out, v, tm.forward[v])
	}
	return out
}

// Restore replaces tokens in text with their original values.
func Restore(text string, tm *TokenMap) string {
	out := text
	for tok, v := range tm.reverse {
		out = strings.ReplaceAll(out, tok, v)
	}
	return out
}

// Leaks returns the sensitive values that appear verbatim in text. A reply
// to a redacted prompt must not contain any.
func Leaks(text string, tm *TokenMap) []string {
	var leaks []string
	for _, v := range tm.values() {
		if strings.Contains(text, v) {
			leaks = append(leaks, v)
		}
	}
	return leaks
}

// Mode says whether text must be redacted before it is sent.
type Mode string

const (
	ModeLocal Mode = "local"
	ModeCloud Mode = "cloud"
)

// DetectMode treats loopback endpoints as local and everything else as cloud.
func DetectMode(apiURL string) Mode {
	lower := strings.ToLower(apiURL)
	if strings.Contains(lower, "localhost") || strings.Contains(lower, "127.0.0.1") || strings.Contains(lower, "[::1]") {
		return ModeLocal
	}
	return ModeCloud
}

// ResolveMode applies an operator override ("always" or "never") on top of
// DetectMode.
func ResolveMode(apiURL, override string) Mode {
	switch strings.ToLower(strings.TrimSpace(override)) {
	case "always":
		return ModeCloud
	case "never":
		return ModeLocal
	default:
		return DetectMode(apiURL)
	}
}
