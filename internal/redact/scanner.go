// Package redact replaces sensitive values in grid logs with stable tokens
// before the text leaves the host, and restores them in the reply.
package redact

import (
	"regexp"
	"sort"
	"strings"
)

// Kind identifies the category of a sensitive value.
type Kind string

const (
	KindPath      Kind = "PATH"
	KindIP        Kind = "IP"
	KindHost      Kind = "HOST"
	KindCred      Kind = "CRED"
	KindPrincipal Kind = "PRINCIPAL"
	KindEmail     Kind = "EMAIL"
)

// Match is one occurrence of a sensitive value in text.
type Match struct {
	Kind  Kind
	Value string
	Start int
}

type pattern struct {
	kind Kind
	re   *regexp.Regexp
}

// Order matters: the first pattern to claim a value wins, so Kerberos
// principals are taken before the looser email pattern.
var patterns = []pattern{
	{KindPath, regexp.MustCompile(`/(?:data|infa|opt|var|home|etc|tmp|usr|mnt)/[^\s\]\[)(,;"']+`)},
	{KindPath, regexp.MustCompile(`(?:[A-Za-z]:\\|\\\\)[^\s\]\[)(,;"']+`)},
	{KindIP, regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
	{KindCred, regexp.MustCompile(`(?i)\b(?:password|passwd|pwd|secret|token|api_?key|keytab)[ \t]*[=:][ \t]*\S+`)},
	{KindPrincipal, regexp.MustCompile(`\b[a-zA-Z0-9._\-]+@[A-Z0-9\-]+(?:\.[A-Z0-9\-]+)+\b`)},
	{KindEmail, regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`)},
	{KindHost, regexp.MustCompile(`\b[a-zA-Z0-9][\-a-zA-Z0-9]*(?:\.[\-a-zA-Z0-9]+)+\.[a-zA-Z]{2,}\b`)},
}

var safeIPs = map[string]bool{
	"127.0.0.1": true,
	"0.0.0.0":   true,
}

// Scan finds sensitive values in text. Each value is reported once, at its
// first position, and matches are ordered by position.
func Scan(text string) []Match {
	seen := make(map[string]bool)
	var matches []Match

	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			v := strings.TrimRight(text[loc[0]:loc[1]], ".,;:")
			if v == "" || seen[v] || covered(matches, loc[0]) {
				continue
			}
			if p.kind == KindIP && safeIPs[v] {
				continue
			}
			seen[v] = true
			matches = append(matches, Match{Kind: p.kind, Value: v, Start: loc[0]})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})
	return matches
}

// covered reports whether pos falls inside an earlier match, so the host
// part of an email is not tokenized a second time.
func covered(matches []Match, pos int) bool {
	for _, m := range matches {
		if pos >= m.Start && pos < m.Start+len(m.Value) {
			return true
		}
	}
	return false
}
