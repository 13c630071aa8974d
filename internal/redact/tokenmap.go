package redact

import (
	"fmt"
	"sort"
	"strings"
)

// TokenMap maps sensitive values to tokens like <<PATH_1>> and back.
// Not safe for concurrent use; use one map per request.
type TokenMap struct {
	forward  map[string]string
	reverse  map[string]string
	counters map[Kind]int
}

// NewTokenMap returns an empty map.
func NewTokenMap() *TokenMap {
	return &TokenMap{
		forward:  make(map[string]string),
		reverse:  make(map[string]string),
		counters: make(map[Kind]int),
	}
}

// Token returns the token for value, allocating one on first use.
func (tm *TokenMap) Token(kind Kind, value string) string {
	if tok, ok := tm.forward[value]; ok {
		return tok
	}
	tm.counters[kind]++
	tok := fmt.Sprintf("<<%s_%d>>", kind, tm.counters[kind])
	tm.forward[value] = tok
	tm.reverse[tok] = value
	return tok
}

// Resolve returns the value behind token.
func (tm *TokenMap) Resolve(token string) (string, bool) {
	v, ok := tm.reverse[token]
	return v, ok
}

// Len returns the number of tokenized values.
func (tm *TokenMap) Len() int {
	return len(tm.forward)
}

// values returns the sensitive values longest first, so a path is replaced
// before any prefix of it.
func (tm *TokenMap) values() []string {
	vals := make([]string, 0, len(tm.forward))
	for v := range tm.forward {
		vals = append(vals, v)
	}
	sort.Slice(vals, func(i, j int) bool {
		if len(vals[i]) != len(vals[j]) {
			return len(vals[i]) > len(vals[j])
		}
		return vals[i] < vals[j]
	})
	return vals
}

// Legend explains the tokens to a language model. Empty when nothing was
// redacted.
func (tm *TokenMap) Legend() string {
	if len(tm.reverse) == 0 {
		return ""
	}
	toks := make([]string, 0, len(tm.reverse))
	for t := range tm.reverse {
		toks = append(toks, t)
	}
	sort.Strings(toks)
	return "Sensitive values are replaced by tokens (" + strings.Join(toks, ", ") +
		"). Refer to them only by token.\n"
}
