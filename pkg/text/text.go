// Package text turns record and query strings into the words the
// engine indexes.
//
// The rule is fixed: every ASCII punctuation character is removed from
// the whole string, then the remainder is split on ASCII whitespace.
// Words are case-sensitive and are not stemmed.
package text

import "strings"

// IsPunct reports whether b is one of the 32 ASCII punctuation characters
// !"#$%&'()*+,-./:;<=>?@[\]^_`{|}~
func IsPunct(b byte) bool {
	switch {
	case b >= '!' && b <= '/':
		return true
	case b >= ':' && b <= '@':
		return true
	case b >= '[' && b <= '`':
		return true
	case b >= '{' && b <= '~':
		return true
	}
	return false
}

// IsSpace reports whether r is ASCII whitespace: space, tab, line feed,
// form feed or carriage return. Vertical tab is not whitespace here.
func IsSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\f', '\r':
		return true
	}
	return false
}

// Strip removes all ASCII punctuation from s. Multi-byte UTF-8 sequences
// never contain bytes below 0x80, so stripping byte-wise is safe.
func Strip(s string) string {
	i := 0
	for i < len(s) && !IsPunct(s[i]) {
		i++
	}
	if i == len(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(s[:i])
	for ; i < len(s); i++ {
		if !IsPunct(s[i]) {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Words normalizes s into its word list, in occurrence order, duplicates
// included.
func Words(s string) []string {
	return strings.FieldsFunc(Strip(s), IsSpace)
}

// Unique returns words with later duplicates removed, keeping first
// occurrence order.
func Unique(words []string) []string {
	if len(words) < 2 {
		return words
	}
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
