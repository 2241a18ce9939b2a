// Package cmdutil holds the small argv quoting/splitting helpers shared by
// the agenda template compiler.
package cmdutil

import "strings"

// JoinQuoted joins values with single spaces, wrapping any value that
// contains whitespace in double quotes so that SplitQuoted can recover the
// original elements later.
func JoinQuoted(values []string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if strings.ContainsAny(v, " \t") {
			parts[i] = `"` + v + `"`
		} else {
			parts[i] = v
		}
	}
	return strings.Join(parts, " ")
}

// SplitQuoted splits s on ASCII spaces, treating a leading '"' as opening
// a quoted span and the next '"' as closing it; the quoted span's interior
// (without the quotes) is emitted as a single element. Empty elements are
// dropped.
func SplitQuoted(s string) []string {
	var result []string
	var current strings.Builder
	inQuotes := false
	hasCurrent := false

	flush := func() {
		if hasCurrent {
			result = append(result, current.String())
			current.Reset()
			hasCurrent = false
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			hasCurrent = true
		case c == ' ' && !inQuotes:
			flush()
		default:
			current.WriteByte(c)
			hasCurrent = true
		}
	}
	flush()

	out := result[:0]
	for _, part := range result {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
