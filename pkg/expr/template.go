package expr

import "strings"

// Part is one chunk of a parsed template string: either literal text or
// the source of an expression found between "${{" and "}}".
type Part struct {
	// Text is the literal text, or the expression source when Expr is set.
	Text string

	// Expr marks the part as an expression to evaluate.
	Expr bool
}

// SplitTemplate splits a template string into literal and expression
// parts. Expressions are delimited by "${{" and "}}".
//
// A run of N backslashes immediately before the opening delimiter
// controls escaping:
//   - N = 0: the expression is evaluated.
//   - N odd: the delimiter and its contents become literal text and
//     N-1 backslashes are kept in front of it.
//   - N even (>= 2): the expression is still evaluated and N-1
//     backslashes are kept as literal text before it.
//
// An opening delimiter with no closing "}}" makes the remainder of the
// string literal text.
func SplitTemplate(s string) []Part {
	var parts []Part
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, Part{Text: lit.String()})
			lit.Reset()
		}
	}

	last := 0
	for {
		pos := strings.Index(s[last:], "${{")
		if pos < 0 {
			break
		}
		pos += last
		end := strings.Index(s[pos+3:], "}}")
		if end < 0 {
			break
		}
		end += pos + 3

		// Count backslashes immediately before the delimiter.
		bs := 0
		for k := pos - 1; k >= 0 && s[k] == '\\'; k-- {
			bs++
		}

		prefix := s[last : pos-bs]
		exprText := s[pos+3 : end]
		token := s[pos : end+2]

		switch {
		case bs == 0:
			lit.WriteString(prefix)
			flush()
			parts = append(parts, Part{Text: exprText, Expr: true})
		case bs%2 == 1:
			// Escaped: the token itself becomes literal text, keeping
			// bs-1 backslashes before it.
			lit.WriteString(prefix)
			lit.WriteString(strings.Repeat(`\`, bs-1))
			if bs == 1 {
				// A single backslash flushes the prefix as its own part
				// before the token.
				flush()
			}
			lit.WriteString(token)
		default:
			// Even count >= 2: keep bs-1 backslashes, still evaluate.
			lit.WriteString(prefix)
			lit.WriteString(strings.Repeat(`\`, bs-1))
			flush()
			parts = append(parts, Part{Text: exprText, Expr: true})
		}

		last = end + 2
	}

	if last < len(s) {
		lit.WriteString(s[last:])
	}
	flush()
	return parts
}

// HasExpressions reports whether the template contains at least one
// part that would be evaluated.
func HasExpressions(s string) bool {
	for _, p := range SplitTemplate(s) {
		if p.Expr {
			return true
		}
	}
	return false
}
