package expr

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp     // + - * / % ! < <= > >= == != && ||
	tokLParen // (
	tokRParen // )
	tokLBracket
	tokRBracket
	tokDot
)

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) errorf(line, col int, format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Line:    line,
		Col:     col,
		Source:  l.src,
	}
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

// next returns the next token or a positioned *Error.
func (l *lexer) next() (token, *Error) {
	for l.pos < len(l.src) {
		c := l.peek()
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			l.advance()
			continue
		}
		break
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: l.line, col: l.col}, nil
	}

	line, col := l.line, l.col
	c := l.peek()

	switch {
	case isDigit(c):
		var sb strings.Builder
		for l.pos < len(l.src) && isDigit(l.peek()) {
			sb.WriteByte(l.advance())
		}
		if l.peek() == '.' && isDigit(l.peekAt(1)) {
			sb.WriteByte(l.advance())
			for l.pos < len(l.src) && isDigit(l.peek()) {
				sb.WriteByte(l.advance())
			}
		}
		return token{kind: tokNumber, text: sb.String(), line: line, col: col}, nil

	case isIdentStart(c):
		var sb strings.Builder
		for l.pos < len(l.src) && isIdentPart(l.peek()) {
			sb.WriteByte(l.advance())
		}
		return token{kind: tokIdent, text: sb.String(), line: line, col: col}, nil

	case c == '\'' || c == '"':
		quote := l.advance()
		var sb strings.Builder
		for {
			if l.pos >= len(l.src) {
				return token{}, l.errorf(line, col, "unterminated string literal")
			}
			ch := l.advance()
			if ch == quote {
				return token{kind: tokString, text: sb.String(), line: line, col: col}, nil
			}
			if ch == '\\' && l.pos < len(l.src) {
				esc := l.advance()
				switch esc {
				case 'n':
					sb.WriteByte('\n')
				case 't':
					sb.WriteByte('\t')
				case '\\', '\'', '"':
					sb.WriteByte(esc)
				default:
					sb.WriteByte('\\')
					sb.WriteByte(esc)
				}
				continue
			}
			sb.WriteByte(ch)
		}

	case c == '(':
		l.advance()
		return token{kind: tokLParen, text: "(", line: line, col: col}, nil
	case c == ')':
		l.advance()
		return token{kind: tokRParen, text: ")", line: line, col: col}, nil
	case c == '[':
		l.advance()
		return token{kind: tokLBracket, text: "[", line: line, col: col}, nil
	case c == ']':
		l.advance()
		return token{kind: tokRBracket, text: "]", line: line, col: col}, nil
	case c == '.':
		l.advance()
		return token{kind: tokDot, text: ".", line: line, col: col}, nil

	case strings.IndexByte("+-*/%", c) >= 0:
		l.advance()
		return token{kind: tokOp, text: string(c), line: line, col: col}, nil

	case c == '!' || c == '=' || c == '<' || c == '>':
		l.advance()
		if l.peek() == '=' {
			l.advance()
			return token{kind: tokOp, text: string(c) + "=", line: line, col: col}, nil
		}
		if c == '=' {
			return token{}, l.errorf(line, col, "expected '==' but found single '='")
		}
		return token{kind: tokOp, text: string(c), line: line, col: col}, nil

	case c == '&' || c == '|':
		l.advance()
		if l.peek() == c {
			l.advance()
			return token{kind: tokOp, text: string(c) + string(c), line: line, col: col}, nil
		}
		return token{}, l.errorf(line, col, "unexpected character %q", string(c))
	}

	return token{}, l.errorf(line, col, "unexpected character %q", string(c))
}
