package expr

import "strconv"

// node is an AST node produced by the parser.
type node interface {
	pos() (line, col int)
}

type literalNode struct {
	value     interface{} // int64, float64, string or bool
	line, col int
}

type identNode struct {
	name      string
	line, col int
}

type fieldNode struct {
	target    node
	name      string
	line, col int
}

type indexNode struct {
	target    node
	index     node
	line, col int
}

type unaryNode struct {
	op        string
	operand   node
	line, col int
}

type binaryNode struct {
	op          string
	left, right node
	line, col   int
}

func (n *literalNode) pos() (int, int) { return n.line, n.col }
func (n *identNode) pos() (int, int)   { return n.line, n.col }
func (n *fieldNode) pos() (int, int)   { return n.line, n.col }
func (n *indexNode) pos() (int, int)   { return n.line, n.col }
func (n *unaryNode) pos() (int, int)   { return n.line, n.col }
func (n *binaryNode) pos() (int, int)  { return n.line, n.col }

// parser is a recursive-descent parser for the restricted expression
// grammar: boolean logic, comparisons, arithmetic and string
// concatenation, unary - and !, parentheses, identifiers with dotted
// field access and indexing.
type parser struct {
	lex *lexer
	tok token
	src string
}

func parse(src string) (node, *Error) {
	p := &parser{lex: newLexer(src), src: src}
	if err := p.advance(); err != nil {
		return nil, err
	}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected token %q", p.tok.text)
	}
	return n, nil
}

func (p *parser) advance() *Error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) errorf(format string, args ...interface{}) *Error {
	return p.lex.errorf(p.tok.line, p.tok.col, format, args...)
}

func (p *parser) parseOr() (node, *Error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && p.tok.text == "||" {
		line, col := p.tok.line, p.tok.col
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "||", left: left, right: right, line: line, col: col}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, *Error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && p.tok.text == "&&" {
		line, col := p.tok.line, p.tok.col
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "&&", left: left, right: right, line: line, col: col}
	}
	return left, nil
}

func (p *parser) parseEquality() (node, *Error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "==" || p.tok.text == "!=") {
		op := p.tok.text
		line, col := p.tok.line, p.tok.col
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right, line: line, col: col}
	}
	return left, nil
}

func (p *parser) parseComparison() (node, *Error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp &&
		(p.tok.text == "<" || p.tok.text == "<=" || p.tok.text == ">" || p.tok.text == ">=") {
		op := p.tok.text
		line, col := p.tok.line, p.tok.col
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right, line: line, col: col}
	}
	return left, nil
}

func (p *parser) parseTerm() (node, *Error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text
		line, col := p.tok.line, p.tok.col
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right, line: line, col: col}
	}
	return left, nil
}

func (p *parser) parseFactor() (node, *Error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "*" || p.tok.text == "/" || p.tok.text == "%") {
		op := p.tok.text
		line, col := p.tok.line, p.tok.col
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right, line: line, col: col}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, *Error) {
	if p.tok.kind == tokOp && (p.tok.text == "-" || p.tok.text == "!") {
		op := p.tok.text
		line, col := p.tok.line, p.tok.col
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, operand: operand, line: line, col: col}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, *Error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.tok.kind == tokDot:
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.kind != tokIdent {
				return nil, p.errorf("expected field name after '.'")
			}
			n = &fieldNode{target: n, name: p.tok.text, line: p.tok.line, col: p.tok.col}
			if err := p.advance(); err != nil {
				return nil, err
			}
		case p.tok.kind == tokLBracket:
			line, col := p.tok.line, p.tok.col
			if err := p.advance(); err != nil {
				return nil, err
			}
			idx, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if p.tok.kind != tokRBracket {
				return nil, p.errorf("expected ']'")
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			n = &indexNode{target: n, index: idx, line: line, col: col}
		default:
			return n, nil
		}
	}
}

func (p *parser) parsePrimary() (node, *Error) {
	tok := p.tok
	switch tok.kind {
	case tokNumber:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if i, err := strconv.ParseInt(tok.text, 10, 64); err == nil {
			return &literalNode{value: i, line: tok.line, col: tok.col}, nil
		}
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, p.lex.errorf(tok.line, tok.col, "invalid number %q", tok.text)
		}
		return &literalNode{value: f, line: tok.line, col: tok.col}, nil

	case tokString:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &literalNode{value: tok.text, line: tok.line, col: tok.col}, nil

	case tokIdent:
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch tok.text {
		case "true":
			return &literalNode{value: true, line: tok.line, col: tok.col}, nil
		case "false":
			return &literalNode{value: false, line: tok.line, col: tok.col}, nil
		}
		return &identNode{name: tok.text, line: tok.line, col: tok.col}, nil

	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.errorf("expected ')'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil
	}
	return nil, p.errorf("unexpected token %q", tok.text)
}
