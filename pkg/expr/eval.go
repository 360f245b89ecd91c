// Package expr implements the restricted expression language embedded
// in manifest gate conditions and action parameters. The surface is
// deliberately small: arithmetic, string concatenation, comparisons,
// boolean logic and field access on read-only bindings. It is not a
// scripting language and cannot call functions or assign.
package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Bindings exposes read-only name to value pairs to expressions.
// Values may be string, bool, int64, float64, []interface{} or
// map[string]interface{}; nested maps are reachable with dotted field
// access.
type Bindings map[string]interface{}

// Error is an evaluation or parse failure with source position.
type Error struct {
	Message string
	Line    int // 1-based
	Col     int // 1-based
	Source  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (line %d, column %d)", e.Message, e.Line, e.Col)
}

// CaretBlock renders the offending source line with a caret pointing at
// the error column, for log output.
func (e *Error) CaretBlock() string {
	lines := strings.Split(e.Source, "\n")
	lineText := ""
	if e.Line-1 >= 0 && e.Line-1 < len(lines) {
		lineText = lines[e.Line-1]
	}
	marker := strings.Repeat(" ", e.Col-1) + "^"
	return fmt.Sprintf("  %s\n  %s (line %d, column %d)", lineText, marker, e.Line, e.Col)
}

// Eval parses and evaluates a single expression against bindings.
func Eval(src string, bindings Bindings) (interface{}, *Error) {
	n, err := parse(src)
	if err != nil {
		return nil, err
	}
	ev := &evaluator{src: src, bindings: bindings}
	return ev.eval(n)
}

// EvalTemplate splits a template string, evaluates its expression parts
// and concatenates everything back into a single string.
func EvalTemplate(tmpl string, bindings Bindings) (string, *Error) {
	var sb strings.Builder
	for _, part := range SplitTemplate(tmpl) {
		if !part.Expr {
			sb.WriteString(part.Text)
			continue
		}
		v, err := Eval(part.Text, bindings)
		if err != nil {
			return "", err
		}
		sb.WriteString(Stringify(v))
	}
	return sb.String(), nil
}

// Stringify converts an expression result to its template string form.
func Stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Truthy coerces a gate result to a boolean. The second return reports
// whether the value had no defined truthiness and defaulted to true.
//
// Booleans pass through; integers use standard truthiness; the string
// "true" (case-insensitive) is true and any other string false; any
// other type defaults to true.
func Truthy(v interface{}) (result bool, defaulted bool) {
	switch t := v.(type) {
	case bool:
		return t, false
	case int64:
		return t != 0, false
	case int:
		return t != 0, false
	case float64:
		return t != 0, false
	case string:
		return strings.EqualFold(t, "true"), false
	default:
		return true, true
	}
}

type evaluator struct {
	src      string
	bindings Bindings
}

func (ev *evaluator) errorf(n node, format string, args ...interface{}) *Error {
	line, col := n.pos()
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Line:    line,
		Col:     col,
		Source:  ev.src,
	}
}

func (ev *evaluator) eval(n node) (interface{}, *Error) {
	switch t := n.(type) {
	case *literalNode:
		return t.value, nil

	case *identNode:
		v, ok := ev.bindings[t.name]
		if !ok {
			return nil, ev.errorf(n, "unknown name %q", t.name)
		}
		return v, nil

	case *fieldNode:
		target, err := ev.eval(t.target)
		if err != nil {
			return nil, err
		}
		m, ok := target.(map[string]interface{})
		if !ok {
			return nil, ev.errorf(n, "cannot access field %q on %s", t.name, typeName(target))
		}
		v, ok := m[t.name]
		if !ok {
			return nil, ev.errorf(n, "unknown field %q", t.name)
		}
		return v, nil

	case *indexNode:
		target, err := ev.eval(t.target)
		if err != nil {
			return nil, err
		}
		idxVal, err := ev.eval(t.index)
		if err != nil {
			return nil, err
		}
		ls, ok := target.([]interface{})
		if !ok {
			return nil, ev.errorf(n, "cannot index into %s", typeName(target))
		}
		idx, ok := asInt(idxVal)
		if !ok {
			return nil, ev.errorf(n, "index must be an integer, got %s", typeName(idxVal))
		}
		if idx < 0 || int(idx) >= len(ls) {
			return nil, ev.errorf(n, "index %d out of range (len %d)", idx, len(ls))
		}
		return ls[idx], nil

	case *unaryNode:
		operand, err := ev.eval(t.operand)
		if err != nil {
			return nil, err
		}
		switch t.op {
		case "-":
			switch v := operand.(type) {
			case int64:
				return -v, nil
			case float64:
				return -v, nil
			}
			return nil, ev.errorf(n, "cannot negate %s", typeName(operand))
		case "!":
			b, _ := Truthy(operand)
			return !b, nil
		}
		return nil, ev.errorf(n, "unknown unary operator %q", t.op)

	case *binaryNode:
		return ev.evalBinary(t)
	}
	return nil, ev.errorf(n, "unknown expression node")
}

func (ev *evaluator) evalBinary(n *binaryNode) (interface{}, *Error) {
	// Short-circuit boolean operators.
	if n.op == "&&" || n.op == "||" {
		left, err := ev.eval(n.left)
		if err != nil {
			return nil, err
		}
		lb, _ := Truthy(left)
		if n.op == "&&" && !lb {
			return false, nil
		}
		if n.op == "||" && lb {
			return true, nil
		}
		right, err := ev.eval(n.right)
		if err != nil {
			return nil, err
		}
		rb, _ := Truthy(right)
		return rb, nil
	}

	left, err := ev.eval(n.left)
	if err != nil {
		return nil, err
	}
	right, err := ev.eval(n.right)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return valuesEqual(left, right), nil
	case "!=":
		return !valuesEqual(left, right), nil
	}

	// String concatenation and comparison.
	if ls, lok := left.(string); lok {
		rs, rok := right.(string)
		if !rok {
			return nil, ev.errorf(n, "operator %q needs two strings or two numbers, got string and %s", n.op, typeName(right))
		}
		switch n.op {
		case "+":
			return ls + rs, nil
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
		return nil, ev.errorf(n, "operator %q not defined for strings", n.op)
	}

	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		return nil, ev.errorf(n, "operator %q needs two strings or two numbers, got %s and %s",
			n.op, typeName(left), typeName(right))
	}

	li, liInt := asInt(left)
	ri, riInt := asInt(right)
	bothInt := liInt && riInt

	switch n.op {
	case "+":
		if bothInt {
			return li + ri, nil
		}
		return lf + rf, nil
	case "-":
		if bothInt {
			return li - ri, nil
		}
		return lf - rf, nil
	case "*":
		if bothInt {
			return li * ri, nil
		}
		return lf * rf, nil
	case "/":
		if bothInt {
			if ri == 0 {
				return nil, ev.errorf(n, "division by zero")
			}
			if li%ri == 0 {
				return li / ri, nil
			}
		}
		if rf == 0 {
			return nil, ev.errorf(n, "division by zero")
		}
		return lf / rf, nil
	case "%":
		if !bothInt {
			return nil, ev.errorf(n, "operator %% needs two integers")
		}
		if ri == 0 {
			return nil, ev.errorf(n, "division by zero")
		}
		return li % ri, nil
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	}
	return nil, ev.errorf(n, "unknown operator %q", n.op)
}

func valuesEqual(a, b interface{}) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

func asInt(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "nil"
	case string:
		return "string"
	case bool:
		return "bool"
	case int64, int:
		return "int"
	case float64:
		return "float"
	case []interface{}:
		return "list"
	case map[string]interface{}:
		return "map"
	default:
		return fmt.Sprintf("%T", v)
	}
}
