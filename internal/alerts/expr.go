package alerts

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrSyntax is returned for conditions that cannot be parsed.
	ErrSyntax = errors.New("condition syntax error")
	// ErrUnknownVariable is returned when a condition names a variable outside the fixed vocabulary.
	ErrUnknownVariable = errors.New("unknown variable")
)

// NodeType identifies the kind of expression node.
type NodeType int

const (
	NodeTypeConstant NodeType = iota
	NodeTypeVariable
	NodeTypeOperation
)

// Operator is a logical or comparison operator.
type Operator string

const (
	OpAnd       Operator = "and"
	OpOr        Operator = "or"
	OpNot       Operator = "not"
	OpNeg       Operator = "neg"
	OpLess      Operator = "<"
	OpLessEq    Operator = "<="
	OpGreater   Operator = ">"
	OpGreaterEq Operator = ">="
	OpEqual     Operator = "=="
	OpNotEq     Operator = "!="
)

// Node is one node of a compiled condition. Unary operations use Left only.
type Node struct {
	Type     NodeType
	Op       Operator
	Left     *Node
	Right    *Node
	Variable string
	Value    float64
}

// Evaluate computes the node value. Booleans are 1 and 0; variables missing
// from vars evaluate to 0.
func (n *Node) Evaluate(vars map[string]float64) float64 {
	switch n.Type {
	case NodeTypeConstant:
		return n.Value
	case NodeTypeVariable:
		return vars[n.Variable]
	}

	switch n.Op {
	case OpNot:
		return boolValue(n.Left.Evaluate(vars) == 0)
	case OpNeg:
		return -n.Left.Evaluate(vars)
	case OpAnd:
		if n.Left.Evaluate(vars) == 0 {
			return 0
		}
		return boolValue(n.Right.Evaluate(vars) != 0)
	case OpOr:
		if n.Left.Evaluate(vars) != 0 {
			return 1
		}
		return boolValue(n.Right.Evaluate(vars) != 0)
	}

	l, r := n.Left.Evaluate(vars), n.Right.Evaluate(vars)
	switch n.Op {
	case OpLess:
		return boolValue(l < r)
	case OpLessEq:
		return boolValue(l <= r)
	case OpGreater:
		return boolValue(l > r)
	case OpGreaterEq:
		return boolValue(l >= r)
	case OpEqual:
		return boolValue(l == r)
	case OpNotEq:
		return boolValue(l != r)
	}
	return 0
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Condition is a compiled alert condition.
type Condition struct {
	Source string
	root   *Node
}

// Match evaluates the condition against a variable table.
func (c *Condition) Match(vars map[string]float64) bool {
	return c.root.Evaluate(vars) != 0
}

// Compile parses condition text. Only numeric literals, the fixed variable
// vocabulary, comparisons and logical operators are accepted.
// A leading "=" (spreadsheet formula style) is ignored.
func Compile(text string) (*Condition, error) {
	src := strings.TrimSpace(text)
	src = strings.TrimSpace(strings.TrimPrefix(src, "="))
	if src == "" {
		return nil, fmt.Errorf("%w: empty condition", ErrSyntax)
	}

	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrSyntax, tok.text, tok.pos)
	}
	return &Condition{Source: text, root: root}, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func tokenize(src string) ([]token, error) {
	var toks []token
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case isWhitespace(c):
			i++
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], pos: start})
		case isLetter(c) || c == '_':
			start := i
			for i < len(src) && (isLetter(src[i]) || isDigit(src[i]) || src[i] == '_') {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		default:
			op := ""
			for _, cand := range []string{"<=", ">=", "==", "!=", "<>", "&&", "||", "<", ">", "=", "!", "-"} {
				if strings.HasPrefix(src[i:], cand) {
					op = cand
					break
				}
			}
			if op == "" {
				return nil, fmt.Errorf("%w: unexpected character %q at offset %d", ErrSyntax, c, i)
			}
			toks = append(toks, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

// accept consumes the next token if it is the given case-insensitive keyword or symbol.
func (p *parser) accept(keyword, symbol string) bool {
	tok := p.peek()
	if (tok.kind == tokIdent && strings.EqualFold(tok.text, keyword)) || (tok.kind == tokOp && tok.text == symbol) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseOr() (*Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept("or", "||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Node{Type: NodeTypeOperation, Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (*Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.accept("and", "&&") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Node{Type: NodeTypeOperation, Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (*Node, error) {
	if p.accept("not", "!") {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Node{Type: NodeTypeOperation, Op: OpNot, Left: operand}, nil
	}
	return p.parseComparison()
}

func comparisonOp(tok token) (Operator, bool) {
	if tok.kind != tokOp {
		return "", false
	}
	switch tok.text {
	case "<":
		return OpLess, true
	case "<=":
		return OpLessEq, true
	case ">":
		return OpGreater, true
	case ">=":
		return OpGreaterEq, true
	case "==", "=":
		return OpEqual, true
	case "!=", "<>":
		return OpNotEq, true
	}
	return "", false
}

// parseComparison handles chains like "1 < x <= 5" as "1 < x and x <= 5".
func (p *parser) parseComparison() (*Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	var result *Node
	for {
		op, ok := comparisonOp(p.peek())
		if !ok {
			break
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		cmp := &Node{Type: NodeTypeOperation, Op: op, Left: left, Right: right}
		if result == nil {
			result = cmp
		} else {
			result = &Node{Type: NodeTypeOperation, Op: OpAnd, Left: result, Right: cmp}
		}
		left = right
	}
	if result == nil {
		return left, nil
	}
	return result, nil
}

func (p *parser) parseUnary() (*Node, error) {
	if tok := p.peek(); tok.kind == tokOp && tok.text == "-" {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Node{Type: NodeTypeOperation, Op: OpNeg, Left: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (*Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q at offset %d", ErrSyntax, tok.text, tok.pos)
		}
		return &Node{Type: NodeTypeConstant, Value: v}, nil
	case tokIdent:
		name := strings.ToLower(tok.text)
		switch name {
		case "true":
			return &Node{Type: NodeTypeConstant, Value: 1}, nil
		case "false":
			return &Node{Type: NodeTypeConstant, Value: 0}, nil
		case "and", "or", "not":
			return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrSyntax, tok.text, tok.pos)
		}
		if !IsVariable(name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownVariable, tok.text)
		}
		return &Node{Type: NodeTypeVariable, Variable: name}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis at offset %d", ErrSyntax, closing.pos)
		}
		return inner, nil
	case tokEOF:
		return nil, fmt.Errorf("%w: unexpected end of condition", ErrSyntax)
	default:
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrSyntax, tok.text, tok.pos)
	}
}
