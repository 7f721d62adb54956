package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// ErrSyntax indicates a condition could not be parsed.
var ErrSyntax = errors.New("condition syntax error")

// Condition is a compiled boolean expression over state.
// A Condition is immutable and safe for concurrent use.
type Condition struct {
	src  string
	root node
}

// Compile parses src into a Condition.
func Compile(src string) (*Condition, error) {
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
		return nil, p.errorf(tok, "unexpected %q", tok.text)
	}
	return &Condition{src: src, root: root}, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(src string) *Condition {
	c, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return c
}

// Eval compiles src and evaluates it against s.
func Eval(src string, s state.State) (bool, error) {
	c, err := Compile(src)
	if err != nil {
		return false, err
	}
	return c.Match(s), nil
}

// Match reports whether the condition holds for s.
func (c *Condition) Match(s state.State) bool {
	return IsTruthy(c.root.eval(s))
}

// String returns the source text.
func (c *Condition) String() string {
	return c.src
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(src string) ([]token, error) {
	if !utf8.ValidString(src) {
		return nil, fmt.Errorf("%w: invalid UTF-8", ErrSyntax)
	}

	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '\'' || c == '"':
			end := strings.IndexByte(src[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated string at offset %d", ErrSyntax, i)
			}
			toks = append(toks, token{tokString, src[i+1 : i+1+end], i})
			i += end + 2
		case strings.ContainsRune("=!<>", rune(c)):
			op := string(c)
			if i+1 < len(src) && src[i+1] == '=' {
				op += "="
			}
			if op == "=" {
				return nil, fmt.Errorf("%w: single '=' at offset %d, use '=='", ErrSyntax, i)
			}
			toks = append(toks, token{tokOp, op, i})
			i += len(op)
		case c == '-' || c == '.' || unicode.IsDigit(rune(c)):
			start := i
			i++
			for i < len(src) && (unicode.IsDigit(rune(src[i])) || src[i] == '.' || src[i] == 'e' || src[i] == 'E') {
				i++
			}
			toks = append(toks, token{tokNumber, src[start:i], start})
		case c == '_' || c >= utf8.RuneSelf || unicode.IsLetter(rune(c)):
			start := i
			for i < len(src) {
				r, size := utf8.DecodeRuneInString(src[i:])
				if r != '_' && r != '.' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += size
			}
			if i == start {
				r, _ := utf8.DecodeRuneInString(src[i:])
				return nil, fmt.Errorf("%w: unexpected character %q at offset %d", ErrSyntax, r, i)
			}
			word := src[start:i]
			if strings.HasSuffix(word, ".") || strings.Contains(word, "..") {
				return nil, fmt.Errorf("%w: empty path segment in %q at offset %d", ErrSyntax, word, start)
			}
			switch word {
			case "and", "or", "not", "contains":
				toks = append(toks, token{tokOp, word, start})
			default:
				toks = append(toks, token{tokIdent, word, start})
			}
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at offset %d", ErrSyntax, c, i)
		}
	}
	return append(toks, token{tokEOF, "", len(src)}), nil
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

func (p *parser) accept(op string) bool {
	if tok := p.peek(); tok.kind == tokOp && tok.text == op {
		p.pos++
		return true
	}
	return false
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d", ErrSyntax, fmt.Sprintf(format, args...), tok.pos)
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.accept("and") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.accept("not") || p.accept("!") {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.kind != tokOp {
		return left, nil
	}
	switch tok.text {
	case "==", "!=", "<", ">", "<=", ">=", "contains":
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return compareNode{op: tok.text, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseOperand() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokString:
		return literal{tok.text}, nil
	case tokNumber:
		if n, err := strconv.ParseInt(tok.text, 10, 64); err == nil {
			return literal{n}, nil
		}
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, p.errorf(tok, "bad number %q", tok.text)
		}
		return literal{f}, nil
	case tokIdent:
		switch tok.text {
		case "true":
			return literal{true}, nil
		case "false":
			return literal{false}, nil
		case "null", "nil":
			return literal{nil}, nil
		}
		return path(strings.Split(tok.text, ".")), nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected ')'")
		}
		return inner, nil
	case tokEOF:
		return nil, p.errorf(tok, "unexpected end of condition")
	}
	return nil, p.errorf(tok, "unexpected %q", tok.text)
}
