// internal/translate/parser.go
package translate

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/solatis/btmgen/internal/types"
)

/*
 * Recursive-descent parser for guard conditions.
 *
 * Grammar:
 *   Or    -> And ('||' And)*
 *   And   -> Cmp ('&&' Cmp)*
 *   Cmp   -> Value ('instanceof' Type | '==' Value | '!=' Value)?
 *   Value -> '(' Or ')' | Quoted | Number | Identifier
 *
 * Identifiers directly followed by '(' or '[' are rejected, so calls and
 * indexing never parse. The parser is all-or-nothing: the first failure
 * aborts and trailing input is an error.
 */

// Parse parses expr into a Node. Errors wrap types.ErrTranslationFailed.
func Parse(expr string) (Node, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%w: empty expression", types.ErrTranslationFailed)
	}
	p := &parser{input: []rune(expr)}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.atEnd() {
		return nil, p.errorf("unexpected trailing input %q", string(p.input[p.pos:]))
	}
	return n, nil
}

type parser struct {
	input []rune
	pos   int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: at offset %d: %s", types.ErrTranslationFailed, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) atEnd() bool {
	return p.pos >= len(p.input)
}

func (p *parser) peek() rune {
	if p.atEnd() {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) skipSpace() {
	for !p.atEnd() && unicode.IsSpace(p.input[p.pos]) {
		p.pos++
	}
}

// match consumes tok after optional whitespace.
func (p *parser) match(tok string) bool {
	p.skipSpace()
	r := []rune(tok)
	if p.pos+len(r) > len(p.input) {
		return false
	}
	for i, c := range r {
		if p.input[p.pos+i] != c {
			return false
		}
	}
	p.pos += len(r)
	return true
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Logical{Op: LogicalOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseCompare()
	if err != nil {
		return nil, err
	}
	for p.match("&&") {
		right, err := p.parseCompare()
		if err != nil {
			return nil, err
		}
		left = Logical{Op: LogicalAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseCompare() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	switch {
	case p.matchKeyword("instanceof"):
		p.skipSpace()
		typeName, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return InstanceOf{Value: left, TypeName: typeName}, nil
	case p.match("=="):
		right, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return Compare{Left: left, Right: right}, nil
	case p.match("!="):
		right, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return Compare{Negated: true, Left: left, Right: right}, nil
	}
	return left, nil
}

// matchKeyword is match that also requires a word boundary after kw.
func (p *parser) matchKeyword(kw string) bool {
	start := p.pos
	if !p.match(kw) {
		p.pos = start
		return false
	}
	if !p.atEnd() && isIdentPart(p.peek()) {
		p.pos = start
		return false
	}
	return true
}

func (p *parser) parsePrimary() (Node, error) {
	p.skipSpace()
	if p.peek() != '(' {
		return p.parseValue()
	}
	p.pos++
	inner, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() != ')' {
		return nil, p.errorf("expected ')'")
	}
	p.pos++
	return inner, nil
}

func (p *parser) parseValue() (Node, error) {
	p.skipSpace()
	if p.atEnd() {
		return nil, p.errorf("unexpected end of input")
	}
	c := p.peek()
	switch {
	case c == '"' || c == '\'':
		return p.parseQuoted()
	case c == '-' || unicode.IsDigit(c):
		return p.parseNumber()
	case isIdentStart(c):
		return p.parseIdent()
	}
	return nil, p.errorf("unexpected %q", c)
}

func (p *parser) parseQuoted() (Node, error) {
	quote := p.input[p.pos]
	start := p.pos
	p.pos++
	escaped := false
	for !p.atEnd() {
		c := p.input[p.pos]
		p.pos++
		if c == quote && !escaped {
			kind := LitString
			if quote == '\'' {
				kind = LitChar
			}
			return Literal{Kind: kind, Text: string(p.input[start:p.pos])}, nil
		}
		escaped = c == '\\' && !escaped
	}
	return nil, p.errorf("unterminated literal")
}

func (p *parser) parseNumber() (Node, error) {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	digits := false
	for !p.atEnd() {
		c := p.input[p.pos]
		if unicode.IsDigit(c) {
			digits = true
		} else if c != '.' {
			break
		}
		p.pos++
	}
	if !digits {
		return nil, p.errorf("malformed number")
	}
	return Literal{Kind: LitNumber, Text: string(p.input[start:p.pos])}, nil
}

func (p *parser) parseIdent() (Node, error) {
	start := p.pos
	p.pos++
	for !p.atEnd() && (isIdentPart(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	name := string(p.input[start:p.pos])

	look := p.pos
	for look < len(p.input) && unicode.IsSpace(p.input[look]) {
		look++
	}
	if look < len(p.input) && (p.input[look] == '(' || p.input[look] == '[') {
		return nil, p.errorf("call or index on %q is not allowed", name)
	}
	return Ident{Name: name}, nil
}

func (p *parser) parseType() (string, error) {
	if p.atEnd() || !isIdentStart(p.peek()) {
		return "", p.errorf("expected type name")
	}
	start := p.pos
	p.pos++
	for !p.atEnd() && (isIdentPart(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	return string(p.input[start:p.pos]), nil
}

func isIdentStart(c rune) bool {
	return unicode.IsLetter(c) || c == '_' || c == '$'
}

func isIdentPart(c rune) bool {
	return isIdentStart(c) || unicode.IsDigit(c)
}
