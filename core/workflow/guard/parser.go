package guard

import (
	"fmt"
	"strings"
)

type node interface{}

type (
	literalNode struct{ val interface{} }
	fieldNode   struct{ path []string }
	listNode    struct{ items []node }
	notNode     struct{ x node }
	negNode     struct{ x node }
	logicNode   struct {
		op   tokenKind // tokAnd | tokOr
		l, r node
	}
	compareNode struct {
		op     tokenKind
		negate bool // "not in"
		l, r   node
	}
)

type parser struct {
	toks []token
	pos  int
}

func parse(src string) (node, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if p.peek().kind == tokEOF {
		return nil, &SyntaxError{Pos: 0, Msg: "empty expression"}
	}
	n, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.unexpected(tok)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(offset int) token {
	if i := p.pos + offset; i < len(p.toks) {
		return p.toks[i]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) advance() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind) error {
	if tok := p.peek(); tok.kind != kind {
		return &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("expected %s, found %s", kind, describe(tok))}
	}
	p.advance()
	return nil
}

func (p *parser) unexpected(tok token) error {
	return &SyntaxError{Pos: tok.pos, Msg: "unexpected " + describe(tok)}
}

func describe(tok token) string {
	switch tok.kind {
	case tokIdent, tokNumber:
		return fmt.Sprintf("%s %q", tok.kind, tok.text)
	case tokString:
		return fmt.Sprintf("string %q", tok.text)
	}
	return fmt.Sprintf("%q", tok.kind.String())
}

func (p *parser) orExpr() (node, error) {
	l, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.advance()
		r, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		l = logicNode{op: tokOr, l: l, r: r}
	}
	return l, nil
}

func (p *parser) andExpr() (node, error) {
	l, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.advance()
		r, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		l = logicNode{op: tokAnd, l: l, r: r}
	}
	return l, nil
}

func (p *parser) notExpr() (node, error) {
	if p.peek().kind == tokNot {
		p.advance()
		x, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return notNode{x: x}, nil
	}
	return p.compareExpr()
}

func (p *parser) compareExpr() (node, error) {
	l, err := p.operand()
	if err != nil {
		return nil, err
	}

	tok := p.peek()
	switch tok.kind {
	case tokEq, tokNe, tokLt, tokLe, tokGt, tokGe, tokIn:
		p.advance()
		r, err := p.operand()
		if err != nil {
			return nil, err
		}
		return compareNode{op: tok.kind, l: l, r: r}, nil
	case tokNot:
		if p.peekAt(1).kind != tokIn {
			return nil, p.unexpected(tok)
		}
		p.advance()
		p.advance()
		r, err := p.operand()
		if err != nil {
			return nil, err
		}
		return compareNode{op: tokIn, negate: true, l: l, r: r}, nil
	}
	return l, nil
}

func (p *parser) operand() (node, error) {
	tok := p.advance()
	switch tok.kind {
	case tokNumber:
		return literalNode{val: tok.num}, nil
	case tokString:
		return literalNode{val: tok.text}, nil
	case tokTrue:
		return literalNode{val: true}, nil
	case tokFalse:
		return literalNode{val: false}, nil
	case tokNull:
		return literalNode{val: nil}, nil
	case tokIdent:
		return fieldNode{path: strings.Split(tok.text, ".")}, nil
	case tokMinus:
		x, err := p.operand()
		if err != nil {
			return nil, err
		}
		return negNode{x: x}, nil
	case tokLParen:
		n, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		if err = p.expect(tokRParen); err != nil {
			return nil, err
		}
		return n, nil
	case tokLBrack:
		var items []node
		if p.peek().kind != tokRBrack {
			for {
				item, err := p.operand()
				if err != nil {
					return nil, err
				}
				items = append(items, item)
				if p.peek().kind != tokComma {
					break
				}
				p.advance()
			}
		}
		if err := p.expect(tokRBrack); err != nil {
			return nil, err
		}
		return listNode{items: items}, nil
	}
	return nil, p.unexpected(tok)
}
