package guard

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokTrue
	tokFalse
	tokNull
	tokAnd
	tokOr
	tokNot
	tokIn
	tokEq
	tokNe
	tokLt
	tokLe
	tokGt
	tokGe
	tokMinus
	tokLParen
	tokRParen
	tokLBrack
	tokRBrack
	tokComma
)

var tokenNames = map[tokenKind]string{
	tokEOF: "end of expression", tokIdent: "field", tokNumber: "number", tokString: "string",
	tokTrue: "True", tokFalse: "False", tokNull: "None", tokAnd: "and", tokOr: "or", tokNot: "not",
	tokIn: "in", tokEq: "==", tokNe: "!=", tokLt: "<", tokLe: "<=", tokGt: ">", tokGe: ">=",
	tokMinus: "-", tokLParen: "(", tokRParen: ")", tokLBrack: "[", tokRBrack: "]", tokComma: ",",
}

func (k tokenKind) String() string { return tokenNames[k] }

var keywords = map[string]tokenKind{
	"and": tokAnd, "or": tokOr, "not": tokNot, "in": tokIn,
	"True": tokTrue, "true": tokTrue, "False": tokFalse, "false": tokFalse,
	"None": tokNull, "null": tokNull,
}

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// SyntaxError reports a malformed guard expression.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Msg)
}

type lexer struct {
	src string
	pos int
}

func tokenize(src string) ([]token, error) {
	lx := &lexer{src: src}
	var toks []token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

func (lx *lexer) peekRune() (rune, int) {
	if lx.pos >= len(lx.src) {
		return utf8.RuneError, 0
	}
	return utf8.DecodeRuneInString(lx.src[lx.pos:])
}

func (lx *lexer) next() (token, error) {
	for {
		r, w := lx.peekRune()
		if w == 0 || !unicode.IsSpace(r) {
			break
		}
		lx.pos += w
	}

	start := lx.pos
	r, w := lx.peekRune()
	if w == 0 {
		return token{kind: tokEOF, pos: start}, nil
	}

	switch {
	case r == '_' || unicode.IsLetter(r):
		return lx.ident(), nil
	case unicode.IsDigit(r):
		return lx.number()
	case r == '\'' || r == '"':
		return lx.str(r)
	}

	two := ""
	if lx.pos+2 <= len(lx.src) {
		two = lx.src[lx.pos : lx.pos+2]
	}
	switch two {
	case "==":
		lx.pos += 2
		return token{kind: tokEq, text: two, pos: start}, nil
	case "!=":
		lx.pos += 2
		return token{kind: tokNe, text: two, pos: start}, nil
	case "<=":
		lx.pos += 2
		return token{kind: tokLe, text: two, pos: start}, nil
	case ">=":
		lx.pos += 2
		return token{kind: tokGe, text: two, pos: start}, nil
	case "&&":
		lx.pos += 2
		return token{kind: tokAnd, text: two, pos: start}, nil
	case "||":
		lx.pos += 2
		return token{kind: tokOr, text: two, pos: start}, nil
	}

	single := map[rune]tokenKind{
		'<': tokLt, '>': tokGt, '!': tokNot, '-': tokMinus,
		'(': tokLParen, ')': tokRParen, '[': tokLBrack, ']': tokRBrack, ',': tokComma,
	}
	if kind, ok := single[r]; ok {
		lx.pos += w
		return token{kind: kind, text: string(r), pos: start}, nil
	}
	return token{}, &SyntaxError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", r)}
}

// ident scans a dotted field path (record.state) or a keyword.
func (lx *lexer) ident() token {
	start := lx.pos
	for {
		r, w := lx.peekRune()
		if w == 0 {
			break
		}
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			lx.pos += w
			continue
		}
		// a dot continues the path only when followed by another identifier
		if r == '.' && lx.pos+1 < len(lx.src) {
			nr, _ := utf8.DecodeRuneInString(lx.src[lx.pos+1:])
			if nr == '_' || unicode.IsLetter(nr) {
				lx.pos += w
				continue
			}
		}
		break
	}
	text := lx.src[start:lx.pos]
	if kind, ok := keywords[text]; ok {
		return token{kind: kind, text: text, pos: start}
	}
	return token{kind: tokIdent, text: text, pos: start}
}

func (lx *lexer) number() (token, error) {
	start := lx.pos
	seenDot := false
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if c >= '0' && c <= '9' {
			lx.pos++
			continue
		}
		if c == '.' && !seenDot {
			seenDot = true
			lx.pos++
			continue
		}
		break
	}
	text := lx.src[start:lx.pos]
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, &SyntaxError{Pos: start, Msg: fmt.Sprintf("invalid number %q", text)}
	}
	return token{kind: tokNumber, text: text, num: n, pos: start}, nil
}

func (lx *lexer) str(quote rune) (token, error) {
	start := lx.pos
	lx.pos++ // opening quote
	var sb strings.Builder
	for {
		r, w := lx.peekRune()
		if w == 0 {
			return token{}, &SyntaxError{Pos: start, Msg: "unterminated string"}
		}
		lx.pos += w
		if r == quote {
			return token{kind: tokString, text: sb.String(), pos: start}, nil
		}
		if r == '\\' {
			esc, ew := lx.peekRune()
			if ew == 0 {
				return token{}, &SyntaxError{Pos: start, Msg: "unterminated string"}
			}
			lx.pos += ew
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '\\', '\'', '"':
				sb.WriteRune(esc)
			default:
				return token{}, &SyntaxError{Pos: lx.pos - ew, Msg: fmt.Sprintf("unknown escape \\%c", esc)}
			}
			continue
		}
		sb.WriteRune(r)
	}
}
