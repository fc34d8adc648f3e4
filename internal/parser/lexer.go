package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokComma
	tokEquals
	tokKwContract
	tokInvalid
)

type token struct {
	kind   tokenKind
	text   string // decoded value for ident/string/number
	offset int
	line   int
	column int
}

type lexer struct {
	src    string
	pos    int
	line   int
	col    int
	errs   []Diagnostic
	peeked *token
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) peek() token {
	if l.peeked == nil {
		t := l.lex()
		l.peeked = &t
	}
	return *l.peeked
}

func (l *lexer) next() token {
	if l.peeked != nil {
		t := *l.peeked
		l.peeked = nil
		return t
	}
	return l.lex()
}

func (l *lexer) advance(n int) {
	for i := 0; i < n; i++ {
		if l.src[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func (l *lexer) skipTrivia() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance(1)
		case c == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance(1)
			}
		default:
			return
		}
	}
}

func (l *lexer) lex() token {
	l.skipTrivia()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, offset: l.pos, line: l.line, column: l.col}
	}

	start, line, col := l.pos, l.line, l.col
	c := l.src[l.pos]

	switch c {
	case '(':
		l.advance(1)
		return token{kind: tokLParen, offset: start, line: line, column: col}
	case ')':
		l.advance(1)
		return token{kind: tokRParen, offset: start, line: line, column: col}
	case ',':
		l.advance(1)
		return token{kind: tokComma, offset: start, line: line, column: col}
	case '=':
		l.advance(1)
		return token{kind: tokEquals, offset: start, line: line, column: col}
	case '"':
		return l.lexString(start, line, col)
	}

	if c >= '0' && c <= '9' || (c == '-' && l.pos+1 < len(l.src) && l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9') {
		return l.lexNumber(start, line, col)
	}

	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	if isIdentStart(r) {
		return l.lexIdent(start, line, col)
	}

	l.errs = append(l.errs, Diagnostic{
		Message: "unexpected character " + describeRune(r),
		Line:    line, Column: col, Offset: start,
	})
	l.advance(utf8.RuneLen(r))
	return token{kind: tokInvalid, text: string(r), offset: start, line: line, column: col}
}

func (l *lexer) lexString(start, line, col int) token {
	l.advance(1) // opening quote
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '"' {
			l.advance(1)
			return token{kind: tokString, text: sb.String(), offset: start, line: line, column: col}
		}
		if c == '\\' && l.pos+1 < len(l.src) {
			esc := l.src[l.pos+1]
			switch esc {
			case '"', '\\':
				sb.WriteByte(esc)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte('\\')
				sb.WriteByte(esc)
			}
			l.advance(2)
			continue
		}
		if c == '\n' {
			break
		}
		sb.WriteByte(c)
		l.advance(1)
	}
	l.errs = append(l.errs, Diagnostic{
		Message: "unterminated string literal",
		Line:    line, Column: col, Offset: start,
	})
	return token{kind: tokString, text: sb.String(), offset: start, line: line, column: col}
}

func (l *lexer) lexNumber(start, line, col int) token {
	if l.src[l.pos] == '-' {
		l.advance(1)
	}
	for l.pos < len(l.src) && (l.src[l.pos] >= '0' && l.src[l.pos] <= '9' || l.src[l.pos] == '.') {
		l.advance(1)
	}
	return token{kind: tokNumber, text: l.src[start:l.pos], offset: start, line: line, column: col}
}

func (l *lexer) lexIdent(start, line, col int) token {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isIdentPart(r) {
			break
		}
		l.advance(size)
	}
	text := l.src[start:l.pos]
	kind := tokIdent
	if text == "contract" {
		kind = tokKwContract
	}
	return token{kind: kind, text: text, offset: start, line: line, column: col}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func describeRune(r rune) string {
	if unicode.IsPrint(r) {
		return "'" + string(r) + "'"
	}
	return "(non-printable)"
}
