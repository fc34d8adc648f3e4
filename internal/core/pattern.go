package core

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	wcierrors "github.com/wardlang/wci/internal/errors"
)

// ParsePattern compiles an invocation pattern like
//
//	transfer(?from, ?from, 100)
//
// into its canonical token sequence. Positions written as ?name are free
// variables; a repeated name must bind consistently. The callee itself may
// be a variable (?f(...) matches any invocation of the given arity).
// Malformed patterns return a typed QueryPatternError and never panic.
func ParsePattern(text string) ([]Token, error) {
	s := &patternScanner{src: text}
	s.skipSpace()
	if s.eof() {
		return nil, wcierrors.NewQueryPatternError(text, "empty pattern")
	}

	tokens := []Token{Atom(markerCall)}
	tokens, err := s.term(tokens, text)
	if err != nil {
		return nil, err
	}
	s.skipSpace()
	if !s.eof() {
		return nil, wcierrors.NewQueryPatternError(text, fmt.Sprintf("trailing input at offset %d", s.pos))
	}
	isShape := tokens[len(tokens)-1].Kind == TokenClose
	isBareVar := len(tokens) == 2 && tokens[1].Kind == TokenVar
	if !isShape && !isBareVar {
		return nil, wcierrors.NewQueryPatternError(text, "pattern must be an invocation shape or a single variable")
	}
	return tokens, nil
}

// ValidatePattern checks the structural sanity a stored or hand-built
// pattern must have before Unify may assume it: non-empty, balanced arity
// markers, and each open marker followed by exactly its arity in terms.
func ValidatePattern(tokens []Token) error {
	if len(tokens) == 0 {
		return wcierrors.NewQueryPatternError("", "empty pattern")
	}
	i := 0
	for i < len(tokens) {
		next, err := validateTerm(tokens, i)
		if err != nil {
			return err
		}
		i = next
	}
	return nil
}

func validateTerm(tokens []Token, i int) (int, error) {
	if i >= len(tokens) {
		return 0, wcierrors.NewQueryPatternError(renderTokens(tokens), "unexpected end of pattern")
	}
	switch tokens[i].Kind {
	case TokenLit:
		return i + 1, nil
	case TokenVar, TokenAtom:
		// A head position (atom or variable directly followed by an open
		// marker) spans the whole nested shape.
		if i+1 < len(tokens) && tokens[i+1].Kind == TokenOpen {
			return validateShape(tokens, i+1)
		}
		return i + 1, nil
	case TokenOpen:
		return validateShape(tokens, i)
	default:
		return 0, wcierrors.NewQueryPatternError(renderTokens(tokens),
			fmt.Sprintf("unexpected %s token at position %d", tokens[i].Kind, i))
	}
}

func validateShape(tokens []Token, openIdx int) (int, error) {
	arity := tokens[openIdx].Arity
	if arity < 0 {
		return 0, wcierrors.NewQueryPatternError(renderTokens(tokens), "negative arity marker")
	}
	i := openIdx + 1
	for n := 0; n < arity; n++ {
		next, err := validateTerm(tokens, i)
		if err != nil {
			return 0, err
		}
		i = next
	}
	if i >= len(tokens) || tokens[i].Kind != TokenClose {
		return 0, wcierrors.NewQueryPatternError(renderTokens(tokens), "unbalanced arity marker")
	}
	return i + 1, nil
}

type patternScanner struct {
	src string
	pos int
}

func (s *patternScanner) eof() bool { return s.pos >= len(s.src) }

func (s *patternScanner) skipSpace() {
	for !s.eof() && (s.src[s.pos] == ' ' || s.src[s.pos] == '\t' || s.src[s.pos] == '\n' || s.src[s.pos] == '\r') {
		s.pos++
	}
}

// term scans one pattern term and appends its canonical tokens.
func (s *patternScanner) term(tokens []Token, full string) ([]Token, error) {
	s.skipSpace()
	if s.eof() {
		return nil, wcierrors.NewQueryPatternError(full, "unexpected end of pattern")
	}

	c := s.src[s.pos]
	switch {
	case c == '?':
		s.pos++
		name := s.ident()
		if name == "" {
			return nil, wcierrors.NewQueryPatternError(full, "variable marker '?' without a name")
		}
		if s.peekByte() == '(' {
			return s.args(append(tokens, Var(name)), full)
		}
		return append(tokens, Var(name)), nil
	case c == '"':
		lit, ok := s.stringLit()
		if !ok {
			return nil, wcierrors.NewQueryPatternError(full, "unterminated string literal")
		}
		return append(tokens, Lit(`"`+lit+`"`)), nil
	case c >= '0' && c <= '9' || c == '-':
		return append(tokens, Lit(s.number())), nil
	default:
		name := s.ident()
		if name == "" {
			return nil, wcierrors.NewQueryPatternError(full, fmt.Sprintf("unexpected character %q at offset %d", c, s.pos))
		}
		if s.peekByte() == '(' {
			return s.args(append(tokens, Atom(name)), full)
		}
		return append(tokens, Atom(name)), nil
	}
}

// args scans a parenthesized argument list, patching the open marker's arity
// once the argument count is known.
func (s *patternScanner) args(tokens []Token, full string) ([]Token, error) {
	s.pos++ // '('
	openIdx := len(tokens)
	tokens = append(tokens, Open(0))

	arity := 0
	for {
		s.skipSpace()
		if s.eof() {
			return nil, wcierrors.NewQueryPatternError(full, "unterminated argument list")
		}
		if s.src[s.pos] == ')' {
			s.pos++
			tokens[openIdx].Arity = arity
			return append(tokens, Close()), nil
		}
		if arity > 0 {
			if s.src[s.pos] != ',' {
				return nil, wcierrors.NewQueryPatternError(full, fmt.Sprintf("expected ',' or ')' at offset %d", s.pos))
			}
			s.pos++
		}
		var err error
		tokens, err = s.term(tokens, full)
		if err != nil {
			return nil, err
		}
		arity++
	}
}

func (s *patternScanner) peekByte() byte {
	s.skipSpace()
	if s.eof() {
		return 0
	}
	return s.src[s.pos]
}

func (s *patternScanner) ident() string {
	start := s.pos
	for !s.eof() {
		r, size := utf8.DecodeRuneInString(s.src[s.pos:])
		if r != '_' && r != '-' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		s.pos += size
	}
	return s.src[start:s.pos]
}

func (s *patternScanner) number() string {
	start := s.pos
	if s.src[s.pos] == '-' {
		s.pos++
	}
	for !s.eof() && (s.src[s.pos] >= '0' && s.src[s.pos] <= '9' || s.src[s.pos] == '.') {
		s.pos++
	}
	return s.src[start:s.pos]
}

func (s *patternScanner) stringLit() (string, bool) {
	s.pos++ // opening quote
	var sb strings.Builder
	for !s.eof() {
		c := s.src[s.pos]
		if c == '"' {
			s.pos++
			return sb.String(), true
		}
		if c == '\\' && s.pos+1 < len(s.src) {
			sb.WriteByte(s.src[s.pos+1])
			s.pos += 2
			continue
		}
		sb.WriteByte(c)
		s.pos++
	}
	return "", false
}
