// Package core implements the pattern store: a prefix-sharing structural
// index over canonicalized fragments, with unification queries.
package core

import (
	"fmt"
	"strings"

	"github.com/wardlang/wci/internal/parser"
	"github.com/wardlang/wci/internal/types"
)

// TokenKind identifies the closed set of canonical token variants.
type TokenKind uint8

const (
	TokenAtom  TokenKind = iota // symbol identifier
	TokenOpen                   // structural arity marker, opens a nested shape
	TokenClose                  // closes the innermost nested shape
	TokenLit                    // literal value (string or number)
	TokenVar                    // free variable, valid in query patterns only
)

func (k TokenKind) String() string {
	switch k {
	case TokenAtom:
		return "atom"
	case TokenOpen:
		return "open"
	case TokenClose:
		return "close"
	case TokenLit:
		return "lit"
	case TokenVar:
		return "var"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Token is one element of a canonical token sequence. Text carries the atom
// name, literal value, or variable name; Arity is meaningful for TokenOpen.
// The zero Arity on non-open tokens keeps Token comparable and usable as a
// trie edge key.
type Token struct {
	Kind  TokenKind
	Text  string
	Arity int
}

func (t Token) String() string {
	switch t.Kind {
	case TokenOpen:
		return fmt.Sprintf("(%d", t.Arity)
	case TokenClose:
		return ")"
	case TokenVar:
		return "?" + t.Text
	case TokenLit:
		return "·" + t.Text
	default:
		return t.Text
	}
}

// Atom, Lit, Open, Close, Var are token constructors.
func Atom(text string) Token { return Token{Kind: TokenAtom, Text: text} }
func Lit(text string) Token  { return Token{Kind: TokenLit, Text: text} }
func Open(arity int) Token   { return Token{Kind: TokenOpen, Arity: arity} }
func Close() Token           { return Token{Kind: TokenClose} }
func Var(name string) Token  { return Token{Kind: TokenVar, Text: name} }

// FragmentKind distinguishes the indexable construct a fragment encodes.
type FragmentKind uint8

const (
	FragmentDefinition FragmentKind = iota
	FragmentInvocation
)

// Marker atoms start every fragment so definitions and invocations never
// share a trie prefix.
const (
	markerDef  = "def"
	markerCall = "call"
)

// Fragment is the canonical token-sequence encoding of one indexable
// construct, tagged with its owning snapshot's identity for retraction.
type Fragment struct {
	Kind    FragmentKind
	Tokens  []Token
	Owner   types.FileID
	Gen     types.Generation
	Payload types.Location
}

func (f Fragment) String() string {
	parts := make([]string, len(f.Tokens))
	for i, t := range f.Tokens {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

// Extract canonicalizes every indexable construct of a parse tree into
// fragments: one definition fragment per contract plus one invocation
// fragment per call site in contract bodies.
func Extract(uri string, fileID types.FileID, gen types.Generation, tree *parser.Tree) []Fragment {
	var out []Fragment
	for _, c := range tree.Contracts() {
		name := c.HeaderName()
		if name == nil {
			continue
		}
		if frag, ok := encodeDefinition(uri, fileID, gen, c, name); ok {
			out = append(out, frag)
		}
		if body := c.Body(); body != nil {
			out = append(out, extractInvocations(uri, fileID, gen, body)...)
		}
	}
	return out
}

func encodeDefinition(uri string, fileID types.FileID, gen types.Generation, contract, name *parser.Node) (Fragment, bool) {
	params := contract.HeaderParams()
	arity := 0
	if params != nil {
		arity = len(params.Children)
	}

	tokens := []Token{Atom(markerDef), Atom(name.Text), Open(arity)}
	if params != nil {
		for _, p := range params.Children {
			tokens = append(tokens, Atom(p.Text))
		}
	}
	tokens = append(tokens, Close())

	return Fragment{
		Kind:    FragmentDefinition,
		Tokens:  tokens,
		Owner:   fileID,
		Gen:     gen,
		Payload: types.Location{URI: uri, Line: name.Span.Line, Column: name.Span.Column, Offset: name.Span.Start},
	}, true
}

func extractInvocations(uri string, fileID types.FileID, gen types.Generation, n *parser.Node) []Fragment {
	var out []Fragment
	if n.Kind == parser.KindInvocation {
		tokens := []Token{Atom(markerCall)}
		tokens = encodeExpr(tokens, n)
		out = append(out, Fragment{
			Kind:    FragmentInvocation,
			Tokens:  tokens,
			Owner:   fileID,
			Gen:     gen,
			Payload: types.Location{URI: uri, Line: n.Span.Line, Column: n.Span.Column, Offset: n.Span.Start},
		})
	}
	for _, c := range n.Children {
		out = append(out, extractInvocations(uri, fileID, gen, c)...)
	}
	return out
}

// encodeExpr appends the canonical encoding of one expression node. The
// switch is exhaustive over the expression kinds the parser can produce in
// a contract body; a new node kind must be given an encoding here.
func encodeExpr(tokens []Token, n *parser.Node) []Token {
	switch n.Kind {
	case parser.KindInvocation:
		tokens = append(tokens, Atom(n.Text), Open(len(n.Children)))
		for _, c := range n.Children {
			tokens = encodeExpr(tokens, c)
		}
		return append(tokens, Close())
	case parser.KindIdent:
		return append(tokens, Atom(n.Text))
	case parser.KindStringLit:
		return append(tokens, Lit(`"`+n.Text+`"`))
	case parser.KindNumberLit:
		return append(tokens, Lit(n.Text))
	case parser.KindError:
		// Error regions carry no structure worth indexing; encode a
		// placeholder literal so arity stays consistent.
		return append(tokens, Lit("\x00err"))
	default:
		panic(fmt.Sprintf("encodeExpr: unencodable node kind %s", n.Kind))
	}
}
