package core

import (
	"sort"
	"strings"
)

// Bindings maps free variable names to the canonical token subsequence each
// one bound to. A repeated variable carries a single entry: unification
// rejects any fragment where two occurrences would bind differently.
type Bindings map[string][]Token

// Get renders the bound value of a variable, or ("", false).
func (b Bindings) Get(name string) (string, bool) {
	toks, ok := b[name]
	if !ok {
		return "", false
	}
	return renderTokens(toks), true
}

// Names returns the bound variable names, sorted.
func (b Bindings) Names() []string {
	out := make([]string, 0, len(b))
	for name := range b {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func renderTokens(toks []Token) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

// Unify matches a query pattern against a stored fragment sequence. Literal
// tokens match exactly, open markers match by arity, and variables bind to
// the complete subterm at their position. Returns the bindings on success.
//
// The pattern must already be validated; Unify assumes structural sanity
// and only answers match/no-match.
func Unify(pattern, frag []Token) (Bindings, bool) {
	bindings := make(Bindings)
	pi, fi := 0, 0
	for pi < len(pattern) {
		if fi >= len(frag) {
			return nil, false
		}
		pt := pattern[pi]
		switch pt.Kind {
		case TokenVar:
			span := bindableSpan(pattern, pi, frag, fi)
			if span == 0 {
				return nil, false
			}
			bound := frag[fi : fi+span]
			if prev, seen := bindings[pt.Text]; seen {
				if !tokensEqual(prev, bound) {
					return nil, false
				}
			} else {
				bindings[pt.Text] = bound
			}
			pi++
			fi += span
		case TokenAtom, TokenLit, TokenClose:
			if frag[fi] != pt {
				return nil, false
			}
			pi++
			fi++
		case TokenOpen:
			if frag[fi].Kind != TokenOpen || frag[fi].Arity != pt.Arity {
				return nil, false
			}
			pi++
			fi++
		default:
			return nil, false
		}
	}
	if fi != len(frag) {
		return nil, false
	}
	return bindings, true
}

// bindableSpan computes how many fragment tokens the variable at pattern[pi]
// consumes. Normally a variable binds one complete subterm; in head position
// (the pattern continues with an open marker, as in ?f(x)) it binds only the
// callee atom so the arity marker still matches structurally.
func bindableSpan(pattern []Token, pi int, frag []Token, fi int) int {
	headPosition := pi+1 < len(pattern) && pattern[pi+1].Kind == TokenOpen
	if headPosition {
		if frag[fi].Kind != TokenAtom {
			return 0
		}
		return 1
	}
	return termSpan(frag, fi)
}

// termSpan returns the length of the complete subterm starting at frag[fi],
// or 0 when fi does not start a term. An atom directly followed by an open
// marker is an invocation head: the term runs through the matching close.
func termSpan(frag []Token, fi int) int {
	if fi >= len(frag) {
		return 0
	}
	switch frag[fi].Kind {
	case TokenLit:
		return 1
	case TokenAtom:
		if fi+1 < len(frag) && frag[fi+1].Kind == TokenOpen {
			end := matchingClose(frag, fi+1)
			if end < 0 {
				return 0
			}
			return end + 1 - fi
		}
		return 1
	case TokenOpen:
		end := matchingClose(frag, fi)
		if end < 0 {
			return 0
		}
		return end + 1 - fi
	default:
		return 0
	}
}

// matchingClose returns the index of the close token balancing the open
// marker at frag[openIdx], or -1.
func matchingClose(frag []Token, openIdx int) int {
	depth := 0
	for i := openIdx; i < len(frag); i++ {
		switch frag[i].Kind {
		case TokenOpen:
			depth++
		case TokenClose:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func tokensEqual(a, b []Token) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
