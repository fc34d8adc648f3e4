package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// callTokens builds an invocation token sequence for tests.
func callTokens(toks ...Token) []Token {
	return append([]Token{Atom("call")}, toks...)
}

func TestUnify_ExactMatch(t *testing.T) {
	frag := callTokens(Atom("foo"), Open(1), Atom("x"), Close())
	bindings, ok := Unify(frag, frag)
	require.True(t, ok)
	assert.Empty(t, bindings)
}

func TestUnify_VariableBindsAtom(t *testing.T) {
	frag := callTokens(Atom("foo"), Open(1), Atom("x"), Close())
	pattern := callTokens(Atom("foo"), Open(1), Var("a"), Close())

	bindings, ok := Unify(pattern, frag)
	require.True(t, ok)
	v, found := bindings.Get("a")
	require.True(t, found)
	assert.Equal(t, "x", v)
}

func TestUnify_VariableBindsNestedShape(t *testing.T) {
	frag := callTokens(Atom("all"), Open(2),
		Atom("positive"), Open(1), Atom("a"), Close(),
		Lit("100"),
		Close())
	pattern := callTokens(Atom("all"), Open(2), Var("cond"), Var("limit"), Close())

	bindings, ok := Unify(pattern, frag)
	require.True(t, ok)

	cond, _ := bindings.Get("cond")
	assert.Equal(t, "positive (1 a )", cond)
	limit, _ := bindings.Get("limit")
	assert.Equal(t, "·100", limit)
}

func TestUnify_RepeatedVariableMustBindConsistently(t *testing.T) {
	pattern := callTokens(Atom("eq"), Open(2), Var("v"), Var("v"), Close())

	same := callTokens(Atom("eq"), Open(2), Atom("x"), Atom("x"), Close())
	_, ok := Unify(pattern, same)
	assert.True(t, ok, "equal substructures must unify")

	diff := callTokens(Atom("eq"), Open(2), Atom("x"), Atom("y"), Close())
	_, ok = Unify(pattern, diff)
	assert.False(t, ok, "a repeated variable must not bind two different substructures")
}

func TestUnify_RepeatedVariableOverNestedShapes(t *testing.T) {
	shape := []Token{Atom("inc"), Open(1), Atom("n"), Close()}
	frag := callTokens(Atom("eq"), Open(2))
	frag = append(frag, shape...)
	frag = append(frag, shape...)
	frag = append(frag, Close())

	pattern := callTokens(Atom("eq"), Open(2), Var("v"), Var("v"), Close())
	_, ok := Unify(pattern, frag)
	assert.True(t, ok)
}

func TestUnify_HeadPositionVariable(t *testing.T) {
	frag := callTokens(Atom("below"), Open(2), Atom("a"), Lit("100"), Close())
	pattern := callTokens(Var("f"), Open(2), Var("x"), Var("y"), Close())

	bindings, ok := Unify(pattern, frag)
	require.True(t, ok)
	f, _ := bindings.Get("f")
	assert.Equal(t, "below", f)
}

func TestUnify_ArityMismatchRejected(t *testing.T) {
	frag := callTokens(Atom("foo"), Open(2), Atom("a"), Atom("b"), Close())
	pattern := callTokens(Atom("foo"), Open(1), Var("x"), Close())

	_, ok := Unify(pattern, frag)
	assert.False(t, ok)
}

func TestUnify_LiteralMismatchRejected(t *testing.T) {
	frag := callTokens(Atom("foo"), Open(1), Lit("100"), Close())
	pattern := callTokens(Atom("foo"), Open(1), Lit("200"), Close())

	_, ok := Unify(pattern, frag)
	assert.False(t, ok)
}

func TestUnify_BareVariableBindsWholeInvocation(t *testing.T) {
	frag := callTokens(Atom("foo"), Open(1), Atom("x"), Close())
	pattern := []Token{Atom("call"), Var("whole")}

	bindings, ok := Unify(pattern, frag)
	require.True(t, ok)
	whole, _ := bindings.Get("whole")
	assert.Equal(t, "foo (1 x )", whole)
}

func TestUnify_ShorterFragmentRejected(t *testing.T) {
	frag := callTokens(Atom("foo"))
	pattern := callTokens(Atom("foo"), Open(1), Var("x"), Close())

	_, ok := Unify(pattern, frag)
	assert.False(t, ok)
}
