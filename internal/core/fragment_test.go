package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardlang/wci/internal/parser"
	"github.com/wardlang/wci/internal/types"
)

func extractFrom(t *testing.T, src string) []Fragment {
	t.Helper()
	tree, diags := parser.Parse(src)
	require.Empty(t, diags)
	return Extract("file:///t.ward", types.FileID(1), types.Generation(1), tree)
}

func fragmentsOfKind(frags []Fragment, kind FragmentKind) []Fragment {
	var out []Fragment
	for _, f := range frags {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func TestExtract_DefinitionFragment(t *testing.T) {
	frags := extractFrom(t, `contract foo(x, y) = x`)

	defs := fragmentsOfKind(frags, FragmentDefinition)
	require.Len(t, defs, 1)

	want := []Token{Atom("def"), Atom("foo"), Open(2), Atom("x"), Atom("y"), Close()}
	assert.Equal(t, want, defs[0].Tokens)
	assert.Equal(t, types.FileID(1), defs[0].Owner)
	assert.Equal(t, "file:///t.ward", defs[0].Payload.URI)
}

func TestExtract_QuotedNameEncodesBareAtom(t *testing.T) {
	frags := extractFrom(t, `contract "bar"(y) = y`)

	defs := fragmentsOfKind(frags, FragmentDefinition)
	require.Len(t, defs, 1)
	assert.Equal(t, Atom("bar"), defs[0].Tokens[1],
		"quoted and plain definitions must share one canonical encoding")
}

func TestExtract_InvocationFragments(t *testing.T) {
	frags := extractFrom(t, `contract pay(a) = all(positive(a), below(a, 100))`)

	calls := fragmentsOfKind(frags, FragmentInvocation)
	// all(...), positive(a), below(a, 100) - nested invocations index separately.
	require.Len(t, calls, 3)

	outer := calls[0]
	want := []Token{
		Atom("call"), Atom("all"), Open(2),
		Atom("positive"), Open(1), Atom("a"), Close(),
		Atom("below"), Open(2), Atom("a"), Lit("100"), Close(),
		Close(),
	}
	assert.Equal(t, want, outer.Tokens)
}

func TestExtract_StringLiteralArgument(t *testing.T) {
	frags := extractFrom(t, `contract c(x) = tagged(x, "audit")`)

	calls := fragmentsOfKind(frags, FragmentInvocation)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Tokens, Lit(`"audit"`))
}

func TestExtract_MalformedContractProducesNoFragments(t *testing.T) {
	tree, _ := parser.Parse(`contract ( = nope`)
	frags := Extract("file:///b.ward", 1, 1, tree)
	assert.Empty(t, frags)
}
