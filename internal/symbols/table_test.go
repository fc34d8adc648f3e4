package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardlang/wci/internal/parser"
	"github.com/wardlang/wci/internal/types"
)

func buildFrom(t *testing.T, src string) *Table {
	t.Helper()
	tree, diags := parser.Parse(src)
	require.Empty(t, diags)
	return Build("file:///test.ward", tree)
}

func TestBuild_PlainAndQuotedNamesShareCanonicalForm(t *testing.T) {
	table := buildFrom(t, `
contract foo(x) = x
contract "bar"(y) = y
`)

	require.Len(t, table.Definitions, 2)

	foo, ok := table.Lookup(types.CanonicalName("foo"))
	require.True(t, ok)
	assert.False(t, foo.Quoted)
	assert.Equal(t, 1, foo.Arity)

	bar, ok := table.Lookup(types.CanonicalName("bar"))
	require.True(t, ok, "quoted-name contract must resolve under its bare name")
	assert.True(t, bar.Quoted)
	assert.Equal(t, "file:///test.ward", bar.Location.URI)
}

func TestBuild_References(t *testing.T) {
	table := buildFrom(t, `contract caller(a) = all(foo(a), bar(a, 1))`)

	names := make([]types.CanonicalName, 0, len(table.References))
	for _, r := range table.References {
		names = append(names, r.Name)
	}
	assert.ElementsMatch(t, []types.CanonicalName{"all", "foo", "bar"}, names)
}

func TestBuild_BareIdentifiersAreNotReferences(t *testing.T) {
	table := buildFrom(t, `contract id(x) = x`)
	assert.Empty(t, table.References)
}

func TestBuild_DuplicateDefinitionKeepsFirst(t *testing.T) {
	table := buildFrom(t, `
contract dup(x) = x
contract dup(x, y) = x
`)

	require.Len(t, table.Definitions, 2)
	def, ok := table.Lookup(types.CanonicalName("dup"))
	require.True(t, ok)
	assert.Equal(t, 1, def.Arity, "lookup must return the first definition")

	assert.Equal(t, []types.CanonicalName{"dup"}, table.Names())
}

func TestBuild_MalformedContractSkipped(t *testing.T) {
	tree, _ := parser.Parse(`contract ( = nope
contract ok(x) = x`)
	table := Build("file:///broken.ward", tree)

	_, ok := table.Lookup(types.CanonicalName("ok"))
	assert.True(t, ok)
	assert.Len(t, table.Definitions, 1)
}
