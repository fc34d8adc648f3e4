// Package symbols builds symbol tables from Ward parse trees: canonical
// contract names, their definitions, and every invocation site.
package symbols

import (
	"github.com/wardlang/wci/internal/parser"
	"github.com/wardlang/wci/internal/types"
)

// Table holds the named definitions and reference sites of one file.
type Table struct {
	Definitions []types.Definition
	References  []types.Reference

	byName map[types.CanonicalName]int
}

// Build walks a parse tree and extracts the symbol table. The uri is stamped
// into every location so the table is self-describing once detached from the
// tree.
func Build(uri string, tree *parser.Tree) *Table {
	t := &Table{byName: make(map[types.CanonicalName]int)}
	for _, c := range tree.Contracts() {
		name := c.HeaderName()
		if name == nil {
			continue
		}
		// The quoted form contract "bar"(...) and the plain form
		// contract bar(...) resolve to the same canonical key. Failing
		// to unwrap the quoted form would make the definition invisible
		// to every navigation feature.
		canonical := Canonicalize(name)

		arity := 0
		if params := c.HeaderParams(); params != nil {
			arity = len(params.Children)
		}

		def := types.Definition{
			Name:     canonical,
			Quoted:   name.Kind == parser.KindQuotedName,
			Arity:    arity,
			Location: spanLocation(uri, name.Span),
		}
		if _, dup := t.byName[canonical]; !dup {
			t.byName[canonical] = len(t.Definitions)
		}
		t.Definitions = append(t.Definitions, def)

		if body := c.Body(); body != nil {
			t.collectReferences(uri, body)
		}
	}
	return t
}

// FromParts rebuilds a table from persisted definitions and references,
// restoring the lookup index. Order is preserved.
func FromParts(defs []types.Definition, refs []types.Reference) *Table {
	t := &Table{
		Definitions: defs,
		References:  refs,
		byName:      make(map[types.CanonicalName]int, len(defs)),
	}
	for i, d := range defs {
		if _, dup := t.byName[d.Name]; !dup {
			t.byName[d.Name] = i
		}
	}
	return t
}

// Canonicalize maps a contract name node to its canonical key. Both the
// plain identifier and the quoted-string form yield the bare name.
func Canonicalize(name *parser.Node) types.CanonicalName {
	return types.CanonicalName(name.Text)
}

// Lookup returns the first definition of a canonical name in this file.
func (t *Table) Lookup(name types.CanonicalName) (types.Definition, bool) {
	if i, ok := t.byName[name]; ok {
		return t.Definitions[i], true
	}
	return types.Definition{}, false
}

// Names returns every defined canonical name, first-definition order.
func (t *Table) Names() []types.CanonicalName {
	out := make([]types.CanonicalName, 0, len(t.Definitions))
	seen := make(map[types.CanonicalName]bool, len(t.Definitions))
	for _, d := range t.Definitions {
		if !seen[d.Name] {
			seen[d.Name] = true
			out = append(out, d.Name)
		}
	}
	return out
}

func (t *Table) collectReferences(uri string, n *parser.Node) {
	switch n.Kind {
	case parser.KindInvocation:
		t.References = append(t.References, types.Reference{
			Name:     types.CanonicalName(n.Text),
			Location: spanLocation(uri, n.Span),
		})
		for _, c := range n.Children {
			t.collectReferences(uri, c)
		}
	case parser.KindIdent, parser.KindStringLit, parser.KindNumberLit, parser.KindError:
		// Bare identifiers in expression position are parameter uses,
		// not contract references.
	default:
		for _, c := range n.Children {
			t.collectReferences(uri, c)
		}
	}
}

func spanLocation(uri string, s parser.Span) types.Location {
	return types.Location{URI: uri, Line: s.Line, Column: s.Column, Offset: s.Start}
}
