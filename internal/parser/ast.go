// Package parser turns Ward source text into an immutable parse tree.
// The index core consumes it through the Parse/Reparse contract and never
// inspects source text directly.
package parser

import (
	"fmt"
)

// NodeKind identifies the closed set of parse tree node variants.
type NodeKind uint8

const (
	KindFile       NodeKind = iota // root node, children are contracts
	KindContract                   // contract <name>(<params>) = <body>
	KindIdent                      // bare identifier
	KindQuotedName                 // "name" in a contract header
	KindParams                     // parameter list of a contract header
	KindInvocation                 // name(arg, ...)
	KindStringLit                  // "..." in expression position
	KindNumberLit                  // numeric literal
	KindError                      // unparseable region, recovery resumes at the next contract
)

func (k NodeKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindContract:
		return "contract"
	case KindIdent:
		return "ident"
	case KindQuotedName:
		return "quoted_name"
	case KindParams:
		return "params"
	case KindInvocation:
		return "invocation"
	case KindStringLit:
		return "string"
	case KindNumberLit:
		return "number"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Span locates a node in the source text.
type Span struct {
	Start  int // byte offset, inclusive
	End    int // byte offset, exclusive
	Line   int // 1-based line of Start
	Column int // 1-based byte column of Start
}

// Node is one immutable parse tree node. Text holds the decoded token value
// for leaf kinds (identifier name, unquoted string value, number literal).
type Node struct {
	Kind     NodeKind
	Text     string
	Span     Span
	Children []*Node
}

// Tree is an immutable parse result. Source is retained so Reparse can apply
// an edit without the caller re-supplying the full text.
type Tree struct {
	Root   *Node
	Source string
}

// Diagnostic is one parse problem. Parsing is error tolerant: diagnostics
// accompany a tree, they never replace it.
type Diagnostic struct {
	Message string
	Line    int
	Column  int
	Offset  int
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d: %s", d.Line, d.Column, d.Message)
}

// Edit describes one contiguous text replacement for Reparse.
type Edit struct {
	Start   int // byte offset, inclusive
	End     int // byte offset, exclusive
	NewText string
}

// Contracts returns the contract nodes of a file tree, skipping error regions.
func (t *Tree) Contracts() []*Node {
	if t == nil || t.Root == nil {
		return nil
	}
	out := make([]*Node, 0, len(t.Root.Children))
	for _, c := range t.Root.Children {
		if c.Kind == KindContract {
			out = append(out, c)
		}
	}
	return out
}

// HeaderName returns the name node of a contract: either KindIdent or
// KindQuotedName. Returns nil for malformed contracts.
func (n *Node) HeaderName() *Node {
	if n == nil || n.Kind != KindContract || len(n.Children) == 0 {
		return nil
	}
	first := n.Children[0]
	if first.Kind == KindIdent || first.Kind == KindQuotedName {
		return first
	}
	return nil
}

// HeaderParams returns the parameter list node of a contract, or nil.
func (n *Node) HeaderParams() *Node {
	if n == nil || n.Kind != KindContract {
		return nil
	}
	for _, c := range n.Children {
		if c.Kind == KindParams {
			return c
		}
	}
	return nil
}

// Body returns the body expression of a contract, or nil. The body is the
// child following the parameter list.
func (n *Node) Body() *Node {
	if n == nil || n.Kind != KindContract {
		return nil
	}
	seenParams := false
	for _, c := range n.Children {
		if seenParams {
			return c
		}
		if c.Kind == KindParams {
			seenParams = true
		}
	}
	return nil
}
