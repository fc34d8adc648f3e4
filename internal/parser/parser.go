package parser

import (
	"fmt"
)

// Parse builds an immutable parse tree from Ward source text. Parsing is
// error tolerant: malformed regions become KindError nodes accompanied by
// diagnostics, and parsing resumes at the next contract keyword. Parse
// never returns a nil tree.
func Parse(text string) (*Tree, []Diagnostic) {
	p := &parser{lx: newLexer(text)}
	root := p.parseFile()
	diags := append(p.lx.errs, p.errs...)
	return &Tree{Root: root, Source: text}, diags
}

// Reparse applies an edit to a previously parsed tree's source and parses
// the result. The old tree is left untouched. Incrementality is at the
// interface level only: the implementation reparses the full text.
func Reparse(old *Tree, edit Edit) (*Tree, []Diagnostic) {
	if old == nil {
		return Parse(edit.NewText)
	}
	src := old.Source
	start, end := edit.Start, edit.End
	if start < 0 {
		start = 0
	}
	if end > len(src) {
		end = len(src)
	}
	if start > end {
		start = end
	}
	return Parse(src[:start] + edit.NewText + src[end:])
}

type parser struct {
	lx   *lexer
	errs []Diagnostic
}

func (p *parser) errorf(t token, format string, args ...interface{}) {
	p.errs = append(p.errs, Diagnostic{
		Message: fmt.Sprintf(format, args...),
		Line:    t.line,
		Column:  t.column,
		Offset:  t.offset,
	})
}

func spanFrom(t token) Span {
	return Span{Start: t.offset, End: t.offset, Line: t.line, Column: t.column}
}

func (p *parser) parseFile() *Node {
	file := &Node{Kind: KindFile, Span: Span{Line: 1, Column: 1}}
	for {
		t := p.lx.peek()
		if t.kind == tokEOF {
			file.Span.End = t.offset
			return file
		}
		if t.kind == tokKwContract {
			file.Children = append(file.Children, p.parseContract())
			continue
		}
		// Anything else at top level is an error region up to the next
		// contract keyword.
		p.errorf(t, "expected 'contract', found %s", tokenDesc(t))
		file.Children = append(file.Children, p.recoverToContract(t))
	}
}

func (p *parser) recoverToContract(first token) *Node {
	n := &Node{Kind: KindError, Span: spanFrom(first)}
	for {
		t := p.lx.peek()
		if t.kind == tokEOF || t.kind == tokKwContract {
			n.Span.End = t.offset
			return n
		}
		p.lx.next()
	}
}

func (p *parser) parseContract() *Node {
	kw := p.lx.next() // contract keyword
	n := &Node{Kind: KindContract, Span: spanFrom(kw)}

	// Name: plain identifier or quoted string; both carry the decoded name
	// in Text so downstream canonicalization sees one representation.
	t := p.lx.peek()
	switch t.kind {
	case tokIdent:
		p.lx.next()
		n.Children = append(n.Children, &Node{Kind: KindIdent, Text: t.text, Span: tokenSpan(t)})
	case tokString:
		p.lx.next()
		n.Children = append(n.Children, &Node{Kind: KindQuotedName, Text: t.text, Span: tokenSpan(t)})
	default:
		p.errorf(t, "expected contract name, found %s", tokenDesc(t))
		n.Children = append(n.Children, p.recoverToContract(t))
		n.Span.End = t.offset
		return n
	}

	params, ok := p.parseParams()
	n.Children = append(n.Children, params)
	if !ok {
		n.Children = append(n.Children, p.recoverToContract(p.lx.peek()))
		return n
	}

	eq := p.lx.peek()
	if eq.kind != tokEquals {
		p.errorf(eq, "expected '=', found %s", tokenDesc(eq))
		n.Children = append(n.Children, p.recoverToContract(eq))
		return n
	}
	p.lx.next()

	body := p.parseExpr()
	if body == nil {
		body = &Node{Kind: KindError, Span: spanFrom(p.lx.peek())}
	}
	n.Children = append(n.Children, body)
	n.Span.End = body.Span.End
	return n
}

func (p *parser) parseParams() (*Node, bool) {
	open := p.lx.peek()
	params := &Node{Kind: KindParams, Span: spanFrom(open)}
	if open.kind != tokLParen {
		p.errorf(open, "expected '(', found %s", tokenDesc(open))
		return params, false
	}
	p.lx.next()

	for {
		t := p.lx.peek()
		switch t.kind {
		case tokRParen:
			p.lx.next()
			params.Span.End = t.offset + 1
			return params, true
		case tokIdent:
			p.lx.next()
			params.Children = append(params.Children, &Node{Kind: KindIdent, Text: t.text, Span: tokenSpan(t)})
			if p.lx.peek().kind == tokComma {
				p.lx.next()
			}
		case tokEOF:
			p.errorf(t, "unterminated parameter list")
			return params, false
		default:
			p.errorf(t, "expected parameter name or ')', found %s", tokenDesc(t))
			return params, false
		}
	}
}

// parseExpr parses one expression: an identifier, a literal, or an
// invocation name(arg, ...). Arguments are themselves expressions, so
// invocations nest.
func (p *parser) parseExpr() *Node {
	t := p.lx.peek()
	switch t.kind {
	case tokIdent:
		p.lx.next()
		ident := &Node{Kind: KindIdent, Text: t.text, Span: tokenSpan(t)}
		if p.lx.peek().kind != tokLParen {
			return ident
		}
		return p.parseInvocation(ident)
	case tokString:
		p.lx.next()
		return &Node{Kind: KindStringLit, Text: t.text, Span: tokenSpan(t)}
	case tokNumber:
		p.lx.next()
		return &Node{Kind: KindNumberLit, Text: t.text, Span: tokenSpan(t)}
	default:
		p.errorf(t, "expected expression, found %s", tokenDesc(t))
		return nil
	}
}

func (p *parser) parseInvocation(callee *Node) *Node {
	p.lx.next() // '('
	inv := &Node{Kind: KindInvocation, Text: callee.Text, Span: callee.Span}

	for {
		t := p.lx.peek()
		switch t.kind {
		case tokRParen:
			p.lx.next()
			inv.Span.End = t.offset + 1
			return inv
		case tokEOF:
			p.errorf(t, "unterminated invocation of %q", callee.Text)
			inv.Span.End = t.offset
			return inv
		default:
			arg := p.parseExpr()
			if arg == nil {
				p.lx.next() // skip the offending token to guarantee progress
				continue
			}
			inv.Children = append(inv.Children, arg)
			if p.lx.peek().kind == tokComma {
				p.lx.next()
			}
		}
	}
}

func tokenSpan(t token) Span {
	end := t.offset + len(t.text)
	if t.kind == tokString {
		end = t.offset + len(t.text) + 2 // quotes are not part of the decoded text
	}
	return Span{Start: t.offset, End: end, Line: t.line, Column: t.column}
}

func tokenDesc(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of file"
	case tokIdent:
		return fmt.Sprintf("identifier %q", t.text)
	case tokString:
		return fmt.Sprintf("string %q", t.text)
	case tokNumber:
		return fmt.Sprintf("number %s", t.text)
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	case tokEquals:
		return "'='"
	case tokKwContract:
		return "'contract'"
	default:
		return fmt.Sprintf("%q", t.text)
	}
}
