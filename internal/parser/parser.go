// Package parser builds a script AST from tokens. It recovers from
// malformed input: each resynchronization produces one diagnostic and
// parsing continues, so a single bad line never blanks out the rest of
// a file.
package parser

import (
	"github.com/corvee/cwt/diag"
	"github.com/corvee/cwt/internal/ast"
	"github.com/corvee/cwt/internal/interner"
	"github.com/corvee/cwt/internal/lexer"
)

// Parse parses src into a root block plus parse-level diagnostics.
// The root block's span covers the whole input.
func Parse(src string) (*ast.Block, []diag.Diagnostic) {
	p := &parser{lex: lexer.New(src)}
	p.next()
	root := p.parseBlockBody(diag.Position{Line: 1, Column: 1}, true)
	return root, p.diags
}

type parser struct {
	lex     *lexer.Lexer
	tok     lexer.Token
	peeked  bool
	ahead   lexer.Token
	pending []ast.Comment
	diags   []diag.Diagnostic
}

// next advances to the next non-comment token, accumulating comments so
// they can be attached to the following entry.
func (p *parser) next() {
	if p.peeked {
		p.tok = p.ahead
		p.peeked = false
		return
	}
	p.tok = p.scan()
}

func (p *parser) scan() lexer.Token {
	for {
		tok := p.lex.Next()
		if tok.Kind == lexer.Comment {
			p.pending = append(p.pending, ast.Comment{Marker: tok.Marker, Text: tok.Text, Sp: tok.Span})
			continue
		}
		return tok
	}
}

// peek looks at the token after the current one.
func (p *parser) peek() lexer.Token {
	if !p.peeked {
		p.ahead = p.scan()
		p.peeked = true
	}
	return p.ahead
}

func (p *parser) takeComments() []ast.Comment {
	if len(p.pending) == 0 {
		return nil
	}
	out := p.pending
	p.pending = nil
	return out
}

// takeTrailing pops a pending comment that starts on the given line,
// which makes it a trailing comment of the entry just parsed.
func (p *parser) takeTrailing(line int) *ast.Comment {
	if len(p.pending) == 0 || p.pending[0].Sp.Start.Line != line {
		return nil
	}
	c := p.pending[0]
	p.pending = p.pending[1:]
	return &c
}

func (p *parser) errorf(span diag.Span, format string, args ...any) {
	p.diags = append(p.diags, diag.Newf(diag.CodeParseError, diag.SeverityError, span, format, args...))
}

func (p *parser) parseBlockBody(start diag.Position, topLevel bool) *ast.Block {
	blk := &ast.Block{Sp: diag.Span{Start: start, End: start}}

	for {
		leading := p.takeComments()

		switch p.tok.Kind {
		case lexer.EOF:
			if !topLevel {
				p.errorf(p.tok.Span, "missing closing brace")
			}
			blk.Sp.End = p.tok.Span.End
			return blk

		case lexer.RBrace:
			if topLevel {
				p.errorf(p.tok.Span, "unexpected closing brace")
				p.next()
				continue
			}
			blk.Sp.End = p.tok.Span.End
			p.next()
			return blk

		case lexer.LBrace, lexer.Maths:
			if item := p.parseValue(); item != nil {
				blk.Items = append(blk.Items, item)
			}

		case lexer.Ident, lexer.Number, lexer.String:
			if isColorModel(p.tok) && p.peek().Kind == lexer.LBrace {
				blk.Items = append(blk.Items, p.parseColor())
				continue
			}
			if p.peek().Kind == lexer.Operator {
				if entry, ok := p.parseEntry(leading); ok {
					blk.Entries = append(blk.Entries, entry)
				}
				continue
			}
			// Bare value: an array item.
			blk.Items = append(blk.Items, &ast.Scalar{
				Text:   p.tok.Text,
				Quoted: p.tok.Kind == lexer.String,
				Sp:     p.tok.Span,
			})
			p.next()

		default:
			p.errorf(p.tok.Span, "unexpected %s %q", p.tok.Kind, p.tok.Text)
			p.resync()
		}
	}
}

func (p *parser) parseEntry(leading []ast.Comment) (ast.Entry, bool) {
	key := ast.Scalar{Text: p.tok.Text, Quoted: p.tok.Kind == lexer.String, Sp: p.tok.Span}
	p.next() // onto the operator

	op, ok := mapOperator(p.tok.Text)
	if !ok {
		p.errorf(p.tok.Span, "unsupported operator %q", p.tok.Text)
		p.resync()
		return ast.Entry{}, false
	}
	p.next()

	value := p.parseValue()
	if value == nil {
		return ast.Entry{}, false
	}
	entry := ast.Entry{Key: key, KeySym: interner.Intern(key.Text), Op: op, Value: value, Leading: leading}
	entry.Trailing = p.takeTrailing(value.Span().End.Line)
	return entry, true
}

func (p *parser) parseValue() ast.Value {
	switch p.tok.Kind {
	case lexer.LBrace:
		start := p.tok.Span.Start
		p.next()
		return p.parseBlockBody(start, false)

	case lexer.Maths:
		v := &ast.Maths{Expr: p.tok.Text, Sp: p.tok.Span}
		p.next()
		return v

	case lexer.Ident, lexer.Number, lexer.String:
		if isColorModel(p.tok) && p.peek().Kind == lexer.LBrace {
			return p.parseColor()
		}
		v := &ast.Scalar{Text: p.tok.Text, Quoted: p.tok.Kind == lexer.String, Sp: p.tok.Span}
		p.next()
		return v

	default:
		p.errorf(p.tok.Span, "expected a value, found %s %q", p.tok.Kind, p.tok.Text)
		p.resync()
		return nil
	}
}

func (p *parser) parseColor() ast.Value {
	color := &ast.Color{Model: p.tok.Text, Sp: p.tok.Span}
	p.next() // onto {
	p.next() // first component
	for p.tok.Kind == lexer.Number || p.tok.Kind == lexer.Ident {
		color.Components = append(color.Components, p.tok.Text)
		p.next()
	}
	if p.tok.Kind == lexer.RBrace {
		color.Sp = color.Sp.Union(p.tok.Span)
		p.next()
	} else {
		p.errorf(p.tok.Span, "malformed %s color", color.Model)
		p.resync()
	}
	return color
}

// resync skips tokens until the next plausible entry start (a word
// followed by an operator), a closing brace, or end of input. One
// diagnostic has already been emitted for the skipped region.
func (p *parser) resync() {
	for {
		switch p.tok.Kind {
		case lexer.EOF, lexer.RBrace:
			return
		case lexer.Ident, lexer.Number, lexer.String:
			if p.peek().Kind == lexer.Operator {
				return
			}
		}
		p.next()
	}
}

func isColorModel(tok lexer.Token) bool {
	return tok.Kind == lexer.Ident && (tok.Text == "rgb" || tok.Text == "hsv")
}

func mapOperator(text string) (ast.Operator, bool) {
	switch text {
	case "=", "==":
		return ast.OpEquals, true
	case "!=":
		return ast.OpNotEqual, true
	case ">":
		return ast.OpGreaterThan, true
	case ">=":
		return ast.OpGreaterThanOrEqual, true
	case "<":
		return ast.OpLessThan, true
	case "<=":
		return ast.OpLessThanOrEqual, true
	case "+=":
		return ast.OpPlusEquals, true
	case "-=":
		return ast.OpMinusEquals, true
	case "*=":
		return ast.OpMultiplyEquals, true
	case "?=":
		return ast.OpConditionalAssign, true
	default:
		return ast.OpEquals, false
	}
}
