// Package lexer turns Clausewitz script and CWT schema text into tokens.
// It is tolerant by contract: unrecognized bytes become Invalid tokens,
// comments are preserved (directive `##` and doc `###` comments carry
// schema metadata), and lexing can restart from any byte offset.
package lexer

import (
	"strings"
	"unicode/utf8"

	"github.com/corvee/cwt/diag"
)

// Lexer produces tokens from a source buffer. It never fails; callers
// drain it until EOF.
type Lexer struct {
	src  string
	pos  int
	line int
	col  int
}

// New returns a lexer over src starting at the beginning.
func New(src string) *Lexer {
	l := &Lexer{src: src, pos: 0, line: 1, col: 1}
	// Skip a UTF-8 BOM if present.
	if strings.HasPrefix(src, "\uFEFF") {
		l.pos = len("\uFEFF")
	}
	return l
}

// NewAt returns a lexer over src restarting at the given byte offset.
// Line and column are recomputed from the prefix so spans stay accurate
// for incremental re-parsing.
func NewAt(src string, offset int) *Lexer {
	if offset < 0 {
		offset = 0
	}
	if offset > len(src) {
		offset = len(src)
	}
	l := &Lexer{src: src, pos: offset, line: 1, col: 1}
	for _, r := range src[:offset] {
		if r == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
	}
	return l
}

func (l *Lexer) position() diag.Position {
	return diag.Position{Line: l.line, Column: l.col, Offset: l.pos}
}

func (l *Lexer) peek() (rune, int) {
	if l.pos >= len(l.src) {
		return 0, 0
	}
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	if r == utf8.RuneError && size == 1 {
		// Stray byte; surface it as-is and let tolerance rules decide.
		return rune(l.src[l.pos]), 1
	}
	return r, size
}

func (l *Lexer) advance() rune {
	r, size := l.peek()
	if size == 0 {
		return 0
	}
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) skipSpace() {
	for {
		r, size := l.peek()
		if size == 0 {
			return
		}
		switch r {
		case ' ', '\t', '\r', '\n', ';', ',':
			l.advance()
		default:
			return
		}
	}
}

// Next returns the next token. After the end of input it returns EOF
// tokens indefinitely.
func (l *Lexer) Next() Token {
	l.skipSpace()
	start := l.position()

	r, size := l.peek()
	if size == 0 {
		return Token{Kind: EOF, Span: diag.Span{Start: start, End: start}}
	}

	switch {
	case r == '#':
		return l.lexComment(start)
	case r == '{':
		l.advance()
		return l.token(LBrace, "{", start)
	case r == '}':
		l.advance()
		return l.token(RBrace, "}", start)
	case r == '"':
		return l.lexString(start)
	case r == '@':
		if l.peekAt(size) == '[' {
			return l.lexMaths(start)
		}
		return l.lexWord(start)
	case r == '=':
		l.advance()
		if ch, _ := l.peek(); ch == '=' {
			l.advance()
			return l.token(Operator, "==", start)
		}
		return l.token(Operator, "=", start)
	case r == '!' || r == '?':
		l.advance()
		if ch, _ := l.peek(); ch == '=' {
			l.advance()
			return l.token(Operator, string(r)+"=", start)
		}
		return l.token(Invalid, string(r), start)
	case r == '>':
		l.advance()
		if ch, _ := l.peek(); ch == '=' {
			l.advance()
			return l.token(Operator, ">=", start)
		}
		return l.token(Operator, ">", start)
	case r == '<':
		if next := l.peekAt(size); isWordStart(next) {
			// Type reference like <building>; lexed as one identifier.
			return l.lexTypeRef(start)
		}
		l.advance()
		if ch, _ := l.peek(); ch == '=' {
			l.advance()
			return l.token(Operator, "<=", start)
		}
		return l.token(Operator, "<", start)
	case r == '+' || r == '-' || r == '*':
		if l.peekAt(size) == '=' {
			l.advance()
			l.advance()
			return l.token(Operator, string(r)+"=", start)
		}
		if r == '+' {
			l.advance()
			return l.token(Invalid, "+", start)
		}
		return l.lexWord(start)
	case isWordStart(r):
		return l.lexWord(start)
	default:
		l.advance()
		return l.token(Invalid, string(r), start)
	}
}

// peekAt looks one rune past the current one, given the current rune's size.
func (l *Lexer) peekAt(size int) rune {
	if l.pos+size >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos+size:])
	return r
}

func (l *Lexer) token(kind Kind, text string, start diag.Position) Token {
	return Token{Kind: kind, Text: text, Span: diag.Span{Start: start, End: l.position()}}
}

func (l *Lexer) lexComment(start diag.Position) Token {
	marker := 0
	for {
		r, _ := l.peek()
		if r != '#' || marker >= 3 {
			break
		}
		l.advance()
		marker++
	}
	textStart := l.pos
	for {
		r, size := l.peek()
		if size == 0 || r == '\n' {
			break
		}
		l.advance()
	}
	text := strings.TrimPrefix(l.src[textStart:l.pos], " ")
	text = strings.TrimSuffix(text, "\r")
	tok := l.token(Comment, text, start)
	tok.Marker = marker
	return tok
}

func (l *Lexer) lexString(start diag.Position) Token {
	l.advance() // opening quote
	var b strings.Builder
	for {
		r, size := l.peek()
		if size == 0 || r == '\n' {
			// Unterminated string: keep what we have rather than failing.
			break
		}
		l.advance()
		if r == '"' {
			break
		}
		if r == '\\' {
			if next, nsize := l.peek(); nsize > 0 && (next == '"' || next == '\\') {
				l.advance()
				b.WriteRune(next)
				continue
			}
		}
		b.WriteRune(r)
	}
	return l.token(String, b.String(), start)
}

func (l *Lexer) lexMaths(start diag.Position) Token {
	l.advance() // @
	l.advance() // [
	exprStart := l.pos
	for {
		r, size := l.peek()
		if size == 0 {
			break
		}
		if r == ']' {
			expr := l.src[exprStart:l.pos]
			l.advance()
			return l.token(Maths, expr, start)
		}
		l.advance()
	}
	return l.token(Maths, l.src[exprStart:l.pos], start)
}

func (l *Lexer) lexTypeRef(start diag.Position) Token {
	wordStart := l.pos
	l.advance() // <
	for {
		r, size := l.peek()
		if size == 0 || r == '\n' || r == ' ' || r == '\t' {
			break
		}
		l.advance()
		if r == '>' {
			break
		}
	}
	return l.token(Ident, l.src[wordStart:l.pos], start)
}

func (l *Lexer) lexWord(start diag.Position) Token {
	wordStart := l.pos
	for {
		r, size := l.peek()
		if size == 0 || !isWordPart(r) {
			break
		}
		if r == '-' && l.pos > wordStart && l.peekAt(size) == '=' {
			break
		}
		l.advance()
	}
	text := l.src[wordStart:l.pos]
	kind := Ident
	if isNumeric(text) {
		kind = Number
	}
	return l.token(kind, text, start)
}

func isWordStart(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '@', r == '$', r == '\'', r == '.', r == '-', r == '~', r == '*', r == '/', r == '\\', r == '%':
		return true
	case r > 0x7f:
		// Non-ASCII text (localised identifiers, stray bytes) stays inside words.
		return true
	}
	return false
}

func isWordPart(r rune) bool {
	if isWordStart(r) {
		return true
	}
	switch r {
	case '[', ']', ':', '|':
		return true
	}
	return false
}

func isNumeric(s string) bool {
	if s == "" || s == "-" || s == "." {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '%':
		default:
			return false
		}
	}
	return true
}
