package lexer

import "github.com/corvee/cwt/diag"

// Kind classifies a token.
type Kind int

const (
	EOF Kind = iota
	// Invalid is an unrecognized byte sequence. The parser's recovery logic
	// consumes these; the lexer never fails.
	Invalid
	Ident
	Number
	String // quoted; Text holds the unquoted content
	LBrace
	RBrace
	Operator // Text holds the operator spelling
	Comment  // Marker holds the # count (1..3)
	Maths    // @[ ... ]; Text holds the inner expression
)

// String returns a short name for the kind, for diagnostics and tests.
func (k Kind) String() string {
	switch k {
	case EOF:
		return "eof"
	case Invalid:
		return "invalid"
	case Ident:
		return "identifier"
	case Number:
		return "number"
	case String:
		return "string"
	case LBrace:
		return "{"
	case RBrace:
		return "}"
	case Operator:
		return "operator"
	case Comment:
		return "comment"
	case Maths:
		return "maths"
	default:
		return "unknown"
	}
}

// Token is one lexeme with its source span.
type Token struct {
	Kind   Kind
	Text   string
	Marker int // comment marker depth for Kind == Comment
	Span   diag.Span
}
