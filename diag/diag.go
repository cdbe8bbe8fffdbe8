package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a machine-checkable diagnostic rule.
type Code string

const (
	// CodeParseError indicates the script text could not be fully parsed.
	CodeParseError Code = "parse-error"
	// CodeMissingRequiredKey indicates a required key is absent from a block.
	CodeMissingRequiredKey Code = "missing-required-key"
	// CodeUnexpectedKey indicates a key that matches no schema rule.
	CodeUnexpectedKey Code = "unexpected-key"
	// CodeCardinalityViolation indicates a key count outside its declared range.
	CodeCardinalityViolation Code = "cardinality-violation"
	// CodeTypeMismatch indicates a value of the wrong shape for its rule.
	CodeTypeMismatch Code = "type-mismatch"
	// CodeUnknownEnumValue indicates a value outside its enum's member set.
	CodeUnknownEnumValue Code = "unknown-enum-value"
	// CodeUndefinedReference indicates a reference to a symbol no document declares.
	CodeUndefinedReference Code = "undefined-reference"
	// CodeMissingLocalisationKey indicates a referenced localisation key the oracle does not know.
	CodeMissingLocalisationKey Code = "missing-localisation-key"
	// CodeUnresolvedAlias indicates a reference to an alias category with no definitions.
	CodeUnresolvedAlias Code = "unresolved-alias"
)

// Severity ranks a diagnostic for presentation and exit-code purposes.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Position is a location in a source buffer. Line and Column are 1-based,
// Offset is a 0-based byte offset.
type Position struct {
	Line   int
	Column int
	Offset int
}

// Span is a half-open [Start, End) range in a source buffer.
type Span struct {
	Start Position
	End   Position
}

// Contains reports whether other lies entirely within s.
func (s Span) Contains(other Span) bool {
	return s.Start.Offset <= other.Start.Offset && other.End.Offset <= s.End.Offset
}

// Union returns the smallest span covering both s and other.
func (s Span) Union(other Span) Span {
	out := s
	if other.Start.Offset < out.Start.Offset {
		out.Start = other.Start
	}
	if other.End.Offset > out.End.Offset {
		out.End = other.End
	}
	return out
}

// Diagnostic describes a single analysis finding tied to a source range.
type Diagnostic struct {
	Code     Code
	Severity Severity
	Message  string
	Path     string // document path, when known
	Span     Span
	Actual   string
	Expected []string
}

// Error formats the diagnostic for display, including code, message, and context.
func (d *Diagnostic) Error() string {
	if d == nil {
		return "diagnostic <nil>"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", d.Code, d.Severity, d.Message))
	if d.Path != "" {
		b.WriteString(fmt.Sprintf(" at %s", d.Path))
	}
	if d.Span.Start.Line > 0 {
		if d.Path == "" {
			b.WriteString(fmt.Sprintf(" at line %d, column %d", d.Span.Start.Line, d.Span.Start.Column))
		} else {
			b.WriteString(fmt.Sprintf(" (line %d, column %d)", d.Span.Start.Line, d.Span.Start.Column))
		}
	}
	if len(d.Expected) > 0 {
		b.WriteString(fmt.Sprintf(" (expected: %s)", strings.Join(d.Expected, ", ")))
	}
	if d.Actual != "" {
		b.WriteString(fmt.Sprintf(" (actual: %s)", d.Actual))
	}
	return b.String()
}

// List is an error that wraps one or more diagnostics.
type List []Diagnostic

// Error returns a compact summary of the diagnostics.
func (l List) Error() string {
	switch len(l) {
	case 0:
		return "no diagnostics"
	case 1:
		return l[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more)", l[0].Error(), len(l)-1)
	}
}

// HasErrors reports whether any diagnostic carries error severity.
func (l List) HasErrors() bool {
	for i := range l {
		if l[i].Severity == SeverityError {
			return true
		}
	}
	return false
}

// New builds a diagnostic with a code, severity, message, and span.
func New(code Code, sev Severity, span Span, msg string) Diagnostic {
	return Diagnostic{Code: code, Severity: sev, Message: msg, Span: span}
}

// Newf formats a message and builds a diagnostic.
func Newf(code Code, sev Severity, span Span, format string, args ...any) Diagnostic {
	return New(code, sev, span, fmt.Sprintf(format, args...))
}

// AsDiagnostics extracts diagnostics from an error returned by validation helpers.
func AsDiagnostics(err error) ([]Diagnostic, bool) {
	if err == nil {
		return nil, false
	}
	var list List
	if errors.As(err, &list) {
		return []Diagnostic(list), true
	}

	var listPtr *List
	if errors.As(err, &listPtr) && listPtr != nil {
		return []Diagnostic(*listPtr), true
	}

	return nil, false
}
