// Package validator walks a script AST against a schema type and emits
// diagnostics. Cardinality failures, unknown keys and bad values are
// ordinary data, never errors; the only error a validation can return
// is cancellation.
package validator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/corvee/cwt/diag"
	"github.com/corvee/cwt/internal/ast"
	"github.com/corvee/cwt/internal/cwtschema"
	"github.com/corvee/cwt/internal/interner"
	"github.com/corvee/cwt/internal/registry"
)

// ErrCancelled reports that a cooperative checkpoint observed a stale
// revision and the walk stopped early.
var ErrCancelled = errors.New("validation cancelled")

// LocalisationOracle answers key existence. The engine never loads
// localisation files itself.
type LocalisationOracle interface {
	HasKey(key string) bool
}

// SymbolIndex resolves cross-file type references.
type SymbolIndex interface {
	Has(typeName, name string) bool
}

// Option configures a Validator.
type Option interface {
	apply(*Validator)
}

type optionFunc func(*Validator)

func (f optionFunc) apply(v *Validator) { f(v) }

// WithLocalisation supplies the localisation oracle. Without one,
// localisation checks are skipped.
func WithLocalisation(o LocalisationOracle) Option {
	return optionFunc(func(v *Validator) { v.loc = o })
}

// WithSymbols supplies the workspace symbol index for <type> references.
func WithSymbols(s SymbolIndex) Option {
	return optionFunc(func(v *Validator) { v.syms = s })
}

// WithCancelled installs the staleness check consulted at each block
// boundary.
func WithCancelled(fn func() bool) Option {
	return optionFunc(func(v *Validator) { v.cancelled = fn })
}

// WithUnexpectedKeySeverity overrides the default warning for keys that
// match no rule.
func WithUnexpectedKeySeverity(sev diag.Severity) Option {
	return optionFunc(func(v *Validator) { v.unexpectedSev = sev })
}

// WithIgnoreUnexpectedKeys drops diagnostics for keys that match no
// rule. Keys failing to bind an alias still report.
func WithIgnoreUnexpectedKeys() Option {
	return optionFunc(func(v *Validator) { v.unexpectedIgnore = true })
}

// Validator is immutable after New and safe for concurrent use; each
// validation pass keeps its own walk state.
type Validator struct {
	snap             *registry.Snapshot
	loc              LocalisationOracle
	syms             SymbolIndex
	cancelled        func() bool
	unexpectedSev    diag.Severity
	unexpectedIgnore bool
}

func New(snap *registry.Snapshot, opts ...Option) *Validator {
	v := &Validator{snap: snap, unexpectedSev: diag.SeverityWarning}
	for _, opt := range opts {
		opt.apply(v)
	}
	return v
}

// ValidateFile checks every instance block in a parsed file against
// typ. Scalar top-level entries are value definitions, not instances,
// and pass through unchecked.
func (v *Validator) ValidateFile(typ *registry.Type, root *ast.Block) ([]diag.Diagnostic, error) {
	w := &walker{v: v}
	for i := range root.Entries {
		entry := &root.Entries[i]
		blk, ok := entry.Value.(*ast.Block)
		if !ok {
			continue
		}
		if err := w.instance(typ, entry, blk); err != nil {
			return nil, err
		}
	}
	return w.diags, nil
}

// MatchSubtypes evaluates each subtype's predicate against the
// instance's own entries. Predicates see only sibling keys, never
// ancestors, and subtypes are not mutually exclusive.
func MatchSubtypes(typ *registry.Type, key string, blk *ast.Block) []*cwtschema.Subtype {
	var matched []*cwtschema.Subtype
	for i := range typ.Subtypes {
		if subtypeMatches(&typ.Subtypes[i], key, blk) {
			matched = append(matched, &typ.Subtypes[i])
		}
	}
	return matched
}

func subtypeMatches(sub *cwtschema.Subtype, key string, blk *ast.Block) bool {
	if len(sub.TypeKeyFilter) > 0 {
		ok := false
		for _, want := range sub.TypeKeyFilter {
			if strings.EqualFold(want, key) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if sub.StartsWith != "" && !strings.HasPrefix(strings.ToLower(key), strings.ToLower(sub.StartsWith)) {
		return false
	}
	for _, p := range sub.Predicates {
		entry, present := blk.Find(p.Key)
		holds := present
		if holds && p.Value != "" {
			s, isScalar := entry.Value.(*ast.Scalar)
			holds = isScalar && strings.EqualFold(s.Text, p.Value)
		}
		if p.Negate {
			holds = !holds
		}
		if !holds {
			return false
		}
	}
	return true
}

type walker struct {
	v     *Validator
	diags []diag.Diagnostic
	path  []string
	scope map[string]string
}

func (w *walker) instance(typ *registry.Type, entry *ast.Entry, blk *ast.Block) error {
	name := entry.Key.Text
	if typ.NameField != "" {
		if named, ok := blk.Find(typ.NameField); ok {
			if s, ok := named.Value.(*ast.Scalar); ok {
				name = s.Text
			}
		}
	}

	matched := MatchSubtypes(typ, entry.Key.Text, blk)
	rules := make([]cwtschema.Field, 0, len(typ.Fields))
	rules = append(rules, typ.Fields...)
	for _, sub := range matched {
		rules = append(rules, sub.Fields...)
	}

	w.path = append(w.path, entry.Key.Text)
	w.scope = rebindScope(nil, typ.Options)
	err := w.block(rules, blk)
	w.path = w.path[:len(w.path)-1]
	if err != nil {
		return err
	}

	w.localisation(typ, name, matched, entry.Key.Sp)
	return nil
}

func (w *walker) localisation(typ *registry.Type, name string, matched []*cwtschema.Subtype, span diag.Span) {
	if w.v.loc == nil {
		return
	}
	for _, req := range typ.Localisation {
		if !req.Required {
			continue
		}
		if req.Subtype != "" && !subtypeNamed(matched, req.Subtype) {
			continue
		}
		key := strings.ReplaceAll(req.Pattern, "$", name)
		if !w.v.loc.HasKey(key) {
			w.report(diag.Diagnostic{
				Code:     diag.CodeMissingLocalisationKey,
				Severity: w.severity(diag.SeverityError, typ.Options),
				Message:  fmt.Sprintf("localisation key %q (%s) is not defined", key, req.Name),
				Span:     span,
				Expected: []string{key},
			})
		}
	}
}

func subtypeNamed(matched []*cwtschema.Subtype, name string) bool {
	for _, sub := range matched {
		if strings.EqualFold(sub.Name, name) {
			return true
		}
	}
	return false
}

// ruleGroup collects every rule declared for one key pattern. When
// duplicates disagree on cardinality the merged range is the most
// permissive one.
type ruleGroup struct {
	fields []cwtschema.Field
	card   cwtschema.Cardinality
	count  int
	first  *ast.Entry // first matching script entry, for spans
}

func groupRules(rules []cwtschema.Field) []*ruleGroup {
	index := make(map[string]*ruleGroup)
	var groups []*ruleGroup
	for _, field := range rules {
		id := fmt.Sprintf("%d\x00%s\x00%s", field.KeyKind, strings.ToLower(field.Key), strings.ToLower(field.KeyRef))
		g, ok := index[id]
		if !ok {
			g = &ruleGroup{card: field.Card}
			index[id] = g
			groups = append(groups, g)
		} else {
			g.card = mergeCardinality(g.card, field.Card)
		}
		g.fields = append(g.fields, field)
	}
	return groups
}

func mergeCardinality(a, b cwtschema.Cardinality) cwtschema.Cardinality {
	out := a
	if b.Min < out.Min {
		out.Min = b.Min
	}
	if b.Unbounded {
		out.Unbounded = true
	} else if !out.Unbounded && b.Max > out.Max {
		out.Max = b.Max
	}
	out.Soft = out.Soft || b.Soft
	out.Explicit = out.Explicit || b.Explicit
	return out
}

type ruleMatch struct {
	field cwtschema.Field
	alias *cwtschema.Alias
}

func (w *walker) block(rules []cwtschema.Field, blk *ast.Block) error {
	if w.v.cancelled != nil && w.v.cancelled() {
		return ErrCancelled
	}

	groups := groupRules(rules)
	hasAliasRules := false
	for _, g := range groups {
		for _, f := range g.fields {
			if f.KeyKind == cwtschema.KeyAliasName {
				hasAliasRules = true
			}
		}
	}

	for i := range blk.Entries {
		entry := &blk.Entries[i]
		var matched []ruleMatch
		for _, g := range groups {
			counted := false
			for _, field := range g.fields {
				ok, alias := w.keyMatches(field, entry)
				if !ok {
					continue
				}
				if !counted {
					g.count++
					counted = true
					if g.first == nil {
						g.first = entry
					}
				}
				matched = append(matched, ruleMatch{field: field, alias: alias})
			}
		}
		if len(matched) == 0 {
			w.unexpectedKey(entry, hasAliasRules)
			continue
		}
		if err := w.value(entry, matched); err != nil {
			return err
		}
	}

	for _, g := range groups {
		w.checkCardinality(g, blk)
	}
	return nil
}

func (w *walker) keyMatches(field cwtschema.Field, entry *ast.Entry) (bool, *cwtschema.Alias) {
	key := entry.Key.Text
	switch field.KeyKind {
	case cwtschema.KeyLiteral:
		return sameKey(field.KeySym, field.Key, entry), nil
	case cwtschema.KeyScalar:
		return true, nil
	case cwtschema.KeyEnum:
		member, known := w.v.snap.EnumHas(field.KeyRef, key)
		return known && member, nil
	case cwtschema.KeyTypeRef:
		return w.v.syms != nil && w.v.syms.Has(field.KeyRef, key), nil
	case cwtschema.KeyAliasName:
		aliases := w.v.snap.Aliases(field.KeyRef)
		for i := range aliases {
			if sameKey(aliases[i].Field.KeySym, aliases[i].Name, entry) {
				return true, &aliases[i]
			}
		}
		return false, nil
	}
	return false, nil
}

// sameKey compares interned symbols and falls back to a case fold when
// either side was built without one.
func sameKey(sym interner.Sym, name string, entry *ast.Entry) bool {
	if sym != interner.None && entry.KeySym != interner.None {
		return sym == entry.KeySym
	}
	return strings.EqualFold(name, entry.Key.Text)
}

func (w *walker) unexpectedKey(entry *ast.Entry, hasAliasRules bool) {
	if hasAliasRules {
		w.report(diag.Diagnostic{
			Code:     diag.CodeUnresolvedAlias,
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("%q does not name a known alias", entry.Key.Text),
			Span:     entry.Key.Sp,
			Actual:   entry.Key.Text,
		})
		return
	}
	if w.v.unexpectedIgnore {
		return
	}
	w.report(diag.Diagnostic{
		Code:     diag.CodeUnexpectedKey,
		Severity: w.v.unexpectedSev,
		Message:  fmt.Sprintf("key %q is not expected here", entry.Key.Text),
		Span:     entry.Key.Sp,
		Actual:   entry.Key.Text,
	})
}

func (w *walker) checkCardinality(g *ruleGroup, blk *ast.Block) {
	if g.card.Contains(g.count) {
		return
	}
	field := g.fields[0]
	sev := w.severity(diag.SeverityError, field.Options)
	if g.card.Soft {
		sev = diag.SeverityWarning
	}

	if g.count < g.card.Min && !g.card.Explicit {
		w.report(diag.Diagnostic{
			Code:     diag.CodeMissingRequiredKey,
			Severity: sev,
			Message:  fmt.Sprintf("required key %q is missing", field.Key),
			Span:     blk.Sp,
			Expected: []string{field.Key},
		})
		return
	}

	bound := strconv.Itoa(g.card.Max)
	if g.card.Unbounded {
		bound = "inf"
	}
	span := blk.Sp
	if g.first != nil {
		span = g.first.Key.Sp
	}
	w.report(diag.Diagnostic{
		Code:     diag.CodeCardinalityViolation,
		Severity: sev,
		Message:  fmt.Sprintf("key %q appears %d times, expected %d..%s", field.Key, g.count, g.card.Min, bound),
		Span:     span,
		Expected: []string{fmt.Sprintf("%d..%s", g.card.Min, bound)},
		Actual:   strconv.Itoa(g.count),
	})
}

// value checks an entry's value against every rule its key matched. A
// value is accepted if any candidate accepts it; otherwise the
// diagnostics come from the closest candidate.
func (w *walker) value(entry *ast.Entry, matched []ruleMatch) error {
	type candidate struct {
		spec  cwtschema.ValueSpec
		opts  cwtschema.Options
		alias *cwtschema.Alias
	}
	var candidates []candidate
	for _, m := range matched {
		spec := m.field.Value
		opts := m.field.Options
		if spec.Kind == cwtschema.ValueAliasMatchLeft && m.alias != nil {
			spec = m.alias.Field.Value
			opts = mergeOptions(opts, m.alias.Field.Options)
		}
		candidates = append(candidates, candidate{spec: spec, opts: opts, alias: m.alias})
	}

	var shaped []candidate
	for _, c := range candidates {
		if shapeMatches(c.spec, entry.Value) {
			shaped = append(shaped, c)
		}
	}
	if len(shaped) == 0 {
		expected := make([]string, 0, len(candidates))
		for _, c := range candidates {
			expected = append(expected, specName(c.spec))
		}
		w.report(diag.Diagnostic{
			Code:     diag.CodeTypeMismatch,
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("value of %q has the wrong shape", entry.Key.Text),
			Span:     entry.Value.Span(),
			Expected: expected,
			Actual:   ast.Render(entry.Value),
		})
		return nil
	}

	var best []diag.Diagnostic
	bestSet := false
	for _, c := range shaped {
		trial := &walker{v: w.v, path: w.path, scope: w.scope}
		if err := trial.checkSpec(c.spec, c.opts, entry); err != nil {
			return err
		}
		if len(trial.diags) == 0 {
			return nil
		}
		if !bestSet || len(trial.diags) < len(best) {
			best = trial.diags
			bestSet = true
		}
	}
	w.diags = append(w.diags, best...)
	return nil
}

func (w *walker) checkSpec(spec cwtschema.ValueSpec, opts cwtschema.Options, entry *ast.Entry) error {
	switch spec.Kind {
	case cwtschema.ValueBlock:
		blk := entry.Value.(*ast.Block)
		return w.nested(spec.Block, opts, entry.Key.Text, blk)

	case cwtschema.ValueAliasMatchLeft:
		// Unbound at this point: expand to "any alias of the
		// category" rules for the nested block.
		blk, ok := entry.Value.(*ast.Block)
		if !ok {
			w.report(diag.Diagnostic{
				Code:     diag.CodeUnresolvedAlias,
				Severity: diag.SeverityError,
				Message:  fmt.Sprintf("value of %q cannot be matched against alias category %q", entry.Key.Text, spec.Ref),
				Span:     entry.Value.Span(),
			})
			return nil
		}
		rules := w.v.snap.MatchLeftExpansion(spec.Ref)
		if rules == nil {
			// Unknown category: keep the alias semantics so every key
			// inside still reports as unresolved rather than unexpected.
			rules = []cwtschema.Field{{
				Key:     "alias_name[" + spec.Ref + "]",
				KeyKind: cwtschema.KeyAliasName,
				KeyRef:  spec.Ref,
				Value:   cwtschema.ValueSpec{Kind: cwtschema.ValueAliasMatchLeft, Ref: spec.Ref},
				Card:    cwtschema.Cardinality{Min: 0, Unbounded: true, Explicit: true},
			}}
		}
		return w.nested(rules, opts, entry.Key.Text, blk)

	case cwtschema.ValueBool:
		text := scalarValue(entry.Value)
		if !strings.EqualFold(text, "yes") && !strings.EqualFold(text, "no") {
			w.typeMismatch(entry, []string{"yes", "no"})
		}

	case cwtschema.ValueInt:
		w.checkNumber(entry, spec, true)

	case cwtschema.ValueFloat:
		w.checkNumber(entry, spec, false)

	case cwtschema.ValueScalar, cwtschema.ValueFilepath:
		// Any scalar shape is fine.

	case cwtschema.ValueLocalisation:
		if w.v.loc != nil {
			key := scalarValue(entry.Value)
			if !w.v.loc.HasKey(key) {
				w.report(diag.Diagnostic{
					Code:     diag.CodeMissingLocalisationKey,
					Severity: diag.SeverityError,
					Message:  fmt.Sprintf("localisation key %q is not defined", key),
					Span:     entry.Value.Span(),
					Actual:   key,
				})
			}
		}

	case cwtschema.ValueEnum:
		text := scalarValue(entry.Value)
		member, known := w.v.snap.EnumHas(spec.Ref, text)
		if !known {
			w.report(diag.Diagnostic{
				Code:     diag.CodeUndefinedReference,
				Severity: diag.SeverityError,
				Message:  fmt.Sprintf("enum %q is not defined in the schema", spec.Ref),
				Span:     entry.Value.Span(),
			})
		} else if !member {
			w.report(diag.Diagnostic{
				Code:     diag.CodeUnknownEnumValue,
				Severity: diag.SeverityError,
				Message:  fmt.Sprintf("%q is not a member of enum %q", text, spec.Ref),
				Span:     entry.Value.Span(),
				Expected: w.v.snap.EnumValues(spec.Ref),
				Actual:   text,
			})
		}

	case cwtschema.ValueTypeRef:
		if w.v.syms != nil {
			text := scalarValue(entry.Value)
			if !w.v.syms.Has(spec.Ref, text) {
				w.report(diag.Diagnostic{
					Code:     diag.CodeUndefinedReference,
					Severity: diag.SeverityError,
					Message:  fmt.Sprintf("no %s named %q is declared", spec.Ref, text),
					Span:     entry.Value.Span(),
					Expected: []string{"<" + spec.Ref + ">"},
					Actual:   text,
				})
			}
		}

	case cwtschema.ValueScopeRef:
		w.checkScopeRef(entry, spec)

	case cwtschema.ValueLiteral:
		text := scalarValue(entry.Value)
		if !strings.EqualFold(text, spec.Ref) {
			w.typeMismatch(entry, []string{spec.Ref})
		}
	}
	return nil
}

// checkScopeRef resolves this/root/prev/from against the bindings that
// replace_scope and push_scope established for the enclosing subtree.
// Link chains and bindings the schema never declared pass unchecked.
func (w *walker) checkScopeRef(entry *ast.Entry, spec cwtschema.ValueSpec) {
	text := scalarValue(entry.Value)
	head, _, linked := strings.Cut(text, ".")
	if linked {
		// A link chain such as this.owner lands in a scope the schema
		// alone cannot name.
		return
	}
	head = strings.ToLower(head)
	switch head {
	case "this", "root", "prev", "from":
	default:
		return
	}
	kind, bound := w.scope[head]
	if !bound || strings.EqualFold(spec.Ref, "any") {
		return
	}
	if !strings.EqualFold(kind, spec.Ref) {
		w.report(diag.Diagnostic{
			Code:     diag.CodeTypeMismatch,
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("%q is a %s scope here, %q expects %s", head, kind, entry.Key.Text, spec.Ref),
			Span:     entry.Value.Span(),
			Expected: []string{"scope[" + spec.Ref + "]"},
			Actual:   kind,
		})
	}
}

func (w *walker) nested(rules []cwtschema.Field, opts cwtschema.Options, key string, blk *ast.Block) error {
	w.path = append(w.path, key)
	saved := w.scope
	w.scope = rebindScope(w.scope, opts)
	err := w.block(rules, blk)
	w.scope = saved
	w.path = w.path[:len(w.path)-1]
	return err
}

func (w *walker) checkNumber(entry *ast.Entry, spec cwtschema.ValueSpec, integral bool) {
	// Maths expressions and @define references are resolved by the
	// game at load time; their numeric value is unknowable here.
	if _, isMaths := entry.Value.(*ast.Maths); isMaths {
		return
	}
	text := scalarValue(entry.Value)
	if strings.HasPrefix(text, "@") {
		return
	}

	kind := "float"
	if integral {
		kind = "int"
	}
	var num float64
	if integral {
		n, err := strconv.Atoi(text)
		if err != nil {
			w.typeMismatch(entry, []string{kind})
			return
		}
		num = float64(n)
	} else {
		n, err := strconv.ParseFloat(text, 64)
		if err != nil {
			w.typeMismatch(entry, []string{kind})
			return
		}
		num = n
	}
	if spec.Range != nil && (num < spec.Range.Lo || num > spec.Range.Hi) {
		w.report(diag.Diagnostic{
			Code:     diag.CodeTypeMismatch,
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("value %s of %q is outside %v..%v", text, entry.Key.Text, spec.Range.Lo, spec.Range.Hi),
			Span:     entry.Value.Span(),
			Expected: []string{fmt.Sprintf("%s[%v..%v]", kind, spec.Range.Lo, spec.Range.Hi)},
			Actual:   text,
		})
	}
}

func (w *walker) typeMismatch(entry *ast.Entry, expected []string) {
	w.report(diag.Diagnostic{
		Code:     diag.CodeTypeMismatch,
		Severity: diag.SeverityError,
		Message:  fmt.Sprintf("value of %q does not match its rule", entry.Key.Text),
		Span:     entry.Value.Span(),
		Expected: expected,
		Actual:   ast.Render(entry.Value),
	})
}

func (w *walker) report(d diag.Diagnostic) {
	d.Path = strings.Join(w.path, "/")
	w.diags = append(w.diags, d)
}

func (w *walker) severity(fallback diag.Severity, opts cwtschema.Options) diag.Severity {
	if opts.SeveritySet {
		return opts.Severity
	}
	return fallback
}

func shapeMatches(spec cwtschema.ValueSpec, value ast.Value) bool {
	_, isBlock := value.(*ast.Block)
	switch spec.Kind {
	case cwtschema.ValueBlock:
		return isBlock
	case cwtschema.ValueAliasMatchLeft:
		// Bound fragments were substituted already; an unbound
		// match-left expands over a block.
		return true
	default:
		return !isBlock
	}
}

func specName(spec cwtschema.ValueSpec) string {
	switch spec.Kind {
	case cwtschema.ValueBlock:
		return "{ ... }"
	case cwtschema.ValueBool:
		return "bool"
	case cwtschema.ValueInt:
		return "int"
	case cwtschema.ValueFloat:
		return "float"
	case cwtschema.ValueScalar:
		return "scalar"
	case cwtschema.ValueFilepath:
		return "filepath"
	case cwtschema.ValueLocalisation:
		return "localisation"
	case cwtschema.ValueEnum:
		return "enum[" + spec.Ref + "]"
	case cwtschema.ValueTypeRef:
		return "<" + spec.Ref + ">"
	case cwtschema.ValueScopeRef:
		return "scope[" + spec.Ref + "]"
	case cwtschema.ValueAliasMatchLeft:
		return "alias_match_left[" + spec.Ref + "]"
	default:
		return spec.Ref
	}
}

func scalarValue(v ast.Value) string {
	switch v := v.(type) {
	case *ast.Scalar:
		return v.Text
	case *ast.Maths:
		return "@[" + v.Expr + "]"
	default:
		return ast.Render(v)
	}
}

// rebindScope applies replace_scope and push_scope for one subtree.
// The input map is never mutated.
func rebindScope(cur map[string]string, opts cwtschema.Options) map[string]string {
	if len(opts.ReplaceScope) == 0 && opts.PushScope == "" {
		return cur
	}
	next := make(map[string]string, len(cur)+len(opts.ReplaceScope)+2)
	for k, v := range cur {
		next[k] = v
	}
	for k, v := range opts.ReplaceScope {
		next[strings.ToLower(k)] = v
	}
	if opts.PushScope != "" {
		if this, ok := next["this"]; ok {
			next["prev"] = this
		}
		next["this"] = opts.PushScope
	}
	return next
}

func mergeOptions(base, extra cwtschema.Options) cwtschema.Options {
	out := base
	if len(extra.ReplaceScope) > 0 {
		out.ReplaceScope = extra.ReplaceScope
	}
	if extra.PushScope != "" {
		out.PushScope = extra.PushScope
	}
	if extra.SeveritySet {
		out.Severity = extra.Severity
		out.SeveritySet = true
	}
	return out
}
