package cwtschema

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/corvee/cwt/diag"
	"github.com/corvee/cwt/internal/ast"
	"github.com/corvee/cwt/internal/interner"
	"github.com/corvee/cwt/internal/parser"
)

// Parse parses one CWT schema file. Schema text must be syntactically
// clean: a bad schema fails the load instead of silently validating
// nothing.
func Parse(name, src string) (*File, error) {
	root, diags := parser.Parse(src)
	if len(diags) > 0 {
		return nil, fmt.Errorf("parse schema %s: %s", name, diags[0].Message)
	}

	file := &File{Name: name}
	for i := range root.Entries {
		entry := &root.Entries[i]
		if err := parseTopLevel(file, entry); err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", name, err)
		}
	}
	return file, nil
}

func parseTopLevel(file *File, entry *ast.Entry) error {
	key := entry.Key.Text
	switch {
	case strings.EqualFold(key, "types"):
		blk, ok := entry.Value.(*ast.Block)
		if !ok {
			return fmt.Errorf("types section must be a block")
		}
		for i := range blk.Entries {
			decl, err := parseTypeDecl(&blk.Entries[i])
			if err != nil {
				return err
			}
			file.Types = append(file.Types, decl)
		}
	case strings.EqualFold(key, "enums"):
		blk, ok := entry.Value.(*ast.Block)
		if !ok {
			return fmt.Errorf("enums section must be a block")
		}
		for i := range blk.Entries {
			enum, err := parseEnum(&blk.Entries[i])
			if err != nil {
				return err
			}
			file.Enums = append(file.Enums, enum)
		}
	case strings.HasPrefix(key, "alias["):
		alias, err := parseAlias(entry)
		if err != nil {
			return err
		}
		file.Aliases = append(file.Aliases, alias)
	default:
		shape, err := parseShape(entry)
		if err != nil {
			return err
		}
		file.Shapes = append(file.Shapes, shape)
	}
	return nil
}

func parseTypeDecl(entry *ast.Entry) (TypeDecl, error) {
	name, ok := bracketArg(entry.Key.Text, "type")
	if !ok {
		return TypeDecl{}, fmt.Errorf("expected type[name], found %q", entry.Key.Text)
	}
	blk, ok := entry.Value.(*ast.Block)
	if !ok {
		return TypeDecl{}, fmt.Errorf("type[%s] must be a block", name)
	}

	dir, err := collectDirectives(entry)
	if err != nil {
		return TypeDecl{}, err
	}
	decl := TypeDecl{Name: name, Options: dir.opts, Span: entry.Value.Span()}

	for i := range blk.Entries {
		e := &blk.Entries[i]
		key := e.Key.Text
		switch {
		case strings.EqualFold(key, "path"):
			decl.Path = scalarText(e.Value)
		case strings.EqualFold(key, "name_field"):
			decl.NameField = scalarText(e.Value)
		case strings.HasPrefix(key, "subtype["):
			sub, err := parseSubtypeDecl(e)
			if err != nil {
				return TypeDecl{}, fmt.Errorf("type[%s]: %w", name, err)
			}
			decl.Subtypes = append(decl.Subtypes, sub)
		case strings.EqualFold(key, "localisation"):
			reqs, err := parseLocalisation(e)
			if err != nil {
				return TypeDecl{}, fmt.Errorf("type[%s]: %w", name, err)
			}
			decl.Localisation = append(decl.Localisation, reqs...)
		}
	}
	return decl, nil
}

func parseSubtypeDecl(entry *ast.Entry) (Subtype, error) {
	name, ok := bracketArg(entry.Key.Text, "subtype")
	if !ok {
		return Subtype{}, fmt.Errorf("expected subtype[name], found %q", entry.Key.Text)
	}
	blk, ok := entry.Value.(*ast.Block)
	if !ok {
		return Subtype{}, fmt.Errorf("subtype[%s] must be a block", name)
	}

	dir, err := collectDirectives(entry)
	if err != nil {
		return Subtype{}, err
	}
	sub := Subtype{
		Name:          name,
		TypeKeyFilter: dir.opts.TypeKeyFilter,
		StartsWith:    dir.opts.StartsWith,
	}
	for i := range blk.Entries {
		e := &blk.Entries[i]
		sub.Predicates = append(sub.Predicates, Predicate{
			Key:    e.Key.Text,
			Value:  scalarText(e.Value),
			Negate: e.Op == ast.OpNotEqual,
		})
	}
	for _, item := range blk.Items {
		if s, ok := item.(*ast.Scalar); ok {
			sub.Predicates = append(sub.Predicates, Predicate{Key: s.Text})
		}
	}
	return sub, nil
}

func parseLocalisation(entry *ast.Entry) ([]LocRequirement, error) {
	blk, ok := entry.Value.(*ast.Block)
	if !ok {
		return nil, fmt.Errorf("localisation must be a block")
	}
	return parseLocEntries(blk, "")
}

func parseLocEntries(blk *ast.Block, subtype string) ([]LocRequirement, error) {
	var reqs []LocRequirement
	for i := range blk.Entries {
		e := &blk.Entries[i]
		if name, ok := bracketArg(e.Key.Text, "subtype"); ok {
			inner, ok := e.Value.(*ast.Block)
			if !ok {
				return nil, fmt.Errorf("localisation subtype[%s] must be a block", name)
			}
			nested, err := parseLocEntries(inner, name)
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, nested...)
			continue
		}
		dir, err := collectDirectives(e)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, LocRequirement{
			Name:     e.Key.Text,
			Pattern:  scalarText(e.Value),
			Required: !dir.optional,
			Subtype:  subtype,
		})
	}
	return reqs, nil
}

func parseEnum(entry *ast.Entry) (Enum, error) {
	name, ok := bracketArg(entry.Key.Text, "enum")
	if !ok {
		return Enum{}, fmt.Errorf("expected enum[name], found %q", entry.Key.Text)
	}
	blk, ok := entry.Value.(*ast.Block)
	if !ok {
		return Enum{}, fmt.Errorf("enum[%s] must be a block", name)
	}
	enum := Enum{Name: name, Span: entry.Value.Span()}
	for _, item := range blk.Items {
		if s, ok := item.(*ast.Scalar); ok {
			enum.Values = append(enum.Values, s.Text)
		}
	}
	return enum, nil
}

func parseAlias(entry *ast.Entry) (Alias, error) {
	arg, ok := bracketArg(entry.Key.Text, "alias")
	if !ok {
		return Alias{}, fmt.Errorf("expected alias[category:name], found %q", entry.Key.Text)
	}
	category, name, ok := strings.Cut(arg, ":")
	if !ok {
		return Alias{}, fmt.Errorf("alias key %q must be category:name", arg)
	}
	field, err := parseField(entry)
	if err != nil {
		return Alias{}, fmt.Errorf("alias[%s:%s]: %w", category, name, err)
	}
	field.Key = name
	field.KeyKind = KeyLiteral
	field.KeyRef = ""
	field.KeySym = interner.Intern(name)
	return Alias{Category: category, Name: name, Field: field}, nil
}

func parseShape(entry *ast.Entry) (Shape, error) {
	blk, ok := entry.Value.(*ast.Block)
	if !ok {
		return Shape{}, fmt.Errorf("type shape %q must be a block", entry.Key.Text)
	}
	shape := Shape{TypeName: entry.Key.Text, Span: entry.Value.Span()}
	for i := range blk.Entries {
		e := &blk.Entries[i]
		if name, ok := bracketArg(e.Key.Text, "subtype"); ok {
			inner, ok := e.Value.(*ast.Block)
			if !ok {
				return Shape{}, fmt.Errorf("%s: subtype[%s] must be a block", shape.TypeName, name)
			}
			fields, err := parseFields(inner)
			if err != nil {
				return Shape{}, fmt.Errorf("%s: subtype[%s]: %w", shape.TypeName, name, err)
			}
			if shape.Subtypes == nil {
				shape.Subtypes = make(map[string][]Field)
			}
			shape.Subtypes[name] = append(shape.Subtypes[name], fields...)
			continue
		}
		field, err := parseField(e)
		if err != nil {
			return Shape{}, fmt.Errorf("%s: %w", shape.TypeName, err)
		}
		shape.Fields = append(shape.Fields, field)
	}
	return shape, nil
}

func parseFields(blk *ast.Block) ([]Field, error) {
	var fields []Field
	for i := range blk.Entries {
		field, err := parseField(&blk.Entries[i])
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return fields, nil
}

func parseField(entry *ast.Entry) (Field, error) {
	dir, err := collectDirectives(entry)
	if err != nil {
		return Field{}, fmt.Errorf("key %q: %w", entry.Key.Text, err)
	}

	value, err := classifyValue(entry.Value)
	if err != nil {
		return Field{}, fmt.Errorf("key %q: %w", entry.Key.Text, err)
	}

	field := Field{
		Value:   value,
		Card:    DefaultCardinality(),
		Options: dir.opts,
		Doc:     dir.doc,
		Span:    entry.Key.Sp,
	}
	field.Key, field.KeyKind, field.KeyRef = classifyKey(entry.Key.Text)
	if field.KeyKind == KeyLiteral {
		field.KeySym = interner.Intern(field.Key)
	}

	switch {
	case dir.card != nil:
		field.Card = *dir.card
	case dir.required:
		field.Card = Cardinality{Min: 1, Unbounded: true, Explicit: true}
	case dir.optional:
		field.Card = Cardinality{Min: 0, Max: 1, Explicit: true}
	case field.KeyKind != KeyLiteral:
		// Pattern keys match open-ended key sets; requiring exactly
		// one occurrence would make every wildcard mandatory.
		field.Card = Cardinality{Min: 0, Unbounded: true}
	}
	return field, nil
}

func classifyKey(text string) (key string, kind KeyKind, ref string) {
	switch {
	case strings.EqualFold(text, "scalar"):
		return text, KeyScalar, ""
	case strings.HasPrefix(text, "enum["):
		if arg, ok := bracketArg(text, "enum"); ok {
			return text, KeyEnum, arg
		}
	case strings.HasPrefix(text, "alias_name["):
		if arg, ok := bracketArg(text, "alias_name"); ok {
			return text, KeyAliasName, arg
		}
	case strings.HasPrefix(text, "<") && strings.HasSuffix(text, ">"):
		return text, KeyTypeRef, text[1 : len(text)-1]
	}
	return text, KeyLiteral, ""
}

func classifyValue(v ast.Value) (ValueSpec, error) {
	switch v := v.(type) {
	case *ast.Block:
		fields, err := parseFields(v)
		if err != nil {
			return ValueSpec{}, err
		}
		return ValueSpec{Kind: ValueBlock, Block: fields}, nil
	case *ast.Scalar:
		return classifyScalarSpec(v.Text)
	default:
		return ValueSpec{Kind: ValueLiteral, Ref: ast.Render(v)}, nil
	}
}

func classifyScalarSpec(text string) (ValueSpec, error) {
	switch {
	case strings.EqualFold(text, "bool"):
		return ValueSpec{Kind: ValueBool}, nil
	case strings.EqualFold(text, "int"):
		return ValueSpec{Kind: ValueInt}, nil
	case strings.EqualFold(text, "float"):
		return ValueSpec{Kind: ValueFloat}, nil
	case strings.EqualFold(text, "scalar"):
		return ValueSpec{Kind: ValueScalar}, nil
	case strings.EqualFold(text, "localisation"), strings.EqualFold(text, "localisation_synced"):
		return ValueSpec{Kind: ValueLocalisation}, nil
	case strings.EqualFold(text, "filepath"):
		return ValueSpec{Kind: ValueFilepath}, nil
	case strings.HasPrefix(text, "int["):
		rng, err := parseNumRange(text, "int")
		if err != nil {
			return ValueSpec{}, err
		}
		return ValueSpec{Kind: ValueInt, Range: rng}, nil
	case strings.HasPrefix(text, "float["):
		rng, err := parseNumRange(text, "float")
		if err != nil {
			return ValueSpec{}, err
		}
		return ValueSpec{Kind: ValueFloat, Range: rng}, nil
	case strings.HasPrefix(text, "enum["):
		if arg, ok := bracketArg(text, "enum"); ok {
			return ValueSpec{Kind: ValueEnum, Ref: arg}, nil
		}
	case strings.HasPrefix(text, "scope["):
		if arg, ok := bracketArg(text, "scope"); ok {
			return ValueSpec{Kind: ValueScopeRef, Ref: arg}, nil
		}
	case strings.HasPrefix(text, "alias_match_left["):
		if arg, ok := bracketArg(text, "alias_match_left"); ok {
			return ValueSpec{Kind: ValueAliasMatchLeft, Ref: arg}, nil
		}
	case strings.HasPrefix(text, "<") && strings.HasSuffix(text, ">"):
		return ValueSpec{Kind: ValueTypeRef, Ref: text[1 : len(text)-1]}, nil
	}
	return ValueSpec{Kind: ValueLiteral, Ref: text}, nil
}

func parseNumRange(text, prefix string) (*NumRange, error) {
	arg, ok := bracketArg(text, prefix)
	if !ok {
		return nil, fmt.Errorf("malformed range %q", text)
	}
	lo, hi, ok := strings.Cut(arg, "..")
	if !ok {
		return nil, fmt.Errorf("malformed range %q", text)
	}
	loVal, err := strconv.ParseFloat(lo, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed range %q", text)
	}
	if hi == "inf" {
		return &NumRange{Lo: loVal, Hi: math.Inf(1)}, nil
	}
	hiVal, err := strconv.ParseFloat(hi, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed range %q", text)
	}
	return &NumRange{Lo: loVal, Hi: hiVal}, nil
}

// bracketArg extracts x from prefix[x].
func bracketArg(text, prefix string) (string, bool) {
	if !strings.HasPrefix(text, prefix+"[") || !strings.HasSuffix(text, "]") {
		return "", false
	}
	arg := text[len(prefix)+1 : len(text)-1]
	if arg == "" {
		return "", false
	}
	return arg, true
}

func scalarText(v ast.Value) string {
	if s, ok := v.(*ast.Scalar); ok {
		return s.Text
	}
	return ""
}

type directives struct {
	card     *Cardinality
	opts     Options
	required bool
	optional bool
	doc      string
}

// collectDirectives reads the `##` and `###` comments attached to a
// schema entry. Directive text is itself script syntax, so it goes
// through the same parser.
func collectDirectives(entry *ast.Entry) (directives, error) {
	var dir directives
	var docs []string

	for _, c := range entry.Leading {
		switch c.Marker {
		case 3:
			docs = append(docs, c.Text)
		case 2:
			if err := applyDirective(&dir, c.Text); err != nil {
				return directives{}, err
			}
		}
	}
	dir.doc = strings.Join(docs, "\n")
	return dir, nil
}

func applyDirective(dir *directives, text string) error {
	root, diags := parser.Parse(text)
	if len(diags) > 0 {
		return fmt.Errorf("malformed directive %q", text)
	}

	for _, item := range root.Items {
		s, ok := item.(*ast.Scalar)
		if !ok {
			continue
		}
		switch {
		case strings.EqualFold(s.Text, "required"):
			dir.required = true
		case strings.EqualFold(s.Text, "optional"):
			dir.optional = true
		}
	}

	for i := range root.Entries {
		e := &root.Entries[i]
		switch {
		case strings.EqualFold(e.Key.Text, "cardinality"):
			card, err := parseCardinality(scalarText(e.Value))
			if err != nil {
				return err
			}
			dir.card = &card
		case strings.EqualFold(e.Key.Text, "replace_scope"):
			blk, ok := e.Value.(*ast.Block)
			if !ok {
				return fmt.Errorf("replace_scope must be a block in %q", text)
			}
			dir.opts.ReplaceScope = make(map[string]string, len(blk.Entries))
			for j := range blk.Entries {
				re := &blk.Entries[j]
				dir.opts.ReplaceScope[strings.ToLower(re.Key.Text)] = scalarText(re.Value)
			}
		case strings.EqualFold(e.Key.Text, "push_scope"):
			dir.opts.PushScope = scalarText(e.Value)
		case strings.EqualFold(e.Key.Text, "severity"):
			sev, err := parseSeverity(scalarText(e.Value))
			if err != nil {
				return err
			}
			dir.opts.Severity = sev
			dir.opts.SeveritySet = true
		case strings.EqualFold(e.Key.Text, "type_key_filter"):
			switch v := e.Value.(type) {
			case *ast.Scalar:
				dir.opts.TypeKeyFilter = []string{v.Text}
			case *ast.Block:
				for _, item := range v.Items {
					if s, ok := item.(*ast.Scalar); ok {
						dir.opts.TypeKeyFilter = append(dir.opts.TypeKeyFilter, s.Text)
					}
				}
			}
		case strings.EqualFold(e.Key.Text, "starts_with"):
			dir.opts.StartsWith = scalarText(e.Value)
		}
	}
	return nil
}

// parseCardinality reads ranges like 0..1, 1..inf, ~1..2. A ~ prefix
// marks the range soft, downgrading violations to warnings.
func parseCardinality(text string) (Cardinality, error) {
	card := Cardinality{Explicit: true}

	lo, hi, ok := strings.Cut(text, "..")
	if !ok {
		return Cardinality{}, fmt.Errorf("malformed cardinality %q", text)
	}
	if strings.HasPrefix(lo, "~") {
		card.Soft = true
		lo = lo[1:]
	}
	min, err := strconv.Atoi(lo)
	if err != nil || min < 0 {
		return Cardinality{}, fmt.Errorf("malformed cardinality %q", text)
	}
	card.Min = min

	if hi == "inf" || hi == "*" {
		card.Unbounded = true
		return card, nil
	}
	max, err := strconv.Atoi(hi)
	if err != nil || max < min {
		return Cardinality{}, fmt.Errorf("malformed cardinality %q", text)
	}
	card.Max = max
	return card, nil
}

func parseSeverity(text string) (diag.Severity, error) {
	switch strings.ToLower(text) {
	case "error":
		return diag.SeverityError, nil
	case "warning":
		return diag.SeverityWarning, nil
	case "information", "info", "hint":
		return diag.SeverityInfo, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", text)
	}
}
