package ast

import "strings"

// Render writes a value as a single line of script, used for changeset
// output and diagnostics. Quoted scalars keep their quotes; blocks render
// with spaces in source order.
func Render(v Value) string {
	var b strings.Builder
	render(&b, v)
	return b.String()
}

func render(b *strings.Builder, v Value) {
	switch val := v.(type) {
	case *Scalar:
		if val.Quoted {
			b.WriteByte('"')
			b.WriteString(val.Text)
			b.WriteByte('"')
			return
		}
		b.WriteString(val.Text)
	case *Color:
		b.WriteString(val.Model)
		b.WriteString(" { ")
		for _, c := range val.Components {
			b.WriteString(c)
			b.WriteByte(' ')
		}
		b.WriteByte('}')
	case *Maths:
		b.WriteString("@[")
		b.WriteString(val.Expr)
		b.WriteByte(']')
	case *Block:
		b.WriteString("{ ")
		for i := range val.Entries {
			e := &val.Entries[i]
			b.WriteString(e.Key.Text)
			b.WriteByte(' ')
			b.WriteString(e.Op.String())
			b.WriteByte(' ')
			render(b, e.Value)
			b.WriteByte(' ')
		}
		for _, item := range val.Items {
			render(b, item)
			b.WriteByte(' ')
		}
		b.WriteByte('}')
	}
}
