package backend

import (
	"encoding/json"
	"strings"
)

const valueIndent = "    "

// FormatValue renders a message description the way the endpoint panel shows
// it: "type name" for leaves and a braced, comma-separated block for
// messages that carry a field list, even an empty one. indentLevel 0 and 1
// both render flush left; each further level adds four spaces.
func FormatValue(v *Value, indentLevel int) string {
	if v == nil {
		return ""
	}

	indent := strings.Repeat(valueIndent, max(indentLevel-1, 0))
	if v.Values == nil {
		return indent + v.Type + " " + v.Name
	}

	fields := make([]string, 0, len(v.Values))
	for _, f := range v.Values {
		fields = append(fields, FormatValue(f, indentLevel+1))
	}

	var b strings.Builder
	b.WriteString(indent + v.Type + " " + v.Name + " {\n")
	b.WriteString(strings.Join(fields, ",\n"))
	b.WriteString("\n" + indent + "}")
	return b.String()
}

// ExampleRequest returns an indented JSON skeleton for a request message,
// used to pre-fill the call payload editor. Fields keep their declared order.
func ExampleRequest(v *Value) string {
	if v == nil || len(v.Values) == 0 {
		return "{}"
	}
	var b strings.Builder
	writeExampleObject(&b, v.Values, 0)
	return b.String()
}

func writeExampleObject(b *strings.Builder, fields []*Value, depth int) {
	present := make([]*Value, 0, len(fields))
	for _, f := range fields {
		if f != nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		b.WriteString("{}")
		return
	}
	pad := strings.Repeat("  ", depth+1)
	b.WriteString("{\n")
	for i, f := range present {
		b.WriteString(pad)
		b.WriteString(jsonString(f.Name) + ": ")
		writeExampleValue(b, f, depth+1)
		if i < len(present)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteByte('}')
}

func writeExampleValue(b *strings.Builder, f *Value, depth int) {
	typ := f.Type
	if strings.HasPrefix(typ, "[]") {
		b.WriteString("[]")
		return
	}
	if strings.HasPrefix(typ, "map[") {
		b.WriteString("{}")
		return
	}
	if len(f.Values) > 0 {
		writeExampleObject(b, f.Values, depth)
		return
	}

	switch strings.TrimPrefix(typ, "*") {
	case "string":
		b.WriteString(`""`)
	case "bool":
		b.WriteString("false")
	case "int", "int32", "int64", "uint", "uint32", "uint64",
		"float32", "float64", "double", "float":
		b.WriteString("0")
	default:
		b.WriteString("{}")
	}
}

// jsonString quotes s as a JSON string literal.
func jsonString(s string) string {
	out, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(out)
}
