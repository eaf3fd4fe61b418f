package rendering

import (
	"encoding/hex"
	"strconv"
	"strings"
)

var stringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Render serializes a value tree into contract source text
func Render(v Value) string {
	var b strings.Builder
	orNil(v).render(&b)
	return b.String()
}

// EscapeString escapes backslashes and double quotes
func EscapeString(s string) string {
	return stringEscaper.Replace(s)
}

func (Nil) render(b *strings.Builder) {
	b.WriteString("Nil")
}

func (v Bool) render(b *strings.Builder) {
	b.WriteString(strconv.FormatBool(bool(v)))
}

func (v Int) render(b *strings.Builder) {
	b.WriteString(strconv.FormatInt(int64(v), 10))
}

func (v String) render(b *strings.Builder) {
	writeQuoted(b, string(v))
}

func (v Bytes) render(b *strings.Builder) {
	b.WriteByte('"')
	b.WriteString(hex.EncodeToString(v))
	b.WriteString(`".hexToBytes()`)
}

func (v URI) render(b *strings.Builder) {
	b.WriteByte('`')
	b.WriteString(string(v))
	b.WriteByte('`')
}

func (v Inline) render(b *strings.Builder) {
	b.WriteString(string(v))
}

func (v Tuple) render(b *strings.Builder) {
	b.WriteByte('(')
	writeJoined(b, v)
	b.WriteByte(')')
}

func (v List) render(b *strings.Builder) {
	b.WriteByte('[')
	writeJoined(b, v)
	b.WriteByte(']')
}

func (v Set) render(b *strings.Builder) {
	b.WriteString("Set(")
	writeJoined(b, v.normalized())
	b.WriteByte(')')
}

func (v Map) render(b *strings.Builder) {
	b.WriteByte('{')
	for i, k := range v.sortedKeys() {
		if i > 0 {
			b.WriteString(", ")
		}
		writeQuoted(b, k)
		b.WriteString(": ")
		orNil(v[k]).render(b)
	}
	b.WriteByte('}')
}

func writeJoined(b *strings.Builder, values []Value) {
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		orNil(v).render(b)
	}
}

func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	stringEscaper.WriteString(b, s)
	b.WriteByte('"')
}
