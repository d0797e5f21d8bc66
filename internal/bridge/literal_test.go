package bridge

import "testing"

func TestPythonLiteralPrimitives(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, "None"},
		{true, "True"},
		{false, "False"},
		{"hi", "'hi'"},
		{"it's", `'it\'s'`},
		{float64(42), "42"},
		{float64(3.5), "3.5"},
	}
	for _, c := range cases {
		if got := PythonLiteral(c.in); got != c.want {
			t.Fatalf("PythonLiteral(%#v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPythonLiteralMapSortedKeys(t *testing.T) {
	m := map[string]any{"b": float64(2), "a": float64(1)}
	got := PythonLiteral(m)
	want := "{'a': 1, 'b': 2}"
	if got != want {
		t.Fatalf("PythonLiteral(map) = %q, want %q", got, want)
	}
}

func TestRubyLiteralMapUsesHashRocket(t *testing.T) {
	m := map[string]any{"name": "World"}
	got := RubyLiteral(m)
	want := "{'name' => 'World'}"
	if got != want {
		t.Fatalf("RubyLiteral(map) = %q, want %q", got, want)
	}
}

func TestPythonTrampolineSource(t *testing.T) {
	src := PythonTrampolineSource("handler", map[string]any{"name": "PyUser"})
	want := "def __faas_invoke__():\n    return handler({'name': 'PyUser'})\n"
	if src != want {
		t.Fatalf("PythonTrampolineSource = %q, want %q", src, want)
	}
}

func TestJSRequireNotFoundMessage(t *testing.T) {
	if got := JSRequireNotFoundMessage("greeter"); got != "Module not found: greeter" {
		t.Fatalf("JSRequireNotFoundMessage = %q", got)
	}
}
