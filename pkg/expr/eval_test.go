package expr

import (
	"strings"
	"testing"
)

func testBindings() Bindings {
	return Bindings{
		"name":    "paper",
		"count":   int64(3),
		"enabled": true,
		"data": map[string]interface{}{
			"primary": "mods/sodium.jar",
			"files":   []interface{}{"mods/sodium.jar", "mods/lithium.jar"},
			"nested": map[string]interface{}{
				"run_number": int64(42),
			},
		},
	}
}

// TestEval covers the expression surface: arithmetic, strings,
// comparisons, boolean logic and field access.
func TestEval(t *testing.T) {
	tests := []struct {
		src  string
		want interface{}
	}{
		{"1 + 1", int64(2)},
		{"2 * 3 + 4", int64(10)},
		{"2 + 3 * 4", int64(14)},
		{"(2 + 3) * 4", int64(20)},
		{"10 / 2", int64(5)},
		{"7 / 2", 3.5},
		{"7 % 2", int64(1)},
		{"-count", int64(-3)},
		{"1.5 + 1", 2.5},
		{`"a" + "b"`, "ab"},
		{`"server-" + name`, "server-paper"},
		{`name == "paper"`, true},
		{`name != "paper"`, false},
		{"count > 2", true},
		{"count <= 2", false},
		{"1 == 1.0", true},
		{`"abc" < "abd"`, true},
		{"enabled && count > 0", true},
		{"!enabled", false},
		{"count > 5 || enabled", true},
		{"true && false", false},
		{"data.primary", "mods/sodium.jar"},
		{"data.files[1]", "mods/lithium.jar"},
		{"data.nested.run_number == 42", true},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := Eval(tt.src, testBindings())
			if err != nil {
				t.Fatalf("Eval(%q) failed: %v", tt.src, err)
			}
			if got != tt.want {
				t.Errorf("Eval(%q) = %v (%T), want %v (%T)", tt.src, got, got, tt.want, tt.want)
			}
		})
	}
}

// TestEvalShortCircuit proves the right side of && and || is not
// evaluated when the left side decides.
func TestEvalShortCircuit(t *testing.T) {
	got, err := Eval("false && missing", testBindings())
	if err != nil {
		t.Fatalf("short-circuited && still evaluated the right side: %v", err)
	}
	if got != false {
		t.Errorf("got %v, want false", got)
	}

	got, err = Eval("true || missing", testBindings())
	if err != nil {
		t.Fatalf("short-circuited || still evaluated the right side: %v", err)
	}
	if got != true {
		t.Errorf("got %v, want true", got)
	}
}

// TestEvalErrors checks that failures carry a usable source position.
func TestEvalErrors(t *testing.T) {
	tests := []struct {
		src     string
		wantMsg string
	}{
		{"missing", "unknown name"},
		{"data.unknown", "unknown field"},
		{"data.files[9]", "out of range"},
		{"1 / 0", "division by zero"},
		{`"a" + 1`, "needs two strings or two numbers"},
		{"name.field", "cannot access field"},
		{"1 +", ""},
		{"a = b", ""},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := Eval(tt.src, testBindings())
			if err == nil {
				t.Fatalf("Eval(%q) succeeded, want error", tt.src)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Message, tt.wantMsg) {
				t.Errorf("Eval(%q) error %q, want it to contain %q", tt.src, err.Message, tt.wantMsg)
			}
			if err.Line < 1 || err.Col < 1 {
				t.Errorf("Eval(%q) error has no position: line %d col %d", tt.src, err.Line, err.Col)
			}
		})
	}
}

// TestCaretBlock renders the offending line with a caret under the
// error column.
func TestCaretBlock(t *testing.T) {
	_, err := Eval("1 + missing", testBindings())
	if err != nil {
		block := err.CaretBlock()
		if !strings.Contains(block, "1 + missing") {
			t.Errorf("caret block misses the source line:\n%s", block)
		}
		if !strings.Contains(block, "^") {
			t.Errorf("caret block misses the caret:\n%s", block)
		}
		return
	}
	t.Fatal("expected an error for an unknown name")
}

// TestEvalTemplate renders mixed literal and expression parts.
func TestEvalTemplate(t *testing.T) {
	got, err := EvalTemplate("server-${{name}}-${{count + 1}}.jar", testBindings())
	if err != nil {
		t.Fatalf("EvalTemplate failed: %v", err)
	}
	if want := "server-paper-4.jar"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	got, err = EvalTemplate(`literal \${{name}} stays`, testBindings())
	if err != nil {
		t.Fatalf("EvalTemplate failed: %v", err)
	}
	if want := "literal ${{name}} stays"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestTruthy covers the gate coercion rules.
func TestTruthy(t *testing.T) {
	tests := []struct {
		name      string
		value     interface{}
		want      bool
		defaulted bool
	}{
		{"bool true", true, true, false},
		{"bool false", false, false, false},
		{"nonzero int", int64(7), true, false},
		{"zero int", int64(0), false, false},
		{"string true", "true", true, false},
		{"string TRUE", "TRUE", true, false},
		{"string yes", "yes", false, false},
		{"empty string", "", false, false},
		{"list defaults true", []interface{}{}, true, true},
		{"map defaults true", map[string]interface{}{}, true, true},
		{"nil defaults true", nil, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, defaulted := Truthy(tt.value)
			if got != tt.want || defaulted != tt.defaulted {
				t.Errorf("Truthy(%#v) = (%v, %v), want (%v, %v)", tt.value, got, defaulted, tt.want, tt.defaulted)
			}
		})
	}
}
