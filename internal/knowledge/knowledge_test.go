package knowledge

import (
	"strings"
	"testing"
)

func TestDefaultParses(t *testing.T) {
	kb, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if got := kb.Standard(); got != "ISO/IEC 27001:2022" {
		t.Fatalf("Standard() = %q", got)
	}
	if got := kb.ControlCount(); got != 93 {
		t.Fatalf("ControlCount() = %d, want 93", got)
	}
}

func TestRenderIsIndentedAndOrdered(t *testing.T) {
	kb, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	out := kb.Render()
	if !strings.HasPrefix(out, "{\n  \"standard\"") {
		t.Fatalf("Render() should start with the standard key, got %q", out[:40])
	}
	if strings.Index(out, "\"clauses\"") > strings.Index(out, "\"control_groups\"") {
		t.Fatalf("Render() reordered keys")
	}
}

func TestControlGroupLookup(t *testing.T) {
	kb, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	for _, id := range []string{"A.6", "6", " a.6 "} {
		raw, ok := kb.ControlGroup(id)
		if !ok {
			t.Fatalf("ControlGroup(%q) not found", id)
		}
		if !strings.Contains(string(raw), `"People controls"`) {
			t.Fatalf("ControlGroup(%q) = %s", id, raw)
		}
	}
	if _, ok := kb.ControlGroup("A.9"); ok {
		t.Fatalf("ControlGroup(A.9) should not exist")
	}
}

func TestClauseLookup(t *testing.T) {
	kb, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	raw, ok := kb.Clause("9")
	if !ok || !strings.Contains(string(raw), "9.2 Internal audit") {
		t.Fatalf("Clause(9) = %s, %v", raw, ok)
	}
	if _, ok := kb.Clause("11"); ok {
		t.Fatalf("Clause(11) should not exist")
	}
	if _, ok := kb.Clause("*"); ok {
		t.Fatalf("Clause(*) should not match by wildcard")
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	if _, err := Parse([]byte(`{"standard":`)); err == nil {
		t.Fatalf("Parse() expected error for invalid json")
	}
	if _, err := Parse([]byte(`{"standard":"x"}`)); err == nil {
		t.Fatalf("Parse() expected error without control_groups")
	}
}
