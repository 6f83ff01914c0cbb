package scenario

import "testing"

func TestBuiltinCatalogIsComplete(t *testing.T) {
	scenarios := Builtin()
	if len(scenarios) == 0 {
		t.Fatal("catalog is empty")
	}
	seen := make(map[string]bool)
	for _, s := range scenarios {
		if s.ID == "" || s.Name == "" || s.Persona == "" || s.Voice == "" {
			t.Fatalf("scenario %q is missing required fields: %+v", s.ID, s)
		}
		if seen[s.ID] {
			t.Fatalf("duplicate scenario id %q", s.ID)
		}
		seen[s.ID] = true
		if s.Duration <= 0 {
			t.Fatalf("scenario %q has no duration", s.ID)
		}
		if len(s.Objectives) == 0 {
			t.Fatalf("scenario %q has no objectives", s.ID)
		}
	}
}

func TestByID(t *testing.T) {
	s, err := ByID("salary-negotiation")
	if err != nil {
		t.Fatalf("ByID failed: %v", err)
	}
	if s.Name != "Salary Negotiation" {
		t.Fatalf("unexpected scenario: %+v", s)
	}

	if _, err := ByID("no-such-scenario"); err == nil {
		t.Fatal("expected error for unknown id")
	}
}
