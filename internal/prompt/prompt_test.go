package prompt

import "testing"

func TestInstructions_KnownRoles(t *testing.T) {
	r := NewRegistry()
	for _, role := range []string{RolePlanner, RoleDesigner, RoleCritic, RoleGeneralist} {
		s, known := r.Instructions(role)
		if !known || s == "" {
			t.Fatalf("role %s: known=%v instructions=%q", role, known, s)
		}
	}
}

func TestInstructions_UnknownRoleFallsBack(t *testing.T) {
	r := NewRegistry()
	s, known := r.Instructions("astrologer")
	if known {
		t.Fatalf("unknown role reported as known")
	}
	generalist, _ := r.Instructions(RoleGeneralist)
	if s != generalist {
		t.Fatalf("fallback is not the generalist payload")
	}
}

func TestInstructions_NormalizesRole(t *testing.T) {
	r := NewRegistry()
	a, known := r.Instructions(" Designer ")
	if !known {
		t.Fatalf("normalized role not recognized")
	}
	b, _ := r.Instructions(RoleDesigner)
	if a != b {
		t.Fatalf("normalization mismatch")
	}
}

func TestSet_OverridesRole(t *testing.T) {
	r := NewRegistry()
	r.Set(RoleCritic, "custom critic instructions")
	s, known := r.Instructions(RoleCritic)
	if !known || s != "custom critic instructions" {
		t.Fatalf("override not applied: %q", s)
	}
}
