package grammar

import (
	"errors"
	"testing"
)

func TestCompileChoices(t *testing.T) {
	m, err := Compile(FromChoices([]string{"Blue", "Red", "C++ (modern)"}))
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"Blue", "Red", "C++ (modern)"} {
		if !accepts(m, s) {
			t.Errorf("should accept %q", s)
		}
	}
	for _, s := range []string{"", "Blu", "Bluee", "blue", "C (modern)"} {
		if accepts(m, s) {
			t.Errorf("should reject %q", s)
		}
	}

	if _, err := Compile(FromChoices(nil)); err == nil {
		t.Error("empty choices should not compile")
	}
}

func TestCompileType(t *testing.T) {
	cases := []struct {
		prim   Primitive
		match  []string
		reject []string
	}{
		{Integer, []string{"0", "7", "-13", "100"}, []string{"", "007", "1.5", "+3", "-"}},
		{Float, []string{"0", "-2.5", "1e9", "3.14e-2"}, []string{"", ".5", "1.", "e9"}},
		{Boolean, []string{"true", "false"}, []string{"", "True", "yes", "tru"}},
	}

	for _, tt := range cases {
		m, err := Compile(FromType(tt.prim))
		if err != nil {
			t.Fatal(err)
		}
		for _, s := range tt.match {
			if !accepts(m, s) {
				t.Errorf("%v should accept %q", tt.prim, s)
			}
		}
		for _, s := range tt.reject {
			if accepts(m, s) {
				t.Errorf("%v should reject %q", tt.prim, s)
			}
		}
	}
}

func TestSignature(t *testing.T) {
	a := FromRegex(`[0-9]+`)
	if a.Signature() != FromRegex(`[0-9]+`).Signature() {
		t.Error("same constraint must produce the same signature")
	}
	if a.Signature() == FromRegex(`[0-9]*`).Signature() {
		t.Error("different patterns must produce different signatures")
	}
	// same source text under a different kind is a different constraint
	if a.Signature() == FromGrammar(`[0-9]+`).Signature() {
		t.Error("kind must be part of the signature")
	}
}

func TestCompileErrorKind(t *testing.T) {
	_, err := Compile(FromRegex(`a(`))
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CompileError, got %v", err)
	}
	if ce.Kind != KindRegex {
		t.Errorf("Kind = %v, want %v", ce.Kind, KindRegex)
	}

	_, err = Compile(FromJSONSchema([]byte(`{not json`)))
	if !errors.As(err, &ce) {
		t.Fatalf("expected CompileError, got %v", err)
	}
	if ce.Kind != KindJSONSchema {
		t.Errorf("Kind = %v, want %v", ce.Kind, KindJSONSchema)
	}
}
