package jsonschema

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func decode(t *testing.T, src string) *Schema {
	t.Helper()
	var s *Schema
	if err := json.Unmarshal([]byte(src), &s); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestPropertyOrderPreserved(t *testing.T) {
	s := decode(t, `{
		"type": "object",
		"properties": {
			"zeta": {"type": "string"},
			"alpha": {"type": "integer"},
			"mid": {"type": "boolean"}
		}
	}`)

	var names []string
	for _, p := range s.Properties {
		names = append(names, p.Name)
	}
	if diff := cmp.Diff([]string{"zeta", "alpha", "mid"}, names); diff != "" {
		t.Errorf("property order mismatch (-want +got):\n%s", diff)
	}
}

func TestItemsForms(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want func(*Schema) bool
	}{
		{"absent", `{"prefixItems": [{"type": "integer"}]}`, func(s *Schema) bool { return s.Items == nil }},
		{"false", `{"items": false}`, func(s *Schema) bool { return s.Items == nil }},
		{"true", `{"items": true}`, func(s *Schema) bool { return s.Items != nil && s.Items.EffectiveType() == "value" }},
		{"object", `{"items": {"type": "string"}}`, func(s *Schema) bool { return s.Items != nil && s.Items.Type == "string" }},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if s := decode(t, tt.src); !tt.want(s) {
				t.Errorf("unexpected Items for %s", tt.src)
			}
		})
	}
}

func TestEffectiveType(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{`{"type": "string"}`, "string"},
		{`{"properties": {"a": {"type": "integer"}}}`, "object"},
		{`{"items": {"type": "integer"}}`, "array"},
		{`{"prefixItems": [{"type": "integer"}]}`, "array"},
		{`{}`, "value"},
	}

	for _, tt := range cases {
		if got := decode(t, tt.src).EffectiveType(); got != tt.want {
			t.Errorf("EffectiveType(%s) = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestResolveRef(t *testing.T) {
	s := decode(t, `{
		"$defs": {"port": {"type": "integer", "minimum": 1, "maximum": 65535}},
		"$ref": "#/$defs/port"
	}`)

	target, err := s.ResolveRef(s.Ref)
	if err != nil {
		t.Fatal(err)
	}
	if target.Type != "integer" {
		t.Errorf("resolved type = %q, want integer", target.Type)
	}

	if _, err := s.ResolveRef("#/$defs/missing"); err == nil {
		t.Error("expected error for missing def")
	}
	if _, err := s.ResolveRef("http://example.com/s.json"); err == nil {
		t.Error("expected error for external ref")
	}
}
