package automaton

import (
	"errors"
	"testing"
)

func accepts(m Machine, s string) bool {
	st := m.Start()
	for _, r := range s {
		var ok bool
		st, ok = m.Step(st, r)
		if !ok {
			return false
		}
	}
	return m.IsAccept(st)
}

const dottedQuad = `((25[0-5]|2[0-4]\d|[01]?\d\d?)\.){3}(25[0-5]|2[0-4]\d|[01]?\d\d?)`

func TestCompileRegex(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		match   []string
		reject  []string
	}{
		{
			name:    "literal",
			pattern: `abc`,
			match:   []string{"abc"},
			reject:  []string{"", "ab", "abcd", "abd"},
		},
		{
			name:    "alternation",
			pattern: `cat|car|cow`,
			match:   []string{"cat", "car", "cow"},
			reject:  []string{"ca", "c", "caw"},
		},
		{
			name:    "star accepts empty",
			pattern: `a*`,
			match:   []string{"", "a", "aaaa"},
			reject:  []string{"b", "ab"},
		},
		{
			name:    "class repetition",
			pattern: `[0-9]+`,
			match:   []string{"0", "42", "00123"},
			reject:  []string{"", "4a", "-1"},
		},
		{
			name:    "counted repetition",
			pattern: `(ab){2,3}`,
			match:   []string{"abab", "ababab"},
			reject:  []string{"ab", "abababab"},
		},
		{
			name:    "case folding",
			pattern: `(?i)go`,
			match:   []string{"go", "GO", "Go", "gO"},
			reject:  []string{"g", "goo"},
		},
		{
			name:    "anchors are redundant",
			pattern: `^ab$`,
			match:   []string{"ab"},
			reject:  []string{"a", "abc"},
		},
		{
			name:    "unicode class",
			pattern: `\p{Greek}+`,
			match:   []string{"αβγ"},
			reject:  []string{"abc"},
		},
		{
			name:    "dotted quad",
			pattern: dottedQuad,
			match:   []string{"0.0.0.0", "255.255.255.255", "192.168.1.10", "1.2.3.4"},
			reject:  []string{"256.1.1.1", "1.2.3", "1.2.3.4.5", "1..2.3", "a.b.c.d"},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			d, err := CompileRegex(tt.pattern)
			if err != nil {
				t.Fatalf("CompileRegex(%q): %v", tt.pattern, err)
			}
			for _, s := range tt.match {
				if !accepts(d, s) {
					t.Errorf("%q should match %q", tt.pattern, s)
				}
			}
			for _, s := range tt.reject {
				if accepts(d, s) {
					t.Errorf("%q should not match %q", tt.pattern, s)
				}
			}
		})
	}
}

func TestCompileRegexErrors(t *testing.T) {
	if _, err := CompileRegex(`a(`); err == nil {
		t.Error("expected syntax error for unbalanced paren")
	}
	if _, err := CompileRegex(`a\bc`); err == nil {
		t.Error("expected error for word boundary")
	}
	if _, err := CompileRegex(`$a`); !errors.Is(err, ErrEmptyLanguage) {
		t.Errorf("expected ErrEmptyLanguage, got %v", err)
	}
}

// Pruning must leave no reachable non-accepting state without a live
// transition; walking any legal prefix always leaves a way forward.
func TestNoDeadStates(t *testing.T) {
	d, err := CompileRegex(dottedQuad)
	if err != nil {
		t.Fatal(err)
	}
	for s := range uint32(d.Len()) {
		if d.IsAccept(s) {
			continue
		}
		if len(d.states[s].edges) == 0 {
			t.Errorf("state %d is a non-accepting dead end", s)
		}
	}
}

func TestCompileRegexDeterministic(t *testing.T) {
	a, err := CompileRegex(dottedQuad)
	if err != nil {
		t.Fatal(err)
	}
	b, err := CompileRegex(dottedQuad)
	if err != nil {
		t.Fatal(err)
	}
	if a.Len() != b.Len() || a.start != b.start {
		t.Fatalf("rebuild differs: %d/%d states, start %d/%d", a.Len(), b.Len(), a.start, b.start)
	}
	for i := range a.states {
		as, bs := a.states[i], b.states[i]
		if as.accept != bs.accept || len(as.edges) != len(bs.edges) {
			t.Fatalf("state %d differs between builds", i)
		}
		for j := range as.edges {
			if as.edges[j] != bs.edges[j] {
				t.Fatalf("state %d edge %d differs between builds", i, j)
			}
		}
	}
}
