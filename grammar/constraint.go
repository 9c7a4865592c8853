// Package grammar compiles declarative constraints into the character
// machines the engine decodes against. A Constraint is a closed tagged
// variant over the supported pattern kinds; Compile resolves it into an
// automaton.Machine once, and nothing downstream inspects the kind again
// except to shape the final result.
package grammar

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/railgen/railgen/automaton"
	"github.com/railgen/railgen/grammar/jsonschema"
)

type Kind int

const (
	KindRegex Kind = iota
	KindJSONSchema
	KindGrammar
	KindChoices
	KindType
)

func (k Kind) String() string {
	switch k {
	case KindRegex:
		return "regex"
	case KindJSONSchema:
		return "json-schema"
	case KindGrammar:
		return "grammar"
	case KindChoices:
		return "choices"
	case KindType:
		return "type"
	}
	return "unknown"
}

type Primitive int

const (
	Integer Primitive = iota
	Float
	Boolean
)

const (
	integerPattern = `-?(?:0|[1-9][0-9]*)`
	numberPattern  = `-?(?:0|[1-9][0-9]*)(?:\.[0-9]+)?(?:[eE][+-]?[0-9]+)?`
	booleanPattern = `(?:true|false)`
)

// Constraint carries one pattern and its kind. The zero value is an empty
// regex, which fails to compile; build values with the From functions.
type Constraint struct {
	kind   Kind
	source string
	prim   Primitive
}

func FromRegex(pattern string) Constraint {
	return Constraint{kind: KindRegex, source: pattern}
}

// FromJSONSchema takes the raw schema document. Decoding is deferred to
// Compile so malformed schemas surface as CompileErrors there.
func FromJSONSchema(schema []byte) Constraint {
	return Constraint{kind: KindJSONSchema, source: string(schema)}
}

// FromGrammar takes an EBNF grammar with a required root rule.
func FromGrammar(ebnf string) Constraint {
	return Constraint{kind: KindGrammar, source: ebnf}
}

// FromChoices constrains output to exactly one of the given literals,
// in order of preference for signature purposes only.
func FromChoices(options []string) Constraint {
	data, _ := json.Marshal(options)
	return Constraint{kind: KindChoices, source: string(data)}
}

func FromType(p Primitive) Constraint {
	return Constraint{kind: KindType, source: p.pattern(), prim: p}
}

func (p Primitive) pattern() string {
	switch p {
	case Integer:
		return integerPattern
	case Float:
		return numberPattern
	case Boolean:
		return booleanPattern
	}
	return ""
}

func (c Constraint) Kind() Kind {
	return c.kind
}

// Primitive returns the primitive for KindType constraints.
func (c Constraint) Primitive() Primitive {
	return c.prim
}

// Schema decodes the schema document for KindJSONSchema constraints, for
// validating generated output against it.
func (c Constraint) Schema() (*jsonschema.Schema, error) {
	var s *jsonschema.Schema
	if err := json.Unmarshal([]byte(c.source), &s); err != nil {
		return nil, err
	}
	return s, nil
}

// Signature is a stable digest of the constraint, used with the tokenizer
// signature as the cache key.
func (c Constraint) Signature() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d\x00%s", c.kind, c.source)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// CompileError reports a malformed or unsupported pattern. It is never
// retried and never cached.
type CompileError struct {
	Kind Kind
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %s: %v", e.Kind, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Compile resolves a constraint into its machine. Every kind except
// KindGrammar lowers to a regular expression and shares the DFA path;
// grammars get a pushdown machine.
func Compile(c Constraint) (automaton.Machine, error) {
	fail := func(err error) (automaton.Machine, error) {
		return nil, &CompileError{Kind: c.kind, Err: err}
	}

	switch c.kind {
	case KindRegex, KindType:
		d, err := automaton.CompileRegex(c.source)
		if err != nil {
			return fail(err)
		}
		return d, nil

	case KindChoices:
		var options []string
		if err := json.Unmarshal([]byte(c.source), &options); err != nil {
			return fail(err)
		}
		if len(options) == 0 {
			return fail(fmt.Errorf("no options given"))
		}
		quoted := make([]string, len(options))
		for i, opt := range options {
			quoted[i] = regexp.QuoteMeta(opt)
		}
		d, err := automaton.CompileRegex("(?:" + strings.Join(quoted, "|") + ")")
		if err != nil {
			return fail(err)
		}
		return d, nil

	case KindJSONSchema:
		s, err := c.Schema()
		if err != nil {
			return fail(err)
		}
		pattern, err := schemaPattern(s)
		if err != nil {
			return fail(err)
		}
		d, err := automaton.CompileRegex(pattern)
		if err != nil {
			return fail(err)
		}
		return d, nil

	case KindGrammar:
		g, err := parseEBNF(c.source)
		if err != nil {
			return fail(err)
		}
		p, err := automaton.NewPushdown(g)
		if err != nil {
			return fail(err)
		}
		return p, nil
	}

	return fail(fmt.Errorf("unknown constraint kind %d", c.kind))
}
