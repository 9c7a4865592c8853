package grammar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/railgen/railgen/grammar/jsonschema"
)

// JSON schemas compile through the regex path: the schema is lowered to a
// regular expression over JSON text and determinized like any other
// pattern. The output is canonical JSON except for an optional single
// space after ':' and ',', which keeps models that prefer pretty-printed
// JSON inside the language without growing the automaton much.
const (
	jsonStringChar = `(?:[^"\\\x00-\x1f]|\\(?:["\\/bfnrt]|u[0-9a-fA-F]{4}))`
	jsonSep        = `,[ ]?`
)

type schemaWriter struct {
	sb     strings.Builder
	root   *jsonschema.Schema
	active map[*jsonschema.Schema]bool
}

func schemaPattern(s *jsonschema.Schema) (string, error) {
	w := &schemaWriter{
		root:   s,
		active: make(map[*jsonschema.Schema]bool),
	}
	if err := w.write(s); err != nil {
		return "", err
	}
	return w.sb.String(), nil
}

func (w *schemaWriter) write(s *jsonschema.Schema) error {
	if s.Ref != "" {
		target, err := w.root.ResolveRef(s.Ref)
		if err != nil {
			return err
		}
		if w.active[target] {
			return fmt.Errorf("%s: recursive $ref %q cannot be compiled", s.Name, s.Ref)
		}
		w.active[target] = true
		defer delete(w.active, target)
		return w.write(target)
	}

	if len(s.Enum) > 0 {
		return w.writeEnum(s)
	}

	switch typ := s.EffectiveType(); typ {
	case "object":
		return w.writeObject(s)
	case "array":
		return w.writeArray(s)
	case "string":
		return w.writeString(s)
	case "integer":
		w.sb.WriteString(integerPattern)
	case "number":
		w.sb.WriteString(numberPattern)
	case "boolean":
		w.sb.WriteString(booleanPattern)
	case "null":
		w.sb.WriteString("null")
	default:
		return fmt.Errorf("%s: unsupported type %q", s.Name, typ)
	}
	return nil
}

func (w *schemaWriter) writeEnum(s *jsonschema.Schema) error {
	w.sb.WriteString("(?:")
	for i, e := range s.Enum {
		if i > 0 {
			w.sb.WriteByte('|')
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, e); err != nil {
			return fmt.Errorf("%s: bad enum value: %w", s.Name, err)
		}
		w.sb.WriteString(regexp.QuoteMeta(buf.String()))
	}
	w.sb.WriteByte(')')
	return nil
}

func (w *schemaWriter) writeObject(s *jsonschema.Schema) error {
	if len(s.Properties) == 0 {
		return fmt.Errorf("%s: object without properties is not a regular language", s.Name)
	}

	w.sb.WriteString(`\{`)
	for i, p := range s.Properties {
		if i > 0 {
			w.sb.WriteString(jsonSep)
		}
		name, err := json.Marshal(p.Name)
		if err != nil {
			return err
		}
		w.sb.WriteString(regexp.QuoteMeta(string(name)))
		w.sb.WriteString(`:[ ]?`)
		if err := w.write(p); err != nil {
			return err
		}
	}
	w.sb.WriteString(`\}`)
	return nil
}

func (w *schemaWriter) writeArray(s *jsonschema.Schema) error {
	if len(s.PrefixItems) == 0 && s.Items == nil {
		return fmt.Errorf("%s: array without item schema is not a regular language", s.Name)
	}

	w.sb.WriteString(`\[`)
	for i, p := range s.PrefixItems {
		if i > 0 {
			w.sb.WriteString(jsonSep)
		}
		if err := w.write(p); err != nil {
			return err
		}
	}
	if s.Items != nil {
		lo := max(0, s.MinItems-len(s.PrefixItems))
		hi := -1 // unbounded
		if s.MaxItems > 0 {
			hi = s.MaxItems - len(s.PrefixItems)
			if hi < lo {
				return fmt.Errorf("%s: maxItems below minItems", s.Name)
			}
		}

		sub := &schemaWriter{root: w.root, active: w.active}
		if err := sub.write(s.Items); err != nil {
			return err
		}
		item := sub.sb.String()

		if len(s.PrefixItems) > 0 {
			// repeated tail after a closed tuple prefix
			w.sb.WriteString("(?:" + jsonSep + item + ")")
			w.sb.WriteString(repCount(lo, hi))
		} else {
			rest := "(?:" + jsonSep + item + ")"
			restHi := hi
			if hi > 0 {
				restHi = hi - 1
			}
			if lo == 0 {
				w.sb.WriteString("(?:" + item + rest + repCount(0, restHi) + ")?")
			} else {
				w.sb.WriteString(item + rest + repCount(lo-1, restHi))
			}
		}
	}
	w.sb.WriteString(`\]`)
	return nil
}

func (w *schemaWriter) writeString(s *jsonschema.Schema) error {
	w.sb.WriteByte('"')
	if s.Pattern != "" {
		if s.MinLength > 0 || s.MaxLength > 0 {
			return fmt.Errorf("%s: pattern with length bounds is unsupported", s.Name)
		}
		w.sb.WriteString("(?:" + s.Pattern + ")")
	} else {
		hi := -1
		if s.MaxLength > 0 {
			hi = s.MaxLength
		}
		w.sb.WriteString(jsonStringChar)
		w.sb.WriteString(repCount(s.MinLength, hi))
	}
	w.sb.WriteByte('"')
	return nil
}

// repCount renders a repetition suffix for lo..hi occurrences, hi < 0
// meaning unbounded.
func repCount(lo, hi int) string {
	switch {
	case hi < 0 && lo == 0:
		return "*"
	case hi < 0:
		return fmt.Sprintf("{%d,}", lo)
	default:
		return fmt.Sprintf("{%d,%d}", lo, hi)
	}
}
