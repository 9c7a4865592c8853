package jsonschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validate checks that data is a JSON document conforming to the schema.
// Generation keeps output syntactically inside the schema's language;
// validation additionally enforces the constraints that are checked
// post hoc (numeric bounds) and is the last gate before a value is
// returned to the caller.
func (s *Schema) Validate(data []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return s.validate(s, v, "root")
}

func (s *Schema) validate(root *Schema, v any, path string) error {
	if s.Ref != "" {
		target, err := root.ResolveRef(s.Ref)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return target.validate(root, v, path)
	}

	if len(s.Enum) > 0 {
		canon, err := compactJSON(v)
		if err != nil {
			return err
		}
		for _, e := range s.Enum {
			var buf bytes.Buffer
			if err := json.Compact(&buf, e); err != nil {
				return fmt.Errorf("%s: bad enum value: %w", path, err)
			}
			if buf.String() == canon {
				return nil
			}
		}
		return fmt.Errorf("%s: %s is not one of the allowed values", path, canon)
	}

	switch typ := s.EffectiveType(); typ {
	case "object":
		obj, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected object", path)
		}
		for _, p := range s.Properties {
			pv, ok := obj[p.Name]
			if !ok {
				return fmt.Errorf("%s: missing property %q", path, p.Name)
			}
			if err := p.validate(root, pv, path+"."+p.Name); err != nil {
				return err
			}
		}
		if len(s.Properties) > 0 && len(obj) > len(s.Properties) {
			return fmt.Errorf("%s: unexpected extra properties", path)
		}

	case "array":
		arr, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%s: expected array", path)
		}
		if len(arr) < s.MinItems {
			return fmt.Errorf("%s: fewer than %d items", path, s.MinItems)
		}
		if s.MaxItems > 0 && len(arr) > s.MaxItems {
			return fmt.Errorf("%s: more than %d items", path, s.MaxItems)
		}
		for i, item := range arr {
			elemPath := fmt.Sprintf("%s[%d]", path, i)
			switch {
			case i < len(s.PrefixItems):
				if err := s.PrefixItems[i].validate(root, item, elemPath); err != nil {
					return err
				}
			case s.Items != nil:
				if err := s.Items.validate(root, item, elemPath); err != nil {
					return err
				}
			case len(s.PrefixItems) > 0:
				return fmt.Errorf("%s: unexpected item past closed tuple", elemPath)
			}
		}

	case "string":
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("%s: expected string", path)
		}
		n := utf8.RuneCountInString(str)
		if n < s.MinLength {
			return fmt.Errorf("%s: shorter than %d characters", path, s.MinLength)
		}
		if s.MaxLength > 0 && n > s.MaxLength {
			return fmt.Errorf("%s: longer than %d characters", path, s.MaxLength)
		}
		if s.Pattern != "" {
			re, err := regexp.Compile(anchored(s.Pattern))
			if err != nil {
				return fmt.Errorf("%s: bad pattern: %w", path, err)
			}
			if !re.MatchString(str) {
				return fmt.Errorf("%s: %q does not match %q", path, str, s.Pattern)
			}
		}

	case "integer", "number":
		num, ok := v.(json.Number)
		if !ok {
			return fmt.Errorf("%s: expected %s", path, typ)
		}
		f, err := num.Float64()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if typ == "integer" && f != math.Trunc(f) {
			return fmt.Errorf("%s: expected integer, got %s", path, num)
		}
		if s.Minimum != nil && f < *s.Minimum {
			return fmt.Errorf("%s: %s below minimum %v", path, num, *s.Minimum)
		}
		if s.Maximum != nil && f > *s.Maximum {
			return fmt.Errorf("%s: %s above maximum %v", path, num, *s.Maximum)
		}

	case "boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%s: expected boolean", path)
		}

	case "null":
		if v != nil {
			return fmt.Errorf("%s: expected null", path)
		}

	case "value":
		// anything goes

	default:
		return fmt.Errorf("%s: unsupported type %q", path, typ)
	}

	return nil
}

// ResolveRef resolves a "#/$defs/<name>" reference against this schema's
// Defs.
func (s *Schema) ResolveRef(ref string) (*Schema, error) {
	name, ok := strings.CutPrefix(ref, "#/$defs/")
	if !ok {
		return nil, fmt.Errorf("unsupported $ref %q", ref)
	}
	target, ok := s.Defs[name]
	if !ok {
		return nil, fmt.Errorf("$ref %q not found in $defs", ref)
	}
	return target, nil
}

func anchored(pattern string) string {
	return `\A(?:` + pattern + `)\z`
}

func compactJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
