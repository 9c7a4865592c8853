// Package jsonschema decodes the subset of JSON Schema the engine can
// compile, preserving property order, and validates generated values
// against it.
package jsonschema

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Schema holds a JSON schema.
type Schema struct {
	// Name is the name of the property. For the parent/root property,
	// this is "root". For child properties, this is the property key.
	Name string `json:"-"`

	// Type is the type of the property.
	Type string

	// Ref references a schema under the root's $defs, in the form
	// "#/$defs/<name>". When set, every other constraint field is
	// ignored, matching common producer behavior.
	Ref string `json:"$ref"`

	// Defs holds reusable schemas referenced via $ref. Only the root
	// schema's Defs are consulted.
	Defs map[string]*Schema `json:"$defs"`

	// PrefixItems is a list of schemas for each item in a tuple. By
	// default, the tuple is "closed" unless Items is set to true or a
	// valid Schema.
	PrefixItems []*Schema

	// Items is the schema for each item in a list.
	//
	// If it is missing, or its JSON value is "null" or "false", it is
	// nil. If the JSON value is "true", it is set to the empty Schema.
	// If the JSON value is an object, it will be decoded as a Schema.
	Items *Schema

	// MinItems specifies the minimum number of items allowed in a list.
	MinItems int

	// MaxItems specifies the maximum number of items allowed in a list.
	// Zero means unbounded.
	MaxItems int

	// Properties is the schema for each property of an object, in the
	// order the schema declared them.
	Properties []*Schema

	// Pattern constrains string values to a regular expression.
	Pattern string

	// MinLength and MaxLength bound string values in characters.
	// A zero MaxLength means unbounded.
	MinLength int
	MaxLength int

	// Minimum and Maximum bound numeric values, nil meaning unbounded on
	// that side. They are enforced at validation time, not during
	// generation.
	Minimum *float64
	Maximum *float64

	// Enum is a list of valid values for the property.
	Enum []json.RawMessage
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	type S Schema
	w := struct {
		Properties props
		Items      items
		*S
	}{
		S: (*S)(s),
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Items.set {
		s.Items = &w.Items.Schema
	}
	s.Properties = w.Properties
	return nil
}

type items struct {
	Schema
	set bool
}

func (s *items) UnmarshalJSON(data []byte) error {
	switch b := data[0]; b {
	case 't':
		*s = items{set: true}
	case '{':
		type I items
		if err := json.Unmarshal(data, (*I)(s)); err != nil {
			return err
		}
		s.set = true
	case 'n', 'f':
	default:
		return errors.New("invalid Items")
	}
	return nil
}

// EffectiveType returns the effective type of the schema. If the Type
// field is not empty, it is returned; otherwise:
//
//   - If the schema has Properties, it returns "object".
//   - If the schema has PrefixItems or Items, it returns "array".
//   - Otherwise it returns "value".
//
// The returned string is never empty.
func (s *Schema) EffectiveType() string {
	if s.Type == "" {
		if len(s.Properties) > 0 {
			return "object"
		}
		if len(s.PrefixItems) > 0 || s.Items != nil {
			return "array"
		}
		return "value"
	}
	return s.Type
}

// props is an ordered list of properties. The order of the properties
// is the order in which they were defined in the schema.
type props []*Schema

var _ json.Unmarshaler = (*props)(nil)

func (v *props) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if data[0] != '{' {
		return errors.New("expected object")
	}

	d := json.NewDecoder(bytes.NewReader(data))

	// Unknown schema fields are ignored, like llama.cpp does, so order
	// of properties is the only structure we preserve beyond the
	// declared constraint fields.

	t, err := d.Token()
	if err != nil {
		return err
	}
	if t != json.Delim('{') {
		return errors.New("expected object")
	}
	for d.More() {
		// Use the first token (map key) as the property name, then
		// decode the rest of the object fields into a Schema and
		// append.
		t, err := d.Token()
		if err != nil {
			return err
		}
		if t == json.Delim('}') {
			return nil
		}
		s := &Schema{
			Name: t.(string),
		}
		if err := d.Decode(s); err != nil {
			return err
		}
		*v = append(*v, s)
	}
	return nil
}
