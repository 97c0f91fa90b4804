package key

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Field is one named component of a [Key].
type Field struct {
	Name  string
	Value Value
}

// Key is an ordered tuple of named fields.
//
// A Key may be partial: fields that are not present (or hold an Undefined
// value) do not constrain comparisons or matches.
type Key []Field

// Of builds a Key from alternating name/value arguments, converting each
// value with [ValueOf]:
//
//	key.Of("channelId", "UC123", "upload", "2021-01-01")
//
// Of panics if a name is not a string or if a value is missing.
func Of(kv ...any) Key {
	if len(kv)%2 != 0 {
		panic("key.Of: odd number of arguments")
	}
	k := make(Key, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		name, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("key.Of: field name %v is not a string", kv[i]))
		}
		k = append(k, Field{Name: name, Value: ValueOf(kv[i+1])})
	}
	return k
}

// FromMap projects m onto the named fields, in the given order.
// Fields missing from m are Undefined and therefore dropped.
func FromMap(m map[string]any, fields ...string) Key {
	k := make(Key, 0, len(fields))
	for _, name := range fields {
		v, ok := m[name]
		if !ok {
			continue
		}
		k = append(k, Field{Name: name, Value: ValueOf(v)})
	}
	return k
}

// Get returns the value of the named field. The second result is false if
// the field is absent or Undefined.
func (k Key) Get(name string) (Value, bool) {
	for _, f := range k {
		if f.Name == name {
			return f.Value, !f.Value.IsUndefined()
		}
	}
	return Value{}, false
}

// Has reports whether the field is present and defined.
func (k Key) Has(name string) bool {
	_, ok := k.Get(name)
	return ok
}

// With returns a copy of k with the named field set to v. An existing field
// keeps its position; a new field is appended.
func (k Key) With(name string, v Value) Key {
	out := make(Key, 0, len(k)+1)
	found := false
	for _, f := range k {
		if f.Name == name {
			f.Value = v
			found = true
		}
		out = append(out, f)
	}
	if !found {
		out = append(out, Field{Name: name, Value: v})
	}
	return out
}

// Normalize returns k without its Undefined fields. Null fields are kept.
func (k Key) Normalize() Key {
	out := make(Key, 0, len(k))
	for _, f := range k {
		if f.Value.IsUndefined() {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Names returns the field names in order.
func (k Key) Names() []string {
	names := make([]string, len(k))
	for i, f := range k {
		names[i] = f.Name
	}
	return names
}

// String formats the key as {name:value, ...}.
func (k Key) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, f := range k {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
		sb.WriteByte(':')
		sb.WriteString(f.Value.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// MarshalJSON encodes the key as a JSON object, preserving field order.
// Undefined fields are omitted.
func (k Key) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, f := range k {
		if f.Value.IsUndefined() {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object into k, preserving the order in
// which fields appear. JSON null decodes to a null field; a JSON null in
// place of the whole object decodes to an empty key.
func (k *Key) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*k = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("key: expected object, got %v", tok)
	}

	out := Key{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("key: expected field name, got %v", tok)
		}
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		switch x := tok.(type) {
		case json.Delim:
			return fmt.Errorf("key: field %q: nested values are not supported", name)
		default:
			out = append(out, Field{Name: name, Value: ValueOf(x)})
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("key: trailing data after object")
	}
	*k = out
	return nil
}
