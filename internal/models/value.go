package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// PropertyType enumerates the types a module schema can declare.
type PropertyType string

const (
	TypeText    PropertyType = "text"
	TypeInteger PropertyType = "integer"
	TypeDate    PropertyType = "date"
	TypeEnum    PropertyType = "enum"
	TypeBoolean PropertyType = "boolean"
)

// Valid reports whether t is a declared property type.
func (t PropertyType) Valid() bool {
	switch t {
	case TypeText, TypeInteger, TypeDate, TypeEnum, TypeBoolean:
		return true
	}
	return false
}

// Value is one typed property value. Only the field matching Type is
// meaningful; enum values use Text. Dates are day-precision, UTC midnight.
type Value struct {
	Type PropertyType
	Text string
	Int  int64
	Date time.Time
	Bool bool
}

func TextValue(s string) Value     { return Value{Type: TypeText, Text: s} }
func IntValue(i int64) Value       { return Value{Type: TypeInteger, Int: i} }
func DateValue(t time.Time) Value  { return Value{Type: TypeDate, Date: t} }
func EnumValue(s string) Value     { return Value{Type: TypeEnum, Text: s} }
func BoolValue(b bool) Value       { return Value{Type: TypeBoolean, Bool: b} }

// Any returns the natural Go representation, suitable for JSON and YAML.
func (v Value) Any() any {
	switch v.Type {
	case TypeInteger:
		return v.Int
	case TypeDate:
		return v.Date.Format(time.DateOnly)
	case TypeBoolean:
		return v.Bool
	default:
		return v.Text
	}
}

// String renders the value for display and grouping keys.
func (v Value) String() string {
	switch v.Type {
	case TypeInteger:
		return strconv.FormatInt(v.Int, 10)
	case TypeDate:
		return v.Date.Format(time.DateOnly)
	case TypeBoolean:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Text
	}
}

// Compare orders two values of the same type. The second result is false
// when the types differ and the comparison is meaningless.
func (v Value) Compare(o Value) (int, bool) {
	if v.Type != o.Type {
		return 0, false
	}
	switch v.Type {
	case TypeInteger:
		switch {
		case v.Int < o.Int:
			return -1, true
		case v.Int > o.Int:
			return 1, true
		}
		return 0, true
	case TypeDate:
		return v.Date.Compare(o.Date), true
	case TypeBoolean:
		switch {
		case v.Bool == o.Bool:
			return 0, true
		case !v.Bool:
			return -1, true
		}
		return 1, true
	default:
		return strings.Compare(v.Text, o.Text), true
	}
}

// Property is one (name, typed value) pair. Declared properties keep their
// schema order on the Note.
type Property struct {
	Name  string
	Value Value
}

type propertyJSON struct {
	Name  string          `json:"name"`
	Type  PropertyType    `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON flattens the typed value into its natural JSON form, tagged
// with the property type so it decodes without a schema.
func (p Property) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(p.Value.Any())
	if err != nil {
		return nil, err
	}
	return json.Marshal(propertyJSON{Name: p.Name, Type: p.Value.Type, Value: raw})
}

func (p *Property) UnmarshalJSON(data []byte) error {
	var pj propertyJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return err
	}
	v := Value{Type: pj.Type}
	switch pj.Type {
	case TypeInteger:
		if err := json.Unmarshal(pj.Value, &v.Int); err != nil {
			return err
		}
	case TypeDate:
		var s string
		if err := json.Unmarshal(pj.Value, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return err
		}
		v.Date = t
	case TypeBoolean:
		if err := json.Unmarshal(pj.Value, &v.Bool); err != nil {
			return err
		}
	default:
		if err := json.Unmarshal(pj.Value, &v.Text); err != nil {
			return err
		}
	}
	p.Name = pj.Name
	p.Value = v
	return nil
}
