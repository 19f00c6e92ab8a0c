package apperr

import "fmt"

// SchemaError reports an invalid module schema or view definition.
// Registration of the offending module fails; other modules are unaffected.
type SchemaError struct {
	Module string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("module %q: %s", e.Module, e.Reason)
}

// UnknownPropertyError reports a lookup miss against a module schema.
type UnknownPropertyError struct {
	Module   string
	Property string
}

func (e *UnknownPropertyError) Error() string {
	return fmt.Sprintf("module %q has no property %q", e.Module, e.Property)
}

// ParseError wraps whatever went wrong while parsing one note file.
// Use errors.As to reach PropertyTypeError or MissingRequiredPropertyError.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Path, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// PropertyTypeError reports a front-matter value that does not coerce to
// the type its schema declares, or violates a declared constraint.
type PropertyTypeError struct {
	Property string
	Type     string
	Value    any
	Reason   string
}

func (e *PropertyTypeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("property %q: %s", e.Property, e.Reason)
	}
	return fmt.Sprintf("property %q: %v is not a valid %s", e.Property, e.Value, e.Type)
}

// MissingRequiredPropertyError reports an absent required property.
type MissingRequiredPropertyError struct {
	Property string
}

func (e *MissingRequiredPropertyError) Error() string {
	return fmt.Sprintf("required property %q is missing", e.Property)
}

// MalformedLinkError reports a structurally invalid link reference.
// Unresolvable targets are not malformed; they stay unresolved in the index.
type MalformedLinkError struct {
	Ref    string
	Reason string
}

func (e *MalformedLinkError) Error() string {
	return fmt.Sprintf("malformed link %q: %s", e.Ref, e.Reason)
}

// QueryTypeError reports a filter literal that does not match the declared
// type of the property it compares against.
type QueryTypeError struct {
	Property string
	Op       string
	Value    any
	Reason   string
}

func (e *QueryTypeError) Error() string {
	return fmt.Sprintf("filter %s %s %v: %s", e.Property, e.Op, e.Value, e.Reason)
}

// ConfigError reports a module definition that failed to load or register.
type ConfigError struct {
	Source string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Source, e.Reason)
}

// StoreIOError wraps a failed index store operation.
type StoreIOError struct {
	Op  string
	Err error
}

func (e *StoreIOError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreIOError) Unwrap() error { return e.Err }
