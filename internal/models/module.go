package models

// Module is a named bundle of property schema and view definitions
// describing one note type. Modules are data; the engine interprets them
// uniformly with no per-module code.
type Module struct {
	Name       string        `yaml:"name" json:"name"`
	Type       string        `yaml:"type" json:"type,omitempty"`
	Properties []PropertyDef `yaml:"properties" json:"properties,omitempty"`
	Views      []View        `yaml:"views" json:"views,omitempty"`
}

// Property returns the schema definition for name.
func (m Module) Property(name string) (PropertyDef, bool) {
	for _, d := range m.Properties {
		if d.Name == name {
			return d, true
		}
	}
	return PropertyDef{}, false
}

// View returns the view definition for name.
func (m Module) View(name string) (View, bool) {
	for _, v := range m.Views {
		if v.Name == name {
			return v, true
		}
	}
	return View{}, false
}

// PropertyDef declares one typed property. Values constrains enums; Min and
// Max bound integers.
type PropertyDef struct {
	Name     string       `yaml:"name" json:"name"`
	Type     PropertyType `yaml:"type" json:"type"`
	Required bool         `yaml:"required" json:"required,omitempty"`
	Values   []string     `yaml:"values" json:"values,omitempty"`
	Min      *int64       `yaml:"min" json:"min,omitempty"`
	Max      *int64       `yaml:"max" json:"max,omitempty"`
}

// View is a named declarative query over one module's notes: a conjunction
// of property comparisons, a multi-key sort, and an optional group-by.
type View struct {
	Name    string      `yaml:"name" json:"name"`
	Filter  []Condition `yaml:"filter" json:"filter,omitempty"`
	Sort    []SortKey   `yaml:"sort" json:"sort,omitempty"`
	GroupBy string      `yaml:"group_by" json:"group_by,omitempty"`
}

// Filter condition operators. OpContains applies to text properties only.
const (
	OpEq       = "="
	OpNe       = "!="
	OpLt       = "<"
	OpLe       = "<="
	OpGt       = ">"
	OpGe       = ">="
	OpContains = "contains"
)

// ValidOp reports whether op is a recognized filter operator.
func ValidOp(op string) bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpContains:
		return true
	}
	return false
}

// Condition compares one property against a literal. The literal "$today"
// resolves to the evaluation day for date comparisons.
type Condition struct {
	Property string `yaml:"property" json:"property"`
	Op       string `yaml:"op" json:"op"`
	Value    any    `yaml:"value" json:"value"`
}

// SortKey orders results by one property, ascending unless Desc.
type SortKey struct {
	Property string `yaml:"property" json:"property"`
	Desc     bool   `yaml:"desc" json:"desc,omitempty"`
}
