// Package schema holds the per-module property schemas and view
// definitions. The registry is shared read-only by the parser and the query
// engine; registering a module atomically replaces its prior schema, and
// readers that resolved a module before the swap keep that snapshot.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/models"
)

// DefaultModule is registered on every new registry so notes without a
// module: key still index; their properties all land in the extra bucket.
const DefaultModule = "note"

// Registry maps module names to their schemas. Modules are immutable once
// registered; replacement installs a fresh value.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]models.Module
}

// NewRegistry returns a registry holding only the default module.
func NewRegistry() *Registry {
	r := &Registry{modules: make(map[string]models.Module)}
	r.modules[DefaultModule] = models.Module{Name: DefaultModule, Type: "note"}
	return r
}

// Register validates mod and installs it, replacing any prior schema for
// the same name in one step. Validation failures leave the registry
// untouched.
func (r *Registry) Register(mod models.Module) error {
	if err := validate(mod); err != nil {
		return err
	}
	r.mu.Lock()
	r.modules[mod.Name] = mod
	r.mu.Unlock()
	return nil
}

// Module returns the current schema snapshot for name.
func (r *Registry) Module(name string) (models.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mod, ok := r.modules[name]
	return mod, ok
}

// Modules returns all registered modules, sorted by name.
func (r *Registry) Modules() []models.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Module, 0, len(r.modules))
	for _, mod := range r.modules {
		out = append(out, mod)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve returns the definition of a property within a module, checking
// the built-in properties first.
func (r *Registry) Resolve(moduleID, property string) (models.PropertyDef, error) {
	if def, ok := BuiltinProperty(property); ok {
		return def, nil
	}
	r.mu.RLock()
	mod, ok := r.modules[moduleID]
	r.mu.RUnlock()
	if !ok {
		return models.PropertyDef{}, &apperr.UnknownPropertyError{Module: moduleID, Property: property}
	}
	def, ok := mod.Property(property)
	if !ok {
		return models.PropertyDef{}, &apperr.UnknownPropertyError{Module: moduleID, Property: property}
	}
	return def, nil
}

// BuiltinProperty returns the implicit definition for properties every
// module carries: title (text), created and modified (date).
func BuiltinProperty(name string) (models.PropertyDef, bool) {
	switch name {
	case "title":
		return models.PropertyDef{Name: "title", Type: models.TypeText}, true
	case "created", "modified":
		return models.PropertyDef{Name: name, Type: models.TypeDate}, true
	}
	return models.PropertyDef{}, false
}

// reservedKeys are front-matter keys the engine consumes itself; a schema
// may not declare properties under these names.
var reservedKeys = map[string]bool{
	"id": true, "module": true, "title": true, "tags": true,
	"links": true, "created": true, "modified": true,
}

// ReservedKey reports whether name is consumed by the engine rather than
// matched against a module schema.
func ReservedKey(name string) bool { return reservedKeys[name] }

func validate(mod models.Module) error {
	fail := func(format string, args ...any) error {
		return &apperr.SchemaError{Module: mod.Name, Reason: fmt.Sprintf(format, args...)}
	}
	if mod.Name == "" {
		return &apperr.SchemaError{Module: "?", Reason: "module name is required"}
	}
	if mod.Name != strings.ToLower(mod.Name) {
		return fail("module name must be lowercase")
	}
	seen := make(map[string]bool, len(mod.Properties))
	for _, def := range mod.Properties {
		if def.Name == "" {
			return fail("property name is required")
		}
		if ReservedKey(def.Name) {
			return fail("property %q shadows a reserved key", def.Name)
		}
		if seen[def.Name] {
			return fail("duplicate property %q", def.Name)
		}
		seen[def.Name] = true
		if !def.Type.Valid() {
			return fail("property %q: unknown type %q", def.Name, def.Type)
		}
		if def.Type == models.TypeEnum && len(def.Values) == 0 {
			return fail("enum property %q has no values", def.Name)
		}
		if def.Type != models.TypeEnum && len(def.Values) > 0 {
			return fail("property %q: values only apply to enums", def.Name)
		}
		if (def.Min != nil || def.Max != nil) && def.Type != models.TypeInteger {
			return fail("property %q: min/max only apply to integers", def.Name)
		}
		if def.Min != nil && def.Max != nil && *def.Min > *def.Max {
			return fail("property %q: min %d exceeds max %d", def.Name, *def.Min, *def.Max)
		}
	}
	views := make(map[string]bool, len(mod.Views))
	for _, v := range mod.Views {
		if v.Name == "" {
			return fail("view name is required")
		}
		if views[v.Name] {
			return fail("duplicate view %q", v.Name)
		}
		views[v.Name] = true
		for _, c := range v.Filter {
			if !models.ValidOp(c.Op) {
				return fail("view %q: unknown operator %q", v.Name, c.Op)
			}
			if !propertyKnown(mod, c.Property) {
				return fail("view %q filters on unknown property %q", v.Name, c.Property)
			}
		}
		for _, k := range v.Sort {
			if !propertyKnown(mod, k.Property) {
				return fail("view %q sorts on unknown property %q", v.Name, k.Property)
			}
		}
		if v.GroupBy != "" && !propertyKnown(mod, v.GroupBy) {
			return fail("view %q groups on unknown property %q", v.Name, v.GroupBy)
		}
	}
	return nil
}

func propertyKnown(mod models.Module, name string) bool {
	if _, ok := BuiltinProperty(name); ok {
		return true
	}
	_, ok := mod.Property(name)
	return ok
}
