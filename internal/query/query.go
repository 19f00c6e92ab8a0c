// Package query evaluates module-declared views against the index: a
// conjunction filter, a stable multi-key sort, and an optional group-by
// partition. Evaluation is read-only and runs concurrently with commits.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/index"
	"github.com/starford/commonplace/internal/models"
	"github.com/starford/commonplace/internal/schema"
)

// Today is the date literal views may use in filters; it resolves to the
// current day at evaluation time.
const Today = "$today"

// Engine evaluates views. It captures a module schema snapshot per
// evaluation, so re-registering a module mid-query cannot tear a result.
type Engine struct {
	reg *schema.Registry
	idx index.NoteIndex

	now func() time.Time
}

// New creates an Engine over the given registry and index.
func New(reg *schema.Registry, idx index.NoteIndex) *Engine {
	return &Engine{reg: reg, idx: idx, now: time.Now}
}

// Result is an evaluated view. Notes holds the ordered matches; when the
// view declares a group-by, Groups holds the same notes partitioned by
// group key instead.
type Result struct {
	Module string        `json:"module"`
	View   string        `json:"view"`
	Notes  []models.Note `json:"notes,omitempty"`
	Groups []Group       `json:"groups,omitempty"`
}

// Group is one group-by partition, in post-sort order. Key is the rendered
// group value; notes lacking the property land under the empty key.
type Group struct {
	Key   string        `json:"key"`
	Notes []models.Note `json:"notes"`
}

// Evaluate runs the named view of the named module.
func (e *Engine) Evaluate(ctx context.Context, moduleName, viewName string) (Result, error) {
	mod, ok := e.reg.Module(moduleName)
	if !ok {
		return Result{}, fmt.Errorf("query: module %s: %w", moduleName, apperr.ErrNotFound)
	}
	view, ok := mod.View(viewName)
	if !ok {
		return Result{}, fmt.Errorf("query: view %s/%s: %w", moduleName, viewName, apperr.ErrNotFound)
	}
	return e.EvaluateView(ctx, mod, view)
}

// EvaluateView runs view against the notes of mod. The filter literals are
// type-checked against the schema before any note is read; a mistyped
// literal fails the whole evaluation with QueryTypeError.
func (e *Engine) EvaluateView(ctx context.Context, mod models.Module, view models.View) (Result, error) {
	conds, err := e.compile(mod, view.Filter)
	if err != nil {
		return Result{}, err
	}

	var notes []models.Note
	err = e.idx.Scan(ctx, mod.Name, func(n models.Note) error {
		if matches(n, conds) {
			notes = append(notes, n)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	sortNotes(notes, view.Sort)

	res := Result{Module: mod.Name, View: view.Name}
	if view.GroupBy == "" {
		res.Notes = notes
		return res, nil
	}
	res.Groups = partition(notes, view.GroupBy)
	return res, nil
}

// cond is one compiled filter condition: the literal has been coerced to
// the property's declared type.
type cond struct {
	property string
	op       string
	want     models.Value
}

func (e *Engine) compile(mod models.Module, filter []models.Condition) ([]cond, error) {
	out := make([]cond, 0, len(filter))
	for _, c := range filter {
		def, err := e.reg.Resolve(mod.Name, c.Property)
		if err != nil {
			return nil, err
		}
		if !opSupported(def.Type, c.Op) {
			return nil, &apperr.QueryTypeError{
				Property: c.Property, Op: c.Op, Value: c.Value,
				Reason: fmt.Sprintf("operator %s is not defined for %s properties", c.Op, def.Type),
			}
		}
		want, err := e.literal(def, c.Op, c.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, cond{property: c.Property, op: c.Op, want: want})
	}
	return out, nil
}

// opSupported restricts operators to the types they order meaningfully.
func opSupported(t models.PropertyType, op string) bool {
	switch t {
	case models.TypeText:
		return true
	case models.TypeEnum, models.TypeBoolean:
		return op == models.OpEq || op == models.OpNe
	default: // integer, date
		return op != models.OpContains
	}
}

// literal coerces a filter literal to the property's declared type.
func (e *Engine) literal(def models.PropertyDef, op string, raw any) (models.Value, error) {
	typeErr := func(reason string) error {
		return &apperr.QueryTypeError{
			Property: def.Name, Op: op, Value: raw, Reason: reason,
		}
	}
	switch def.Type {
	case models.TypeText:
		s, ok := raw.(string)
		if !ok {
			return models.Value{}, typeErr("expected a string")
		}
		return models.TextValue(s), nil

	case models.TypeInteger:
		switch n := raw.(type) {
		case int:
			return models.IntValue(int64(n)), nil
		case int64:
			return models.IntValue(n), nil
		case uint64:
			return models.IntValue(int64(n)), nil
		case float64:
			if n != float64(int64(n)) {
				return models.Value{}, typeErr("expected an integer")
			}
			return models.IntValue(int64(n)), nil
		}
		return models.Value{}, typeErr("expected an integer")

	case models.TypeDate:
		switch d := raw.(type) {
		case time.Time:
			return models.DateValue(midnight(d)), nil
		case string:
			if d == Today {
				return models.DateValue(midnight(e.now())), nil
			}
			if t, err := time.Parse(time.DateOnly, d); err == nil {
				return models.DateValue(midnight(t)), nil
			}
			if t, err := time.Parse(time.RFC3339, d); err == nil {
				return models.DateValue(midnight(t)), nil
			}
			return models.Value{}, typeErr("expected a YYYY-MM-DD date or " + Today)
		}
		return models.Value{}, typeErr("expected a date")

	case models.TypeEnum:
		s, ok := raw.(string)
		if !ok {
			return models.Value{}, typeErr("expected a string")
		}
		for _, v := range def.Values {
			if v == s {
				return models.EnumValue(s), nil
			}
		}
		return models.Value{}, typeErr(fmt.Sprintf("%q is not one of %v", s, def.Values))

	case models.TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return models.Value{}, typeErr("expected a boolean")
		}
		return models.BoolValue(b), nil
	}
	return models.Value{}, typeErr("unknown property type")
}

// matches evaluates the conjunction. A note missing a filtered property
// fails that condition; absence is never equal, less, or greater.
func matches(n models.Note, conds []cond) bool {
	for _, c := range conds {
		v, ok := noteValue(n, c.property)
		if !ok {
			return false
		}
		if !match(v, c.op, c.want) {
			return false
		}
	}
	return true
}

func match(have models.Value, op string, want models.Value) bool {
	if op == models.OpContains {
		return strings.Contains(strings.ToLower(have.Text), strings.ToLower(want.Text))
	}
	cmp, ok := have.Compare(want)
	if !ok {
		return false
	}
	switch op {
	case models.OpEq:
		return cmp == 0
	case models.OpNe:
		return cmp != 0
	case models.OpLt:
		return cmp < 0
	case models.OpLe:
		return cmp <= 0
	case models.OpGt:
		return cmp > 0
	case models.OpGe:
		return cmp >= 0
	}
	return false
}

// sortNotes applies the view's sort keys with sort.SliceStable, so notes
// with equal keys keep the scan order (path ascending) between runs.
// Notes missing a sort property order after all notes that have it,
// regardless of direction.
func sortNotes(notes []models.Note, keys []models.SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(notes, func(i, j int) bool {
		for _, k := range keys {
			av, aok := noteValue(notes[i], k.Property)
			bv, bok := noteValue(notes[j], k.Property)
			switch {
			case !aok && !bok:
				continue
			case !aok:
				return false
			case !bok:
				return true
			}
			cmp, ok := av.Compare(bv)
			if !ok || cmp == 0 {
				continue
			}
			if k.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// partition splits sorted notes into groups keyed by the rendered value,
// preserving post-sort order within each group and ordering groups by
// first appearance.
func partition(notes []models.Note, property string) []Group {
	var groups []Group
	at := make(map[string]int)
	for _, n := range notes {
		key := ""
		if v, ok := noteValue(n, property); ok {
			key = v.String()
		}
		i, seen := at[key]
		if !seen {
			i = len(groups)
			at[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Notes = append(groups[i].Notes, n)
	}
	return groups
}

// noteValue looks up a property value on a note, covering the built-in
// title/created/modified properties as well as declared ones. Timestamp
// built-ins are truncated to their calendar day, the same normalization
// date literals get, so equality on them compares days rather than
// instants.
func noteValue(n models.Note, name string) (models.Value, bool) {
	switch name {
	case "title":
		return models.TextValue(n.Title), true
	case "created":
		if n.Created.IsZero() {
			return models.Value{}, false
		}
		return models.DateValue(midnight(n.Created)), true
	case "modified":
		if n.Modified.IsZero() {
			return models.Value{}, false
		}
		return models.DateValue(midnight(n.Modified)), true
	}
	p, ok := n.Property(name)
	if !ok {
		return models.Value{}, false
	}
	return p.Value, true
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
