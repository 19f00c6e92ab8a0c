package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/models"
)

// coerceValue converts one raw front-matter value to the type its schema
// definition declares.
func coerceValue(def models.PropertyDef, raw any) (models.Value, error) {
	typeErr := func() error {
		return &apperr.PropertyTypeError{Property: def.Name, Type: string(def.Type), Value: raw}
	}

	switch def.Type {
	case models.TypeText:
		s, ok := scalarString(raw)
		if !ok {
			return models.Value{}, typeErr()
		}
		return models.TextValue(s), nil

	case models.TypeInteger:
		n, ok := intValue(raw)
		if !ok {
			return models.Value{}, typeErr()
		}
		if def.Min != nil && n < *def.Min {
			return models.Value{}, &apperr.PropertyTypeError{
				Property: def.Name, Type: string(def.Type), Value: raw,
				Reason: fmt.Sprintf("%d is below the minimum %d", n, *def.Min),
			}
		}
		if def.Max != nil && n > *def.Max {
			return models.Value{}, &apperr.PropertyTypeError{
				Property: def.Name, Type: string(def.Type), Value: raw,
				Reason: fmt.Sprintf("%d is above the maximum %d", n, *def.Max),
			}
		}
		return models.IntValue(n), nil

	case models.TypeDate:
		t, ok := dateValue(raw)
		if !ok {
			return models.Value{}, typeErr()
		}
		return models.DateValue(t), nil

	case models.TypeEnum:
		s, ok := raw.(string)
		if !ok {
			return models.Value{}, typeErr()
		}
		for _, allowed := range def.Values {
			if s == allowed {
				return models.EnumValue(s), nil
			}
		}
		return models.Value{}, &apperr.PropertyTypeError{
			Property: def.Name, Type: string(def.Type), Value: raw,
			Reason: fmt.Sprintf("%q is not one of [%s]", s, strings.Join(def.Values, ", ")),
		}

	case models.TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return models.Value{}, typeErr()
		}
		return models.BoolValue(b), nil
	}
	return models.Value{}, typeErr()
}

// scalarString renders YAML scalars as text. Unquoted numbers and booleans
// are common in hand-written front-matter; structured values are not text.
func scalarString(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case time.Time:
		return v.Format(time.RFC3339), true
	}
	return "", false
}

func intValue(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case uint64:
		if v > 1<<63-1 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

// dateValue normalizes to day precision at UTC midnight. YAML hands bare
// dates over as time.Time already; strings accept plain dates and RFC 3339.
func dateValue(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return midnight(v), true
	case string:
		if t, err := time.Parse(time.DateOnly, v); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return midnight(t), true
		}
	}
	return time.Time{}, false
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
