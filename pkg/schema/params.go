package schema

import (
	"fmt"

	"github.com/aretw0/weft/pkg/domain"
)

// Schema is a map of field names to their expected types.
type Schema map[string]Type

// FromParameters builds the schema of the typed parameters.
// Parameters without a type are left out.
func FromParameters(params []domain.Parameter) (Schema, error) {
	s := make(Schema, len(params))
	for _, p := range params {
		if p.Type == "" {
			continue
		}
		t, err := ParseType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		s[p.Name] = t
	}
	return s, nil
}

// Resolve applies declared parameters to vars: missing values take their
// default, required ones must be present, and typed ones are coerced.
// Undeclared vars pass through unchanged. vars is not modified.
func Resolve(params []domain.Parameter, vars map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(vars)+len(params))
	for k, v := range vars {
		out[k] = v
	}

	var errs []error
	for _, p := range params {
		var typ Type
		if p.Type != "" {
			t, err := ParseType(p.Type)
			if err != nil {
				errs = append(errs, &ValidationError{Key: p.Name, Reason: err.Error()})
				continue
			}
			typ = t
		}

		value, ok := out[p.Name]
		if !ok || value == nil {
			switch {
			case p.Default != nil:
				value = p.Default
			case p.Required:
				errs = append(errs, &ValidationError{Key: p.Name, Reason: "required"})
				continue
			default:
				continue
			}
		}

		if typ != nil {
			coerced, err := typ.Coerce(value)
			if err != nil {
				errs = append(errs, &ValidationError{Key: p.Name, Reason: err.Error(), Value: value})
				continue
			}
			value = coerced
		}
		out[p.Name] = value
	}

	if len(errs) > 0 {
		return nil, &AggregateError{Errors: errs}
	}
	return out, nil
}
