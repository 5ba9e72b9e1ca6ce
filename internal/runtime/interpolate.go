package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/aretw0/weft/pkg/domain"
)

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
	"default": func(def, v any) any {
		if v == nil || v == "" {
			return def
		}
		return v
	},
}

// render expands {{ }} references against vars. Unknown keys are errors.
func render(text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("action").Option("missingkey=error").Funcs(funcs).Parse(text)
	if err != nil {
		return "", domain.NewActionError(domain.ActionErrTemplate, err, "invalid template %q: %v", text, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", domain.NewActionError(domain.ActionErrTemplate, err, "rendering %q: %v", text, err)
	}
	return buf.String(), nil
}

// renderValues expands string values, recursing into maps and lists.
func renderValues(params map[string]any, vars map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for k, v := range params {
		r, err := renderValue(v, vars)
		if err != nil {
			return nil, err
		}
		out[k] = r
	}
	return out, nil
}

func renderValue(v any, vars map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return render(val, vars)
	case map[string]any:
		return renderValues(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := renderValue(item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func renderEnv(env map[string]string, vars map[string]any) (map[string]string, error) {
	if len(env) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		r, err := render(v, vars)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", k, err)
		}
		out[k] = r
	}
	return out, nil
}
