package condition

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_Evaluate(t *testing.T) {
	ev, err := New()
	require.NoError(t, err)

	vars := map[string]any{
		"last_action_result": true,
		"count":              3,
		"ratio":              json.Number("0.5"),
		"total":              json.Number("10"),
		"name":               "weft",
		"tags":               []string{"a", "b"},
		"result": map[string]any{
			"content":       "Verdict: YES",
			"response_type": "success",
			"metadata":      map[string]any{"tokens": 42},
		},
		"not-an-identifier": 1,
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"true", true},
		{"last_action_result", true},
		{"count > 2", true},
		{"count == 3 && total == 10", true},
		{"ratio < 1.0", true},
		{`name.startsWith("we")`, true},
		{`result.content.contains("YES")`, true},
		{`result.content.lowerAscii().contains("no")`, false},
		{`result.metadata.tokens >= 40`, true},
		{`"b" in tags`, true},
		{`size(tags) == 2`, true},
		{`has(result.missing)`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ev.Evaluate(context.Background(), tt.expr, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_Errors(t *testing.T) {
	ev, err := New()
	require.NoError(t, err)

	vars := map[string]any{
		"name":   "plain string",
		"result": map[string]any{"content": "x"},
		"count":  1,
	}

	for _, expr := range []string{
		"",
		"name.content == 'x'",
		"result.missing == 'x'",
		"undeclared > 1",
		"count + 1",
		"name",
		"count >",
	} {
		t.Run(expr, func(t *testing.T) {
			assert.NotPanics(t, func() {
				got, err := ev.Evaluate(context.Background(), expr, vars)
				assert.Error(t, err)
				assert.False(t, got)
			})
		})
	}
}

func TestEvaluator_CachedProgramSeesNewValues(t *testing.T) {
	ev, err := New(WithCacheSize(8))
	require.NoError(t, err)
	ctx := context.Background()

	got, err := ev.Evaluate(ctx, "n > 5", map[string]any{"n": 10})
	require.NoError(t, err)
	assert.True(t, got)
	ev.programs.Wait()

	got, err = ev.Evaluate(ctx, "n > 5", map[string]any{"n": 1})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, int64(7), Normalize(7))
	assert.Equal(t, int64(7), Normalize(uint8(7)))
	assert.Equal(t, float64(1.5), Normalize(float32(1.5)))
	assert.Equal(t, int64(12), Normalize(json.Number("12")))
	assert.Equal(t, []any{"x", "y"}, Normalize([]string{"x", "y"}))
	assert.Equal(t, map[string]any{"k": "v"}, Normalize(map[string]string{"k": "v"}))
	assert.Equal(t, map[string]any{"n": map[string]any{"i": int64(1)}}, Normalize(map[string]any{"n": map[string]int{"i": 1}}))
}
