package runtime

import (
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	vars := map[string]any{
		"name":  "weft",
		"build": map[string]any{"stdout": "ok"},
		"tags":  []any{"a", "b"},
	}

	out, err := render("plain text", vars)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = render("{{.name}}: {{.build.stdout}} {{json .tags}} {{default \"none\" .missing_ok}}", map[string]any{
		"name": "weft", "build": vars["build"], "tags": vars["tags"], "missing_ok": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, `weft: ok ["a","b"] none`, out)

	_, err = render("{{.absent}}", vars)
	var ae *domain.ActionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, domain.ActionErrTemplate, ae.Kind)
}

func TestRenderValues(t *testing.T) {
	out, err := renderValues(map[string]any{
		"greeting": "hi {{.name}}",
		"count":    int64(2),
		"nested":   map[string]any{"list": []any{"{{.name}}", 1}},
	}, map[string]any{"name": "ana"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"greeting": "hi ana",
		"count":    int64(2),
		"nested":   map[string]any{"list": []any{"ana", 1}},
	}, out)
}

func TestShellOutput(t *testing.T) {
	out := shellOutput(&ports.ShellResult{Stdout: "[1, 2]\n", Stderr: "warn\n", ExitCode: 0})
	assert.Equal(t, "[1, 2]", out["stdout"])
	assert.Equal(t, []any{float64(1), float64(2)}, out["json"])

	out = shellOutput(&ports.ShellResult{Stdout: "not json\n"})
	assert.NotContains(t, out, "json")
}
