package compiler

import (
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction_Grammar(t *testing.T) {
	tests := []struct {
		text  string
		check func(t *testing.T, a *domain.ActionSpec)
	}{
		{`Execute prompt "summarize" with topic="go" depth=3 result="summary"`, func(t *testing.T, a *domain.ActionSpec) {
			assert.Equal(t, domain.ActionPrompt, a.Kind)
			assert.Equal(t, "summarize", a.Prompt.Name)
			assert.Equal(t, map[string]any{"topic": "go", "depth": int64(3)}, a.Prompt.Params)
			assert.Equal(t, "summary", a.Prompt.ResultVar)
			assert.False(t, a.Idempotent)
		}},
		{`prompt "Is this safe?\nAnswer YES or NO" with idempotent=true`, func(t *testing.T, a *domain.ActionSpec) {
			assert.Equal(t, "Is this safe?\nAnswer YES or NO", a.Prompt.Inline)
			assert.True(t, a.Idempotent)
		}},
		{`Shell "make test" with cwd="./svc" timeout=2m env.GOFLAGS="-race" result="build"`, func(t *testing.T, a *domain.ActionSpec) {
			assert.Equal(t, domain.ActionShell, a.Kind)
			assert.Equal(t, "make test", a.Shell.Command)
			assert.Equal(t, "./svc", a.Shell.Dir)
			assert.Equal(t, 2*time.Minute, a.Timeout)
			assert.Equal(t, map[string]string{"GOFLAGS": "-race"}, a.Shell.Env)
			assert.Equal(t, "build", a.Shell.ResultVar)
		}},
		{`Run workflow "deploy" with env="prod" result="child"`, func(t *testing.T, a *domain.ActionSpec) {
			assert.Equal(t, domain.ActionSubWorkflow, a.Kind)
			assert.Equal(t, domain.WorkflowName("deploy"), a.SubWorkflow.Workflow)
			assert.Equal(t, map[string]any{"env": "prod"}, a.SubWorkflow.Params)
			assert.Equal(t, "child", a.SubWorkflow.ResultVar)
		}},
		{`Wait 5s`, func(t *testing.T, a *domain.ActionSpec) {
			assert.Equal(t, 5*time.Second, a.Wait.Duration)
		}},
		{`wait 2 minutes`, func(t *testing.T, a *domain.ActionSpec) {
			assert.Equal(t, 2*time.Minute, a.Wait.Duration)
		}},
		{`Wait 1.5 hours`, func(t *testing.T, a *domain.ActionSpec) {
			assert.Equal(t, 90*time.Minute, a.Wait.Duration)
		}},
		{`Wait for signal "approved" with timeout=1h`, func(t *testing.T, a *domain.ActionSpec) {
			assert.Equal(t, "approved", a.Wait.Signal)
			assert.Equal(t, time.Hour, a.Timeout)
			assert.True(t, a.Idempotent)
		}},
		{`Set approved=true count=2 ratio=0.5 note="hi {{.name}}" stage=review`, func(t *testing.T, a *domain.ActionSpec) {
			assert.Equal(t, []domain.Assignment{
				{Key: "approved", Value: true},
				{Key: "count", Value: int64(2)},
				{Key: "ratio", Value: 0.5},
				{Key: "note", Value: "hi {{.name}}"},
				{Key: "stage", Value: "review"},
			}, a.Set.Assignments)
		}},
		{`Log "plain"`, func(t *testing.T, a *domain.ActionSpec) {
			assert.Equal(t, "", a.Log.Level)
			assert.Equal(t, "plain", a.Log.Message)
		}},
		{`LOG Warning "careful"`, func(t *testing.T, a *domain.ActionSpec) {
			assert.Equal(t, "warn", a.Log.Level)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			a, err := ParseAction(tt.text)
			require.NoError(t, err)
			require.NotNil(t, a)
			assert.Equal(t, tt.text, a.Text)
			assert.NoError(t, a.Validate())
			tt.check(t, a)
		})
	}
}

func TestParseAction_PlainDescriptions(t *testing.T) {
	for _, text := range []string{
		"",
		"Review",
		"Execute the rollout plan",
		"Shell out to the team",
		"Run the checks",
		"Wait for approval",
		"Set up the environment",
		"Log everything",
		"Prompt the user",
	} {
		a, err := ParseAction(text)
		assert.NoError(t, err, text)
		assert.Nil(t, a, text)
	}
}

func TestParseAction_Malformed(t *testing.T) {
	for _, text := range []string{
		`Execute prompt summarize`,
		`Shell ""`,
		`Shell "ls" extra`,
		`Shell "ls" with`,
		`Shell "ls" with timeout=soon`,
		`Run workflow ""`,
		`Wait 5 fortnights`,
		`Wait 0s`,
		`Wait 5s please`,
		`Wait for signal "x" with color=red`,
		`Set a=1 a=2`,
		`Set a=1 b`,
		`Log info "x" trailing`,
		`Prompt "x" with idempotent=maybe`,
	} {
		a, err := ParseAction(text)
		assert.Error(t, err, text)
		assert.Nil(t, a, text)
	}
}

func TestFormatAction_RoundTrip(t *testing.T) {
	specs := []*domain.ActionSpec{
		{Kind: domain.ActionPrompt, Prompt: &domain.PromptAction{Name: "p", Params: map[string]any{"b": "x", "a": int64(1)}, ResultVar: "r"}, Timeout: time.Minute},
		{Kind: domain.ActionPrompt, Prompt: &domain.PromptAction{Inline: "say \"hi\""}, Idempotent: true},
		{Kind: domain.ActionShell, Shell: &domain.ShellAction{Command: "echo {{.x}}", Dir: "/tmp", Env: map[string]string{"B": "2", "A": "1"}}},
		{Kind: domain.ActionSubWorkflow, SubWorkflow: &domain.SubWorkflowAction{Workflow: "child", Params: map[string]any{"flag": true}}},
		{Kind: domain.ActionWait, Wait: &domain.WaitAction{Duration: 90 * time.Second}, Idempotent: true},
		{Kind: domain.ActionWait, Wait: &domain.WaitAction{Signal: "go"}, Timeout: 5 * time.Second, Idempotent: true},
		{Kind: domain.ActionSet, Set: &domain.SetAction{Assignments: []domain.Assignment{{Key: "a", Value: "1"}, {Key: "b", Value: int64(2)}}}, Idempotent: true},
		{Kind: domain.ActionLog, Log: &domain.LogAction{Level: "error", Message: "boom"}, Idempotent: true},
	}
	for _, spec := range specs {
		text := FormatAction(spec)
		t.Run(text, func(t *testing.T) {
			parsed, err := ParseAction(text)
			require.NoError(t, err)
			require.NotNil(t, parsed)

			want := *spec
			want.Text = text
			assert.Equal(t, &want, parsed)
		})
	}
}

func TestFormatLabel(t *testing.T) {
	assert.Equal(t, "", FormatLabel(domain.Always(), nil))
	assert.Equal(t, "on_failure", FormatLabel(domain.OnFailure(), nil))
	assert.Equal(t, `x > 1`, FormatLabel(domain.Custom("x > 1"), nil))

	set := &domain.ActionSpec{Kind: domain.ActionSet, Set: &domain.SetAction{Assignments: []domain.Assignment{{Key: "a", Value: true}}}, Idempotent: true}
	assert.Equal(t, "always / Set a=true", FormatLabel(domain.Always(), set))
}
