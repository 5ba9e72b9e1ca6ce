package compiler

import (
	"errors"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewDiagram = `stateDiagram-v2
    direction LR
    %% code review loop
    state "Write the change" as Draft
    state Review
    state Rollback <<compensation>>
    state Done
    state Abandoned

    Review : Prompt "Review {{.change}}" with result="review"
    Rollback : Shell "git reset --hard" with timeout=30s

    [*] --> Draft
    Draft --> Review
    Review --> Done : review.content.contains("LGTM")
    Review --> Draft : on_failure / Log warn "review failed"
    Review --> Rollback : never
    Review --> Abandoned
    Rollback --> Abandoned
    Done --> [*]
    Abandoned --> [*]

    note right of Review : loops until approved
    note left of Draft
        multi-line notes are skipped
    end note
    classDef important fill:#f00
    class Review important
`

func TestParse_FullDiagram(t *testing.T) {
	def, err := Parse("review", []byte(reviewDiagram))
	require.NoError(t, err)

	assert.Equal(t, domain.WorkflowName("review"), def.Name)
	assert.Equal(t, domain.StateID("Draft"), def.InitialState)

	ids := make([]domain.StateID, len(def.States))
	for i, s := range def.States {
		ids[i] = s.ID
	}
	assert.Equal(t, []domain.StateID{"Draft", "Review", "Rollback", "Done", "Abandoned"}, ids)

	draft, _ := def.State("Draft")
	assert.Equal(t, domain.StateStart, draft.Kind)
	assert.Equal(t, "Write the change", draft.Description)

	review, _ := def.State("Review")
	assert.Equal(t, domain.StateNormal, review.Kind)
	require.NotNil(t, review.Action)
	assert.Equal(t, domain.ActionPrompt, review.Action.Kind)
	assert.Equal(t, "Review {{.change}}", review.Action.Prompt.Inline)
	assert.Equal(t, "review", review.Action.Prompt.ResultVar)

	rollback, _ := def.State("Rollback")
	assert.Equal(t, domain.StateCompensation, rollback.Kind)
	assert.Equal(t, 30*time.Second, rollback.Action.Timeout)

	done, _ := def.State("Done")
	assert.Equal(t, domain.StateEnd, done.Kind)

	out := def.Outgoing("Review")
	require.Len(t, out, 4)
	assert.Equal(t, domain.Custom(`review.content.contains("LGTM")`), out[0].Condition)
	assert.Equal(t, domain.OnFailure(), out[1].Condition)
	require.NotNil(t, out[1].Action)
	assert.Equal(t, domain.ActionLog, out[1].Action.Kind)
	assert.Equal(t, "warn", out[1].Action.Log.Level)
	assert.Equal(t, `on_failure / Log warn "review failed"`, out[1].Metadata["label"])
	assert.Equal(t, domain.Never(), out[2].Condition)
	assert.Equal(t, domain.Always(), out[3].Condition)
	assert.Nil(t, out[3].Metadata)
}

func TestParse_MarkdownFence(t *testing.T) {
	src := "# Deploy\n\nSome prose.\n\n```mermaid\nstateDiagram\n  state A\n  state B\n  [*] --> A\n  A --> B\n  B --> [*]\n```\n\n```mermaid\nnot used\n```\n"

	def, err := Parse("deploy", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, domain.StateID("A"), def.InitialState)
	assert.Len(t, def.Transitions, 1)
}

func TestParse_ConditionWords(t *testing.T) {
	tests := []struct {
		label string
		want  domain.TransitionCondition
	}{
		{"always", domain.Always()},
		{"ALWAYS", domain.Always()},
		{"Never", domain.Never()},
		{"on_success", domain.OnSuccess()},
		{"On_Failure", domain.OnFailure()},
		{"count / 2 > 1", domain.Custom("count / 2 > 1")},
		{`status == "ok" / Set approved=true`, domain.Custom(`status == "ok"`)},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			src := "stateDiagram-v2\nstate A\nstate B\n[*] --> A\nA --> B : " + tt.label + "\nB --> [*]\n"
			def, err := Parse("w", []byte(src))
			require.NoError(t, err)
			assert.Equal(t, tt.want, def.Transitions[0].Condition)
		})
	}
}

func TestParse_LeadingSlashMeansAlways(t *testing.T) {
	src := "stateDiagram-v2\nstate A\nstate B\n[*] --> A\nA --> B : / Set x=1\nB --> [*]\n"
	def, err := Parse("w", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, domain.Always(), def.Transitions[0].Condition)
	require.NotNil(t, def.Transitions[0].Action)
	assert.Equal(t, domain.ActionSet, def.Transitions[0].Action.Kind)
}

func TestParse_ImplicitDeclarationByDescription(t *testing.T) {
	src := "stateDiagram-v2\nA : gather input\nB : Wait 5 seconds\n[*] --> A\nA --> B\nB --> [*]\n"
	def, err := Parse("w", []byte(src))
	require.NoError(t, err)

	a, _ := def.State("A")
	assert.Equal(t, "gather input", a.Description)
	assert.Nil(t, a.Action)

	b, _ := def.State("B")
	require.NotNil(t, b.Action)
	assert.Equal(t, 5*time.Second, b.Action.Wait.Duration)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"missing header", "state A\n", 1},
		{"empty source", "", 0},
		{"two start markers", "stateDiagram-v2\nstate A\nstate B\n[*] --> A\n[*] --> B\nA --> [*]\nB --> [*]\n", 5},
		{"undeclared transition target", "stateDiagram-v2\nstate A\n[*] --> A\nA --> Ghost\nA --> [*]\n", 4},
		{"undeclared start", "stateDiagram-v2\n[*] --> A\n", 2},
		{"no start marker", "stateDiagram-v2\nstate A\nA --> [*]\n", 0},
		{"duplicate declaration", "stateDiagram-v2\nstate A\nstate A\n", 3},
		{"second description", "stateDiagram-v2\nstate A\nA : one\nA : two\n", 4},
		{"start and end", "stateDiagram-v2\nstate A\n[*] --> A\nA --> [*]\n", 4},
		{"composite state", "stateDiagram-v2\nstate A {\n", 2},
		{"choice", "stateDiagram-v2\nstate A <<choice>>\n", 2},
		{"fork", "stateDiagram-v2\nstate A <<fork>>\n", 2},
		{"unknown token", "stateDiagram-v2\nstate A\nA ==> B\n", 3},
		{"chained edges", "stateDiagram-v2\nstate A\nstate B\nstate C\nA --> B --> C\n", 5},
		{"malformed committed action", "stateDiagram-v2\nstate A\nA : Shell \"ls\" with bogus=1\n", 3},
		{"unterminated action string", "stateDiagram-v2\nstate A\nstate B\nA --> B : always / Shell \"ls\n", 4},
		{"bad template", "stateDiagram-v2\nstate A\nA : Shell \"echo {{.x\"\n", 3},
		{"compensation start", "stateDiagram-v2\nstate A <<compensation>>\nstate B\n[*] --> A\nA --> B\nB --> [*]\n", 4},
		{"labeled start marker", "stateDiagram-v2\nstate A\n[*] --> A : go\n", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("broken", []byte(tt.src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrParse), "got %v", err)

			var pe *domain.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.line, pe.Line, pe.Msg)
		})
	}
}

func TestParse_CRLF(t *testing.T) {
	src := "stateDiagram-v2\r\nstate A\r\nstate B\r\n[*] --> A\r\nA --> B\r\nB --> [*]\r\n"
	_, err := Parse("w", []byte(src))
	assert.NoError(t, err)
}
