package runtime_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	goruntime "runtime"
	"testing"
	"time"

	"github.com/aretw0/weft/internal/compiler"
	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/internal/validator"
	"github.com/aretw0/weft/pkg/adapters/agent"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/adapters/process"
	"github.com/aretw0/weft/pkg/condition"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptAction(t *testing.T) {
	t.Run("inline prompt renders context", func(t *testing.T) {
		wf := compile(t, "ask", `stateDiagram-v2
state Ask
state Done
Ask : Prompt "Is {{.change}} safe?" with result="verdict"
[*] --> Ask
Ask --> Done : verdict.content.contains("YES")
Done --> [*]
`)
		bot := agent.NewScripted(agent.Reply("safe?", "YES"))
		h := newHarness(runtime.WithAgent(bot), runtime.WithEvaluator(mustEvaluator(t)))

		run, err := h.run(t, wf, map[string]any{"change": "#42"})
		require.NoError(t, err)
		assert.Equal(t, domain.RunCompleted, run.Status)

		calls := bot.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "Is #42 safe?", calls[0].Prompt)
		assert.Equal(t, domain.StateID("Ask"), calls[0].Exec.State)
		assert.Equal(t, "run-1", calls[0].Exec.RunID)

		verdict, ok := run.Context["verdict"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "YES", verdict["content"])
	})

	t.Run("named prompt with params", func(t *testing.T) {
		wf := compile(t, "named", `stateDiagram-v2
state Summarize
state Done
Summarize : Execute prompt "summary" with topic="{{.subject}}" depth=2
[*] --> Summarize
Summarize --> Done : on_success
Done --> [*]
`)
		prompts := memory.NewPrompts(domain.Prompt{
			Name:   "summary",
			System: "You are terse.",
			Body:   "Summarize {{.topic}} in {{.depth}} lines",
		})
		h := newHarness(runtime.WithAgent(agent.Echo{}), runtime.WithPrompts(prompts))

		run, err := h.run(t, wf, map[string]any{"subject": "weft"})
		require.NoError(t, err)

		result := run.Context[domain.KeyResult].(map[string]any)
		assert.Equal(t, "Summarize weft in 2 lines", result["content"])
		assert.Equal(t, "You are terse.", result["metadata"].(map[string]any)["system"])
	})

	t.Run("unknown prompt fails the action", func(t *testing.T) {
		wf := compile(t, "missing", `stateDiagram-v2
state Ask
state Done
Ask : Execute prompt "nope"
[*] --> Ask
Ask --> Done : on_failure
Done --> [*]
`)
		h := newHarness(runtime.WithAgent(agent.Echo{}), runtime.WithPrompts(memory.NewPrompts()))

		run, err := h.run(t, wf, nil)
		require.NoError(t, err)
		assert.Contains(t, run.Context[domain.KeyLastError], "NotFound")
	})

	t.Run("error response is a failure", func(t *testing.T) {
		wf := compile(t, "refuse", `stateDiagram-v2
state Ask
state Done
Ask : Prompt "do it"
[*] --> Ask
Ask --> Done : on_failure
Done --> [*]
`)
		bot := agent.NewScripted(agent.Rule{Response: &domain.AgentResponse{Content: "cannot", ResponseType: domain.ResponseError}})
		h := newHarness(runtime.WithAgent(bot))

		run, err := h.run(t, wf, nil)
		require.NoError(t, err)
		assert.Equal(t, false, run.Context[domain.KeyLastActionResult])
		assert.Equal(t, "error", run.Context[domain.KeyResult].(map[string]any)["response_type"])
	})

	t.Run("rate limit surfaces as action error", func(t *testing.T) {
		wf := compile(t, "limited", `stateDiagram-v2
state Ask
state Done
Ask : Prompt "hi"
[*] --> Ask
Ask --> Done : on_failure
Done --> [*]
`)
		limited := &domain.ActionError{Kind: domain.ActionErrRateLimit, Msg: "slow down", WaitTime: time.Second}
		h := newHarness(runtime.WithAgent(agent.NewScripted(agent.Rule{Err: limited})))

		run, err := h.run(t, wf, nil)
		require.NoError(t, err)
		assert.Contains(t, run.Context[domain.KeyLastError], "RateLimit")
	})
}

func TestShellAction(t *testing.T) {
	t.Run("renders request and stores output", func(t *testing.T) {
		wf := compile(t, "build", `stateDiagram-v2
state Build
state Done
Build : Shell "make {{.target}}" with cwd="./{{.svc}}" env.MODE="{{.mode}}" result="build"
[*] --> Build
Build --> Done : build.json.ok == true
Done --> [*]
`)
		shell := &fakeShell{fn: func(ctx context.Context, req ports.ShellRequest) (*ports.ShellResult, error) {
			return &ports.ShellResult{Stdout: `{"ok": true}` + "\n"}, nil
		}}
		h := newHarness(runtime.WithShell(shell), runtime.WithEvaluator(mustEvaluator(t)))

		run, err := h.run(t, wf, map[string]any{"target": "test", "svc": "api", "mode": "ci"})
		require.NoError(t, err)
		assert.Equal(t, domain.RunCompleted, run.Status)

		calls := shell.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "make test", calls[0].Command)
		assert.Equal(t, "./api", calls[0].Dir)
		assert.Equal(t, map[string]string{"MODE": "ci"}, calls[0].Env)
		assert.Equal(t, runtime.DefaultActionTimeout, calls[0].Timeout)

		build := run.Context["build"].(map[string]any)
		assert.Equal(t, `{"ok": true}`, build["stdout"])
		assert.Equal(t, 0, build["exit_code"])
	})

	t.Run("missing template key fails", func(t *testing.T) {
		wf := compile(t, "tmpl", `stateDiagram-v2
state Build
state Done
Build : Shell "echo {{.absent}}"
[*] --> Build
Build --> Done : on_failure
Done --> [*]
`)
		shell := &fakeShell{}
		h := newHarness(runtime.WithShell(shell))

		run, err := h.run(t, wf, nil)
		require.NoError(t, err)
		assert.Empty(t, shell.Calls())
		assert.Contains(t, run.Context[domain.KeyLastError], "Template")
	})

	t.Run("deadline becomes a timeout failure", func(t *testing.T) {
		wf := compile(t, "slow", `stateDiagram-v2
state Build
state Done
Build : Shell "sleep" with timeout=20ms
[*] --> Build
Build --> Done : on_failure
Done --> [*]
`)
		shell := &fakeShell{fn: func(ctx context.Context, req ports.ShellRequest) (*ports.ShellResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
		h := newHarness(runtime.WithShell(shell))

		run, err := h.run(t, wf, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.RunCompleted, run.Status)
		assert.Contains(t, run.Context[domain.KeyLastError], "Timeout")
	})

	t.Run("background children do not block", func(t *testing.T) {
		if goruntime.GOOS == "windows" {
			t.Skip("relies on POSIX shell semantics")
		}
		wf := compile(t, "daemon", `stateDiagram-v2
state Spawn
state Done
Spawn : Shell "sleep 5 & echo started"
[*] --> Spawn
Spawn --> Done : on_success
Done --> [*]
`)
		h := newHarness(runtime.WithShell(process.NewRunner()))

		start := time.Now()
		run, err := h.run(t, wf, nil)
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.Equal(t, "started", run.Context[domain.KeyResult].(map[string]any)["stdout"])
	})
}

func TestSetAndLogActions(t *testing.T) {
	wf := compile(t, "notes", `stateDiagram-v2
state Tag
state Announce
state Done
Tag : Set stage="review" count=2 greeting="hello {{.who}}"
Announce : Log warn "{{.greeting}} at {{.stage}}"
[*] --> Tag
Tag --> Announce
Announce --> Done
Done --> [*]
`)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := newHarness(runtime.WithLogger(logger))

	run, err := h.run(t, wf, map[string]any{"who": "ana"})
	require.NoError(t, err)
	assert.Equal(t, "review", run.Context["stage"])
	assert.Equal(t, int64(2), run.Context["count"])
	assert.Equal(t, "hello ana", run.Context["greeting"])

	var found bool
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		if rec["msg"] == "hello ana at review" {
			found = true
			assert.Equal(t, "WARN", rec["level"])
			assert.Equal(t, "run-1", rec["run_id"])
			assert.Equal(t, "Announce", rec["state"])
		}
	}
	assert.True(t, found, "log action output missing:\n%s", buf.String())
}

func TestLogAction_TemplateErrorKeepsSuccessPath(t *testing.T) {
	wf := compile(t, "chatty", `stateDiagram-v2
state Announce
state Done
state Failed
Announce : Log info "hello {{.missing}}"
[*] --> Announce
Announce --> Done : on_success
Announce --> Failed : on_failure
Done --> [*]
Failed --> [*]
`)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := newHarness(runtime.WithLogger(logger))

	run, err := h.run(t, wf, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, domain.StateID("Done"), run.CurrentState)
	assert.Equal(t, true, run.Context[domain.KeyLastActionResult])

	var found bool
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		if rec["msg"] == "hello {{.missing}}" {
			found = true
			assert.Equal(t, "INFO", rec["level"])
			assert.Contains(t, rec["err"], "missing")
		}
	}
	assert.True(t, found, "raw log line missing:\n%s", buf.String())
}

func TestSubWorkflowAction(t *testing.T) {
	childDef, err := compiler.Parse("child", []byte(`stateDiagram-v2
state Work
state Done
Work : Set doubled="{{.size}}{{.size}}"
[*] --> Work
Work --> Done
Done --> [*]
`))
	require.NoError(t, err)
	childDef.Parameters = []domain.Parameter{{Name: "size", Type: "int", Required: true}}
	child, report := validator.Analyze(childDef)
	require.NoError(t, report.Err())

	t.Run("runs child to completion", func(t *testing.T) {
		parent := compile(t, "parent", `stateDiagram-v2
state Call
state Done
Call : Run workflow "child" with size="{{.n}}" result="sub"
[*] --> Call
Call --> Done : on_success
Done --> [*]
`)
		h := newHarness(runtime.WithResolver(resolver(parent, child)), runtime.WithIDGenerator(func() string { return "child-1" }))

		run, err := h.run(t, parent, map[string]any{"n": 4})
		require.NoError(t, err)
		assert.Equal(t, domain.RunCompleted, run.Status)

		sub := run.Context["sub"].(map[string]any)
		assert.Equal(t, "child-1", sub["run_id"])
		assert.Equal(t, "completed", sub["status"])
		assert.Equal(t, "44", sub["context"].(map[string]any)["doubled"])

		stored, err := h.store.Load(context.Background(), "child-1")
		require.NoError(t, err)
		assert.Equal(t, "run-1", stored.ParentID)
		assert.Equal(t, []domain.WorkflowName{"parent", "child"}, stored.CallStack)
		assert.Equal(t, int64(4), stored.Context["size"])
	})

	t.Run("invalid params fail the action", func(t *testing.T) {
		parent := compile(t, "parent", `stateDiagram-v2
state Call
state Done
Call : Run workflow "child"
[*] --> Call
Call --> Done : on_failure
Done --> [*]
`)
		h := newHarness(runtime.WithResolver(resolver(parent, child)))

		run, err := h.run(t, parent, nil)
		require.NoError(t, err)
		assert.Contains(t, run.Context[domain.KeyLastError], "size")
	})

	t.Run("unknown workflow", func(t *testing.T) {
		parent := compile(t, "parent", `stateDiagram-v2
state Call
state Done
Call : Run workflow "ghost"
[*] --> Call
Call --> Done : on_failure
Done --> [*]
`)
		h := newHarness(runtime.WithResolver(resolver(parent)))

		run, err := h.run(t, parent, nil)
		require.NoError(t, err)
		assert.Contains(t, run.Context[domain.KeyLastError], "NotFound")
	})

	t.Run("recursion is bounded", func(t *testing.T) {
		loop := compile(t, "loop", `stateDiagram-v2
state Again
state Done
Again : Run workflow "loop"
[*] --> Again
Again --> Done : on_success
Done --> [*]
`)
		h := newHarness(runtime.WithResolver(resolver(loop)), runtime.WithMaxDepth(4))

		run, err := h.run(t, loop, nil)
		var execErr *domain.ExecutorError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, domain.RunFailed, run.Status)

		all, err := h.runs.List(context.Background(), ports.RunFilter{})
		require.NoError(t, err)
		require.Len(t, all, 4)

		var deepest *domain.Run
		for _, r := range all {
			assert.Equal(t, domain.RunFailed, r.Status)
			if deepest == nil || r.Depth() > deepest.Depth() {
				deepest = r
			}
		}
		assert.Equal(t, 4, deepest.Depth())
		assert.Contains(t, deepest.Context[domain.KeyLastError], "Recursion")
	})
}

func TestWaitAction(t *testing.T) {
	signalFlow := `stateDiagram-v2
state Hold
state Approved
state Expired
Hold : Wait for signal "approve" with timeout=2s
[*] --> Hold
Hold --> Approved : on_success
Hold --> Expired : on_failure
Approved --> [*]
Expired --> [*]
`

	t.Run("duration", func(t *testing.T) {
		wf := compile(t, "pause", "stateDiagram-v2\nstate Hold\nstate Done\nHold : Wait 30ms\n[*] --> Hold\nHold --> Done\nDone --> [*]\n")
		h := newHarness()

		start := time.Now()
		run, err := h.run(t, wf, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
		assert.Equal(t, domain.RunCompleted, run.Status)
	})

	t.Run("cancellation interrupts a long wait", func(t *testing.T) {
		wf := compile(t, "pause", "stateDiagram-v2\nstate Hold\nstate Done\nHold : Wait 1 minute\n[*] --> Hold\nHold --> Done\nDone --> [*]\n")
		h := newHarness()
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)

		run := domain.NewRun("run-1", wf.Definition(), nil)
		start := time.Now()
		require.NoError(t, h.exec.Execute(ctx, wf, run))
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.Equal(t, domain.RunCancelled, run.Status)
		assert.Equal(t, domain.StateID("Hold"), run.CurrentState)
	})

	t.Run("signal sent before the wait", func(t *testing.T) {
		wf := compile(t, "gate", signalFlow)
		h := newHarness()
		h.exec.Mailbox().Send("run-1", "approve")

		run, err := h.run(t, wf, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.StateID("Approved"), run.CurrentState)
	})

	t.Run("signal sent during the wait", func(t *testing.T) {
		wf := compile(t, "gate", signalFlow)
		h := newHarness()
		time.AfterFunc(50*time.Millisecond, func() { h.exec.Mailbox().Send("run-1", "approve") })

		run, err := h.run(t, wf, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.StateID("Approved"), run.CurrentState)
	})

	t.Run("signal queued on the stored run", func(t *testing.T) {
		wf := compile(t, "gate", signalFlow)
		h := newHarness()
		run := domain.NewRun("run-1", wf.Definition(), nil)
		require.NoError(t, h.store.Save(context.Background(), run))

		time.AfterFunc(50*time.Millisecond, func() {
			_, _ = h.runs.Update(context.Background(), "run-1", func(r *domain.Run) error {
				r.Signals = append(r.Signals, "approve")
				return nil
			})
		})

		require.NoError(t, h.exec.Execute(context.Background(), wf, run))
		assert.Equal(t, domain.StateID("Approved"), run.CurrentState)

		stored, err := h.store.Load(context.Background(), "run-1")
		require.NoError(t, err)
		assert.Empty(t, stored.Signals)
	})

	t.Run("other signals do not release the wait", func(t *testing.T) {
		wf := compile(t, "gate", `stateDiagram-v2
state Hold
state Approved
state Expired
Hold : Wait for signal "approve" with timeout=100ms
[*] --> Hold
Hold --> Approved : on_success
Hold --> Expired : on_failure
Approved --> [*]
Expired --> [*]
`)
		h := newHarness()
		h.exec.Mailbox().Send("run-1", "reject")

		run, err := h.run(t, wf, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.StateID("Expired"), run.CurrentState)
		assert.Contains(t, run.Context[domain.KeyLastError], "Timeout")
	})
}

func TestMailbox(t *testing.T) {
	m := runtime.NewMailbox()
	changed := m.Changed("r")

	m.Send("r", "a")
	select {
	case <-changed:
	default:
		t.Fatal("send did not wake waiters")
	}

	m.Send("r", "b")
	m.Send("r", "a")
	assert.Equal(t, []string{"a", "b", "a"}, m.Pending("r"))
	assert.True(t, m.Take("r", "a"))
	assert.Equal(t, []string{"b", "a"}, m.Pending("r"))
	assert.False(t, m.Take("r", "c"))
	assert.False(t, m.Take("other", "a"))

	m.Drop("r")
	assert.Empty(t, m.Pending("r"))
}

func mustEvaluator(t *testing.T) ports.ConditionEvaluator {
	t.Helper()
	ev, err := condition.New()
	require.NoError(t, err)
	return ev
}
