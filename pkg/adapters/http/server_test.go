package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/weft"
	weftapi "github.com/aretw0/weft/pkg/adapters/http"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gateFlow = `stateDiagram-v2
state Hold
state Approved
state Expired
Hold : Wait for signal "approve" with timeout=5s
[*] --> Hold
Hold --> Approved : on_success
Hold --> Expired : on_failure
Approved --> [*]
Expired --> [*]
`

const greetFlow = `stateDiagram-v2
state Hello
state Done
Hello : Log "hello {{.name}}"
[*] --> Hello
Hello --> Done
Done --> [*]
`

type fixture struct {
	srv    *httptest.Server
	eng    *weft.Engine
	loader *memory.Loader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loader := memory.NewLoader(map[string]string{"gate": gateFlow, "greet": greetFlow})
	reg := prometheus.NewRegistry()
	prom, err := metrics.NewPrometheusCollector(reg)
	require.NoError(t, err)

	eng, err := weft.New("", weft.WithLoader(loader), weft.WithPollInterval(10*time.Millisecond), weft.WithLifecycleHooks(prom.Hooks()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })

	srv := httptest.NewServer(weftapi.NewHandler(eng,
		weftapi.WithMetrics(reg),
		weftapi.WithVersion("1.2.3\n"),
		weftapi.WithPollInterval(10*time.Millisecond),
	))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, eng: eng, loader: loader}
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthAndInfo(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	info := decode[map[string]string](t, f.do(t, "GET", "/info", ""))
	assert.Equal(t, "1.2.3", info["version"])
}

func TestWorkflows(t *testing.T) {
	f := newFixture(t)

	list := decode[[]domain.WorkflowMetadata](t, f.do(t, "GET", "/workflows", ""))
	require.Len(t, list, 2)
	assert.Equal(t, domain.WorkflowName("gate"), list[0].Name)

	wf := decode[weftapi.WorkflowResponse](t, f.do(t, "GET", "/workflows/greet", ""))
	require.NotNil(t, wf.Definition)
	assert.Equal(t, domain.StateID("Hello"), wf.Definition.InitialState)
	assert.Empty(t, wf.Errors)

	resp := f.do(t, "GET", "/workflows/ghost", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, "GET", "/workflows/greet/graph", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	src := new(strings.Builder)
	_, _ = bufio.NewReader(resp.Body).WriteTo(src)
	assert.True(t, strings.HasPrefix(src.String(), "stateDiagram-v2"))
}

func TestRunLifecycle(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, "POST", "/workflows/gate/runs", `{"vars": {"ticket": "T-1"}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	run := decode[domain.Run](t, resp)
	assert.Equal(t, "/runs/"+run.ID, resp.Header.Get("Location"))
	assert.Equal(t, "T-1", run.Context["ticket"])

	resp = f.do(t, "POST", "/runs/"+run.ID+"/signal", `{"signal": "approve"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	final, err := f.eng.Wait(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateID("Approved"), final.CurrentState)

	got := decode[domain.Run](t, f.do(t, "GET", "/runs/"+run.ID, ""))
	assert.Equal(t, domain.RunCompleted, got.Status)

	runs := decode[[]domain.Run](t, f.do(t, "GET", "/runs?workflow=gate&status=completed", ""))
	assert.Len(t, runs, 1)

	resp = f.do(t, "POST", "/runs/"+run.ID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do(t, "DELETE", "/runs/"+run.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(t, "GET", "/runs/"+run.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.eng.Create(ctx, "gate", nil)
	require.NoError(t, err)

	resp := f.do(t, "POST", "/runs/"+run.ID+"/resume", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = f.do(t, "POST", "/runs/"+run.ID+"/cancel", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	final, err := f.eng.Wait(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, final.Status)

	resp = f.do(t, "POST", "/runs/"+run.ID+"/resume", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t)
	f.loader.Put(domain.WorkflowSource{
		Name:       "sized",
		Parameters: []domain.Parameter{{Name: "size", Type: "int", Required: true}},
		Source:     []byte(greetFlow),
	})

	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"malformed body", "POST", "/workflows/greet/runs", `{`, http.StatusBadRequest},
		{"missing parameter", "POST", "/workflows/sized/runs", `{}`, http.StatusUnprocessableEntity},
		{"unknown workflow", "POST", "/workflows/ghost/runs", ``, http.StatusNotFound},
		{"empty signal", "POST", "/runs/x/signal", `{}`, http.StatusBadRequest},
		{"unknown run", "GET", "/runs/x/logs", ``, http.StatusNotFound},
		{"bad tail", "GET", "/runs/x/logs?tail=-1", ``, http.StatusBadRequest},
		{"bad limit", "GET", "/runs?limit=abc", ``, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
			body := decode[weftapi.ErrorResponse](t, resp)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestLogsAndEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.eng.Run(ctx, "greet", map[string]any{"name": "api"})
	require.NoError(t, err)

	entries := decode[[]domain.LogEntry](t, f.do(t, "GET", "/runs/"+run.ID+"/logs?level=info", ""))
	var messages []string
	for _, e := range entries {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "hello api")

	resp := f.do(t, "GET", "/runs/"+run.ID+"/events", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	stream := new(strings.Builder)
	_, _ = bufio.NewReader(resp.Body).WriteTo(stream)
	out := stream.String()
	assert.Contains(t, out, "event: ping")
	assert.Contains(t, out, "event: log")
	assert.Contains(t, out, `"message":"hello api"`)
	assert.Contains(t, out, "event: status")
	assert.Contains(t, out, `"status":"completed"`)
}

func TestReloadEvents(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", f.srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ping\n", line)

	f.loader.Put(domain.WorkflowSource{Name: "greet", Source: []byte(greetFlow)})
	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: {") {
			break
		}
	}
	assert.Contains(t, line, `"workflow":"greet"`)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.Run(context.Background(), "greet", map[string]any{"name": "metrics"})
	require.NoError(t, err)

	resp := f.do(t, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := new(strings.Builder)
	_, _ = bufio.NewReader(resp.Body).WriteTo(body)
	assert.Contains(t, body.String(), `weft_runs_total{status="completed",workflow="greet"} 1`)
}
