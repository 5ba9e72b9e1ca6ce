package domain

import (
	"log/slog"
	"time"
)

// ResponseType classifies an agent answer.
type ResponseType string

const (
	ResponseSuccess ResponseType = "success"
	ResponsePartial ResponseType = "partial"
	ResponseError   ResponseType = "error"
)

// AgentResponse is what an agent executor returns for a prompt.
type AgentResponse struct {
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ResponseType ResponseType   `json:"response_type"`
}

// AsContextValue converts the response into the structured value stored in the run context,
// so expressions like result.content.contains("YES") work.
func (r *AgentResponse) AsContextValue() map[string]any {
	meta := r.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return map[string]any{
		"content":       r.Content,
		"metadata":      meta,
		"response_type": string(r.ResponseType),
	}
}

// ExecutionContext identifies where a prompt is executed from.
type ExecutionContext struct {
	RunID    string         `json:"run_id"`
	Workflow WorkflowName   `json:"workflow"`
	State    StateID        `json:"state"`
	Vars     map[string]any `json:"vars,omitempty"`
}

// Prompt is a reusable prompt template.
type Prompt struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	System      string `json:"system,omitempty"`
	Body        string `json:"body"`
}

// LogEntry is one captured log line of a run.
type LogEntry struct {
	Time    time.Time      `json:"time"`
	Level   slog.Level     `json:"level"`
	Message string         `json:"message"`
	RunID   string         `json:"run_id"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// LogQuery filters a run's log lines.
type LogQuery struct {
	Tail     int          // Last N entries; 0 means all
	MinLevel slog.Leveler // Entries below this level are dropped; nil keeps all
}

// Filter applies the query to entries in chronological order.
func (q LogQuery) Filter(entries []LogEntry) []LogEntry {
	out := make([]LogEntry, 0, len(entries))
	for _, e := range entries {
		if q.MinLevel == nil || e.Level >= q.MinLevel.Level() {
			out = append(out, e)
		}
	}
	if q.Tail > 0 && len(out) > q.Tail {
		out = out[len(out)-q.Tail:]
	}
	return out
}
