package tui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/muesli/termenv"
)

var statusColors = map[domain.RunStatus]string{
	domain.RunCreated:   "#94a3b8",
	domain.RunRunning:   "#60a5fa",
	domain.RunCompleted: "#4ade80",
	domain.RunFailed:    "#f87171",
	domain.RunCancelled: "#fbbf24",
}

// Status returns the status colored for w. Non-terminals get plain text.
func Status(w io.Writer, status domain.RunStatus) string {
	out := termenv.NewOutput(w)
	color, ok := statusColors[status]
	if !ok {
		return string(status)
	}
	return out.String(string(status)).Foreground(out.Color(color)).Bold().String()
}

// RunSummary describes a run as markdown: header fields, history and context.
func RunSummary(run *domain.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", run.Workflow)
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| run | `%s` |\n", run.ID)
	fmt.Fprintf(&b, "| status | **%s** |\n", run.Status)
	fmt.Fprintf(&b, "| state | `%s` |\n", run.CurrentState)
	if run.ParentID != "" {
		fmt.Fprintf(&b, "| parent | `%s` |\n", run.ParentID)
	}
	if run.InFlight != "" {
		fmt.Fprintf(&b, "| in flight | `%s` |\n", run.InFlight)
	}
	if len(run.Signals) > 0 {
		fmt.Fprintf(&b, "| pending signals | %s |\n", strings.Join(run.Signals, ", "))
	}
	fmt.Fprintf(&b, "| started | %s |\n", run.CreatedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Fprintf(&b, "| duration | %s |\n", run.FinishedAt.Sub(run.CreatedAt).Round(time.Millisecond))
	}
	if run.Error != "" {
		fmt.Fprintf(&b, "\n> %s\n", escapeLine(run.Error))
	}

	if len(run.History) > 0 {
		b.WriteString("\n## History\n\n")
		for i, h := range run.History {
			fmt.Fprintf(&b, "%d. `%s` %s", i+1, h.State, h.Outcome)
			if h.Detail != "" {
				fmt.Fprintf(&b, ": %s", escapeLine(h.Detail))
			}
			b.WriteString("\n")
		}
	}

	if len(run.Context) > 0 {
		b.WriteString("\n## Context\n\n| key | value |\n|---|---|\n")
		keys := make([]string, 0, len(run.Context))
		for k := range run.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "| %s | %s |\n", k, cell(run.Context[k]))
		}
	}
	return b.String()
}

// RunLine is the one-line form used by listings.
func RunLine(w io.Writer, run *domain.Run) string {
	return fmt.Sprintf("%-36s  %-20s  %-9s  %-16s  %s",
		run.ID, run.Workflow, Status(w, run.Status), run.CurrentState, run.UpdatedAt.Format(time.DateTime))
}

func cell(v any) string {
	s := fmt.Sprint(v)
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return strings.ReplaceAll(escapeLine(s), "|", `\|`)
}

func escapeLine(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
}
