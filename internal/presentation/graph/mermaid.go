package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/weft/internal/compiler"
	"github.com/aretw0/weft/pkg/domain"
)

// GraphOverlay contains dynamic run data to visualize on the diagram.
type GraphOverlay struct {
	VisitedStates []domain.StateID
	CurrentState  domain.StateID
	Failed        bool // Style the current state as failed
}

// OverlayFromRun builds an overlay from a run's history and position.
func OverlayFromRun(run *domain.Run) *GraphOverlay {
	if run == nil {
		return nil
	}
	o := &GraphOverlay{CurrentState: run.CurrentState, Failed: run.Status == domain.RunFailed}
	for _, h := range run.History {
		o.VisitedStates = append(o.VisitedStates, h.State)
	}
	return o
}

// RenderDiagram produces stateDiagram-v2 source for a definition.
// Without an overlay the output parses back into an equal definition.
// The overlay adds classDef/class lines, which the parser skips.
func RenderDiagram(def *domain.WorkflowDefinition, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("stateDiagram-v2\n")

	for _, s := range def.States {
		stereo := ""
		if s.Kind == domain.StateCompensation {
			stereo = " <<compensation>>"
		}
		switch {
		case s.Description == "":
			fmt.Fprintf(&sb, "    state %s%s\n", s.ID, stereo)
		case strings.Contains(s.Description, `"`) && s.Action == nil:
			fmt.Fprintf(&sb, "    state %s%s\n", s.ID, stereo)
		default:
			fmt.Fprintf(&sb, "    state \"%s\" as %s%s\n", strings.ReplaceAll(s.Description, `"`, "'"), s.ID, stereo)
		}
	}

	for _, s := range def.States {
		switch {
		case s.Action != nil:
			fmt.Fprintf(&sb, "    %s : %s\n", s.ID, actionText(s.Action))
		case strings.Contains(s.Description, `"`):
			fmt.Fprintf(&sb, "    %s : %s\n", s.ID, s.Description)
		}
	}

	sb.WriteString("\n")
	if def.InitialState != "" {
		fmt.Fprintf(&sb, "    [*] --> %s\n", def.InitialState)
	}
	for _, t := range def.Transitions {
		if label := compiler.FormatLabel(t.Condition, t.Action); label != "" {
			fmt.Fprintf(&sb, "    %s --> %s : %s\n", t.From, t.To, label)
		} else {
			fmt.Fprintf(&sb, "    %s --> %s\n", t.From, t.To)
		}
	}
	for _, s := range def.States {
		if s.Kind == domain.StateEnd {
			fmt.Fprintf(&sb, "    %s --> [*]\n", s.ID)
		}
	}

	if overlay != nil {
		writeOverlay(&sb, def, overlay)
	}
	return sb.String()
}

func actionText(a *domain.ActionSpec) string {
	if a.Text != "" {
		return a.Text
	}
	return compiler.FormatAction(a)
}

func writeOverlay(sb *strings.Builder, def *domain.WorkflowDefinition, overlay *GraphOverlay) {
	sb.WriteString("\n    %% Overlay Styles\n")
	// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
	sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000\n")
	sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000\n")
	sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#b71c1c,stroke-width:4px,color:#000\n")

	// Only style states that still exist in the definition
	visited := make(map[domain.StateID]bool)
	for _, id := range overlay.VisitedStates {
		if _, ok := def.State(id); !ok || visited[id] || id == overlay.CurrentState {
			continue
		}
		visited[id] = true
		fmt.Fprintf(sb, "    class %s visited\n", id)
	}

	if overlay.CurrentState != "" {
		if _, ok := def.State(overlay.CurrentState); ok {
			class := "current"
			if overlay.Failed {
				class = "failed"
			}
			fmt.Fprintf(sb, "    class %s %s\n", overlay.CurrentState, class)
		}
	}
}
