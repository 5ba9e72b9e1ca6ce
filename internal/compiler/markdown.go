package compiler

import "strings"

// sourceLine is a diagram line with its 1-based position in the original source.
type sourceLine struct {
	num  int
	text string
}

// extractDiagram returns the lines of the first ```mermaid block, or every
// line when the source has no fenced block.
func extractDiagram(src []byte) []sourceLine {
	raw := strings.Split(strings.ReplaceAll(string(src), "\r\n", "\n"), "\n")

	start, end := -1, len(raw)
	for i, l := range raw {
		t := strings.TrimSpace(l)
		if start < 0 {
			if strings.HasPrefix(t, "```") && strings.TrimSpace(strings.TrimPrefix(t, "```")) == "mermaid" {
				start = i + 1
			}
			continue
		}
		if strings.HasPrefix(t, "```") {
			end = i
			break
		}
	}
	if start < 0 {
		start, end = 0, len(raw)
	}

	lines := make([]sourceLine, 0, end-start)
	for i := start; i < end; i++ {
		lines = append(lines, sourceLine{num: i + 1, text: raw[i]})
	}
	return lines
}
