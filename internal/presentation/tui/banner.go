package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the weft banner followed by the version line.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct{ text, color string }{
		{`                  __ _   `, "#818cf8"},
		{` __      __ ___  / _| |_ `, "#a78bfa"},
		{` \ \ /\ / // _ \| |_| __|`, "#c084fc"},
		{`  \ V  V /|  __/|  _| |_ `, "#e879f9"},
		{`   \_/\_/  \___||_|  \__|`, "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  version "+version).Faint())
	fmt.Fprintln(w)
}
