package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/weft/internal/presentation/graph"
	"github.com/aretw0/weft/internal/presentation/tui"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the workflows of the project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeEngine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closeEngine()

		list, err := eng.ListWorkflows(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, wf := range list {
			var params []string
			for _, p := range wf.Parameters {
				s := p.Name
				if p.Required {
					s += "*"
				}
				params = append(params, s)
			}
			fmt.Fprintf(w, "%-24s %-40s %s\n", wf.Name, wf.Description, strings.Join(params, " "))
		}
		return nil
	},
}

var errInvalid = errors.New("validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate [workflow...]",
	Short: "Check workflows for structural problems",
	Long: `Parses and analyzes each workflow (all of them by default) and reports
errors, which prevent a workflow from running, and warnings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeEngine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closeEngine()

		ctx := cmd.Context()
		names := make([]domain.WorkflowName, 0, len(args))
		for _, a := range args {
			names = append(names, domain.WorkflowName(a))
		}
		if len(names) == 0 {
			list, err := eng.ListWorkflows(ctx)
			if err != nil {
				return err
			}
			for _, wf := range list {
				names = append(names, wf.Name)
			}
		}

		w := cmd.OutOrStdout()
		failed := false
		for _, name := range names {
			report, err := eng.Validate(ctx, name)
			if err != nil {
				failed = true
				fmt.Fprintf(w, "✗ %s: %v\n", name, err)
				continue
			}
			if report.OK() {
				fmt.Fprintf(w, "✓ %s\n", name)
			} else {
				failed = true
				fmt.Fprintf(w, "✗ %s\n", name)
			}
			for _, e := range report.Errors {
				fmt.Fprintf(w, "    error: %v\n", e)
			}
			for _, warn := range report.Warnings {
				fmt.Fprintf(w, "    warning: %s\n", warn)
			}
		}
		if failed {
			return errInvalid
		}
		return nil
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph <workflow>",
	Short: "Print the workflow as a mermaid diagram",
	Long: `Outputs stateDiagram-v2 source for the workflow. With --run the run's
visited and current states are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run")
		render, _ := cmd.Flags().GetBool("render")

		eng, closeEngine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closeEngine()

		ctx := cmd.Context()
		def, err := eng.Definition(ctx, domain.WorkflowName(args[0]))
		if err != nil {
			return err
		}
		var overlay *graph.GraphOverlay
		if runID != "" {
			run, err := eng.Status(ctx, runID)
			if err != nil {
				return err
			}
			if run.Definition != nil {
				def = run.Definition
			}
			overlay = graph.OverlayFromRun(run)
		}

		diagram := graph.RenderDiagram(def, overlay)
		w := cmd.OutOrStdout()
		if !render {
			fmt.Fprint(w, diagram)
			return nil
		}
		md := fmt.Sprintf("# %s\n\n%s\n\n```mermaid\n%s```\n", def.Name, def.Description, diagram)
		return tui.PrintMarkdown(w, md)
	},
}

func init() {
	rootCmd.AddCommand(listCmd, validateCmd, graphCmd)

	graphCmd.Flags().String("run", "", "Overlay the progress of this run")
	graphCmd.Flags().Bool("render", false, "Render as markdown in the terminal")
}
