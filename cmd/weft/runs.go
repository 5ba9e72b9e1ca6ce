package main

import (
	"fmt"
	"time"

	"github.com/aretw0/weft/internal/cli"
	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/internal/presentation/tui"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := outputFlag(cmd)
		if err != nil {
			return err
		}
		eng, closeEngine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closeEngine()

		run, err := eng.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return cli.PrintRun(cmd.OutOrStdout(), run, out)
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		statuses, _ := cmd.Flags().GetStringSlice("status")
		workflow, _ := cmd.Flags().GetString("workflow")
		limit, _ := cmd.Flags().GetInt("limit")

		eng, closeEngine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closeEngine()

		filter := ports.RunFilter{Workflow: domain.WorkflowName(workflow), Limit: limit}
		for _, s := range statuses {
			filter.Statuses = append(filter.Statuses, domain.RunStatus(s))
		}
		runs, err := eng.ListRuns(cmd.Context(), filter)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(w, "No runs.")
			return nil
		}
		for _, run := range runs {
			fmt.Fprintln(w, tui.RunLine(w, run))
		}
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <run-id>",
	Short: "Print the log of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("tail")
		levelName, _ := cmd.Flags().GetString("level")
		follow, _ := cmd.Flags().GetBool("follow")

		query := domain.LogQuery{Tail: tail}
		if levelName != "" {
			level, err := logging.ParseLevel(levelName)
			if err != nil {
				return err
			}
			query.MinLevel = level
		}

		eng, closeEngine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closeEngine()

		ctx := cmd.Context()
		if _, err := eng.Status(ctx, args[0]); err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if follow {
			sigCtx := cli.NewSignalContext(ctx)
			defer sigCtx.Cancel()
			return cli.FollowLogs(sigCtx, eng, args[0], query, w, 500*time.Millisecond)
		}
		entries, err := eng.Logs(ctx, args[0], query)
		if err != nil {
			return err
		}
		for _, e := range entries {
			cli.PrintLog(w, e)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, runsCmd, logsCmd)

	statusCmd.Flags().StringP("output", "o", "text", "Output format: text, json or yaml")

	runsCmd.Flags().StringSlice("status", nil, "Only runs with these statuses")
	runsCmd.Flags().String("workflow", "", "Only runs of this workflow")
	runsCmd.Flags().Int("limit", 0, "Maximum number of runs (0 for all)")

	logsCmd.Flags().IntP("tail", "n", 0, "Only the last N lines")
	logsCmd.Flags().String("level", "", "Minimum level")
	logsCmd.Flags().BoolP("follow", "f", false, "Keep printing until the run finishes")
}
