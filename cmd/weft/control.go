package main

import (
	"fmt"

	"github.com/aretw0/weft/internal/cli"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Cancel a run",
	Long: `Marks the run cancelled. A process driving the run stops at its next
checkpoint or wait poll.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeEngine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closeEngine()

		if err := eng.Cancel(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Run %s cancelled.\n", args[0])
		return nil
	},
}

var signalCmd = &cobra.Command{
	Use:   "signal <run-id> <name>",
	Short: "Send a signal to a run",
	Long:  `Queues a named signal for a run waiting in a 'Wait for signal' action.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeEngine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closeEngine()

		if err := eng.Signal(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signal %q sent to run %s.\n", args[1], args[0])
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Continue a stored run in the foreground",
	Long: `Drives a run that is not finished from its last checkpoint. A run that
was interrupted inside a non-idempotent action (shell, prompt) is refused
unless --force is given, since that action will execute again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		out, err := outputFlag(cmd)
		if err != nil {
			return err
		}
		eng, closeEngine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closeEngine()

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		run, runErr := eng.Resume(sigCtx, args[0], force)
		if run == nil {
			return runErr
		}
		if err := cli.PrintRun(cmd.OutOrStdout(), run, out); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd, signalCmd, resumeCmd)

	resumeCmd.Flags().Bool("force", false, "Re-execute an interrupted non-idempotent action")
	resumeCmd.Flags().StringP("output", "o", "text", "Output format: text, json or yaml")
}
