package main

import (
	"github.com/aretw0/weft/internal/cli"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <workflow>",
	Short: "Run a workflow to completion",
	Long: `Creates a run of the workflow and drives it in the foreground.
Ctrl+C cancels the run. With --step the run advances one state per Enter,
and can be left paused and continued later with 'weft resume'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vars, _ := cmd.Flags().GetStringArray("var")
		step, _ := cmd.Flags().GetBool("step")
		quiet, _ := cmd.Flags().GetBool("quiet")
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

		return cli.Execute(sigCtx, eng, cli.RunOptions{
			Workflow: domain.WorkflowName(args[0]),
			Vars:     vars,
			Step:     step,
			Output:   out,
			Quiet:    quiet,
		}, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func outputFlag(cmd *cobra.Command) (cli.Output, error) {
	o, _ := cmd.Flags().GetString("output")
	return cli.ParseOutput(o)
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArrayP("var", "v", nil, "Run variable as key=value (repeatable)")
	runCmd.Flags().Bool("step", false, "Advance one state at a time")
	runCmd.Flags().BoolP("quiet", "q", false, "Only print the final run")
	runCmd.Flags().StringP("output", "o", "text", "Output format: text, json or yaml")
}
