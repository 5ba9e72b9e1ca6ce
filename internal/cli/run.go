package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/weft/pkg/domain"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	Workflow domain.WorkflowName
	Vars     []string // key=value pairs
	Step     bool     // Prompt before every state
	Output   Output
	Quiet    bool
}

// Execute handles the 'run' command: it drives a new run in the foreground,
// or one state at a time in step mode, and prints the final run.
func Execute(ctx *SignalContext, eng *Engine, opts RunOptions, in io.Reader, out io.Writer) error {
	vars, err := ParseVars(opts.Vars)
	if err != nil {
		return err
	}

	var run *domain.Run
	var runErr error
	if opts.Step {
		run, err = eng.Create(ctx, opts.Workflow, vars)
		if err != nil {
			return err
		}
		if !opts.Quiet {
			printSystemMessage(out, "Run '%s' created.", run.ID)
		}
		run, runErr = StepSession(ctx, eng, run.ID, in, out)
	} else {
		run, runErr = eng.Run(ctx, opts.Workflow, vars)
	}
	if run == nil {
		return runErr
	}

	logCompletion(out, run, ctx.Signal(), opts.Quiet)
	if err := PrintRun(out, run, opts.Output); err != nil {
		return err
	}
	return handleExecutionError(runErr)
}

// handleExecutionError hides interruptions: a cancelled run was already reported.
func handleExecutionError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logCompletion(w io.Writer, run *domain.Run, sig fmt.Stringer, quiet bool) {
	if quiet {
		return
	}
	switch run.Status {
	case domain.RunCancelled:
		if sig != nil {
			printSystemMessage(w, "Interrupted (%s) at '%s' state.", sig, run.CurrentState)
			return
		}
		printSystemMessage(w, "Cancelled at '%s' state.", run.CurrentState)
	case domain.RunCompleted, domain.RunFailed:
		printSystemMessage(w, "Finished at '%s' state.", run.CurrentState)
	default:
		printSystemMessage(w, "Paused at '%s' state. Continue with 'weft resume %s'.", run.CurrentState, run.ID)
	}
}
