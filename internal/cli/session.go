package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
)

// Stepper is the part of the engine step mode needs.
type Stepper interface {
	Status(ctx context.Context, id string) (*domain.Run, error)
	Step(ctx context.Context, id string) (*domain.Run, error)
	Resume(ctx context.Context, id string, force bool) (*domain.Run, error)
}

// StepSession advances a stored run interactively. Each line read from in
// is a command: empty or "s" steps, "c" continues to the end, "q" leaves the
// run where it is.
func StepSession(ctx context.Context, eng Stepper, id string, in io.Reader, out io.Writer) (*domain.Run, error) {
	run, err := eng.Status(ctx, id)
	if err != nil {
		return nil, err
	}

	lines := readLines(ctx, in)
	for !run.Status.Terminal() {
		fmt.Fprintf(out, "[%s] %s  (enter=step, c=continue, q=quit) > ", run.Status, run.CurrentState)

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return run, ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(out)
			return run, nil
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "", "s", "step":
			run, err = eng.Step(ctx, id)
		case "c", "continue":
			run, err = eng.Resume(ctx, id, false)
		case "q", "quit", "exit":
			return run, nil
		default:
			fmt.Fprintf(out, "unknown command %q\n", line)
			continue
		}
		if err != nil {
			return run, err
		}
	}
	return run, nil
}

// readLines pumps in into a channel closed on EOF. The reader goroutine may
// outlive ctx while blocked on a read.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
