package cli

import (
	"context"
	"io"
	"time"

	"github.com/aretw0/weft/pkg/domain"
)

// LogReader is the part of the engine log following needs.
type LogReader interface {
	Status(ctx context.Context, id string) (*domain.Run, error)
	Logs(ctx context.Context, id string, query domain.LogQuery) ([]domain.LogEntry, error)
}

// FollowLogs prints the run's log as it grows, polling every interval, and
// returns once the run is terminal and its last lines are printed.
func FollowLogs(ctx context.Context, eng LogReader, id string, query domain.LogQuery, w io.Writer, interval time.Duration) error {
	var last time.Time
	emit := func(q domain.LogQuery) error {
		entries, err := eng.Logs(ctx, id, q)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.Time.After(last) {
				continue
			}
			PrintLog(w, e)
			last = e.Time
		}
		return nil
	}

	if err := emit(query); err != nil {
		return err
	}
	follow := domain.LogQuery{MinLevel: query.MinLevel}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		run, err := eng.Status(ctx, id)
		if err != nil {
			return err
		}
		// Read the status first so lines written before it turned terminal are not lost.
		if err := emit(follow); err != nil {
			return err
		}
		if run.Status.Terminal() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
