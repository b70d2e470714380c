package upload

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const defaultBatchLimit = 4

// Task is one queued upload.
type Task struct {
	File    File
	Options SendOptions
}

// SendAll runs tasks with at most limit transfers in flight. Outcomes are
// returned in task order; completion order between transfers is unspecified.
// A failed task never stops the others.
func (d *Dispatcher) SendAll(ctx context.Context, tasks []Task, limit int) []Outcome {
	out := make([]Outcome, len(tasks))
	if len(tasks) == 0 {
		return out
	}
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range tasks {
		i := i
		g.Go(func() error {
			out[i] = d.Send(ctx, tasks[i].File, tasks[i].Options)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
