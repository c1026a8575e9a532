package tasks

import (
	"context"
	"fmt"
	"time"
)

// newPollCloserTask creates the task that publishes the results of every
// poll whose deadline has passed.
func newPollCloserTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "poll_closer")

	return func(ctx context.Context) error {
		startTime := time.Now()

		closed, err := deps.Manager.CloseExpired(ctx)
		if err != nil {
			log.ErrorContext(ctx, "Failed to publish results for some polls", "closed", closed, "error", err)
			return fmt.Errorf("poll closer: %w", err)
		}

		if closed > 0 {
			log.InfoContext(ctx, "Closed expired polls", "closed", closed, "duration", time.Since(startTime))
		}
		return nil
	}
}
