package tasks

import (
	"context"
	"fmt"
	"time"
)

// newSQLMaintenanceTask creates the scheduled task that purges closed polls
// older than the configured retention and runs database maintenance.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sql_maintenance")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled SQL maintenance task...")
		startTime := time.Now()

		if retention := deps.Config.Database.Retention; retention > 0 {
			purged, err := deps.Store.PurgeClosedPolls(ctx, time.Now().Add(-retention))
			if err != nil {
				log.ErrorContext(ctx, "Failed to purge closed polls", "error", err)
				return fmt.Errorf("purge closed polls: %w", err)
			}
			log.InfoContext(ctx, "Purged closed polls", "count", purged, "retention", retention)
		}

		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			log.ErrorContext(ctx, "SQL maintenance task failed", "error", err, "duration", time.Since(startTime))
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled SQL maintenance task completed successfully", "duration", time.Since(startTime))
		return nil
	}
}
