// Package tasks implements the scheduled tasks of the poll bot: closing
// polls whose deadline has passed and database housekeeping.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/pollbot/internal/config"
	"github.com/edgard/pollbot/internal/database"
)

// PollCloser closes every poll past its deadline. *poll.Manager implements it.
type PollCloser interface {
	CloseExpired(ctx context.Context) (int, error)
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger  *slog.Logger
	Store   database.Store
	Manager PollCloser
	Config  *config.Config
}
