package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/pollbot/internal/poll"
)

// Store defines the database operations used by the bot.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	poll.Store

	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// PurgeClosedPolls deletes polls closed before the given time, with their votes.
	PurgeClosedPolls(ctx context.Context, closedBefore time.Time) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SavePoll inserts a new poll together with any votes it already carries.
func (s *sqlxStore) SavePoll(ctx context.Context, p *poll.Poll) error {
	if p == nil {
		return errors.New("cannot save nil poll")
	}
	if p.ID == "" {
		return errors.New("poll must have an id")
	}

	options, err := json.Marshal(p.Options)
	if err != nil {
		return fmt.Errorf("failed to encode options of poll %s: %w", p.ID, err)
	}

	record := PollRecord{
		ID:              p.ID,
		ChatID:          p.ThreadID,
		MessageID:       p.MessageID,
		CreatorID:       p.CreatorID,
		Question:        p.Question,
		Options:         string(options),
		DurationMinutes: p.DurationMinutes,
		CreatedAt:       p.CreatedAt.UTC(),
		Deadline:        p.Deadline.UTC(),
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	query := `
		INSERT INTO polls (id, chat_id, message_id, creator_id, question, options, duration_minutes, created_at, deadline)
		VALUES (:id, :chat_id, :message_id, :creator_id, :question, :options, :duration_minutes, :created_at, :deadline);
	`
	if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
		s.logger.ErrorContext(ctx, "Error saving poll", "poll_id", p.ID, "chat_id", p.ThreadID, "error", err)
		return fmt.Errorf("failed to save poll %s: %w", p.ID, err)
	}

	now := time.Now().UTC()
	for userID, idx := range p.Votes {
		if err := upsertVote(ctx, tx, VoteRecord{PollID: p.ID, UserID: userID, OptionIndex: idx, UpdatedAt: now}); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Poll saved successfully", "poll_id", p.ID, "chat_id", p.ThreadID, "message_id", p.MessageID)
	return nil
}

// SaveVote inserts or replaces the vote of a participant.
func (s *sqlxStore) SaveVote(ctx context.Context, pollID string, participantID int64, option int) error {
	if pollID == "" {
		return errors.New("poll_id cannot be empty")
	}
	return upsertVote(ctx, s.db, VoteRecord{
		PollID:      pollID,
		UserID:      participantID,
		OptionIndex: option,
		UpdatedAt:   time.Now().UTC(),
	})
}

func upsertVote(ctx context.Context, ext sqlx.ExtContext, v VoteRecord) error {
	query := `
		INSERT INTO poll_votes (poll_id, user_id, option_index, updated_at)
		VALUES (:poll_id, :user_id, :option_index, :updated_at)
		ON CONFLICT (poll_id, user_id) DO UPDATE SET
			option_index = excluded.option_index,
			updated_at = excluded.updated_at;
	`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, v); err != nil {
		return fmt.Errorf("failed to save vote (poll %s, user %d): %w", v.PollID, v.UserID, err)
	}
	return nil
}

// MarkPollClosed records the closing time and the results message of a poll.
// A zero resultsMessageID is stored as NULL.
func (s *sqlxStore) MarkPollClosed(ctx context.Context, pollID string, resultsMessageID int, closedAt time.Time) error {
	results := sql.NullInt64{Int64: int64(resultsMessageID), Valid: resultsMessageID != 0}

	res, err := s.db.ExecContext(ctx,
		`UPDATE polls SET closed_at = ?, results_message_id = ? WHERE id = ? AND closed_at IS NULL`,
		closedAt.UTC(), results, pollID)
	if err != nil {
		return fmt.Errorf("failed to mark poll %s closed: %w", pollID, err)
	}

	if affected, err := res.RowsAffected(); err == nil && affected != 1 {
		s.logger.WarnContext(ctx, "Unexpected number of rows affected when closing poll", "poll_id", pollID, "affected", affected)
	}
	return nil
}

// LoadOpenPolls returns every poll that has not been closed, with its votes.
func (s *sqlxStore) LoadOpenPolls(ctx context.Context) ([]*poll.Poll, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var records []PollRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, chat_id, message_id, creator_id, question, options, duration_minutes,
		       created_at, deadline, closed_at, results_message_id
		FROM polls
		WHERE closed_at IS NULL
		ORDER BY deadline ASC;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open polls: %w", err)
	}

	var votes []VoteRecord
	err = s.db.SelectContext(ctx, &votes, `
		SELECT v.poll_id, v.user_id, v.option_index, v.updated_at
		FROM poll_votes v
		JOIN polls p ON p.id = v.poll_id
		WHERE p.closed_at IS NULL;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes of open polls: %w", err)
	}

	byPoll := make(map[string]map[int64]int, len(records))
	for _, v := range votes {
		if byPoll[v.PollID] == nil {
			byPoll[v.PollID] = make(map[int64]int)
		}
		byPoll[v.PollID][v.UserID] = v.OptionIndex
	}

	polls := make([]*poll.Poll, 0, len(records))
	for _, r := range records {
		var options []string
		if err := json.Unmarshal([]byte(r.Options), &options); err != nil {
			s.logger.WarnContext(ctx, "Skipping poll with unreadable options", "poll_id", r.ID, "error", err)
			continue
		}
		pv := byPoll[r.ID]
		if pv == nil {
			pv = make(map[int64]int)
		}
		polls = append(polls, &poll.Poll{
			ID:              r.ID,
			ThreadID:        r.ChatID,
			MessageID:       r.MessageID,
			CreatorID:       r.CreatorID,
			Question:        r.Question,
			Options:         options,
			DurationMinutes: r.DurationMinutes,
			CreatedAt:       r.CreatedAt,
			Deadline:        r.Deadline,
			Votes:           pv,
		})
	}

	s.logger.DebugContext(ctx, "Loaded open polls", "count", len(polls), "votes", len(votes))
	return polls, nil
}

// PurgeClosedPolls deletes polls closed before closedBefore. Votes go with them.
func (s *sqlxStore) PurgeClosedPolls(ctx context.Context, closedBefore time.Time) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	cutoff := closedBefore.UTC()
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM poll_votes
		WHERE poll_id IN (SELECT id FROM polls WHERE closed_at IS NOT NULL AND closed_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to delete votes of closed polls: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM polls WHERE closed_at IS NOT NULL AND closed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete closed polls: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted polls: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.InfoContext(ctx, "Purged closed polls", "count", deleted, "closed_before", cutoff)
	return deleted, nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
			return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
		}
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}
