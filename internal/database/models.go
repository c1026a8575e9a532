package database

import (
	"database/sql"
	"time"
)

// PollRecord is a row of the polls table. Options are stored as a JSON array.
type PollRecord struct {
	ID              string    `db:"id"`
	ChatID          int64     `db:"chat_id"`
	MessageID       int       `db:"message_id"`
	CreatorID       int64     `db:"creator_id"`
	Question        string    `db:"question"`
	Options         string    `db:"options"`
	DurationMinutes int       `db:"duration_minutes"`
	CreatedAt       time.Time `db:"created_at"`
	Deadline        time.Time `db:"deadline"`

	ClosedAt         sql.NullTime  `db:"closed_at"`
	ResultsMessageID sql.NullInt64 `db:"results_message_id"`
}

// VoteRecord is a row of the poll_votes table; one per participant and poll.
type VoteRecord struct {
	PollID      string    `db:"poll_id"`
	UserID      int64     `db:"user_id"`
	OptionIndex int       `db:"option_index"`
	UpdatedAt   time.Time `db:"updated_at"`
}
