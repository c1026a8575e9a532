// Package poll implements the lifecycle of reaction-based polls: parsing a
// poll request, publishing it, collecting one vote per participant from
// reaction events and publishing the tally once the deadline has passed.
package poll

import (
	"errors"
	"fmt"
	"time"
)

// Limits applied to every poll request.
const (
	MinOptions = 2
	MaxOptions = 10

	MinDurationMinutes     = 1
	MaxDurationMinutes     = 1440
	DefaultDurationMinutes = 5

	// Separator splits the question, the options and the optional duration.
	Separator = "|"
)

// DefaultMarkers are the selection markers attached to a poll message, one per
// option index. Telegram only accepts reactions from its fixed emoji list, so
// every default is taken from that list.
var DefaultMarkers = []string{"👍", "❤", "🔥", "🎉", "🤩", "👏", "😁", "🤔", "💯", "⚡"}

var (
	// ErrTooFewSegments is returned when the request lacks a question and two options.
	ErrTooFewSegments = errors.New("poll: need a question and at least two options")
	// ErrOptionCount is returned when the option count falls outside [MinOptions, MaxOptions].
	ErrOptionCount = errors.New("poll: option count out of range")
	// ErrPollNotFound is returned when no open poll matches the given message.
	ErrPollNotFound = errors.New("poll: no open poll for message")
	// ErrNotPermitted is returned when a participant may not close a poll.
	ErrNotPermitted = errors.New("poll: participant may not close this poll")
)

// Request is a validated poll request produced by ParseRequest.
type Request struct {
	Question        string
	Options         []string
	DurationMinutes int
}

// Duration returns the poll duration as a time.Duration.
func (r Request) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

// Poll is one published poll and the votes it has collected.
type Poll struct {
	ID              string
	ThreadID        int64
	MessageID       int
	CreatorID       int64
	Question        string
	Options         []string
	DurationMinutes int
	CreatedAt       time.Time
	Deadline        time.Time
	Closed          bool

	// Votes maps a participant to the option index they selected last.
	Votes map[int64]int
}

// Key identifies a poll by the message it was published as.
type Key struct {
	ThreadID  int64
	MessageID int
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.ThreadID, k.MessageID)
}

// Key returns the dispatcher key of the poll.
func (p *Poll) Key() Key {
	return Key{ThreadID: p.ThreadID, MessageID: p.MessageID}
}

// Expired reports whether the poll deadline has been reached at now.
func (p *Poll) Expired(now time.Time) bool {
	return !now.Before(p.Deadline)
}

// ReactionEvent is a reaction change on a message, as delivered by the transport.
type ReactionEvent struct {
	ThreadID      int64
	MessageID     int
	ParticipantID int64
	Marker        string
}

// Summary is a read-only view of an open poll.
type Summary struct {
	Key       Key
	Question  string
	Voters    int
	Deadline  time.Time
	CreatorID int64
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
