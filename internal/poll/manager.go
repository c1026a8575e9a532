package poll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Messenger is the outbound side of the chat transport.
type Messenger interface {
	// SendMessage publishes text in a thread and returns the new message id.
	// A non-zero replyTo publishes the message as a reply to that message.
	SendMessage(ctx context.Context, threadID int64, text string, replyTo int) (int, error)

	// SetReaction attaches a selection marker to a message.
	SetReaction(ctx context.Context, threadID int64, messageID int, marker string) error
}

// Store persists polls and votes so that open polls survive a restart.
type Store interface {
	SavePoll(ctx context.Context, p *Poll) error
	SaveVote(ctx context.Context, pollID string, participantID int64, option int) error
	MarkPollClosed(ctx context.Context, pollID string, resultsMessageID int, closedAt time.Time) error
	LoadOpenPolls(ctx context.Context) ([]*Poll, error)
}

// Commentator adds a short free-text remark to published results.
type Commentator interface {
	CommentResults(ctx context.Context, res Results) (string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithMarkers replaces the selection markers. At least MaxOptions unique markers are required.
func WithMarkers(markers []string) Option {
	return func(m *Manager) {
		m.markers = slices.Clone(markers)
	}
}

// WithDefaultDuration sets the duration used when a request carries none.
func WithDefaultDuration(minutes int) Option {
	return func(m *Manager) {
		m.defaultMinutes = minutes
	}
}

// WithStore enables persistence of polls and votes.
func WithStore(s Store) Option {
	return func(m *Manager) {
		m.store = s
	}
}

// WithCommentator posts a commentary as a reply to every results message.
func WithCommentator(c Commentator) Option {
	return func(m *Manager) {
		m.commentator = c
	}
}

// WithCommentaryTimeout bounds the time spent generating one commentary.
func WithCommentaryTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.commentaryTimeout = d
		}
	}
}

// WithAdmin allows the given participant to close any poll.
func WithAdmin(participantID int64) Option {
	return func(m *Manager) {
		m.adminID = participantID
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// DefaultCommentaryTimeout bounds commentary generation unless overridden.
const DefaultCommentaryTimeout = 20 * time.Second

// Manager owns every open poll. It routes reaction events to polls by
// message, closes polls whose deadline has passed and publishes results.
// It is safe for concurrent use.
type Manager struct {
	logger      *slog.Logger
	messenger   Messenger
	store       Store
	commentator Commentator
	now         func() time.Time

	commentaryTimeout time.Duration

	markers        []string
	markerIndex    map[string]int
	defaultMinutes int
	adminID        int64

	mu    sync.Mutex
	polls map[Key]*Poll
}

// NewManager creates a Manager publishing through messenger.
func NewManager(logger *slog.Logger, messenger Messenger, opts ...Option) (*Manager, error) {
	if messenger == nil {
		return nil, errors.New("poll manager requires a messenger")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	m := &Manager{
		logger:         logger.With("component", "poll_manager"),
		messenger:      messenger,
		now:            time.Now,
		markers:        slices.Clone(DefaultMarkers),
		defaultMinutes: DefaultDurationMinutes,
		polls:          make(map[Key]*Poll),

		commentaryTimeout: DefaultCommentaryTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}

	if len(m.markers) < MaxOptions {
		return nil, fmt.Errorf("need %d selection markers, got %d", MaxOptions, len(m.markers))
	}
	m.markerIndex = make(map[string]int, len(m.markers))
	for i, marker := range m.markers {
		if marker == "" {
			return nil, fmt.Errorf("selection marker %d is empty", i+1)
		}
		if _, dup := m.markerIndex[marker]; dup {
			return nil, fmt.Errorf("selection marker %q is used twice", marker)
		}
		m.markerIndex[marker] = i
	}

	return m, nil
}

// Create parses input, publishes the poll in threadID, attaches one marker per
// option in order and starts collecting votes. Validation failures return
// ErrTooFewSegments or ErrOptionCount before anything is published.
func (m *Manager) Create(ctx context.Context, threadID, creatorID int64, input string) (*Poll, error) {
	req, err := ParseRequest(input, m.defaultMinutes)
	if err != nil {
		return nil, err
	}

	messageID, err := m.messenger.SendMessage(ctx, threadID, FormatPoll(req, m.markers), 0)
	if err != nil {
		return nil, fmt.Errorf("failed to publish poll: %w", err)
	}

	for i := range req.Options {
		if err := m.messenger.SetReaction(ctx, threadID, messageID, m.markers[i]); err != nil {
			return nil, fmt.Errorf("failed to attach marker %d to message %d: %w", i+1, messageID, err)
		}
	}

	now := m.now()
	p := &Poll{
		ID:              uuid.NewString(),
		ThreadID:        threadID,
		MessageID:       messageID,
		CreatorID:       creatorID,
		Question:        req.Question,
		Options:         req.Options,
		DurationMinutes: req.DurationMinutes,
		CreatedAt:       now,
		Deadline:        now.Add(req.Duration()),
		Votes:           make(map[int64]int),
	}

	// The row must exist before votes can reference it.
	if m.store != nil {
		if err := m.store.SavePoll(ctx, clonePoll(p)); err != nil {
			m.logger.ErrorContext(ctx, "Failed to persist poll", "poll_id", p.ID, "error", err)
		}
	}

	m.mu.Lock()
	m.polls[p.Key()] = p
	snapshot := clonePoll(p)
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Poll opened",
		"poll_id", p.ID, "thread_id", threadID, "message_id", messageID,
		"options", len(p.Options), "duration_minutes", p.DurationMinutes, "deadline", p.Deadline)

	return snapshot, nil
}

// HandleReaction records a vote when ev targets an open poll with one of its
// markers. It reports whether a vote was recorded; other events are ignored.
func (m *Manager) HandleReaction(ctx context.Context, ev ReactionEvent) bool {
	idx, known := m.markerIndex[ev.Marker]
	if !known {
		return false
	}

	key := Key{ThreadID: ev.ThreadID, MessageID: ev.MessageID}

	m.mu.Lock()
	p, ok := m.polls[key]
	if !ok || idx >= len(p.Options) || p.Expired(m.now()) {
		m.mu.Unlock()
		return false
	}
	p.Votes[ev.ParticipantID] = idx
	pollID := p.ID
	m.mu.Unlock()

	m.logger.DebugContext(ctx, "Vote recorded", "poll_id", pollID, "participant_id", ev.ParticipantID, "option", idx+1)

	if m.store != nil {
		if err := m.store.SaveVote(ctx, pollID, ev.ParticipantID, idx); err != nil {
			m.logger.ErrorContext(ctx, "Failed to persist vote", "poll_id", pollID, "participant_id", ev.ParticipantID, "error", err)
		}
	}
	return true
}

// CloseExpired closes every poll whose deadline has passed and publishes its
// results. Commentaries follow once every due result is out. It returns the
// number of polls closed.
func (m *Manager) CloseExpired(ctx context.Context) (int, error) {
	now := m.now()

	m.mu.Lock()
	var expired []*Poll
	for key, p := range m.polls {
		if p.Expired(now) {
			delete(m.polls, key)
			p.Closed = true
			expired = append(expired, p)
		}
	}
	m.mu.Unlock()

	slices.SortFunc(expired, func(a, b *Poll) int { return a.Deadline.Compare(b.Deadline) })

	var errs []error
	var published []publishedResults
	for _, p := range expired {
		pub, err := m.publishResults(ctx, p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		published = append(published, pub)
	}
	for _, pub := range published {
		m.publishCommentary(ctx, pub)
	}
	return len(expired), errors.Join(errs...)
}

// Close ends the poll published as key before its deadline. Only the poll
// creator or the configured admin may close it.
func (m *Manager) Close(ctx context.Context, key Key, requesterID int64) error {
	m.mu.Lock()
	p, ok := m.polls[key]
	if !ok {
		m.mu.Unlock()
		return ErrPollNotFound
	}
	if requesterID != p.CreatorID && (m.adminID == 0 || requesterID != m.adminID) {
		m.mu.Unlock()
		return ErrNotPermitted
	}
	delete(m.polls, key)
	p.Closed = true
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Poll closed early", "poll_id", p.ID, "requester_id", requesterID)
	pub, err := m.publishResults(ctx, p)
	if err != nil {
		return err
	}
	m.publishCommentary(ctx, pub)
	return nil
}

// OpenPolls lists the open polls of a thread, soonest deadline first.
func (m *Manager) OpenPolls(threadID int64) []Summary {
	m.mu.Lock()
	var out []Summary
	for key, p := range m.polls {
		if key.ThreadID != threadID {
			continue
		}
		out = append(out, Summary{
			Key:       key,
			Question:  p.Question,
			Voters:    len(p.Votes),
			Deadline:  p.Deadline,
			CreatorID: p.CreatorID,
		})
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b Summary) int { return a.Deadline.Compare(b.Deadline) })
	return out
}

// Restore loads open polls from the store into the manager. Polls already
// past their deadline are closed on the next CloseExpired call.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}

	polls, err := m.store.LoadOpenPolls(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load open polls: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	restored := 0
	for _, p := range polls {
		if p == nil || len(p.Options) < MinOptions || len(p.Options) > MaxOptions {
			continue
		}
		if p.Votes == nil {
			p.Votes = make(map[int64]int)
		}
		maps.DeleteFunc(p.Votes, func(_ int64, idx int) bool {
			return idx < 0 || idx >= len(p.Options)
		})
		if _, exists := m.polls[p.Key()]; exists {
			continue
		}
		m.polls[p.Key()] = p
		restored++
	}

	m.logger.InfoContext(ctx, "Restored open polls", "count", restored)
	return restored, nil
}

// Markers returns the selection markers in option order.
func (m *Manager) Markers() []string {
	return slices.Clone(m.markers)
}

// publishedResults identifies a results message awaiting its commentary.
type publishedResults struct {
	poll      *Poll
	results   Results
	messageID int
}

// publishResults tallies p and replies to the poll message with the results.
// p must already be removed from the live set.
func (m *Manager) publishResults(ctx context.Context, p *Poll) (publishedResults, error) {
	res := Tally(p.Question, p.Options, p.Votes)

	resultsID, sendErr := m.messenger.SendMessage(ctx, p.ThreadID, FormatResults(res), p.MessageID)
	if sendErr != nil {
		m.logger.ErrorContext(ctx, "Failed to publish poll results", "poll_id", p.ID, "error", sendErr)
	} else {
		m.logger.InfoContext(ctx, "Poll results published",
			"poll_id", p.ID, "thread_id", p.ThreadID, "total_votes", res.Total, "results_message_id", resultsID)
	}

	if m.store != nil {
		if err := m.store.MarkPollClosed(ctx, p.ID, resultsID, m.now()); err != nil {
			m.logger.ErrorContext(ctx, "Failed to mark poll closed", "poll_id", p.ID, "error", err)
		}
	}

	if sendErr != nil {
		return publishedResults{}, fmt.Errorf("failed to publish results of poll %s: %w", p.ID, sendErr)
	}
	return publishedResults{poll: p, results: res, messageID: resultsID}, nil
}

// publishCommentary replies to a results message with a commentary, once
// all due results are out. Failures are logged and dropped.
func (m *Manager) publishCommentary(ctx context.Context, pub publishedResults) {
	if m.commentator == nil {
		return
	}

	commentCtx, cancel := context.WithTimeout(ctx, m.commentaryTimeout)
	defer cancel()

	comment, err := m.commentator.CommentResults(commentCtx, pub.results)
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to generate results commentary", "poll_id", pub.poll.ID, "error", err)
		return
	}
	if comment == "" {
		return
	}
	if _, err := m.messenger.SendMessage(ctx, pub.poll.ThreadID, comment, pub.messageID); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish results commentary", "poll_id", pub.poll.ID, "error", err)
	}
}

func clonePoll(p *Poll) *Poll {
	c := *p
	c.Options = slices.Clone(p.Options)
	c.Votes = maps.Clone(p.Votes)
	return &c
}
