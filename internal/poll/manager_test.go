package poll_test

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edgard/pollbot/internal/poll"
)

type sentMessage struct {
	threadID int64
	text     string
	replyTo  int
}

type reaction struct {
	threadID  int64
	messageID int
	marker    string
}

type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int
	sent      []sentMessage
	reactions []reaction
	sendErr   error
	failAfter int // fail SetReaction after this many successful calls, when > 0
}

func (f *fakeMessenger) SendMessage(_ context.Context, threadID int64, text string, replyTo int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{threadID: threadID, text: text, replyTo: replyTo})
	return 100 + f.nextID, nil
}

func (f *fakeMessenger) SetReaction(_ context.Context, threadID int64, messageID int, marker string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.reactions) >= f.failAfter {
		return errors.New("reaction rejected")
	}
	f.reactions = append(f.reactions, reaction{threadID: threadID, messageID: messageID, marker: marker})
	return nil
}

func (f *fakeMessenger) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent)
}

type memStore struct {
	mu     sync.Mutex
	polls  map[string]*poll.Poll
	closed map[string]int
	// beforeSave runs at the start of SavePoll, outside the store lock.
	beforeSave func(p *poll.Poll)
}

func newMemStore() *memStore {
	return &memStore{polls: map[string]*poll.Poll{}, closed: map[string]int{}}
}

func (s *memStore) SavePoll(_ context.Context, p *poll.Poll) error {
	if s.beforeSave != nil {
		s.beforeSave(p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	c.Votes = maps.Clone(p.Votes)
	s.polls[p.ID] = &c
	return nil
}

func (s *memStore) SaveVote(_ context.Context, pollID string, participantID int64, option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[pollID]
	if !ok {
		return errors.New("FOREIGN KEY constraint failed")
	}
	p.Votes[participantID] = option
	return nil
}

func (s *memStore) MarkPollClosed(_ context.Context, pollID string, resultsMessageID int, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls[pollID].Closed = true
	s.closed[pollID] = resultsMessageID
	return nil
}

func (s *memStore) LoadOpenPolls(_ context.Context) ([]*poll.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*poll.Poll
	for _, p := range s.polls {
		if !p.Closed {
			c := *p
			c.Votes = maps.Clone(p.Votes)
			out = append(out, &c)
		}
	}
	return out, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type commentator struct {
	err error
	// onComment runs before the commentary is produced.
	onComment func(ctx context.Context)
}

func (c commentator) CommentResults(ctx context.Context, res poll.Results) (string, error) {
	if c.onComment != nil {
		c.onComment(ctx)
	}
	if c.err != nil {
		return "", c.err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "Winner: " + res.Options[0].Option, nil
}

func newTestManager(t *testing.T, msgr *fakeMessenger, opts ...poll.Option) (*poll.Manager, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]poll.Option{poll.WithClock(clk.Now)}, opts...)
	m, err := poll.NewManager(nil, msgr, opts...)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	return m, clk
}

func vote(threadID int64, messageID int, participant int64, marker string) poll.ReactionEvent {
	return poll.ReactionEvent{ThreadID: threadID, MessageID: messageID, ParticipantID: participant, Marker: marker}
}

func TestManager_CreatePublishesAndAttachesMarkers(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{}
	m, clk := newTestManager(t, msgr)

	p, err := m.Create(context.Background(), -42, 7, "Best fruit|Apple|Banana|Cherry|10")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	sent := msgr.messages()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if sent[0].threadID != -42 || sent[0].replyTo != 0 {
		t.Errorf("poll message sent to %d replying to %d", sent[0].threadID, sent[0].replyTo)
	}
	if !strings.HasPrefix(sent[0].text, "📊 Poll: Best fruit") {
		t.Errorf("unexpected poll text %q", sent[0].text)
	}
	if want := "1. " + poll.DefaultMarkers[0] + " Apple"; !strings.Contains(sent[0].text, want) {
		t.Errorf("poll text %q does not contain %q", sent[0].text, want)
	}

	wantMarkers := poll.DefaultMarkers[:3]
	if len(msgr.reactions) != len(wantMarkers) {
		t.Fatalf("attached %d markers, want %d", len(msgr.reactions), len(wantMarkers))
	}
	for i, r := range msgr.reactions {
		if r.marker != wantMarkers[i] || r.messageID != p.MessageID || r.threadID != -42 {
			t.Errorf("reaction %d = %+v, want marker %q on message %d", i, r, wantMarkers[i], p.MessageID)
		}
	}

	if got, want := p.Deadline, clk.Now().Add(10*time.Minute); !got.Equal(want) {
		t.Errorf("Deadline = %v, want %v", got, want)
	}
	if p.ID == "" || p.CreatorID != 7 {
		t.Errorf("unexpected poll identity: id=%q creator=%d", p.ID, p.CreatorID)
	}
}

func TestManager_CreateValidationPublishesNothing(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"Only one thing", "Q|A|5", "Q|1|2|3|4|5|6|7|8|9|10|11|x"} {
		msgr := &fakeMessenger{}
		m, _ := newTestManager(t, msgr)

		_, err := m.Create(context.Background(), 1, 1, input)
		if !errors.Is(err, poll.ErrTooFewSegments) && !errors.Is(err, poll.ErrOptionCount) {
			t.Errorf("Create(%q) error = %v, want validation error", input, err)
		}
		if len(msgr.messages()) != 0 || len(msgr.reactions) != 0 {
			t.Errorf("Create(%q) published despite validation error", input)
		}
	}
}

func TestManager_CreateMarkerFailure(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{failAfter: 2}
	m, clk := newTestManager(t, msgr)

	if _, err := m.Create(context.Background(), 1, 1, "Q|A|B|C"); err == nil {
		t.Fatal("Create() succeeded, want marker error")
	}
	if len(msgr.reactions) != 2 {
		t.Errorf("attached %d markers before failing, want 2", len(msgr.reactions))
	}
	if got := m.OpenPolls(1); len(got) != 0 {
		t.Errorf("poll registered despite failure: %+v", got)
	}

	clk.Advance(time.Hour)
	if n, _ := m.CloseExpired(context.Background()); n != 0 {
		t.Errorf("CloseExpired() closed %d polls, want 0", n)
	}
}

func TestManager_VotesAndTally(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	msgr := &fakeMessenger{}
	m, clk := newTestManager(t, msgr)

	p, err := m.Create(ctx, 5, 1, "Pick|A|B|C")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	markers := poll.DefaultMarkers

	tests := []struct {
		name string
		ev   poll.ReactionEvent
		want bool
	}{
		{"first voter", vote(5, p.MessageID, 10, markers[0]), true},
		{"second voter", vote(5, p.MessageID, 11, markers[1]), true},
		{"third voter changes mind", vote(5, p.MessageID, 12, markers[1]), true},
		{"third voter overwrite", vote(5, p.MessageID, 12, markers[0]), true},
		{"unknown marker", vote(5, p.MessageID, 13, "👍"), false},
		{"marker beyond options", vote(5, p.MessageID, 14, markers[5]), false},
		{"other message", vote(5, p.MessageID+1, 15, markers[0]), false},
		{"other thread", vote(6, p.MessageID, 16, markers[0]), false},
		{"empty marker", vote(5, p.MessageID, 17, ""), false},
	}
	for _, tt := range tests {
		if got := m.HandleReaction(ctx, tt.ev); got != tt.want {
			t.Errorf("%s: HandleReaction() = %v, want %v", tt.name, got, tt.want)
		}
	}

	if n, err := m.CloseExpired(ctx); n != 0 || err != nil {
		t.Fatalf("CloseExpired() before deadline = %d, %v", n, err)
	}

	clk.Advance(5 * time.Minute)
	if m.HandleReaction(ctx, vote(5, p.MessageID, 20, markers[2])) {
		t.Error("vote accepted after deadline")
	}

	n, err := m.CloseExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("CloseExpired() = %d, %v, want 1, nil", n, err)
	}

	sent := msgr.messages()
	results := sent[len(sent)-1]
	if results.replyTo != p.MessageID || results.threadID != 5 {
		t.Errorf("results sent to %d replying to %d, want 5 replying to %d", results.threadID, results.replyTo, p.MessageID)
	}
	want := "📊 Poll Results:\n\n1. A: 2 vote(s) (66.67%)\n2. B: 1 vote(s) (33.33%)\n3. C: 0 vote(s) (0.00%)\n\nTotal votes: 3"
	if results.text != want {
		t.Errorf("results text = %q, want %q", results.text, want)
	}

	clk.Advance(time.Hour)
	if n, _ := m.CloseExpired(ctx); n != 0 {
		t.Errorf("poll closed twice")
	}
	if m.HandleReaction(ctx, vote(5, p.MessageID, 21, markers[0])) {
		t.Error("vote accepted on closed poll")
	}
}

func TestManager_ConcurrentPollsAreIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	msgr := &fakeMessenger{}
	m, clk := newTestManager(t, msgr)

	p1, err := m.Create(ctx, 1, 1, "First|A|B|1")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	p2, err := m.Create(ctx, 1, 1, "Second|A|B|2")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(participant int64) {
			defer wg.Done()
			m.HandleReaction(ctx, vote(1, p1.MessageID, participant, poll.DefaultMarkers[0]))
			m.HandleReaction(ctx, vote(1, p2.MessageID, participant, poll.DefaultMarkers[1]))
		}(int64(i))
	}
	wg.Wait()

	clk.Advance(time.Minute)
	if n, err := m.CloseExpired(ctx); n != 1 || err != nil {
		t.Fatalf("CloseExpired() = %d, %v, want 1, nil", n, err)
	}
	open := m.OpenPolls(1)
	if len(open) != 1 || open[0].Key.MessageID != p2.MessageID || open[0].Voters != 50 {
		t.Fatalf("OpenPolls() = %+v, want second poll with 50 voters", open)
	}

	sent := msgr.messages()
	if !strings.Contains(sent[len(sent)-1].text, "1. A: 50 vote(s) (100.00%)") {
		t.Errorf("first poll results = %q", sent[len(sent)-1].text)
	}
}

func TestManager_CloseEarly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	msgr := &fakeMessenger{}
	m, _ := newTestManager(t, msgr, poll.WithAdmin(99))

	p, err := m.Create(ctx, 3, 7, "Q|A|B")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := m.Close(ctx, p.Key(), 8); !errors.Is(err, poll.ErrNotPermitted) {
		t.Errorf("Close() by stranger error = %v, want ErrNotPermitted", err)
	}
	if err := m.Close(ctx, poll.Key{ThreadID: 3, MessageID: 1}, 7); !errors.Is(err, poll.ErrPollNotFound) {
		t.Errorf("Close() unknown poll error = %v, want ErrPollNotFound", err)
	}
	if err := m.Close(ctx, p.Key(), 99); err != nil {
		t.Errorf("Close() by admin error = %v", err)
	}
	if err := m.Close(ctx, p.Key(), 7); !errors.Is(err, poll.ErrPollNotFound) {
		t.Errorf("second Close() error = %v, want ErrPollNotFound", err)
	}

	sent := msgr.messages()
	if len(sent) != 2 || sent[1].replyTo != p.MessageID {
		t.Errorf("expected a single results reply, got %+v", sent)
	}
}

func TestManager_CloseEarlyByCreator(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{}
	m, _ := newTestManager(t, msgr)

	p, err := m.Create(context.Background(), 3, 7, "Q|A|B")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := m.Close(context.Background(), p.Key(), 0); !errors.Is(err, poll.ErrNotPermitted) {
		t.Errorf("Close() with no admin configured error = %v, want ErrNotPermitted", err)
	}
	if err := m.Close(context.Background(), p.Key(), 7); err != nil {
		t.Errorf("Close() by creator error = %v", err)
	}
}

func TestManager_ResultsPublishFailureClosesOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	msgr := &fakeMessenger{}
	store := newMemStore()
	m, clk := newTestManager(t, msgr, poll.WithStore(store))

	p, err := m.Create(ctx, 1, 1, "Q|A|B|1")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	msgr.mu.Lock()
	msgr.sendErr = errors.New("network down")
	msgr.mu.Unlock()

	clk.Advance(2 * time.Minute)
	n, err := m.CloseExpired(ctx)
	if n != 1 || err == nil {
		t.Fatalf("CloseExpired() = %d, %v, want 1 and an error", n, err)
	}
	if n, _ := m.CloseExpired(ctx); n != 0 {
		t.Error("poll closed twice after publish failure")
	}
	if _, ok := store.closed[p.ID]; !ok {
		t.Error("poll not marked closed in store")
	}
}

func TestManager_Commentary(t *testing.T) {
	t.Parallel()

	t.Run("Replies to results", func(t *testing.T) {
		t.Parallel()

		msgr := &fakeMessenger{}
		m, clk := newTestManager(t, msgr, poll.WithCommentator(commentator{}))
		if _, err := m.Create(context.Background(), 1, 1, "Q|A|B|1"); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		clk.Advance(time.Minute)
		if _, err := m.CloseExpired(context.Background()); err != nil {
			t.Fatalf("CloseExpired() error: %v", err)
		}

		sent := msgr.messages()
		if len(sent) != 3 {
			t.Fatalf("sent %d messages, want poll, results and commentary", len(sent))
		}
		if !strings.HasSuffix(sent[1].text, "Total votes: 0") {
			t.Errorf("results = %q", sent[1].text)
		}
		if sent[2].text != "Winner: A" || sent[2].replyTo != 102 {
			t.Errorf("commentary = %+v, want reply to results message 102", sent[2])
		}
	})

	t.Run("Failure ignored", func(t *testing.T) {
		t.Parallel()

		msgr := &fakeMessenger{}
		m, clk := newTestManager(t, msgr, poll.WithCommentator(commentator{err: errors.New("quota")}))
		if _, err := m.Create(context.Background(), 1, 1, "Q|A|B|1"); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		clk.Advance(time.Minute)
		if _, err := m.CloseExpired(context.Background()); err != nil {
			t.Fatalf("CloseExpired() error: %v", err)
		}

		sent := msgr.messages()
		if len(sent) != 2 || !strings.HasSuffix(sent[1].text, "Total votes: 0") {
			t.Errorf("sent = %+v, want poll and results only", sent)
		}
	})
}

func TestManager_CommentaryDoesNotDelayResults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	msgr := &fakeMessenger{}
	var resultsSeen []int
	slow := commentator{onComment: func(ctx context.Context) {
		resultsSeen = append(resultsSeen, len(msgr.messages()))
		<-ctx.Done()
	}}
	m, clk := newTestManager(t, msgr,
		poll.WithCommentator(slow),
		poll.WithCommentaryTimeout(20*time.Millisecond))

	for _, input := range []string{"First|A|B|1", "Second|A|B|1"} {
		if _, err := m.Create(ctx, 1, 1, input); err != nil {
			t.Fatalf("Create(%q) error: %v", input, err)
		}
	}
	clk.Advance(time.Minute)

	start := time.Now()
	n, err := m.CloseExpired(ctx)
	if n != 2 || err != nil {
		t.Fatalf("CloseExpired() = %d, %v, want 2, nil", n, err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("CloseExpired() took %v, commentary not bounded", elapsed)
	}

	// Both polls and both results were out before the first commentary began.
	if len(resultsSeen) != 2 || resultsSeen[0] != 4 {
		t.Errorf("messages sent when commentary started = %v, want [4 4]", resultsSeen)
	}
	if got := len(msgr.messages()); got != 4 {
		t.Errorf("sent %d messages, want 4 with timed out commentaries dropped", got)
	}
}

func TestManager_PollPersistedBeforeVotesAccepted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemStore()
	msgr := &fakeMessenger{}
	m, _ := newTestManager(t, msgr, poll.WithStore(store))

	var earlyVote bool
	store.beforeSave = func(p *poll.Poll) {
		earlyVote = m.HandleReaction(ctx, vote(p.ThreadID, p.MessageID, 40, poll.DefaultMarkers[0]))
	}

	p, err := m.Create(ctx, 4, 1, "Q|A|B")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if earlyVote {
		t.Error("vote accepted before the poll was persisted")
	}

	if !m.HandleReaction(ctx, vote(4, p.MessageID, 41, poll.DefaultMarkers[1])) {
		t.Fatal("vote rejected after Create returned")
	}
	open, err := store.LoadOpenPolls(ctx)
	if err != nil || len(open) != 1 {
		t.Fatalf("LoadOpenPolls() = %d polls, %v", len(open), err)
	}
	if got, ok := open[0].Votes[41]; !ok || got != 1 {
		t.Errorf("stored votes = %v, want participant 41 on option 2", open[0].Votes)
	}
}

func TestManager_PersistAndRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemStore()
	msgr := &fakeMessenger{}
	m, clk := newTestManager(t, msgr, poll.WithStore(store))

	p, err := m.Create(ctx, 9, 1, "Q|A|B|3")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	m.HandleReaction(ctx, vote(9, p.MessageID, 50, poll.DefaultMarkers[1]))
	m.HandleReaction(ctx, vote(9, p.MessageID, 51, poll.DefaultMarkers[1]))

	// A fresh manager stands in for a restarted process.
	restarted, err := poll.NewManager(nil, msgr, poll.WithStore(store), poll.WithClock(clk.Now))
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	n, err := restarted.Restore(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Restore() = %d, %v, want 1, nil", n, err)
	}
	if n, _ := restarted.Restore(ctx); n != 0 {
		t.Errorf("second Restore() registered %d polls again", n)
	}

	clk.Advance(3 * time.Minute)
	if n, err := restarted.CloseExpired(ctx); n != 1 || err != nil {
		t.Fatalf("CloseExpired() = %d, %v", n, err)
	}
	sent := msgr.messages()
	if !strings.Contains(sent[len(sent)-1].text, "2. B: 2 vote(s) (100.00%)") {
		t.Errorf("restored results = %q", sent[len(sent)-1].text)
	}
	if open, _ := store.LoadOpenPolls(ctx); len(open) != 0 {
		t.Errorf("store still has %d open polls", len(open))
	}
}

func TestNewManager_Markers(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{}
	tests := []struct {
		name    string
		markers []string
		wantErr bool
	}{
		{"default", poll.DefaultMarkers, false},
		{"too few", []string{"a", "b"}, true},
		{"duplicate", []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "a"}, true},
		{"empty", []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", ""}, true},
	}
	for _, tt := range tests {
		_, err := poll.NewManager(nil, msgr, poll.WithMarkers(tt.markers))
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: NewManager() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}

	if _, err := poll.NewManager(nil, nil); err == nil {
		t.Error("NewManager() without messenger succeeded")
	}
}
