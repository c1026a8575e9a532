package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/edgard/pollbot/internal/config"
	"github.com/edgard/pollbot/internal/poll"
)

type fakeCloser struct {
	closed int
	err    error
	calls  int
}

func (f *fakeCloser) CloseExpired(context.Context) (int, error) {
	f.calls++
	return f.closed, f.err
}

type fakeStore struct {
	purgedBefore time.Time
	purgeCalls   int
	vacuumCalls  int
	vacuumErr    error
}

func (s *fakeStore) SavePoll(context.Context, *poll.Poll) error          { return nil }
func (s *fakeStore) SaveVote(context.Context, string, int64, int) error  { return nil }
func (s *fakeStore) LoadOpenPolls(context.Context) ([]*poll.Poll, error) { return nil, nil }
func (s *fakeStore) Ping(context.Context) error                          { return nil }

func (s *fakeStore) MarkPollClosed(context.Context, string, int, time.Time) error {
	return nil
}

func (s *fakeStore) PurgeClosedPolls(_ context.Context, closedBefore time.Time) (int64, error) {
	s.purgeCalls++
	s.purgedBefore = closedBefore
	return 3, nil
}

func (s *fakeStore) RunSQLMaintenance(context.Context) error {
	s.vacuumCalls++
	return s.vacuumErr
}

func testDeps(closer PollCloser, store *fakeStore, retention time.Duration) TaskDeps {
	cfg := &config.Config{}
	cfg.Database.Retention = retention
	return TaskDeps{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:   store,
		Manager: closer,
		Config:  cfg,
	}
}

func TestRegisterAllTasks(t *testing.T) {
	t.Parallel()

	tasks := RegisterAllTasks(testDeps(&fakeCloser{}, &fakeStore{}, 0))
	for _, name := range []string{config.TaskPollCloser, config.TaskSQLMaintenance} {
		if tasks[name] == nil {
			t.Errorf("task %q not registered", name)
		}
	}
}

func TestPollCloserTask(t *testing.T) {
	t.Parallel()

	closer := &fakeCloser{closed: 2}
	task := newPollCloserTask(testDeps(closer, &fakeStore{}, 0))

	if err := task(context.Background()); err != nil {
		t.Fatalf("task error: %v", err)
	}
	if closer.calls != 1 {
		t.Errorf("CloseExpired calls = %d, want 1", closer.calls)
	}

	boom := errors.New("send failed")
	closer.err = boom
	if err := task(context.Background()); !errors.Is(err, boom) {
		t.Errorf("task error = %v, want wrapped %v", err, boom)
	}
}

func TestSQLMaintenanceTask(t *testing.T) {
	t.Parallel()

	t.Run("Purges with retention", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{}
		before := time.Now()
		if err := newSQLMaintenanceTask(testDeps(&fakeCloser{}, store, 24*time.Hour))(context.Background()); err != nil {
			t.Fatalf("task error: %v", err)
		}
		if store.purgeCalls != 1 || store.vacuumCalls != 1 {
			t.Fatalf("purge calls = %d, vacuum calls = %d", store.purgeCalls, store.vacuumCalls)
		}
		if cutoff := before.Add(-24 * time.Hour); store.purgedBefore.Before(cutoff.Add(-time.Minute)) || store.purgedBefore.After(cutoff.Add(time.Minute)) {
			t.Errorf("purge cutoff = %v, want about %v", store.purgedBefore, cutoff)
		}
	})

	t.Run("Zero retention keeps polls", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{}
		if err := newSQLMaintenanceTask(testDeps(&fakeCloser{}, store, 0))(context.Background()); err != nil {
			t.Fatalf("task error: %v", err)
		}
		if store.purgeCalls != 0 {
			t.Errorf("purge calls = %d, want 0", store.purgeCalls)
		}
	})

	t.Run("Vacuum failure", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{vacuumErr: errors.New("locked")}
		if err := newSQLMaintenanceTask(testDeps(&fakeCloser{}, store, 0))(context.Background()); err == nil {
			t.Error("task succeeded, want error")
		}
	})
}
