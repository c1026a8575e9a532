package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/pollbot/internal/bot/handlers"
)

type fakeAPI struct {
	sent      []*bot.SendMessageParams
	reactions []*bot.SetMessageReactionParams
	err       error
}

func (f *fakeAPI) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &models.Message{ID: 500 + len(f.sent)}, nil
}

func (f *fakeAPI) SetMessageReaction(_ context.Context, params *bot.SetMessageReactionParams) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.reactions = append(f.reactions, params)
	return true, nil
}

func TestMessenger_SendMessage(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	m := NewMessenger(api)

	id, err := m.SendMessage(context.Background(), -42, "hello", 0)
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if id != 501 {
		t.Errorf("SendMessage() id = %d, want 501", id)
	}
	if api.sent[0].ReplyParameters != nil {
		t.Error("plain message carries reply parameters")
	}

	if _, err := m.SendMessage(context.Background(), -42, "results", 501); err != nil {
		t.Fatalf("SendMessage() reply error: %v", err)
	}
	reply := api.sent[1]
	if reply.ChatID != int64(-42) || reply.ReplyParameters == nil || reply.ReplyParameters.MessageID != 501 {
		t.Errorf("reply params = %+v", reply)
	}
}

func TestMessenger_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	m := NewMessenger(&fakeAPI{err: boom})

	if _, err := m.SendMessage(context.Background(), 1, "x", 0); !errors.Is(err, boom) {
		t.Errorf("SendMessage() error = %v, want wrapped boom", err)
	}
	if err := m.SetReaction(context.Background(), 1, 2, "👍"); !errors.Is(err, boom) {
		t.Errorf("SetReaction() error = %v, want wrapped boom", err)
	}
}

func TestMessenger_SetReaction(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	if err := NewMessenger(api).SetReaction(context.Background(), 7, 9, "🔟"); err != nil {
		t.Fatalf("SetReaction() error: %v", err)
	}
	got := api.reactions[0]
	if got.ChatID != int64(7) || got.MessageID != 9 || len(got.Reaction) != 1 {
		t.Fatalf("reaction params = %+v", got)
	}
	if got.Reaction[0].ReactionTypeEmoji == nil || got.Reaction[0].ReactionTypeEmoji.Emoji != "🔟" {
		t.Errorf("reaction = %+v, want emoji 🔟", got.Reaction[0])
	}
}

type fakeRegistrar struct {
	patterns   []string
	matchFuncs int
}

func (f *fakeRegistrar) RegisterHandler(_ bot.HandlerType, pattern string, _ bot.MatchType, _ bot.HandlerFunc, _ ...bot.Middleware) string {
	f.patterns = append(f.patterns, pattern)
	return pattern
}

func (f *fakeRegistrar) RegisterHandlerMatchFunc(_ bot.MatchFunc, _ bot.HandlerFunc, _ ...bot.Middleware) string {
	f.matchFuncs++
	return "match"
}

func TestRegisterHandlers(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, *bot.Bot, *models.Update) {}
	reg := &fakeRegistrar{}
	err := RegisterHandlers(reg, slog.New(slog.NewTextHandler(io.Discard, nil)), map[string]handlers.RegisteredHandler{
		"/poll":    {HandlerType: bot.HandlerTypeMessageText, Pattern: "poll", MatchType: bot.MatchTypeCommand, Handler: noop},
		"reaction": {MatchFunc: func(*models.Update) bool { return true }, Handler: noop},
		"nil":      {Pattern: "nil"},
	})
	if err != nil {
		t.Fatalf("RegisterHandlers() error: %v", err)
	}
	if len(reg.patterns) != 1 || reg.patterns[0] != "poll" {
		t.Errorf("registered patterns = %v, want [poll]", reg.patterns)
	}
	if reg.matchFuncs != 1 {
		t.Errorf("match func handlers = %d, want 1", reg.matchFuncs)
	}
}

func TestApplyMiddleware_Order(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) bot.Middleware {
		return func(next bot.HandlerFunc) bot.HandlerFunc {
			return func(ctx context.Context, b *bot.Bot, u *models.Update) {
				order = append(order, name)
				next(ctx, b, u)
			}
		}
	}
	h := applyMiddleware(func(context.Context, *bot.Bot, *models.Update) {
		order = append(order, "handler")
	}, []bot.Middleware{mw("outer"), mw("inner")})

	h(context.Background(), nil, &models.Update{})

	want := []string{"outer", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
