package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/pollbot/internal/poll"
)

// pollCreateTimeout bounds publishing a poll and attaching its markers.
const pollCreateTimeout = time.Minute

// NewPollHandler returns a handler for the /poll command.
func NewPollHandler(deps HandlerDeps) bot.HandlerFunc {
	h := pollHandler{deps}
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.handle(ctx, b, update)
	}
}

type pollHandler struct {
	deps HandlerDeps
}

func (h pollHandler) handle(ctx context.Context, s messageSender, update *models.Update) {
	log := h.deps.Logger.With("handler", "poll")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Poll handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID
	log = log.With("chat_id", chatID, "user_id", userID)

	createCtx, cancel := context.WithTimeout(ctx, pollCreateTimeout)
	defer cancel()

	p, err := h.deps.Manager.Create(createCtx, chatID, userID, commandArgs(update.Message.Text))
	switch {
	case errors.Is(err, poll.ErrTooFewSegments):
		log.InfoContext(ctx, "Rejected poll request", "reason", err)
		sendReply(ctx, s, log, chatID, update.Message.ID, h.deps.Config.Messages.PollTooFewSegments)
	case errors.Is(err, poll.ErrOptionCount):
		log.InfoContext(ctx, "Rejected poll request", "reason", err)
		sendReply(ctx, s, log, chatID, update.Message.ID, h.deps.Config.Messages.PollOptionCount)
	case err != nil:
		log.ErrorContext(ctx, "Failed to create poll", "error", err)
		sendReply(ctx, s, log, chatID, update.Message.ID, h.deps.Config.Messages.ErrorGeneral)
	default:
		log.InfoContext(ctx, "Poll created", "poll_id", p.ID, "message_id", p.MessageID, "deadline", p.Deadline)
	}
}
