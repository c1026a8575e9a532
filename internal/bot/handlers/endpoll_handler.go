package handlers

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/pollbot/internal/poll"
)

// NewEndPollHandler returns a handler for the /endpoll command. The command
// must reply to the poll message being closed.
func NewEndPollHandler(deps HandlerDeps) bot.HandlerFunc {
	h := endPollHandler{deps}
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.handle(ctx, b, update)
	}
}

type endPollHandler struct {
	deps HandlerDeps
}

func (h endPollHandler) handle(ctx context.Context, s messageSender, update *models.Update) {
	log := h.deps.Logger.With("handler", "endpoll")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "End poll handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	msg := update.Message
	log = log.With("chat_id", msg.Chat.ID, "user_id", msg.From.ID)

	if msg.ReplyToMessage == nil {
		sendReply(ctx, s, log, msg.Chat.ID, msg.ID, h.deps.Config.Messages.EndPollUsage)
		return
	}

	key := poll.Key{ThreadID: msg.Chat.ID, MessageID: msg.ReplyToMessage.ID}
	err := h.deps.Manager.Close(ctx, key, msg.From.ID)
	switch {
	case errors.Is(err, poll.ErrPollNotFound):
		sendReply(ctx, s, log, msg.Chat.ID, msg.ID, h.deps.Config.Messages.EndPollNotFound)
	case errors.Is(err, poll.ErrNotPermitted):
		log.WarnContext(ctx, "Unauthorized attempt to close poll", "poll", key.String())
		sendReply(ctx, s, log, msg.Chat.ID, msg.ID, h.deps.Config.Messages.EndPollNotPermitted)
	case err != nil:
		log.ErrorContext(ctx, "Failed to close poll", "poll", key.String(), "error", err)
		sendReply(ctx, s, log, msg.Chat.ID, msg.ID, h.deps.Config.Messages.ErrorGeneral)
	default:
		log.InfoContext(ctx, "Poll closed on request", "poll", key.String())
	}
}
