package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/pollbot/internal/poll"
)

// NewPollsHandler returns a handler for the /polls command listing the open
// polls of the chat.
func NewPollsHandler(deps HandlerDeps) bot.HandlerFunc {
	h := pollsHandler{deps}
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.handle(ctx, b, update)
	}
}

type pollsHandler struct {
	deps HandlerDeps
}

func (h pollsHandler) handle(ctx context.Context, s messageSender, update *models.Update) {
	log := h.deps.Logger.With("handler", "polls")

	if update.Message == nil {
		log.WarnContext(ctx, "Polls handler received update with nil message", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	open := h.deps.Manager.OpenPolls(chatID)
	log.DebugContext(ctx, "Listing open polls", "chat_id", chatID, "count", len(open))

	if len(open) == 0 {
		sendReply(ctx, s, log, chatID, update.Message.ID, h.deps.Config.Messages.NoOpenPolls)
		return
	}
	sendReply(ctx, s, log, chatID, update.Message.ID, poll.FormatSummaries(h.deps.Config.Messages.OpenPollsHeader, open))
}
