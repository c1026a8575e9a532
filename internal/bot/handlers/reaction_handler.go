package handlers

import (
	"context"
	"slices"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/pollbot/internal/poll"
)

// isReactionUpdate matches message_reaction updates.
func isReactionUpdate(update *models.Update) bool {
	return update != nil && update.MessageReaction != nil
}

// NewReactionHandler returns a handler turning reaction updates into votes.
func NewReactionHandler(deps HandlerDeps) bot.HandlerFunc {
	log := deps.Logger.With("handler", "reaction")

	return func(ctx context.Context, _ *bot.Bot, update *models.Update) {
		ev, ok := ReactionEvent(update.MessageReaction, deps.botID())
		if !ok {
			return
		}
		if deps.Manager.HandleReaction(ctx, ev) {
			log.DebugContext(ctx, "Reaction counted as vote",
				"chat_id", ev.ThreadID, "message_id", ev.MessageID, "user_id", ev.ParticipantID)
		}
	}
}

// ReactionEvent converts a reaction update into a poll.ReactionEvent. The
// marker is the first emoji present in the new reaction set and absent from
// the old one. It reports false for reactions by botID, for removals and for
// non-emoji reactions. Anonymous reactions are attributed to the actor chat.
func ReactionEvent(upd *models.MessageReactionUpdated, botID int64) (poll.ReactionEvent, bool) {
	if upd == nil {
		return poll.ReactionEvent{}, false
	}

	var participantID int64
	switch {
	case upd.User != nil:
		participantID = upd.User.ID
	case upd.ActorChat != nil:
		participantID = upd.ActorChat.ID
	default:
		return poll.ReactionEvent{}, false
	}
	if botID != 0 && participantID == botID {
		return poll.ReactionEvent{}, false
	}

	old := emojis(upd.OldReaction)
	for _, e := range emojis(upd.NewReaction) {
		if slices.Contains(old, e) {
			continue
		}
		return poll.ReactionEvent{
			ThreadID:      upd.Chat.ID,
			MessageID:     upd.MessageID,
			ParticipantID: participantID,
			Marker:        e,
		}, true
	}
	return poll.ReactionEvent{}, false
}

func emojis(reactions []models.ReactionType) []string {
	out := make([]string, 0, len(reactions))
	for _, r := range reactions {
		if r.Type == models.ReactionTypeTypeEmoji && r.ReactionTypeEmoji != nil {
			out = append(out, r.ReactionTypeEmoji.Emoji)
		}
	}
	return out
}
