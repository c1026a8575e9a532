package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/pollbot/internal/poll"
)

// botAPI is the part of *bot.Bot the messenger calls.
type botAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SetMessageReaction(ctx context.Context, params *bot.SetMessageReactionParams) (bool, error)
}

// Messenger publishes poll messages and markers through the Bot API.
type Messenger struct {
	api botAPI
}

var _ poll.Messenger = (*Messenger)(nil)

// NewMessenger wraps a bot client, usually a *bot.Bot.
func NewMessenger(api botAPI) *Messenger {
	return &Messenger{api: api}
}

// SendMessage sends text to chatID, as a reply to replyTo when it is non-zero.
func (m *Messenger) SendMessage(ctx context.Context, chatID int64, text string, replyTo int) (int, error) {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if replyTo != 0 {
		params.ReplyParameters = &models.ReplyParameters{
			MessageID:                replyTo,
			AllowSendingWithoutReply: true,
		}
	}

	msg, err := m.api.SendMessage(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("send message to chat %d: %w", chatID, err)
	}
	if msg == nil {
		return 0, fmt.Errorf("send message to chat %d: empty response", chatID)
	}
	return msg.ID, nil
}

// SetReaction sets marker as the bot's reaction on a message.
func (m *Messenger) SetReaction(ctx context.Context, chatID int64, messageID int, marker string) error {
	_, err := m.api.SetMessageReaction(ctx, &bot.SetMessageReactionParams{
		ChatID:    chatID,
		MessageID: messageID,
		Reaction: []models.ReactionType{{
			Type: models.ReactionTypeTypeEmoji,
			ReactionTypeEmoji: &models.ReactionTypeEmoji{
				Type:  models.ReactionTypeTypeEmoji,
				Emoji: marker,
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("set reaction %q on message %d in chat %d: %w", marker, messageID, chatID, err)
	}
	return nil
}
