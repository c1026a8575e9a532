// Package handlers contains the Telegram command and reaction handlers of
// the poll bot, along with their registration table.
package handlers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/pollbot/internal/config"
	"github.com/edgard/pollbot/internal/poll"
)

// PollManager is the poll lifecycle used by the handlers. *poll.Manager implements it.
type PollManager interface {
	Create(ctx context.Context, threadID, creatorID int64, input string) (*poll.Poll, error)
	HandleReaction(ctx context.Context, ev poll.ReactionEvent) bool
	Close(ctx context.Context, key poll.Key, requesterID int64) error
	OpenPolls(threadID int64) []poll.Summary
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger  *slog.Logger
	Config  *config.Config
	Manager PollManager
}

// messageSender is the part of *bot.Bot the handlers reply through.
type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// botID returns the bot's own user id, or zero before getMe has run.
func (d HandlerDeps) botID() int64 {
	if d.Config == nil || d.Config.Telegram.BotInfo == nil {
		return 0
	}
	return d.Config.Telegram.BotInfo.ID
}

// botUsername returns the bot's username, or "" before getMe has run.
func (d HandlerDeps) botUsername() string {
	if d.Config == nil || d.Config.Telegram.BotInfo == nil {
		return ""
	}
	return d.Config.Telegram.BotInfo.Username
}

// withBotName substitutes @botname in text with the bot's username.
func (d HandlerDeps) withBotName(text string) string {
	username := d.botUsername()
	if username == "" {
		return text
	}
	return strings.ReplaceAll(text, "@botname", "@"+username)
}
