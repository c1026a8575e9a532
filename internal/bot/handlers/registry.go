package handlers

import (
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// RegisteredHandler represents a handler with its match rule and middleware.
// A non-nil MatchFunc takes precedence over HandlerType, Pattern and MatchType.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
	MatchFunc   tgbot.MatchFunc
}

func command(deps HandlerDeps, name string, handler tgbot.HandlerFunc) RegisteredHandler {
	return RegisteredHandler{
		Handler:   handler,
		MatchFunc: commandMatcher(deps, name),
	}
}

// commandMatcher matches messages starting with /name or /name@<bot username>.
// Commands addressed to another bot are ignored; the username comparison is
// case-insensitive.
func commandMatcher(deps HandlerDeps, name string) tgbot.MatchFunc {
	return func(update *models.Update) bool {
		if update.Message == nil {
			return false
		}
		cmd, ok := leadingCommand(update.Message)
		if !ok {
			return false
		}
		base, mention, addressed := strings.Cut(cmd, "@")
		if base != name {
			return false
		}
		if !addressed {
			return true
		}
		username := deps.botUsername()
		return username == "" || strings.EqualFold(mention, username)
	}
}

// leadingCommand returns the bot_command entity at the start of msg without
// its slash, e.g. "poll@pollbot".
func leadingCommand(msg *models.Message) (string, bool) {
	for _, e := range msg.Entities {
		if e.Type != models.MessageEntityTypeBotCommand || e.Offset != 0 {
			continue
		}
		if e.Length < 2 || e.Length > len(msg.Text) || msg.Text[0] != '/' {
			return "", false
		}
		return msg.Text[1:e.Length], true
	}
	return "", false
}

// RegisterAllCommands initializes and returns a map of all bot handlers keyed by name.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	handlers["/start"] = command(deps, "start", NewStartHandler(deps))
	handlers["/help"] = command(deps, "help", NewHelpHandler(deps))

	pollHandler := NewPollHandler(deps)
	handlers["/poll"] = command(deps, "poll", pollHandler)
	handlers["/vote"] = command(deps, "vote", pollHandler)

	handlers["/endpoll"] = command(deps, "endpoll", NewEndPollHandler(deps))
	handlers["/polls"] = command(deps, "polls", NewPollsHandler(deps))

	handlers["reaction"] = RegisteredHandler{
		Handler:   NewReactionHandler(deps),
		MatchFunc: isReactionUpdate,
	}

	return handlers
}
