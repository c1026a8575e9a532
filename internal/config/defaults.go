package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/edgard/pollbot/internal/poll"
)

// Task names known to the scheduler.
const (
	TaskPollCloser     = "poll_closer"
	TaskSQLMaintenance = "sql_maintenance"
)

// Default values for configuration.
const (
	DefaultLogLevel = "info"

	DefaultDBPath      = "pollbot.db"
	DefaultDBRetention = 30 * 24 * time.Hour

	// DefaultPollCheckInterval is how often open polls are checked against their deadline.
	DefaultPollCheckInterval   = 10 * time.Second
	DefaultMaintenanceSchedule = "0 0 3 * * *"

	DefaultGeminiModel       = "gemini-2.0-flash"
	DefaultGeminiTemperature = 0.7
	DefaultGeminiTimeout     = 30 * time.Second
	DefaultGeminiInstruction = "You comment on group poll results in one or two short, friendly sentences. " +
		"Mention the winning option, note ties or low turnout, and never invent numbers."
)

// DefaultMessages are the user-facing texts used when none are configured.
var DefaultMessages = MessagesConfig{
	Welcome: "👋 Hi! I run polls in this chat. Try /poll Best fruit | Apple | Banana | 10\n" +
		"Make me an administrator so I can count reaction votes.",
	Help: "📊 Polls\n\n" +
		"/poll question | option1 | option2 | ... | [minutes]\n" +
		"Creates a poll with 2 to 10 options. React with the emoji shown next to your choice to vote; " +
		"only your last reaction counts. The optional last number sets the duration " +
		"(1 to 1440 minutes, default 5). Prefix the last option with \\ to keep a number as an option.\n\n" +
		"/endpoll - reply to a poll to close it early (creator or admin)\n" +
		"/polls - list open polls in this chat\n\n" +
		"The bot must be an administrator of the chat to see reactions.",
	PollTooFewSegments:  "Please provide a question and at least two options.",
	PollOptionCount:     "Please provide between 2 and 10 options.",
	EndPollUsage:        "Reply to a poll message with /endpoll to close it.",
	EndPollNotFound:     "That message is not an open poll.",
	EndPollNotPermitted: "Only the poll creator or an admin can close this poll.",
	OpenPollsHeader:     "📊 Open polls:\n\n",
	NoOpenPolls:         "There are no open polls in this chat.",
	ErrorGeneral:        "❌ An error occurred. Please try again later.",
}

// setDefaults registers every key with viper so that environment overrides
// apply even when the key is absent from the config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_user_id", 0)
	v.SetDefault("telegram.drop_pending_updates", false)

	v.SetDefault("database.path", DefaultDBPath)
	v.SetDefault("database.retention", DefaultDBRetention)

	v.SetDefault("scheduler.tasks", map[string]any{
		TaskPollCloser: map[string]any{
			"enabled":  true,
			"interval": DefaultPollCheckInterval,
		},
		TaskSQLMaintenance: map[string]any{
			"enabled":  true,
			"schedule": DefaultMaintenanceSchedule,
		},
	})

	v.SetDefault("poll.default_duration_minutes", poll.DefaultDurationMinutes)
	v.SetDefault("poll.markers", poll.DefaultMarkers)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", DefaultGeminiModel)
	v.SetDefault("gemini.temperature", DefaultGeminiTemperature)
	v.SetDefault("gemini.timeout", DefaultGeminiTimeout)
	v.SetDefault("gemini.instruction", DefaultGeminiInstruction)

	v.SetDefault("messages.welcome", DefaultMessages.Welcome)
	v.SetDefault("messages.help", DefaultMessages.Help)
	v.SetDefault("messages.poll_too_few_segments", DefaultMessages.PollTooFewSegments)
	v.SetDefault("messages.poll_option_count", DefaultMessages.PollOptionCount)
	v.SetDefault("messages.end_poll_usage", DefaultMessages.EndPollUsage)
	v.SetDefault("messages.end_poll_not_found", DefaultMessages.EndPollNotFound)
	v.SetDefault("messages.end_poll_not_permitted", DefaultMessages.EndPollNotPermitted)
	v.SetDefault("messages.open_polls_header", DefaultMessages.OpenPollsHeader)
	v.SetDefault("messages.no_open_polls", DefaultMessages.NoOpenPolls)
	v.SetDefault("messages.error_general", DefaultMessages.ErrorGeneral)
}
