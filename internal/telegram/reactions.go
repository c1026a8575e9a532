package telegram

import (
	"fmt"
	"slices"
)

// allowedReactions is the fixed list of emoji the Bot API accepts in
// setMessageReaction. Compound entries are spelled with escapes.
var allowedReactions = []string{
	"👍", "👎", "❤", "🔥", "🥰", "👏", "😁", "🤔", "🤯", "😱",
	"🤬", "😢", "🎉", "🤩", "🤮", "💩", "🙏", "👌", "🕊", "🤡",
	"🥱", "🥴", "😍", "🐳", "❤\u200d\U0001F525", "🌚", "🌭", "💯", "🤣", "⚡",
	"🍌", "🏆", "💔", "🤨", "😐", "🍓", "🍾", "💋", "🖕", "😈",
	"😴", "😭", "🤓", "👻", "\U0001F468\u200d\U0001F4BB", "👀", "🎃", "🙈", "😇", "😨",
	"🤝", "✍", "🤗", "🫡", "🎅", "🎄", "☃", "💅", "🤪", "🗿",
	"🆒", "💘", "🙉", "🦄", "😘", "💊", "🙊", "😎", "👾",
	"\U0001F937\u200d♂", "🤷", "\U0001F937\u200d♀", "😡",
}

// IsAllowedReaction reports whether a bot may set emoji as a message reaction.
func IsAllowedReaction(emoji string) bool {
	return slices.Contains(allowedReactions, emoji)
}

// ValidateMarkers checks that every poll marker can be attached by the bot.
func ValidateMarkers(markers []string) error {
	for i, m := range markers {
		if !IsAllowedReaction(m) {
			return fmt.Errorf("marker %d (%q) is not an allowed Telegram reaction", i+1, m)
		}
	}
	return nil
}
