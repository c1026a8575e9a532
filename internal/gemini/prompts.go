package gemini

import (
	"fmt"
	"strings"

	"github.com/edgard/pollbot/internal/poll"
)

// ResultsPromptHeader introduces the tally sent to the model.
const ResultsPromptHeader = `A group poll just closed. Write the commentary for these results.

[CRITICAL] Reply with the commentary text only. Do not repeat the table, do not use markdown, and keep it under 200 characters.

`

// buildResultsPrompt renders res as the user turn of the commentary request.
func buildResultsPrompt(res poll.Results) string {
	var sb strings.Builder
	sb.WriteString(ResultsPromptHeader)
	fmt.Fprintf(&sb, "Question: %s\n", res.Question)
	for i, o := range res.Options {
		fmt.Fprintf(&sb, "Option %d: %s | votes: %d | share: %.2f%%\n", i+1, o.Option, o.Votes, o.Percentage)
	}
	fmt.Fprintf(&sb, "Total votes: %d\n", res.Total)
	return sb.String()
}
