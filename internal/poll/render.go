package poll

import (
	"fmt"
	"strings"
)

// FormatPoll renders the message announcing a poll. Each option is shown
// with the marker that votes for it.
func FormatPoll(req Request, markers []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Poll: %s\n\n", req.Question)
	for i, opt := range req.Options {
		if i < len(markers) {
			fmt.Fprintf(&sb, "%d. %s %s\n", i+1, markers[i], opt)
			continue
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, opt)
	}
	fmt.Fprintf(&sb, "\nPoll duration: %d minute(s)", req.DurationMinutes)
	return sb.String()
}

// FormatResults renders the results message of a closed poll.
func FormatResults(res Results) string {
	var sb strings.Builder
	sb.WriteString("📊 Poll Results:\n\n")
	for i, opt := range res.Options {
		fmt.Fprintf(&sb, "%d. %s: %d vote(s) (%s%%)\n", i+1, opt.Option, opt.Votes, formatPercentage(opt.Percentage, res.Total))
	}
	fmt.Fprintf(&sb, "\nTotal votes: %d", res.Total)
	return sb.String()
}

// FormatSummaries renders the list of open polls in a chat.
func FormatSummaries(header string, polls []Summary) string {
	var sb strings.Builder
	sb.WriteString(header)
	for i, p := range polls {
		fmt.Fprintf(&sb, "%d. %s (%d voter(s), closes %s)\n", i+1, p.Question, p.Voters, p.Deadline.UTC().Format("2006-01-02 15:04 MST"))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatPercentage(p float64, total int) string {
	if total == 0 {
		return "0"
	}
	return fmt.Sprintf("%.2f", p)
}
