package poll

import "math"

// OptionResult is the outcome of a single option.
type OptionResult struct {
	Option     string
	Votes      int
	Percentage float64
}

// Results is the tally of a closed poll.
type Results struct {
	Question string
	Options  []OptionResult
	Total    int
}

// Tally counts the votes per option. Votes pointing outside options are
// dropped. Percentages are rounded to two decimals and are zero when
// nobody voted.
func Tally(question string, options []string, votes map[int64]int) Results {
	counts := make([]int, len(options))
	total := 0
	for _, idx := range votes {
		if idx < 0 || idx >= len(options) {
			continue
		}
		counts[idx]++
		total++
	}

	res := Results{
		Question: question,
		Options:  make([]OptionResult, len(options)),
		Total:    total,
	}
	for i, opt := range options {
		res.Options[i] = OptionResult{
			Option:     opt,
			Votes:      counts[i],
			Percentage: percentage(counts[i], total),
		}
	}
	return res
}

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*100*100) / 100
}
