package poll

import (
	"math"
	"strconv"
	"strings"
)

// escapePrefix keeps a numeric-looking last segment as an option.
const escapePrefix = `\`

// ParseRequest parses "question | option1 | option2 | ... | [minutes]".
//
// The last segment is read as the duration when it starts with an integer
// ("10", "10 minutes"); it is then dropped from the options and clamped to
// [MinDurationMinutes, MaxDurationMinutes]. Otherwise it stays an option and
// defaultMinutes is used. A last segment starting with a backslash is never
// read as a duration.
func ParseRequest(input string, defaultMinutes int) (Request, error) {
	if defaultMinutes <= 0 {
		defaultMinutes = DefaultDurationMinutes
	}

	segments := strings.Split(input, Separator)
	for i := range segments {
		segments[i] = strings.TrimSpace(segments[i])
	}

	if len(segments) < MinOptions+1 {
		return Request{}, ErrTooFewSegments
	}

	question, options := segments[0], segments[1:]
	duration := clamp(defaultMinutes, MinDurationMinutes, MaxDurationMinutes)

	last := options[len(options)-1]
	if minutes, ok := parseMinutes(last); ok {
		options = options[:len(options)-1]
		duration = clamp(minutes, MinDurationMinutes, MaxDurationMinutes)
	} else if strings.HasPrefix(last, escapePrefix) {
		options[len(options)-1] = strings.TrimPrefix(last, escapePrefix)
	}

	if len(options) < MinOptions || len(options) > MaxOptions {
		return Request{}, ErrOptionCount
	}

	return Request{
		Question:        question,
		Options:         append([]string(nil), options...),
		DurationMinutes: duration,
	}, nil
}

// parseMinutes reads the integer at the start of s: an optional sign followed
// by decimal digits, or by hex digits after 0x. Anything after the digits is
// ignored, so "10 minutes" and "2.5" read as 10 and 2. Values outside the int
// range saturate so that they clamp to the nearest duration bound.
func parseMinutes(s string) (int, bool) {
	negative := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		negative = s[0] == '-'
		s = s[1:]
	}

	base, isDigit := 10, isDecimalDigit
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base, isDigit = 16, isHexDigit
		s = s[2:]
	}

	end := 0
	for end < len(s) && isDigit(s[end]) {
		end++
	}
	if end == 0 {
		return 0, false
	}

	n, err := strconv.ParseUint(s[:end], base, 64)
	if err != nil || n > math.MaxInt {
		// Only ErrRange is possible on a pure digit run.
		if negative {
			return math.MinInt, true
		}
		return math.MaxInt, true
	}
	if negative {
		return -int(n), true
	}
	return int(n), true
}

func isDecimalDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDecimalDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
