package quota

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Reset-phrase patterns. CLIs phrase reset times three ways: a relative
// countdown ("in 2h 15m"), a wall-clock time ("at 3pm"), or a date
// ("Jan 15" / "Jan 15, 2026").
var (
	relativeRe = regexp.MustCompile(`(?i)^in\s+(?:(\d+)\s*d(?:ays?)?\s*)?(?:(\d+)\s*h(?:ours?)?\s*)?(?:(\d+)\s*m(?:in(?:ute)?s?)?)?`)
	clockRe    = regexp.MustCompile(`(?i)^(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)`)
	dateRe     = regexp.MustCompile(`(?i)^(?:on\s+)?([A-Z][a-z]{2})\s+(\d{1,2})(?:,\s*(\d{4}))?`)
)

// ParseResetPhrase normalizes a human reset phrase into a timestamp
// relative to now. The original phrase is kept alongside the timestamp
// by callers; this only computes the instant.
func ParseResetPhrase(phrase string, now time.Time) (time.Time, bool) {
	phrase = strings.TrimSpace(phrase)

	if m := relativeRe.FindStringSubmatch(phrase); m != nil && (m[1] != "" || m[2] != "" || m[3] != "") {
		days := atoi(m[1])
		hours := atoi(m[2])
		mins := atoi(m[3])
		d := time.Duration(days)*24*time.Hour +
			time.Duration(hours)*time.Hour +
			time.Duration(mins)*time.Minute
		return now.Add(d), true
	}

	if m := clockRe.FindStringSubmatch(phrase); m != nil {
		hour := atoi(m[1])
		min := atoi(m[2])
		switch strings.ToLower(m[3]) {
		case "pm":
			if hour < 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
		at := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, true
	}

	if m := dateRe.FindStringSubmatch(phrase); m != nil {
		month, ok := monthByName(m[1])
		if !ok {
			return time.Time{}, false
		}
		year := now.Year()
		if m[3] != "" {
			year = atoi(m[3])
		}
		at := time.Date(year, month, atoi(m[2]), 0, 0, 0, 0, now.Location())
		if m[3] == "" && at.Before(now) {
			at = at.AddDate(1, 0, 0)
		}
		return at, true
	}

	return time.Time{}, false
}

func monthByName(name string) (time.Month, bool) {
	for m := time.January; m <= time.December; m++ {
		if strings.EqualFold(m.String()[:3], name) {
			return m, true
		}
	}
	return 0, false
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}

// FormatUntil renders the time until a reset the way the status views
// show it: minutes under an hour, hours+minutes under a day, and
// days+hours beyond that.
func FormatUntil(at time.Time, now time.Time) string {
	d := at.Sub(now)
	if d <= 0 {
		return "now"
	}
	d = d.Round(time.Minute)
	switch {
	case d >= 24*time.Hour:
		days := int(d / (24 * time.Hour))
		hours := int(d % (24 * time.Hour) / time.Hour)
		if hours == 0 {
			return fmt.Sprintf("%dd", days)
		}
		return fmt.Sprintf("%dd %dh", days, hours)
	case d >= time.Hour:
		hours := int(d / time.Hour)
		mins := int(d % time.Hour / time.Minute)
		if mins == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	}
}
