package sys

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

func IntPtr(i int) *int {
	return &i
}

// ============================================================================
// String Utilities
// ============================================================================

// Truncate shortens s to maxLen runes with an ellipsis at the end.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// TruncateCenter truncates a string keeping both the start and end.
func TruncateCenter(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	k := (maxLen - 3) / 2
	return string(r[:k]) + "..." + string(r[len(r)-k:])
}

// EscapeMarkdown neutralizes characters Discord treats as formatting.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "~", `\~`, "`", "\\`", "|", `\|`, ">", `\>`,
)

// ============================================================================
// Time Utilities
// ============================================================================

// FormatDuration renders a human duration such as "2m 5s".
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "∞"
	}
	h, m, s := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatClock renders a playback position as m:ss or h:mm:ss.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

var durationPattern = regexp.MustCompile(`^(\d+)(ms|s|m|h)?$`)

// ParseDuration accepts a bare number of seconds or a number with an
// ms, s, m or h suffix.
func ParseDuration(duration string) (time.Duration, error) {
	if duration == "" || duration == "0" {
		return 0, nil
	}
	m := durationPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(duration)))
	if m == nil {
		return 0, fmt.Errorf("invalid format %q", duration)
	}
	v, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "ms":
		return time.Duration(v) * time.Millisecond, nil
	case "m":
		return time.Duration(v) * time.Minute, nil
	case "h":
		return time.Duration(v) * time.Hour, nil
	default:
		return time.Duration(v) * time.Second, nil
	}
}

// ParseTimestamp parses "90", "1:30" or "1:02:03" into a duration.
func ParseTimestamp(ts string) (time.Duration, error) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	parts := strings.Split(ts, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", ts)
	}

	var total int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", ts)
		}
		if i > 0 && (n >= 60 || len(p) != 2) {
			return 0, fmt.Errorf("invalid timestamp %q", ts)
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, nil
}
