package sys

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"90", 90 * time.Second, true},
		{"1:30", 90 * time.Second, true},
		{"0:05", 5 * time.Second, true},
		{"1:02:03", time.Hour + 2*time.Minute + 3*time.Second, true},
		{" 2:00 ", 2 * time.Minute, true},
		{"1:5", 0, false},
		{"1:60", 0, false},
		{"a:10", 0, false},
		{"-5", 0, false},
		{"1:2:3:4", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"":      0,
		"30":    30 * time.Second,
		"30s":   30 * time.Second,
		"5m":    5 * time.Minute,
		"2h":    2 * time.Hour,
		"250ms": 250 * time.Millisecond,
	}
	for in, want := range tests {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDuration("soon")
	assert.Error(t, err)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "0:00", FormatClock(0))
	assert.Equal(t, "0:00", FormatClock(-time.Second))
	assert.Equal(t, "3:05", FormatClock(3*time.Minute+5*time.Second+900*time.Millisecond))
	assert.Equal(t, "1:02:03", FormatClock(time.Hour+2*time.Minute+3*time.Second))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "∞", FormatDuration(0))
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "2m 5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h 30m", FormatDuration(90*time.Minute))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "日本語...", Truncate("日本語のタイトルです", 6))

	assert.Equal(t, "abc...nop", TruncateCenter("abcdefghijklmnop", 9))
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `\*\*bold\*\* \_x\_ a\|b`, EscapeMarkdown("**bold** _x_ a|b"))
}
