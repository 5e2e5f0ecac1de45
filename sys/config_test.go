package sys

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := configFromEnv(envMap(map[string]string{
		"DISCORD_TOKEN": "token",
		"DATABASE_PATH": "test.db",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "test.db", cfg.DatabasePath)
	assert.Equal(t, 100, cfg.DefaultVolume)
	assert.Equal(t, 1.0, cfg.Volume())
	assert.False(t, cfg.PlayNextAllowsDeferred)
	assert.Equal(t, 30*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, time.Second, cfg.RefreshInterval)
	assert.Equal(t, 30*time.Second, cfg.ResolveTimeout)
	assert.Equal(t, 5*time.Second, cfg.IdleDisconnect)
	assert.Equal(t, "https://sponsor.ajay.app", cfg.SponsorBlockURL)
	assert.Len(t, cfg.SponsorBlockCategories, 8)
	assert.Empty(t, cfg.RedisURL)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	cfg, err := configFromEnv(envMap(map[string]string{
		"DISCORD_TOKEN":            "token",
		"DATABASE_PATH":            "test.db",
		"DEFAULT_VOLUME":           "50",
		"PLAYNEXT_ALLOWS_DEFERRED": "true",
		"CONFIRM_TIMEOUT":          "10s",
		"REFRESH_INTERVAL":         "500ms",
		"SPONSORBLOCK_URL":         "http://localhost:8080/",
		"SPONSORBLOCK_CATEGORIES":  "sponsor, intro ,",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.5, cfg.Volume())
	assert.True(t, cfg.PlayNextAllowsDeferred)
	assert.Equal(t, 10*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.RefreshInterval)
	assert.Equal(t, "http://localhost:8080", cfg.SponsorBlockURL)
	assert.Equal(t, []string{"sponsor", "intro"}, cfg.SponsorBlockCategories)
}

func TestConfigFromEnv_BadValues(t *testing.T) {
	for key, value := range map[string]string{
		"DEFAULT_VOLUME":           "loud",
		"PLAYNEXT_ALLOWS_DEFERRED": "maybe",
		"RESOLVE_TIMEOUT":          "forever",
	} {
		_, err := configFromEnv(envMap(map[string]string{"DISCORD_TOKEN": "t", "DATABASE_PATH": "x", key: value}))
		assert.Error(t, err, key)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Token:           "t",
			DefaultVolume:   100,
			ConfirmTimeout:  time.Second,
			RefreshInterval: time.Second,
			ResolveTimeout:  time.Second,
			IdleDisconnect:  time.Second,
		}
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(c *Config){
		"missing token":  func(c *Config) { c.Token = "" },
		"short guild":    func(c *Config) { c.GuildID = "123" },
		"volume too big": func(c *Config) { c.DefaultVolume = 201 },
		"negative vol":   func(c *Config) { c.DefaultVolume = -1 },
		"fast refresh":   func(c *Config) { c.RefreshInterval = 100 * time.Millisecond },
		"zero confirm":   func(c *Config) { c.ConfirmTimeout = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestBotLogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewBotLogHandler(NewStripANSIWriter(&buf), &BotLogHandlerOptions{Level: slog.LevelInfo}))

	logger.Info("queue ended", slog.String("component", "queue"))
	logger.Warn("slow")
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "[QUEUE] queue ended")
	assert.Contains(t, out, "[WARN] slow")
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "\x1b[")
}

func TestBotLogHandler_Silent(t *testing.T) {
	var buf bytes.Buffer
	h := NewBotLogHandler(&buf, &BotLogHandlerOptions{Silent: true, Level: slog.LevelInfo})
	slog.New(h).Error("boom")
	assert.Empty(t, buf.String())
}
