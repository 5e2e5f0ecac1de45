package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Token        string
	GuildID      string
	DatabasePath string
	LogFile      string
	Silent       bool

	YoutubeProxy           string
	SpotifyClientID        string
	SpotifyClientSecret    string
	SponsorBlockURL        string
	SponsorBlockCategories []string

	// DefaultVolume is a percentage, 0-200.
	DefaultVolume          int
	PlayNextAllowsDeferred bool
	ConfirmTimeout         time.Duration
	RefreshInterval        time.Duration
	ResolveTimeout         time.Duration
	IdleDisconnect         time.Duration

	RedisURL   string
	StatusAddr string
}

var GlobalConfig *Config

var defaultSponsorBlockCategories = []string{
	"sponsor", "selfpromo", "interaction", "intro", "outro", "preview", "filler", "music_offtopic",
}

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := configFromEnv(os.Getenv)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func configFromEnv(getenv func(string) string) (*Config, error) {
	dbPath := getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

	silent, _ := strconv.ParseBool(getenv("SILENT"))

	cfg := &Config{
		Token:                  getenv("DISCORD_TOKEN"),
		GuildID:                getenv("GUILD_ID"),
		DatabasePath:           dbPath,
		LogFile:                getenv("LOG_FILE"),
		Silent:                 silent,
		YoutubeProxy:           getenv("YOUTUBE_PROXY"),
		SpotifyClientID:        getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret:    getenv("SPOTIFY_CLIENT_SECRET"),
		SponsorBlockURL:        strings.TrimRight(getenv("SPONSORBLOCK_URL"), "/"),
		SponsorBlockCategories: splitList(getenv("SPONSORBLOCK_CATEGORIES")),
		DefaultVolume:          100,
		ConfirmTimeout:         30 * time.Second,
		RefreshInterval:        time.Second,
		ResolveTimeout:         30 * time.Second,
		IdleDisconnect:         5 * time.Second,
		RedisURL:               getenv("REDIS_URL"),
		StatusAddr:             getenv("STATUS_ADDR"),
	}

	if cfg.SponsorBlockURL == "" {
		cfg.SponsorBlockURL = "https://sponsor.ajay.app"
	}
	if len(cfg.SponsorBlockCategories) == 0 {
		cfg.SponsorBlockCategories = defaultSponsorBlockCategories
	}

	if v := getenv("DEFAULT_VOLUME"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, "DEFAULT_VOLUME", err)
		}
		cfg.DefaultVolume = n
	}
	if v := getenv("PLAYNEXT_ALLOWS_DEFERRED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, "PLAYNEXT_ALLOWS_DEFERRED", err)
		}
		cfg.PlayNextAllowsDeferred = b
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"CONFIRM_TIMEOUT", &cfg.ConfirmTimeout},
		{"REFRESH_INTERVAL", &cfg.RefreshInterval},
		{"RESOLVE_TIMEOUT", &cfg.ResolveTimeout},
		{"IDLE_DISCONNECT", &cfg.IdleDisconnect},
	}
	for _, d := range durations {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, d.key, err)
		}
		*d.dst = parsed
	}

	return cfg, nil
}

// Validate ensures the configuration is valid and meets requirements.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}
	if c.DefaultVolume < 0 || c.DefaultVolume > 200 {
		return fmt.Errorf("invalid DEFAULT_VOLUME: %d is outside 0-200", c.DefaultVolume)
	}
	if c.RefreshInterval < 250*time.Millisecond {
		return fmt.Errorf("invalid REFRESH_INTERVAL: %s is below 250ms", c.RefreshInterval)
	}
	for name, d := range map[string]time.Duration{
		"CONFIRM_TIMEOUT": c.ConfirmTimeout,
		"RESOLVE_TIMEOUT": c.ResolveTimeout,
		"IDLE_DISCONNECT": c.IdleDisconnect,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid %s: must be positive", name)
		}
	}
	return nil
}

// Volume is DefaultVolume as a gain factor.
func (c *Config) Volume() float64 {
	return float64(c.DefaultVolume) / 100
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "bot"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") || strings.HasSuffix(projectName, ".test") {
			projectName = "jukebox"
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
