package sys

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/mattn/go-sqlite3"
)

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	// Explicitly reference sqlite3 driver to avoid blank identifier
	_ = sqlite3.SQLiteDriver{}

	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS guild_music_settings (
			guild_id TEXT PRIMARY KEY,
			volume INTEGER,
			playnext_deferred INTEGER,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// --- Bot Persistence ---

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Guild Music Settings ---

// MusicSettings are per-guild overrides. Nil fields fall back to Config.
type MusicSettings struct {
	GuildID          snowflake.ID
	Volume           *int
	PlayNextDeferred *bool
	UpdatedAt        time.Time
}

// EffectiveVolume returns the guild volume percentage or fallback.
func (s *MusicSettings) EffectiveVolume(fallback int) int {
	if s == nil || s.Volume == nil {
		return fallback
	}
	return *s.Volume
}

// AllowsDeferred returns the guild playnext override or fallback.
func (s *MusicSettings) AllowsDeferred(fallback bool) bool {
	if s == nil || s.PlayNextDeferred == nil {
		return fallback
	}
	return *s.PlayNextDeferred
}

func GetMusicSettings(ctx context.Context, guildID snowflake.ID) (*MusicSettings, error) {
	var (
		volume   sql.NullInt64
		deferred sql.NullBool
		updated  sql.NullTime
	)
	err := DB.QueryRowContext(ctx,
		"SELECT volume, playnext_deferred, updated_at FROM guild_music_settings WHERE guild_id = ?",
		guildID.String(),
	).Scan(&volume, &deferred, &updated)
	if err == sql.ErrNoRows {
		return &MusicSettings{GuildID: guildID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query music settings: %w", err)
	}

	s := &MusicSettings{GuildID: guildID, UpdatedAt: updated.Time}
	if volume.Valid {
		v := int(volume.Int64)
		s.Volume = &v
	}
	if deferred.Valid {
		d := deferred.Bool
		s.PlayNextDeferred = &d
	}
	return s, nil
}

func SetGuildVolume(ctx context.Context, guildID snowflake.ID, percent int) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO guild_music_settings (guild_id, volume) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET volume = excluded.volume, updated_at = CURRENT_TIMESTAMP
	`, guildID.String(), percent)
	return err
}

func SetGuildPlayNextDeferred(ctx context.Context, guildID snowflake.ID, allowed bool) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO guild_music_settings (guild_id, playnext_deferred) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET playnext_deferred = excluded.playnext_deferred, updated_at = CURRENT_TIMESTAMP
	`, guildID.String(), boolToInt(allowed))
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
