package sys

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDatabase(t *testing.T) {
	t.Helper()
	require.NoError(t, InitDatabase(context.Background(), filepath.Join(t.TempDir(), "test.db")))
	t.Cleanup(CloseDatabase)
}

func TestBotConfig(t *testing.T) {
	openTestDatabase(t)
	ctx := context.Background()

	v, err := GetBotConfig(ctx, "last_cmd_hash")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, SetBotConfig(ctx, "last_cmd_hash", "abc"))
	require.NoError(t, SetBotConfig(ctx, "last_cmd_hash", "def"))
	v, err = GetBotConfig(ctx, "last_cmd_hash")
	require.NoError(t, err)
	assert.Equal(t, "def", v)
}

func TestMusicSettings(t *testing.T) {
	openTestDatabase(t)
	ctx := context.Background()

	s, err := GetMusicSettings(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, s.Volume)
	assert.Equal(t, 100, s.EffectiveVolume(100))
	assert.True(t, s.AllowsDeferred(true))

	require.NoError(t, SetGuildVolume(ctx, 42, 35))
	s, err = GetMusicSettings(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 35, s.EffectiveVolume(100))
	assert.Nil(t, s.PlayNextDeferred)

	require.NoError(t, SetGuildPlayNextDeferred(ctx, 42, true))
	s, err = GetMusicSettings(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 35, s.EffectiveVolume(100), "setting one column keeps the other")
	assert.True(t, s.AllowsDeferred(false))

	other, err := GetMusicSettings(ctx, 7)
	require.NoError(t, err)
	assert.False(t, other.AllowsDeferred(false))
}

func TestMusicSettings_NilReceiver(t *testing.T) {
	var s *MusicSettings
	assert.Equal(t, 80, s.EffectiveVolume(80))
	assert.False(t, s.AllowsDeferred(false))
}
