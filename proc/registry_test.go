package proc

import (
	"context"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, transport *fakeTransport) *SessionRegistry {
	t.Helper()
	r := NewSessionRegistry(RegistryConfig{
		Resolver:        &fakeResolver{results: make(map[string]*Track)},
		Transport:       func(snowflake.ID) Transport { return transport },
		Volume:          func(id snowflake.ID) float64 { return float64(id%10) / 10 },
		Clock:           newFakeClock().Now,
		RefreshInterval: 10 * time.Millisecond,
	})
	t.Cleanup(r.Shutdown)
	return r
}

func TestRegistry_GetOrCreate(t *testing.T) {
	r := newTestRegistry(t, newFakeTransport())

	_, ok := r.Get(15)
	assert.False(t, ok)

	room := r.GetOrCreate(15, nil)
	require.NotNil(t, room)
	assert.Same(t, room, r.GetOrCreate(15, nil))
	assert.Equal(t, 0.5, room.Queue.Volume())
	assert.Nil(t, room.Surface())

	got, ok := r.Get(15)
	assert.True(t, ok)
	assert.Same(t, room, got)
}

func TestRegistry_RedirectsSurface(t *testing.T) {
	r := newTestRegistry(t, newFakeTransport())
	first, second := newFakeSurface(), newFakeSurface()

	room := r.GetOrCreate(1, first)
	assert.Same(t, first, room.Surface())

	r.GetOrCreate(1, second)
	assert.Same(t, second, room.Surface())

	_, err := room.Session.Start(context.Background())
	assert.ErrorIs(t, err, ErrEmptyQueue)
	assert.Equal(t, 0, first.endedCount())
	assert.Equal(t, 1, second.endedCount())
}

func TestRegistry_PlaybackDrivesPresenter(t *testing.T) {
	transport := newFakeTransport()
	r := newTestRegistry(t, transport)
	surface := newFakeSurface()
	room := r.GetOrCreate(1, surface)
	room.Queue.Enqueue(resolved("A", 1), false)
	room.Queue.Enqueue(resolved("B", 1), false)

	_, err := room.Session.Start(context.Background())
	require.NoError(t, err)
	eventually(t, func() bool { return surface.editCount(101) >= 1 })
	assert.True(t, room.Presenter.Active())
	assert.Equal(t, "A", room.Presenter.Track().Title)

	_, err = room.Session.Skip(context.Background())
	require.NoError(t, err)
	eventually(t, func() bool { return surface.sentCount() == 2 })
	eventually(t, func() bool { return len(surface.deletedRefs()) == 1 })
	assert.Equal(t, "B", room.Presenter.Track().Title)

	transport.last().finish(nil)
	eventually(t, func() bool { return surface.endedCount() == 1 })
	eventually(t, func() bool { return !room.Presenter.Active() })
}

func TestRegistry_PresenterSurvivesSeek(t *testing.T) {
	transport := newFakeTransport()
	r := newTestRegistry(t, transport)
	surface := newFakeSurface()
	room := r.GetOrCreate(1, surface)
	room.Queue.Enqueue(resolved("A", 1), false)

	_, err := room.Session.Start(context.Background())
	require.NoError(t, err)
	eventually(t, func() bool { return surface.editCount(101) >= 1 })

	transport.setDelay(100 * time.Millisecond)
	_, err = room.Session.FastForward(context.Background(), 10*time.Second)
	require.NoError(t, err)

	edits := surface.editCount(101)
	eventually(t, func() bool { return surface.editCount(101) > edits })
	assert.Equal(t, Playing, room.Session.State())
	assert.True(t, room.Presenter.Active())
	assert.Empty(t, surface.deletedRefs())
	assert.Equal(t, 1, surface.sentCount())
}

func TestRegistry_Remove(t *testing.T) {
	transport := newFakeTransport()
	r := newTestRegistry(t, transport)
	room := r.GetOrCreate(2, nil)
	room.Queue.Enqueue(resolved("A", 1), false)
	room.Queue.Enqueue(resolved("B", 1), false)
	_, err := room.Session.Start(context.Background())
	require.NoError(t, err)

	assert.True(t, r.Remove(2))
	assert.False(t, r.Remove(2))
	assert.True(t, transport.last().isStopped())
	assert.Equal(t, 0, room.Queue.Len())
	assert.Nil(t, room.Queue.Current())

	_, ok := r.Get(2)
	assert.False(t, ok)
}

func TestRegistry_Rooms(t *testing.T) {
	r := newTestRegistry(t, newFakeTransport())
	r.GetOrCreate(30, nil)
	busy := r.GetOrCreate(10, nil)
	r.GetOrCreate(20, nil)
	busy.Queue.Enqueue(resolved("A", 1), false)
	busy.Queue.Enqueue(resolved("B", 1), false)
	_, err := busy.Session.Start(context.Background())
	require.NoError(t, err)

	rooms := r.Rooms()
	require.Len(t, rooms, 3)
	assert.Equal(t, []snowflake.ID{10, 20, 30}, []snowflake.ID{rooms[0].GuildID, rooms[1].GuildID, rooms[2].GuildID})
	assert.Equal(t, "playing", rooms[0].State)
	assert.Equal(t, "A", rooms[0].Current)
	assert.Equal(t, 1, rooms[0].Pending)
	assert.Equal(t, "idle", rooms[1].State)

	r.Shutdown()
	assert.Empty(t, r.Rooms())
}
