package proc

import (
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Surface is the channel-bound side of a room: the now playing display and
// the place where failures are announced.
type Surface interface {
	DisplaySurface
	Notifier
}

// RegistryConfig wires collaborators into every room the registry creates.
type RegistryConfig struct {
	Resolver  Resolver
	Segments  SegmentSource
	Transport func(guildID snowflake.ID) Transport
	// Volume returns the starting volume of a new room.
	Volume func(guildID snowflake.ID) float64
	Rand   func() *rand.Rand
	Clock  func() time.Time

	RefreshInterval time.Duration
	ResolveTimeout  time.Duration
	SegmentPoll     time.Duration
}

// Room bundles the per-room state.
type Room struct {
	GuildID   snowflake.ID
	Queue     *GuildQueue
	Session   *PlaybackSession
	Presenter *NowPlayingPresenter

	mu      sync.Mutex
	surface Surface
}

// Surface returns the surface the room currently reports to.
func (r *Room) Surface() Surface {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.surface
}

// SetSurface moves the room's messages to s.
func (r *Room) SetSurface(s Surface) {
	r.mu.Lock()
	r.surface = s
	r.mu.Unlock()
	r.Presenter.SetSurface(s)
}

// TrackFailed forwards to the current surface.
func (r *Room) TrackFailed(t *Track, err error) {
	if s := r.Surface(); s != nil {
		s.TrackFailed(t, err)
	}
}

// QueueEnded forwards to the current surface.
func (r *Room) QueueEnded() {
	if s := r.Surface(); s != nil {
		s.QueueEnded()
	}
}

// RoomStatus is a read-only summary of a room.
type RoomStatus struct {
	GuildID snowflake.ID `json:"guild_id"`
	State   string       `json:"state"`
	Current string       `json:"current,omitempty"`
	Elapsed float64      `json:"elapsed_seconds"`
	Pending int          `json:"pending"`
	Loop    bool         `json:"loop"`
	Volume  float64      `json:"volume"`
}

// SessionRegistry maps rooms to their queue, session and presenter.
type SessionRegistry struct {
	cfg   RegistryConfig
	mu    sync.Mutex
	rooms map[snowflake.ID]*Room
}

func NewSessionRegistry(cfg RegistryConfig) *SessionRegistry {
	if cfg.Volume == nil {
		cfg.Volume = func(snowflake.ID) float64 { return 1.0 }
	}
	return &SessionRegistry{
		cfg:   cfg,
		rooms: make(map[snowflake.ID]*Room),
	}
}

// Get returns the room for guildID if it exists.
func (r *SessionRegistry) Get(guildID snowflake.ID) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[guildID]
	return room, ok
}

// GetOrCreate returns the room for guildID, creating it on first use. An
// existing room is redirected to surface when surface is non-nil.
func (r *SessionRegistry) GetOrCreate(guildID snowflake.ID, surface Surface) *Room {
	r.mu.Lock()
	if room, ok := r.rooms[guildID]; ok {
		r.mu.Unlock()
		if surface != nil {
			room.SetSurface(surface)
		}
		return room
	}
	defer r.mu.Unlock()

	var rng *rand.Rand
	if r.cfg.Rand != nil {
		rng = r.cfg.Rand()
	}
	var transport Transport
	if r.cfg.Transport != nil {
		transport = r.cfg.Transport(guildID)
	}

	room := &Room{GuildID: guildID, surface: surface}
	room.Queue = NewGuildQueue(r.cfg.Volume(guildID), rng)

	var display DisplaySurface
	if surface != nil {
		display = surface
	}
	room.Presenter = NewNowPlayingPresenter(room.Queue, display, PresenterOptions{Interval: r.cfg.RefreshInterval})
	room.Session = NewPlaybackSession(guildID, room.Queue, transport, SessionOptions{
		Resolver:       r.cfg.Resolver,
		Segments:       r.cfg.Segments,
		Notifier:       room,
		Presenter:      room.Presenter,
		Clock:          r.cfg.Clock,
		ResolveTimeout: r.cfg.ResolveTimeout,
		SegmentPoll:    r.cfg.SegmentPoll,
	})
	room.Presenter.Bind(room.Session)

	r.rooms[guildID] = room
	logQueue("Created room for guild %s", guildID)
	return room
}

// Remove tears down the room for guildID. It reports whether one existed.
func (r *SessionRegistry) Remove(guildID snowflake.ID) bool {
	r.mu.Lock()
	room, ok := r.rooms[guildID]
	delete(r.rooms, guildID)
	r.mu.Unlock()

	if !ok {
		return false
	}
	room.Session.Close()
	room.Queue.Reset()
	logQueue("Removed room for guild %s", guildID)
	return true
}

// Shutdown tears down every room.
func (r *SessionRegistry) Shutdown() {
	r.mu.Lock()
	ids := make([]snowflake.ID, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Remove(id)
	}
}

// Rooms lists active rooms ordered by guild ID.
func (r *SessionRegistry) Rooms() []RoomStatus {
	r.mu.Lock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()

	out := make([]RoomStatus, 0, len(rooms))
	for _, room := range rooms {
		qs := room.Queue.Snapshot()
		st := RoomStatus{
			GuildID: room.GuildID,
			State:   room.Session.State().String(),
			Elapsed: room.Session.Elapsed().Seconds(),
			Pending: len(qs.Pending),
			Loop:    qs.Loop,
			Volume:  qs.Volume,
		}
		if t := room.Session.Current(); t != nil {
			st.Current = t.Title
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b RoomStatus) int {
		switch {
		case a.GuildID < b.GuildID:
			return -1
		case a.GuildID > b.GuildID:
			return 1
		}
		return 0
	})
	return out
}
