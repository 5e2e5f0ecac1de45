package proc

import (
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/samber/lo"
)

const (
	MinVolume = 0.0
	MaxVolume = 2.0
)

// GuildQueue holds the pending tracks of one room plus the track that is
// playing or has just finished. Positions are 0-based here; commands
// translate from the 1-based numbers users see.
type GuildQueue struct {
	mu           sync.Mutex
	pending      []*Track
	current      *Track
	loop         bool
	shuffleCount int
	volume       float64
	rng          *rand.Rand
}

// QueueSnapshot is a consistent copy of the queue state.
type QueueSnapshot struct {
	Current      *Track
	Pending      []*Track
	Loop         bool
	ShuffleCount int
	Volume       float64
}

// NewGuildQueue creates an empty queue. A nil rng seeds a fresh generator.
func NewGuildQueue(volume float64, rng *rand.Rand) *GuildQueue {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &GuildQueue{
		volume: lo.Clamp(volume, MinVolume, MaxVolume),
		rng:    rng,
	}
}

// Enqueue appends t, or prepends it when atFront is set.
func (q *GuildQueue) Enqueue(t *Track, atFront bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if atFront {
		q.pending = slices.Insert(q.pending, 0, t)
		return 1
	}
	q.pending = append(q.pending, t)
	return len(q.pending)
}

// EnqueueAll adds ts keeping their order.
func (q *GuildQueue) EnqueueAll(ts []*Track, atFront bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if atFront {
		q.pending = slices.Insert(q.pending, 0, ts...)
		return
	}
	q.pending = append(q.pending, ts...)
}

// DequeueNext picks the next track and makes it current. With loop enabled
// the finished track rejoins the tail first, so a lone track comes straight
// back. Returns nil and unsets current when nothing is left.
func (q *GuildQueue) DequeueNext() *Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.loop && q.current != nil {
		q.pending = append(q.pending, q.current)
	}
	if len(q.pending) == 0 {
		q.current = nil
		return nil
	}

	next := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.current = next
	return next
}

// PeekNext returns the track DequeueNext would pick, without mutating.
func (q *GuildQueue) PeekNext() *Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) > 0 {
		return q.pending[0]
	}
	if q.loop {
		return q.current
	}
	return nil
}

// RemoveAt removes the pending track at index, keeping everything else in order.
func (q *GuildQueue) RemoveAt(index int) (*Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.pending) {
		return nil, &OutOfRangeError{Position: index + 1, Len: len(q.pending)}
	}
	t := q.pending[index]
	q.pending = slices.Delete(q.pending, index, index+1)
	return t, nil
}

// RemoveByRequester drops every pending track requested by userID.
func (q *GuildQueue) RemoveByRequester(userID snowflake.ID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	before := len(q.pending)
	q.pending = lo.Filter(q.pending, func(t *Track, _ int) bool {
		return t.RequesterID != userID
	})
	return before - len(q.pending)
}

// CountByRequester reports how many pending tracks userID owns.
func (q *GuildQueue) CountByRequester(userID snowflake.ID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return lo.CountBy(q.pending, func(t *Track) bool {
		return t.RequesterID == userID
	})
}

// MoveToFront moves the pending track at index to the head of the queue.
func (q *GuildQueue) MoveToFront(index int) (*Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.pending) {
		return nil, &OutOfRangeError{Position: index + 1, Len: len(q.pending)}
	}
	t := q.pending[index]
	q.pending = slices.Delete(q.pending, index, index+1)
	q.pending = slices.Insert(q.pending, 0, t)
	return t, nil
}

// ShuffleFairly shuffles each requester's tracks and deals them out
// round-robin in order of first appearance, one per requester per round.
func (q *GuildQueue) ShuffleFairly() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var order []snowflake.ID
	groups := make(map[snowflake.ID][]*Track)
	for _, t := range q.pending {
		if _, seen := groups[t.RequesterID]; !seen {
			order = append(order, t.RequesterID)
		}
		groups[t.RequesterID] = append(groups[t.RequesterID], t)
	}

	for _, id := range order {
		g := groups[id]
		q.rng.Shuffle(len(g), func(i, j int) { g[i], g[j] = g[j], g[i] })
	}

	out := make([]*Track, 0, len(q.pending))
	for round := 0; len(out) < len(q.pending); round++ {
		for _, id := range order {
			if g := groups[id]; round < len(g) {
				out = append(out, g[round])
			}
		}
	}

	q.pending = out
	q.shuffleCount++
	return q.shuffleCount
}

// Clear empties the pending tracks and leaves current alone.
func (q *GuildQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	q.pending = nil
	return n
}

// Reset clears pending and current.
func (q *GuildQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	q.current = nil
}

func (q *GuildQueue) Current() *Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// ReplaceCurrent swaps current for a resolved copy of the same track.
func (q *GuildQueue) ReplaceCurrent(t *Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current != nil && q.current.ID == t.ID {
		q.current = t
	}
}

// DropCurrent forgets current so a failed track does not rejoin the loop.
func (q *GuildQueue) DropCurrent() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = nil
}

func (q *GuildQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *GuildQueue) Loop() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loop
}

func (q *GuildQueue) SetLoop(enabled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loop = enabled
}

// ToggleLoop flips loop mode and returns the new value.
func (q *GuildQueue) ToggleLoop() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loop = !q.loop
	return q.loop
}

func (q *GuildQueue) ShuffleCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shuffleCount
}

func (q *GuildQueue) Volume() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.volume
}

// SetVolume stores v clamped to [MinVolume, MaxVolume] and returns it.
func (q *GuildQueue) SetVolume(v float64) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.volume = lo.Clamp(v, MinVolume, MaxVolume)
	return q.volume
}

func (q *GuildQueue) Snapshot() QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueSnapshot{
		Current:      q.current,
		Pending:      slices.Clone(q.pending),
		Loop:         q.loop,
		ShuffleCount: q.shuffleCount,
		Volume:       q.volume,
	}
}
