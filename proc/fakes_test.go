package proc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// --- clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- transport ---

type fakeHandle struct {
	ref  StreamRef
	opts OpenOptions
	done chan error
	once sync.Once

	mu      sync.Mutex
	stopped bool
	paused  bool
	volume  float64
}

func (h *fakeHandle) Done() <-chan error { return h.done }

func (h *fakeHandle) finish(err error) {
	h.once.Do(func() {
		h.done <- err
		close(h.done)
	})
}

func (h *fakeHandle) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.finish(nil)
}

func (h *fakeHandle) SetPaused(p bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = p
}

func (h *fakeHandle) SetVolume(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.volume = v
}

func (h *fakeHandle) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

func (h *fakeHandle) isPaused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

type fakeTransport struct {
	mu      sync.Mutex
	handles []*fakeHandle
	fail    map[string]error
	delay   time.Duration
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{fail: make(map[string]error)}
}

func (f *fakeTransport) Open(_ context.Context, ref StreamRef, opts OpenOptions) (TransportHandle, error) {
	f.mu.Lock()
	delay := f.delay
	f.mu.Unlock()
	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[ref.URL]; ok {
		return nil, err
	}
	h := &fakeHandle{ref: ref, opts: opts, done: make(chan error, 1), volume: opts.Volume}
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *fakeTransport) setDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

func (f *fakeTransport) opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

func (f *fakeTransport) last() *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handles) == 0 {
		return nil
	}
	return f.handles[len(f.handles)-1]
}

func (f *fakeTransport) handle(i int) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[i]
}

// --- resolver ---

type fakeResolver struct {
	mu      sync.Mutex
	results map[string]*Track
	calls   []string
}

func (r *fakeResolver) Resolve(_ context.Context, query string) (*Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, query)
	if t, ok := r.results[query]; ok {
		return t, nil
	}
	return nil, errors.New("no results")
}

// --- segments ---

type fakeSegments map[string][]Segment

func (f fakeSegments) SkipSegments(_ context.Context, pageURL string) []Segment {
	return f[pageURL]
}

// --- notifier ---

type fakeNotifier struct {
	mu       sync.Mutex
	failures []error
	failed   []*Track
	ended    int
}

func (n *fakeNotifier) TrackFailed(t *Track, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, t)
	n.failures = append(n.failures, err)
}

func (n *fakeNotifier) QueueEnded() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended++
}

func (n *fakeNotifier) failureCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.failures)
}

func (n *fakeNotifier) endedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ended
}

// --- display surface ---

type fakeSurface struct {
	fakeNotifier

	mu      sync.Mutex
	nextID  snowflake.ID
	sent    []MessageRef
	edits   map[snowflake.ID]int
	deleted []MessageRef
	frames  []NowPlaying
	editErr func(n int) error
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{nextID: 100, edits: make(map[snowflake.ID]int)}
}

func (s *fakeSurface) Send(_ context.Context, np NowPlaying) (MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ref := MessageRef{ChannelID: 1, MessageID: s.nextID}
	s.sent = append(s.sent, ref)
	s.frames = append(s.frames, np)
	return ref, nil
}

func (s *fakeSurface) Edit(_ context.Context, ref MessageRef, np NowPlaying) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits[ref.MessageID]++
	if s.editErr != nil {
		if err := s.editErr(s.edits[ref.MessageID]); err != nil {
			return err
		}
	}
	s.frames = append(s.frames, np)
	return nil
}

func (s *fakeSurface) Delete(_ context.Context, ref MessageRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, ref)
	return nil
}

func (s *fakeSurface) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSurface) editCount(id snowflake.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edits[id]
}

func (s *fakeSurface) deletedRefs() []MessageRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MessageRef(nil), s.deleted...)
}

func (s *fakeSurface) lastFrame() NowPlaying {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[len(s.frames)-1]
}

// --- playhead ---

type fakePlayhead struct {
	mu      sync.Mutex
	state   State
	track   *Track
	elapsed time.Duration
}

func (p *fakePlayhead) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePlayhead) Current() *Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.track
}

func (p *fakePlayhead) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsed
}

func (p *fakePlayhead) set(state State, t *Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
	p.track = t
}

// --- tracks ---

func resolved(name string, requester snowflake.ID) *Track {
	t := NewResolvedTrack(StreamRef{URL: "stream://" + name, PageURL: "https://example.com/" + name}, name, "artist", 100*time.Second)
	t.RequesterID = requester
	return t
}

func titles(ts []*Track) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Title
	}
	return out
}
