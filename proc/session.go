package proc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// State of a PlaybackSession.
type State int

const (
	Idle State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "idle"
}

// OpenOptions are applied when the transport opens a stream.
type OpenOptions struct {
	Offset time.Duration
	Volume float64
}

// Transport opens audio streams into a room's voice connection.
type Transport interface {
	Open(ctx context.Context, ref StreamRef, opts OpenOptions) (TransportHandle, error)
}

// TransportHandle is one open stream. Done delivers exactly one value:
// nil when the stream ended, the failure otherwise. Stop also ends the
// stream and still delivers on Done.
type TransportHandle interface {
	Done() <-chan error
	Stop()
	SetPaused(paused bool)
	SetVolume(volume float64)
}

// Resolver turns a query or URL into a resolved track.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*Track, error)
}

// SegmentSource returns skip segments for a page URL. Failures yield an
// empty list.
type SegmentSource interface {
	SkipSegments(ctx context.Context, pageURL string) []Segment
}

// Notifier receives session events that must be shown to the room.
type Notifier interface {
	TrackFailed(t *Track, err error)
	QueueEnded()
}

// SessionOptions configure a PlaybackSession.
type SessionOptions struct {
	Resolver       Resolver
	Segments       SegmentSource
	Notifier       Notifier
	Presenter      *NowPlayingPresenter
	Clock          func() time.Time
	ResolveTimeout time.Duration
	SegmentTimeout time.Duration
	// SegmentPoll is the segment check interval; zero disables the poller.
	SegmentPoll time.Duration
}

// PlaybackSession drives one room: it owns the transport handle and walks
// the queue on finish, skip, and failure.
type PlaybackSession struct {
	guildID   snowflake.ID
	queue     *GuildQueue
	transport Transport
	opts      SessionOptions

	ctx    context.Context
	cancel context.CancelFunc

	// opMu serializes transitions; mu guards the fields below it and is
	// never held across I/O.
	opMu sync.Mutex

	mu        sync.Mutex
	state     State
	seq       uint64
	handle    TransportHandle
	track     *Track
	startedAt time.Time
	pausedAt  time.Time
	cursor    SegmentCursor
	closed    bool
}

// NewPlaybackSession creates an idle session for guildID.
func NewPlaybackSession(guildID snowflake.ID, queue *GuildQueue, transport Transport, opts SessionOptions) *PlaybackSession {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = 30 * time.Second
	}
	if opts.SegmentTimeout <= 0 {
		opts.SegmentTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &PlaybackSession{
		guildID:   guildID,
		queue:     queue,
		transport: transport,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
	}
	if opts.SegmentPoll > 0 {
		go s.pollSegments(opts.SegmentPoll)
	}
	return s
}

// ===========================
// Transitions
// ===========================

// Start begins playback from the queue when the session is idle. It
// returns the track now playing, or ErrEmptyQueue when every queued track
// was consumed without one starting.
func (s *PlaybackSession) Start(ctx context.Context) (*Track, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.state != Idle {
		t := s.track
		s.mu.Unlock()
		return t, nil
	}
	s.mu.Unlock()

	if t := s.advance(ctx); t != nil {
		return t, nil
	}
	return nil, ErrEmptyQueue
}

// Skip stops the current track and advances exactly once. When a finish
// notification already advanced past the track the caller saw, Skip does
// nothing. The returned track is nil when the queue ran out.
func (s *PlaybackSession) Skip(ctx context.Context) (*Track, error) {
	s.mu.Lock()
	token := s.seq
	s.mu.Unlock()
	return s.SkipFrom(ctx, token)
}

// SkipFrom skips only if the session is still on the playback identified
// by token (see Token).
func (s *PlaybackSession) SkipFrom(ctx context.Context, token uint64) (*Track, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.state == Idle {
		s.mu.Unlock()
		return nil, ErrNotPlaying
	}
	if s.seq != token {
		t := s.track
		s.mu.Unlock()
		return t, nil
	}
	h := s.releaseLocked()
	s.mu.Unlock()

	if h != nil {
		h.Stop()
	}
	return s.advance(ctx), nil
}

// Stop halts playback without advancing the queue. The session can be
// started again unless it was closed.
func (s *PlaybackSession) Stop() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	h := s.releaseLocked()
	s.mu.Unlock()

	if h != nil {
		h.Stop()
	}
	if p := s.opts.Presenter; p != nil {
		p.Deactivate()
	}
}

// Pause holds the stream in place.
func (s *PlaybackSession) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Idle:
		return ErrNotPlaying
	case Paused:
		return ErrAlreadyPaused
	}
	if s.handle != nil {
		s.handle.SetPaused(true)
	}
	s.pausedAt = s.opts.Clock()
	s.state = Paused
	return nil
}

// Resume continues a paused stream and shifts the clock by the pause length.
func (s *PlaybackSession) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Idle:
		return ErrNotPlaying
	case Playing:
		return ErrAlreadyPlaying
	}
	s.startedAt = s.startedAt.Add(s.opts.Clock().Sub(s.pausedAt))
	s.pausedAt = time.Time{}
	if s.handle != nil {
		s.handle.SetPaused(false)
	}
	s.state = Playing
	return nil
}

// FastForward restarts the current track d further along.
func (s *PlaybackSession) FastForward(ctx context.Context, d time.Duration) (time.Duration, error) {
	return s.SeekTo(ctx, s.Elapsed()+d)
}

// SeekTo restarts the current track at offset. Seeking to or past the end of
// a track with known duration skips it.
func (s *PlaybackSession) SeekTo(ctx context.Context, offset time.Duration) (time.Duration, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state == Idle || s.track == nil {
		s.mu.Unlock()
		return 0, ErrNotPlaying
	}
	token := s.seq
	s.mu.Unlock()

	return s.restartAt(ctx, token, max(offset, 0), true)
}

// SetVolume applies v to the queue and to the open stream.
func (s *PlaybackSession) SetVolume(v float64) float64 {
	v = s.queue.SetVolume(v)
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h != nil {
		h.SetVolume(v)
	}
	return v
}

// Close stops playback for good. Pending finish notifications are ignored.
// Disconnects go through here via SessionRegistry.Remove.
func (s *PlaybackSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.Stop()
}

// ===========================
// Position
// ===========================

func (s *PlaybackSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current is the track bound to the open stream, nil when idle.
func (s *PlaybackSession) Current() *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return nil
	}
	return s.track
}

// Playback returns the current track together with its token, read
// atomically so a later SkipFrom acts on exactly that track.
func (s *PlaybackSession) Playback() (*Track, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return nil, s.seq
	}
	return s.track, s.seq
}

// Token identifies the current playback; it changes on every start, seek,
// skip, and stop.
func (s *PlaybackSession) Token() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Elapsed is now minus the adjusted start time, clamped to the track length.
func (s *PlaybackSession) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *PlaybackSession) elapsedLocked() time.Duration {
	var e time.Duration
	switch s.state {
	case Idle:
		return 0
	case Paused:
		e = s.pausedAt.Sub(s.startedAt)
	default:
		e = s.opts.Clock().Sub(s.startedAt)
	}
	if e < 0 {
		e = 0
	}
	if s.track != nil && s.track.Duration > 0 && e > s.track.Duration {
		e = s.track.Duration
	}
	return e
}

// CheckSegments jumps past the skip segment the playhead has entered.
// It reports whether a jump happened.
func (s *PlaybackSession) CheckSegments(ctx context.Context) bool {
	s.mu.Lock()
	if s.state != Playing {
		s.mu.Unlock()
		return false
	}
	seg, hit := s.cursor.Check(s.elapsedLocked())
	token := s.seq
	title := s.track.Title
	s.mu.Unlock()

	if !hit {
		return false
	}

	logQueue("Skipping %s segment (%s-%s) in %q", seg.Category, seg.Start, seg.End, title)

	s.opMu.Lock()
	defer s.opMu.Unlock()
	_, err := s.restartAt(ctx, token, seg.End, false)
	return err == nil
}

func (s *PlaybackSession) pollSegments(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.CheckSegments(s.ctx)
		}
	}
}

// ===========================
// Internals
// ===========================

// releaseLocked invalidates the current playback and detaches its handle.
func (s *PlaybackSession) releaseLocked() TransportHandle {
	h := s.detachLocked()
	s.state = Idle
	s.pausedAt = time.Time{}
	return h
}

// detachLocked invalidates the current handle but keeps the session
// Playing or Paused, so a restart never looks like the end of playback.
func (s *PlaybackSession) detachLocked() TransportHandle {
	s.seq++
	h := s.handle
	s.handle = nil
	return h
}

// advance dequeues until a track starts or the queue runs out. Every
// failure is reported once and the failed track is never retried.
// Callers hold opMu.
func (s *PlaybackSession) advance(ctx context.Context) *Track {
	for {
		if ctx.Err() != nil || s.ctx.Err() != nil {
			return nil
		}

		next := s.queue.DequeueNext()
		if next == nil {
			s.mu.Lock()
			s.track = nil
			s.mu.Unlock()
			if p := s.opts.Presenter; p != nil {
				p.Deactivate()
			}
			logQueue("Queue ended in guild %s", s.guildID)
			if n := s.opts.Notifier; n != nil {
				n.QueueEnded()
			}
			return nil
		}

		started, err := s.start(ctx, next)
		if err == nil {
			return started
		}

		s.queue.DropCurrent()
		s.report(next, err)
	}
}

// start resolves t when needed, opens the transport and hands the track to
// the presenter.
func (s *PlaybackSession) start(ctx context.Context, t *Track) (*Track, error) {
	if t.Kind() == Deferred {
		if s.opts.Resolver == nil {
			return nil, &ResolutionError{Query: t.Query(), Err: errors.New("no resolver configured")}
		}
		rctx, cancel := context.WithTimeout(ctx, s.opts.ResolveTimeout)
		r, err := s.opts.Resolver.Resolve(rctx, t.Query())
		cancel()
		if err == nil && (r == nil || r.Stream == nil) {
			err = errors.New("resolver returned no stream")
		}
		if err != nil {
			return nil, &ResolutionError{Query: t.Query(), Err: err}
		}
		t = t.WithResolution(r)
	}

	if len(t.Segments) == 0 && s.opts.Segments != nil && t.PageURL != "" {
		sctx, cancel := context.WithTimeout(ctx, s.opts.SegmentTimeout)
		t = t.WithSegments(NewSegmentList(s.opts.Segments.SkipSegments(sctx, t.PageURL)))
		cancel()
	}
	s.queue.ReplaceCurrent(t)

	if err := s.open(ctx, t, 0, true); err != nil {
		return nil, err
	}

	logQueue("Now playing %q in guild %s", t.Title, s.guildID)
	if p := s.opts.Presenter; p != nil {
		p.Activate(t)
	}
	return t, nil
}

// open starts a stream for t at offset and arms the finish watcher. fresh
// arms the segment cursor for a new play of t; otherwise the stream
// restarts in whatever Playing or Paused state the session is in.
// Callers hold opMu.
func (s *PlaybackSession) open(ctx context.Context, t *Track, offset time.Duration, fresh bool) error {
	h, err := s.transport.Open(ctx, *t.Stream, OpenOptions{Offset: offset, Volume: s.queue.Volume()})
	if err != nil {
		return &TransportError{Title: t.Title, Err: err}
	}

	now := s.opts.Clock()
	s.mu.Lock()
	paused := !fresh && s.state == Paused
	s.seq++
	seq := s.seq
	s.handle = h
	s.track = t
	s.startedAt = now.Add(-offset)
	s.state = Playing
	if fresh {
		s.cursor = NewSegmentCursor(t.Segments, offset)
	}
	if paused {
		h.SetPaused(true)
		s.pausedAt = now
		s.state = Paused
	}
	s.mu.Unlock()

	go s.watch(seq, h)
	return nil
}

// restartAt reopens the current track at offset if token still matches.
// userSeek re-arms segments relative to the new position; segment jumps
// leave the cursor where it is. Callers hold opMu.
func (s *PlaybackSession) restartAt(ctx context.Context, token uint64, offset time.Duration, userSeek bool) (time.Duration, error) {
	s.mu.Lock()
	if s.seq != token || s.state == Idle || s.track == nil {
		s.mu.Unlock()
		return 0, ErrNotPlaying
	}
	t := s.track

	if t.Duration > 0 && offset >= t.Duration {
		h := s.releaseLocked()
		s.mu.Unlock()
		if h != nil {
			h.Stop()
		}
		s.advance(ctx)
		return t.Duration, nil
	}

	if userSeek {
		s.cursor.Reset(offset)
	}
	h := s.detachLocked()
	s.mu.Unlock()
	if h != nil {
		h.Stop()
	}

	if err := s.open(ctx, t, offset, false); err != nil {
		s.mu.Lock()
		s.releaseLocked()
		s.mu.Unlock()
		s.queue.DropCurrent()
		s.report(t, err)
		s.advance(ctx)
		return 0, err
	}
	return offset, nil
}

// watch waits for the handle's single completion. Only the playback that
// still owns the sequence token may advance the queue.
func (s *PlaybackSession) watch(seq uint64, h TransportHandle) {
	var err error
	select {
	case err = <-h.Done():
	case <-s.ctx.Done():
		return
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed || s.seq != seq {
		s.mu.Unlock()
		return
	}
	t := s.track
	s.releaseLocked()
	s.mu.Unlock()

	if err != nil {
		s.queue.DropCurrent()
		s.report(t, &TransportError{Title: t.Title, Err: err})
	}
	s.advance(s.ctx)
}

func (s *PlaybackSession) report(t *Track, err error) {
	logQueue("Track %q failed in guild %s: %v", t.Title, s.guildID, err)
	if n := s.opts.Notifier; n != nil {
		n.TrackFailed(t, err)
	}
}
