package proc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"
)

// MessageRef points at a rendered now playing message.
type MessageRef struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
}

// NowPlaying is the render state pushed to a DisplaySurface on every tick.
type NowPlaying struct {
	Track    *Track
	Elapsed  time.Duration
	Frame    int
	Next     *Track
	QueueLen int
	Loop     bool
	Paused   bool
	Volume   float64
}

// Progress returns the played fraction, or -1 when the duration is unknown.
func (np NowPlaying) Progress() float64 {
	if np.Track == nil || np.Track.Duration <= 0 {
		return -1
	}
	return min(float64(np.Elapsed)/float64(np.Track.Duration), 1)
}

// Remaining is zero when the duration is unknown.
func (np NowPlaying) Remaining() time.Duration {
	if np.Track == nil || np.Track.Duration <= 0 {
		return 0
	}
	return max(np.Track.Duration-np.Elapsed, 0)
}

// DisplaySurface sends and updates the now playing message. Edit returns
// ErrDisplaySurfaceNotFound when the message is gone and *RateLimitError
// when the platform throttles.
type DisplaySurface interface {
	Send(ctx context.Context, np NowPlaying) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, np NowPlaying) error
	Delete(ctx context.Context, ref MessageRef) error
}

// Playhead exposes the position of the session a presenter follows.
type Playhead interface {
	State() State
	Current() *Track
	Elapsed() time.Duration
}

// PresenterOptions configure a NowPlayingPresenter.
type PresenterOptions struct {
	Interval time.Duration
	Backoff  time.Duration
}

// NowPlayingPresenter keeps at most one refreshing now playing message per
// room. Activating it again supersedes the previous message.
type NowPlayingPresenter struct {
	queue    *GuildQueue
	interval time.Duration
	backoff  time.Duration

	mu       sync.Mutex
	surface  DisplaySurface
	playhead Playhead
	track    *Track
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewNowPlayingPresenter creates an inactive presenter.
func NewNowPlayingPresenter(queue *GuildQueue, surface DisplaySurface, opts PresenterOptions) *NowPlayingPresenter {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 4 * time.Second
	}
	return &NowPlayingPresenter{
		queue:    queue,
		surface:  surface,
		interval: opts.Interval,
		backoff:  opts.Backoff,
	}
}

// Bind attaches the playhead to follow. It is set once by the registry.
func (p *NowPlayingPresenter) Bind(ph Playhead) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playhead = ph
}

// SetSurface redirects future activations, e.g. to another channel.
func (p *NowPlayingPresenter) SetSurface(s DisplaySurface) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.surface = s
}

// Activate deactivates any running presenter, then starts a new one bound
// to t.
func (p *NowPlayingPresenter) Activate(t *Track) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	if p.surface == nil || p.playhead == nil || t == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.track = t
	p.cancel = cancel
	p.done = done
	go p.run(ctx, done, p.surface, p.playhead, t)
}

// Deactivate stops updates and removes the message on a best-effort basis.
func (p *NowPlayingPresenter) Deactivate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Active reports whether a refresh loop is running.
func (p *NowPlayingPresenter) Active() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Track is the track the running presenter is bound to.
func (p *NowPlayingPresenter) Track() *Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.track
}

// stopLocked cancels the running loop and waits for it to exit, so two
// loops never render at the same time.
func (p *NowPlayingPresenter) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	p.cancel = nil
	p.done = nil
	p.track = nil
}

// Snapshot builds the render state for t at the given animation frame.
func (p *NowPlayingPresenter) Snapshot(ph Playhead, t *Track, frame int) NowPlaying {
	qs := p.queue.Snapshot()
	np := NowPlaying{
		Track:    t,
		Elapsed:  ph.Elapsed(),
		Frame:    frame,
		QueueLen: len(qs.Pending),
		Loop:     qs.Loop,
		Paused:   ph.State() == Paused,
		Volume:   qs.Volume,
	}
	np.Next = p.queue.PeekNext()
	return np
}

func (p *NowPlayingPresenter) run(ctx context.Context, done chan struct{}, surface DisplaySurface, ph Playhead, t *Track) {
	var ref MessageRef
	sent, gone := false, false
	defer func() {
		close(done)
		if sent && !gone {
			go func() {
				dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = surface.Delete(dctx, ref)
			}()
		}
	}()

	for !sent {
		r, err := surface.Send(ctx, p.Snapshot(ph, t, 0))
		switch {
		case err == nil:
			ref, sent = r, true
		case ctx.Err() != nil:
			return
		case !p.wait(ctx, err):
			logPresenter("Failed to send now playing message: %v", err)
			return
		}
	}

	limiter := rate.NewLimiter(rate.Every(p.interval), 1)
	_ = limiter.Wait(ctx)

	for frame := 1; ; frame++ {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if ph.State() == Idle {
			return
		}
		if cur := ph.Current(); cur == nil || cur.ID != t.ID {
			return
		}

		err := p.tick(ctx, surface, ph, ref, t, frame)
		switch {
		case err == nil:
		case errors.Is(err, ErrDisplaySurfaceNotFound):
			gone = true
			return
		case ctx.Err() != nil:
			return
		case !p.wait(ctx, err):
			logPresenter("Now playing update failed: %v", err)
		}
	}
}

// tick renders one frame. A panic ends only this iteration.
func (p *NowPlayingPresenter) tick(ctx context.Context, surface DisplaySurface, ph Playhead, ref MessageRef, t *Track, frame int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("Panic recovered in now playing update: %v", r))
			err = nil
		}
	}()
	return surface.Edit(ctx, ref, p.Snapshot(ph, t, frame))
}

// wait sleeps through a rate limit. It returns false for other errors.
func (p *NowPlayingPresenter) wait(ctx context.Context, err error) bool {
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		return false
	}
	d := rl.RetryAfter
	if d <= 0 {
		d = p.backoff
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
	return true
}
