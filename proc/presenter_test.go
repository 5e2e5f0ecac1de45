package proc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPresenter(t *testing.T, surface *fakeSurface, ph *fakePlayhead) (*NowPlayingPresenter, *GuildQueue) {
	t.Helper()
	q := NewGuildQueue(1.0, nil)
	p := NewNowPlayingPresenter(q, surface, PresenterOptions{Interval: 10 * time.Millisecond, Backoff: 10 * time.Millisecond})
	p.Bind(ph)
	t.Cleanup(p.Deactivate)
	return p, q
}

func TestPresenter_SendsThenEdits(t *testing.T) {
	surface := newFakeSurface()
	track := resolved("A", 1)
	ph := &fakePlayhead{}
	ph.set(Playing, track)
	p, _ := newTestPresenter(t, surface, ph)

	p.Activate(track)
	assert.True(t, p.Active())
	assert.Same(t, track, p.Track())

	eventually(t, func() bool { return surface.editCount(101) >= 3 })
	assert.Equal(t, 1, surface.sentCount())
	assert.Greater(t, surface.lastFrame().Frame, 1)
}

func TestPresenter_ActivateSupersedes(t *testing.T) {
	surface := newFakeSurface()
	a, b := resolved("A", 1), resolved("B", 1)
	ph := &fakePlayhead{}
	ph.set(Playing, a)
	p, _ := newTestPresenter(t, surface, ph)

	p.Activate(a)
	eventually(t, func() bool { return surface.editCount(101) >= 1 })

	ph.set(Playing, b)
	p.Activate(b)
	eventually(t, func() bool { return surface.sentCount() == 2 })
	eventually(t, func() bool { return len(surface.deletedRefs()) == 1 })
	assert.Equal(t, MessageRef{ChannelID: 1, MessageID: 101}, surface.deletedRefs()[0])

	frozen := surface.editCount(101)
	eventually(t, func() bool { return surface.editCount(102) >= 2 })
	assert.Equal(t, frozen, surface.editCount(101), "the superseded message stops updating")
	assert.Same(t, b, p.Track())
}

func TestPresenter_StopsWhenMessageDeleted(t *testing.T) {
	surface := newFakeSurface()
	surface.editErr = func(int) error { return ErrDisplaySurfaceNotFound }
	track := resolved("A", 1)
	ph := &fakePlayhead{}
	ph.set(Playing, track)
	p, _ := newTestPresenter(t, surface, ph)

	p.Activate(track)
	eventually(t, func() bool { return !p.Active() })

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, surface.editCount(101))
	assert.Empty(t, surface.deletedRefs(), "a deleted message is not deleted again")
}

func TestPresenter_RetriesAfterRateLimit(t *testing.T) {
	surface := newFakeSurface()
	surface.editErr = func(n int) error {
		if n == 1 {
			return &RateLimitError{RetryAfter: 20 * time.Millisecond}
		}
		return nil
	}
	track := resolved("A", 1)
	ph := &fakePlayhead{}
	ph.set(Playing, track)
	p, _ := newTestPresenter(t, surface, ph)

	p.Activate(track)
	eventually(t, func() bool { return surface.editCount(101) >= 3 })
	assert.True(t, p.Active())
}

func TestPresenter_EndsWhenPlaybackStops(t *testing.T) {
	surface := newFakeSurface()
	track := resolved("A", 1)
	ph := &fakePlayhead{}
	ph.set(Playing, track)
	p, _ := newTestPresenter(t, surface, ph)

	p.Activate(track)
	eventually(t, func() bool { return surface.editCount(101) >= 1 })

	ph.set(Idle, nil)
	eventually(t, func() bool { return !p.Active() })
	eventually(t, func() bool { return len(surface.deletedRefs()) == 1 })
}

func TestPresenter_EndsWhenTrackChanges(t *testing.T) {
	surface := newFakeSurface()
	track := resolved("A", 1)
	ph := &fakePlayhead{}
	ph.set(Playing, track)
	p, _ := newTestPresenter(t, surface, ph)

	p.Activate(track)
	ph.set(Playing, resolved("B", 1))
	eventually(t, func() bool { return !p.Active() })
}

func TestPresenter_DeactivateDeletesMessage(t *testing.T) {
	surface := newFakeSurface()
	track := resolved("A", 1)
	ph := &fakePlayhead{}
	ph.set(Playing, track)
	p, _ := newTestPresenter(t, surface, ph)

	p.Activate(track)
	eventually(t, func() bool { return surface.sentCount() == 1 })

	p.Deactivate()
	assert.False(t, p.Active())
	assert.Nil(t, p.Track())
	eventually(t, func() bool { return len(surface.deletedRefs()) == 1 })
}

func TestPresenter_ActivateWithoutSurface(t *testing.T) {
	q := NewGuildQueue(1.0, nil)
	p := NewNowPlayingPresenter(q, nil, PresenterOptions{})
	p.Bind(&fakePlayhead{})

	p.Activate(resolved("A", 1))
	assert.False(t, p.Active())
}

func TestPresenter_Snapshot(t *testing.T) {
	surface := newFakeSurface()
	a := resolved("A", 1)
	ph := &fakePlayhead{elapsed: 25 * time.Second}
	ph.set(Paused, a)
	p, q := newTestPresenter(t, surface, ph)
	q.Enqueue(resolved("B", 1), false)
	q.Enqueue(resolved("C", 1), false)
	q.SetLoop(true)

	np := p.Snapshot(ph, a, 7)
	require.NotNil(t, np.Next)
	assert.Equal(t, "B", np.Next.Title)
	assert.Equal(t, 2, np.QueueLen)
	assert.Equal(t, 7, np.Frame)
	assert.True(t, np.Paused)
	assert.True(t, np.Loop)
	assert.Equal(t, 25*time.Second, np.Elapsed)
	assert.InDelta(t, 0.25, np.Progress(), 1e-9)
	assert.Equal(t, 75*time.Second, np.Remaining())
}

func TestNowPlaying_UnknownDuration(t *testing.T) {
	live := resolved("live", 1)
	live.Duration = 0
	np := NowPlaying{Track: live, Elapsed: time.Minute}

	assert.Equal(t, -1.0, np.Progress())
	assert.Zero(t, np.Remaining())
}
