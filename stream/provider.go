package stream

import (
	"context"
	"io"
	"sync"
	"time"
)

var (
	// OpusSilence is the canonical silent opus frame.
	OpusSilence = []byte{0xf8, 0xff, 0xfe}

	// SilenceTail is how long silence is sent after the last frame so the
	// receiving side's jitter buffer drains.
	SilenceTail = 200 * time.Millisecond
)

// gate blocks while paused.
type gate struct {
	mu   sync.Mutex
	open chan struct{}
}

func newGate() *gate {
	g := &gate{open: make(chan struct{})}
	close(g.open)
	return g
}

func (g *gate) set(paused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.open:
		if paused {
			g.open = make(chan struct{})
		}
	default:
		if !paused {
			close(g.open)
		}
	}
}

func (g *gate) wait() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// FrameProvider feeds opus frames to a voice connection. A nil frame
// marks the end of input; after a short silence tail the provider reports
// io.EOF and calls OnFinish once.
type FrameProvider struct {
	frames   chan []byte
	ctx      context.Context
	gate     *gate
	OnFinish func()
	once     sync.Once

	draining      bool
	silenceFrames int
}

func NewFrameProvider(ctx context.Context) *FrameProvider {
	return &FrameProvider{
		frames: make(chan []byte, 100),
		ctx:    ctx,
		gate:   newGate(),
	}
}

// SetPaused holds frames back without dropping them.
func (p *FrameProvider) SetPaused(paused bool) {
	p.gate.set(paused)
}

// PushFrame blocks until the frame is buffered or the stream is cancelled.
func (p *FrameProvider) PushFrame(f []byte) {
	select {
	case p.frames <- f:
	case <-p.ctx.Done():
	}
}

func (p *FrameProvider) finish() {
	p.once.Do(func() {
		if p.OnFinish != nil {
			p.OnFinish()
		}
	})
}

func (p *FrameProvider) ProvideOpusFrame() ([]byte, error) {
	select {
	case <-p.gate.wait():
	case <-p.ctx.Done():
		return nil, io.EOF
	}

	if p.draining {
		if p.silenceFrames < int(SilenceTail/(20*time.Millisecond)) {
			p.silenceFrames++
			return OpusSilence, nil
		}
		p.finish()
		return nil, io.EOF
	}

	select {
	case f := <-p.frames:
		if f == nil {
			p.draining = true
			return OpusSilence, nil
		}
		return f, nil
	case <-p.ctx.Done():
		return nil, io.EOF
	case <-time.After(500 * time.Millisecond):
		return OpusSilence, nil
	}
}

// Close satisfies voice.OpusFrameProvider.
func (p *FrameProvider) Close() {}
