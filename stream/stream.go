package stream

import (
	"context"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
	"github.com/samber/lo"
)

// Decoder turns raw audio from r into opus frames passed to push.
type Decoder func(ctx context.Context, r io.Reader, volume *atomic.Int32, push func([]byte)) error

// Stream is one open track: a source piped through a decoder into a
// FrameProvider. It implements proc.TransportHandle.
type Stream struct {
	ref      proc.StreamRef
	cancel   context.CancelFunc
	done     chan error
	finished chan struct{}
	once     sync.Once
	volume   atomic.Int32
	provider *FrameProvider
}

// Start launches the pipeline. The stream lives until the input is played
// out, it fails, Stop is called or parent is cancelled.
func Start(parent context.Context, ref proc.StreamRef, opts proc.OpenOptions, src Source, dec Decoder) *Stream {
	ctx, cancel := context.WithCancel(parent)
	s := &Stream{
		ref:      ref,
		cancel:   cancel,
		done:     make(chan error, 1),
		finished: make(chan struct{}),
		provider: NewFrameProvider(ctx),
	}
	s.volume.Store(gainPercent(opts.Volume))
	s.provider.OnFinish = func() { s.finish(nil) }

	pr, pw := io.Pipe()
	sys.SafeGo(func() {
		err := src(ctx, ref.URL, opts.Offset, pw)
		if err != nil && ctx.Err() == nil {
			sys.LogVoice(sys.MsgVoicePipeError, ref.URL, err)
		}
		pw.CloseWithError(err)
	})
	sys.SafeGo(func() {
		err := dec(ctx, pr, &s.volume, s.provider.PushFrame)
		_ = pr.CloseWithError(io.ErrClosedPipe)
		if ctx.Err() != nil {
			s.finish(nil)
			return
		}
		if err != nil {
			sys.LogVoice(sys.MsgVoiceTranscodeError, ref.URL, err)
			s.finish(err)
			return
		}
		s.provider.PushFrame(nil)
	})
	return s
}

func (s *Stream) finish(err error) {
	s.once.Do(func() {
		s.done <- err
		close(s.finished)
		s.cancel()
	})
}

// Provider is what the voice connection reads from.
func (s *Stream) Provider() *FrameProvider { return s.provider }

func (s *Stream) Done() <-chan error { return s.done }

// Finished is closed once the stream has ended for any reason.
func (s *Stream) Finished() <-chan struct{} { return s.finished }

func (s *Stream) Stop() { s.finish(nil) }

func (s *Stream) SetPaused(paused bool) { s.provider.SetPaused(paused) }

func (s *Stream) SetVolume(volume float64) { s.volume.Store(gainPercent(volume)) }

// Volume is the current gain in percent.
func (s *Stream) Volume() int32 { return s.volume.Load() }

func gainPercent(v float64) int32 {
	return int32(math.Round(lo.Clamp(v, proc.MinVolume, proc.MaxVolume) * 100))
}
