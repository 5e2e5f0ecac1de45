package stream

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leeineian/jukebox/proc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineSource writes its payload and returns.
func lineSource(payload string, err error) Source {
	return func(ctx context.Context, u string, offset time.Duration, w io.Writer) error {
		if _, werr := io.WriteString(w, payload); werr != nil {
			return nil
		}
		return err
	}
}

// byteDecoder emits one frame per input byte.
func byteDecoder(ctx context.Context, r io.Reader, volume *atomic.Int32, push func([]byte)) error {
	buf := make([]byte, 1)
	for {
		_, err := r.Read(buf)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		push([]byte{buf[0]})
	}
}

func drain(t *testing.T, p *FrameProvider) (frames []byte) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("provider never finished")
		default:
		}
		f, err := p.ProvideOpusFrame()
		if err == io.EOF {
			return frames
		}
		require.NoError(t, err)
		if len(f) == 1 {
			frames = append(frames, f[0])
		}
	}
}

func TestStream_PlaysToEnd(t *testing.T) {
	s := Start(context.Background(), proc.StreamRef{URL: "u"}, proc.OpenOptions{Volume: 1}, lineSource("abc", nil), byteDecoder)

	assert.Equal(t, []byte("abc"), drain(t, s.Provider()))
	select {
	case err := <-s.Done():
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("no completion")
	}
	<-s.Finished()
}

func TestStream_SourceFailureReported(t *testing.T) {
	s := Start(context.Background(), proc.StreamRef{URL: "u"}, proc.OpenOptions{}, lineSource("", errors.New("403 Forbidden")), byteDecoder)
	select {
	case err := <-s.Done():
		assert.EqualError(t, err, "403 Forbidden")
	case <-time.After(time.Second):
		t.Fatal("no completion")
	}
}

func TestStream_StopDeliversOnce(t *testing.T) {
	block := func(ctx context.Context, u string, offset time.Duration, w io.Writer) error {
		<-ctx.Done()
		return nil
	}
	s := Start(context.Background(), proc.StreamRef{URL: "u"}, proc.OpenOptions{}, block, byteDecoder)
	s.Stop()
	s.Stop()

	assert.NoError(t, <-s.Done())
	select {
	case <-s.Done():
		t.Fatal("second completion")
	case <-time.After(20 * time.Millisecond):
	}
	_, err := s.Provider().ProvideOpusFrame()
	assert.Equal(t, io.EOF, err)
}

func TestStream_PassesOffset(t *testing.T) {
	got := make(chan time.Duration, 1)
	src := func(ctx context.Context, u string, offset time.Duration, w io.Writer) error {
		got <- offset
		return nil
	}
	s := Start(context.Background(), proc.StreamRef{URL: "u"}, proc.OpenOptions{Offset: 42 * time.Second}, src, byteDecoder)
	defer s.Stop()
	assert.Equal(t, 42*time.Second, <-got)
}

func TestStream_Volume(t *testing.T) {
	block := func(ctx context.Context, u string, offset time.Duration, w io.Writer) error {
		<-ctx.Done()
		return nil
	}
	s := Start(context.Background(), proc.StreamRef{}, proc.OpenOptions{Volume: 0.5}, block, byteDecoder)
	defer s.Stop()
	assert.Equal(t, int32(50), s.Volume())
	s.SetVolume(1.5)
	assert.Equal(t, int32(150), s.Volume())
	s.SetVolume(9)
	assert.Equal(t, int32(200), s.Volume())
}

func TestFrameProvider_PauseHoldsFrames(t *testing.T) {
	p := NewFrameProvider(context.Background())
	p.PushFrame([]byte{1})
	p.SetPaused(true)

	got := make(chan []byte, 1)
	go func() {
		f, _ := p.ProvideOpusFrame()
		got <- f
	}()
	select {
	case <-got:
		t.Fatal("frame delivered while paused")
	case <-time.After(30 * time.Millisecond):
	}
	p.SetPaused(false)
	assert.Equal(t, []byte{1}, <-got)
}

func TestFrameProvider_SilenceTail(t *testing.T) {
	finished := 0
	p := NewFrameProvider(context.Background())
	p.OnFinish = func() { finished++ }
	go p.PushFrame(nil)

	silent := 0
	for {
		f, err := p.ProvideOpusFrame()
		if err == io.EOF {
			break
		}
		assert.Equal(t, OpusSilence, f)
		silent++
	}
	assert.Equal(t, 1+int(SilenceTail/(20*time.Millisecond)), silent)
	assert.Equal(t, 1, finished)
}

func TestApplyGain(t *testing.T) {
	// 1000 and -1000 little endian, then a sample that clips.
	data := []byte{0xe8, 0x03, 0x18, 0xfc, 0x00, 0x70}
	applyGain(data, 200)
	assert.Equal(t, []byte{0xd0, 0x07, 0x30, 0xf8, 0xff, 0x7f}, data)

	data = []byte{0xe8, 0x03}
	applyGain(data, 0)
	assert.Equal(t, []byte{0, 0}, data)
}

func TestSectionArgs(t *testing.T) {
	assert.Nil(t, sectionArgs(0))
	assert.Nil(t, sectionArgs(-time.Second))
	assert.Equal(t, []string{"--download-sections", "*75.500-inf"}, sectionArgs(75*time.Second+500*time.Millisecond))
}
