package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/asticode/go-astiav"
	"github.com/leeineian/jukebox/sys"
)

const (
	sampleRate  = 48000
	frameSize   = 960 // 20ms at 48kHz
	opusBitRate = 192000
)

// Transcoder decodes any audio input and re-encodes it to 20ms opus frames
// at 48kHz stereo, applying a live volume gain.
type Transcoder struct {
	inputCtx               *astiav.FormatContext
	ioCtx                  *astiav.IOContext
	decoderCtx, encoderCtx *astiav.CodecContext
	audioStreamIndex       int
	packet                 *astiav.Packet
	frame                  *astiav.Frame
	resampleCtx            *astiav.SoftwareResampleContext
	resampleFrame          *astiav.Frame
	fifo                   *astiav.AudioFifo
	reader                 io.Reader
	onFrame                func([]byte)
	pts                    int64
	volume                 *atomic.Int32 // percent, 100 = unity
}

func NewTranscoder(volume *atomic.Int32) *Transcoder {
	return &Transcoder{
		packet:        astiav.AllocPacket(),
		frame:         astiav.AllocFrame(),
		resampleFrame: astiav.AllocFrame(),
		volume:        volume,
	}
}

// OpenInput probes r. The reader is consumed sequentially.
func (t *Transcoder) OpenInput(r io.Reader) error {
	t.inputCtx = astiav.AllocFormatContext()
	if t.inputCtx == nil {
		return errors.New("failed to alloc ctx")
	}
	t.reader = r

	ioCtx, err := astiav.AllocIOContext(16*1024, false, func(b []byte) (int, error) {
		return t.reader.Read(b)
	}, nil, nil)
	if err != nil {
		return err
	}
	t.ioCtx = ioCtx
	t.inputCtx.SetPb(ioCtx)
	t.inputCtx.SetFlags(t.inputCtx.Flags().Add(astiav.FormatContextFlagCustomIo))

	opts := astiav.NewDictionary()
	defer opts.Free()
	opts.Set("probesize", "10000000", 0)
	opts.Set("analyzeduration", "10000000", 0)
	opts.Set("fflags", "nobuffer", 0)
	opts.Set("flags", "low_delay", 0)

	if err := t.inputCtx.OpenInput("", nil, opts); err != nil {
		return err
	}
	if err := t.inputCtx.FindStreamInfo(nil); err != nil {
		return err
	}
	t.audioStreamIndex = -1
	for _, s := range t.inputCtx.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			t.audioStreamIndex = s.Index()
			break
		}
	}
	if t.audioStreamIndex == -1 {
		return errors.New("no audio stream")
	}
	return nil
}

func (t *Transcoder) SetupDecoder() error {
	p := t.inputCtx.Streams()[t.audioStreamIndex].CodecParameters()
	d := astiav.FindDecoder(p.CodecID())
	if d == nil {
		return fmt.Errorf("no decoder for %s", p.CodecID())
	}
	t.decoderCtx = astiav.AllocCodecContext(d)
	_ = p.ToCodecContext(t.decoderCtx)
	return t.decoderCtx.Open(d, nil)
}

func (t *Transcoder) SetupEncoder() error {
	e := astiav.FindEncoderByName("libopus")
	if e == nil {
		e = astiav.FindEncoder(astiav.CodecIDOpus)
	}
	if e == nil {
		return errors.New("no opus encoder")
	}
	t.encoderCtx = astiav.AllocCodecContext(e)
	t.encoderCtx.SetBitRate(opusBitRate)
	t.encoderCtx.SetSampleRate(sampleRate)
	t.encoderCtx.SetChannelLayout(astiav.ChannelLayoutStereo)
	t.encoderCtx.SetSampleFormat(astiav.SampleFormatS16)
	t.encoderCtx.SetTimeBase(astiav.NewRational(1, sampleRate))
	o := astiav.NewDictionary()
	defer o.Free()
	o.Set("vbr", "on", 0)
	o.Set("compression_level", "10", 0)
	o.Set("frame_size", "20", 0)
	if err := t.encoderCtx.Open(e, o); err != nil {
		return err
	}
	t.resampleCtx = astiav.AllocSoftwareResampleContext()
	if t.resampleCtx == nil {
		return errors.New("failed to allocate resampler")
	}
	return nil
}

// Transcode runs until the input ends or ctx is cancelled, calling on for
// every encoded frame.
func (t *Transcoder) Transcode(ctx context.Context, on func([]byte)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transcoder panic: %v", r)
			sys.LogVoice("Transcoder panic recovered: %v", r)
		}
	}()

	defer t.packet.Unref()
	t.onFrame = on

	t.fifo = astiav.AllocAudioFifo(t.encoderCtx.SampleFormat(), t.encoderCtx.ChannelLayout().Channels(), frameSize*2)
	if t.fifo == nil {
		return errors.New("failed to alloc fifo")
	}
	defer func() {
		t.fifo.Free()
		t.fifo = nil
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.packet.Unref()
		if err := t.inputCtx.ReadFrame(t.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return err
		}
		if t.packet.StreamIndex() != t.audioStreamIndex {
			continue
		}
		if err := t.decoderCtx.SendPacket(t.packet); err != nil {
			return err
		}
		if err := t.drainDecoder(); err != nil {
			return err
		}
	}

	_ = t.decoderCtx.SendPacket(nil)
	if err := t.drainDecoder(); err != nil {
		return err
	}
	if err := t.processFifo(true); err != nil {
		return err
	}
	_ = t.encoderCtx.SendFrame(nil)
	t.receivePackets()
	return nil
}

func (t *Transcoder) drainDecoder() error {
	for {
		if err := t.decoderCtx.ReceiveFrame(t.frame); err != nil {
			return nil
		}
		err := t.pushToFifo()
		t.frame.Unref()
		if err != nil {
			return err
		}
	}
}

func (t *Transcoder) receivePackets() {
	for {
		t.packet.Unref()
		if t.encoderCtx.ReceivePacket(t.packet) != nil {
			return
		}
		if t.onFrame != nil {
			d := t.packet.Data()
			fd := make([]byte, len(d))
			copy(fd, d)
			t.onFrame(fd)
		}
	}
}

func (t *Transcoder) encodeAndWrite(f *astiav.Frame) error {
	if err := t.encoderCtx.SendFrame(f); err != nil {
		return err
	}
	t.receivePackets()
	return nil
}

func (t *Transcoder) pushToFifo() error {
	t.resampleFrame.Unref()
	t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
	t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
	t.resampleFrame.SetSampleRate(t.encoderCtx.SampleRate())
	nb := int(astiav.RescaleQ(int64(t.frame.NbSamples()), astiav.NewRational(1, t.frame.SampleRate()), astiav.NewRational(1, t.encoderCtx.SampleRate())))
	if nb <= 0 {
		return nil
	}
	t.resampleFrame.SetNbSamples(nb)
	_ = t.resampleFrame.AllocBuffer(0)
	if t.resampleCtx.ConvertFrame(t.frame, t.resampleFrame) == nil {
		_, _ = t.fifo.Write(t.resampleFrame)
		return t.processFifo(false)
	}
	return nil
}

func (t *Transcoder) processFifo(drain bool) error {
	if t.fifo == nil {
		return nil
	}
	for {
		sz := frameSize
		if t.fifo.Size() < sz {
			if !drain || t.fifo.Size() == 0 {
				return nil
			}
			sz = t.fifo.Size()
		}
		t.resampleFrame.Unref()
		t.resampleFrame.SetNbSamples(sz)
		t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
		t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
		t.resampleFrame.SetSampleRate(t.encoderCtx.SampleRate())
		_ = t.resampleFrame.AllocBuffer(0)
		_, _ = t.fifo.Read(t.resampleFrame)

		if t.volume != nil {
			if vol := t.volume.Load(); vol != 100 {
				data, _ := t.resampleFrame.Data().Bytes(1)
				limit := min(sz*4, len(data))
				applyGain(data[:limit], vol)
				_ = t.resampleFrame.Data().SetBytes(data, 1)
			}
		}

		t.resampleFrame.SetPts(t.pts)
		t.pts += int64(sz)
		if err := t.encodeAndWrite(t.resampleFrame); err != nil {
			return err
		}
	}
}

// applyGain scales interleaved little-endian S16 samples in place by
// percent/100, clipping at the sample range.
func applyGain(data []byte, percent int32) {
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(data[i]) | int16(data[i+1])<<8
		scaled := int64(sample) * int64(percent) / 100
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		data[i] = byte(scaled)
		data[i+1] = byte(scaled >> 8)
	}
}

func (t *Transcoder) Close() {
	if t.resampleCtx != nil {
		t.resampleCtx.Free()
	}
	if t.resampleFrame != nil {
		t.resampleFrame.Free()
	}
	if t.packet != nil {
		t.packet.Free()
	}
	if t.frame != nil {
		t.frame.Free()
	}
	if t.decoderCtx != nil {
		t.decoderCtx.Free()
	}
	if t.encoderCtx != nil {
		t.encoderCtx.Free()
	}
	if t.inputCtx != nil {
		t.inputCtx.CloseInput()
		t.inputCtx.Free()
	}
	if t.ioCtx != nil {
		t.ioCtx.Free()
	}
}

// Decode is the astiav pipeline used by streams: r in, opus frames out.
func Decode(ctx context.Context, r io.Reader, volume *atomic.Int32, push func([]byte)) error {
	t := NewTranscoder(volume)
	defer t.Close()
	if err := t.OpenInput(r); err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	if err := t.SetupDecoder(); err != nil {
		return fmt.Errorf("setup decoder: %w", err)
	}
	if err := t.SetupEncoder(); err != nil {
		return fmt.Errorf("setup encoder: %w", err)
	}
	return t.Transcode(ctx, push)
}
