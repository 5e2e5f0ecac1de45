package stream

import (
	"context"
	"errors"
	"io"
	"iter"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/proc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	failures int
	opens    []snowflake.ID
	closed   bool
	provider voice.OpusFrameProvider
	speaking voice.SpeakingFlags
}

func (f *fakeConn) Open(ctx context.Context, channelID snowflake.ID, selfMute, selfDeaf bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, channelID)
	if f.failures > 0 {
		f.failures--
		return errors.New("voice handshake timed out")
	}
	return nil
}

func (f *fakeConn) Close(ctx context.Context) {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeConn) SetOpusFrameProvider(p voice.OpusFrameProvider) {
	f.mu.Lock()
	f.provider = p
	f.mu.Unlock()
}

func (f *fakeConn) SetSpeaking(ctx context.Context, flags voice.SpeakingFlags) error {
	f.mu.Lock()
	f.speaking = flags
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) state() (voice.OpusFrameProvider, voice.SpeakingFlags, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.provider, f.speaking, f.closed
}

const (
	guild   = snowflake.ID(1)
	channel = snowflake.ID(10)
	selfID  = snowflake.ID(99)
)

func blockingSource(ctx context.Context, u string, offset time.Duration, w io.Writer) error {
	<-ctx.Done()
	return nil
}

func newTestConnector(conn *fakeConn, idle time.Duration) *Connector {
	c := NewConnectorWith(context.Background(), func(snowflake.ID) Conn { return conn }, blockingSource, byteDecoder, idle)
	c.joinRetry = time.Millisecond
	return c
}

func TestConnector_JoinRetries(t *testing.T) {
	conn := &fakeConn{failures: 2}
	c := newTestConnector(conn, time.Minute)

	require.NoError(t, c.Join(context.Background(), guild, channel))
	assert.Len(t, conn.opens, 3)
	id, ok := c.ChannelID(guild)
	assert.True(t, ok)
	assert.Equal(t, channel, id)

	require.NoError(t, c.Join(context.Background(), guild, channel))
	assert.Len(t, conn.opens, 3)
}

func TestConnector_JoinGivesUp(t *testing.T) {
	conn := &fakeConn{failures: 10}
	c := newTestConnector(conn, time.Minute)

	assert.Error(t, c.Join(context.Background(), guild, channel))
	assert.Len(t, conn.opens, joinAttempts)
	_, _, closed := conn.state()
	assert.True(t, closed)
	_, ok := c.ChannelID(guild)
	assert.False(t, ok)
}

func TestConnector_OpenRequiresConnection(t *testing.T) {
	c := newTestConnector(&fakeConn{}, time.Minute)
	_, err := c.Transport(guild).Open(context.Background(), proc.StreamRef{URL: "u"}, proc.OpenOptions{})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnector_OpenReplacesStream(t *testing.T) {
	conn := &fakeConn{}
	c := newTestConnector(conn, time.Minute)
	require.NoError(t, c.Join(context.Background(), guild, channel))

	tr := c.Transport(guild)
	h1, err := tr.Open(context.Background(), proc.StreamRef{URL: "a"}, proc.OpenOptions{Volume: 1})
	require.NoError(t, err)
	p, speaking, _ := conn.state()
	assert.Equal(t, h1.(*Stream).Provider(), p)
	assert.Equal(t, voice.SpeakingFlagMicrophone, speaking)

	h2, err := tr.Open(context.Background(), proc.StreamRef{URL: "b"}, proc.OpenOptions{Volume: 1})
	require.NoError(t, err)
	assert.NoError(t, <-h1.Done())

	// The superseded stream must not detach the new one.
	time.Sleep(20 * time.Millisecond)
	p, _, _ = conn.state()
	assert.Equal(t, h2.(*Stream).Provider(), p)

	h2.Stop()
	require.Eventually(t, func() bool {
		p, _, _ := conn.state()
		return p == nil
	}, time.Second, 5*time.Millisecond)
}

func TestConnector_Leave(t *testing.T) {
	conn := &fakeConn{}
	c := newTestConnector(conn, time.Minute)
	require.NoError(t, c.Join(context.Background(), guild, channel))
	h, err := c.Transport(guild).Open(context.Background(), proc.StreamRef{URL: "a"}, proc.OpenOptions{})
	require.NoError(t, err)

	c.Leave(context.Background(), guild)
	assert.NoError(t, <-h.Done())
	_, _, closed := conn.state()
	assert.True(t, closed)
	_, ok := c.ChannelID(guild)
	assert.False(t, ok)
}

func voiceStates(states ...discord.VoiceState) iter.Seq[discord.VoiceState] {
	return slices.Values(states)
}

func state(user snowflake.ID, ch *snowflake.ID) discord.VoiceState {
	return discord.VoiceState{GuildID: guild, UserID: user, ChannelID: ch}
}

func TestConnector_AloneTimeout(t *testing.T) {
	conn := &fakeConn{}
	c := newTestConnector(conn, 20*time.Millisecond)
	gone := make(chan snowflake.ID, 1)
	c.OnGone(func(id snowflake.ID) { gone <- id })
	require.NoError(t, c.Join(context.Background(), guild, channel))

	ch := channel
	c.HandleVoiceState(state(5, nil), selfID, voiceStates(state(selfID, &ch)), nil)

	select {
	case id := <-gone:
		assert.Equal(t, guild, id)
	case <-time.After(time.Second):
		t.Fatal("idle teardown never fired")
	}
	require.Eventually(t, func() bool {
		_, ok := c.ChannelID(guild)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestConnector_ListenerReturnCancelsTimer(t *testing.T) {
	conn := &fakeConn{}
	c := newTestConnector(conn, 30*time.Millisecond)
	c.OnGone(func(snowflake.ID) { t.Error("unexpected teardown") })
	require.NoError(t, c.Join(context.Background(), guild, channel))

	ch := channel
	c.HandleVoiceState(state(5, nil), selfID, voiceStates(state(selfID, &ch)), nil)
	c.HandleVoiceState(state(5, &ch), selfID, voiceStates(state(selfID, &ch), state(5, &ch)), nil)
	time.Sleep(60 * time.Millisecond)

	_, ok := c.ChannelID(guild)
	assert.True(t, ok)
	c.Leave(context.Background(), guild)
}

func TestConnector_BotDisconnected(t *testing.T) {
	conn := &fakeConn{}
	c := newTestConnector(conn, time.Minute)
	gone := make(chan snowflake.ID, 1)
	c.OnGone(func(id snowflake.ID) { gone <- id })
	require.NoError(t, c.Join(context.Background(), guild, channel))

	c.HandleVoiceState(state(selfID, nil), selfID, voiceStates(), nil)
	assert.Equal(t, guild, <-gone)
	_, ok := c.ChannelID(guild)
	assert.False(t, ok)
}

func TestConnector_BotMoved(t *testing.T) {
	conn := &fakeConn{}
	c := newTestConnector(conn, time.Minute)
	require.NoError(t, c.Join(context.Background(), guild, channel))

	other := snowflake.ID(11)
	c.HandleVoiceState(state(selfID, &other), selfID, voiceStates(state(selfID, &other), state(5, &other)), nil)
	id, _ := c.ChannelID(guild)
	assert.Equal(t, other, id)
	c.Leave(context.Background(), guild)
}

func TestCountListeners(t *testing.T) {
	ch, other := channel, snowflake.ID(11)
	deaf := state(7, &ch)
	deaf.SelfDeaf = true
	states := voiceStates(
		state(selfID, &ch),
		state(5, &ch),
		state(6, &ch),
		deaf,
		state(8, &other),
		state(9, nil),
	)
	isBot := func(id snowflake.ID) bool { return id == 6 }
	assert.Equal(t, 1, CountListeners(states, selfID, channel, isBot))
	assert.Equal(t, 2, CountListeners(states, selfID, channel, nil))
}
