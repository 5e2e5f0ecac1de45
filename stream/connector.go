package stream

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

const joinAttempts = 5

var ErrNotConnected = errors.New("not connected to voice")

// Conn is the part of a voice connection the connector drives.
type Conn interface {
	Open(ctx context.Context, channelID snowflake.ID, selfMute, selfDeaf bool) error
	Close(ctx context.Context)
	SetOpusFrameProvider(p voice.OpusFrameProvider)
	SetSpeaking(ctx context.Context, flags voice.SpeakingFlags) error
}

type link struct {
	conn      Conn
	channelID snowflake.ID
	active    *Stream
	alone     *time.Timer
}

// Connector owns one voice connection per guild and opens streams on it.
type Connector struct {
	ctx       context.Context
	dial      func(guildID snowflake.ID) Conn
	source    Source
	decode    Decoder
	idle      time.Duration
	joinRetry time.Duration

	mu     sync.Mutex
	links  map[snowflake.ID]*link
	onGone func(guildID snowflake.ID)
}

// NewConnector builds a connector over the client's voice manager.
func NewConnector(ctx context.Context, client *bot.Client, proxy string, idle time.Duration) *Connector {
	return NewConnectorWith(ctx, func(guildID snowflake.ID) Conn {
		return client.VoiceManager.CreateConn(guildID)
	}, YtdlpSource(proxy), Decode, idle)
}

func NewConnectorWith(ctx context.Context, dial func(snowflake.ID) Conn, src Source, dec Decoder, idle time.Duration) *Connector {
	return &Connector{
		ctx:       ctx,
		dial:      dial,
		source:    src,
		decode:    dec,
		idle:      idle,
		joinRetry: time.Second,
		links:     make(map[snowflake.ID]*link),
	}
}

// OnGone registers the callback run when a guild's connection goes away
// without Leave being called: the bot was disconnected or left alone.
func (c *Connector) OnGone(fn func(guildID snowflake.ID)) {
	c.mu.Lock()
	c.onGone = fn
	c.mu.Unlock()
}

// ChannelID reports the channel the bot is connected to in guildID.
func (c *Connector) ChannelID(guildID snowflake.ID) (snowflake.ID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.links[guildID]
	if !ok {
		return 0, false
	}
	return l.channelID, true
}

// Join connects to channelID, retrying with exponential backoff. Joining
// the current channel is a no-op; another channel moves the connection.
func (c *Connector) Join(ctx context.Context, guildID, channelID snowflake.ID) error {
	c.mu.Lock()
	l, ok := c.links[guildID]
	if ok && l.channelID == channelID {
		c.mu.Unlock()
		return nil
	}
	fresh := !ok
	if fresh {
		l = &link{conn: c.dial(guildID)}
	}
	c.mu.Unlock()

	var lastErr error
	for i := range joinAttempts {
		if i > 0 {
			backoff := c.joinRetry * time.Duration(1<<uint(i-1))
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(backoff):
			}
			if ctx.Err() != nil {
				break
			}
		}
		if lastErr = l.conn.Open(ctx, channelID, false, false); lastErr == nil {
			break
		}
		sys.LogVoice(sys.MsgVoiceJoinRetry, i+1, joinAttempts, guildID, lastErr)
	}
	if lastErr != nil {
		if fresh {
			l.conn.Close(context.WithoutCancel(ctx))
		}
		return lastErr
	}

	c.mu.Lock()
	l.channelID = channelID
	c.links[guildID] = l
	c.mu.Unlock()
	sys.LogVoice(sys.MsgVoiceJoined, channelID, guildID)
	return nil
}

// Leave stops playback and closes the guild's connection.
func (c *Connector) Leave(ctx context.Context, guildID snowflake.ID) {
	c.mu.Lock()
	l, ok := c.links[guildID]
	if ok {
		delete(c.links, guildID)
		if l.alone != nil {
			l.alone.Stop()
		}
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	if l.active != nil {
		l.active.Stop()
	}
	l.conn.SetOpusFrameProvider(nil)
	l.conn.Close(ctx)
	sys.LogVoice(sys.MsgVoiceLeft, guildID)
}

// Shutdown leaves every guild.
func (c *Connector) Shutdown(ctx context.Context) {
	c.mu.Lock()
	ids := make([]snowflake.ID, 0, len(c.links))
	for id := range c.links {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	for _, id := range ids {
		c.Leave(ctx, id)
	}
}

// Transport returns the proc.Transport bound to guildID.
func (c *Connector) Transport(guildID snowflake.ID) proc.Transport {
	return guildTransport{c: c, guildID: guildID}
}

type guildTransport struct {
	c       *Connector
	guildID snowflake.ID
}

func (t guildTransport) Open(ctx context.Context, ref proc.StreamRef, opts proc.OpenOptions) (proc.TransportHandle, error) {
	return t.c.open(ctx, t.guildID, ref, opts)
}

func (c *Connector) open(ctx context.Context, guildID snowflake.ID, ref proc.StreamRef, opts proc.OpenOptions) (*Stream, error) {
	c.mu.Lock()
	l, ok := c.links[guildID]
	if !ok {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	prev := l.active
	s := Start(c.ctx, ref, opts, c.source, c.decode)
	l.active = s
	conn := l.conn
	c.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	conn.SetOpusFrameProvider(s.Provider())
	_ = conn.SetSpeaking(ctx, voice.SpeakingFlagMicrophone)

	sys.SafeGo(func() {
		<-s.Finished()
		c.mu.Lock()
		cur, ok := c.links[guildID]
		owner := ok && cur.active == s
		if owner {
			cur.active = nil
		}
		c.mu.Unlock()
		if owner {
			conn.SetOpusFrameProvider(nil)
			_ = conn.SetSpeaking(c.ctx, 0)
		}
	})
	return s, nil
}

// OnVoiceStateUpdate tracks the bot being moved or disconnected and arms
// the idle timer while nobody else is listening.
func (c *Connector) OnVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	client := event.Client()
	guildID := event.VoiceState.GuildID
	isBot := func(userID snowflake.ID) bool {
		m, ok := client.Caches.Member(guildID, userID)
		return ok && m.User.Bot
	}
	c.HandleVoiceState(event.VoiceState, client.ID(), client.Caches.VoiceStates(guildID), isBot)
}

// HandleVoiceState applies one voice state change for guild members seen
// in states.
func (c *Connector) HandleVoiceState(vs discord.VoiceState, selfID snowflake.ID, states iter.Seq[discord.VoiceState], isBot func(snowflake.ID) bool) {
	guildID := vs.GuildID

	c.mu.Lock()
	l, ok := c.links[guildID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if vs.UserID == selfID {
		if vs.ChannelID == nil {
			c.mu.Unlock()
			c.gone(guildID)
			return
		}
		l.channelID = *vs.ChannelID
	}
	channelID := l.channelID
	c.mu.Unlock()

	n := CountListeners(states, selfID, channelID, isBot)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.links[guildID] != l {
		return
	}
	switch {
	case n == 0 && l.alone == nil:
		l.alone = time.AfterFunc(c.idle, func() {
			sys.LogVoice(sys.MsgVoiceAloneTeardown, guildID, c.idle)
			c.gone(guildID)
		})
	case n > 0 && l.alone != nil:
		l.alone.Stop()
		l.alone = nil
	}
}

func (c *Connector) gone(guildID snowflake.ID) {
	c.mu.Lock()
	fn := c.onGone
	c.mu.Unlock()
	if fn != nil {
		fn(guildID)
	}
	c.Leave(c.ctx, guildID)
}

// CountListeners counts non-bot users in channelID, ignoring deafened ones.
func CountListeners(states iter.Seq[discord.VoiceState], selfID, channelID snowflake.ID, isBot func(snowflake.ID) bool) int {
	n := 0
	for s := range states {
		if s.ChannelID == nil || *s.ChannelID != channelID || s.UserID == selfID || s.SelfDeaf {
			continue
		}
		if isBot != nil && isBot(s.UserID) {
			continue
		}
		n++
	}
	return n
}
