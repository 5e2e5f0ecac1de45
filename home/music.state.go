package home

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/media"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/status"
	"github.com/leeineian/jukebox/stream"
	"github.com/leeineian/jukebox/sys"
)

const segmentPoll = 500 * time.Millisecond

// musicSystem is everything the /music handlers share.
type musicSystem struct {
	client   *bot.Client
	cfg      *sys.Config
	rooms    *proc.SessionRegistry
	voice    *stream.Connector
	catalog  *media.Catalog
	search   *media.Searcher
	confirms *proc.Confirmations
	cache    media.Cache
}

var music atomic.Pointer[musicSystem]

func init() {
	sys.OnClientReady(func(ctx context.Context, client *bot.Client) {
		if music.Load() != nil {
			return
		}
		m := newMusicSystem(ctx, client, sys.GlobalConfig)
		if !music.CompareAndSwap(nil, m) {
			m.shutdown()
		}
	})

	sys.RegisterVoiceStateUpdateHandler(func(event *events.GuildVoiceStateUpdate) {
		if m := music.Load(); m != nil {
			m.voice.OnVoiceStateUpdate(event)
		}
	})
}

func newMusicSystem(ctx context.Context, client *bot.Client, cfg *sys.Config) *musicSystem {
	cache, err := media.NewCache(cfg.RedisURL)
	if err != nil {
		sys.LogWarn("Redis unavailable, falling back to memory cache: %v", err)
		cache = media.NewMemoryCache(time.Minute)
	}

	searcher := media.NewSearcher(cache)
	resolver := media.NewResolver(&media.YtdlpExtractor{Proxy: cfg.YoutubeProxy}, searcher, cache)
	segments := media.NewSponsorBlock(cfg.SponsorBlockURL, cfg.SponsorBlockCategories, nil, cache)
	voice := stream.NewConnector(ctx, client, cfg.YoutubeProxy, cfg.IdleDisconnect)

	m := &musicSystem{
		client: client,
		cfg:    cfg,
		voice:  voice,
		catalog: &media.Catalog{
			Resolver: resolver,
			Spotify:  media.NewSpotify(cfg.SpotifyClientID, cfg.SpotifyClientSecret, nil),
		},
		search:   searcher,
		confirms: proc.NewConfirmations(),
		cache:    cache,
	}
	m.rooms = proc.NewSessionRegistry(proc.RegistryConfig{
		Resolver:        resolver,
		Segments:        segments,
		Transport:       voice.Transport,
		Volume:          m.guildVolume,
		RefreshInterval: cfg.RefreshInterval,
		ResolveTimeout:  cfg.ResolveTimeout,
		SegmentPoll:     segmentPoll,
	})
	voice.OnGone(func(guildID snowflake.ID) {
		m.rooms.Remove(guildID)
	})

	status.Register(cfg.StatusAddr, m.rooms)
	presence := &presenceRotator{client: client, rooms: m.rooms.Rooms}
	sys.RegisterDaemon(sys.LogStatus, func(ctx context.Context) (bool, func(), func()) {
		return true, func() { presence.run(ctx) }, nil
	})
	sys.RegisterDaemon(sys.LogMusic, func(ctx context.Context) (bool, func(), func()) {
		return true, func() { <-ctx.Done() }, m.shutdown
	})
	return m
}

func (m *musicSystem) shutdown() {
	m.rooms.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.voice.Shutdown(ctx)
	_ = m.cache.Close()
}

// guildVolume is the starting volume of a new room.
func (m *musicSystem) guildVolume(guildID snowflake.ID) float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := sys.GetMusicSettings(ctx, guildID)
	if err != nil {
		sys.LogWarn("Failed to load music settings for guild %s: %v", guildID, err)
		return m.cfg.Volume()
	}
	return float64(s.EffectiveVolume(m.cfg.DefaultVolume)) / 100
}

// allowsDeferredNext reports whether playnext may take playlists here.
func (m *musicSystem) allowsDeferredNext(ctx context.Context, guildID snowflake.ID) bool {
	s, err := sys.GetMusicSettings(ctx, guildID)
	if err != nil {
		return m.cfg.PlayNextAllowsDeferred
	}
	return s.AllowsDeferred(m.cfg.PlayNextAllowsDeferred)
}

// --- Guards ---

// voiceCheck decides whether a caller in userChannel may control a room
// whose bot sits in botChannel. It returns the refusal message or "".
func voiceCheck(userChannel *snowflake.ID, botChannel snowflake.ID, connected bool) string {
	if userChannel == nil {
		return sys.MsgMusicNotInVoice
	}
	if connected && botChannel != *userChannel {
		return fmt.Sprintf(sys.MsgMusicWrongChannel, botChannel)
	}
	return ""
}

// musicCall is a validated /music invocation.
type musicCall struct {
	*musicSystem
	event     *events.ApplicationCommandInteractionCreate
	guildID   snowflake.ID
	channelID snowflake.ID
	userID    snowflake.ID
}

// callFor runs the guards every /music subcommand shares. On refusal it
// answers the user and returns nil.
func callFor(event *events.ApplicationCommandInteractionCreate) *musicCall {
	m := music.Load()
	if m == nil {
		replyEphemeral(event, sys.ErrMusicGeneric)
		return nil
	}
	if event.GuildID() == nil {
		replyEphemeral(event, sys.MsgMusicGuildOnly)
		return nil
	}
	guildID := *event.GuildID()

	var userChannel *snowflake.ID
	if vs, ok := event.Client().Caches.VoiceState(guildID, event.User().ID); ok {
		userChannel = vs.ChannelID
	}
	botChannel, connected := m.voice.ChannelID(guildID)
	if msg := voiceCheck(userChannel, botChannel, connected); msg != "" {
		replyEphemeral(event, msg)
		return nil
	}

	return &musicCall{
		musicSystem: m,
		event:       event,
		guildID:     guildID,
		channelID:   *userChannel,
		userID:      event.User().ID,
	}
}

// room returns the existing room, answering "not connected" when there is none.
func (c *musicCall) room() (*proc.Room, bool) {
	room, ok := c.rooms.Get(c.guildID)
	if !ok {
		replyEphemeral(c.event, sys.MsgMusicNotConnected)
		return nil, false
	}
	return room, true
}

// surface points the room's messages at the channel the command came from.
func (c *musicCall) surface() proc.Surface {
	return newMessageSurface(c.client, c.event.Channel().ID())
}

// --- Replies ---

func reply(event *events.ApplicationCommandInteractionCreate, content string) {
	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(content).
		Build())
}

func replyEphemeral(event *events.ApplicationCommandInteractionCreate, content string) {
	_ = sys.RespondInteractionV2(event.Client(), event.ApplicationCommandInteraction, sys.NewV2Container(sys.NewTextDisplay(content)), true)
}

// followUp replaces a deferred response.
func followUp(event *events.ApplicationCommandInteractionCreate, content string) {
	_, _ = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), discord.NewMessageUpdateBuilder().
		SetContent(content).
		Build())
}

// userMessage maps engine errors to what the caller is told. expected is
// false for failures that also need logging.
func userMessage(err error) (msg string, expected bool) {
	var resErr *proc.ResolutionError
	switch {
	case errors.Is(err, proc.ErrEmptyQueue):
		return sys.MsgMusicQueueEmpty, true
	case errors.Is(err, proc.ErrNotPlaying):
		return sys.MsgMusicNothingPlaying, true
	case errors.Is(err, proc.ErrAlreadyPaused):
		return sys.MsgMusicAlreadyPaused, true
	case errors.Is(err, proc.ErrAlreadyPlaying):
		return sys.MsgMusicAlreadyPlaying, true
	case errors.Is(err, proc.ErrOutOfRange):
		return sys.ErrMusicIndexOutOfRange, true
	case errors.Is(err, proc.ErrSessionClosed):
		return sys.MsgMusicNotConnected, true
	case errors.Is(err, proc.ErrConfirmationTimeout):
		return sys.ErrMusicConfirmTimedOut, true
	case errors.Is(err, media.ErrSpotifyNotConfigured):
		return sys.ErrMusicCatalogNotConfig, true
	case media.IsNoResults(err), errors.As(err, &resErr):
		return sys.ErrMusicResolveFailed, true
	}
	return sys.ErrMusicGeneric, false
}

// fail answers err to the caller, logging the unexpected ones.
func (c *musicCall) fail(sub string, err error, deferred bool) {
	msg, expected := userMessage(err)
	if !expected {
		sys.LogMusic(sys.MsgMusicCommandFail, sub, c.guildID, err)
	}
	if deferred {
		followUp(c.event, msg)
		return
	}
	replyEphemeral(c.event, msg)
}
