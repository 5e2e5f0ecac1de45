package home

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

const defaultFastForward = 15 * time.Second

func (c *musicCall) handlePause() {
	room, ok := c.room()
	if !ok {
		return
	}
	if err := room.Session.Pause(); err != nil {
		c.fail("pause", err, false)
		return
	}
	reply(c.event, fmt.Sprintf(sys.MsgMusicPaused, currentTitle(room)))
}

func (c *musicCall) handleResume() {
	room, ok := c.room()
	if !ok {
		return
	}
	if err := room.Session.Resume(); err != nil {
		c.fail("resume", err, false)
		return
	}
	reply(c.event, fmt.Sprintf(sys.MsgMusicResumed, currentTitle(room)))
}

func (c *musicCall) handleSkip() {
	room, ok := c.room()
	if !ok {
		return
	}
	skipped, token := room.Session.Playback()
	if skipped == nil {
		replyEphemeral(c.event, sys.MsgMusicNothingPlaying)
		return
	}

	_ = c.event.DeferCreateMessage(false)
	next, err := room.Session.SkipFrom(sys.AppContext, token)
	if err != nil {
		c.fail("skip", err, true)
		return
	}
	followUp(c.event, skipMessage(skipped, next))
}

func skipMessage(skipped, next *proc.Track) string {
	title := sys.EscapeMarkdown(skipped.Title)
	if next == nil {
		return fmt.Sprintf(sys.MsgMusicSkipped, title)
	}
	return fmt.Sprintf(sys.MsgMusicSkippedUpNext, title, sys.EscapeMarkdown(next.Title))
}

func (c *musicCall) handleNowPlaying() {
	room, ok := c.room()
	if !ok {
		return
	}
	t := room.Session.Current()
	if t == nil {
		replyEphemeral(c.event, sys.MsgMusicNothingPlaying)
		return
	}
	room.SetSurface(c.surface())
	room.Presenter.Activate(t)
	replyEphemeral(c.event, fmt.Sprintf(sys.MsgMusicStarted, sys.EscapeMarkdown(t.Title)))
}

func (c *musicCall) handleFastForward(data discord.SlashCommandInteractionData) {
	d := defaultFastForward
	if secs, ok := data.OptInt("seconds"); ok {
		d = time.Duration(secs) * time.Second
	}
	c.seek("fastforward", func(ctx context.Context, s *proc.PlaybackSession) (time.Duration, error) {
		return s.FastForward(ctx, d)
	})
}

func (c *musicCall) handleSeek(data discord.SlashCommandInteractionData) {
	raw := data.String("timestamp")
	offset, err := sys.ParseTimestamp(raw)
	if err != nil {
		replyEphemeral(c.event, fmt.Sprintf(sys.MsgMusicInvalidTimestamp, sys.Truncate(raw, 20)))
		return
	}
	c.seek("seek", func(ctx context.Context, s *proc.PlaybackSession) (time.Duration, error) {
		return s.SeekTo(ctx, offset)
	})
}

// seek runs a restart of the current track and reports where it landed.
// Landing on the end of a track with known duration means it was skipped.
func (c *musicCall) seek(sub string, restart func(ctx context.Context, s *proc.PlaybackSession) (time.Duration, error)) {
	room, ok := c.room()
	if !ok {
		return
	}
	t := room.Session.Current()
	if t == nil {
		replyEphemeral(c.event, sys.MsgMusicNothingPlaying)
		return
	}

	_ = c.event.DeferCreateMessage(false)
	pos, err := restart(sys.AppContext, room.Session)
	if err != nil {
		c.fail(sub, err, true)
		return
	}
	if t.Duration > 0 && pos >= t.Duration {
		followUp(c.event, fmt.Sprintf(sys.MsgMusicSkipped, sys.EscapeMarkdown(t.Title)))
		return
	}
	followUp(c.event, fmt.Sprintf(sys.MsgMusicSeeked, sys.FormatClock(pos), sys.EscapeMarkdown(t.Title)))
}

func (c *musicCall) handleRepeat() {
	room, ok := c.room()
	if !ok {
		return
	}
	if room.Queue.ToggleLoop() {
		reply(c.event, sys.MsgMusicLoopOn)
		return
	}
	reply(c.event, sys.MsgMusicLoopOff)
}

func (c *musicCall) handleVolume(data discord.SlashCommandInteractionData) {
	room, ok := c.room()
	if !ok {
		return
	}
	v := room.Session.SetVolume(float64(data.Int("percent")) / 100)
	reply(c.event, fmt.Sprintf(sys.MsgMusicVolumeSet, percent(v)))
}

func (c *musicCall) handleDisconnect() {
	_, hadRoom := c.rooms.Get(c.guildID)
	_, connected := c.voice.ChannelID(c.guildID)
	if !hadRoom && !connected {
		replyEphemeral(c.event, sys.MsgMusicNotConnected)
		return
	}

	c.rooms.Remove(c.guildID)
	ctx, cancel := context.WithTimeout(sys.AppContext, 5*time.Second)
	defer cancel()
	c.voice.Leave(ctx, c.guildID)
	reply(c.event, sys.MsgMusicDisconnected)
}

func currentTitle(room *proc.Room) string {
	if t := room.Session.Current(); t != nil {
		return sys.EscapeMarkdown(t.Title)
	}
	return "nothing"
}
