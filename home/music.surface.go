package home

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

// messageSurface renders a room into the text channel a command came from.
type messageSurface struct {
	client    *bot.Client
	channelID snowflake.ID
}

func newMessageSurface(client *bot.Client, channelID snowflake.ID) *messageSurface {
	return &messageSurface{client: client, channelID: channelID}
}

func (s *messageSurface) Send(_ context.Context, np proc.NowPlaying) (proc.MessageRef, error) {
	msg, err := sys.SendMessageV2(s.client, s.channelID, renderNowPlaying(np))
	if err != nil {
		return proc.MessageRef{}, surfaceError(err)
	}
	return proc.MessageRef{ChannelID: s.channelID, MessageID: msg.ID}, nil
}

func (s *messageSurface) Edit(_ context.Context, ref proc.MessageRef, np proc.NowPlaying) error {
	_, err := sys.EditMessageV2(s.client, ref.ChannelID, ref.MessageID, renderNowPlaying(np))
	return surfaceError(err)
}

func (s *messageSurface) Delete(_ context.Context, ref proc.MessageRef) error {
	return surfaceError(s.client.Rest.DeleteMessage(ref.ChannelID, ref.MessageID))
}

func (s *messageSurface) TrackFailed(t *proc.Track, err error) {
	title := "track"
	if t != nil {
		title = sys.EscapeMarkdown(t.Title)
	}
	s.notify(fmt.Sprintf(sys.MsgMusicTrackFailed, title, failureReason(err)))
}

func (s *messageSurface) QueueEnded() {
	s.notify(sys.MsgMusicQueueEnded)
}

func (s *messageSurface) notify(content string) {
	_, err := s.client.Rest.CreateMessage(s.channelID, discord.NewMessageCreateBuilder().
		SetContent(content).
		Build())
	if err != nil {
		sys.LogPresenter("Failed to notify channel %s: %v", s.channelID, err)
	}
}

// failureReason keeps resolver and transport details out of the channel.
func failureReason(err error) string {
	var (
		resErr *proc.ResolutionError
		trErr  *proc.TransportError
	)
	switch {
	case errors.As(err, &resErr):
		return "no playable source was found"
	case errors.As(err, &trErr):
		return "the stream stopped unexpectedly"
	}
	return "unexpected error"
}

// surfaceError maps Discord REST failures onto the presenter's error kinds.
func surfaceError(err error) error {
	if err == nil {
		return nil
	}
	rs := restResponse(err)
	if rs == nil {
		return err
	}
	switch rs.StatusCode {
	case http.StatusNotFound:
		return proc.ErrDisplaySurfaceNotFound
	case http.StatusTooManyRequests:
		return &proc.RateLimitError{RetryAfter: retryAfter(rs.Header.Get("Retry-After"))}
	}
	return err
}

func restResponse(err error) *http.Response {
	var restErr *rest.Error
	if errors.As(err, &restErr) {
		return restErr.Response
	}
	return nil
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
