package home

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/media"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
	"github.com/samber/lo"
)

func (c *musicCall) handlePlay(data discord.SlashCommandInteractionData, next bool) {
	query := strings.TrimSpace(data.String("query"))
	sub := "play"
	if next {
		sub = "playnext"
	}

	_ = c.event.DeferCreateMessage(false)

	ctx, cancel := context.WithTimeout(sys.AppContext, c.cfg.ResolveTimeout)
	defer cancel()

	lookup, err := c.catalog.Lookup(ctx, query)
	if err != nil {
		if media.IsNoResults(err) {
			followUp(c.event, fmt.Sprintf(sys.MsgMusicNoResults, sys.Truncate(query, 100)))
			return
		}
		sys.LogCatalog(sys.MsgCatalogResolveFail, query, err)
		c.fail(sub, err, true)
		return
	}
	if next && lookup.Deferred && !c.allowsDeferredNext(ctx, c.guildID) {
		followUp(c.event, sys.MsgMusicPlayNextDeferred)
		return
	}
	if len(lookup.Tracks) > 1 {
		sys.LogCatalog(sys.MsgCatalogPlaylist, query, len(lookup.Tracks))
	}

	if err := c.voice.Join(ctx, c.guildID, c.channelID); err != nil {
		sys.LogVoice(sys.MsgMusicCommandFail, sub, c.guildID, err)
		followUp(c.event, fmt.Sprintf(sys.MsgMusicJoinFailed, err))
		return
	}

	room := c.rooms.GetOrCreate(c.guildID, c.surface())
	wasIdle := room.Session.State() == proc.Idle
	followUp(c.event, c.enqueue(room, lookup, next))

	if !wasIdle {
		return
	}
	started, err := room.Session.Start(sys.AppContext)
	switch {
	case err == nil && started != nil:
		sys.LogMusic("Started %q in guild %s", started.Title, c.guildID)
	case err != nil && !errors.Is(err, proc.ErrEmptyQueue):
		c.fail(sub, err, true)
	}
}

// enqueue adds the lookup's tracks on behalf of the caller and returns the
// confirmation to show.
func (c *musicCall) enqueue(room *proc.Room, lookup *media.Lookup, next bool) string {
	tracks := lo.Map(lookup.Tracks, func(t *proc.Track, _ int) *proc.Track {
		return t.RequestedBy(c.userID)
	})

	if len(tracks) == 1 {
		t := tracks[0]
		pos := room.Queue.Enqueue(t, next)
		title := sys.EscapeMarkdown(t.Title)
		if next {
			return fmt.Sprintf(sys.MsgMusicAddedNext, title)
		}
		return fmt.Sprintf(sys.MsgMusicAdded, title, pos)
	}

	room.Queue.EnqueueAll(tracks, next)
	return fmt.Sprintf(sys.MsgMusicAddedBatch, len(tracks), sys.EscapeMarkdown(sys.Truncate(lookup.Name, 100)))
}

func handleMusicAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()
	if focused.Name != "query" {
		return
	}
	query := strings.TrimSpace(focused.String())
	m := music.Load()
	if m == nil || query == "" || media.IsURL(query) {
		_ = event.AutocompleteResult(nil)
		return
	}

	results, err := m.search.Search(sys.AppContext, query, 25)
	if err != nil {
		sys.LogDebug("Autocomplete search for %q failed: %v", query, err)
		_ = event.AutocompleteResult(nil)
		return
	}

	_ = event.AutocompleteResult(autocompleteChoices(results))
}

func autocompleteChoices(results []media.SearchResult) []discord.AutocompleteChoice {
	return lo.Map(results, func(r media.SearchResult, _ int) discord.AutocompleteChoice {
		return discord.AutocompleteChoiceString{
			Name:  r.Label(),
			Value: r.URL(),
		}
	})
}
