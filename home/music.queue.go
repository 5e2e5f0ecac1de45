package home

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

func (c *musicCall) handleQueue() {
	room, ok := c.room()
	if !ok {
		return
	}
	_ = c.event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(queueContainer(room.Queue.Snapshot(), 0)).
		Build())
}

func handleQueuePage(event *events.ComponentInteractionCreate) {
	// Format: music:queue:direction:page
	direction, page, ok := parseQueueID(event.Data.CustomID())
	if !ok || event.GuildID() == nil {
		return
	}

	var snap proc.QueueSnapshot
	if m := music.Load(); m != nil {
		if room, ok := m.rooms.Get(*event.GuildID()); ok {
			snap = room.Queue.Snapshot()
		}
	}
	target := queueTarget(direction, page, queuePages(len(snap.Pending)))

	_ = event.UpdateMessage(discord.NewMessageUpdateBuilder().
		SetIsComponentsV2(true).
		SetComponents(queueContainer(snap, target)).
		Build())
}

func parseQueueID(customID string) (direction string, page int, ok bool) {
	parts := strings.Split(customID, ":")
	if len(parts) != 4 || parts[0] != "music" || parts[1] != "queue" {
		return "", 0, false
	}
	page, err := strconv.Atoi(parts[3])
	if err != nil {
		return "", 0, false
	}
	return parts[2], page, true
}

func (c *musicCall) handleShuffle() {
	room, ok := c.room()
	if !ok {
		return
	}
	n := room.Queue.Len()
	if n == 0 {
		replyEphemeral(c.event, sys.MsgMusicQueueEmpty)
		return
	}
	count := room.Queue.ShuffleFairly()
	reply(c.event, fmt.Sprintf(sys.MsgMusicShuffled, n, count))
}

func (c *musicCall) handlePlayNum(data discord.SlashCommandInteractionData) {
	room, ok := c.room()
	if !ok {
		return
	}
	t, err := room.Queue.MoveToFront(data.Int("index") - 1)
	if err != nil {
		c.fail("playnum", err, false)
		return
	}

	_ = c.event.DeferCreateMessage(false)
	if room.Session.State() == proc.Idle {
		_, err = room.Session.Start(sys.AppContext)
	} else {
		_, err = room.Session.Skip(sys.AppContext)
	}
	if err != nil && !errors.Is(err, proc.ErrEmptyQueue) {
		c.fail("playnum", err, true)
		return
	}
	followUp(c.event, fmt.Sprintf(sys.MsgMusicPlayNum, sys.EscapeMarkdown(t.Title)))
}

func (c *musicCall) handleClear() {
	room, ok := c.room()
	if !ok {
		return
	}
	n := room.Queue.Len()
	if n == 0 {
		replyEphemeral(c.event, sys.MsgMusicQueueEmpty)
		return
	}

	if !c.confirm(fmt.Sprintf(sys.MsgMusicClearConfirm, n), sys.MsgMusicClearCancelled) {
		return
	}
	c.settle(fmt.Sprintf(sys.MsgMusicCleared, room.Queue.Clear()))
}

func (c *musicCall) handleRemove(data discord.SlashCommandInteractionData) {
	room, ok := c.room()
	if !ok {
		return
	}

	if index, ok := data.OptInt("index"); ok {
		t, err := room.Queue.RemoveAt(index - 1)
		if err != nil {
			c.fail("remove", err, false)
			return
		}
		reply(c.event, fmt.Sprintf(sys.MsgMusicRemoved, sys.EscapeMarkdown(t.Title)))
		return
	}

	user, ok := data.OptUser("user")
	if !ok {
		replyEphemeral(c.event, sys.MsgMusicRemoveNeedsArg)
		return
	}
	n := room.Queue.CountByRequester(user.ID)
	if n == 0 {
		replyEphemeral(c.event, fmt.Sprintf(sys.MsgMusicRemoveUserNone, user.ID))
		return
	}

	if !c.confirm(fmt.Sprintf(sys.MsgMusicRemoveUserAsk, n, user.ID), sys.MsgMusicRemoveCancelled) {
		return
	}
	c.settle(fmt.Sprintf(sys.MsgMusicRemovedUser, room.Queue.RemoveByRequester(user.ID), user.ID))
}

// confirm shows a confirm/cancel prompt and waits for the caller to answer.
// A declined or expired prompt is settled here and reports false.
func (c *musicCall) confirm(prompt, cancelled string) bool {
	key := c.event.ID().String()
	err := c.event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(confirmContainer(prompt, key, c.userID)).
		Build())
	if err != nil {
		sys.LogMusic(sys.MsgMusicCommandFail, "confirm", c.guildID, err)
		return false
	}

	ok, err := c.confirms.Await(sys.AppContext, key, c.cfg.ConfirmTimeout)
	switch {
	case errors.Is(err, proc.ErrConfirmationTimeout):
		c.settle(sys.ErrMusicConfirmTimedOut)
		return false
	case err != nil:
		return false
	case !ok:
		c.settle(cancelled)
		return false
	}
	return true
}

// settle replaces the prompt with its outcome.
func (c *musicCall) settle(content string) {
	_ = sys.EditInteractionV2(c.client, c.event.ApplicationCommandInteraction, sys.NewV2Container(sys.NewTextDisplay(content)))
}

func handleConfirm(event *events.ComponentInteractionCreate) {
	// Format: music:confirm:yes|no:key:owner
	answer, key, owner, ok := parseConfirmID(event.Data.CustomID())
	if !ok {
		return
	}
	if event.User().ID != owner {
		_ = sys.RespondInteractionV2(event.Client(), event.ComponentInteraction, sys.NewV2Container(sys.NewTextDisplay(sys.MsgMusicPromptNotYours)), true)
		return
	}

	m := music.Load()
	if m == nil || !m.confirms.Resolve(key, answer) {
		_ = sys.UpdateInteractionV2(event.Client(), event.ComponentInteraction, sys.NewV2Container(sys.NewTextDisplay(sys.MsgMusicPromptExpired)))
		return
	}
	_ = event.DeferUpdateMessage()
}

func parseConfirmID(customID string) (answer bool, key string, owner snowflake.ID, ok bool) {
	parts := strings.Split(customID, ":")
	if len(parts) != 5 || parts[0] != "music" || parts[1] != "confirm" {
		return false, "", 0, false
	}
	switch parts[2] {
	case "yes":
		answer = true
	case "no":
	default:
		return false, "", 0, false
	}
	owner, err := snowflake.Parse(parts[4])
	if err != nil || parts[3] == "" {
		return false, "", 0, false
	}
	return answer, parts[3], owner, true
}
