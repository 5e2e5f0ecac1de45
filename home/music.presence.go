package home

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
	"github.com/samber/lo"
)

const presenceKey = "status_visible"

// presenceRotator cycles the bot's listening activity between a few
// generated lines, never showing the same line twice in a row.
type presenceRotator struct {
	client *bot.Client
	rooms  func() []proc.RoomStatus
	last   string
}

func rotationInterval() time.Duration {
	return time.Duration(15+rand.IntN(46)) * time.Second
}

func (p *presenceRotator) run(ctx context.Context) {
	for {
		next := rotationInterval()
		p.update(ctx)
		select {
		case <-time.After(next):
		case <-ctx.Done():
			return
		}
	}
}

func (p *presenceRotator) update(ctx context.Context) {
	if v, err := sys.GetBotConfig(ctx, presenceKey); err == nil && v == "false" {
		_ = p.client.SetPresence(ctx, gateway.WithOnlineStatus(discord.OnlineStatusOnline))
		return
	}

	var latency time.Duration
	if p.client.Gateway != nil {
		latency = p.client.Gateway.Latency()
	}
	text := p.pick(presenceLines(p.rooms(), time.Since(sys.StartupTime), latency))

	err := p.client.SetPresence(ctx,
		gateway.WithOnlineStatus(discord.OnlineStatusOnline),
		gateway.WithListeningActivity(text),
	)
	if err != nil {
		sys.LogStatus("Failed to update presence: %v", err)
	}
}

// pick chooses a line other than the previous one when there is a choice.
func (p *presenceRotator) pick(lines []string) string {
	choices := lo.Without(lines, p.last)
	if len(choices) == 0 {
		choices = lines
	}
	p.last = choices[rand.IntN(len(choices))]
	return p.last
}

func presenceLines(rooms []proc.RoomStatus, uptime, latency time.Duration) []string {
	lines := []string{"/music play"}

	playing := lo.CountBy(rooms, func(r proc.RoomStatus) bool {
		return r.State == proc.Playing.String()
	})
	switch playing {
	case 0:
	case 1:
		lines = append(lines, "music in 1 server")
	default:
		lines = append(lines, fmt.Sprintf("music in %d servers", playing))
	}
	if queued := lo.SumBy(rooms, func(r proc.RoomStatus) int { return r.Pending }); queued > 0 {
		lines = append(lines, fmt.Sprintf("%d queued tracks", queued))
	}

	lines = append(lines, fmt.Sprintf("for %dh %dm", int(uptime.Hours()), int(uptime.Minutes())%60))
	if latency > 0 {
		lines = append(lines, fmt.Sprintf("at %dms", latency.Milliseconds()))
	}
	return lines
}
