package home

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
	"github.com/samber/lo"
)

const (
	barCells      = 24
	barFilled     = "━"
	barEmpty      = "─"
	queuePageSize = 10
)

var sliderGlyphs = []string{"⬤", "◉", "○", "◉"}

var visualizerFrames = []string{
	"▁▂▃▄▅▆▇█▇▆▅▄▃▂▁",
	"▂▃▄▅▆▇█▇▆▅▄▃▂▁▁",
	"▃▄▅▆▇█▇▆▅▄▃▂▁▁▂",
	"▄▅▆▇█▇▆▅▄▃▂▁▁▂▃",
	"▅▆▇█▇▆▅▄▃▂▁▁▂▃▄",
	"▆▇█▇▆▅▄▃▂▁▁▂▃▄▅",
	"▇█▇▆▅▄▃▂▁▁▂▃▄▅▆",
	"█▇▆▅▄▃▂▁▁▂▃▄▅▆▇",
	"▇▆▅▄▃▂▁▁▂▃▄▅▆▇█",
	"▆▅▄▃▂▁▁▂▃▄▅▆▇█▇",
	"▅▄▃▂▁▁▂▃▄▅▆▇█▇▆",
	"▄▃▂▁▁▂▃▄▅▆▇█▇▆▅",
	"▃▂▁▁▂▃▄▅▆▇█▇▆▅▄",
	"▂▁▁▂▃▄▅▆▇█▇▆▅▄▃",
}

// progressBar draws the played fraction with the slider glyph for frame.
// An unknown fraction (negative) keeps the slider at the start.
func progressBar(progress float64, frame int) string {
	filled := 0
	if progress > 0 {
		filled = min(int(math.Floor(barCells*progress)), barCells-1)
	}
	slider := sliderGlyphs[frame%len(sliderGlyphs)]
	return strings.Repeat(barFilled, filled) + slider + strings.Repeat(barEmpty, barCells-filled-1)
}

// visualizer mirrors one wave frame around a note.
func visualizer(frame int) string {
	left := visualizerFrames[frame%len(visualizerFrames)]
	right := string(lo.Reverse([]rune(left)))
	return left + " ♪ " + right
}

func trackLength(d time.Duration) string {
	if d <= 0 {
		return "live"
	}
	return sys.FormatClock(d)
}

func trackLink(t *proc.Track) string {
	title := sys.EscapeMarkdown(sys.Truncate(t.Title, 80))
	if u := t.DisplayURL(); u != "" {
		return fmt.Sprintf("[%s](%s)", title, u)
	}
	return title
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func percent(v float64) int {
	return int(math.Round(v * 100))
}

// renderNowPlaying builds the now playing card.
func renderNowPlaying(np proc.NowPlaying) sys.Container {
	t := np.Track
	if t == nil {
		return sys.NewV2Container(sys.NewTextDisplay(sys.MsgMusicNothingPlaying))
	}

	heading := "### 🎵 Now Playing"
	if np.Paused {
		heading = "### ⏸️ Paused"
	}

	var head strings.Builder
	fmt.Fprintf(&head, "%s\n**%s**\n```ansi\n%s\n```", heading, trackLink(t), visualizer(np.Frame))

	var progress strings.Builder
	progress.WriteString(progressBar(np.Progress(), np.Frame))
	if p := np.Progress(); p >= 0 {
		fmt.Fprintf(&progress, "\n`%s / %s` (%.0f%%)", sys.FormatClock(np.Elapsed), sys.FormatClock(t.Duration), p*100)
	} else {
		fmt.Fprintf(&progress, "\n`%s / live`", sys.FormatClock(np.Elapsed))
	}

	info := make([]string, 0, 7)
	if t.RequesterID != 0 {
		info = append(info, fmt.Sprintf("👤 **Requested by:** <@%s>", t.RequesterID))
	}
	if t.Artist != "" {
		info = append(info, "📺 **Uploader:** "+sys.EscapeMarkdown(t.Artist))
	}
	info = append(info,
		"⏱️ **Duration:** "+trackLength(t.Duration),
	)
	if t.Duration > 0 {
		info = append(info, "⌛ **Remaining:** "+sys.FormatClock(np.Remaining()))
	}
	info = append(info,
		fmt.Sprintf("🔁 **Repeat:** %s", onOff(np.Loop)),
		fmt.Sprintf("🔊 **Volume:** %d%%", percent(np.Volume)),
		fmt.Sprintf("📝 **In Queue:** %d tracks", np.QueueLen),
	)

	var next string
	if n := np.Next; n != nil {
		next = fmt.Sprintf("⏭️ **Playing Next:**\n**%s** `%s`", trackLink(n), trackLength(n.Duration))
		if n.RequesterID != 0 {
			next += fmt.Sprintf("\n👤 <@%s>", n.RequesterID)
		}
	} else {
		next = "📪 End of queue reached"
	}

	var top any = sys.NewTextDisplay(head.String())
	if t.ThumbnailURL != "" {
		top = sys.NewSection(head.String(), sys.NewThumbnail(t.ThumbnailURL))
	}

	return sys.NewV2Container(
		top,
		sys.NewTextDisplay(progress.String()),
		sys.NewSeparator(true),
		sys.NewTextDisplay(strings.Join(info, "\n")),
		sys.NewSeparator(true),
		sys.NewTextDisplay(next),
	)
}

// queuePages is the number of pages for n pending tracks, at least one.
func queuePages(n int) int {
	return max(1, (n+queuePageSize-1)/queuePageSize)
}

// renderQueuePage lists one page of pending tracks with 1-based positions.
// page is clamped into range and the clamped value is returned.
func renderQueuePage(snap proc.QueueSnapshot, page int) (string, int) {
	pages := queuePages(len(snap.Pending))
	page = lo.Clamp(page, 0, pages-1)

	var sb strings.Builder
	fmt.Fprintf(&sb, sys.MsgMusicQueueHeader, len(snap.Pending), page+1, pages)
	sb.WriteString("\n")
	if snap.Current != nil {
		fmt.Fprintf(&sb, "Now: **%s** `%s`\n", trackLink(snap.Current), trackLength(snap.Current.Duration))
	}
	sb.WriteString("\n")

	if len(snap.Pending) == 0 {
		sb.WriteString(sys.MsgMusicQueueEmpty)
	}
	start := page * queuePageSize
	for i, t := range lo.Slice(snap.Pending, start, start+queuePageSize) {
		fmt.Fprintf(&sb, sys.MsgMusicQueueLine,
			start+i+1, sys.EscapeMarkdown(sys.Truncate(t.Title, 60)), trackLength(t.Duration), t.RequesterID)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	fmt.Fprintf(&sb, sys.MsgMusicQueueFooter, onOff(snap.Loop), percent(snap.Volume))
	return sb.String(), page
}

// queueTarget maps a paging button to the page it leads to.
func queueTarget(direction string, page, pages int) int {
	switch direction {
	case "first":
		page = 0
	case "prev":
		page--
	case "next":
		page++
	case "last":
		page = pages - 1
	}
	return lo.Clamp(page, 0, max(pages-1, 0))
}

func queueButtons(page, pages int) []discord.InteractiveComponent {
	btn := func(label, direction string, disabled bool) discord.InteractiveComponent {
		b := discord.NewSecondaryButton(label, fmt.Sprintf("music:queue:%s:%d", direction, page))
		if disabled {
			b = b.AsDisabled()
		}
		return b
	}
	atStart, atEnd := page <= 0, page >= pages-1
	return []discord.InteractiveComponent{
		btn("⏮", "first", atStart),
		btn("◀", "prev", atStart),
		btn("🔄", "refresh", false),
		btn("▶", "next", atEnd),
		btn("⏭", "last", atEnd),
	}
}

func queueContainer(snap proc.QueueSnapshot, page int) discord.ContainerComponent {
	content, page := renderQueuePage(snap, page)
	return discord.NewContainer(
		discord.NewTextDisplay(content),
		discord.NewActionRow(queueButtons(page, queuePages(len(snap.Pending)))...),
	)
}

func confirmContainer(prompt, key string, userID fmt.Stringer) discord.ContainerComponent {
	return discord.NewContainer(
		discord.NewTextDisplay(prompt),
		discord.NewActionRow(
			discord.NewDangerButton("Confirm", fmt.Sprintf("music:confirm:yes:%s:%s", key, userID)),
			discord.NewSecondaryButton("Cancel", fmt.Sprintf("music:confirm:no:%s:%s", key, userID)),
		),
	)
}
