package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

var (
	cachedJSArgs []string
	jsOnce       sync.Once

	videoIDRegex = regexp.MustCompile(`(?:\?|&)v=([A-Za-z0-9_-]{6,20})`)
	pathIDRegex  = regexp.MustCompile(`(?:youtu\.be/|/embed/|/v/|/shorts/|/live/)([A-Za-z0-9_-]{6,20})`)
)

// Metadata is what yt-dlp reports for a single video.
type Metadata struct {
	ID        string
	Title     string
	Uploader  string
	Duration  time.Duration
	Thumbnail string
	PageURL   string
}

// PlaylistEntry is one flat playlist item.
type PlaylistEntry struct {
	ID       string
	Title    string
	Uploader string
	Duration time.Duration
	URL      string
}

// Extractor wraps the yt-dlp lookups the resolver needs.
type Extractor interface {
	Metadata(ctx context.Context, u string) (*Metadata, error)
	Playlist(ctx context.Context, u string, limit int) ([]PlaylistEntry, error)
}

// NewYtdlp returns a quiet yt-dlp command routed through proxy when set.
func NewYtdlp(proxy string) *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings()

	if proxy != "" {
		cmd.Proxy(proxy)
	}
	return cmd
}

// YtdlpArgs returns common args for yt-dlp commands.
func YtdlpArgs() []string {
	jsOnce.Do(func() {
		for _, rt := range []string{"node", "deno", "quickjs"} {
			if path, err := exec.LookPath(rt); err == nil {
				cachedJSArgs = append(cachedJSArgs, "--js-runtimes", rt+":"+path)
				break
			}
		}
	})

	args := append([]string(nil), cachedJSArgs...)
	args = append(args,
		"--no-check-certificates",
		"--extractor-args", "youtube:player_client=android,web",
		"--socket-timeout", "30",
		"--retries", "20",
		"--fragment-retries", "20",
	)
	return args
}

// YtdlpExtractor runs the yt-dlp binary.
type YtdlpExtractor struct {
	Proxy string
}

const metadataTemplate = "%(id)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(thumbnail)s\t%(webpage_url)s"

func (y *YtdlpExtractor) Metadata(ctx context.Context, u string) (*Metadata, error) {
	u = strings.Replace(u, "music.youtube.com", "www.youtube.com", 1)

	args := append(YtdlpArgs(), "--no-playlist", "--skip-download")
	res, err := NewYtdlp(y.Proxy).
		Print(metadataTemplate).
		IgnoreConfig().
		Run(ctx, append(args, u)...)
	if err != nil {
		if res != nil && strings.Contains(strings.ToLower(res.Stderr), "drm") {
			return nil, fmt.Errorf("DRM protected: %w", err)
		}
		return nil, err
	}
	return parseMetadata(res.Stdout)
}

func (y *YtdlpExtractor) Playlist(ctx context.Context, u string, limit int) ([]PlaylistEntry, error) {
	res, err := NewYtdlp(y.Proxy).
		FlatPlaylist().
		Print("%(id)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(url)s").
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		IgnoreConfig().
		Run(ctx, append(YtdlpArgs(), "--yes-playlist", u)...)
	if err != nil {
		if res != nil && res.Stderr != "" {
			return nil, fmt.Errorf("yt-dlp playlist failed: %w, stderr: %s", err, strings.TrimSpace(res.Stderr))
		}
		return nil, fmt.Errorf("yt-dlp playlist failed: %w", err)
	}
	return parsePlaylist(res.Stdout, IsYouTubeURL(u)), nil
}

func parseMetadata(out string) (*Metadata, error) {
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 6 || ps[0] == "" {
			continue
		}
		m := &Metadata{
			ID:        ps[0],
			Title:     na(ps[1]),
			Uploader:  na(ps[2]),
			Duration:  parseSeconds(ps[3]),
			Thumbnail: na(ps[4]),
			PageURL:   na(ps[5]),
		}
		if m.PageURL == "" {
			m.PageURL = "https://www.youtube.com/watch?v=" + m.ID
		}
		return m, nil
	}
	return nil, errors.New("failed to parse metadata")
}

func parsePlaylist(out string, youtube bool) []PlaylistEntry {
	var es []PlaylistEntry
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 5 {
			continue
		}
		e := PlaylistEntry{
			ID:       na(ps[0]),
			Title:    na(ps[1]),
			Uploader: na(ps[2]),
			Duration: parseSeconds(ps[3]),
			URL:      na(ps[4]),
		}
		if youtube && e.ID != "" {
			e.URL = "https://www.youtube.com/watch?v=" + e.ID
		}
		if e.URL == "" || e.Title == "" {
			continue
		}
		es = append(es, e)
	}
	return es
}

// na maps yt-dlp's placeholder for missing fields to "".
func na(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" {
		return ""
	}
	return s
}

// parseSeconds accepts yt-dlp's integer or fractional second counts.
func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

// ExtractVideoID returns the YouTube video id of u, or "".
func ExtractVideoID(u string) string {
	if m := videoIDRegex.FindStringSubmatch(u); len(m) > 1 {
		return m[1]
	}
	if m := pathIDRegex.FindStringSubmatch(u); len(m) > 1 {
		return m[1]
	}
	return ""
}

// IsYouTubeURL reports whether u points at YouTube or YouTube Music.
func IsYouTubeURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be", "youtube-nocookie.com":
		return true
	}
	return false
}

// IsYouTubePlaylist reports whether u lists a playlist rather than a video.
func IsYouTubePlaylist(u string) bool {
	if !IsYouTubeURL(u) {
		return false
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return parsed.Query().Get("list") != "" && (parsed.Path == "/playlist" || ExtractVideoID(u) == "")
}

// IsURL reports whether q looks like an http(s) link.
func IsURL(q string) bool {
	return strings.HasPrefix(q, "http://") || strings.HasPrefix(q, "https://")
}
