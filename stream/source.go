package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/leeineian/jukebox/media"
)

// Source writes the raw audio of a page into w starting at offset.
type Source func(ctx context.Context, u string, offset time.Duration, w io.Writer) error

// YtdlpSource pipes yt-dlp's best audio format to w.
func YtdlpSource(proxy string) Source {
	return func(ctx context.Context, u string, offset time.Duration, w io.Writer) error {
		u = strings.Replace(u, "music.youtube.com", "www.youtube.com", 1)

		args := append(media.YtdlpArgs(), "--ignore-config")
		args = append(args, sectionArgs(offset)...)
		cmd := media.NewYtdlp(proxy).
			Format("bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best").
			Output("-").
			NoSimulate().
			NoPart().
			NoPlaylist().
			NoCheckCertificates().
			BuildCommand(ctx, append(args, u)...)

		cmd.Stdout = w
		cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
		if proxy != "" {
			cmd.Env = append(cmd.Env, "http_proxy="+proxy, "https_proxy="+proxy, "all_proxy="+proxy)
		}
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			msg := strings.ToLower(err.Error() + stderr.String())
			if strings.Contains(msg, "broken pipe") || strings.Contains(msg, "signal: killed") || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %s", err, strings.TrimSpace(lastLine(stderr.String())))
		}
		return nil
	}
}

// sectionArgs starts the download at offset. yt-dlp hands sections to
// ffmpeg, which cuts before writing to stdout.
func sectionArgs(offset time.Duration) []string {
	if offset <= 0 {
		return nil
	}
	return []string{"--download-sections", fmt.Sprintf("*%.3f-inf", offset.Seconds())}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i != -1 {
		return s[i+1:]
	}
	return s
}
