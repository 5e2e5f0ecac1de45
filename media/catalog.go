package media

import (
	"context"
	"errors"
	"strings"

	"github.com/leeineian/jukebox/proc"
)

// Lookup is what a play request expands to.
type Lookup struct {
	Name   string
	Tracks []*proc.Track
	// Deferred is set when the tracks still need resolving at play time.
	Deferred bool
}

// Catalog routes a user query to yt-dlp, search or Spotify.
type Catalog struct {
	Resolver *Resolver
	Spotify  *Spotify
	Limit    int
}

// Lookup expands query into tracks. Playlist and album links yield deferred
// tracks; anything else resolves a single playable track.
func (c *Catalog) Lookup(ctx context.Context, query string) (*Lookup, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoResults
	}
	limit := c.Limit
	if limit <= 0 {
		limit = 100
	}

	if _, _, ok := ParseSpotifyURL(query); ok {
		if c.Spotify == nil {
			return nil, ErrSpotifyNotConfigured
		}
		col, err := c.Spotify.Lookup(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		if len(col.Tracks) == 0 {
			return nil, ErrNoResults
		}
		return &Lookup{Name: col.Name, Tracks: col.Tracks, Deferred: true}, nil
	}

	if IsYouTubePlaylist(query) {
		tracks, err := c.Resolver.ResolvePlaylist(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		return &Lookup{Name: query, Tracks: tracks, Deferred: true}, nil
	}

	t, err := c.Resolver.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	return &Lookup{Name: t.Title, Tracks: []*proc.Track{t}}, nil
}

// IsNoResults reports whether err means the query matched nothing.
func IsNoResults(err error) bool {
	return errors.Is(err, ErrNoResults)
}
