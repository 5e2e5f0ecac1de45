package media

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/leeineian/jukebox/proc"
)

const (
	SpotifyAPIBase   = "https://api.spotify.com/v1"
	SpotifyTokenURL  = "https://accounts.spotify.com/api/token"
	spotifyPageLimit = 100
)

var (
	ErrSpotifyNotConfigured = errors.New("spotify credentials not configured")

	spotifyURLRegex = regexp.MustCompile(`^https?://open\.spotify\.com/(?:intl-[a-z]{2}(?:-[a-z]{2})?/)?(track|playlist|album)/([A-Za-z0-9]+)`)
	ogTitleRegex    = regexp.MustCompile(`<meta[^>]*property=["']og:title["'][^>]*content=["']([^"']+)["']`)
	ogDescRegex     = regexp.MustCompile(`<meta[^>]*property=["']og:description["'][^>]*content=["']([^"']+)["']`)
)

// ParseSpotifyURL returns the kind ("track", "playlist" or "album") and id of
// an open.spotify.com link.
func ParseSpotifyURL(u string) (kind, id string, ok bool) {
	m := spotifyURLRegex.FindStringSubmatch(strings.TrimSpace(u))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

type spotifyToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type spotifyTrack struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMS int64  `json:"duration_ms"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Images []spotifyImage `json:"images"`
	} `json:"album"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

type spotifyImage struct {
	URL string `json:"url"`
}

type spotifyPage[T any] struct {
	Items []T    `json:"items"`
	Next  string `json:"next"`
	Total int    `json:"total"`
}

type spotifyPlaylistItem struct {
	Track *spotifyTrack `json:"track"`
}

// SpotifyCollection is a playlist or album expanded into deferred tracks.
type SpotifyCollection struct {
	Name   string
	Tracks []*proc.Track
}

// Spotify reads the public catalog with client credentials.
type Spotify struct {
	clientID     string
	clientSecret string
	apiBase      string
	tokenURL     string
	fetch        *fetcher
	now          func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewSpotify(clientID, clientSecret string, client *http.Client) *Spotify {
	return &Spotify{
		clientID:     clientID,
		clientSecret: clientSecret,
		apiBase:      SpotifyAPIBase,
		tokenURL:     SpotifyTokenURL,
		fetch:        newFetcher("spotify", client, 10),
		now:          time.Now,
	}
}

// Configured reports whether API credentials are set.
func (s *Spotify) Configured() bool {
	return s.clientID != "" && s.clientSecret != ""
}

func (s *Spotify) accessToken(ctx context.Context) (string, error) {
	if !s.Configured() {
		return "", ErrSpotifyNotConfigured
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.now().Before(s.expires) {
		return s.token, nil
	}

	var tok spotifyToken
	err := s.fetch.do(ctx, func(ctx context.Context) (*http.Request, error) {
		form := url.Values{"grant_type": {"client_credentials"}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(s.clientID, s.clientSecret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, &tok)
	if err != nil {
		return "", fmt.Errorf("failed to get spotify token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("spotify returned an empty token")
	}

	s.token = tok.AccessToken
	// Refresh a minute early.
	s.expires = s.now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return s.token, nil
}

func (s *Spotify) get(ctx context.Context, u string, result any) error {
	token, err := s.accessToken(ctx)
	if err != nil {
		return err
	}
	if strings.HasPrefix(u, "/") {
		u = s.apiBase + u
	}
	return s.fetch.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	}, result)
}

func (s *Spotify) deferred(t *spotifyTrack, thumb string) *proc.Track {
	artist := ""
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}
	page := t.ExternalURLs.Spotify
	if page == "" && t.ID != "" {
		page = "https://open.spotify.com/track/" + t.ID
	}
	tr := proc.NewDeferredTrack(proc.CatalogRef{Title: t.Name, Artist: artist, URL: page},
		time.Duration(t.DurationMS)*time.Millisecond)
	if len(t.Album.Images) > 0 {
		thumb = t.Album.Images[0].URL
	}
	tr.ThumbnailURL = thumb
	return tr
}

// ResolveTrack returns a deferred track for a Spotify track link. Without
// credentials the page's Open Graph tags are used instead.
func (s *Spotify) ResolveTrack(ctx context.Context, u string) (*proc.Track, error) {
	kind, id, ok := ParseSpotifyURL(u)
	if !ok || kind != "track" {
		return nil, fmt.Errorf("not a spotify track link: %s", u)
	}
	if !s.Configured() {
		title, artist, err := s.scrape(ctx, u)
		if err != nil {
			return nil, err
		}
		return proc.NewDeferredTrack(proc.CatalogRef{Title: title, Artist: artist, URL: u}, 0), nil
	}

	var t spotifyTrack
	if err := s.get(ctx, "/tracks/"+id, &t); err != nil {
		return nil, err
	}
	return s.deferred(&t, ""), nil
}

// ResolvePlaylist expands up to limit playlist items.
func (s *Spotify) ResolvePlaylist(ctx context.Context, u string, limit int) (*SpotifyCollection, error) {
	kind, id, ok := ParseSpotifyURL(u)
	if !ok || kind != "playlist" {
		return nil, fmt.Errorf("not a spotify playlist link: %s", u)
	}
	if limit <= 0 {
		limit = spotifyPageLimit
	}
	var meta struct {
		Name string `json:"name"`
	}
	if err := s.get(ctx, "/playlists/"+id+"?fields=name", &meta); err != nil {
		return nil, err
	}

	col := &SpotifyCollection{Name: meta.Name}
	next := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=0", id, spotifyPageLimit)
	for next != "" && len(col.Tracks) < limit {
		var page spotifyPage[spotifyPlaylistItem]
		if err := s.get(ctx, next, &page); err != nil {
			return nil, err
		}
		for _, it := range page.Items {
			if it.Track == nil || it.Track.Name == "" {
				continue
			}
			col.Tracks = append(col.Tracks, s.deferred(it.Track, ""))
			if len(col.Tracks) == limit {
				break
			}
		}
		next = page.Next
	}
	return col, nil
}

// ResolveAlbum expands up to limit album tracks. Album tracks carry no
// images of their own so the album cover is used.
func (s *Spotify) ResolveAlbum(ctx context.Context, u string, limit int) (*SpotifyCollection, error) {
	kind, id, ok := ParseSpotifyURL(u)
	if !ok || kind != "album" {
		return nil, fmt.Errorf("not a spotify album link: %s", u)
	}
	if limit <= 0 {
		limit = spotifyPageLimit
	}
	var album struct {
		Name   string                    `json:"name"`
		Images []spotifyImage            `json:"images"`
		Tracks spotifyPage[spotifyTrack] `json:"tracks"`
	}
	if err := s.get(ctx, "/albums/"+id, &album); err != nil {
		return nil, err
	}
	cover := ""
	if len(album.Images) > 0 {
		cover = album.Images[0].URL
	}

	col := &SpotifyCollection{Name: album.Name}
	page := album.Tracks
	for {
		for i := range page.Items {
			col.Tracks = append(col.Tracks, s.deferred(&page.Items[i], cover))
			if len(col.Tracks) == limit {
				return col, nil
			}
		}
		if page.Next == "" {
			return col, nil
		}
		next := page.Next
		page = spotifyPage[spotifyTrack]{}
		if err := s.get(ctx, next, &page); err != nil {
			return nil, err
		}
	}
}

// Lookup dispatches a Spotify link to the matching resolver.
func (s *Spotify) Lookup(ctx context.Context, u string, limit int) (*SpotifyCollection, error) {
	kind, _, ok := ParseSpotifyURL(u)
	if !ok {
		return nil, fmt.Errorf("not a spotify link: %s", u)
	}
	switch kind {
	case "playlist":
		return s.ResolvePlaylist(ctx, u, limit)
	case "album":
		return s.ResolveAlbum(ctx, u, limit)
	}
	t, err := s.ResolveTrack(ctx, u)
	if err != nil {
		return nil, err
	}
	return &SpotifyCollection{Name: t.Title, Tracks: []*proc.Track{t}}, nil
}

// scrape reads title and artist from a page's Open Graph tags.
func (s *Spotify) scrape(ctx context.Context, u string) (title, artist string, err error) {
	body, err := s.fetch.fetchPage(ctx, u)
	if err != nil {
		return "", "", err
	}
	return parseOpenGraph(body)
}

func parseOpenGraph(body string) (title, artist string, err error) {
	if i := strings.Index(body, "</head>"); i != -1 {
		body = body[:i]
	}
	if m := ogTitleRegex.FindStringSubmatch(body); len(m) > 1 {
		title = html.UnescapeString(m[1])
		if idx := strings.Index(title, " - song and lyrics by"); idx != -1 {
			title = title[:idx]
		}
		if idx := strings.Index(title, " | Spotify"); idx != -1 {
			title = title[:idx]
		}
	}
	if m := ogDescRegex.FindStringSubmatch(body); len(m) > 1 {
		parts := strings.Split(html.UnescapeString(m[1]), " · ")
		artist = strings.TrimSpace(parts[0])
	}
	if title == "" {
		return "", "", errors.New("could not extract metadata")
	}
	return title, artist, nil
}
