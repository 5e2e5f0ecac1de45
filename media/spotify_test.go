package media

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leeineian/jukebox/proc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spotifyFixture struct {
	srv        *httptest.Server
	sp         *Spotify
	tokenCalls atomic.Int32
}

func newSpotifyFixture(t *testing.T) *spotifyFixture {
	t.Helper()
	f := &spotifyFixture{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		fmt.Fprint(w, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/v1/tracks/t1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"id":"t1","name":"Song","duration_ms":180000,"artists":[{"name":"Band"},{"name":"Guest"}],
			"album":{"images":[{"url":"https://img/cover.jpg"}]},"external_urls":{"spotify":"https://open.spotify.com/track/t1"}}`)
	})
	mux.HandleFunc("/v1/playlists/p1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"Mix"}`)
	})
	mux.HandleFunc("/v1/playlists/p1/tracks", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "0" {
			fmt.Fprintf(w, `{"items":[{"track":{"id":"a","name":"A","artists":[{"name":"X"}]}},{"track":null}],"next":"%s/v1/playlists/p1/tracks?offset=100"}`, f.srv.URL)
			return
		}
		fmt.Fprint(w, `{"items":[{"track":{"id":"b","name":"B"}},{"track":{"id":"c","name":"C"}}],"next":""}`)
	})
	mux.HandleFunc("/v1/albums/al1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"name":"Record","images":[{"url":"https://img/album.jpg"}],
			"tracks":{"items":[{"id":"1","name":"One","artists":[{"name":"Band"}]}],"next":"%s/v1/albums/al1/tracks?offset=50"}}`, f.srv.URL)
	})
	mux.HandleFunc("/v1/albums/al1/tracks", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[{"id":"2","name":"Two","artists":[{"name":"Band"}]}],"next":""}`)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head>
			<meta property="og:title" content="Song Title - song and lyrics by Band | Spotify"/>
			<meta property="og:description" content="Band · Album · Song · 2020"/>
			</head><body></body></html>`)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	f.sp = NewSpotify("id", "secret", f.srv.Client())
	f.sp.apiBase = f.srv.URL + "/v1"
	f.sp.tokenURL = f.srv.URL + "/token"
	f.sp.fetch.retryWait = time.Millisecond
	return f
}

func TestParseSpotifyURL(t *testing.T) {
	kind, id, ok := ParseSpotifyURL("https://open.spotify.com/intl-de/track/4uLU6hMCjMI75M1A2tKUQC?si=x")
	require.True(t, ok)
	assert.Equal(t, "track", kind)
	assert.Equal(t, "4uLU6hMCjMI75M1A2tKUQC", id)

	kind, _, ok = ParseSpotifyURL("https://open.spotify.com/album/1DFixLWuPkv3KT3TnV35m3")
	assert.True(t, ok)
	assert.Equal(t, "album", kind)

	_, _, ok = ParseSpotifyURL("https://open.spotify.com/artist/0OdUWJ0sBjDrqHygGUXeCF")
	assert.False(t, ok)
}

func TestSpotify_ResolveTrack(t *testing.T) {
	f := newSpotifyFixture(t)
	tr, err := f.sp.ResolveTrack(context.Background(), "https://open.spotify.com/track/t1")
	require.NoError(t, err)
	assert.Equal(t, proc.Deferred, tr.Kind())
	assert.Equal(t, "Song Band", tr.Query())
	assert.Equal(t, 3*time.Minute, tr.Duration)
	assert.Equal(t, "https://img/cover.jpg", tr.ThumbnailURL)
	assert.Equal(t, "https://open.spotify.com/track/t1", tr.PageURL)

	_, err = f.sp.ResolveTrack(context.Background(), "https://open.spotify.com/track/t1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestSpotify_TokenRefreshesAfterExpiry(t *testing.T) {
	f := newSpotifyFixture(t)
	now := time.Unix(0, 0)
	f.sp.now = func() time.Time { return now }

	_, err := f.sp.ResolveTrack(context.Background(), "https://open.spotify.com/track/t1")
	require.NoError(t, err)
	now = now.Add(time.Hour)
	_, err = f.sp.ResolveTrack(context.Background(), "https://open.spotify.com/track/t1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestSpotify_ResolvePlaylistPaginates(t *testing.T) {
	f := newSpotifyFixture(t)
	col, err := f.sp.ResolvePlaylist(context.Background(), "https://open.spotify.com/playlist/p1", 10)
	require.NoError(t, err)
	assert.Equal(t, "Mix", col.Name)
	require.Len(t, col.Tracks, 3)
	assert.Equal(t, "A", col.Tracks[0].Title)
	assert.Equal(t, "https://open.spotify.com/track/b", col.Tracks[1].PageURL)

	col, err = f.sp.ResolvePlaylist(context.Background(), "https://open.spotify.com/playlist/p1", 2)
	require.NoError(t, err)
	assert.Len(t, col.Tracks, 2)
}

func TestSpotify_ResolveAlbum(t *testing.T) {
	f := newSpotifyFixture(t)
	col, err := f.sp.Lookup(context.Background(), "https://open.spotify.com/album/al1", 10)
	require.NoError(t, err)
	assert.Equal(t, "Record", col.Name)
	require.Len(t, col.Tracks, 2)
	assert.Equal(t, "https://img/album.jpg", col.Tracks[1].ThumbnailURL)
	assert.Equal(t, "Two Band", col.Tracks[1].Query())
}

func TestSpotify_ScrapeWithoutCredentials(t *testing.T) {
	f := newSpotifyFixture(t)
	sp := NewSpotify("", "", f.srv.Client())
	assert.False(t, sp.Configured())

	title, artist, err := sp.scrape(context.Background(), f.srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, "Song Title", title)
	assert.Equal(t, "Band", artist)

	_, err = sp.ResolvePlaylist(context.Background(), "https://open.spotify.com/playlist/p1", 5)
	assert.ErrorIs(t, err, ErrSpotifyNotConfigured)
}

func TestParseOpenGraph_Missing(t *testing.T) {
	_, _, err := parseOpenGraph("<html><head></head></html>")
	assert.Error(t, err)
}
