package media

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/leeineian/jukebox/sys"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
)

const (
	searchTimeout  = 2300 * time.Millisecond
	searchCacheTTL = time.Hour
	maxResults     = 25
)

// SearchResult is one autocomplete candidate.
type SearchResult struct {
	VideoID string `json:"id"`
	Title   string `json:"title"`
	Artist  string `json:"artist,omitempty"`
	Source  string `json:"source"`
}

// URL is the watch page for the result.
func (r SearchResult) URL() string {
	if r.Source == "ytmusic" {
		return "https://music.youtube.com/watch?v=" + r.VideoID
	}
	return "https://www.youtube.com/watch?v=" + r.VideoID
}

// Label is the autocomplete display text, at most 100 runes. Long labels
// lose their middle so the source tag and the artist both survive.
func (r SearchResult) Label() string {
	prefix := "[YT] "
	if r.Source == "ytmusic" {
		prefix = "[YTM] "
	}
	s := r.Title
	if r.Artist != "" {
		s += " - " + r.Artist
	}
	return sys.TruncateCenter(prefix+s, 100)
}

// SearchBackend is one search provider.
type SearchBackend func(ctx context.Context, query string) ([]SearchResult, error)

// Searcher queries YouTube Music and YouTube concurrently.
type Searcher struct {
	backends []SearchBackend
	cache    Cache
	timeout  time.Duration
}

// NewSearcher returns a searcher over YouTube Music then YouTube.
func NewSearcher(cache Cache) *Searcher {
	return NewSearcherWith(cache, searchYTMusic, searchYouTube)
}

// NewSearcherWith uses the given backends; earlier backends rank first.
func NewSearcherWith(cache Cache, backends ...SearchBackend) *Searcher {
	return &Searcher{backends: backends, cache: cache, timeout: searchTimeout}
}

func searchYTMusic(_ context.Context, q string) ([]SearchResult, error) {
	r, err := ytmusic.TrackSearch(q).Next()
	if err != nil {
		return nil, err
	}
	var out []SearchResult
	for _, v := range r.Tracks {
		if v.VideoID == "" {
			continue
		}
		art := ""
		if len(v.Artists) > 0 {
			art = v.Artists[0].Name
		}
		out = append(out, SearchResult{VideoID: v.VideoID, Title: v.Title, Artist: art, Source: "ytmusic"})
	}
	return out, nil
}

func searchYouTube(ctx context.Context, q string) ([]SearchResult, error) {
	r, err := ytsearch.NewClient(nil).Search(ctx, q)
	if err != nil {
		return nil, err
	}
	var out []SearchResult
	for _, v := range r.Results {
		if v.VideoID == "" {
			continue
		}
		out = append(out, SearchResult{VideoID: v.VideoID, Title: v.Title, Source: "youtube"})
	}
	return out, nil
}

// Search returns up to limit merged results. Backends that miss the deadline
// are dropped; when nothing comes back the first error is returned.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 || limit > maxResults {
		limit = maxResults
	}

	key := "search:" + strings.ToLower(query)
	var cached []SearchResult
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		return clip(cached, limit), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type outcome struct {
		res  []SearchResult
		err  error
		done bool
	}
	var mu sync.Mutex
	outs := make([]outcome, len(s.backends))
	var wg sync.WaitGroup
	for i, b := range s.backends {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := b(ctx, query)
			mu.Lock()
			outs[i] = outcome{res, err, true}
			mu.Unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	snapshot := append([]outcome(nil), outs...)
	mu.Unlock()

	var (
		fin      []SearchResult
		firstErr error
		seen     = make(map[string]bool)
	)
	for i, o := range snapshot {
		if !o.done {
			continue
		}
		if o.err != nil {
			sys.LogCatalog(sys.MsgCatalogSearchFail, backendName(i), query, o.err)
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		for _, r := range o.res {
			if seen[r.VideoID] {
				continue
			}
			seen[r.VideoID] = true
			fin = append(fin, r)
		}
	}
	if len(fin) == 0 {
		if firstErr == nil {
			firstErr = ctx.Err()
		}
		return nil, firstErr
	}
	fin = clip(fin, maxResults)
	if s.cache != nil {
		s.cache.Set(context.WithoutCancel(ctx), key, fin, searchCacheTTL)
	}
	return clip(fin, limit), nil
}

func backendName(i int) string {
	switch i {
	case 0:
		return "ytmusic"
	case 1:
		return "youtube"
	}
	return "backend"
}

func clip(rs []SearchResult, n int) []SearchResult {
	if len(rs) > n {
		return rs[:n]
	}
	return rs
}
