package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

const metadataCacheTTL = 6 * time.Hour

var ErrNoResults = errors.New("no results")

// TrackSearcher is the part of Searcher the resolver needs.
type TrackSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// Resolver turns queries and links into playable tracks through yt-dlp.
type Resolver struct {
	extractor Extractor
	search    TrackSearcher
	cache     Cache
}

func NewResolver(extractor Extractor, search TrackSearcher, cache Cache) *Resolver {
	return &Resolver{extractor: extractor, search: search, cache: cache}
}

// Resolve implements proc.Resolver. Links are looked up directly, anything
// else through the top search hit.
func (r *Resolver) Resolve(ctx context.Context, query string) (*proc.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoResults
	}

	page := query
	if !IsURL(query) {
		if r.search == nil {
			return nil, ErrNoResults
		}
		hits, err := r.search.Search(ctx, query, 1)
		if err != nil {
			return nil, err
		}
		if len(hits) == 0 {
			return nil, ErrNoResults
		}
		page = hits[0].URL()
	}

	m, err := r.metadata(ctx, page)
	if err != nil {
		sys.LogCatalog(sys.MsgCatalogResolveFail, query, err)
		return nil, err
	}
	t := proc.NewResolvedTrack(proc.StreamRef{URL: m.PageURL, PageURL: m.PageURL}, m.Title, m.Uploader, m.Duration)
	t.ThumbnailURL = m.Thumbnail
	return t, nil
}

func (r *Resolver) metadata(ctx context.Context, page string) (*Metadata, error) {
	key := "meta:" + page
	if id := ExtractVideoID(page); id != "" {
		key = "meta:yt:" + id
	}
	var m Metadata
	if r.cache != nil && r.cache.Get(ctx, key, &m) {
		return &m, nil
	}
	got, err := r.extractor.Metadata(ctx, page)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Set(ctx, key, got, metadataCacheTTL)
	}
	return got, nil
}

// ResolvePlaylist lists up to limit entries of a playlist link as deferred
// tracks that resolve by their page URL.
func (r *Resolver) ResolvePlaylist(ctx context.Context, u string, limit int) ([]*proc.Track, error) {
	if limit <= 0 {
		limit = 100
	}
	entries, err := r.extractor.Playlist(ctx, u, limit)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w in playlist", ErrNoResults)
	}
	tracks := make([]*proc.Track, 0, len(entries))
	for _, e := range entries {
		tracks = append(tracks, proc.NewDeferredTrack(proc.CatalogRef{
			Title:  e.Title,
			Artist: e.Uploader,
			URL:    e.URL,
			Query:  e.URL,
		}, e.Duration))
	}
	sys.LogCatalog(sys.MsgCatalogPlaylist, u, len(tracks))
	return tracks, nil
}
