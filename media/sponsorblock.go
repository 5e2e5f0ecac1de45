package media

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

const segmentCacheTTL = time.Hour

// DefaultCategories are the SponsorBlock categories skipped when none are configured.
var DefaultCategories = []string{"sponsor", "selfpromo", "interaction", "intro", "outro", "preview", "filler", "music_offtopic"}

type sponsorSegment struct {
	Segment    [2]float64 `json:"segment"`
	Category   string     `json:"category"`
	ActionType string     `json:"actionType"`
	UUID       string     `json:"UUID"`
}

// SponsorBlock looks up skip segments for YouTube videos.
type SponsorBlock struct {
	base       string
	categories []string
	fetch      *fetcher
	cache      Cache
}

func NewSponsorBlock(base string, categories []string, client *http.Client, cache Cache) *SponsorBlock {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	return &SponsorBlock{
		base:       base,
		categories: categories,
		fetch:      newFetcher("sponsorblock", client, 5),
		cache:      cache,
	}
}

// SkipSegments implements proc.SegmentSource. Pages that are not YouTube
// videos and lookups that fail return nil.
func (s *SponsorBlock) SkipSegments(ctx context.Context, pageURL string) []proc.Segment {
	id := ExtractVideoID(pageURL)
	if id == "" || !IsYouTubeURL(pageURL) {
		return nil
	}

	key := "segments:" + id
	var segs []proc.Segment
	if s.cache != nil && s.cache.Get(ctx, key, &segs) {
		return segs
	}

	segs, err := s.lookup(ctx, id)
	if err != nil {
		sys.LogCatalog(sys.MsgCatalogSegmentsFail, id, err)
		return nil
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, segs, segmentCacheTTL)
	}
	return segs
}

func (s *SponsorBlock) lookup(ctx context.Context, videoID string) ([]proc.Segment, error) {
	cats, err := json.Marshal(s.categories)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("videoID", videoID)
	q.Set("categories", string(cats))
	endpoint := s.base + "/api/skipSegments?" + q.Encode()

	var raw []sponsorSegment
	err = s.fetch.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, &raw)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return []proc.Segment{}, nil
		}
		return nil, err
	}

	segs := make([]proc.Segment, 0, len(raw))
	for _, r := range raw {
		if r.ActionType != "" && r.ActionType != "skip" {
			continue
		}
		segs = append(segs, proc.Segment{
			Category: r.Category,
			Start:    seconds(r.Segment[0]),
			End:      seconds(r.Segment[1]),
		})
	}
	return proc.NewSegmentList(segs), nil
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
