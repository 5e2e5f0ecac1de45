package proc

import (
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

// TrackKind tells whether a track can be handed to the transport as is.
type TrackKind int

const (
	Resolved TrackKind = iota
	Deferred
)

func (k TrackKind) String() string {
	if k == Deferred {
		return "deferred"
	}
	return "resolved"
}

// StreamRef is what the voice transport opens.
type StreamRef struct {
	URL     string
	PageURL string
}

// CatalogRef describes a catalog item that still needs a resolver lookup.
type CatalogRef struct {
	Title  string
	Artist string
	URL    string
	// Query overrides the "title artist" lookup, e.g. with a video page URL.
	Query string
}

// Track is one queue entry. Tracks are treated as immutable once queued;
// resolution and segment lookup produce copies that keep the same ID.
type Track struct {
	ID           string
	Title        string
	Artist       string
	Duration     time.Duration
	ThumbnailURL string
	PageURL      string
	RequesterID  snowflake.ID

	Stream   *StreamRef
	Catalog  *CatalogRef
	Segments SegmentList
}

// NewResolvedTrack creates a playable track.
func NewResolvedTrack(ref StreamRef, title, artist string, duration time.Duration) *Track {
	return &Track{
		ID:       uuid.NewString(),
		Title:    title,
		Artist:   artist,
		Duration: duration,
		PageURL:  ref.PageURL,
		Stream:   &ref,
	}
}

// NewDeferredTrack creates a catalog entry that is resolved right before it plays.
func NewDeferredTrack(ref CatalogRef, duration time.Duration) *Track {
	return &Track{
		ID:       uuid.NewString(),
		Title:    ref.Title,
		Artist:   ref.Artist,
		Duration: duration,
		PageURL:  ref.URL,
		Catalog:  &ref,
	}
}

func (t *Track) Kind() TrackKind {
	if t.Stream == nil {
		return Deferred
	}
	return Resolved
}

// Query is the string handed to the resolver for a deferred track.
func (t *Track) Query() string {
	if t.Catalog != nil {
		if t.Catalog.Query != "" {
			return t.Catalog.Query
		}
		return strings.TrimSpace(t.Catalog.Title + " " + t.Catalog.Artist)
	}
	if t.Stream != nil {
		return t.Stream.PageURL
	}
	return t.Title
}

// RequestedBy returns a copy owned by requester.
func (t *Track) RequestedBy(requester snowflake.ID) *Track {
	cp := *t
	cp.RequesterID = requester
	return &cp
}

// WithResolution merges a resolver result into a copy of t, keeping the
// identity and requester of the queued entry.
func (t *Track) WithResolution(r *Track) *Track {
	cp := *t
	cp.Stream = r.Stream
	if r.Title != "" {
		cp.Title = r.Title
	}
	if r.Artist != "" {
		cp.Artist = r.Artist
	}
	if r.Duration > 0 {
		cp.Duration = r.Duration
	}
	if r.ThumbnailURL != "" {
		cp.ThumbnailURL = r.ThumbnailURL
	}
	if r.PageURL != "" {
		cp.PageURL = r.PageURL
	}
	if len(r.Segments) > 0 {
		cp.Segments = r.Segments
	}
	return &cp
}

// WithSegments returns a copy of t carrying segs.
func (t *Track) WithSegments(segs SegmentList) *Track {
	cp := *t
	cp.Segments = segs
	return &cp
}

// DisplayURL is the link shown to users.
func (t *Track) DisplayURL() string {
	if t.PageURL != "" {
		return t.PageURL
	}
	if t.Catalog != nil {
		return t.Catalog.URL
	}
	return ""
}
