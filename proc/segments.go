package proc

import (
	"slices"
	"time"
)

// Segment is a [Start, End) range flagged for automatic skipping.
type Segment struct {
	Category string
	Start    time.Duration
	End      time.Duration
}

func (s Segment) Contains(pos time.Duration) bool {
	return pos >= s.Start && pos < s.End
}

// SegmentList is ordered by Start and free of overlaps.
type SegmentList []Segment

// NewSegmentList sorts segs, drops empty ranges and merges overlaps.
func NewSegmentList(segs []Segment) SegmentList {
	valid := make([]Segment, 0, len(segs))
	for _, s := range segs {
		if s.Start < 0 {
			s.Start = 0
		}
		if s.End > s.Start {
			valid = append(valid, s)
		}
	}
	slices.SortFunc(valid, func(a, b Segment) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})

	out := make(SegmentList, 0, len(valid))
	for _, s := range valid {
		if n := len(out); n > 0 && s.Start <= out[n-1].End {
			if s.End > out[n-1].End {
				out[n-1].End = s.End
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// SegmentCursor walks a SegmentList in start order. Each segment fires at
// most once; segments already behind the playhead are consumed silently.
type SegmentCursor struct {
	list SegmentList
	next int
}

// NewSegmentCursor arms every segment that ends after pos.
func NewSegmentCursor(list SegmentList, pos time.Duration) SegmentCursor {
	c := SegmentCursor{list: list}
	c.Reset(pos)
	return c
}

// Reset re-arms the cursor after a user seek to pos.
func (c *SegmentCursor) Reset(pos time.Duration) {
	c.next = 0
	for c.next < len(c.list) && c.list[c.next].End <= pos {
		c.next++
	}
}

// Check returns the segment pos has entered, if it has not fired yet.
func (c *SegmentCursor) Check(pos time.Duration) (Segment, bool) {
	for c.next < len(c.list) {
		s := c.list[c.next]
		if pos >= s.End {
			c.next++
			continue
		}
		if pos >= s.Start {
			c.next++
			return s, true
		}
		break
	}
	return Segment{}, false
}

// Remaining reports how many segments can still fire.
func (c *SegmentCursor) Remaining() int {
	return len(c.list) - c.next
}
