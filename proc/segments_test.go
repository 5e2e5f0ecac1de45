package proc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func secs(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func TestNewSegmentList(t *testing.T) {
	list := NewSegmentList([]Segment{
		{Category: "outro", Start: secs(90), End: secs(100)},
		{Category: "sponsor", Start: secs(10), End: secs(20)},
		{Category: "broken", Start: secs(50), End: secs(40)},
		{Category: "selfpromo", Start: secs(15), End: secs(25)},
		{Category: "intro", Start: secs(-3), End: secs(2)},
	})

	assert.Equal(t, SegmentList{
		{Category: "intro", Start: 0, End: secs(2)},
		{Category: "sponsor", Start: secs(10), End: secs(25)},
		{Category: "outro", Start: secs(90), End: secs(100)},
	}, list)
}

func TestSegmentCursor_Boundary(t *testing.T) {
	list := NewSegmentList([]Segment{{Category: "sponsor", Start: secs(10), End: secs(20)}})
	c := NewSegmentCursor(list, 0)

	_, hit := c.Check(secs(9.9))
	assert.False(t, hit)

	seg, hit := c.Check(secs(10))
	assert.True(t, hit)
	assert.Equal(t, secs(20), seg.End)

	_, hit = c.Check(secs(19.9))
	assert.False(t, hit, "a segment fires once")

	_, hit = c.Check(secs(20))
	assert.False(t, hit)
	assert.Equal(t, 0, c.Remaining())
}

func TestSegmentCursor_SkipsSegmentsBehind(t *testing.T) {
	list := NewSegmentList([]Segment{
		{Category: "intro", Start: 0, End: secs(5)},
		{Category: "sponsor", Start: secs(30), End: secs(40)},
	})
	c := NewSegmentCursor(list, 0)

	seg, hit := c.Check(secs(31))
	assert.True(t, hit)
	assert.Equal(t, "sponsor", seg.Category)
}

func TestSegmentCursor_Reset(t *testing.T) {
	list := NewSegmentList([]Segment{
		{Category: "intro", Start: 0, End: secs(5)},
		{Category: "sponsor", Start: secs(30), End: secs(40)},
	})

	c := NewSegmentCursor(list, secs(35))
	assert.Equal(t, 1, c.Remaining())
	_, hit := c.Check(secs(35))
	assert.True(t, hit)

	c.Reset(secs(40))
	assert.Equal(t, 0, c.Remaining())

	c.Reset(0)
	assert.Equal(t, 2, c.Remaining())
}
