package query

import (
	"maps"
	"slices"
)

// Cursor maps bucket names to the opaque markers their listings resume
// from. Cursor values are immutable: With and Without return new cursors,
// so an older cursor stays valid.
type Cursor struct {
	markers map[string]string
}

// NewCursor builds a cursor from bucket markers.
func NewCursor(markers map[string]string) Cursor {
	return Cursor{markers: maps.Clone(markers)}
}

// Marker returns the resume marker of bucket.
func (c Cursor) Marker(bucket string) (string, bool) {
	m, ok := c.markers[bucket]
	return m, ok
}

// With returns a cursor where bucket resumes from marker.
func (c Cursor) With(bucket, marker string) Cursor {
	next := make(map[string]string, len(c.markers)+1)
	maps.Copy(next, c.markers)
	next[bucket] = marker
	return Cursor{markers: next}
}

// Without returns a cursor with no marker for bucket.
func (c Cursor) Without(bucket string) Cursor {
	if _, ok := c.markers[bucket]; !ok {
		return c
	}
	next := maps.Clone(c.markers)
	delete(next, bucket)
	return Cursor{markers: next}
}

// Buckets returns the buckets holding a marker, sorted.
func (c Cursor) Buckets() []string {
	return slices.Sorted(maps.Keys(c.markers))
}

// Markers returns a copy of the bucket markers.
func (c Cursor) Markers() map[string]string {
	return maps.Clone(c.markers)
}

func (c Cursor) Len() int {
	return len(c.markers)
}

func (c Cursor) IsEmpty() bool {
	return len(c.markers) == 0
}
