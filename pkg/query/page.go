package query

import (
	"github.com/marmos91/cephodm/pkg/odm"
	"github.com/marmos91/cephodm/pkg/storage"
)

// MaxLimit is the largest page a query may request, bound by the backend
// max-keys cap.
const MaxLimit = storage.DefaultMaxKeys

// Page selects a window of results. A zero Limit means no limit.
//
// Offset and Continue are exclusive: Offset skips results of a fresh scan,
// Continue resumes bucket listings from a cursor.
type Page struct {
	Limit    int
	Offset   int
	Continue bool
}

// IsZero reports whether no paging was requested.
func (p Page) IsZero() bool {
	return p.Limit == 0 && p.Offset == 0 && !p.Continue
}

// Validate checks p's bounds and its compatibility with c.
func (p Page) Validate(c Criteria) error {
	if p.Limit < 0 {
		return odm.InvalidArgument("limit must be at least 1, got %d", p.Limit)
	}
	if p.Limit > MaxLimit {
		return odm.InvalidArgument("limit must be at most %d, got %d", MaxLimit, p.Limit)
	}
	if p.Offset < 0 {
		return odm.InvalidArgument("offset must not be negative, got %d", p.Offset)
	}
	if p.Offset > 0 && p.Continue {
		return odm.InvalidArgument("offset and continue cannot be combined")
	}
	if _, hasID := c.ID(); hasID && !p.IsZero() {
		return odm.InvalidArgument("limit, offset and continue cannot be used with an id criterion")
	}
	return nil
}

// ValidateBuckets checks p for a bucket query.
func (p Page) ValidateBuckets() error {
	if p.Continue {
		return odm.InvalidArgument("bucket listings cannot be continued")
	}
	return p.Validate(Criteria{})
}
