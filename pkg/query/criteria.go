// Package query holds the query vocabulary of the repositories: criteria,
// ordering, paging and listing cursors, plus the in-memory sort and
// metadata filter the backend cannot perform.
package query

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/marmos91/cephodm/pkg/entity"
	"github.com/marmos91/cephodm/pkg/odm"
)

// Criteria keys accepted by ParseCriteria.
const (
	KeyBucket   = "bucket"
	KeyID       = "id"
	KeyMetadata = "metadata"
)

var fileCriteriaKeys = mapset.NewSet(KeyBucket, KeyID, KeyMetadata)

// Shape is the addressing part of a file query.
type Shape int

const (
	// ShapeAll scans every bucket.
	ShapeAll Shape = iota
	// ShapeBucket scans one bucket.
	ShapeBucket
	// ShapeID scans every bucket for one key.
	ShapeID
	// ShapeIdentity addresses a single object by bucket and key.
	ShapeIdentity
)

func (s Shape) String() string {
	switch s {
	case ShapeAll:
		return "all"
	case ShapeBucket:
		return "bucket"
	case ShapeID:
		return "id"
	case ShapeIdentity:
		return "identity"
	default:
		return "unknown"
	}
}

// Criteria selects files. The zero value matches every file. Metadata
// equality is a filter orthogonal to the shape.
type Criteria struct {
	bucket   string
	id       string
	metadata map[string]string
}

// Shape reports which addressing form the criteria use.
func (c Criteria) Shape() Shape {
	switch {
	case c.bucket != "" && c.id != "":
		return ShapeIdentity
	case c.bucket != "":
		return ShapeBucket
	case c.id != "":
		return ShapeID
	default:
		return ShapeAll
	}
}

// Bucket returns the bucket constraint.
func (c Criteria) Bucket() (string, bool) {
	return c.bucket, c.bucket != ""
}

// ID returns the key constraint.
func (c Criteria) ID() (string, bool) {
	return c.id, c.id != ""
}

// Metadata returns a copy of the metadata equality filter.
func (c Criteria) Metadata() map[string]string {
	return maps.Clone(c.metadata)
}

func (c Criteria) HasMetadata() bool {
	return len(c.metadata) > 0
}

func (c Criteria) IsEmpty() bool {
	return c.bucket == "" && c.id == "" && len(c.metadata) == 0
}

func (c Criteria) String() string {
	var parts []string
	if c.bucket != "" {
		parts = append(parts, "bucket="+c.bucket)
	}
	if c.id != "" {
		parts = append(parts, "id="+c.id)
	}
	for _, k := range slices.Sorted(maps.Keys(c.metadata)) {
		parts = append(parts, fmt.Sprintf("metadata.%s=%s", k, c.metadata[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// CriteriaBuilder builds Criteria. The first invalid value is reported by
// Build.
type CriteriaBuilder struct {
	c   Criteria
	err error
}

// NewCriteria starts an empty criteria.
func NewCriteria() *CriteriaBuilder {
	return &CriteriaBuilder{}
}

// InBucket restricts the query to the bucket called name.
func (b *CriteriaBuilder) InBucket(name string) *CriteriaBuilder {
	if b.err != nil {
		return b
	}
	if _, err := entity.NewBucket(name); err != nil {
		b.err = err
		return b
	}
	b.c.bucket = name
	return b
}

// InBucketRef restricts the query to bucket.
func (b *CriteriaBuilder) InBucketRef(bucket *entity.Bucket) *CriteriaBuilder {
	if bucket == nil {
		if b.err == nil {
			b.err = odm.InvalidArgument("bucket reference is nil")
		}
		return b
	}
	return b.InBucket(bucket.Name())
}

// WithID restricts the query to the object key id.
func (b *CriteriaBuilder) WithID(id string) *CriteriaBuilder {
	if b.err != nil {
		return b
	}
	if id == "" {
		b.err = odm.InvalidArgument("id criterion is empty")
		return b
	}
	b.c.id = id
	return b
}

// WithMetadata adds an exact metadata equality.
func (b *CriteriaBuilder) WithMetadata(key, value string) *CriteriaBuilder {
	if b.err != nil {
		return b
	}
	if err := entity.ValidateMetadataKey(key); err != nil {
		b.err = err
		return b
	}
	if b.c.metadata == nil {
		b.c.metadata = make(map[string]string)
	}
	b.c.metadata[key] = value
	return b
}

// Build returns the criteria or the first validation error.
func (b *CriteriaBuilder) Build() (Criteria, error) {
	if b.err != nil {
		return Criteria{}, b.err
	}
	c := b.c
	c.metadata = maps.Clone(b.c.metadata)
	return c, nil
}

// MustBuild is Build for criteria known to be valid. It panics otherwise.
func (b *CriteriaBuilder) MustBuild() Criteria {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCriteria builds Criteria from the dynamic map form. bucket is a
// string or *entity.Bucket, id a string, metadata a map of strings.
func ParseCriteria(raw map[string]any) (Criteria, error) {
	for key := range raw {
		if !fileCriteriaKeys.Contains(key) {
			return Criteria{}, odm.InvalidArgument("allowed search criteria are only bucket, id and metadata, got %q", key)
		}
	}

	b := NewCriteria()

	if v, ok := raw[KeyBucket]; ok {
		switch bucket := v.(type) {
		case string:
			b.InBucket(bucket)
		case *entity.Bucket:
			b.InBucketRef(bucket)
		default:
			return Criteria{}, odm.InvalidArgument("bucket criterion must be a string or a *entity.Bucket, got %T", v)
		}
	}

	if v, ok := raw[KeyID]; ok {
		id, isString := v.(string)
		if !isString {
			return Criteria{}, odm.InvalidArgument("id criterion must be a string, got %T", v)
		}
		b.WithID(id)
	}

	if v, ok := raw[KeyMetadata]; ok {
		meta, err := parseMetadata(v)
		if err != nil {
			return Criteria{}, err
		}
		for _, k := range slices.Sorted(maps.Keys(meta)) {
			b.WithMetadata(k, meta[k])
		}
	}

	return b.Build()
}

func parseMetadata(v any) (map[string]string, error) {
	switch m := v.(type) {
	case map[string]string:
		return m, nil
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, raw := range m {
			s, ok := raw.(string)
			if !ok {
				return nil, odm.InvalidArgument("metadata criterion %q must be a string, got %T", k, raw)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, odm.InvalidArgument("metadata criterion must be a map of strings, got %T", v)
	}
}

// BucketCriteria selects buckets by name. The zero value matches every
// bucket.
type BucketCriteria struct {
	name string
}

// ByName selects the bucket called name.
func ByName(name string) BucketCriteria {
	return BucketCriteria{name: name}
}

// Name returns the name constraint.
func (c BucketCriteria) Name() (string, bool) {
	return c.name, c.name != ""
}

func (c BucketCriteria) IsEmpty() bool {
	return c.name == ""
}

// ParseBucketCriteria builds BucketCriteria from the dynamic map form.
func ParseBucketCriteria(raw map[string]any) (BucketCriteria, error) {
	var c BucketCriteria
	for key, v := range raw {
		if key != "name" {
			return BucketCriteria{}, odm.InvalidArgument("allowed search criteria are only name, got %q", key)
		}
		name, ok := v.(string)
		if !ok {
			return BucketCriteria{}, odm.InvalidArgument("name criterion must be a string, got %T", v)
		}
		c.name = name
	}
	return c, nil
}
