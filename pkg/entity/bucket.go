// Package entity defines the mapped entities: buckets and the files stored
// in them.
//
// Entities know nothing about storage. The object manager attaches
// listeners after loading an entity to track changes, guard its identity
// and load expensive fields on demand.
package entity

import (
	"regexp"

	"github.com/marmos91/cephodm/pkg/odm"
)

var bucketNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Bucket is a named top-level container. Immutable once created.
type Bucket struct {
	name string
}

// NewBucket validates name and returns the bucket.
func NewBucket(name string) (*Bucket, error) {
	if !bucketNamePattern.MatchString(name) {
		return nil, odm.InvalidArgument("invalid bucket name %q", name)
	}
	return &Bucket{name: name}, nil
}

// MustBucket is NewBucket for names known to be valid. It panics otherwise.
func MustBucket(name string) *Bucket {
	b, err := NewBucket(name)
	if err != nil {
		panic(err)
	}
	return b
}

func (b *Bucket) Name() string {
	if b == nil {
		return ""
	}
	return b.name
}

func (b *Bucket) String() string {
	return b.Name()
}
