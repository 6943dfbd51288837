// Package storage defines the boundary between the object-document mapper
// and the object store it maps.
//
// A Client is a thin binding to an S3-compatible backend. Implementations:
//   - pkg/storage/s3: Amazon S3, Ceph RGW, MinIO (aws-sdk-go-v2)
//   - pkg/storage/badger: embedded persistent store (BadgerDB)
//   - pkg/storage/memory: in-process store for tests and development
//
// Every implementation must pass the conformance suite in
// pkg/storage/testing.
package storage

import "context"

// DefaultMaxKeys is the largest page a listing call returns, mirroring the
// S3 max-keys limit.
const DefaultMaxKeys = 1000

// BucketInfo describes one bucket returned by ListBuckets.
type BucketInfo struct {
	Name string
}

// ObjectSummary describes one object returned by ListObjects.
type ObjectSummary struct {
	Key  string
	Size int64
}

// ListOptions configures a ListObjects call.
type ListOptions struct {
	// Marker resumes a listing strictly after this position. The value is
	// opaque and must come from a previous ListResult.NextMarker or be a key
	// supplied by the caller.
	Marker string

	// MaxKeys caps the page size. Zero uses DefaultMaxKeys. Values above
	// DefaultMaxKeys are clamped.
	MaxKeys int
}

// ListResult is one page of a ListObjects call.
type ListResult struct {
	// Objects in backend order (ascending key order for S3).
	Objects []ObjectSummary

	// IsTruncated reports whether more objects follow this page.
	IsTruncated bool

	// NextMarker is the resume point when IsTruncated is set.
	NextMarker string
}

// Object is the payload of a stored object.
type Object struct {
	Body     []byte
	Metadata map[string]string
}

// Client is the set of backend operations the mapper needs.
//
// Not-found conditions are reported as *NotFoundError so callers can
// distinguish them with IsNotFound and IsNoSuchBucket. Every other error is
// a transport or service failure and is propagated unchanged by the mapper.
type Client interface {
	ListBuckets(ctx context.Context) ([]BucketInfo, error)
	ListObjects(ctx context.Context, bucket string, opts ListOptions) (*ListResult, error)
	GetObject(ctx context.Context, bucket, key string) (*Object, error)
	PutObject(ctx context.Context, bucket, key string, body []byte, metadata map[string]string) error
	DeleteObject(ctx context.Context, bucket, key string) error
	CreateBucket(ctx context.Context, name string) error
	DeleteBucket(ctx context.Context, name string) error
}

// EffectiveMaxKeys returns the page size a backend should honour for n.
func EffectiveMaxKeys(n int) int {
	if n <= 0 || n > DefaultMaxKeys {
		return DefaultMaxKeys
	}
	return n
}

// CloneMetadata returns a copy of m; a nil map yields an empty map.
func CloneMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
