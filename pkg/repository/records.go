// Package repository implements the query engines over the storage client
// and the typed repositories built on them.
//
// The data repositories (FileDataRepository, BucketDataRepository) return
// raw records. The repositories (FileRepository, BucketRepository) hydrate
// those records into entities through the object manager.
package repository

import (
	"github.com/marmos91/cephodm/pkg/query"
)

// FileRecord is a stored object as returned by the file query engine.
type FileRecord struct {
	Bucket   string
	Key      string
	Body     []byte
	Metadata map[string]string
}

// OrderValue implements query.Record.
func (r FileRecord) OrderValue(field, key string) string {
	switch field {
	case query.FieldBucket:
		return r.Bucket
	case query.FieldID:
		return r.Key
	case query.FieldBin:
		return string(r.Body)
	case query.FieldMetadata:
		return r.Metadata[key]
	}
	return ""
}

// BucketRecord is a bucket as returned by the bucket query engine.
type BucketRecord struct {
	Name string
}

// OrderValue implements query.Record.
func (r BucketRecord) OrderValue(field, _ string) string {
	if field == query.FieldName {
		return r.Name
	}
	return ""
}

// QueryTruncatedListener is notified once per file query that left one or
// more bucket listings truncated.
type QueryTruncatedListener interface {
	OnQueryTruncated(buckets []string)
}

// QueryTruncatedFunc adapts a function to QueryTruncatedListener.
type QueryTruncatedFunc func(buckets []string)

func (fn QueryTruncatedFunc) OnQueryTruncated(buckets []string) {
	fn(buckets)
}
