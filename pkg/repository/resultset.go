package repository

import (
	"iter"
	"slices"

	"github.com/marmos91/cephodm/pkg/entity"
	"github.com/marmos91/cephodm/pkg/query"
)

// FileResultSet is the typed result of a file query.
type FileResultSet struct {
	files     []*entity.File
	truncated []string
	cursor    query.Cursor
}

// Files returns the files in result order.
func (rs *FileResultSet) Files() []*entity.File {
	return slices.Clone(rs.files)
}

// All iterates over the files in result order.
func (rs *FileResultSet) All() iter.Seq2[int, *entity.File] {
	return slices.All(rs.files)
}

func (rs *FileResultSet) Len() int {
	return len(rs.files)
}

// Truncated lists the buckets this query left truncated.
func (rs *FileResultSet) Truncated() []string {
	return slices.Clone(rs.truncated)
}

// IsTruncated reports whether a Continue query would return more files.
func (rs *FileResultSet) IsTruncated() bool {
	return len(rs.truncated) > 0
}

// Cursor resumes the truncated listings.
func (rs *FileResultSet) Cursor() query.Cursor {
	return rs.cursor
}

// BucketResultSet is the typed result of a bucket query.
type BucketResultSet struct {
	buckets []*entity.Bucket
}

// Buckets returns the buckets in result order.
func (rs *BucketResultSet) Buckets() []*entity.Bucket {
	return slices.Clone(rs.buckets)
}

// All iterates over the buckets in result order.
func (rs *BucketResultSet) All() iter.Seq2[int, *entity.Bucket] {
	return slices.All(rs.buckets)
}

func (rs *BucketResultSet) Len() int {
	return len(rs.buckets)
}

// Names returns the bucket names in result order.
func (rs *BucketResultSet) Names() []string {
	names := make([]string, 0, len(rs.buckets))
	for _, b := range rs.buckets {
		names = append(names, b.Name())
	}
	return names
}
