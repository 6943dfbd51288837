package storage

import (
	"errors"
	"fmt"
)

// NotFoundCode distinguishes the two not-found conditions of the backend.
type NotFoundCode string

const (
	CodeNoSuchBucket NotFoundCode = "NoSuchBucket"
	CodeNoSuchKey    NotFoundCode = "NoSuchKey"
)

// NotFoundError reports a missing bucket or key.
type NotFoundError struct {
	Code   NotFoundCode
	Bucket string
	Key    string

	// Err is the backend error this was translated from, if any
	Err error
}

func (e *NotFoundError) Error() string {
	if e.Code == CodeNoSuchBucket {
		return fmt.Sprintf("%s: bucket %q", e.Code, e.Bucket)
	}
	return fmt.Sprintf("%s: %s/%s", e.Code, e.Bucket, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// NoSuchBucket builds a bucket not-found error.
func NoSuchBucket(bucket string, cause error) *NotFoundError {
	return &NotFoundError{Code: CodeNoSuchBucket, Bucket: bucket, Err: cause}
}

// NoSuchKey builds a key not-found error.
func NoSuchKey(bucket, key string, cause error) *NotFoundError {
	return &NotFoundError{Code: CodeNoSuchKey, Bucket: bucket, Key: key, Err: cause}
}

// IsNotFound reports whether err is a bucket or key not-found error.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsNoSuchBucket reports whether err is a bucket not-found error.
func IsNoSuchBucket(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) && nf.Code == CodeNoSuchBucket
}

// IsNoSuchKey reports whether err is a key not-found error.
func IsNoSuchKey(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) && nf.Code == CodeNoSuchKey
}

// ErrBucketNotEmpty is returned by DeleteBucket when objects remain.
var ErrBucketNotEmpty = errors.New("BucketNotEmpty")

// ErrBucketAlreadyExists is returned by CreateBucket for an existing name.
var ErrBucketAlreadyExists = errors.New("BucketAlreadyOwnedByYou")
