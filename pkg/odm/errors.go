// Package odm holds the error taxonomy shared by the repositories, the
// persisters and the object manager.
//
// Callers branch on the category with errors.As or the Is* helpers:
//
//	rs, err := files.FindBy(ctx, criteria, nil, page)
//	if odm.IsInvalidArgument(err) {
//	    // programmer error: bad criteria or pagination
//	}
//
// Backend failures that are not mapped to a category are returned wrapped
// with %w and never converted into an *Error.
package odm

import (
	"errors"
	"fmt"
)

// ErrorCode is the category of a domain error.
type ErrorCode int

const (
	// ErrInvalidArgument reports malformed criteria, ordering, pagination or
	// entity values. It is always raised before any backend call.
	ErrInvalidArgument ErrorCode = iota

	// ErrBucketNotFound reports a write or delete against a bucket the
	// backend does not know.
	ErrBucketNotFound

	// ErrMissingRequiredProperty reports an entity flushed with an empty
	// required property. Detected before the backend write.
	ErrMissingRequiredProperty

	// ErrIdentifierLocked reports an attempt to change the bucket or id of
	// an entity still tracked by the identity map.
	ErrIdentifierLocked

	// ErrUnsupported reports an operation the entity type cannot perform,
	// such as updating a bucket.
	ErrUnsupported
)

func (c ErrorCode) String() string {
	switch c {
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrBucketNotFound:
		return "bucket not found"
	case ErrMissingRequiredProperty:
		return "missing required property"
	case ErrIdentifierLocked:
		return "identifier locked"
	case ErrUnsupported:
		return "unsupported operation"
	default:
		return "unknown"
	}
}

// BucketNamePlaceholder is reported when a bucket-not-found error cannot be
// attributed to a named bucket.
const BucketNamePlaceholder = "[name not found]"

// Error is a categorized domain error.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable description
	Message string

	// Bucket is the bucket the error relates to, if any
	Bucket string

	// Field is the entity property the error relates to, if any
	Field string

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidArgument builds an ErrInvalidArgument error.
func InvalidArgument(format string, args ...any) *Error {
	return &Error{Code: ErrInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// BucketNotFound builds an ErrBucketNotFound error. An empty name is
// replaced by BucketNamePlaceholder.
func BucketNotFound(bucket string, cause error) *Error {
	if bucket == "" {
		bucket = BucketNamePlaceholder
	}
	return &Error{
		Code:    ErrBucketNotFound,
		Message: fmt.Sprintf("bucket %s doesn't exist", bucket),
		Bucket:  bucket,
		Err:     cause,
	}
}

// MissingRequiredProperty builds an ErrMissingRequiredProperty error.
func MissingRequiredProperty(field string) *Error {
	return &Error{
		Code:    ErrMissingRequiredProperty,
		Message: fmt.Sprintf("empty required property %s", field),
		Field:   field,
	}
}

// IdentifierLocked builds an ErrIdentifierLocked error for the file at
// bucket/id.
func IdentifierLocked(bucket, id string) *Error {
	return &Error{
		Code:    ErrIdentifierLocked,
		Message: fmt.Sprintf("file of bucket %s id %s must be detached before changing its identifiers", bucket, id),
		Bucket:  bucket,
	}
}

// Unsupported builds an ErrUnsupported error.
func Unsupported(format string, args ...any) *Error {
	return &Error{Code: ErrUnsupported, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the category of err and whether err carries one.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

func hasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

func IsInvalidArgument(err error) bool {
	return hasCode(err, ErrInvalidArgument)
}

func IsBucketNotFound(err error) bool {
	return hasCode(err, ErrBucketNotFound)
}

func IsMissingRequiredProperty(err error) bool {
	return hasCode(err, ErrMissingRequiredProperty)
}

func IsIdentifierLocked(err error) bool {
	return hasCode(err, ErrIdentifierLocked)
}

func IsUnsupported(err error) bool {
	return hasCode(err, ErrUnsupported)
}
