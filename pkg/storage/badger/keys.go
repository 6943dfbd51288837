package badger

import "strings"

// Database Key Namespace Design
// ==============================
//
// Data Type   Prefix   Key Format                     Value Type
// ==================================================================
// Bucket      "b:"     b:<bucketName>                 bucketData (JSON)
// Object      "o:"     o:<bucketName>\x00<objectKey>  objectData (JSON)
//
// Bucket names cannot contain NUL, so the separator keeps every bucket's
// objects in one contiguous, key-ordered range. Listing a bucket is a
// prefix scan that seeks past the marker.

const (
	prefixBucket = "b:"
	prefixObject = "o:"
	keySep       = "\x00"
)

func keyBucket(name string) []byte {
	return []byte(prefixBucket + name)
}

func keyObjectPrefix(bucket string) []byte {
	return []byte(prefixObject + bucket + keySep)
}

func keyObject(bucket, key string) []byte {
	return []byte(prefixObject + bucket + keySep + key)
}

// objectKeyFrom strips the bucket prefix from a raw database key.
func objectKeyFrom(bucket string, raw []byte) string {
	return strings.TrimPrefix(string(raw), prefixObject+bucket+keySep)
}

func bucketNameFrom(raw []byte) string {
	return strings.TrimPrefix(string(raw), prefixBucket)
}
