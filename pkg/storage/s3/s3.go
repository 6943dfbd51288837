// Package s3 implements storage.Client on Amazon S3 or any S3-compatible
// service (Ceph RGW, MinIO, Localstack).
//
// Listing uses the V1 ListObjects call because its Marker is a plain key,
// which lets callers start a listing from a key of their choosing. When the
// service omits NextMarker on a truncated page (S3 only returns it when a
// delimiter is set), the last returned key is used as the resume point.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/cephodm/internal/logger"
	"github.com/marmos91/cephodm/pkg/storage"
)

// API is the subset of *s3.Client used by the adapter.
type API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	ListObjects(ctx context.Context, params *s3.ListObjectsInput, optFns ...func(*s3.Options)) (*s3.ListObjectsOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
}

// Config configures the S3 client.
type Config struct {
	// Client is the configured S3 API client
	Client API

	// LocationConstraint is sent on CreateBucket when set. Leave empty for
	// us-east-1 and for Ceph.
	LocationConstraint string
}

// Client is a storage.Client on S3. Safe for concurrent use.
type Client struct {
	api                API
	locationConstraint string
}

// New creates the adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	return &Client{api: cfg.Client, locationConstraint: cfg.LocationConstraint}, nil
}

// translateError maps service not-found answers to storage errors and
// leaves every other error untouched.
func translateError(err error, bucket, key string) error {
	if err == nil {
		return nil
	}

	var noBucket *types.NoSuchBucket
	if errors.As(err, &noBucket) {
		return storage.NoSuchBucket(bucket, err)
	}

	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return storage.NoSuchKey(bucket, key, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return storage.NoSuchBucket(bucket, err)
		case "NoSuchKey", "NotFound":
			return storage.NoSuchKey(bucket, key, err)
		case "BucketNotEmpty":
			return fmt.Errorf("%w: %w", storage.ErrBucketNotEmpty, err)
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			return fmt.Errorf("%w: %w", storage.ErrBucketAlreadyExists, err)
		}
	}

	return err
}

func (c *Client) ListBuckets(ctx context.Context) ([]storage.BucketInfo, error) {
	out, err := c.api.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	buckets := make([]storage.BucketInfo, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		buckets = append(buckets, storage.BucketInfo{Name: aws.ToString(b.Name)})
	}
	return buckets, nil
}

func (c *Client) ListObjects(ctx context.Context, bucket string, opts storage.ListOptions) (*storage.ListResult, error) {
	input := &s3.ListObjectsInput{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(int32(storage.EffectiveMaxKeys(opts.MaxKeys))),
	}
	if opts.Marker != "" {
		input.Marker = aws.String(opts.Marker)
	}

	out, err := c.api.ListObjects(ctx, input)
	if err != nil {
		if err := translateError(err, bucket, ""); storage.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to list objects in %s: %w", bucket, err)
	}

	res := &storage.ListResult{
		Objects:     make([]storage.ObjectSummary, 0, len(out.Contents)),
		IsTruncated: aws.ToBool(out.IsTruncated),
	}
	for _, o := range out.Contents {
		res.Objects = append(res.Objects, storage.ObjectSummary{Key: aws.ToString(o.Key), Size: aws.ToInt64(o.Size)})
	}

	if res.IsTruncated {
		res.NextMarker = aws.ToString(out.NextMarker)
		if res.NextMarker == "" && len(res.Objects) > 0 {
			res.NextMarker = res.Objects[len(res.Objects)-1].Key
		}
	}

	logger.Debug("S3 ListObjects: bucket=%s marker=%q count=%d truncated=%t",
		bucket, opts.Marker, len(res.Objects), res.IsTruncated)
	return res, nil
}

func (c *Client) GetObject(ctx context.Context, bucket, key string) (*storage.Object, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if err := translateError(err, bucket, key); storage.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s/%s: %w", bucket, key, err)
	}

	return &storage.Object{Body: body, Metadata: storage.CloneMetadata(out.Metadata)}, nil
}

func (c *Client) PutObject(ctx context.Context, bucket, key string, body []byte, metadata map[string]string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if len(metadata) > 0 {
		input.Metadata = storage.CloneMetadata(metadata)
	}

	if _, err := c.api.PutObject(ctx, input); err != nil {
		if err := translateError(err, bucket, key); storage.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("failed to put object %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (c *Client) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		err = translateError(err, bucket, key)
		switch {
		case storage.IsNoSuchBucket(err):
			return err
		case storage.IsNoSuchKey(err):
			// S3 answers a delete of a missing key with success; some
			// S3-compatible services do not.
			return nil
		}
		return fmt.Errorf("failed to delete object %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (c *Client) CreateBucket(ctx context.Context, name string) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	if c.locationConstraint != "" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.locationConstraint),
		}
	}

	if _, err := c.api.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", name, translateError(err, name, ""))
	}
	return nil
}

func (c *Client) DeleteBucket(ctx context.Context, name string) error {
	if _, err := c.api.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)}); err != nil {
		if err := translateError(err, name, ""); storage.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("failed to delete bucket %s: %w", name, translateError(err, name, ""))
	}
	return nil
}

var _ storage.Client = (*Client)(nil)
