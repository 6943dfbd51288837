package testing

import (
	"context"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/marmos91/cephodm/pkg/storage"
)

// ScopedClient confines a shared backend to bucket names with a prefix so
// tests against a real service do not see each other's buckets. Buckets
// created through it are emptied and removed when the test ends.
type ScopedClient struct {
	next   storage.Client
	prefix string
}

// NewScopedClient wraps next and registers cleanup on t.
func NewScopedClient(t *testing.T, next storage.Client, prefix string) *ScopedClient {
	t.Helper()
	c := &ScopedClient{next: next, prefix: prefix}
	t.Cleanup(func() {
		if err := c.purge(context.Background()); err != nil {
			t.Logf("scoped cleanup left buckets behind: %v", err)
		}
	})
	return c
}

func (c *ScopedClient) name(bucket string) string {
	return c.prefix + bucket
}

// purge removes every prefixed bucket and its first page of objects.
func (c *ScopedClient) purge(ctx context.Context) error {
	buckets, err := c.next.ListBuckets(ctx)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, b := range buckets {
		if !strings.HasPrefix(b.Name, c.prefix) {
			continue
		}
		res, err := c.next.ListObjects(ctx, b.Name, storage.ListOptions{})
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		for _, o := range res.Objects {
			if err := c.next.DeleteObject(ctx, b.Name, o.Key); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if err := c.next.DeleteBucket(ctx, b.Name); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (c *ScopedClient) ListBuckets(ctx context.Context) ([]storage.BucketInfo, error) {
	all, err := c.next.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	var scoped []storage.BucketInfo
	for _, b := range all {
		if name, ok := strings.CutPrefix(b.Name, c.prefix); ok {
			scoped = append(scoped, storage.BucketInfo{Name: name})
		}
	}
	return scoped, nil
}

func (c *ScopedClient) ListObjects(ctx context.Context, bucket string, opts storage.ListOptions) (*storage.ListResult, error) {
	return c.next.ListObjects(ctx, c.name(bucket), opts)
}

func (c *ScopedClient) GetObject(ctx context.Context, bucket, key string) (*storage.Object, error) {
	return c.next.GetObject(ctx, c.name(bucket), key)
}

func (c *ScopedClient) PutObject(ctx context.Context, bucket, key string, body []byte, metadata map[string]string) error {
	return c.next.PutObject(ctx, c.name(bucket), key, body, metadata)
}

func (c *ScopedClient) DeleteObject(ctx context.Context, bucket, key string) error {
	return c.next.DeleteObject(ctx, c.name(bucket), key)
}

func (c *ScopedClient) CreateBucket(ctx context.Context, name string) error {
	return c.next.CreateBucket(ctx, c.name(name))
}

func (c *ScopedClient) DeleteBucket(ctx context.Context, name string) error {
	return c.next.DeleteBucket(ctx, c.name(name))
}

var _ storage.Client = (*ScopedClient)(nil)
