package storage

import (
	"context"
	"fmt"

	"github.com/marmos91/cephodm/internal/ratelimiter"
)

// RateLimitedClient waits on a token bucket before forwarding every call.
type RateLimitedClient struct {
	next    Client
	limiter *ratelimiter.RateLimiter
}

// NewRateLimitedClient wraps next. A zero requestsPerSecond returns next
// unchanged.
func NewRateLimitedClient(next Client, requestsPerSecond, burst uint) Client {
	if requestsPerSecond == 0 {
		return next
	}
	return &RateLimitedClient{next: next, limiter: ratelimiter.New(requestsPerSecond, burst)}
}

func (c *RateLimitedClient) wait(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit wait: %w", op, err)
	}
	return nil
}

func (c *RateLimitedClient) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	if err := c.wait(ctx, "ListBuckets"); err != nil {
		return nil, err
	}
	return c.next.ListBuckets(ctx)
}

func (c *RateLimitedClient) ListObjects(ctx context.Context, bucket string, opts ListOptions) (*ListResult, error) {
	if err := c.wait(ctx, "ListObjects"); err != nil {
		return nil, err
	}
	return c.next.ListObjects(ctx, bucket, opts)
}

func (c *RateLimitedClient) GetObject(ctx context.Context, bucket, key string) (*Object, error) {
	if err := c.wait(ctx, "GetObject"); err != nil {
		return nil, err
	}
	return c.next.GetObject(ctx, bucket, key)
}

func (c *RateLimitedClient) PutObject(ctx context.Context, bucket, key string, body []byte, metadata map[string]string) error {
	if err := c.wait(ctx, "PutObject"); err != nil {
		return err
	}
	return c.next.PutObject(ctx, bucket, key, body, metadata)
}

func (c *RateLimitedClient) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := c.wait(ctx, "DeleteObject"); err != nil {
		return err
	}
	return c.next.DeleteObject(ctx, bucket, key)
}

func (c *RateLimitedClient) CreateBucket(ctx context.Context, name string) error {
	if err := c.wait(ctx, "CreateBucket"); err != nil {
		return err
	}
	return c.next.CreateBucket(ctx, name)
}

func (c *RateLimitedClient) DeleteBucket(ctx context.Context, name string) error {
	if err := c.wait(ctx, "DeleteBucket"); err != nil {
		return err
	}
	return c.next.DeleteBucket(ctx, name)
}
