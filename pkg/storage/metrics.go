package storage

import (
	"context"
	"time"
)

// Metrics observes backend calls. Implementations must be safe for
// concurrent use. A nil Metrics disables collection.
type Metrics interface {
	// ObserveOperation records a call with its duration and outcome
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records payload bytes moved by "get" or "put"
	RecordBytes(direction string, bytes int64)
}

// InstrumentedClient reports every call to a Metrics sink.
type InstrumentedClient struct {
	next    Client
	metrics Metrics
}

// NewInstrumentedClient wraps next. A nil metrics returns next unchanged.
func NewInstrumentedClient(next Client, metrics Metrics) Client {
	if metrics == nil {
		return next
	}
	return &InstrumentedClient{next: next, metrics: metrics}
}

// observe returns a func recording the elapsed time; call it with the
// operation's final error.
func (c *InstrumentedClient) observe(op string) func(error) {
	start := time.Now()
	return func(err error) {
		// A not-found answer is a valid response, not a backend failure.
		if IsNotFound(err) {
			err = nil
		}
		c.metrics.ObserveOperation(op, time.Since(start), err)
	}
}

func (c *InstrumentedClient) ListBuckets(ctx context.Context) (buckets []BucketInfo, err error) {
	done := c.observe("ListBuckets")
	defer func() { done(err) }()
	return c.next.ListBuckets(ctx)
}

func (c *InstrumentedClient) ListObjects(ctx context.Context, bucket string, opts ListOptions) (res *ListResult, err error) {
	done := c.observe("ListObjects")
	defer func() { done(err) }()
	return c.next.ListObjects(ctx, bucket, opts)
}

func (c *InstrumentedClient) GetObject(ctx context.Context, bucket, key string) (obj *Object, err error) {
	done := c.observe("GetObject")
	defer func() {
		done(err)
		if obj != nil {
			c.metrics.RecordBytes("get", int64(len(obj.Body)))
		}
	}()
	return c.next.GetObject(ctx, bucket, key)
}

func (c *InstrumentedClient) PutObject(ctx context.Context, bucket, key string, body []byte, metadata map[string]string) (err error) {
	done := c.observe("PutObject")
	defer func() {
		done(err)
		if err == nil {
			c.metrics.RecordBytes("put", int64(len(body)))
		}
	}()
	return c.next.PutObject(ctx, bucket, key, body, metadata)
}

func (c *InstrumentedClient) DeleteObject(ctx context.Context, bucket, key string) (err error) {
	done := c.observe("DeleteObject")
	defer func() { done(err) }()
	return c.next.DeleteObject(ctx, bucket, key)
}

func (c *InstrumentedClient) CreateBucket(ctx context.Context, name string) (err error) {
	done := c.observe("CreateBucket")
	defer func() { done(err) }()
	return c.next.CreateBucket(ctx, name)
}

func (c *InstrumentedClient) DeleteBucket(ctx context.Context, name string) (err error) {
	done := c.observe("DeleteBucket")
	defer func() { done(err) }()
	return c.next.DeleteBucket(ctx, name)
}
