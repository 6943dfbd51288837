// Package memory implements storage.Client in process memory.
//
// Buckets are listed in creation order and objects in ascending key order,
// so tests can reason about backend order. Markers are the last key of the
// previous page.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/marmos91/cephodm/pkg/storage"
)

type bucket struct {
	objects map[string]storage.Object
}

// Client is an in-memory storage.Client. Safe for concurrent use; payloads
// are copied on the way in and out.
type Client struct {
	mu      sync.RWMutex
	order   []string
	buckets map[string]*bucket
}

// New creates an empty in-memory client.
func New() *Client {
	return &Client{buckets: make(map[string]*bucket)}
}

func (c *Client) ListBuckets(ctx context.Context) ([]storage.BucketInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]storage.BucketInfo, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, storage.BucketInfo{Name: name})
	}
	return out, nil
}

func (c *Client) ListObjects(ctx context.Context, bucketName string, opts storage.ListOptions) (*storage.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.buckets[bucketName]
	if !ok {
		return nil, storage.NoSuchBucket(bucketName, nil)
	}

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if k > opts.Marker {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	maxKeys := storage.EffectiveMaxKeys(opts.MaxKeys)
	res := &storage.ListResult{}
	if len(keys) > maxKeys {
		keys = keys[:maxKeys]
		res.IsTruncated = true
		res.NextMarker = keys[len(keys)-1]
	}

	res.Objects = make([]storage.ObjectSummary, 0, len(keys))
	for _, k := range keys {
		res.Objects = append(res.Objects, storage.ObjectSummary{Key: k, Size: int64(len(b.objects[k].Body))})
	}
	return res, nil
}

func (c *Client) GetObject(ctx context.Context, bucketName, key string) (*storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.buckets[bucketName]
	if !ok {
		return nil, storage.NoSuchBucket(bucketName, nil)
	}
	obj, ok := b.objects[key]
	if !ok {
		return nil, storage.NoSuchKey(bucketName, key, nil)
	}

	return &storage.Object{
		Body:     append([]byte(nil), obj.Body...),
		Metadata: storage.CloneMetadata(obj.Metadata),
	}, nil
}

func (c *Client) PutObject(ctx context.Context, bucketName, key string, body []byte, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.buckets[bucketName]
	if !ok {
		return storage.NoSuchBucket(bucketName, nil)
	}
	b.objects[key] = storage.Object{
		Body:     append([]byte(nil), body...),
		Metadata: storage.CloneMetadata(metadata),
	}
	return nil
}

// DeleteObject removes key. Deleting a missing key succeeds, as on S3.
func (c *Client) DeleteObject(ctx context.Context, bucketName, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.buckets[bucketName]
	if !ok {
		return storage.NoSuchBucket(bucketName, nil)
	}
	delete(b.objects, key)
	return nil
}

func (c *Client) CreateBucket(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.buckets[name]; ok {
		return storage.ErrBucketAlreadyExists
	}
	c.buckets[name] = &bucket{objects: make(map[string]storage.Object)}
	c.order = append(c.order, name)
	return nil
}

func (c *Client) DeleteBucket(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.buckets[name]
	if !ok {
		return storage.NoSuchBucket(name, nil)
	}
	if len(b.objects) > 0 {
		return storage.ErrBucketNotEmpty
	}

	delete(c.buckets, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

var _ storage.Client = (*Client)(nil)
