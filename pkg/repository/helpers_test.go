package repository

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"

	"github.com/marmos91/cephodm/pkg/entity"
	"github.com/marmos91/cephodm/pkg/storage"
	"github.com/marmos91/cephodm/pkg/storage/memory"
	"github.com/stretchr/testify/require"
)

// call is one recorded backend call.
type call struct {
	Op      string
	Bucket  string
	Key     string
	Marker  string
	MaxKeys int
}

// recordingClient records calls and can fail selected operations.
type recordingClient struct {
	storage.Client

	mu    sync.Mutex
	calls []call
	fail  map[string]error
}

func newRecordingClient(next storage.Client) *recordingClient {
	return &recordingClient{Client: next, fail: map[string]error{}}
}

func (c *recordingClient) record(cl call) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, cl)
	if err, ok := c.fail[cl.Op+":"+cl.Bucket]; ok {
		return err
	}
	return c.fail[cl.Op]
}

func (c *recordingClient) ops(op string) []call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []call
	for _, cl := range c.calls {
		if cl.Op == op {
			out = append(out, cl)
		}
	}
	return out
}

func (c *recordingClient) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

func (c *recordingClient) ListBuckets(ctx context.Context) ([]storage.BucketInfo, error) {
	if err := c.record(call{Op: "ListBuckets"}); err != nil {
		return nil, err
	}
	return c.Client.ListBuckets(ctx)
}

func (c *recordingClient) ListObjects(ctx context.Context, bucket string, opts storage.ListOptions) (*storage.ListResult, error) {
	if err := c.record(call{Op: "ListObjects", Bucket: bucket, Marker: opts.Marker, MaxKeys: opts.MaxKeys}); err != nil {
		return nil, err
	}
	return c.Client.ListObjects(ctx, bucket, opts)
}

func (c *recordingClient) GetObject(ctx context.Context, bucket, key string) (*storage.Object, error) {
	if err := c.record(call{Op: "GetObject", Bucket: bucket, Key: key}); err != nil {
		return nil, err
	}
	return c.Client.GetObject(ctx, bucket, key)
}

// opaqueClient hands out encoded markers so tests catch any code deriving
// markers from keys.
type opaqueClient struct {
	storage.Client
}

func (c opaqueClient) ListObjects(ctx context.Context, bucket string, opts storage.ListOptions) (*storage.ListResult, error) {
	if opts.Marker != "" {
		raw, err := base64.StdEncoding.DecodeString(opts.Marker)
		if err != nil {
			return nil, fmt.Errorf("foreign marker %q", opts.Marker)
		}
		opts.Marker = string(raw)
	}
	res, err := c.Client.ListObjects(ctx, bucket, opts)
	if err != nil {
		return nil, err
	}
	if res.NextMarker != "" {
		res.NextMarker = base64.StdEncoding.EncodeToString([]byte(res.NextMarker))
	}
	return res, nil
}

type object struct {
	key  string
	meta map[string]string
}

// seed creates buckets in order with the given objects.
func seed(t *testing.T, c storage.Client, buckets map[string][]object, order ...string) {
	t.Helper()
	ctx := context.Background()
	for _, b := range order {
		require.NoError(t, c.CreateBucket(ctx, b))
		for _, o := range buckets[b] {
			require.NoError(t, c.PutObject(ctx, b, o.key, []byte("body-"+o.key), o.meta))
		}
	}
}

// seedExample stores the mybucket example: myid1..myid3.
func seedExample(t *testing.T) *memory.Client {
	t.Helper()
	c := memory.New()
	seed(t, c, map[string][]object{
		"mybucket": {
			{key: "myid1", meta: map[string]string{"mymetadata": "myvalue"}},
			{key: "myid2"},
			{key: "myid3", meta: map[string]string{"mymetadata": "myvalue2"}},
		},
	}, "mybucket")
	return c
}

func keyRange(prefix string, n int) []object {
	out := make([]object, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, object{key: fmt.Sprintf("%s%02d", prefix, i)})
	}
	return out
}

func keys(records []FileRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Key)
	}
	return out
}

func addresses(records []FileRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Bucket+"/"+r.Key)
	}
	return out
}

// plainHydrator builds unmanaged entities.
type plainHydrator struct{}

func (plainHydrator) HydrateFile(rec FileRecord) (*entity.File, error) {
	b, err := entity.NewBucket(rec.Bucket)
	if err != nil {
		return nil, err
	}
	f := &entity.File{}
	f.Hydrate(b, rec.Key, rec.Body, rec.Metadata)
	return f, nil
}

func (plainHydrator) HydrateBucket(rec BucketRecord) (*entity.Bucket, error) {
	return entity.NewBucket(rec.Name)
}
