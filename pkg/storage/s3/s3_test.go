package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/cephodm/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI scripts S3 answers. Unset funcs fail the call.
type fakeAPI struct {
	listObjects  func(*s3.ListObjectsInput) (*s3.ListObjectsOutput, error)
	getObject    func(*s3.GetObjectInput) (*s3.GetObjectOutput, error)
	putObject    func(*s3.PutObjectInput) (*s3.PutObjectOutput, error)
	deleteObject func(*s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error)
	createBucket func(*s3.CreateBucketInput) (*s3.CreateBucketOutput, error)
	deleteBucket func(*s3.DeleteBucketInput) (*s3.DeleteBucketOutput, error)
	buckets      []string
}

var errUnscripted = errors.New("unscripted call")

func (f *fakeAPI) ListBuckets(_ context.Context, _ *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	out := &s3.ListBucketsOutput{}
	for _, name := range f.buckets {
		out.Buckets = append(out.Buckets, types.Bucket{Name: aws.String(name)})
	}
	return out, nil
}

func (f *fakeAPI) ListObjects(_ context.Context, in *s3.ListObjectsInput, _ ...func(*s3.Options)) (*s3.ListObjectsOutput, error) {
	if f.listObjects == nil {
		return nil, errUnscripted
	}
	return f.listObjects(in)
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getObject == nil {
		return nil, errUnscripted
	}
	return f.getObject(in)
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putObject == nil {
		return nil, errUnscripted
	}
	return f.putObject(in)
}

func (f *fakeAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteObject == nil {
		return nil, errUnscripted
	}
	return f.deleteObject(in)
}

func (f *fakeAPI) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	if f.createBucket == nil {
		return nil, errUnscripted
	}
	return f.createBucket(in)
}

func (f *fakeAPI) DeleteBucket(_ context.Context, in *s3.DeleteBucketInput, _ ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	if f.deleteBucket == nil {
		return nil, errUnscripted
	}
	return f.deleteBucket(in)
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	c, err := New(Config{Client: api})
	require.NoError(t, err)
	return c
}

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantBucket bool
		wantKey    bool
	}{
		{name: "typed no such bucket", err: &types.NoSuchBucket{}, wantBucket: true},
		{name: "typed no such key", err: &types.NoSuchKey{}, wantKey: true},
		{name: "typed not found", err: &types.NotFound{}, wantKey: true},
		{name: "generic no such bucket", err: apiError("NoSuchBucket"), wantBucket: true},
		{name: "generic no such key", err: apiError("NoSuchKey"), wantKey: true},
		{name: "access denied", err: apiError("AccessDenied")},
		{name: "transport", err: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError(tt.err, "b", "k")
			assert.Equal(t, tt.wantBucket, storage.IsNoSuchBucket(got))
			assert.Equal(t, tt.wantKey, storage.IsNoSuchKey(got))
			if !tt.wantBucket && !tt.wantKey {
				assert.Same(t, tt.err, got)
			}
		})
	}
}

func TestListBuckets(t *testing.T) {
	c := newTestClient(t, &fakeAPI{buckets: []string{"mybucket1", "mybucket2"}})

	buckets, err := c.ListBuckets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []storage.BucketInfo{{Name: "mybucket1"}, {Name: "mybucket2"}}, buckets)
}

func TestListObjects(t *testing.T) {
	t.Run("passes marker and page size", func(t *testing.T) {
		var seen *s3.ListObjectsInput
		c := newTestClient(t, &fakeAPI{listObjects: func(in *s3.ListObjectsInput) (*s3.ListObjectsOutput, error) {
			seen = in
			return &s3.ListObjectsOutput{}, nil
		}})

		_, err := c.ListObjects(context.Background(), "mybucket", storage.ListOptions{Marker: "myid1", MaxKeys: 5})
		require.NoError(t, err)
		assert.Equal(t, "mybucket", aws.ToString(seen.Bucket))
		assert.Equal(t, "myid1", aws.ToString(seen.Marker))
		assert.Equal(t, int32(5), aws.ToInt32(seen.MaxKeys))
	})

	t.Run("clamps page size", func(t *testing.T) {
		var seen *s3.ListObjectsInput
		c := newTestClient(t, &fakeAPI{listObjects: func(in *s3.ListObjectsInput) (*s3.ListObjectsOutput, error) {
			seen = in
			return &s3.ListObjectsOutput{}, nil
		}})

		_, err := c.ListObjects(context.Background(), "mybucket", storage.ListOptions{MaxKeys: 5000})
		require.NoError(t, err)
		assert.Nil(t, seen.Marker)
		assert.Equal(t, int32(storage.DefaultMaxKeys), aws.ToInt32(seen.MaxKeys))
	})

	t.Run("uses service next marker", func(t *testing.T) {
		c := newTestClient(t, &fakeAPI{listObjects: func(*s3.ListObjectsInput) (*s3.ListObjectsOutput, error) {
			return &s3.ListObjectsOutput{
				Contents:    []types.Object{{Key: aws.String("myid1"), Size: aws.Int64(3)}},
				IsTruncated: aws.Bool(true),
				NextMarker:  aws.String("opaque"),
			}, nil
		}})

		res, err := c.ListObjects(context.Background(), "mybucket", storage.ListOptions{})
		require.NoError(t, err)
		assert.True(t, res.IsTruncated)
		assert.Equal(t, "opaque", res.NextMarker)
		assert.Equal(t, []storage.ObjectSummary{{Key: "myid1", Size: 3}}, res.Objects)
	})

	t.Run("falls back to last key", func(t *testing.T) {
		c := newTestClient(t, &fakeAPI{listObjects: func(*s3.ListObjectsInput) (*s3.ListObjectsOutput, error) {
			return &s3.ListObjectsOutput{
				Contents:    []types.Object{{Key: aws.String("myid1")}, {Key: aws.String("myid2")}},
				IsTruncated: aws.Bool(true),
			}, nil
		}})

		res, err := c.ListObjects(context.Background(), "mybucket", storage.ListOptions{MaxKeys: 2})
		require.NoError(t, err)
		assert.Equal(t, "myid2", res.NextMarker)
	})

	t.Run("no marker when complete", func(t *testing.T) {
		c := newTestClient(t, &fakeAPI{listObjects: func(*s3.ListObjectsInput) (*s3.ListObjectsOutput, error) {
			return &s3.ListObjectsOutput{Contents: []types.Object{{Key: aws.String("myid1")}}}, nil
		}})

		res, err := c.ListObjects(context.Background(), "mybucket", storage.ListOptions{})
		require.NoError(t, err)
		assert.False(t, res.IsTruncated)
		assert.Empty(t, res.NextMarker)
	})

	t.Run("missing bucket", func(t *testing.T) {
		c := newTestClient(t, &fakeAPI{listObjects: func(*s3.ListObjectsInput) (*s3.ListObjectsOutput, error) {
			return nil, &types.NoSuchBucket{}
		}})

		_, err := c.ListObjects(context.Background(), "nope", storage.ListOptions{})
		assert.True(t, storage.IsNoSuchBucket(err))
	})

	t.Run("service error propagates", func(t *testing.T) {
		boom := apiError("SlowDown")
		c := newTestClient(t, &fakeAPI{listObjects: func(*s3.ListObjectsInput) (*s3.ListObjectsOutput, error) {
			return nil, boom
		}})

		_, err := c.ListObjects(context.Background(), "mybucket", storage.ListOptions{})
		assert.ErrorIs(t, err, boom)
		assert.False(t, storage.IsNotFound(err))
	})
}

func TestGetObject(t *testing.T) {
	t.Run("reads body and metadata", func(t *testing.T) {
		c := newTestClient(t, &fakeAPI{getObject: func(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			assert.Equal(t, "myid1", aws.ToString(in.Key))
			return &s3.GetObjectOutput{
				Body:     io.NopCloser(bytes.NewReader([]byte("hello"))),
				Metadata: map[string]string{"filename": "a.txt"},
			}, nil
		}})

		obj, err := c.GetObject(context.Background(), "mybucket", "myid1")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), obj.Body)
		assert.Equal(t, map[string]string{"filename": "a.txt"}, obj.Metadata)
	})

	t.Run("missing key", func(t *testing.T) {
		c := newTestClient(t, &fakeAPI{getObject: func(*s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			return nil, &types.NoSuchKey{}
		}})

		_, err := c.GetObject(context.Background(), "mybucket", "nope")
		assert.True(t, storage.IsNoSuchKey(err))
	})
}

func TestPutObject(t *testing.T) {
	var seen *s3.PutObjectInput
	var body []byte
	c := newTestClient(t, &fakeAPI{putObject: func(in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		seen = in
		var err error
		body, err = io.ReadAll(in.Body)
		return &s3.PutObjectOutput{}, err
	}})

	err := c.PutObject(context.Background(), "mybucket", "myid1", []byte("data"), map[string]string{"a": "1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), body)
	assert.Equal(t, int64(4), aws.ToInt64(seen.ContentLength))
	assert.Equal(t, map[string]string{"a": "1"}, seen.Metadata)
}

func TestDeleteObject(t *testing.T) {
	t.Run("missing key is success", func(t *testing.T) {
		c := newTestClient(t, &fakeAPI{deleteObject: func(*s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
			return nil, apiError("NoSuchKey")
		}})
		assert.NoError(t, c.DeleteObject(context.Background(), "mybucket", "nope"))
	})

	t.Run("missing bucket", func(t *testing.T) {
		c := newTestClient(t, &fakeAPI{deleteObject: func(*s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
			return nil, apiError("NoSuchBucket")
		}})
		assert.True(t, storage.IsNoSuchBucket(c.DeleteObject(context.Background(), "nope", "k")))
	})
}

func TestCreateBucket(t *testing.T) {
	t.Run("location constraint", func(t *testing.T) {
		var seen *s3.CreateBucketInput
		api := &fakeAPI{createBucket: func(in *s3.CreateBucketInput) (*s3.CreateBucketOutput, error) {
			seen = in
			return &s3.CreateBucketOutput{}, nil
		}}
		c, err := New(Config{Client: api, LocationConstraint: "eu-west-1"})
		require.NoError(t, err)

		require.NoError(t, c.CreateBucket(context.Background(), "mybucket"))
		require.NotNil(t, seen.CreateBucketConfiguration)
		assert.Equal(t, types.BucketLocationConstraint("eu-west-1"), seen.CreateBucketConfiguration.LocationConstraint)
	})

	t.Run("already exists", func(t *testing.T) {
		c := newTestClient(t, &fakeAPI{createBucket: func(*s3.CreateBucketInput) (*s3.CreateBucketOutput, error) {
			return nil, apiError("BucketAlreadyOwnedByYou")
		}})
		assert.ErrorIs(t, c.CreateBucket(context.Background(), "mybucket"), storage.ErrBucketAlreadyExists)
	})
}

func TestDeleteBucket(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		c := newTestClient(t, &fakeAPI{deleteBucket: func(*s3.DeleteBucketInput) (*s3.DeleteBucketOutput, error) {
			return nil, &types.NoSuchBucket{}
		}})
		assert.True(t, storage.IsNoSuchBucket(c.DeleteBucket(context.Background(), "nope")))
	})

	t.Run("not empty", func(t *testing.T) {
		c := newTestClient(t, &fakeAPI{deleteBucket: func(*s3.DeleteBucketInput) (*s3.DeleteBucketOutput, error) {
			return nil, apiError("BucketNotEmpty")
		}})
		assert.ErrorIs(t, c.DeleteBucket(context.Background(), "mybucket"), storage.ErrBucketNotEmpty)
	})
}
