package testing

import (
	"context"
	"fmt"
	"testing"

	"github.com/marmos91/cephodm/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ClientTestSuite checks the storage.Client contract, not implementation
// details, so it can run against every backend.
//
// Usage:
//
//	func TestMyClient(t *testing.T) {
//	    suite := &storagetesting.ClientTestSuite{
//	        NewClient: func(t *testing.T) storage.Client { return mybackend.New() },
//	    }
//	    suite.Run(t)
//	}
type ClientTestSuite struct {
	// NewClient returns a fresh, empty client for each test.
	NewClient func(t *testing.T) storage.Client

	// IdempotentCreate marks backends where creating an owned bucket again
	// succeeds (S3 in us-east-1).
	IdempotentCreate bool
}

// Run executes all tests in the suite.
func (suite *ClientTestSuite) Run(t *testing.T) {
	t.Run("Buckets", suite.RunBucketTests)
	t.Run("Objects", suite.RunObjectTests)
	t.Run("Listing", suite.RunListingTests)
	t.Run("NotFound", suite.RunNotFoundTests)
}

func testContext() context.Context {
	return context.Background()
}

// RunBucketTests covers bucket creation, listing and deletion.
func (suite *ClientTestSuite) RunBucketTests(t *testing.T) {
	t.Run("CreateAndList", func(t *testing.T) {
		c := suite.NewClient(t)
		ctx := testContext()

		require.NoError(t, c.CreateBucket(ctx, "alpha"))
		require.NoError(t, c.CreateBucket(ctx, "beta"))

		buckets, err := c.ListBuckets(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []storage.BucketInfo{{Name: "alpha"}, {Name: "beta"}}, buckets)
	})

	t.Run("CreateDuplicateFails", func(t *testing.T) {
		if suite.IdempotentCreate {
			t.Skip("backend accepts duplicate bucket creation")
		}
		c := suite.NewClient(t)
		ctx := testContext()

		require.NoError(t, c.CreateBucket(ctx, "alpha"))
		assert.Error(t, c.CreateBucket(ctx, "alpha"))
	})

	t.Run("DeleteEmptyBucket", func(t *testing.T) {
		c := suite.NewClient(t)
		ctx := testContext()

		require.NoError(t, c.CreateBucket(ctx, "alpha"))
		require.NoError(t, c.DeleteBucket(ctx, "alpha"))

		buckets, err := c.ListBuckets(ctx)
		require.NoError(t, err)
		assert.Empty(t, buckets)
	})

	t.Run("DeleteNonEmptyBucketFails", func(t *testing.T) {
		c := suite.NewClient(t)
		ctx := testContext()

		require.NoError(t, c.CreateBucket(ctx, "alpha"))
		require.NoError(t, c.PutObject(ctx, "alpha", "k", []byte("x"), nil))
		assert.Error(t, c.DeleteBucket(ctx, "alpha"))
	})
}

// RunObjectTests covers the put/get/delete round trip.
func (suite *ClientTestSuite) RunObjectTests(t *testing.T) {
	t.Run("PutGet", func(t *testing.T) {
		c := suite.NewClient(t)
		ctx := testContext()
		require.NoError(t, c.CreateBucket(ctx, "alpha"))

		meta := map[string]string{"mymetadata": "myvalue"}
		require.NoError(t, c.PutObject(ctx, "alpha", "myid", []byte("mybin"), meta))

		obj, err := c.GetObject(ctx, "alpha", "myid")
		require.NoError(t, err)
		assert.Equal(t, []byte("mybin"), obj.Body)
		assert.Equal(t, meta, obj.Metadata)
	})

	t.Run("PutWithoutMetadata", func(t *testing.T) {
		c := suite.NewClient(t)
		ctx := testContext()
		require.NoError(t, c.CreateBucket(ctx, "alpha"))
		require.NoError(t, c.PutObject(ctx, "alpha", "myid", []byte("mybin"), nil))

		obj, err := c.GetObject(ctx, "alpha", "myid")
		require.NoError(t, err)
		assert.Empty(t, obj.Metadata)
	})

	t.Run("Overwrite", func(t *testing.T) {
		c := suite.NewClient(t)
		ctx := testContext()
		require.NoError(t, c.CreateBucket(ctx, "alpha"))
		require.NoError(t, c.PutObject(ctx, "alpha", "myid", []byte("v1"), map[string]string{"a": "1"}))
		require.NoError(t, c.PutObject(ctx, "alpha", "myid", []byte("v2"), map[string]string{"b": "2"}))

		obj, err := c.GetObject(ctx, "alpha", "myid")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), obj.Body)
		assert.Equal(t, map[string]string{"b": "2"}, obj.Metadata)
	})

	t.Run("Delete", func(t *testing.T) {
		c := suite.NewClient(t)
		ctx := testContext()
		require.NoError(t, c.CreateBucket(ctx, "alpha"))
		require.NoError(t, c.PutObject(ctx, "alpha", "myid", []byte("x"), nil))
		require.NoError(t, c.DeleteObject(ctx, "alpha", "myid"))

		_, err := c.GetObject(ctx, "alpha", "myid")
		assert.True(t, storage.IsNoSuchKey(err), "got %v", err)
	})
}

// RunListingTests covers marker paging.
func (suite *ClientTestSuite) RunListingTests(t *testing.T) {
	seed := func(t *testing.T, c storage.Client, n int) []string {
		ctx := testContext()
		require.NoError(t, c.CreateBucket(ctx, "alpha"))
		keys := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			key := fmt.Sprintf("myid%02d", i)
			require.NoError(t, c.PutObject(ctx, "alpha", key, []byte(key), nil))
			keys = append(keys, key)
		}
		return keys
	}

	t.Run("SinglePage", func(t *testing.T) {
		c := suite.NewClient(t)
		keys := seed(t, c, 3)

		res, err := c.ListObjects(testContext(), "alpha", storage.ListOptions{})
		require.NoError(t, err)
		assert.False(t, res.IsTruncated)
		assert.Equal(t, keys, summaryKeys(res.Objects))
	})

	t.Run("PagesResumeWithoutGapsOrDuplicates", func(t *testing.T) {
		c := suite.NewClient(t)
		keys := seed(t, c, 7)

		var got []string
		marker := ""
		for pages := 0; ; pages++ {
			require.Less(t, pages, 10, "listing did not terminate")

			res, err := c.ListObjects(testContext(), "alpha", storage.ListOptions{Marker: marker, MaxKeys: 3})
			require.NoError(t, err)
			assert.LessOrEqual(t, len(res.Objects), 3)
			got = append(got, summaryKeys(res.Objects)...)

			if !res.IsTruncated {
				break
			}
			require.NotEmpty(t, res.NextMarker)
			marker = res.NextMarker
		}
		assert.Equal(t, keys, got)
	})

	t.Run("CallerSuppliedMarker", func(t *testing.T) {
		c := suite.NewClient(t)
		seed(t, c, 4)

		res, err := c.ListObjects(testContext(), "alpha", storage.ListOptions{Marker: "myid02"})
		require.NoError(t, err)
		assert.Equal(t, []string{"myid03", "myid04"}, summaryKeys(res.Objects))
	})

	t.Run("EmptyBucket", func(t *testing.T) {
		c := suite.NewClient(t)
		require.NoError(t, c.CreateBucket(testContext(), "alpha"))

		res, err := c.ListObjects(testContext(), "alpha", storage.ListOptions{MaxKeys: 2})
		require.NoError(t, err)
		assert.Empty(t, res.Objects)
		assert.False(t, res.IsTruncated)
	})
}

// RunNotFoundTests covers the not-found error contract.
func (suite *ClientTestSuite) RunNotFoundTests(t *testing.T) {
	t.Run("GetFromMissingBucket", func(t *testing.T) {
		c := suite.NewClient(t)
		_, err := c.GetObject(testContext(), "missing", "k")
		assert.True(t, storage.IsNoSuchBucket(err), "got %v", err)
	})

	t.Run("GetMissingKey", func(t *testing.T) {
		c := suite.NewClient(t)
		require.NoError(t, c.CreateBucket(testContext(), "alpha"))
		_, err := c.GetObject(testContext(), "alpha", "missing")
		assert.True(t, storage.IsNoSuchKey(err), "got %v", err)
		assert.True(t, storage.IsNotFound(err))
	})

	t.Run("ListMissingBucket", func(t *testing.T) {
		c := suite.NewClient(t)
		_, err := c.ListObjects(testContext(), "missing", storage.ListOptions{})
		assert.True(t, storage.IsNoSuchBucket(err), "got %v", err)
	})

	t.Run("PutToMissingBucket", func(t *testing.T) {
		c := suite.NewClient(t)
		err := c.PutObject(testContext(), "missing", "k", []byte("x"), nil)
		assert.True(t, storage.IsNoSuchBucket(err), "got %v", err)
	})

	t.Run("DeleteMissingBucket", func(t *testing.T) {
		c := suite.NewClient(t)
		err := c.DeleteBucket(testContext(), "missing")
		assert.True(t, storage.IsNoSuchBucket(err), "got %v", err)
	})
}

func summaryKeys(objects []storage.ObjectSummary) []string {
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	return keys
}
