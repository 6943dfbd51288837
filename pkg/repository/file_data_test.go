package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/marmos91/cephodm/pkg/entity"
	"github.com/marmos91/cephodm/pkg/odm"
	"github.com/marmos91/cephodm/pkg/query"
	"github.com/marmos91/cephodm/pkg/storage"
	"github.com/marmos91/cephodm/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inBucket(name string) query.Criteria {
	return query.NewCriteria().InBucket(name).MustBuild()
}

func TestFindBy_Example(t *testing.T) {
	ctx := context.Background()
	repo := NewFileDataRepository(seedExample(t))

	first, err := repo.FindBy(ctx, FileQuery{Criteria: inBucket("mybucket"), Page: query.Page{Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, []string{"myid1", "myid2"}, keys(first.Records))
	assert.Equal(t, []string{"mybucket"}, first.Truncated)

	second, err := repo.FindBy(ctx, FileQuery{Criteria: inBucket("mybucket"), Page: query.Page{Limit: 2, Offset: 2}})
	require.NoError(t, err)
	assert.Equal(t, []string{"myid3"}, keys(second.Records))
	assert.Empty(t, second.Truncated)
	assert.True(t, second.Cursor.IsEmpty())

	rec := first.Records[0]
	assert.Equal(t, "mybucket", rec.Bucket)
	assert.Equal(t, []byte("body-myid1"), rec.Body)
	assert.Equal(t, map[string]string{"mymetadata": "myvalue"}, rec.Metadata)
}

func TestFindBy_PointLookupEquivalence(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(seedExample(t))
	repo := NewFileDataRepository(client)

	identity := query.NewCriteria().InBucket("mybucket").WithID("myid2").MustBuild()

	res, err := repo.FindBy(ctx, FileQuery{Criteria: identity})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	found, err := repo.Find(ctx, "mybucket", "myid2")
	require.NoError(t, err)
	require.NotNil(t, found)

	byRef, err := repo.Find(ctx, entity.MustBucket("mybucket"), "myid2")
	require.NoError(t, err)
	require.NotNil(t, byRef)

	one, err := repo.FindOneBy(ctx, identity)
	require.NoError(t, err)
	require.NotNil(t, one)

	assert.Equal(t, res.Records[0], *found)
	assert.Equal(t, res.Records[0], *byRef)
	assert.Equal(t, res.Records[0], *one)

	assert.Empty(t, client.ops("ListObjects"), "identity lookups must not list")
	assert.Empty(t, client.ops("ListBuckets"))
	assert.Len(t, client.ops("GetObject"), 4)
}

func TestFindBy_IdentityNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewFileDataRepository(seedExample(t))

	rec, err := repo.Find(ctx, "mybucket", "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = repo.Find(ctx, "nobucket", "myid1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFindBy_IdentityBackendErrorPropagates(t *testing.T) {
	client := newRecordingClient(seedExample(t))
	boom := errors.New("connection reset")
	client.fail["GetObject"] = boom

	_, err := NewFileDataRepository(client).Find(context.Background(), "mybucket", "myid1")
	assert.ErrorIs(t, err, boom)
}

func TestFind_BucketType(t *testing.T) {
	_, err := NewFileDataRepository(memory.New()).Find(context.Background(), 42, "myid1")
	assert.True(t, odm.IsInvalidArgument(err))
}

func TestFindBy_Validation(t *testing.T) {
	withID := query.NewCriteria().WithID("myid1").MustBuild()

	tests := []struct {
		name string
		q    FileQuery
	}{
		{"id with limit", FileQuery{Criteria: withID, Page: query.Page{Limit: 1}}},
		{"id with offset", FileQuery{Criteria: withID, Page: query.Page{Offset: 1}}},
		{"id with continue", FileQuery{Criteria: withID, Page: query.Page{Continue: true}}},
		{"limit over cap", FileQuery{Page: query.Page{Limit: 1001}}},
		{"negative offset", FileQuery{Page: query.Page{Offset: -1}}},
		{"offset and continue", FileQuery{Page: query.Page{Offset: 1, Continue: true}}},
		{"unknown order field", FileQuery{Order: query.By(query.Asc("size"))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newRecordingClient(seedExample(t))
			_, err := NewFileDataRepository(client).FindBy(context.Background(), tt.q)
			assert.True(t, odm.IsInvalidArgument(err), "got %v", err)
			assert.Empty(t, client.calls, "validation must precede backend calls")
		})
	}
}

func TestFindBy_PaginationExhaustive(t *testing.T) {
	ctx := context.Background()
	c := memory.New()
	seed(t, c, map[string][]object{"mybucket": keyRange("k", 7)}, "mybucket")
	repo := NewFileDataRepository(c)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 7)

	var paged []FileRecord
	for offset := 0; ; offset += 3 {
		require.Less(t, offset, 30, "paging did not terminate")
		res, err := repo.FindBy(ctx, FileQuery{Page: query.Page{Limit: 3, Offset: offset}})
		require.NoError(t, err)
		if len(res.Records) == 0 {
			break
		}
		paged = append(paged, res.Records...)
	}
	assert.Equal(t, keys(all), keys(paged))
}

func TestFindBy_MetadataFilter(t *testing.T) {
	ctx := context.Background()
	c := memory.New()
	seed(t, c, map[string][]object{
		"mybucket": {
			{key: "o1", meta: map[string]string{"a": "1"}},
			{key: "o2", meta: map[string]string{"a": "1", "b": "2"}},
			{key: "o3", meta: map[string]string{"a": "2"}},
		},
	}, "mybucket")
	repo := NewFileDataRepository(c)

	tests := []struct {
		name   string
		wanted map[string]string
		want   []string
	}{
		{"single key", map[string]string{"a": "1"}, []string{"o1", "o2"}},
		{"two keys", map[string]string{"a": "1", "b": "2"}, []string{"o2"}},
		{"other value", map[string]string{"a": "2"}, []string{"o3"}},
		{"missing key", map[string]string{"c": "1"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			criteria, err := query.ParseCriteria(map[string]any{"metadata": tt.wanted})
			require.NoError(t, err)

			res, err := repo.FindBy(ctx, FileQuery{Criteria: criteria})
			require.NoError(t, err)
			assert.Equal(t, tt.want, keys(res.Records))

			one, err := repo.FindOneBy(ctx, criteria)
			require.NoError(t, err)
			if len(tt.want) == 0 {
				assert.Nil(t, one)
			} else {
				require.NotNil(t, one)
				assert.Equal(t, tt.want[0], one.Key)
			}
		})
	}
}

func TestFindBy_AcrossBuckets(t *testing.T) {
	ctx := context.Background()
	buckets := map[string][]object{
		"b1": keyRange("a", 2),
		"b2": keyRange("b", 2),
		"b3": keyRange("c", 2),
	}

	t.Run("buckets in listing order", func(t *testing.T) {
		c := memory.New()
		seed(t, c, buckets, "b2", "b1", "b3")

		all, err := NewFileDataRepository(c).FindAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"b2/b01", "b2/b02", "b1/a01", "b1/a02", "b3/c01", "b3/c02"}, addresses(all))
	})

	t.Run("limit stops the bucket loop", func(t *testing.T) {
		c := memory.New()
		seed(t, c, buckets, "b1", "b2", "b3")
		client := newRecordingClient(c)

		res, err := NewFileDataRepository(client).FindBy(ctx, FileQuery{Page: query.Page{Limit: 2, Offset: 1}})
		require.NoError(t, err)
		assert.Equal(t, []string{"b1/a02", "b2/b01"}, addresses(res.Records))
		assert.Equal(t, []string{"b2"}, res.Truncated)

		lists := client.ops("ListObjects")
		require.Len(t, lists, 2, "b3 must never be listed")
		assert.Equal(t, call{Op: "ListObjects", Bucket: "b1", MaxKeys: 3}, lists[0])
		assert.Equal(t, call{Op: "ListObjects", Bucket: "b2", MaxKeys: 1}, lists[1])

		assert.Len(t, client.ops("GetObject"), 2, "skipped objects are not fetched")
	})

	t.Run("id without bucket scans every bucket", func(t *testing.T) {
		c := memory.New()
		seed(t, c, map[string][]object{
			"b1": {{key: "shared"}, {key: "x"}},
			"b2": {{key: "y"}},
			"b3": {{key: "shared"}},
		}, "b1", "b2", "b3")

		criteria := query.NewCriteria().WithID("shared").MustBuild()
		res, err := NewFileDataRepository(c).FindBy(ctx, FileQuery{Criteria: criteria})
		require.NoError(t, err)
		assert.Equal(t, []string{"b1/shared", "b3/shared"}, addresses(res.Records))
	})
}

func TestFindBy_PageSize(t *testing.T) {
	ctx := context.Background()
	c := memory.New()
	seed(t, c, map[string][]object{"mybucket": keyRange("k", 5)}, "mybucket")

	t.Run("unlimited scan uses configured page size", func(t *testing.T) {
		client := newRecordingClient(c)
		all, err := NewFileDataRepository(client, WithMaxKeys(2)).FindAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 5)

		lists := client.ops("ListObjects")
		require.Len(t, lists, 3)
		assert.Equal(t, []string{"", "k02", "k04"}, []string{lists[0].Marker, lists[1].Marker, lists[2].Marker})
	})

	t.Run("limit shrinks the page", func(t *testing.T) {
		client := newRecordingClient(c)
		_, err := NewFileDataRepository(client, WithMaxKeys(2)).FindBy(ctx, FileQuery{
			Criteria: inBucket("mybucket"),
			Page:     query.Page{Limit: 3},
		})
		require.NoError(t, err)

		lists := client.ops("ListObjects")
		require.Len(t, lists, 1)
		assert.Equal(t, 3, lists[0].MaxKeys)
	})
}

func TestFindBy_TruncationCursorRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := memory.New()
	seed(t, c, map[string][]object{"mybucket": keyRange("k", 5)}, "mybucket")
	repo := NewFileDataRepository(opaqueClient{Client: c})

	first, err := repo.FindBy(ctx, FileQuery{Criteria: inBucket("mybucket"), Page: query.Page{Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, []string{"k01", "k02"}, keys(first.Records))
	assert.Equal(t, []string{"mybucket"}, first.Truncated)
	_, ok := first.Cursor.Marker("mybucket")
	require.True(t, ok)

	var got []string
	got = append(got, keys(first.Records)...)
	cursor := first.Cursor
	for i := 0; !cursor.IsEmpty(); i++ {
		require.Less(t, i, 10, "continuation did not terminate")
		res, err := repo.FindBy(ctx, FileQuery{
			Criteria: inBucket("mybucket"),
			Page:     query.Page{Limit: 2, Continue: true},
			Cursor:   cursor,
		})
		require.NoError(t, err)
		got = append(got, keys(res.Records)...)
		cursor = res.Cursor
	}
	assert.Equal(t, []string{"k01", "k02", "k03", "k04", "k05"}, got)
}

func TestFindBy_Continue(t *testing.T) {
	ctx := context.Background()

	newRepo := func(t *testing.T) (*FileDataRepository, *recordingClient) {
		c := memory.New()
		seed(t, c, map[string][]object{
			"b1": keyRange("a", 3),
			"b2": keyRange("b", 3),
			"b3": keyRange("c", 3),
		}, "b1", "b2", "b3")
		client := newRecordingClient(c)
		return NewFileDataRepository(client), client
	}

	t.Run("buckets without marker are skipped", func(t *testing.T) {
		repo, client := newRepo(t)
		res, err := repo.FindBy(ctx, FileQuery{
			Page:   query.Page{Continue: true},
			Cursor: query.NewCursor(map[string]string{"b2": "b01"}),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"b2/b02", "b2/b03"}, addresses(res.Records))
		assert.Empty(t, res.Truncated)
		assert.True(t, res.Cursor.IsEmpty())
		assert.Len(t, client.ops("ListBuckets"), 1)
		assert.Len(t, client.ops("ListObjects"), 1)
	})

	t.Run("buckets resume in listing order", func(t *testing.T) {
		c := memory.New()
		seed(t, c, map[string][]object{
			"zb": keyRange("z", 3),
			"ab": keyRange("a", 3),
		}, "zb", "ab")

		res, err := NewFileDataRepository(c).FindByFrom(ctx, query.Criteria{},
			map[string]string{"zb": "z01", "ab": "a01"}, nil, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"zb/z02", "zb/z03"}, addresses(res.Records))
		assert.Equal(t, []string{"ab"}, res.Truncated)
		assert.Equal(t, []string{"ab"}, res.Cursor.Buckets())
	})

	t.Run("markers of vanished buckets are dropped", func(t *testing.T) {
		repo, client := newRepo(t)
		res, err := repo.FindBy(ctx, FileQuery{
			Page:   query.Page{Continue: true},
			Cursor: query.NewCursor(map[string]string{"gone": "x", "b3": "c02"}),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"b3/c03"}, addresses(res.Records))
		assert.True(t, res.Cursor.IsEmpty())
		for _, l := range client.ops("ListObjects") {
			assert.NotEqual(t, "gone", l.Bucket)
		}
	})

	t.Run("unreached buckets keep their markers", func(t *testing.T) {
		repo, client := newRepo(t)
		res, err := repo.FindBy(ctx, FileQuery{
			Page:   query.Page{Limit: 2, Continue: true},
			Cursor: query.NewCursor(map[string]string{"b1": "a01", "b3": "c01"}),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"b1/a02", "b1/a03"}, addresses(res.Records))
		assert.Equal(t, []string{"b3"}, res.Truncated)

		assert.Equal(t, []string{"b3"}, res.Cursor.Buckets())
		m, _ := res.Cursor.Marker("b3")
		assert.Equal(t, "c01", m)
		assert.Len(t, client.ops("ListObjects"), 1)
	})

	t.Run("empty cursor yields nothing", func(t *testing.T) {
		repo, client := newRepo(t)
		res, err := repo.FindBy(ctx, FileQuery{Page: query.Page{Continue: true}})
		require.NoError(t, err)
		assert.Empty(t, res.Records)
		assert.Empty(t, client.calls)
	})

	t.Run("bucket criterion keeps other markers", func(t *testing.T) {
		repo, _ := newRepo(t)
		res, err := repo.FindBy(ctx, FileQuery{
			Criteria: inBucket("b1"),
			Page:     query.Page{Continue: true},
			Cursor:   query.NewCursor(map[string]string{"b1": "a02", "b2": "b01"}),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"b1/a03"}, addresses(res.Records))
		assert.Equal(t, []string{"b2"}, res.Cursor.Buckets())
	})

	t.Run("page is sorted", func(t *testing.T) {
		repo, _ := newRepo(t)
		res, err := repo.FindBy(ctx, FileQuery{
			Order:  query.By(query.Desc(query.FieldID)),
			Page:   query.Page{Continue: true},
			Cursor: query.NewCursor(map[string]string{"b1": "a01", "b2": "b02"}),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"b2/b03", "b1/a03", "b1/a02"}, addresses(res.Records))
	})
}

func TestFindByFrom(t *testing.T) {
	ctx := context.Background()
	repo := NewFileDataRepository(seedExample(t))

	t.Run("single start key", func(t *testing.T) {
		res, err := repo.FindByFrom(ctx, inBucket("mybucket"), "myid1", nil, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"myid2", "myid3"}, keys(res.Records))
	})

	t.Run("per bucket start keys", func(t *testing.T) {
		res, err := repo.FindByFrom(ctx, query.Criteria{}, map[string]string{"mybucket": "myid2"}, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"myid3"}, keys(res.Records))
	})

	t.Run("limit truncates", func(t *testing.T) {
		res, err := repo.FindByFrom(ctx, inBucket("mybucket"), "", nil, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"myid1"}, keys(res.Records))
		assert.Equal(t, []string{"mybucket"}, res.Truncated)
	})

	invalid := []struct {
		name     string
		criteria query.Criteria
		from     any
	}{
		{"id criterion", query.NewCriteria().InBucket("mybucket").WithID("myid1").MustBuild(), "myid1"},
		{"single key without bucket", query.Criteria{}, "myid1"},
		{"wrong type", inBucket("mybucket"), 3},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.FindByFrom(ctx, tt.criteria, tt.from, nil, 0)
			assert.True(t, odm.IsInvalidArgument(err), "got %v", err)
		})
	}
}

func TestFindBy_OrderedOffset(t *testing.T) {
	ctx := context.Background()
	repo := NewFileDataRepository(seedExample(t))

	res, err := repo.FindBy(ctx, FileQuery{
		Criteria: inBucket("mybucket"),
		Order:    query.By(query.Desc(query.FieldID)),
		Page:     query.Page{Limit: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"myid3", "myid2"}, keys(res.Records))
	assert.Empty(t, res.Truncated, "a sorted scan reads everything")

	res, err = repo.FindBy(ctx, FileQuery{
		Criteria: inBucket("mybucket"),
		Order:    query.By(query.Nested(query.FieldMetadata, query.Desc("mymetadata"))),
		Page:     query.Page{Offset: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"myid1", "myid2"}, keys(res.Records))
}

func TestFindBy_TruncatedListeners(t *testing.T) {
	ctx := context.Background()

	var notified [][]string
	repo := NewFileDataRepository(seedExample(t), WithTruncatedListener(QueryTruncatedFunc(func(buckets []string) {
		notified = append(notified, buckets)
	})))

	_, err := repo.FindBy(ctx, FileQuery{Criteria: inBucket("mybucket"), Page: query.Page{Limit: 1}})
	require.NoError(t, err)
	_, err = repo.FindAll(ctx)
	require.NoError(t, err)
	rec, err := repo.FindOneBy(ctx, inBucket("mybucket"))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, [][]string{{"mybucket"}}, notified, "one notification per truncating call only")
}

func TestFindBy_BackendErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("503 slow down")

	t.Run("listing error propagates", func(t *testing.T) {
		client := newRecordingClient(seedExample(t))
		client.fail["ListObjects"] = boom
		_, err := NewFileDataRepository(client).FindAll(ctx)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("bucket listing error propagates", func(t *testing.T) {
		client := newRecordingClient(seedExample(t))
		client.fail["ListBuckets"] = boom
		_, err := NewFileDataRepository(client).FindAll(ctx)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("missing bucket lists nothing", func(t *testing.T) {
		res, err := NewFileDataRepository(seedExample(t)).FindBy(ctx, FileQuery{Criteria: inBucket("nobucket")})
		require.NoError(t, err)
		assert.Empty(t, res.Records)
	})

	t.Run("object deleted during scan is skipped", func(t *testing.T) {
		client := newRecordingClient(seedExample(t))
		client.fail["GetObject"] = storage.NoSuchKey("mybucket", "myid2", nil)
		res, err := NewFileDataRepository(client).FindAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, res)
	})
}
