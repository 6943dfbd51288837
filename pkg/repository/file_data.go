package repository

import (
	"context"
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/marmos91/cephodm/internal/logger"
	"github.com/marmos91/cephodm/pkg/entity"
	"github.com/marmos91/cephodm/pkg/odm"
	"github.com/marmos91/cephodm/pkg/query"
	"github.com/marmos91/cephodm/pkg/storage"
)

// FileQuery is one file query.
type FileQuery struct {
	Criteria query.Criteria
	Order    query.Order
	Page     query.Page

	// Cursor holds the listing markers a Continue query resumes from. In
	// offset mode it is only carried over and updated.
	Cursor query.Cursor
}

// FileResult is the outcome of a file query.
type FileResult struct {
	Records []FileRecord

	// Truncated lists the buckets whose listing stopped before the end.
	Truncated []string

	// Cursor resumes the truncated listings with a Continue query.
	Cursor query.Cursor
}

// FileDataRepository runs file queries against a storage client.
//
// The backend only lists keys in order, page by page, so every criterion
// other than the bucket is evaluated in memory:
//   - the id criterion filters listed keys unless the bucket is also
//     known, in which case the object is fetched directly
//   - limit and offset are a running count over the concatenated listings,
//     bucket after bucket; the scan stops as soon as limit+offset objects
//     were counted
//   - the metadata criterion filters the collected records last
//   - ordering is applied in memory after the scan
//
// FileDataRepository holds no query state; it is safe for concurrent use.
type FileDataRepository struct {
	client  storage.Client
	maxKeys int

	mu        sync.RWMutex
	listeners []QueryTruncatedListener
}

// FileDataOption configures a FileDataRepository.
type FileDataOption func(*FileDataRepository)

// WithMaxKeys sets the listing page size used when a query has no limit.
func WithMaxKeys(n int) FileDataOption {
	return func(r *FileDataRepository) {
		r.maxKeys = storage.EffectiveMaxKeys(n)
	}
}

// WithTruncatedListener registers l at construction.
func WithTruncatedListener(l QueryTruncatedListener) FileDataOption {
	return func(r *FileDataRepository) {
		r.listeners = append(r.listeners, l)
	}
}

// NewFileDataRepository creates the file query engine over client.
func NewFileDataRepository(client storage.Client, opts ...FileDataOption) *FileDataRepository {
	r := &FileDataRepository{client: client, maxKeys: storage.DefaultMaxKeys}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddTruncatedListener registers l for truncation notifications.
func (r *FileDataRepository) AddTruncatedListener(l QueryTruncatedListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *FileDataRepository) notifyTruncated(buckets []string) {
	if len(buckets) == 0 {
		return
	}
	r.mu.RLock()
	listeners := append([]QueryTruncatedListener(nil), r.listeners...)
	r.mu.RUnlock()

	for _, l := range listeners {
		l.OnQueryTruncated(append([]string(nil), buckets...))
	}
}

// FindBy runs q. Validation errors are returned before any backend call.
func (r *FileDataRepository) FindBy(ctx context.Context, q FileQuery) (FileResult, error) {
	res, err := r.find(ctx, q)
	if err != nil {
		return FileResult{}, err
	}
	r.notifyTruncated(res.Truncated)
	return res, nil
}

// find runs q without notifying truncation listeners.
func (r *FileDataRepository) find(ctx context.Context, q FileQuery) (FileResult, error) {
	if err := q.Page.Validate(q.Criteria); err != nil {
		return FileResult{}, err
	}
	if err := q.Order.ValidateFileOrder(); err != nil {
		return FileResult{}, err
	}

	logger.Debug("FindBy files: criteria=%s order=%d keys limit=%d offset=%d continue=%t",
		q.Criteria, len(q.Order), q.Page.Limit, q.Page.Offset, q.Page.Continue)

	switch {
	case q.Criteria.Shape() == query.ShapeIdentity:
		return r.findIdentity(ctx, q)
	case q.Page.Continue:
		return r.findContinue(ctx, q)
	default:
		return r.findOffset(ctx, q)
	}
}

// Find returns the file at bucket/id, or nil. bucket is a bucket name or
// an *entity.Bucket.
func (r *FileDataRepository) Find(ctx context.Context, bucket any, id string) (*FileRecord, error) {
	name, err := bucketName(bucket)
	if err != nil {
		return nil, err
	}
	criteria, err := query.NewCriteria().InBucket(name).WithID(id).Build()
	if err != nil {
		return nil, err
	}
	return r.FindOneBy(ctx, criteria)
}

// FindOneBy returns the first file matching criteria, or nil. Without an
// order the first file is whatever the backend lists first. The single
// record limit is not a truncation, so listeners are not notified.
func (r *FileDataRepository) FindOneBy(ctx context.Context, criteria query.Criteria) (*FileRecord, error) {
	var page query.Page
	_, hasID := criteria.ID()
	// The metadata filter runs after counting, so a limit would hide
	// matches further down the listing.
	if !hasID && !criteria.HasMetadata() {
		page.Limit = 1
	}

	res, err := r.find(ctx, FileQuery{Criteria: criteria, Page: page})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	return &res.Records[0], nil
}

// FindAll returns every file in every bucket.
func (r *FileDataRepository) FindAll(ctx context.Context) ([]FileRecord, error) {
	res, err := r.FindBy(ctx, FileQuery{})
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// FindByFrom lists files strictly after a start key. from is either a key,
// which needs a bucket criterion, or a map of bucket name to start key.
func (r *FileDataRepository) FindByFrom(ctx context.Context, criteria query.Criteria, from any, order query.Order, limit int) (FileResult, error) {
	cursor, err := SeedCursor(criteria, from)
	if err != nil {
		return FileResult{}, err
	}
	return r.FindBy(ctx, FileQuery{
		Criteria: criteria,
		Order:    order,
		Page:     query.Page{Limit: limit, Continue: true},
		Cursor:   cursor,
	})
}

// SeedCursor builds the cursor of a FindByFrom query.
func SeedCursor(criteria query.Criteria, from any) (query.Cursor, error) {
	if _, hasID := criteria.ID(); hasID {
		return query.Cursor{}, odm.InvalidArgument("cannot list from a start key with an id criterion")
	}

	switch start := from.(type) {
	case string:
		bucket, ok := criteria.Bucket()
		if !ok {
			return query.Cursor{}, odm.InvalidArgument("a single start key needs a bucket criterion")
		}
		return query.NewCursor(map[string]string{bucket: start}), nil
	case map[string]string:
		return query.NewCursor(start), nil
	default:
		return query.Cursor{}, odm.InvalidArgument("start key must be a string or a map of bucket to key, got %T", from)
	}
}

func bucketName(bucket any) (string, error) {
	switch b := bucket.(type) {
	case string:
		return b, nil
	case *entity.Bucket:
		if b == nil {
			return "", odm.InvalidArgument("bucket reference is nil")
		}
		return b.Name(), nil
	default:
		return "", odm.InvalidArgument("bucket must be a string or a *entity.Bucket, got %T", bucket)
	}
}

// findIdentity resolves a bucket+id query with a single GetObject.
func (r *FileDataRepository) findIdentity(ctx context.Context, q FileQuery) (FileResult, error) {
	bucket, _ := q.Criteria.Bucket()
	id, _ := q.Criteria.ID()

	res := FileResult{Cursor: q.Cursor}

	rec, found, err := r.fetch(ctx, bucket, id)
	if err != nil {
		return FileResult{}, err
	}
	if found && query.MatchMetadata(rec.Metadata, q.Criteria.Metadata()) {
		res.Records = []FileRecord{rec}
	}
	return res, nil
}

// fetch reads one object. A missing bucket or key is reported as not
// found, not as an error.
func (r *FileDataRepository) fetch(ctx context.Context, bucket, key string) (FileRecord, bool, error) {
	logger.Debug("GetObject: bucket=%s key=%s", bucket, key)

	obj, err := r.client.GetObject(ctx, bucket, key)
	if err != nil {
		if storage.IsNotFound(err) {
			logger.Debug("GetObject: %s/%s not found", bucket, key)
			return FileRecord{}, false, nil
		}
		return FileRecord{}, false, fmt.Errorf("failed to get %s/%s: %w", bucket, key, err)
	}

	return FileRecord{
		Bucket:   bucket,
		Key:      key,
		Body:     obj.Body,
		Metadata: storage.CloneMetadata(obj.Metadata),
	}, true, nil
}

// targetBuckets returns the criteria bucket or every bucket in listing
// order.
func (r *FileDataRepository) targetBuckets(ctx context.Context, criteria query.Criteria) ([]string, error) {
	if bucket, ok := criteria.Bucket(); ok {
		return []string{bucket}, nil
	}

	logger.Debug("ListBuckets")
	buckets, err := r.client.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	names := make([]string, 0, len(buckets))
	for _, b := range buckets {
		names = append(names, b.Name)
	}
	return names, nil
}

// scan is the state of one listing pass over several buckets.
type scan struct {
	r        *FileDataRepository
	criteria query.Criteria

	// skip and target bound the running count; target 0 means no limit.
	skip   int
	target int
	count  int

	records   []FileRecord
	cursor    query.Cursor
	truncated []string
	seen      mapset.Set[string]
}

func newScan(r *FileDataRepository, q FileQuery, skip, target int) *scan {
	return &scan{
		r:        r,
		criteria: q.Criteria,
		skip:     skip,
		target:   target,
		cursor:   q.Cursor,
		seen:     mapset.NewThreadUnsafeSet[string](),
	}
}

func (s *scan) done() bool {
	return s.target > 0 && s.count >= s.target
}

func (s *scan) markTruncated(bucket, marker string) {
	s.cursor = s.cursor.With(bucket, marker)
	if s.seen.Add(bucket) {
		s.truncated = append(s.truncated, bucket)
	}
}

// listBucket pages through bucket from marker until the bucket is drained
// or the scan reaches its target.
func (s *scan) listBucket(ctx context.Context, bucket, marker string) error {
	id, hasID := s.criteria.ID()

	for {
		maxKeys := s.r.maxKeys
		if s.target > 0 {
			maxKeys = min(s.target-s.count, storage.DefaultMaxKeys)
		}

		logger.Debug("ListObjects: bucket=%s marker=%q maxKeys=%d", bucket, marker, maxKeys)
		page, err := s.r.client.ListObjects(ctx, bucket, storage.ListOptions{Marker: marker, MaxKeys: maxKeys})
		if err != nil {
			if storage.IsNoSuchBucket(err) {
				logger.Debug("ListObjects: bucket %s not found", bucket)
				s.cursor = s.cursor.Without(bucket)
				return nil
			}
			return fmt.Errorf("failed to list %s: %w", bucket, err)
		}

		for i, obj := range page.Objects {
			if hasID && obj.Key != id {
				continue
			}

			s.count++
			if s.count > s.skip {
				rec, found, err := s.r.fetch(ctx, bucket, obj.Key)
				if err != nil {
					return err
				}
				if found {
					s.records = append(s.records, rec)
				}
			}

			if s.done() {
				if i < len(page.Objects)-1 {
					// Stopped inside the page: resume right after this key.
					s.markTruncated(bucket, obj.Key)
				} else if page.IsTruncated {
					s.markTruncated(bucket, page.NextMarker)
				} else {
					s.cursor = s.cursor.Without(bucket)
				}
				return nil
			}
		}

		if !page.IsTruncated {
			s.cursor = s.cursor.Without(bucket)
			return nil
		}
		if page.NextMarker == "" {
			return fmt.Errorf("listing of %s is truncated without a resume marker", bucket)
		}
		marker = page.NextMarker
	}
}

func (s *scan) result() FileResult {
	records := s.records
	if s.criteria.HasMetadata() {
		wanted := s.criteria.Metadata()
		records = records[:0:0]
		for _, rec := range s.records {
			if query.MatchMetadata(rec.Metadata, wanted) {
				records = append(records, rec)
			}
		}
	}
	return FileResult{Records: records, Truncated: s.truncated, Cursor: s.cursor}
}

// findOffset runs a fresh scan that skips Offset objects and keeps Limit.
// With an order the backend cannot help, so every candidate is read,
// sorted and sliced in memory and no listing is left truncated.
func (r *FileDataRepository) findOffset(ctx context.Context, q FileQuery) (FileResult, error) {
	buckets, err := r.targetBuckets(ctx, q.Criteria)
	if err != nil {
		return FileResult{}, err
	}

	ordered := len(q.Order) > 0
	target := 0
	skip := 0
	if !ordered {
		skip = q.Page.Offset
		if q.Page.Limit > 0 {
			target = q.Page.Limit + q.Page.Offset
		}
	}

	s := newScan(r, q, skip, target)
	for _, bucket := range buckets {
		if err := s.listBucket(ctx, bucket, ""); err != nil {
			return FileResult{}, err
		}
		if s.done() {
			break
		}
	}

	if ordered {
		query.Sort(s.records, q.Order)
		s.records = window(s.records, q.Page.Offset, q.Page.Limit)
	}
	return s.result(), nil
}

// findContinue resumes every bucket holding a marker in q.Cursor, in
// bucket listing order. Buckets without a marker are skipped. Buckets not
// reached before the limit keep their marker and stay truncated.
func (r *FileDataRepository) findContinue(ctx context.Context, q FileQuery) (FileResult, error) {
	s := newScan(r, q, 0, q.Page.Limit)
	if q.Cursor.IsEmpty() {
		return s.result(), nil
	}

	buckets, err := r.targetBuckets(ctx, q.Criteria)
	if err != nil {
		return FileResult{}, err
	}

	if _, scoped := q.Criteria.Bucket(); !scoped {
		// A marker for a bucket that is no longer listed cannot be resumed.
		listed := mapset.NewThreadUnsafeSet(buckets...)
		for _, bucket := range q.Cursor.Buckets() {
			if !listed.Contains(bucket) {
				s.cursor = s.cursor.Without(bucket)
			}
		}
	}

	for _, bucket := range buckets {
		marker, ok := q.Cursor.Marker(bucket)
		if !ok {
			continue
		}

		if s.done() {
			s.markTruncated(bucket, marker)
			continue
		}
		if err := s.listBucket(ctx, bucket, marker); err != nil {
			return FileResult{}, err
		}
	}

	res := s.result()
	query.Sort(res.Records, q.Order)
	return res, nil
}

// window returns records[offset:offset+limit], clamped. limit 0 keeps the
// rest.
func window[T any](records []T, offset, limit int) []T {
	if offset >= len(records) {
		return nil
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}
