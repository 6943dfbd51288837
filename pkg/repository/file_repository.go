package repository

import (
	"context"
	"slices"
	"sync"

	"github.com/marmos91/cephodm/pkg/entity"
	"github.com/marmos91/cephodm/pkg/query"
)

// FileHydrator turns raw records into managed entities. The object manager
// implements it and returns the tracked instance when one exists.
type FileHydrator interface {
	HydrateFile(rec FileRecord) (*entity.File, error)
}

// FileRepository returns File entities and keeps a session cursor so a
// caller can page through truncated listings with Page.Continue.
type FileRepository struct {
	data     *FileDataRepository
	hydrator FileHydrator

	mu            sync.Mutex
	cursor        query.Cursor
	lastTruncated []string
}

// NewFileRepository wraps data. The repository registers itself as a
// truncation listener of data.
func NewFileRepository(data *FileDataRepository, hydrator FileHydrator) *FileRepository {
	r := &FileRepository{data: data, hydrator: hydrator}
	data.AddTruncatedListener(r)
	return r
}

// Data returns the underlying query engine.
func (r *FileRepository) Data() *FileDataRepository {
	return r.data
}

// OnQueryTruncated implements QueryTruncatedListener.
func (r *FileRepository) OnQueryTruncated(buckets []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastTruncated = buckets
}

// LastTruncated returns the buckets truncated by the latest query of this
// repository. Every query starts with an empty list.
func (r *FileRepository) LastTruncated() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.lastTruncated)
}

func (r *FileRepository) resetTruncated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastTruncated = nil
}

// Cursor returns the session cursor.
func (r *FileRepository) Cursor() query.Cursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Reset clears the session cursor.
func (r *FileRepository) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = query.Cursor{}
	r.lastTruncated = nil
}

// FindBy runs a query from the session cursor and replaces the session
// cursor with the returned one.
func (r *FileRepository) FindBy(ctx context.Context, criteria query.Criteria, order query.Order, page query.Page) (*FileResultSet, error) {
	return r.run(ctx, FileQuery{Criteria: criteria, Order: order, Page: page, Cursor: r.Cursor()})
}

// FindByFrom lists files strictly after from and makes the returned cursor
// the session cursor. See FileDataRepository.FindByFrom for from.
func (r *FileRepository) FindByFrom(ctx context.Context, criteria query.Criteria, from any, order query.Order, limit int) (*FileResultSet, error) {
	cursor, err := SeedCursor(criteria, from)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, FileQuery{
		Criteria: criteria,
		Order:    order,
		Page:     query.Page{Limit: limit, Continue: true},
		Cursor:   cursor,
	})
}

func (r *FileRepository) run(ctx context.Context, q FileQuery) (*FileResultSet, error) {
	r.resetTruncated()
	res, err := r.data.FindBy(ctx, q)
	if err != nil {
		return nil, err
	}

	files, err := r.hydrateAll(res.Records)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cursor = res.Cursor
	r.mu.Unlock()

	return &FileResultSet{files: files, truncated: res.Truncated, cursor: res.Cursor}, nil
}

// Find returns the file at bucket/id, or nil.
func (r *FileRepository) Find(ctx context.Context, bucket any, id string) (*entity.File, error) {
	r.resetTruncated()
	rec, err := r.data.Find(ctx, bucket, id)
	if err != nil || rec == nil {
		return nil, err
	}
	return r.hydrator.HydrateFile(*rec)
}

// FindOneBy returns the first file matching criteria, or nil.
func (r *FileRepository) FindOneBy(ctx context.Context, criteria query.Criteria) (*entity.File, error) {
	r.resetTruncated()
	rec, err := r.data.FindOneBy(ctx, criteria)
	if err != nil || rec == nil {
		return nil, err
	}
	return r.hydrator.HydrateFile(*rec)
}

// FindAll returns every file in every bucket.
func (r *FileRepository) FindAll(ctx context.Context) (*FileResultSet, error) {
	return r.FindBy(ctx, query.Criteria{}, nil, query.Page{})
}

func (r *FileRepository) hydrateAll(records []FileRecord) ([]*entity.File, error) {
	files := make([]*entity.File, 0, len(records))
	for _, rec := range records {
		f, err := r.hydrator.HydrateFile(rec)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}
