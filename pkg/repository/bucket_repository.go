package repository

import (
	"context"

	"github.com/marmos91/cephodm/pkg/entity"
	"github.com/marmos91/cephodm/pkg/query"
)

// BucketHydrator turns raw records into managed buckets.
type BucketHydrator interface {
	HydrateBucket(rec BucketRecord) (*entity.Bucket, error)
}

// BucketRepository returns Bucket entities.
type BucketRepository struct {
	data     *BucketDataRepository
	hydrator BucketHydrator
}

// NewBucketRepository wraps data.
func NewBucketRepository(data *BucketDataRepository, hydrator BucketHydrator) *BucketRepository {
	return &BucketRepository{data: data, hydrator: hydrator}
}

// Data returns the underlying query engine.
func (r *BucketRepository) Data() *BucketDataRepository {
	return r.data
}

// Find returns the bucket called name, or nil.
func (r *BucketRepository) Find(ctx context.Context, name string) (*entity.Bucket, error) {
	rec, err := r.data.Find(ctx, name)
	if err != nil || rec == nil {
		return nil, err
	}
	return r.hydrator.HydrateBucket(*rec)
}

// FindOneBy returns the first bucket matching criteria after ordering, or
// nil.
func (r *BucketRepository) FindOneBy(ctx context.Context, criteria query.BucketCriteria, order query.Order) (*entity.Bucket, error) {
	rec, err := r.data.FindOneBy(ctx, criteria, order)
	if err != nil || rec == nil {
		return nil, err
	}
	return r.hydrator.HydrateBucket(*rec)
}

// FindBy returns the buckets matching criteria.
func (r *BucketRepository) FindBy(ctx context.Context, criteria query.BucketCriteria, order query.Order, page query.Page) (*BucketResultSet, error) {
	records, err := r.data.FindBy(ctx, criteria, order, page)
	if err != nil {
		return nil, err
	}
	return r.hydrateAll(records)
}

// FindAll returns every bucket.
func (r *BucketRepository) FindAll(ctx context.Context) (*BucketResultSet, error) {
	records, err := r.data.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	return r.hydrateAll(records)
}

func (r *BucketRepository) hydrateAll(records []BucketRecord) (*BucketResultSet, error) {
	buckets := make([]*entity.Bucket, 0, len(records))
	for _, rec := range records {
		b, err := r.hydrator.HydrateBucket(rec)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return &BucketResultSet{buckets: buckets}, nil
}
