package repository

import (
	"context"
	"fmt"

	"github.com/marmos91/cephodm/internal/logger"
	"github.com/marmos91/cephodm/pkg/query"
	"github.com/marmos91/cephodm/pkg/storage"
)

// BucketDataRepository runs bucket queries. Bucket listings are small and
// unpaged, so filtering, ordering and paging all happen in memory over a
// single ListBuckets call.
type BucketDataRepository struct {
	client storage.Client
}

// NewBucketDataRepository creates the bucket query engine over client.
func NewBucketDataRepository(client storage.Client) *BucketDataRepository {
	return &BucketDataRepository{client: client}
}

func (r *BucketDataRepository) list(ctx context.Context) ([]BucketRecord, error) {
	logger.Debug("ListBuckets")
	buckets, err := r.client.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	records := make([]BucketRecord, 0, len(buckets))
	for _, b := range buckets {
		records = append(records, BucketRecord{Name: b.Name})
	}
	return records, nil
}

// FindAll returns every bucket in backend order.
func (r *BucketDataRepository) FindAll(ctx context.Context) ([]BucketRecord, error) {
	return r.list(ctx)
}

// Find returns the bucket called name, or nil.
func (r *BucketDataRepository) Find(ctx context.Context, name string) (*BucketRecord, error) {
	return r.FindOneBy(ctx, query.ByName(name), nil)
}

// FindBy returns the buckets matching criteria, sorted by order and sliced
// by page.
func (r *BucketDataRepository) FindBy(ctx context.Context, criteria query.BucketCriteria, order query.Order, page query.Page) ([]BucketRecord, error) {
	if err := page.ValidateBuckets(); err != nil {
		return nil, err
	}
	if err := order.ValidateBucketOrder(); err != nil {
		return nil, err
	}

	name, byName := criteria.Name()
	if byName && page.Offset > 0 {
		return nil, nil
	}

	records, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	if byName {
		filtered := records[:0]
		for _, rec := range records {
			if rec.Name == name {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	query.Sort(records, order)
	return window(records, page.Offset, page.Limit), nil
}

// FindOneBy returns the first bucket matching criteria after ordering, or
// nil. Without an order the pick follows backend order and is not
// guaranteed stable.
func (r *BucketDataRepository) FindOneBy(ctx context.Context, criteria query.BucketCriteria, order query.Order) (*BucketRecord, error) {
	records, err := r.FindBy(ctx, criteria, order, query.Page{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}
