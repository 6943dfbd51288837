package persister

import (
	"context"

	"github.com/marmos91/cephodm/internal/logger"
	"github.com/marmos91/cephodm/pkg/entity"
	"github.com/marmos91/cephodm/pkg/odm"
	"github.com/marmos91/cephodm/pkg/repository"
	"github.com/marmos91/cephodm/pkg/storage"
)

// BucketPersister creates and deletes buckets. Buckets are immutable, so
// there is nothing to update.
type BucketPersister struct {
	client storage.Client
}

// NewBucketPersister creates a bucket persister over client.
func NewBucketPersister(client storage.Client) *BucketPersister {
	return &BucketPersister{client: client}
}

// Persist creates the bucket.
func (p *BucketPersister) Persist(ctx context.Context, b *entity.Bucket) (repository.BucketRecord, error) {
	if b.Name() == "" {
		return repository.BucketRecord{}, odm.MissingRequiredProperty("name")
	}

	logger.Debug("CreateBucket: %s", b.Name())
	if err := p.client.CreateBucket(ctx, b.Name()); err != nil {
		return repository.BucketRecord{}, mapError(err, b.Name(), "create bucket")
	}
	return repository.BucketRecord{Name: b.Name()}, nil
}

// Update always fails with odm.ErrUnsupported.
func (p *BucketPersister) Update(_ context.Context, b *entity.Bucket, _ entity.ChangeSet) (repository.BucketRecord, error) {
	return repository.BucketRecord{}, odm.Unsupported("bucket %s cannot be updated", b.Name())
}

// Remove deletes the bucket. The bucket must be empty.
func (p *BucketPersister) Remove(ctx context.Context, b *entity.Bucket) error {
	logger.Debug("DeleteBucket: %s", b.Name())
	if err := p.client.DeleteBucket(ctx, b.Name()); err != nil {
		return mapError(err, b.Name(), "remove bucket")
	}
	return nil
}
