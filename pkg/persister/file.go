package persister

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/marmos91/cephodm/internal/logger"
	"github.com/marmos91/cephodm/pkg/entity"
	"github.com/marmos91/cephodm/pkg/odm"
	"github.com/marmos91/cephodm/pkg/repository"
	"github.com/marmos91/cephodm/pkg/storage"
)

// DefaultFileRequiredProperties must be non-empty for a file to be written.
var DefaultFileRequiredProperties = []string{entity.PropertyBucket, entity.PropertyBin}

// FilePersister writes files as objects.
type FilePersister struct {
	client   storage.Client
	required []string
	newID    func() string
}

// FileOption configures a FilePersister.
type FileOption func(*FilePersister)

// WithRequiredProperties replaces the required property list.
func WithRequiredProperties(props ...string) FileOption {
	return func(p *FilePersister) {
		p.required = slices.Clone(props)
	}
}

// WithIDGenerator replaces the UUID generator used for new keys.
func WithIDGenerator(fn func() string) FileOption {
	return func(p *FilePersister) {
		p.newID = fn
	}
}

// NewFilePersister creates a file persister over client.
func NewFilePersister(client storage.Client, opts ...FileOption) *FilePersister {
	p := &FilePersister{
		client:   client,
		required: slices.Clone(DefaultFileRequiredProperties),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RequiredProperties returns the properties checked before a write.
func (p *FilePersister) RequiredProperties() []string {
	return slices.Clone(p.required)
}

// Persist writes f under a fresh key and assigns the key to f.
func (p *FilePersister) Persist(ctx context.Context, f *entity.File) (repository.FileRecord, error) {
	if err := CheckRequired(GetterExtractor{File: f}, p.required); err != nil {
		return repository.FileRecord{}, err
	}

	cs, err := f.PreparePersistChangeSet()
	if err != nil {
		return repository.FileRecord{}, err
	}

	rec := repository.FileRecord{
		Bucket:   f.BucketName(),
		Key:      p.newID(),
		Body:     newBytes(cs, entity.PropertyBin),
		Metadata: newMetadata(cs),
	}
	if rec.Bucket == "" {
		return repository.FileRecord{}, odm.MissingRequiredProperty(entity.PropertyBucket)
	}

	logger.Debug("PutObject: bucket=%s key=%s size=%d", rec.Bucket, rec.Key, len(rec.Body))
	if err := p.client.PutObject(ctx, rec.Bucket, rec.Key, rec.Body, rec.Metadata); err != nil {
		return repository.FileRecord{}, mapError(err, rec.Bucket, "persist file")
	}

	if err := f.AssignIdentifier(rec.Key); err != nil {
		return repository.FileRecord{}, err
	}
	return rec, nil
}

// Update rewrites the object of f with the bin and metadata changes in cs.
// The backend cannot update metadata alone, so an unchanged body is taken
// from the entity.
func (p *FilePersister) Update(ctx context.Context, f *entity.File, cs entity.ChangeSet) (repository.FileRecord, error) {
	if f.ID() == "" || f.BucketName() == "" {
		return repository.FileRecord{}, odm.InvalidArgument("file must be persisted before it can be updated")
	}

	cs = f.PrepareUpdateChangeSet(cs)
	if err := CheckRequired(ChangeSetExtractor{Changes: cs}, p.required); err != nil {
		return repository.FileRecord{}, err
	}

	rec := repository.FileRecord{Bucket: f.BucketName(), Key: f.ID()}
	if cs.IsEmpty() {
		return rec, nil
	}

	if cs.Has(entity.PropertyBin) {
		rec.Body = newBytes(cs, entity.PropertyBin)
	} else {
		body, err := f.Bin()
		if err != nil {
			return repository.FileRecord{}, err
		}
		rec.Body = body
	}

	if cs.Has(entity.PropertyMetadata) {
		rec.Metadata = newMetadata(cs)
	} else {
		meta, err := f.AllMetadata()
		if err != nil {
			return repository.FileRecord{}, err
		}
		rec.Metadata = meta
	}

	logger.Debug("PutObject (update %v): bucket=%s key=%s", cs.Properties(), rec.Bucket, rec.Key)
	if err := p.client.PutObject(ctx, rec.Bucket, rec.Key, rec.Body, rec.Metadata); err != nil {
		return repository.FileRecord{}, mapError(err, rec.Bucket, "update file")
	}
	return rec, nil
}

// Remove deletes the object of f.
func (p *FilePersister) Remove(ctx context.Context, f *entity.File) error {
	if f.ID() == "" || f.BucketName() == "" {
		return odm.InvalidArgument("file must be persisted before it can be removed")
	}

	logger.Debug("DeleteObject: bucket=%s key=%s", f.BucketName(), f.ID())
	if err := p.client.DeleteObject(ctx, f.BucketName(), f.ID()); err != nil {
		return mapError(err, f.BucketName(), "remove file")
	}
	return nil
}

func newBytes(cs entity.ChangeSet, property string) []byte {
	c, _ := cs.Get(property)
	b, _ := c.New.([]byte)
	return b
}

func newMetadata(cs entity.ChangeSet) map[string]string {
	c, _ := cs.Get(entity.PropertyMetadata)
	m, _ := c.New.(map[string]string)
	return storage.CloneMetadata(m)
}

// mapError turns a missing bucket into odm.ErrBucketNotFound and wraps
// every other error.
func mapError(err error, bucket, op string) error {
	if storage.IsNoSuchBucket(err) {
		var nf *storage.NotFoundError
		if errors.As(err, &nf) && nf.Bucket != "" {
			bucket = nf.Bucket
		}
		return odm.BucketNotFound(bucket, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
