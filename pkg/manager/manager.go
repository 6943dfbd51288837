// Package manager provides the ObjectManager: the identity map and unit of
// work that ties the repositories and persisters together.
//
// Entities loaded through the manager's repositories are tracked: each
// (bucket, id) is represented by a single *entity.File instance, changes to
// its body and metadata are recorded for the next Flush, and its bucket and
// id are locked until it is detached.
//
//	om := manager.New(client)
//	f, _ := om.Files().Find(ctx, "mybucket", "myid")
//	_ = f.SetMetadata("author", "me")
//	_ = om.Flush(ctx)
package manager

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/marmos91/cephodm/internal/logger"
	"github.com/marmos91/cephodm/pkg/entity"
	"github.com/marmos91/cephodm/pkg/odm"
	"github.com/marmos91/cephodm/pkg/persister"
	"github.com/marmos91/cephodm/pkg/repository"
	"github.com/marmos91/cephodm/pkg/storage"
)

// ObjectManager tracks loaded entities and flushes scheduled writes.
//
// The maps are guarded so one manager can serve concurrent readers, but a
// unit of work must not be flushed from several goroutines at once.
type ObjectManager struct {
	client storage.Client

	files           *repository.FileRepository
	buckets         *repository.BucketRepository
	filePersister   *persister.FilePersister
	bucketPersister *persister.BucketPersister
	loader          *lazyLoader
	closers         []io.Closer

	mu       sync.Mutex
	fileMap  map[string]*managedFile
	bucketIx map[string]*entity.Bucket
	inserts  []any
	removals []any
}

// managedFile is the tracking state of one file in the identity map.
type managedFile struct {
	om      *ObjectManager
	file    *entity.File
	changes entity.ChangeSet
}

type options struct {
	dataOpts    []repository.FileDataOption
	fileOpts    []persister.FileOption
	closers     []io.Closer
	loadContext context.Context
}

// Option configures an ObjectManager.
type Option func(*options)

// WithMaxKeys sets the listing page size of unlimited file scans.
func WithMaxKeys(n int) Option {
	return func(o *options) {
		o.dataOpts = append(o.dataOpts, repository.WithMaxKeys(n))
	}
}

// WithTruncatedListener registers l on the file query engine.
func WithTruncatedListener(l repository.QueryTruncatedListener) Option {
	return func(o *options) {
		o.dataOpts = append(o.dataOpts, repository.WithTruncatedListener(l))
	}
}

// WithFileRequiredProperties replaces the properties a file needs to be
// written.
func WithFileRequiredProperties(props ...string) Option {
	return func(o *options) {
		o.fileOpts = append(o.fileOpts, persister.WithRequiredProperties(props...))
	}
}

// WithIDGenerator replaces the key generator of new files.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		o.fileOpts = append(o.fileOpts, persister.WithIDGenerator(fn))
	}
}

// WithCloser registers a resource released by Close, such as an embedded
// store.
func WithCloser(c io.Closer) Option {
	return func(o *options) {
		o.closers = append(o.closers, c)
	}
}

// WithLoadContext sets the context of lazy loads triggered by entity
// getters. Defaults to context.Background.
func WithLoadContext(ctx context.Context) Option {
	return func(o *options) {
		o.loadContext = ctx
	}
}

// New creates an object manager over client.
func New(client storage.Client, opts ...Option) *ObjectManager {
	o := options{loadContext: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}

	om := &ObjectManager{
		client:          client,
		filePersister:   persister.NewFilePersister(client, o.fileOpts...),
		bucketPersister: persister.NewBucketPersister(client),
		closers:         o.closers,
		fileMap:         make(map[string]*managedFile),
		bucketIx:        make(map[string]*entity.Bucket),
	}
	om.loader = &lazyLoader{client: client, ctx: o.loadContext}
	om.files = repository.NewFileRepository(repository.NewFileDataRepository(client, o.dataOpts...), om)
	om.buckets = repository.NewBucketRepository(repository.NewBucketDataRepository(client), om)
	return om
}

// Files returns the file repository.
func (om *ObjectManager) Files() *repository.FileRepository {
	return om.files
}

// Buckets returns the bucket repository.
func (om *ObjectManager) Buckets() *repository.BucketRepository {
	return om.buckets
}

// FilePersister returns the persister used by Flush for files.
func (om *ObjectManager) FilePersister() *persister.FilePersister {
	return om.filePersister
}

// BucketPersister returns the persister used by Flush for buckets.
func (om *ObjectManager) BucketPersister() *persister.BucketPersister {
	return om.bucketPersister
}

func fileKey(bucket, id string) string {
	return bucket + "/" + id
}

// HydrateFile implements repository.FileHydrator. A file already tracked
// at the record's address is returned as is.
func (om *ObjectManager) HydrateFile(rec repository.FileRecord) (*entity.File, error) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if mf, ok := om.fileMap[fileKey(rec.Bucket, rec.Key)]; ok {
		return mf.file, nil
	}

	bucket, err := om.bucketLocked(rec.Bucket)
	if err != nil {
		return nil, err
	}

	f := &entity.File{}
	f.Hydrate(bucket, rec.Key, rec.Body, rec.Metadata)
	om.attachLocked(f)
	return f, nil
}

// HydrateBucket implements repository.BucketHydrator.
func (om *ObjectManager) HydrateBucket(rec repository.BucketRecord) (*entity.Bucket, error) {
	om.mu.Lock()
	defer om.mu.Unlock()
	return om.bucketLocked(rec.Name)
}

func (om *ObjectManager) bucketLocked(name string) (*entity.Bucket, error) {
	if b, ok := om.bucketIx[name]; ok {
		return b, nil
	}
	b, err := entity.NewBucket(name)
	if err != nil {
		return nil, err
	}
	om.bucketIx[name] = b
	return b, nil
}

// Reference returns a tracked file at bucket/id without reading it. Body
// and metadata are loaded on first access.
func (om *ObjectManager) Reference(bucket, id string) (*entity.File, error) {
	if id == "" {
		return nil, odm.InvalidArgument("file id is empty")
	}

	om.mu.Lock()
	defer om.mu.Unlock()

	if mf, ok := om.fileMap[fileKey(bucket, id)]; ok {
		return mf.file, nil
	}

	b, err := om.bucketLocked(bucket)
	if err != nil {
		return nil, err
	}

	f := &entity.File{}
	f.HydrateReference(b, id)
	om.attachLocked(f)
	return f, nil
}

// attachLocked registers f in the identity map with its identity guard,
// change tracker and lazy loader.
func (om *ObjectManager) attachLocked(f *entity.File) {
	mf := &managedFile{om: om, file: f}
	f.AddIdentifierChangedListener(mf)
	f.AddPropertyChangedListener(mf)
	f.AddLazyLoadListener(om.loader)
	om.fileMap[fileKey(f.BucketName(), f.ID())] = mf
}

// IdentifierChanged refuses bucket and id changes while the file is in
// the identity map. The first assignment and no-op assignments pass.
func (mf *managedFile) IdentifierChanged(f *entity.File, property, oldValue, newValue string) error {
	if oldValue == "" || oldValue == newValue {
		return nil
	}

	om := mf.om
	om.mu.Lock()
	defer om.mu.Unlock()

	if tracked, ok := om.fileMap[fileKey(f.BucketName(), f.ID())]; ok && tracked == mf {
		return odm.IdentifierLocked(f.BucketName(), f.ID())
	}
	return nil
}

// PropertyChanged records the change for the next Flush.
func (mf *managedFile) PropertyChanged(_ *entity.File, property string, oldValue, newValue any) {
	mf.om.mu.Lock()
	defer mf.om.mu.Unlock()
	mf.changes.Record(property, oldValue, newValue)
}

// Contains reports whether e is tracked. e is a *entity.File or
// *entity.Bucket.
func (om *ObjectManager) Contains(e any) bool {
	om.mu.Lock()
	defer om.mu.Unlock()

	switch v := e.(type) {
	case *entity.File:
		mf, ok := om.fileMap[fileKey(v.BucketName(), v.ID())]
		return ok && mf.file == v
	case *entity.Bucket:
		b, ok := om.bucketIx[v.Name()]
		return ok && b == v
	default:
		return false
	}
}

// Detach stops tracking e and drops its scheduled operations. A detached
// file may change bucket; persisting it afterwards creates a new object.
func (om *ObjectManager) Detach(e any) {
	om.mu.Lock()
	defer om.mu.Unlock()
	om.detachLocked(e)
}

func (om *ObjectManager) detachLocked(e any) {
	switch v := e.(type) {
	case *entity.File:
		key := fileKey(v.BucketName(), v.ID())
		if mf, ok := om.fileMap[key]; ok && mf.file == v {
			v.RemoveListener(mf)
			delete(om.fileMap, key)
		}
	case *entity.Bucket:
		if b, ok := om.bucketIx[v.Name()]; ok && b == v {
			delete(om.bucketIx, v.Name())
		}
	}
	om.inserts = slices.DeleteFunc(om.inserts, func(x any) bool { return x == e })
	om.removals = slices.DeleteFunc(om.removals, func(x any) bool { return x == e })
}

// Clear detaches every entity and drops all scheduled operations.
func (om *ObjectManager) Clear() {
	om.mu.Lock()
	defer om.mu.Unlock()

	for key, mf := range om.fileMap {
		mf.file.RemoveListener(mf)
		delete(om.fileMap, key)
	}
	clear(om.bucketIx)
	om.inserts = nil
	om.removals = nil
}

// Persist schedules e for creation at the next Flush. Tracked files are
// written by Flush when changed and need no Persist call.
func (om *ObjectManager) Persist(e any) error {
	switch e.(type) {
	case *entity.File, *entity.Bucket:
	default:
		return odm.InvalidArgument("cannot persist %T", e)
	}

	om.mu.Lock()
	defer om.mu.Unlock()

	if om.containsLocked(e) || slices.Contains(om.inserts, e) {
		return nil
	}
	om.removals = slices.DeleteFunc(om.removals, func(x any) bool { return x == e })
	om.inserts = append(om.inserts, e)
	return nil
}

// Remove schedules e for deletion at the next Flush. An entity scheduled
// for creation is simply dropped. A file that was never stored cannot be
// removed.
func (om *ObjectManager) Remove(e any) error {
	switch e.(type) {
	case *entity.File, *entity.Bucket:
	default:
		return odm.InvalidArgument("cannot remove %T", e)
	}

	om.mu.Lock()
	defer om.mu.Unlock()

	if i := slices.Index(om.inserts, e); i >= 0 {
		om.inserts = slices.Delete(om.inserts, i, i+1)
		return nil
	}
	if f, ok := e.(*entity.File); ok && f.ID() == "" && !om.containsLocked(f) {
		return odm.InvalidArgument("file has no identifier and is not managed, nothing to remove")
	}
	if !slices.Contains(om.removals, e) {
		om.removals = append(om.removals, e)
	}
	return nil
}

func (om *ObjectManager) containsLocked(e any) bool {
	switch v := e.(type) {
	case *entity.File:
		mf, ok := om.fileMap[fileKey(v.BucketName(), v.ID())]
		return ok && mf.file == v
	case *entity.Bucket:
		b, ok := om.bucketIx[v.Name()]
		return ok && b == v
	}
	return false
}

// Pending returns the number of scheduled inserts, updates and removals.
func (om *ObjectManager) Pending() int {
	om.mu.Lock()
	defer om.mu.Unlock()

	n := len(om.inserts) + len(om.removals)
	for _, mf := range om.fileMap {
		if !mf.changes.IsEmpty() {
			n++
		}
	}
	return n
}

// Flush writes inserts, then updates of tracked files, then removals. It
// stops at the first error; operations already written are not rolled
// back and are not retried by a later Flush.
func (om *ObjectManager) Flush(ctx context.Context) error {
	if err := om.flushInserts(ctx); err != nil {
		return err
	}
	if err := om.flushUpdates(ctx); err != nil {
		return err
	}
	return om.flushRemovals(ctx)
}

func (om *ObjectManager) flushInserts(ctx context.Context) error {
	for {
		om.mu.Lock()
		if len(om.inserts) == 0 {
			om.mu.Unlock()
			return nil
		}
		e := om.inserts[0]
		om.mu.Unlock()

		switch v := e.(type) {
		case *entity.File:
			if _, err := om.filePersister.Persist(ctx, v); err != nil {
				return err
			}
			logger.Debug("Flushed new file %s/%s", v.BucketName(), v.ID())

			om.mu.Lock()
			if _, err := om.bucketLocked(v.BucketName()); err != nil {
				om.mu.Unlock()
				return err
			}
			om.attachLocked(v)
			om.mu.Unlock()
		case *entity.Bucket:
			if _, err := om.bucketPersister.Persist(ctx, v); err != nil {
				return err
			}
			om.mu.Lock()
			om.bucketIx[v.Name()] = v
			om.mu.Unlock()
		}

		om.mu.Lock()
		om.inserts = slices.DeleteFunc(om.inserts, func(x any) bool { return x == e })
		om.mu.Unlock()
	}
}

func (om *ObjectManager) flushUpdates(ctx context.Context) error {
	om.mu.Lock()
	dirty := make([]*managedFile, 0)
	for _, mf := range om.fileMap {
		if !mf.changes.IsEmpty() {
			dirty = append(dirty, mf)
		}
	}
	om.mu.Unlock()

	// Deterministic write order.
	slices.SortFunc(dirty, func(a, b *managedFile) int {
		ka, kb := fileKey(a.file.BucketName(), a.file.ID()), fileKey(b.file.BucketName(), b.file.ID())
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
		return 0
	})

	for _, mf := range dirty {
		om.mu.Lock()
		changes := mf.changes
		om.mu.Unlock()

		if _, err := om.filePersister.Update(ctx, mf.file, changes); err != nil {
			return err
		}
		logger.Debug("Flushed update of %s/%s: %v", mf.file.BucketName(), mf.file.ID(), changes.Properties())

		om.mu.Lock()
		mf.changes = entity.ChangeSet{}
		om.mu.Unlock()
	}
	return nil
}

func (om *ObjectManager) flushRemovals(ctx context.Context) error {
	for {
		om.mu.Lock()
		if len(om.removals) == 0 {
			om.mu.Unlock()
			return nil
		}
		e := om.removals[0]
		om.mu.Unlock()

		switch v := e.(type) {
		case *entity.File:
			if err := om.filePersister.Remove(ctx, v); err != nil {
				return err
			}
		case *entity.Bucket:
			if err := om.bucketPersister.Remove(ctx, v); err != nil {
				return err
			}
		}

		om.mu.Lock()
		om.detachLocked(e)
		om.mu.Unlock()
	}
}

// Close clears the manager and releases registered resources. Unflushed
// operations are discarded and reported in the returned error.
func (om *ObjectManager) Close() error {
	var result *multierror.Error

	if n := om.Pending(); n > 0 {
		result = multierror.Append(result, fmt.Errorf("%d unflushed operations discarded", n))
	}
	om.Clear()

	for _, c := range om.closers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// lazyLoader reads the object of an unloaded file with one GetObject.
type lazyLoader struct {
	client storage.Client
	ctx    context.Context
}

func (l *lazyLoader) LoadFile(ctx context.Context, f *entity.File) error {
	if ctx == context.Background() {
		ctx = l.ctx
	}

	logger.Debug("Lazy load: bucket=%s key=%s", f.BucketName(), f.ID())
	obj, err := l.client.GetObject(ctx, f.BucketName(), f.ID())
	if err != nil {
		return fmt.Errorf("failed to load %s/%s: %w", f.BucketName(), f.ID(), err)
	}
	f.Populate(obj.Body, obj.Metadata)
	return nil
}
