package entity

import (
	"bytes"
	"context"
	"maps"
	"regexp"

	"github.com/marmos91/cephodm/pkg/odm"
)

// Property names used in change sets and listener events.
const (
	PropertyBucket   = "bucket"
	PropertyID       = "id"
	PropertyBin      = "bin"
	PropertyMetadata = "metadata"
)

// FilenameKey is the metadata key holding the file name.
const FilenameKey = "filename"

var metadataKeyPattern = regexp.MustCompile(`^[a-z0-9.-]+$`)

// ValidateMetadataKey reports whether name is a legal metadata key.
func ValidateMetadataKey(name string) error {
	if !metadataKeyPattern.MatchString(name) {
		return odm.InvalidArgument("invalid metadata key %q: only lowercase letters, digits, dots and dashes are allowed", name)
	}
	return nil
}

// File is an object addressed by bucket and id, with a binary body and a
// flat string metadata map. Body and metadata are loaded lazily when the
// file was obtained as a reference.
//
// A File is not safe for concurrent use.
type File struct {
	bucket   *Bucket
	id       string
	bin      Lazy[[]byte]
	metadata Lazy[map[string]string]

	propertyListeners   []PropertyChangedListener
	identifierListeners []IdentifierChangedListener
	lazyLoaders         []LazyLoadListener
	loading             bool
}

// NewFile returns an unsaved file with an empty body and metadata. The id
// is assigned when the file is persisted.
func NewFile() *File {
	return &File{
		bin:      Loaded[[]byte](nil),
		metadata: Loaded(map[string]string{}),
	}
}

// Hydrate sets every field from stored state without emitting events.
func (f *File) Hydrate(bucket *Bucket, id string, body []byte, metadata map[string]string) {
	f.bucket = bucket
	f.id = id
	f.bin = Loaded(body)
	f.metadata = Loaded(cloneMetadata(metadata))
}

// HydrateReference sets the identity of a stored file and leaves body and
// metadata unloaded.
func (f *File) HydrateReference(bucket *Bucket, id string) {
	f.bucket = bucket
	f.id = id
	f.bin = Lazy[[]byte]{}
	f.metadata = Lazy[map[string]string]{}
}

// Populate fills the fields that are still unloaded. Loaded fields keep
// their in-memory value.
func (f *File) Populate(body []byte, metadata map[string]string) {
	if !f.bin.IsLoaded() {
		f.bin = Loaded(body)
	}
	if !f.metadata.IsLoaded() {
		f.metadata = Loaded(cloneMetadata(metadata))
	}
}

// IsLoaded reports whether both body and metadata are loaded.
func (f *File) IsLoaded() bool {
	return f.bin.IsLoaded() && f.metadata.IsLoaded()
}

// Load runs the lazy-load listeners once if a field is unloaded.
func (f *File) Load(ctx context.Context) error {
	if f.IsLoaded() || f.loading {
		return nil
	}

	f.loading = true
	defer func() { f.loading = false }()

	for _, l := range f.lazyLoaders {
		if err := l.LoadFile(ctx, f); err != nil {
			return err
		}
		if f.IsLoaded() {
			return nil
		}
	}
	return nil
}

func (f *File) ID() string {
	return f.id
}

func (f *File) Bucket() *Bucket {
	return f.bucket
}

// BucketName returns the bucket name or "" when unset.
func (f *File) BucketName() string {
	return f.bucket.Name()
}

// SetBucket moves the file to another bucket. Identifier listeners may veto.
func (f *File) SetBucket(bucket *Bucket) error {
	if err := f.fireIdentifierChanged(PropertyBucket, f.bucket.Name(), bucket.Name()); err != nil {
		return err
	}
	f.bucket = bucket
	return nil
}

// AssignIdentifier sets the id. Identifier listeners may veto.
func (f *File) AssignIdentifier(id string) error {
	if err := f.fireIdentifierChanged(PropertyID, f.id, id); err != nil {
		return err
	}
	f.id = id
	return nil
}

// Bin returns the body, loading it first if needed.
func (f *File) Bin() ([]byte, error) {
	if err := f.Load(context.Background()); err != nil {
		return nil, err
	}
	b, _ := f.bin.Get()
	return b, nil
}

// SetBin replaces the body.
func (f *File) SetBin(bin []byte) {
	old, _ := f.bin.Get()
	f.bin = Loaded(bin)
	if !bytes.Equal(old, bin) {
		f.firePropertyChanged(PropertyBin, old, bin)
	}
}

// AllMetadata returns a copy of the metadata, loading it first if needed.
func (f *File) AllMetadata() (map[string]string, error) {
	if err := f.Load(context.Background()); err != nil {
		return nil, err
	}
	m, _ := f.metadata.Get()
	return cloneMetadata(m), nil
}

// SetAllMetadata replaces the metadata map.
func (f *File) SetAllMetadata(metadata map[string]string) error {
	for k := range metadata {
		if err := ValidateMetadataKey(k); err != nil {
			return err
		}
	}

	old, _ := f.metadata.Get()
	next := cloneMetadata(metadata)
	f.metadata = Loaded(next)
	if !maps.Equal(old, next) {
		f.firePropertyChanged(PropertyMetadata, cloneMetadata(old), cloneMetadata(next))
	}
	return nil
}

// Metadata returns the value of one metadata key, or "" when absent.
func (f *File) Metadata(name string) (string, error) {
	m, err := f.AllMetadata()
	if err != nil {
		return "", err
	}
	return m[name], nil
}

// SetMetadata sets one metadata key.
func (f *File) SetMetadata(name, value string) error {
	if err := ValidateMetadataKey(name); err != nil {
		return err
	}
	m, err := f.AllMetadata()
	if err != nil {
		return err
	}
	m[name] = value
	return f.SetAllMetadata(m)
}

// RemoveMetadata deletes one metadata key.
func (f *File) RemoveMetadata(name string) error {
	m, err := f.AllMetadata()
	if err != nil {
		return err
	}
	if _, ok := m[name]; !ok {
		return nil
	}
	delete(m, name)
	return f.SetAllMetadata(m)
}

// Filename returns the file name stored in metadata.
func (f *File) Filename() (string, error) {
	return f.Metadata(FilenameKey)
}

// SetFilename stores the file name in metadata.
func (f *File) SetFilename(name string) error {
	return f.SetMetadata(FilenameKey, name)
}

// PreparePersistChangeSet returns the full state of the file as a change
// set from empty values, loading lazy fields first.
func (f *File) PreparePersistChangeSet() (ChangeSet, error) {
	bin, err := f.Bin()
	if err != nil {
		return ChangeSet{}, err
	}
	meta, err := f.AllMetadata()
	if err != nil {
		return ChangeSet{}, err
	}

	var cs ChangeSet
	cs.Record(PropertyBucket, "", f.bucket.Name())
	cs.Record(PropertyBin, nil, bin)
	cs.Record(PropertyMetadata, nil, meta)
	return cs, nil
}

// PrepareUpdateChangeSet keeps only the properties an update may write.
func (f *File) PrepareUpdateChangeSet(cs ChangeSet) ChangeSet {
	return cs.Filter(PropertyBin, PropertyMetadata)
}

// AddPropertyChangedListener registers l for bin and metadata changes.
func (f *File) AddPropertyChangedListener(l PropertyChangedListener) {
	f.propertyListeners = append(f.propertyListeners, l)
}

// AddIdentifierChangedListener registers l for bucket and id changes.
func (f *File) AddIdentifierChangedListener(l IdentifierChangedListener) {
	f.identifierListeners = append(f.identifierListeners, l)
}

// AddLazyLoadListener registers l to populate unloaded fields.
func (f *File) AddLazyLoadListener(l LazyLoadListener) {
	f.lazyLoaders = append(f.lazyLoaders, l)
}

// RemoveListener unregisters l from every listener list it is in. l must
// be of a comparable type such as a pointer.
func (f *File) RemoveListener(l any) {
	f.propertyListeners = removeListener(f.propertyListeners, l)
	f.identifierListeners = removeListener(f.identifierListeners, l)
	f.lazyLoaders = removeListener(f.lazyLoaders, l)
}

func removeListener[L comparable](list []L, l any) []L {
	out := list[:0]
	for _, x := range list {
		if any(x) != l {
			out = append(out, x)
		}
	}
	return out
}

func (f *File) firePropertyChanged(property string, oldValue, newValue any) {
	for _, l := range f.propertyListeners {
		l.PropertyChanged(f, property, oldValue, newValue)
	}
}

func (f *File) fireIdentifierChanged(property, oldValue, newValue string) error {
	for _, l := range f.identifierListeners {
		if err := l.IdentifierChanged(f, property, oldValue, newValue); err != nil {
			return err
		}
	}
	return nil
}

func cloneMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	maps.Copy(out, m)
	return out
}
