// Package badger implements storage.Client on BadgerDB, an embedded
// key-value store. It gives single-node deployments and integration tests a
// persistent backend with the same listing semantics as S3: buckets and
// objects come back in ascending name order and markers are the last key of
// the previous page.
package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/cephodm/internal/logger"
	"github.com/marmos91/cephodm/pkg/storage"
)

// Config configures the Badger client.
type Config struct {
	// DBPath is the database directory. Ignored when InMemory is set.
	DBPath string `mapstructure:"path"`

	// InMemory keeps the whole database in memory
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is the block cache size (default: 64MB)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is the index cache size (default: 32MB)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`
}

// Client is a storage.Client backed by BadgerDB. Safe for concurrent use;
// Badger transactions provide isolation.
type Client struct {
	db *badger.DB
}

// New opens the database described by cfg.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !cfg.InMemory && cfg.DBPath == "" {
		return nil, fmt.Errorf("badger storage: path is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.DBPath)
	}

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := cfg.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}

	opts = opts.WithLoggingLevel(badger.WARNING).
		WithCompression(options.Snappy).
		WithBlockCacheSize(blockCacheMB << 20).
		WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	logger.Debug("Badger storage opened: path=%s in_memory=%t", cfg.DBPath, cfg.InMemory)
	return &Client{db: db}, nil
}

// Close releases the database.
func (c *Client) Close() error {
	return c.db.Close()
}

func bucketExists(txn *badger.Txn, name string) (bool, error) {
	_, err := txn.Get(keyBucket(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) ListBuckets(ctx context.Context) ([]storage.BucketInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []storage.BucketInfo
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixBucket)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, storage.BucketInfo{Name: bucketNameFrom(it.Item().KeyCopy(nil))})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	return out, nil
}

func (c *Client) ListObjects(ctx context.Context, bucket string, opts storage.ListOptions) (*storage.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxKeys := storage.EffectiveMaxKeys(opts.MaxKeys)
	res := &storage.ListResult{}

	err := c.db.View(func(txn *badger.Txn) error {
		ok, err := bucketExists(txn, bucket)
		if err != nil {
			return err
		}
		if !ok {
			return storage.NoSuchBucket(bucket, nil)
		}

		prefix := keyObjectPrefix(bucket)
		itOpts := badger.DefaultIteratorOptions
		itOpts.Prefix = prefix

		it := txn.NewIterator(itOpts)
		defer it.Close()

		start := prefix
		if opts.Marker != "" {
			start = keyObject(bucket, opts.Marker)
		}

		for it.Seek(start); it.Valid(); it.Next() {
			item := it.Item()
			key := objectKeyFrom(bucket, item.KeyCopy(nil))
			if key <= opts.Marker {
				continue
			}

			if len(res.Objects) == maxKeys {
				res.IsTruncated = true
				res.NextMarker = res.Objects[len(res.Objects)-1].Key
				break
			}

			var size int64
			err := item.Value(func(val []byte) error {
				o, err := decodeObject(val)
				if err != nil {
					return err
				}
				size = int64(len(o.Body))
				return nil
			})
			if err != nil {
				return err
			}
			res.Objects = append(res.Objects, storage.ObjectSummary{Key: key, Size: size})
		}
		return nil
	})
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to list objects in %s: %w", bucket, err)
	}
	return res, nil
}

func (c *Client) GetObject(ctx context.Context, bucket, key string) (*storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *storage.Object
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyObject(bucket, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			ok, berr := bucketExists(txn, bucket)
			if berr != nil {
				return berr
			}
			if !ok {
				return storage.NoSuchBucket(bucket, nil)
			}
			return storage.NoSuchKey(bucket, key, nil)
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			o, err := decodeObject(val)
			if err != nil {
				return err
			}
			out = &storage.Object{Body: o.Body, Metadata: storage.CloneMetadata(o.Metadata)}
			return nil
		})
	})
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	return out, nil
}

func (c *Client) PutObject(ctx context.Context, bucket, key string, body []byte, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeObject(objectData{Body: body, Metadata: metadata})
	if err != nil {
		return err
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		ok, err := bucketExists(txn, bucket)
		if err != nil {
			return err
		}
		if !ok {
			return storage.NoSuchBucket(bucket, nil)
		}
		return txn.Set(keyObject(bucket, key), data)
	})
	if err != nil {
		if storage.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("failed to put object %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (c *Client) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		ok, err := bucketExists(txn, bucket)
		if err != nil {
			return err
		}
		if !ok {
			return storage.NoSuchBucket(bucket, nil)
		}
		return txn.Delete(keyObject(bucket, key))
	})
	if err != nil {
		if storage.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("failed to delete object %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (c *Client) CreateBucket(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeBucket(bucketData{Name: name, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		ok, err := bucketExists(txn, name)
		if err != nil {
			return err
		}
		if ok {
			return storage.ErrBucketAlreadyExists
		}
		return txn.Set(keyBucket(name), data)
	})
	if err != nil {
		if errors.Is(err, storage.ErrBucketAlreadyExists) {
			return err
		}
		return fmt.Errorf("failed to create bucket %s: %w", name, err)
	}
	return nil
}

func (c *Client) DeleteBucket(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		ok, err := bucketExists(txn, name)
		if err != nil {
			return err
		}
		if !ok {
			return storage.NoSuchBucket(name, nil)
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyObjectPrefix(name)
		it := txn.NewIterator(opts)
		it.Rewind()
		nonEmpty := it.Valid()
		it.Close()

		if nonEmpty {
			return storage.ErrBucketNotEmpty
		}
		return txn.Delete(keyBucket(name))
	})
	if err != nil {
		if storage.IsNotFound(err) || errors.Is(err, storage.ErrBucketNotEmpty) {
			return err
		}
		return fmt.Errorf("failed to delete bucket %s: %w", name, err)
	}
	return nil
}

var _ storage.Client = (*Client)(nil)
