package config

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/cephodm/internal/logger"
	"github.com/marmos91/cephodm/pkg/manager"
	"github.com/marmos91/cephodm/pkg/storage"
	storageBadger "github.com/marmos91/cephodm/pkg/storage/badger"
	"github.com/marmos91/cephodm/pkg/storage/memory"
	storageS3 "github.com/marmos91/cephodm/pkg/storage/s3"
	"github.com/mitchellh/mapstructure"
)

// S3StorageConfig is the decoded storage.s3 section.
type S3StorageConfig struct {
	Region             string `mapstructure:"region"`
	Endpoint           string `mapstructure:"endpoint"`
	AccessKeyID        string `mapstructure:"access_key_id"`
	SecretAccessKey    string `mapstructure:"secret_access_key"`
	LocationConstraint string `mapstructure:"location_constraint"`
	ForcePathStyle     bool   `mapstructure:"force_path_style"`
	MaxRetries         int    `mapstructure:"max_retries"`
}

// StorageResult is a storage client built from configuration.
type StorageResult struct {
	// Client is the backend wrapped in the configured rate limiter and
	// instrumentation
	Client storage.Client

	// Closer releases the backend, or nil when it holds no resources
	Closer io.Closer
}

// CreateStorageClient creates the storage backend selected by cfg.Storage
// and wraps it in the rate limiter and instrumentation layers. A nil
// storageMetrics disables instrumentation.
func CreateStorageClient(ctx context.Context, cfg *Config, storageMetrics storage.Metrics) (*StorageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		backend storage.Client
		closer  io.Closer
	)

	switch cfg.Storage.Type {
	case "memory":
		backend = memory.New()
	case "badger":
		c, err := createBadgerClient(ctx, cfg.Storage.Badger)
		if err != nil {
			return nil, err
		}
		backend, closer = c, c
	case "s3":
		c, err := createS3Client(ctx, cfg.Storage.S3)
		if err != nil {
			return nil, err
		}
		backend = c
	default:
		return nil, fmt.Errorf("unknown storage type: %q (supported: s3, memory, badger)", cfg.Storage.Type)
	}

	// Instrumentation sits outside the limiter so durations include the wait.
	client := storage.NewRateLimitedClient(backend, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	client = storage.NewInstrumentedClient(client, storageMetrics)

	logger.Info("Storage backend initialized: type=%s rate_limit=%d/s", cfg.Storage.Type, cfg.RateLimit.RequestsPerSecond)
	return &StorageResult{Client: client, Closer: closer}, nil
}

func createBadgerClient(ctx context.Context, options map[string]any) (*storageBadger.Client, error) {
	var badgerCfg storageBadger.Config
	if err := mapstructure.Decode(options, &badgerCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger storage config: %w", err)
	}

	client, err := storageBadger.New(ctx, badgerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger storage: %w", err)
	}
	return client, nil
}

// DecodeS3Config decodes the storage.s3 section.
func DecodeS3Config(options map[string]any) (S3StorageConfig, error) {
	var s3Cfg S3StorageConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &s3Cfg,
	})
	if err != nil {
		return s3Cfg, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return s3Cfg, fmt.Errorf("failed to decode S3 storage config: %w", err)
	}

	if s3Cfg.Region == "" {
		return s3Cfg, fmt.Errorf("S3 storage: region is required")
	}
	if s3Cfg.MaxRetries == 0 {
		s3Cfg.MaxRetries = 10
	}
	return s3Cfg, nil
}

func createS3Client(ctx context.Context, options map[string]any) (*storageS3.Client, error) {
	s3Cfg, err := DecodeS3Config(options)
	if err != nil {
		return nil, err
	}

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(s3Cfg.Region),
		awsConfig.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = s3Cfg.MaxRetries
			})
		}),
	}

	// Static credentials when given, otherwise the default chain.
	if s3Cfg.AccessKeyID != "" && s3Cfg.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3Cfg.AccessKeyID, s3Cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Ceph RGW, MinIO and Localstack need path-style addressing.
		if s3Cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3Cfg.Endpoint)
			o.UsePathStyle = true
		}
		if s3Cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	client, err := storageS3.New(storageS3.Config{
		Client:             api,
		LocationConstraint: s3Cfg.LocationConstraint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 storage: %w", err)
	}

	logger.Info("S3 storage initialized: region=%s endpoint=%s", s3Cfg.Region, s3Cfg.Endpoint)
	return client, nil
}

// NewObjectManager builds the storage client and an object manager over
// it. The manager's Close releases the backend. A nil metricsResult
// disables instrumentation.
func NewObjectManager(ctx context.Context, cfg *Config, metricsResult *MetricsResult) (*manager.ObjectManager, error) {
	if metricsResult == nil {
		metricsResult = &MetricsResult{}
	}

	store, err := CreateStorageClient(ctx, cfg, metricsResult.Storage)
	if err != nil {
		return nil, err
	}

	opts := []manager.Option{
		manager.WithMaxKeys(cfg.Query.MaxKeys),
		manager.WithFileRequiredProperties(cfg.Persister.FileRequiredProperties...),
		manager.WithLoadContext(ctx),
	}
	if store.Closer != nil {
		opts = append(opts, manager.WithCloser(store.Closer))
	}
	if metricsResult.Query != nil {
		opts = append(opts, manager.WithTruncatedListener(metricsResult.Query))
	}

	return manager.New(store.Client, opts...), nil
}
