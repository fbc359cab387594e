package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/hupe1980/metastore"
	"github.com/hupe1980/metastore/backend"
	"github.com/hupe1980/metastore/backend/objstore"
	"github.com/hupe1980/metastore/backend/sqlstore"
	"github.com/hupe1980/metastore/blobstore"
	"github.com/hupe1980/metastore/blobstore/gcs"
	miniostore "github.com/hupe1980/metastore/blobstore/minio"
	"github.com/hupe1980/metastore/blobstore/s3"
	"github.com/hupe1980/metastore/gc"
	"github.com/hupe1980/metastore/internal/manifest"
	"github.com/hupe1980/metastore/internal/occ"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// OpenStore creates the configured object store. Stores holding network
// clients may implement io.Closer.
func (c *Config) OpenStore(ctx context.Context) (blobstore.ObjectStore, error) {
	sc := c.Store
	switch sc.Type {
	case StoreMemory:
		return blobstore.NewMemoryStore(), nil
	case StoreLocal:
		if err := os.MkdirAll(sc.Root, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store root: %w", err)
		}
		return blobstore.NewLocalStore(sc.Root), nil
	case StoreS3:
		return s3.New(ctx, sc.Bucket, c.s3Options()...)
	case StoreS3DDB:
		content, err := s3.New(ctx, sc.Bucket, c.s3Options()...)
		if err != nil {
			return nil, err
		}
		var loadOpts []func(*awsconfig.LoadOptions) error
		if sc.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(sc.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		return s3.NewDDBCommitStore(content, dynamodb.NewFromConfig(awsCfg), sc.DDBTable), nil
	case StoreMinIO:
		client, err := minio.New(sc.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(sc.AccessKey, sc.SecretKey, ""),
			Secure: sc.UseSSL,
			Region: sc.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		return miniostore.NewStore(client, sc.Bucket, sc.Prefix), nil
	case StoreGCS:
		return gcs.New(ctx, sc.Bucket, sc.Prefix, sc.CredentialsFile)
	}
	return nil, fmt.Errorf("unknown store type %q", sc.Type)
}

func (c *Config) s3Options() []s3.Option {
	sc := c.Store
	opts := []s3.Option{s3.WithPrefix(sc.Prefix)}
	if sc.Region != "" {
		opts = append(opts, s3.WithRegion(sc.Region))
	}
	if sc.Endpoint != "" {
		opts = append(opts, s3.WithEndpoint(sc.Endpoint))
	}
	if sc.PathStyle {
		opts = append(opts, s3.WithPathStyle())
	}
	return opts
}

// OpenBackend creates the configured manifest backend. The file backend
// keeps its manifests in store.
func (c *Config) OpenBackend(ctx context.Context, store blobstore.ObjectStore) (backend.Backend, error) {
	switch c.Backend.Type {
	case BackendSQLite:
		return sqlstore.Open(ctx, c.Backend.SQLitePath)
	case BackendFile:
		compression, err := manifest.ParseCompression(c.Backend.Compression)
		if err != nil {
			return nil, err
		}
		opts := []objstore.Option{
			objstore.WithPrefix(c.Backend.Prefix),
			objstore.WithCompression(compression),
		}
		if c.Backend.CacheSize > 0 {
			opts = append(opts, objstore.WithCacheSize(c.Backend.CacheSize))
		}
		return objstore.New(store, opts...)
	}
	return nil, fmt.Errorf("unknown backend type %q", c.Backend.Type)
}

// RetryPolicy returns the configured retry policy.
func (c *Config) RetryPolicy() occ.RetryPolicy {
	return occ.RetryPolicy{
		MaxAttempts:    c.Retry.MaxAttempts,
		InitialBackoff: c.Retry.InitialBackoff,
		MaxBackoff:     c.Retry.MaxBackoff,
		Multiplier:     c.Retry.Multiplier,
		Jitter:         c.Retry.Jitter,
	}
}

// Logger returns a logger writing to stderr at the configured level and format.
func (c *Config) Logger() *metastore.Logger {
	level := parseLevel(c.Server.LogLevel)
	if strings.EqualFold(c.Server.LogFormat, "json") {
		return metastore.NewJSONLogger(level)
	}
	return metastore.NewTextLogger(level)
}

// MetastoreOptions returns the metastore options derived from c.
func (c *Config) MetastoreOptions() []metastore.Option {
	return []metastore.Option{
		metastore.WithRetryPolicy(c.RetryPolicy()),
		metastore.WithOperationTimeout(c.OperationTimeout),
	}
}

// GCOptions returns the garbage collector options derived from c.
func (c *Config) GCOptions() func(o *gc.Options) {
	return func(o *gc.Options) {
		o.Interval = c.GC.Interval
		o.GracePeriod = c.GC.GracePeriod
		o.StagedGracePeriod = c.GC.StagedGracePeriod
		o.Concurrency = c.GC.Concurrency
		o.DeletesPerSecond = c.GC.DeletesPerSecond
		o.DryRun = c.GC.DryRun
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
