package blob

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/catalogd/registry/internal/logger"
	"github.com/catalogd/registry/internal/tracing"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// objectAPI is the part of *minio.Client used by MinioStore
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// MinioConfig holds MinIO client configuration
type MinioConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	Region       string
	BucketPrefix string
}

// MinioStore keeps blobs in an S3 compatible object store. Each container
// maps to one bucket named BucketPrefix+container.
type MinioStore struct {
	client  objectAPI
	region  string
	prefix  string
	buckets sync.Map
	log     zerolog.Logger
}

var _ Store = (*MinioStore)(nil)

// NewMinioStore creates a MinIO backed store
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return newMinioStore(client, cfg), nil
}

func newMinioStore(client objectAPI, cfg MinioConfig) *MinioStore {
	return &MinioStore{
		client: client,
		region: cfg.Region,
		prefix: cfg.BucketPrefix,
		log:    logger.WithComponent("blob"),
	}
}

// Bucket returns the bucket name backing container
func (m *MinioStore) Bucket(container string) string {
	return m.prefix + container
}

// ensureBucket creates the bucket if it doesn't exist
func (m *MinioStore) ensureBucket(ctx context.Context, bucket string) error {
	if _, ok := m.buckets.Load(bucket); ok {
		return nil
	}

	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
			// lost a race against another writer
			if code := minio.ToErrorResponse(err).Code; code != "BucketAlreadyOwnedByYou" && code != "BucketAlreadyExists" {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		m.log.Info().Str("bucket", bucket).Msg("Created bucket")
	}

	m.buckets.Store(bucket, struct{}{})
	return nil
}

func (m *MinioStore) Put(ctx context.Context, container, key string, r io.Reader, size int64, contentType string) error {
	bucket := m.Bucket(container)
	ctx, span := startSpan(ctx, "put", bucket, key)
	defer span.End()

	if err := m.ensureBucket(ctx, bucket); err != nil {
		span.RecordError(err)
		return err
	}

	info, err := m.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upload blob %s/%s: %w", bucket, key, err)
	}
	span.SetAttributes(attribute.Int64(tracing.AttrBytes, info.Size))
	return nil
}

func (m *MinioStore) Get(ctx context.Context, container, key string) (*Object, error) {
	bucket := m.Bucket(container)
	ctx, span := startSpan(ctx, "get", bucket, key)
	defer span.End()

	// GetObject is lazy, stat first so a missing key surfaces here
	info, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, NotFoundError{Container: container, Key: key}
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to stat blob %s/%s: %w", bucket, key, err)
	}

	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get blob %s/%s: %w", bucket, key, err)
	}

	return &Object{
		Body:        obj,
		ContentType: info.ContentType,
		Size:        info.Size,
	}, nil
}

func (m *MinioStore) Delete(ctx context.Context, container, key string) error {
	bucket := m.Bucket(container)
	ctx, span := startSpan(ctx, "delete", bucket, key)
	defer span.End()

	if err := m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		span.RecordError(err)
		return fmt.Errorf("failed to delete blob %s/%s: %w", bucket, key, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}

func startSpan(ctx context.Context, op, bucket, key string) (context.Context, trace.Span) {
	return otel.Tracer("registry.blob").Start(ctx, "blob."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(tracing.AttrBucket, bucket),
			attribute.String(tracing.AttrObjectKey, key),
		),
	)
}
