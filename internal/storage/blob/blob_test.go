package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionKey(t *testing.T) {
	assert.Equal(t, "g1/definitions/d1/versions/3", VersionKey("g1", "definitions", "d1", "3"))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "groups", "missing")
	require.ErrorAs(t, err, &NotFoundError{})

	require.NoError(t, s.Put(ctx, "groups", "a/b", strings.NewReader("<xml/>"), -1, "application/xml"))
	assert.Equal(t, 1, s.Len())

	obj, err := s.Get(ctx, "groups", "a/b")
	require.NoError(t, err)
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "<xml/>", string(data))
	assert.Equal(t, "application/xml", obj.ContentType)
	assert.Equal(t, int64(6), obj.Size)

	// containers are separate namespaces
	_, err = s.Get(ctx, "schemagroups", "a/b")
	require.ErrorAs(t, err, &NotFoundError{})

	require.NoError(t, s.Delete(ctx, "groups", "a/b"))
	require.NoError(t, s.Delete(ctx, "groups", "a/b"))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemoryStore()

	assert.ErrorIs(t, s.Put(ctx, "c", "k", strings.NewReader("x"), 1, ""), context.Canceled)
	_, err := s.Get(ctx, "c", "k")
	assert.ErrorIs(t, err, context.Canceled)
}

type mockObjectAPI struct {
	BucketExistsFunc func(ctx context.Context, bucketName string) (bool, error)
	MakeBucketFunc   func(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObjectFunc    func(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObjectFunc   func(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObjectFunc    func(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	RemoveObjectFunc func(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

func (m *mockObjectAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return m.BucketExistsFunc(ctx, bucketName)
}

func (m *mockObjectAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.MakeBucketFunc(ctx, bucketName, opts)
}

func (m *mockObjectAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return m.PutObjectFunc(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (m *mockObjectAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return m.StatObjectFunc(ctx, bucketName, objectName, opts)
}

func (m *mockObjectAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error) {
	return m.GetObjectFunc(ctx, bucketName, objectName, opts)
}

func (m *mockObjectAPI) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return m.RemoveObjectFunc(ctx, bucketName, objectName, opts)
}

func TestMinioStore_PutCreatesBucketOnce(t *testing.T) {
	var made []string
	var existsCalls int
	var uploaded minio.PutObjectOptions
	api := &mockObjectAPI{
		BucketExistsFunc: func(ctx context.Context, bucketName string) (bool, error) {
			existsCalls++
			return false, nil
		},
		MakeBucketFunc: func(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
			made = append(made, bucketName)
			return nil
		},
		PutObjectFunc: func(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
			uploaded = opts
			return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, nil
		},
	}
	s := newMinioStore(api, MinioConfig{BucketPrefix: "registry-"})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "schemagroups", "k1", strings.NewReader("a"), 1, "text/plain"))
	require.NoError(t, s.Put(ctx, "schemagroups", "k2", strings.NewReader("b"), 1, "text/plain"))

	assert.Equal(t, []string{"registry-schemagroups"}, made)
	assert.Equal(t, 1, existsCalls)
	assert.Equal(t, "text/plain", uploaded.ContentType)
}

func TestMinioStore_PutBucketRace(t *testing.T) {
	api := &mockObjectAPI{
		BucketExistsFunc: func(ctx context.Context, bucketName string) (bool, error) { return false, nil },
		MakeBucketFunc: func(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
			return minio.ErrorResponse{Code: "BucketAlreadyOwnedByYou"}
		},
		PutObjectFunc: func(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
			return minio.UploadInfo{}, nil
		},
	}
	s := newMinioStore(api, MinioConfig{})

	require.NoError(t, s.Put(context.Background(), "groups", "k", strings.NewReader("a"), 1, ""))
}

func TestMinioStore_PutFailure(t *testing.T) {
	api := &mockObjectAPI{
		BucketExistsFunc: func(ctx context.Context, bucketName string) (bool, error) { return true, nil },
		PutObjectFunc: func(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
			return minio.UploadInfo{}, errors.New("connection reset")
		},
	}
	s := newMinioStore(api, MinioConfig{})

	err := s.Put(context.Background(), "groups", "k", strings.NewReader("a"), 1, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestMinioStore_GetNotFound(t *testing.T) {
	api := &mockObjectAPI{
		StatObjectFunc: func(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
			return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"}
		},
	}
	s := newMinioStore(api, MinioConfig{BucketPrefix: "r-"})

	_, err := s.Get(context.Background(), "groups", "k")
	var nf NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "groups", nf.Container)
	assert.Equal(t, "k", nf.Key)
}

func TestMinioStore_GetStatError(t *testing.T) {
	api := &mockObjectAPI{
		StatObjectFunc: func(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
			return minio.ObjectInfo{}, minio.ErrorResponse{Code: "AccessDenied"}
		},
	}
	s := newMinioStore(api, MinioConfig{})

	_, err := s.Get(context.Background(), "groups", "k")
	require.Error(t, err)
	assert.False(t, errors.As(err, &NotFoundError{}))
}

func TestMinioStore_DeleteMissingIsNoop(t *testing.T) {
	api := &mockObjectAPI{
		RemoveObjectFunc: func(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
			return minio.ErrorResponse{Code: "NoSuchBucket"}
		},
	}
	s := newMinioStore(api, MinioConfig{})

	assert.NoError(t, s.Delete(context.Background(), "groups", "k"))
}

func TestMinioStore_Bucket(t *testing.T) {
	s := newMinioStore(&mockObjectAPI{}, MinioConfig{BucketPrefix: "registry-"})
	assert.Equal(t, "registry-endpoints", s.Bucket("endpoints"))
}
