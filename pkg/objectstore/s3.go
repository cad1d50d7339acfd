package objectstore

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"

	"github.com/wallpaperhq/ingest/pkg/errtypes"
)

// S3Store is a Port backed by any S3-compatible endpoint via minio-go.
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store wraps an already-constructed minio client. The bucket is
// assumed to exist; neither this type nor the composition root creates it.
func NewS3Store(client *minio.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// Bucket implements Port.
func (s *S3Store) Bucket() string { return s.bucket }

// Put implements Port.
func (s *S3Store) Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, data, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// Get implements Port.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateErr(key, err)
	}
	// minio-go's GetObject doesn't error until the first read/stat, so
	// force that here to fail fast on a missing key.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, translateErr(key, err)
	}
	return obj, nil
}

// Exists implements Port.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete implements Port.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return err
	}
	return nil
}

// List implements Port.
func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size})
	}
	return out, nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}

func translateErr(key string, err error) error {
	if isNoSuchKey(err) {
		return errtypes.NotFound(key)
	}
	return err
}
