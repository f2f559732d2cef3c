package filestore

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/trezcool/proofmate/core"
)

// minioStore keeps files in an S3-compatible bucket (MinIO, AWS S3, ...).
type minioStore struct {
	client *minio.Client
	bucket string
}

var _ core.FileStore = (*minioStore)(nil)

func newMinioClient(conf *core.Config) (*minio.Client, error) {
	if conf.Files.Endpoint == "" {
		return nil, errors.New("minio endpoint is required")
	}
	if conf.Files.AccessKey == "" || conf.Files.SecretKey == "" {
		return nil, errors.New("minio credentials are required")
	}
	if conf.Files.Bucket == "" {
		return nil, errors.New("minio bucket is required")
	}
	cli, err := minio.New(conf.Files.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.Files.AccessKey, conf.Files.SecretKey, ""),
		Secure: conf.Files.UseSSL,
		Region: conf.Files.Region,
	})
	return cli, errors.Wrap(err, "creating minio client")
}

// NewMinio connects to the bucket, creating it when missing.
func NewMinio(conf *core.Config) (core.FileStore, error) {
	cli, err := newMinioClient(conf)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := cli.BucketExists(ctx, conf.Files.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "checking bucket existence")
	}
	if !exists {
		if err = cli.MakeBucket(ctx, conf.Files.Bucket, minio.MakeBucketOptions{Region: conf.Files.Region}); err != nil {
			return nil, errors.Wrap(err, "creating bucket")
		}
	}
	return &minioStore{client: cli, bucket: conf.Files.Bucket}, nil
}

func (s *minioStore) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return errors.Wrapf(err, "uploading %s", key)
}

func (s *minioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "getting %s", key)
	}
	// GetObject is lazy: Stat surfaces a missing key
	if _, err = obj.Stat(); err != nil {
		_ = obj.Close()
		if isNotFound(err) {
			return nil, core.ErrFileNotFound
		}
		return nil, errors.Wrapf(err, "getting %s", key)
	}
	return obj, nil
}

func (s *minioStore) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	return errors.Wrapf(err, "deleting %s", key)
}

func (s *minioStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", errors.Wrapf(err, "presigning %s", key)
	}
	return u.String(), nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
