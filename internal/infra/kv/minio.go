package kv

import (
	"bytes"
	"context"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/bryanwahyu/threat-analyzer/internal/domain/storage"
)

type MinioOptions struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// Minio stores one JSON object per key in a bucket.
type Minio struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinio connects and makes sure the bucket exists.
func NewMinio(ctx context.Context, o MinioOptions) (*Minio, error) {
	cli, err := minio.New(o.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(o.AccessKey, o.SecretKey, ""),
		Secure: o.UseSSL,
		Region: o.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "minio client")
	}

	exists, err := cli.BucketExists(ctx, o.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "check bucket %s", o.Bucket)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, o.Bucket, minio.MakeBucketOptions{Region: o.Region}); err != nil {
			return nil, errors.Wrapf(err, "create bucket %s", o.Bucket)
		}
	}
	return &Minio{client: cli, bucket: o.Bucket, prefix: o.Prefix}, nil
}

func (m *Minio) object(key string) string {
	return path.Join(m.prefix, key+".json")
}

func (m *Minio) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, m.object(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", key)
	}
	defer obj.Close()

	b, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrapf(err, "read %s", key)
	}
	return b, nil
}

func (m *Minio) Set(ctx context.Context, key string, value []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, m.object(key), bytes.NewReader(value), int64(len(value)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return errors.Wrapf(err, "put %s", key)
	}
	return nil
}

func (m *Minio) Remove(ctx context.Context, key string) error {
	err := m.client.RemoveObject(ctx, m.bucket, m.object(key), minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return errors.Wrapf(err, "remove %s", key)
	}
	return nil
}
