package kv

import (
	"context"
	"database/sql"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/bryanwahyu/threat-analyzer/internal/config"
	"github.com/bryanwahyu/threat-analyzer/internal/domain/storage"
	mysqlp "github.com/bryanwahyu/threat-analyzer/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/threat-analyzer/internal/infra/db/postgres"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the store named by cfg.Driver. The closer releases any
// connection the store holds.
func Open(ctx context.Context, cfg config.Storage) (storage.Store, io.Closer, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return NewMemory(), nopCloser{}, nil
	case "", "file":
		f, err := NewFile(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return f, nopCloser{}, nil
	case "keyring":
		return NewKeyring(cfg.Service), nopCloser{}, nil
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, err
		}
		return openSQL(ctx, db, MySQL)
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		return openSQL(ctx, db, Postgres)
	case "minio":
		m, err := NewMinio(ctx, MinioOptions{
			Endpoint:  cfg.Minio.Endpoint,
			Region:    cfg.Minio.Region,
			Bucket:    cfg.Minio.BucketName,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
			Prefix:    cfg.Minio.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return m, nopCloser{}, nil
	default:
		return nil, nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func openSQL(ctx context.Context, db *sql.DB, d Dialect) (storage.Store, io.Closer, error) {
	s := NewSQL(db, d)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return s, db, nil
}
