package kv

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bryanwahyu/threat-analyzer/internal/domain/storage"
)

// Dialect selects placeholder style and upsert syntax.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// SQL stores entries in the kv_entries table.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQL(db *sql.DB, dialect Dialect) *SQL {
	return &SQL{db: db, dialect: dialect, now: time.Now}
}

// Migrate creates kv_entries if needed.
func (s *SQL) Migrate(ctx context.Context) error {
	q := `
CREATE TABLE IF NOT EXISTS kv_entries (
 k VARCHAR(191) NOT NULL PRIMARY KEY,
 v LONGTEXT NOT NULL,
 updated_at DATETIME NOT NULL
)`
	if s.dialect == Postgres {
		q = `
CREATE TABLE IF NOT EXISTS kv_entries (
 k VARCHAR(191) NOT NULL PRIMARY KEY,
 v TEXT NOT NULL,
 updated_at TIMESTAMPTZ NOT NULL
)`
	}
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return errors.Wrap(err, "migrate kv_entries")
	}
	return nil
}

// bind rewrites ? placeholders to $n for postgres.
func (s *SQL) bind(q string) string {
	if s.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	var v string
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT v FROM kv_entries WHERE k = ?`), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "select %s", key)
	}
	return []byte(v), nil
}

func (s *SQL) Set(ctx context.Context, key string, value []byte) error {
	q := `
INSERT INTO kv_entries (k, v, updated_at)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE
 v = VALUES(v),
 updated_at = VALUES(updated_at)`
	if s.dialect == Postgres {
		q = `
INSERT INTO kv_entries (k, v, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (k) DO UPDATE SET
 v = EXCLUDED.v,
 updated_at = EXCLUDED.updated_at`
	}
	if _, err := s.db.ExecContext(ctx, s.bind(q), key, string(value), s.now().UTC()); err != nil {
		return errors.Wrapf(err, "upsert %s", key)
	}
	return nil
}

func (s *SQL) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM kv_entries WHERE k = ?`), key); err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}
	return nil
}
