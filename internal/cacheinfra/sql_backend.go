package cacheinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/uptrace/bun"
)

// sqlEntry is a row of the cache table. ExpiresAt holds Unix nanoseconds,
// zero for entries written with PutForever.
type sqlEntry struct {
	bun.BaseModel `bun:"table:query_cache_entries"`

	Key       string `bun:"cache_key,pk"`
	Value     []byte `bun:"value,notnull"`
	ExpiresAt int64  `bun:"expires_at,notnull"`
}

// SQLBackend stores entries in a database table through bun. It has no tag
// support: tags are ignored on read and write, and DeleteByTags reports false.
type SQLBackend struct {
	db     bun.IDB
	logger log.Interface
	now    func() time.Time
}

// NewSQLBackend wraps db. Call CreateSchema once before use.
func NewSQLBackend(db bun.IDB, opts ...Option) *SQLBackend {
	o := applyOptions(opts)
	return &SQLBackend{
		db:     db,
		logger: o.logger.WithField("backend", "sql"),
		now:    o.now,
	}
}

// CreateSchema creates the cache table if it does not exist.
func (b *SQLBackend) CreateSchema(ctx context.Context) error {
	_, err := b.db.NewCreateTable().
		Model((*sqlEntry)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Get returns the stored value unless it has expired. Expired rows are removed.
func (b *SQLBackend) Get(ctx context.Context, key string, _ []string) ([]byte, bool, error) {
	var entry sqlEntry
	err := b.db.NewSelect().
		Model(&entry).
		Where("cache_key = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if entry.ExpiresAt != 0 && b.now().UnixNano() >= entry.ExpiresAt {
		if err := b.forget(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	return entry.Value, true, nil
}

// Put upserts value with ttl. A non-positive ttl deletes the row instead.
func (b *SQLBackend) Put(ctx context.Context, key string, value []byte, ttl time.Duration, _ []string) error {
	if ttl <= 0 {
		return b.forget(ctx, key)
	}
	return b.upsert(ctx, &sqlEntry{
		Key:       key,
		Value:     value,
		ExpiresAt: b.now().Add(ttl).UnixNano(),
	})
}

// PutForever upserts value with no expiry.
func (b *SQLBackend) PutForever(ctx context.Context, key string, value []byte, _ []string) error {
	return b.upsert(ctx, &sqlEntry{Key: key, Value: value})
}

// DeleteByTags is not supported by the SQL store.
func (b *SQLBackend) DeleteByTags(_ context.Context, tags []string) (bool, error) {
	b.logger.WithField("tags", tags).Warn("tag flush not supported")
	return false, nil
}

// Prune deletes expired rows and returns how many were removed.
func (b *SQLBackend) Prune(ctx context.Context) (int64, error) {
	res, err := b.db.NewDelete().
		Model((*sqlEntry)(nil)).
		Where("expires_at > 0").
		Where("expires_at <= ?", b.now().UnixNano()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (b *SQLBackend) upsert(ctx context.Context, entry *sqlEntry) error {
	_, err := b.db.NewInsert().
		Model(entry).
		On("CONFLICT (cache_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	return err
}

func (b *SQLBackend) forget(ctx context.Context, key string) error {
	_, err := b.db.NewDelete().
		Model((*sqlEntry)(nil)).
		Where("cache_key = ?", key).
		Exec(ctx)
	return err
}
