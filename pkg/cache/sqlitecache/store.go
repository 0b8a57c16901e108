// Package sqlitecache is a TagAware cache persisted in SQLite, so cached query results
// and tag versions survive process restarts and can be shared by processes using the
// same database file.
package sqlitecache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/plaenen/shopcore/pkg/cache"
	"github.com/plaenen/shopcore/pkg/sqlite/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements cache.TagAware on a *sql.DB.
type Store struct {
	db     *sql.DB
	codec  cache.Codec
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger that reports discarded and unwritable entries. Default is
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New migrates the cache tables in db and returns a store encoding values with codec.
func New(ctx context.Context, db *sql.DB, codec cache.Codec, opts ...Option) (*Store, error) {
	if err := migrate.Run(ctx, db, "cache_migrations", migrationsFS, "migrations"); err != nil {
		return nil, err
	}

	s := &Store{db: db, codec: codec, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get implements cache.TagAware. Entries that no longer decode are recomputed and
// overwritten. A computed value is returned even when storing it fails.
func (s *Store) Get(ctx context.Context, key string, ttl time.Duration, tags []string, compute cache.Compute) (any, error) {
	value, hit, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if hit {
		return value, nil
	}

	snapshot, err := s.versions(ctx, tags)
	if err != nil {
		return nil, err
	}

	value, err = compute(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.store(ctx, key, value, ttl, snapshot); err != nil {
		s.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
	return value, nil
}

func (s *Store) lookup(ctx context.Context, key string) (any, bool, error) {
	var (
		data      []byte
		expiresAt int64
		tagsRaw   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at, tags FROM cache_entries WHERE key = ?`, key,
	).Scan(&data, &expiresAt, &tagsRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}

	if cache.Expired(fromUnixNano(expiresAt), s.now()) {
		return nil, false, nil
	}

	snapshot, err := decodeTags(tagsRaw)
	if err != nil {
		s.discard(ctx, key, err)
		return nil, false, nil
	}
	current, err := s.versions(ctx, tagNames(snapshot))
	if err != nil {
		return nil, false, err
	}
	if !cache.Fresh(snapshot, current) {
		return nil, false, nil
	}

	value, err := s.codec.Unmarshal(data)
	if err != nil {
		s.discard(ctx, key, err)
		return nil, false, nil
	}
	return value, true, nil
}

// discard reports an entry that cannot be read back; the next store overwrites it.
func (s *Store) discard(ctx context.Context, key string, err error) {
	s.logger.WarnContext(ctx, "discarding undecodable cache entry",
		"key", key,
		"codec", s.codec.Name(),
		"error", err,
	)
}

func (s *Store) store(ctx context.Context, key string, value any, ttl time.Duration, snapshot map[string]uint64) error {
	data, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	tagsRaw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode cache tags: %w", err)
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at, tags, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			tags = excluded.tags,
			created_at = excluded.created_at
	`, key, data, toUnixNano(cache.Expiry(now, ttl)), string(tagsRaw), now.UnixNano())
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// versions returns the current version of each tag; unknown tags are at zero.
func (s *Store) versions(ctx context.Context, tags []string) (map[string]uint64, error) {
	versions := make(map[string]uint64, len(tags))
	if len(tags) == 0 {
		return versions, nil
	}

	args := make([]any, len(tags))
	for i, tag := range tags {
		versions[tag] = 0
		args[i] = tag
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tags)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT tag, version FROM cache_tags WHERE tag IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("read tag versions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tag     string
			version int64
		)
		if err := rows.Scan(&tag, &version); err != nil {
			return nil, fmt.Errorf("scan tag version: %w", err)
		}
		versions[tag] = uint64(version)
	}
	return versions, rows.Err()
}

// InvalidateTags implements cache.TagAware.
func (s *Store) InvalidateTags(ctx context.Context, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cache_tags (tag, version) VALUES (?, 1)
			ON CONFLICT(tag) DO UPDATE SET version = version + 1
		`, tag); err != nil {
			return fmt.Errorf("invalidate tag %s: %w", tag, err)
		}
	}
	return tx.Commit()
}

// Purge implements cache.Purger: it deletes expired entries and entries whose tags
// were invalidated after they were stored.
func (s *Store) Purge(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at > 0 AND expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge expired entries: %w", err)
	}
	expired, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	stale, err := s.staleKeys(ctx)
	if err != nil {
		return 0, err
	}
	for _, key := range stale {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			return 0, fmt.Errorf("purge stale entry: %w", err)
		}
	}

	return int(expired) + len(stale), nil
}

func (s *Store) staleKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, tags FROM cache_entries WHERE tags != '{}'`)
	if err != nil {
		return nil, fmt.Errorf("scan cache entries: %w", err)
	}
	snapshots := make(map[string]map[string]uint64)
	var corrupt []string
	for rows.Next() {
		var key, tagsRaw string
		if err := rows.Scan(&key, &tagsRaw); err != nil {
			rows.Close()
			return nil, err
		}
		snapshot, err := decodeTags(tagsRaw)
		if err != nil {
			corrupt = append(corrupt, key)
			continue
		}
		snapshots[key] = snapshot
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	// Tag versions are read after the cursor is closed: in-memory databases hold a
	// single connection.
	stale := corrupt
	for key, snapshot := range snapshots {
		current, err := s.versions(ctx, tagNames(snapshot))
		if err != nil {
			return nil, err
		}
		if !cache.Fresh(snapshot, current) {
			stale = append(stale, key)
		}
	}
	return stale, nil
}

// Len returns the number of stored rows, including stale ones not yet purged.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	return n, err
}

func decodeTags(raw string) (map[string]uint64, error) {
	snapshot := make(map[string]uint64)
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("decode cache tags: %w", err)
	}
	return snapshot, nil
}

func tagNames(snapshot map[string]uint64) []string {
	names := make([]string, 0, len(snapshot))
	for tag := range snapshot {
		names = append(names, tag)
	}
	return names
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
