// Package natscache is a TagAware cache on a NATS JetStream key-value bucket, shared
// by every process connected to the same NATS cluster.
//
// Entries live under "entry.<key>" and tag versions under "tag.<sha256(tag)>". Tag
// versions are bumped with compare-and-set updates, so concurrent invalidations from
// several processes are never lost.
package natscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/nats-io/nats.go"
	"github.com/plaenen/shopcore/pkg/cache"
)

const (
	entryPrefix = "entry."
	tagPrefix   = "tag."

	maxCASAttempts = 16
)

var validKey = regexp.MustCompile(`^[-/_=.a-zA-Z0-9]+$`)

var errCorruptRecord = errors.New("corrupt cache record")

type record struct {
	ExpiresAt int64             `cbor:"1,keyasint"`
	Tags      map[string]uint64 `cbor:"2,keyasint"`
	Value     []byte            `cbor:"3,keyasint"`
}

// Store implements cache.TagAware on a JetStream KV bucket.
type Store struct {
	kv     nats.KeyValue
	codec  cache.Codec
	now    func() time.Time
	logger *slog.Logger
}

type config struct {
	storage  nats.StorageType
	maxAge   time.Duration
	replicas int
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures New.
type Option func(*config)

// WithMemoryStorage keeps the bucket in memory instead of on disk.
func WithMemoryStorage() Option {
	return func(c *config) {
		c.storage = nats.MemoryStorage
	}
}

// WithMaxAge bounds how long any key stays in the bucket, regardless of entry TTLs.
// Tag versions are also subject to it, so it should exceed the longest entry TTL.
func WithMaxAge(d time.Duration) Option {
	return func(c *config) {
		c.maxAge = d
	}
}

// WithReplicas sets the bucket replication factor when it is created.
func WithReplicas(n int) Option {
	return func(c *config) {
		c.replicas = n
	}
}

// WithLogger sets the logger that reports discarded and unwritable entries. Default is
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// New binds bucket, creating it when it does not exist yet.
func New(js nats.JetStreamContext, bucket string, codec cache.Codec, opts ...Option) (*Store, error) {
	cfg := config{storage: nats.FileStorage, replicas: 1, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "shopcore query cache",
			History:     1,
			TTL:         cfg.maxAge,
			Storage:     cfg.storage,
			Replicas:    cfg.replicas,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("bind cache bucket %s: %w", bucket, err)
	}

	return &Store{kv: kv, codec: codec, now: cfg.now, logger: cfg.logger}, nil
}

// Get implements cache.TagAware. A computed value is returned even when storing it
// fails.
func (s *Store) Get(ctx context.Context, key string, ttl time.Duration, tags []string, compute cache.Compute) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value, hit, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if hit {
		return value, nil
	}

	snapshot, err := s.versions(tags)
	if err != nil {
		return nil, err
	}

	value, err = compute(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.store(key, value, ttl, snapshot); err != nil {
		s.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
	return value, nil
}

func (s *Store) store(key string, value any, ttl time.Duration, snapshot map[string]uint64) error {
	data, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	expiresAt := cache.Expiry(s.now(), ttl)
	rec := record{Tags: snapshot, Value: data}
	if !expiresAt.IsZero() {
		rec.ExpiresAt = expiresAt.UnixNano()
	}
	raw, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode cache record: %w", err)
	}
	if _, err := s.kv.Put(entryKey(key), raw); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// lookup treats records and values that no longer decode as misses; the next store
// overwrites them.
func (s *Store) lookup(ctx context.Context, key string) (any, bool, error) {
	rec, ok, err := s.read(entryKey(key))
	if errors.Is(err, errCorruptRecord) {
		s.discard(ctx, key, err)
		return nil, false, nil
	}
	if err != nil || !ok {
		return nil, false, err
	}
	fresh, err := s.fresh(rec)
	if err != nil || !fresh {
		return nil, false, err
	}

	value, err := s.codec.Unmarshal(rec.Value)
	if err != nil {
		s.discard(ctx, key, err)
		return nil, false, nil
	}
	return value, true, nil
}

func (s *Store) discard(ctx context.Context, key string, err error) {
	s.logger.WarnContext(ctx, "discarding undecodable cache entry",
		"key", key,
		"codec", s.codec.Name(),
		"error", err,
	)
}

func (s *Store) read(k string) (record, bool, error) {
	entry, err := s.kv.Get(k)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return record{}, false, nil
	}
	if err != nil {
		return record{}, false, fmt.Errorf("read cache entry: %w", err)
	}

	var rec record
	if err := cbor.Unmarshal(entry.Value(), &rec); err != nil {
		return record{}, false, fmt.Errorf("%w: %w", errCorruptRecord, err)
	}
	return rec, true, nil
}

func (s *Store) fresh(rec record) (bool, error) {
	var expiresAt time.Time
	if rec.ExpiresAt != 0 {
		expiresAt = time.Unix(0, rec.ExpiresAt)
	}
	if cache.Expired(expiresAt, s.now()) {
		return false, nil
	}

	tags := make([]string, 0, len(rec.Tags))
	for tag := range rec.Tags {
		tags = append(tags, tag)
	}
	current, err := s.versions(tags)
	if err != nil {
		return false, err
	}
	return cache.Fresh(rec.Tags, current), nil
}

func (s *Store) versions(tags []string) (map[string]uint64, error) {
	versions := make(map[string]uint64, len(tags))
	for _, tag := range tags {
		version, _, err := s.tagVersion(tag)
		if err != nil {
			return nil, err
		}
		versions[tag] = version
	}
	return versions, nil
}

// tagVersion returns the tag's version and the KV revision holding it; revision 0
// means the tag was never invalidated.
func (s *Store) tagVersion(tag string) (version, revision uint64, err error) {
	entry, err := s.kv.Get(tagKey(tag))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("read tag %s: %w", tag, err)
	}
	version, err = strconv.ParseUint(string(entry.Value()), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse tag %s version: %w", tag, err)
	}
	return version, entry.Revision(), nil
}

// InvalidateTags implements cache.TagAware.
func (s *Store) InvalidateTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.bump(tag); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) bump(tag string) error {
	var lastErr error
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		version, revision, err := s.tagVersion(tag)
		if err != nil {
			return err
		}

		next := []byte(strconv.FormatUint(version+1, 10))
		if revision == 0 {
			_, lastErr = s.kv.Create(tagKey(tag), next)
		} else {
			_, lastErr = s.kv.Update(tagKey(tag), next, revision)
		}
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("invalidate tag %s: %w", tag, lastErr)
}

// Purge implements cache.Purger. It removes expired, invalidated and corrupt entries.
func (s *Store) Purge(ctx context.Context) (int, error) {
	keys, err := s.kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list cache keys: %w", err)
	}

	removed := 0
	for _, k := range keys {
		if !strings.HasPrefix(k, entryPrefix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		rec, ok, err := s.read(k)
		if err != nil && !errors.Is(err, errCorruptRecord) {
			return removed, err
		}
		if err == nil {
			if !ok {
				continue
			}
			fresh, err := s.fresh(rec)
			if err != nil {
				return removed, err
			}
			if fresh {
				continue
			}
		}
		if err := s.kv.Purge(k); err != nil {
			return removed, fmt.Errorf("purge cache entry: %w", err)
		}
		removed++
	}
	return removed, nil
}

func entryKey(key string) string {
	if validKey.MatchString(key) {
		return entryPrefix + key
	}
	return entryPrefix + "h." + digest(key)
}

func tagKey(tag string) string {
	return tagPrefix + digest(tag)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
