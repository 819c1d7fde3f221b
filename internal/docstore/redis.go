package docstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "keyserver:doc:"

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the prefix prepended to every document key.
// Default: "keyserver:doc:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// RedisStore implements Store with one Redis hash per document holding the
// "data" and "version" fields. Saves run under WATCH so a concurrent writer
// aborts the transaction.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed document store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

func (s *RedisStore) Load(ctx context.Context, name string) (*Document, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	fields, err := s.client.HGetAll(ctx, s.key(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("load document: %w: %w", ErrUnavailable, err)
	}
	doc := &Document{Name: name}
	if len(fields) == 0 {
		return doc, nil
	}
	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse document version: %w", err)
	}
	doc.Version = version
	doc.Data = []byte(fields["data"])
	return doc, nil
}

func (s *RedisStore) Save(ctx context.Context, doc *Document) (int64, error) {
	if err := ValidateName(doc.Name); err != nil {
		return 0, err
	}
	key := s.key(doc.Name)
	next := doc.Version + 1

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "version").Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != doc.Version {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "data", string(doc.Data), "version", next)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, ErrVersionConflict), errors.Is(err, redis.TxFailedErr):
		return 0, ErrVersionConflict
	default:
		return 0, fmt.Errorf("save document: %w: %w", ErrUnavailable, err)
	}
}

func (s *RedisStore) Close(_ context.Context) error {
	return nil // caller manages the redis client lifecycle
}
