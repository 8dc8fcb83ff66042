package fellowship

import (
	"context"
	"errors"
	"fmt"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"log/slog"
	"sync"
)

var (
	// ErrConnectionUnavailable indicates the store connection couldn't be
	// established, or failed mid-exchange.
	ErrConnectionUnavailable = errors.New("store connection unavailable")

	// ErrRemoteRejected indicates the store replied with an error.
	ErrRemoteRejected = errors.New("store rejected the request")

	// ErrNotFound indicates no value exists for the requested key.
	ErrNotFound = errors.New("key not found")

	// ErrStoreClosed is returned for operations on a closed ProfileStore.
	ErrStoreClosed = errors.New("store closed")
)

// KeyValueStore is the narrow persistence contract command handlers
// depend on.
type KeyValueStore interface {
	Put(ctx context.Context, key string, value string) error
	Get(ctx context.Context, key string) (string, error)
}

// ProfileStore is a thin Redis client which serializes all access to a
// single connection. There is no caching and no retry: a failed exchange
// is returned to the caller as-is (classified as one of
// ErrConnectionUnavailable, ErrRemoteRejected or ErrNotFound).
//
// The connection is established lazily on first use, and lives in a
// go-redis pool capped at one connection. A connection the pool considers
// bad (a transport failure, or a READONLY reply) is
// discarded, and a later call dials a new one. After a failed dial, the
// pool reports the last dial error until a background dial succeeds, so
// recovery may lag the server coming back by a moment.
type ProfileStore struct {
	client *redis.Client
	logger *slog.Logger

	// guards closed, and serializes commands on client. Held for exactly
	// one request/response exchange.
	mu     sync.Mutex
	closed bool
}

// OpenProfileStore validates the given connection URI and prepares a
// ProfileStore. It doesn't connect.
func OpenProfileStore(uri string, logger *slog.Logger) (*ProfileStore, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis URL: %w", ErrConnectionUnavailable, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	// a single connection, and no retries beyond what the caller does
	opts.PoolSize = 1
	opts.MinIdleConns = 0
	opts.MaxRetries = -1

	return &ProfileStore{
		client: redis.NewClient(opts),
		logger: logger.With(loggerNameKey, "profile_store"),
	}, nil
}

// Put sets key to value.
func (s *ProfileStore) Put(ctx context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		err = classifyStoreError(err)
		s.logger.ErrorContext(ctx, "error setting key", "key", key, tint.Err(err))
		return err
	}
	s.logger.DebugContext(ctx, "set key", "key", key, "size", len(value))
	return nil
}

// Get returns the value stored at key, or ErrNotFound if no value exists.
func (s *ProfileStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		err = classifyStoreError(err)
		if errors.Is(err, ErrNotFound) {
			s.logger.DebugContext(ctx, "key not found", "key", key)
		} else {
			s.logger.ErrorContext(ctx, "error getting key", "key", key, tint.Err(err))
		}
		return "", err
	}
	s.logger.DebugContext(ctx, "got key", "key", key, "size", len(val))
	return val, nil
}

// Close closes the underlying client and its connection, if any.
// Subsequent operations return ErrStoreClosed.
func (s *ProfileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

// classifyStoreError maps a go-redis error to ErrNotFound,
// ErrRemoteRejected or ErrConnectionUnavailable, keeping the original
// error in the chain.
func classifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	// redis.Nil is itself a redis.Error, so it's checked first
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		return fmt.Errorf("%w: %w", ErrRemoteRejected, err)
	}
	return fmt.Errorf("%w: %w", ErrConnectionUnavailable, err)
}
