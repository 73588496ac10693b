// Package rediskv is a Redis settings backend, used as the shared primary tier
// so several browsers can sync one whitelist.
package rediskv

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/haukened/navgate/internal/navgate/repos/settings"
)

// Redis command names.
const (
	cmdMGET = "MGET"
	cmdMSET = "MSET"
)

// Config describes how to reach the Redis server.
type Config struct {
	// Addr is the host:port of the server.
	Addr string
	// DB is the database index selected on connect.
	DB int
	// Prefix namespaces every key, for example "navgate:".
	Prefix string
	// DialTimeout bounds connecting. Zero means 2 seconds.
	DialTimeout time.Duration
}

// Store implements settings.Backend over a redigo pool.
type Store struct {
	pool   *redis.Pool
	prefix string
}

// New returns a Store backed by a new connection pool. No connection is made
// until the first request.
func New(c Config) *Store {
	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	pool := &redis.Pool{
		MaxIdle:     3,
		MaxActive:   10,
		IdleTimeout: 30 * time.Second,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", c.Addr,
				redis.DialDatabase(c.DB),
				redis.DialConnectTimeout(timeout),
				redis.DialReadTimeout(timeout),
				redis.DialWriteTimeout(timeout),
			)
		},
	}
	return NewWithPool(pool, c.Prefix)
}

// NewWithPool returns a Store using an existing pool.
func NewWithPool(pool *redis.Pool, prefix string) *Store {
	return &Store{pool: pool, prefix: prefix}
}

func (s *Store) Name() string { return "redis" }

// Get implements the settings.Backend interface for *Store.
func (s *Store) Get(ctx context.Context, keys []string) (rec settings.Record, err error) {
	rec = settings.Record{}
	if len(keys) == 0 {
		return rec, nil
	}
	c, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: getting from pool: %w", settings.ErrBackendUnavailable, err)
	}
	defer func() { _ = c.Close() }()

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = s.prefix + k
	}
	vals, err := redis.Values(c.Do(cmdMGET, args...))
	if err != nil {
		return nil, fmt.Errorf("mget command: %w", err)
	}
	for i, v := range vals {
		switch v := v.(type) {
		case nil:
			// key not set
		case []byte:
			rec[keys[i]] = v
		default:
			return nil, fmt.Errorf("mget: unexpected reply type %T for %s", v, keys[i])
		}
	}
	return rec, nil
}

// Set implements the settings.Backend interface for *Store.
func (s *Store) Set(ctx context.Context, rec settings.Record) error {
	if len(rec) == 0 {
		return nil
	}
	c, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: getting from pool: %w", settings.ErrBackendUnavailable, err)
	}
	defer func() { _ = c.Close() }()

	args := make([]any, 0, 2*len(rec))
	for k, v := range rec {
		args = append(args, s.prefix+k, []byte(v))
	}
	if _, err := c.Do(cmdMSET, args...); err != nil {
		return fmt.Errorf("mset command: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.pool.Close() }

var _ settings.Backend = (*Store)(nil)
