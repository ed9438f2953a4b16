// Package redis backs replayable certification submissions and status poll
// throttling with go-redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flagit/flagit-backend/pkg/config"
	"github.com/flagit/flagit-backend/pkg/logger"
)

const (
	keyNamespace     = "flagit"
	submissionPrefix = "submission"
	rateLimitPrefix  = "rate_limit"
)

var errNotInitialized = errors.New("redis client not initialized")

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
}

// SubmissionStore keeps the recorded response of a certification submission so
// a retry with the same Idempotency-Key replays it.
type SubmissionStore interface {
	LoadSubmission(ctx context.Context, scope, key string) (string, bool, error)
	SaveSubmission(ctx context.Context, scope, key, record string, ttl time.Duration) (bool, error)
}

type Client struct {
	store cmdable
	raw   *redis.Client
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"redis_db": opts.DB, "redis_pool_size": opts.PoolSize}), "redis connection established")
	}
	return &Client{store: raw, raw: raw}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
		if opts.DB == 0 {
			opts.DB = cfg.DB
		}
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	default:
		return nil, errors.New("redis url or address is required")
	}

	// settings carried in the URL win over the environment
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// LoadSubmission returns the recorded submission for key within scope.
// found is false when nothing was recorded or the record expired.
func (c *Client) LoadSubmission(ctx context.Context, scope, key string) (string, bool, error) {
	if c.store == nil {
		return "", false, errNotInitialized
	}
	record, err := c.store.Get(ctx, c.submissionKey(scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return record, true, nil
}

// SaveSubmission records a submission unless one is already stored for key.
// The first writer wins; saved is false for later writers.
func (c *Client) SaveSubmission(ctx context.Context, scope, key, record string, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	return c.store.SetNX(ctx, c.submissionKey(scope, key), record, ttl).Result()
}

// CountRequest increments the fixed-window counter for scope and returns the
// number of requests seen in the current window.
func (c *Client) CountRequest(ctx context.Context, scope string, window time.Duration) (int64, error) {
	if c.store == nil {
		return 0, errNotInitialized
	}
	key := c.buildKey(rateLimitPrefix, scope)
	count, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// the window starts with the first request
	if window > 0 && count == 1 {
		if err := c.store.Expire(ctx, key, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errNotInitialized
	}
	return c.store.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) submissionKey(scope, key string) string {
	return c.buildKey(submissionPrefix, scope, key)
}

func (c *Client) buildKey(parts ...string) string {
	clean := []string{keyNamespace}
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			clean = append(clean, part)
		}
	}
	return strings.Join(clean, ":")
}
