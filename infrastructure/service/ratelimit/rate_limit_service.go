package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/spacedesk/spacedesk/infrastructure/service/logger"
)

// Service is the fixed-window rate limiter guarding the write endpoints
type Service interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Block(ctx context.Context, key string, duration time.Duration) error
	IsBlocked(ctx context.Context, key string) (bool, error)
}

// Config configures the Redis-backed limiter
type Config struct {
	Enabled       bool
	RedisURL      string
	Requests      int
	Window        time.Duration
	BlockDuration time.Duration
}

type service struct {
	client *redis.Client
	log    logger.Logger
}

// New creates a rate limit service. When disabled it returns a noop limiter
// that allows everything.
func New(config Config, log logger.Logger) (Service, error) {
	if !config.Enabled {
		log.Info(context.Background(), "rate limiting disabled", nil)
		return &noopService{}, nil
	}

	opt, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info(ctx, "rate limiting service initialized", map[string]interface{}{
		"requests": config.Requests,
		"window":   config.Window.String(),
	})
	return &service{client: client, log: log}, nil
}

// Allow increments the window counter for key and reports whether the request
// stays under limit
func (s *service) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	pipeline := s.client.Pipeline()
	incr := pipeline.Incr(ctx, "rl:"+key)
	pipeline.Expire(ctx, "rl:"+key, window)
	if _, err := pipeline.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	count := incr.Val()
	allowed := count <= int64(limit)
	if !allowed {
		s.log.Debug(ctx, "rate limit exceeded", map[string]interface{}{
			"key":   key,
			"count": count,
			"limit": limit,
		})
	}
	return allowed, nil
}

func (s *service) Block(ctx context.Context, key string, duration time.Duration) error {
	if err := s.client.Set(ctx, "rl:block:"+key, strconv.FormatInt(time.Now().Unix(), 10), duration).Err(); err != nil {
		return fmt.Errorf("failed to block key: %w", err)
	}
	return nil
}

func (s *service) IsBlocked(ctx context.Context, key string) (bool, error) {
	exists, err := s.client.Exists(ctx, "rl:block:"+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check block status: %w", err)
	}
	return exists > 0, nil
}

// noopService allows everything; used when rate limiting is disabled
type noopService struct{}

func (n *noopService) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

func (n *noopService) Block(ctx context.Context, key string, duration time.Duration) error {
	return nil
}

func (n *noopService) IsBlocked(ctx context.Context, key string) (bool, error) {
	return false, nil
}

// NewNoop returns the always-allow limiter for tests and disabled deployments
func NewNoop() Service {
	return &noopService{}
}
