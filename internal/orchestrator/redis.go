package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kaiven11/artical-generate/internal/types"
)

// RedisProgressBroadcaster publishes Task progress/status transitions on a
// pub/sub channel, so an (out-of-scope) external layer could subscribe
// without the core depending on an HTTP server. Grounded on the connection
// setup of taipm-go-deep-agent/agent/cache_redis.go's RedisCache, narrowed
// from a general cache client down to the one Publish operation this
// component needs.
type RedisProgressBroadcaster struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

// RedisOptions mirrors the connection knobs of the source RedisCache,
// trimmed to what a pub/sub publisher needs.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	Channel      string
}

// NewRedisProgressBroadcaster dials Redis and verifies connectivity with a
// Ping, following the source's "test connection before returning" pattern.
func NewRedisProgressBroadcaster(opts RedisOptions, logger *slog.Logger) (*RedisProgressBroadcaster, error) {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.Channel == "" {
		opts.Channel = "republish:task_progress"
	}

	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisProgressBroadcaster{
		client:  client,
		channel: opts.Channel,
		logger:  logger.With("component", "progress_broadcaster"),
	}, nil
}

type progressEvent struct {
	TaskID    string          `json:"task_id"`
	Status    types.TaskStatus `json:"status"`
	Progress  int             `json:"progress"`
	Step      string          `json:"step,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Publish implements ProgressBroadcaster. Failures are logged, not returned:
// progress mirroring is a best-effort supplement, never a reason to fail a
// Task that otherwise completed its real work.
func (b *RedisProgressBroadcaster) Publish(ctx context.Context, taskID string, status types.TaskStatus, progress int, step string) {
	payload, err := json.Marshal(progressEvent{
		TaskID:    taskID,
		Status:    status,
		Progress:  progress,
		Step:      step,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		b.logger.Warn("encode progress event failed", "task_id", taskID, "error", err)
		return
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.Warn("publish progress event failed", "task_id", taskID, "error", err)
	}
}

// Close releases the underlying Redis connection.
func (b *RedisProgressBroadcaster) Close() error {
	return b.client.Close()
}
