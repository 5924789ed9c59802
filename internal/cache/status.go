// Package cache keeps hot project status documents in Redis so polling
// clients do not hammer Postgres. The cache is optional; a nil cache is a
// no-op and Redis failures fall through to the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/config"
)

// StatusEntry is the cached view of a project's progress.
type StatusEntry struct {
	Status   string          `json:"status"`
	TaskType string          `json:"task_type,omitempty"`
	Progress json.RawMessage `json:"progress,omitempty"`
}

// StatusCache stores status entries with a short TTL.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewStatusCache connects to Redis, or returns nil when disabled.
func NewStatusCache(cfg *config.RedisConfig, log *zap.Logger) *StatusCache {
	if !cfg.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.Database,
	})
	return &StatusCache{client: client, ttl: cfg.TTL, log: log}
}

func statusKey(projectID string) string { return "automl:project:" + projectID + ":status" }

// Get returns the cached entry, or nil on miss or error.
func (c *StatusCache) Get(ctx context.Context, projectID string) *StatusEntry {
	if c == nil {
		return nil
	}
	data, err := c.client.Get(ctx, statusKey(projectID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("status cache read", zap.String("project_id", projectID), zap.Error(err))
		}
		return nil
	}
	entry := &StatusEntry{}
	if err := json.Unmarshal(data, entry); err != nil {
		return nil
	}
	return entry
}

// Set stores an entry under the configured TTL.
func (c *StatusCache) Set(ctx context.Context, projectID string, entry *StatusEntry) {
	if c == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, statusKey(projectID), data, c.ttl).Err(); err != nil {
		c.log.Warn("status cache write", zap.String("project_id", projectID), zap.Error(err))
	}
}

// Invalidate removes a project's cached status.
func (c *StatusCache) Invalidate(ctx context.Context, projectID string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, statusKey(projectID)).Err(); err != nil {
		c.log.Warn("status cache invalidate", zap.String("project_id", projectID), zap.Error(err))
	}
}

// Close shuts down the Redis client.
func (c *StatusCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
