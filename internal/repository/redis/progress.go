package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// progressTTL bounds how long a stale progress record can outlive its run.
const progressTTL = time.Hour

func progressKey(analysisID string) string { return "analysis:" + analysisID + ":progress" }

// SetProgress records how far a running analysis has sampled.
func (c *Client) SetProgress(ctx context.Context, analysisID string, done, total int) error {
	key := progressKey(analysisID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, "done", done, "total", total)
	pipe.Expire(ctx, key, progressTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// GetProgress returns the recorded progress. ok is false if none exists.
func (c *Client) GetProgress(ctx context.Context, analysisID string) (done, total int, ok bool, err error) {
	vals, err := c.rdb.HGetAll(ctx, progressKey(analysisID)).Result()
	if err == redis.Nil || (err == nil && len(vals) == 0) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("get progress: %w", err)
	}
	done, _ = strconv.Atoi(vals["done"])
	total, _ = strconv.Atoi(vals["total"])
	return done, total, true, nil
}

// ClearProgress deletes the progress record of a finished analysis.
func (c *Client) ClearProgress(ctx context.Context, analysisID string) error {
	return c.rdb.Del(ctx, progressKey(analysisID)).Err()
}
