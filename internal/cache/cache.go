// Package cache publishes the append-only action history to Redis. Every
// write is best effort: a dead Redis never stalls or fails a game.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Rikiyaaa/auction-server/internal/game"
)

// Rdb is the shared Redis client. Nil when Redis is not configured; callers
// guard on it before publishing.
var Rdb *redis.Client

const historyTTL = 24 * time.Hour

// InitRedis connects the shared client and verifies the connection.
func InitRedis(ctx context.Context, addr string) error {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	Rdb = client
	return nil
}

func historyKey(gameID string) string {
	return fmt.Sprintf("game:%s:actions", gameID)
}

// PublishGameAction appends one action record to the game's history list.
func PublishGameAction(ctx context.Context, rec game.ActionRecord) error {
	if Rdb == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal action record: %w", err)
	}
	key := historyKey(rec.GameID.String())
	pipe := Rdb.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish action record: %w", err)
	}
	return nil
}

// ActionHistory fetches a game's full recorded history, oldest first.
func ActionHistory(ctx context.Context, gameID string) ([]game.ActionRecord, error) {
	if Rdb == nil {
		return nil, nil
	}
	raw, err := Rdb.LRange(ctx, historyKey(gameID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read action history: %w", err)
	}
	records := make([]game.ActionRecord, 0, len(raw))
	for _, item := range raw {
		var rec game.ActionRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			logrus.WithError(err).Warn("skipping undecodable action record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
