package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

const notificationQueue = "wallet:notifications"

// Notifier is the fire-and-forget side channel telling a user their
// balance or message state changed. Failures are never surfaced to the
// operation that triggered them.
type Notifier interface {
	Notify(ctx context.Context, accountID, title, body string, data map[string]any)
}

// RedisNotifier pushes notification payloads onto a Redis list consumed
// by the delivery workers. A nil client degrades to log-only.
type RedisNotifier struct {
	redis *redis.Client
}

func NewRedisNotifier(redisClient *redis.Client) *RedisNotifier {
	return &RedisNotifier{redis: redisClient}
}

func (n *RedisNotifier) Notify(ctx context.Context, accountID, title, body string, data map[string]any) {
	payload, err := json.Marshal(map[string]any{
		"accountId": accountID,
		"title":     title,
		"body":      body,
		"data":      data,
		"queuedAt":  time.Now().Unix(),
	})
	if err != nil {
		log.Printf("[NOTIFY] Failed to marshal notification for %s: %v", accountID, err)
		return
	}

	if n.redis == nil {
		log.Printf("[NOTIFY] Redis unavailable, dropping notification for %s: %s", accountID, title)
		return
	}

	if err := n.redis.RPush(ctx, notificationQueue, string(payload)).Err(); err != nil {
		log.Printf("[NOTIFY] Failed to queue notification for %s: %v", accountID, err)
	}
}
