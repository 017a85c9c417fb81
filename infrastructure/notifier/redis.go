package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"stranger-chat/contract"
	"stranger-chat/domain"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultChannelPrefix = "chat:notify:"

// Publisher is the subset of *redis.Client used to push notifications.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type payload struct {
	Recipient string `json:"recipient"`
	Kind      string `json:"kind"`
	Content   string `json:"content"`
	At        int64  `json:"ts"`
}

// RedisNotifier publishes every notification on the recipient's channel.
// The bot or web gateway subscribes to chat:notify:<participant> and renders it.
type RedisNotifier struct {
	publisher Publisher
	log       *slog.Logger
	prefix    string
}

var _ contract.Notifier = (*RedisNotifier)(nil)

func NewRedisNotifier(publisher Publisher, log *slog.Logger) *RedisNotifier {
	return &RedisNotifier{publisher: publisher, log: log, prefix: DefaultChannelPrefix}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (n *RedisNotifier) Channel(participantID string) string {
	return n.prefix + participantID
}

func (n *RedisNotifier) Notify(ctx context.Context, notification domain.Notification) {
	body, err := json.Marshal(payload{
		Recipient: notification.Recipient,
		Kind:      string(notification.Kind),
		Content:   notification.Content,
		At:        notification.At.Unix(),
	})
	if err != nil {
		n.log.Error("Unable to encode notification", "recipient", notification.Recipient, "error", err)
		return
	}
	if err := n.publisher.Publish(ctx, n.Channel(notification.Recipient), body).Err(); err != nil {
		n.log.Warn("Notification not published",
			"recipient", notification.Recipient,
			"kind", notification.Kind,
			"error", err)
	}
}
