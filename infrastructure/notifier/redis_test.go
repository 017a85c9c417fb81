package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"stranger-chat/domain"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	message []byte
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.mu.Lock()
	defer p.mu.Unlock()
	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	if p.err != nil {
		cmd.SetErr(p.err)
		return cmd
	}
	p.messages = append(p.messages, published{channel: channel, message: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

func TestRedisNotifier_Publishes_On_Recipient_Channel(t *testing.T) {
	req := require.New(t)
	publisher := &recordingPublisher{}
	notifier := NewRedisNotifier(publisher, slog.Default())

	notification := domain.NewNotification("42", domain.KindPartnerFound, domain.PartnerFoundText)
	notifier.Notify(context.Background(), notification)

	req.Len(publisher.messages, 1)
	req.Equal("chat:notify:42", publisher.messages[0].channel)

	var body map[string]any
	req.NoError(json.Unmarshal(publisher.messages[0].message, &body))
	req.Equal("42", body["recipient"])
	req.Equal("partner_found", body["kind"])
	req.Equal(domain.PartnerFoundText, body["content"])
	req.EqualValues(notification.At.Unix(), body["ts"])
}

func TestRedisNotifier_Swallows_Publish_Errors(t *testing.T) {
	req := require.New(t)
	publisher := &recordingPublisher{err: fmt.Errorf("connection refused")}
	notifier := NewRedisNotifier(publisher, slog.Default())

	req.NotPanics(func() {
		notifier.Notify(context.Background(), domain.NewNotification("42", domain.KindMessage, "hello"))
	})
	req.Empty(publisher.messages)
}

func TestLogNotifier_Never_Fails(t *testing.T) {
	req := require.New(t)
	notifier := NewLogNotifier(slog.Default())
	req.NotPanics(func() {
		notifier.Notify(context.Background(), domain.NewNotification("42", domain.KindPartnerLeft, domain.PartnerLeftText))
	})
}
