package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type Message struct {
	Kind    string
	To      string
	Subject string
	HTML    string
}

// Notifier delivers a message or returns an error; it never retries.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
	Transport() string
}

// LogNotifier writes messages to the logger. Bodies contain live links and
// are only emitted at debug level.
type LogNotifier struct {
	from   string
	logger *slog.Logger
}

func NewLogNotifier(from string, logger *slog.Logger) *LogNotifier {
	return &LogNotifier{from: from, logger: logger}
}

func (n *LogNotifier) Transport() string { return "log" }

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "mail queued", "transport", "log", "kind", msg.Kind, "from", n.from, "subject", msg.Subject)
	n.logger.DebugContext(ctx, "mail body", "kind", msg.Kind, "to", msg.To, "html", msg.HTML)
	return nil
}

// RedisStreamNotifier appends messages to a redis stream drained by an
// external mail worker.
type RedisStreamNotifier struct {
	client redis.UniversalClient
	stream string
	from   string
	maxLen int64
	now    Clock
}

func NewRedisStreamNotifier(client redis.UniversalClient, stream, from string, now Clock) *RedisStreamNotifier {
	return &RedisStreamNotifier{client: client, stream: stream, from: from, maxLen: 100000, now: now}
}

func (n *RedisStreamNotifier) Transport() string { return "redis" }

func (n *RedisStreamNotifier) Send(ctx context.Context, msg Message) error {
	if n.client == nil {
		return errors.New("redis notifier has no client")
	}
	err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]any{
			"kind":      msg.Kind,
			"from":      n.from,
			"to":        msg.To,
			"subject":   msg.Subject,
			"html":      msg.HTML,
			"queued_at": n.now().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", n.stream, err)
	}
	return nil
}
