package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/RaikyD/reptile-orders-service/internal/domain"
	"github.com/RaikyD/reptile-orders-service/internal/logger"
	"github.com/segmentio/kafka-go"
)

// Reloader is the cache side of invalidation: a full re-fetch.
type Reloader interface {
	Reload(ctx context.Context) error
}

type ConsumerConfig struct {
	Brokers  string
	Topic    string
	GroupID  string
	Instance string
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StartConsumer reloads the cache whenever another instance reports a
// committed order mutation. It stops when ctx is cancelled.
func StartConsumer(ctx context.Context, cache Reloader, cfg ConsumerConfig) *kafka.Reader {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         splitBrokers(cfg.Brokers),
		GroupID:         cfg.GroupID,
		Topic:           cfg.Topic,
		MinBytes:        1,
		MaxBytes:        10e6,
		CommitInterval:  0,
		StartOffset:     kafka.LastOffset,
		ReadLagInterval: -1,
	})

	logger.Info("kafka consumer starting", "brokers", cfg.Brokers, "topic", cfg.Topic, "group", cfg.GroupID)

	go consume(ctx, r, cache, cfg.Instance, 300*time.Millisecond)
	return r
}

func consume(ctx context.Context, r messageReader, cache Reloader, instance string, backoff time.Duration) {
	defer r.Close()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka fetch error", "err", err)
			sleep(ctx, backoff)
			continue
		}

		var ev domain.OrderEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			logger.Warn("kafka invalid event. skip and commit", "err", err, "offset", m.Offset)
			_ = r.CommitMessages(ctx, m)
			continue
		}

		if ev.Source != instance {
			if !reloadUntilDone(ctx, cache, ev, backoff) {
				return
			}
		}

		if err := r.CommitMessages(ctx, m); err != nil {
			logger.Warn("[kafka] commit failed", "err", err)
		}
	}
}

// reloadUntilDone retries the reload; false means ctx ended first.
func reloadUntilDone(ctx context.Context, cache Reloader, ev domain.OrderEvent, backoff time.Duration) bool {
	for {
		err := cache.Reload(ctx)
		if err == nil {
			logger.Debug("cache reloaded from event", "order_id", ev.OrderID, "type", ev.Type)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		logger.Warn("cache reload after event failed, will retry", "order_id", ev.OrderID, "err", err)
		sleep(ctx, backoff)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
