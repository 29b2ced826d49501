package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/RaikyD/reptile-orders-service/internal/domain"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	w        messageWriter
	instance string
}

func NewProducer(brokersSTR, topic, instance string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(splitBrokers(brokersSTR)...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			WriteTimeout: 5 * time.Second,
		},
		instance: instance,
	}
}

func (p *Producer) Close() error {
	return p.w.Close()
}

// PublishOrderEvent keys messages by order id so events for one order stay ordered.
func (p *Producer) PublishOrderEvent(ctx context.Context, ev domain.OrderEvent) error {
	ev.Source = p.instance
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: b,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	})
}

func splitBrokers(csv string) []string {
	var out []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
