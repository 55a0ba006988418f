package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kgo "github.com/segmentio/kafka-go"
)

type kafkaEvent struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Time       time.Time `json:"time"`
	Properties Props     `json:"properties"`
}

// KafkaSink публикует события в топик. Writer асинхронный: Track не ждёт
// подтверждения брокера, ошибки доставки только логируются.
type KafkaSink struct {
	writer *kgo.Writer
	logger *slog.Logger
}

func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &KafkaSink{logger: logger}
	s.writer = &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.LeastBytes{},
		RequiredAcks: kgo.RequireOne,
		Async:        true,
		BatchTimeout: 200 * time.Millisecond,
		Completion: func(msgs []kgo.Message, err error) {
			if err != nil {
				s.logger.Debug("telemetry delivery failed", slog.Int("messages", len(msgs)), slog.Any("err", err))
			}
		},
	}
	return s
}

func (s *KafkaSink) Track(ctx context.Context, name string, props Props) {
	ev := kafkaEvent{
		ID:         uuid.NewString(),
		Name:       name,
		Time:       time.Now().UTC(),
		Properties: props,
	}
	b, err := json.Marshal(ev)
	if err != nil {
		s.logger.Debug("telemetry marshal failed", slog.String("event", name), slog.Any("err", err))
		return
	}
	// при Async=true ошибка здесь возможна только из-за закрытого writer'а
	if err := s.writer.WriteMessages(ctx, kgo.Message{Key: []byte(name), Value: b}); err != nil {
		s.logger.Debug("telemetry enqueue failed", slog.String("event", name), slog.Any("err", err))
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
