// Package kafka connects the engine to Kafka: a source that feeds binary L2
// frames into the feed handler's ring.
package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"atlas/feed"
)

// Source consumes L2 frames from a topic and enqueues them to the handler.
// It is the single ring producer; when the ring is full the message is
// retried briefly, then dropped and counted by the handler.
type Source struct {
	reader  *kafka.Reader
	handler *feed.Handler
	log     *zap.Logger
}

func NewSource(brokers []string, topic, groupID string, handler *feed.Handler, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 1 << 20,
			MaxWait:  10 * time.Millisecond,
		}),
		handler: handler,
		log:     log,
	}
}

// Run reads until the context is cancelled.
func (s *Source) Run(ctx context.Context) error {
	for {
		m, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		msg, err := feed.DecodeL2(m.Value)
		if err != nil {
			s.log.Warn("bad L2 frame",
				zap.Int("len", len(m.Value)),
				zap.Error(err),
			)
			continue
		}
		if !s.handler.Enqueue(msg) {
			// One short retry before surrendering to the drop counter.
			time.Sleep(time.Millisecond)
			s.handler.Enqueue(msg)
		}
	}
}

func (s *Source) Close() error {
	return s.reader.Close()
}
