// Package broadcaster publishes journalled trades to Kafka. It is the only
// reader of the journal: each pass scans NEW records, marks them SENT,
// publishes, and marks them ACKED. A record that fails to publish stays SENT
// and is retried on a later pass.
package broadcaster

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"atlas/domain/orderbook"
	"atlas/infra/journal"
)

type Broadcaster struct {
	journal  *journal.Journal
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

// TradeEvent is the published wire form.
type TradeEvent struct {
	V             int    `json:"v"`
	Type          string `json:"type"`
	TradeID       uint64 `json:"trade_id"`
	BuyerOrderID  uint64 `json:"buyer_order_id"`
	SellerOrderID uint64 `json:"seller_order_id"`
	Price         int64  `json:"price"`
	Quantity      uint64 `json:"quantity"`
	Timestamp     uint64 `json:"timestamp"`
	AggressorSide string `json:"aggressor_side"`
}

// New connects a sync producer with full-ISR acks and bounded retries.
func New(j *journal.Journal, brokers []string, topic string, interval time.Duration, log *zap.Logger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithProducer(j, producer, topic, interval, log), nil
}

// NewWithProducer wires an existing producer; tests pass a sarama mock.
func NewWithProducer(j *journal.Journal, producer sarama.SyncProducer, topic string, interval time.Duration, log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		journal:  j,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log,
	}
}

// Run scans on a ticker until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("broadcaster started", zap.String("topic", b.topic))
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}

// Flush publishes every NEW record once, then retries anything left SENT by
// an earlier crash or broker failure.
func (b *Broadcaster) Flush() {
	b.flushState(journal.StateNew)
	b.flushState(journal.StateSent)
}

func (b *Broadcaster) flushState(state journal.State) {
	_ = b.journal.ScanByState(state, func(rec journal.Record) error {
		id := rec.Trade.TradeID

		// Mark SENT first so a crash mid-publish is retried, not lost.
		if err := b.journal.UpdateState(id, journal.StateSent, rec.Retries); err != nil {
			return err
		}

		if err := b.publish(rec.Trade); err != nil {
			b.log.Warn("publish failed",
				zap.Uint64("trade_id", id),
				zap.Error(err),
			)
			_ = b.journal.UpdateState(id, journal.StateSent, rec.Retries+1)
			return nil // keep scanning, retry later
		}

		if err := b.journal.UpdateState(id, journal.StateAcked, rec.Retries); err != nil {
			return err
		}
		return b.journal.Delete(id)
	})
}

func (b *Broadcaster) publish(t orderbook.Trade) error {
	payload, err := json.Marshal(TradeEvent{
		V:             1,
		Type:          "trade",
		TradeID:       t.TradeID,
		BuyerOrderID:  t.BuyerOrderID,
		SellerOrderID: t.SellerOrderID,
		Price:         t.Price,
		Quantity:      t.Quantity,
		Timestamp:     t.Timestamp,
		AggressorSide: t.AggressorSide.String(),
	})
	if err != nil {
		return err
	}
	_, _, err = b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: b.topic,
		Value: sarama.ByteEncoder(payload),
	})
	return err
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
