// Package journal is the durable trade outbox. Every trade the engine emits
// is recorded here before the broadcaster publishes it, so a crash between
// match and publish loses nothing. The journal is write-forward only: the
// book is never rebuilt from it.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"atlas/domain/orderbook"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Record is a journalled trade plus its publication state.
type Record struct {
	State       State
	Retries     uint32
	LastAttempt int64
	Trade       orderbook.Trade
}

var ErrCorruptRecord = errors.New("journal: corrupt record")

// encoding: [state:1][retries:4][lastAttempt:8]
// [tradeID:8][buyer:8][seller:8][price:8][qty:8][ts:8][aggressor:1]
const recordSize = 1 + 4 + 8 + 8*6 + 1

func encodeRecord(r Record) []byte {
	buf := make([]byte, recordSize)
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	t := r.Trade
	binary.BigEndian.PutUint64(buf[13:21], t.TradeID)
	binary.BigEndian.PutUint64(buf[21:29], t.BuyerOrderID)
	binary.BigEndian.PutUint64(buf[29:37], t.SellerOrderID)
	binary.BigEndian.PutUint64(buf[37:45], uint64(t.Price))
	binary.BigEndian.PutUint64(buf[45:53], t.Quantity)
	binary.BigEndian.PutUint64(buf[53:61], t.Timestamp)
	buf[61] = byte(t.AggressorSide)
	return buf
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) != recordSize {
		return Record{}, ErrCorruptRecord
	}
	return Record{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Trade: orderbook.Trade{
			TradeID:       binary.BigEndian.Uint64(b[13:21]),
			BuyerOrderID:  binary.BigEndian.Uint64(b[21:29]),
			SellerOrderID: binary.BigEndian.Uint64(b[29:37]),
			Price:         int64(binary.BigEndian.Uint64(b[37:45])),
			Quantity:      binary.BigEndian.Uint64(b[45:53]),
			Timestamp:     binary.BigEndian.Uint64(b[53:61]),
			AggressorSide: orderbook.Side(b[61]),
		},
	}, nil
}

// Journal stores trade records in pebble, keyed by trade id.
type Journal struct {
	db *pebble.DB
}

func Open(dir string) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // the outbox exists for durability
	})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", dir, err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Append records a freshly emitted trade in state NEW.
func (j *Journal) Append(t orderbook.Trade) error {
	rec := Record{State: StateNew, Trade: t}
	return j.db.Set(keyFor(t.TradeID), encodeRecord(rec), pebble.Sync)
}

// UpdateState advances a record after a send, ack, or failure.
func (j *Journal) UpdateState(tradeID uint64, state State, retries uint32) error {
	rec, err := j.Get(tradeID)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = time.Now().UnixNano()
	return j.db.Set(keyFor(tradeID), encodeRecord(rec), pebble.Sync)
}

// Delete removes a record, normally after it has been acked.
func (j *Journal) Delete(tradeID uint64) error {
	return j.db.Delete(keyFor(tradeID), pebble.Sync)
}

// Get returns the record for a trade id.
func (j *Journal) Get(tradeID uint64) (Record, error) {
	val, closer, err := j.db.Get(keyFor(tradeID))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()
	return decodeRecord(val)
}

// ScanByState iterates all records in the given state in trade-id order.
func (j *Journal) ScanByState(state State, fn func(rec Record) error) error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("trade/"),
		UpperBound: []byte("trade/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		if rec.State != state {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

func keyFor(tradeID uint64) []byte {
	return []byte(fmt.Sprintf("trade/%020d", tradeID))
}
