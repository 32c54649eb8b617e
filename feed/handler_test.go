package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas/domain/orderbook"
)

func newTestHandler() (*Handler, *orderbook.OrderBook) {
	book := orderbook.NewOrderBook(1024)
	h := NewHandler(Config{RingCapacity: 16, DrainBatch: 16, DetectGaps: true}, book, nil)
	return h, book
}

func msgAt(seq uint64, side orderbook.Side, price float64, qty uint64, action OrderAction) L2Message {
	return L2Message{
		Timestamp: seq,
		SymbolID:  1,
		Price:     orderbook.ToPrice(price),
		Quantity:  qty,
		Side:      side,
		Action:    action,
		Sequence:  seq,
	}
}

func TestL2CodecRoundTrip(t *testing.T) {
	in := L2Message{
		Timestamp: 12345,
		SymbolID:  7,
		Price:     orderbook.ToPrice(101.25),
		Quantity:  400,
		Side:      orderbook.Sell,
		Action:    ActionModify,
		Sequence:  99,
	}
	buf := in.Encode(nil)
	require.Len(t, buf, L2MessageSize)

	out, err := DecodeL2(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = DecodeL2(buf[:10])
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestHandlerAppliesAdds(t *testing.T) {
	h, book := newTestHandler()

	require.True(t, h.Enqueue(msgAt(1, orderbook.Buy, 100, 50, ActionAdd)))
	require.True(t, h.Enqueue(msgAt(2, orderbook.Sell, 101, 30, ActionAdd)))
	assert.Equal(t, 2, h.Drain(16))

	assert.Equal(t, orderbook.ToPrice(100), book.BestBid())
	assert.Equal(t, orderbook.ToPrice(101), book.BestAsk())
	assert.Equal(t, orderbook.Quantity(50), book.BestBidQuantity())

	// A second add at the same level accretes.
	h.Enqueue(msgAt(3, orderbook.Buy, 100, 25, ActionAdd))
	h.Drain(16)
	assert.Equal(t, orderbook.Quantity(75), book.BestBidQuantity())
}

func TestHandlerModifySetsLevel(t *testing.T) {
	h, book := newTestHandler()

	h.Enqueue(msgAt(1, orderbook.Buy, 100, 50, ActionAdd))
	h.Enqueue(msgAt(2, orderbook.Buy, 100, 20, ActionModify))
	h.Drain(16)
	assert.Equal(t, orderbook.Quantity(20), book.BestBidQuantity())

	// Modify of an unseen level creates it.
	h.Enqueue(msgAt(3, orderbook.Sell, 102, 40, ActionModify))
	h.Drain(16)
	assert.Equal(t, orderbook.ToPrice(102), book.BestAsk())

	// Modify to zero deletes.
	h.Enqueue(msgAt(4, orderbook.Buy, 100, 0, ActionModify))
	h.Drain(16)
	assert.Equal(t, orderbook.InvalidPrice, book.BestBid())
}

func TestHandlerDeleteAndExecute(t *testing.T) {
	h, book := newTestHandler()

	h.Enqueue(msgAt(1, orderbook.Sell, 101, 40, ActionAdd))
	h.Enqueue(msgAt(2, orderbook.Sell, 102, 60, ActionAdd))
	h.Drain(16)

	// Execute debits the level.
	h.Enqueue(msgAt(3, orderbook.Sell, 101, 15, ActionExecute))
	h.Drain(16)
	assert.Equal(t, orderbook.Quantity(25), book.BestAskQuantity())

	// Executing the remainder removes the level.
	h.Enqueue(msgAt(4, orderbook.Sell, 101, 25, ActionExecute))
	h.Drain(16)
	assert.Equal(t, orderbook.ToPrice(102), book.BestAsk())

	// Delete removes outright.
	h.Enqueue(msgAt(5, orderbook.Sell, 102, 0, ActionDelete))
	h.Drain(16)
	assert.Equal(t, orderbook.InvalidPrice, book.BestAsk())
	assert.True(t, book.Empty())
}

func TestHandlerGapDetection(t *testing.T) {
	h, _ := newTestHandler()

	type gap struct{ expected, received uint64 }
	var gaps []gap
	h.SetGapCallback(func(e, r uint64) { gaps = append(gaps, gap{e, r}) })

	h.Enqueue(msgAt(1, orderbook.Buy, 100, 10, ActionAdd))
	h.Enqueue(msgAt(2, orderbook.Buy, 99, 10, ActionAdd))
	h.Enqueue(msgAt(5, orderbook.Buy, 98, 10, ActionAdd)) // gap: 3,4 missing
	h.Enqueue(msgAt(6, orderbook.Buy, 97, 10, ActionAdd))
	h.Drain(16)

	require.Len(t, gaps, 1)
	assert.Equal(t, uint64(3), gaps[0].expected)
	assert.Equal(t, uint64(5), gaps[0].received)
	assert.Equal(t, uint64(1), h.Stats().SequenceGaps)
	assert.Equal(t, uint64(6), h.Stats().LastSequence)
}

func TestHandlerBackpressureDrops(t *testing.T) {
	h, _ := newTestHandler() // ring capacity 16 -> 15 usable

	accepted := 0
	for i := uint64(1); i <= 20; i++ {
		if h.Enqueue(msgAt(i, orderbook.Buy, 100, 1, ActionAdd)) {
			accepted++
		}
	}
	assert.Equal(t, 15, accepted)
	assert.Equal(t, uint64(5), h.Stats().Dropped)
	assert.Equal(t, uint64(15), h.Stats().MessagesReceived)
}

func TestHandlerStartStop(t *testing.T) {
	h, book := newTestHandler()
	h.Start()

	for i := uint64(1); i <= 10; i++ {
		for !h.Enqueue(msgAt(i, orderbook.Buy, 100-float64(i), 10, ActionAdd)) {
			time.Sleep(time.Millisecond)
		}
	}
	deadline := time.Now().Add(5 * time.Second)
	for h.Stats().MessagesProcessed < 10 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	h.Stop()
	h.Stop() // idempotent

	assert.Equal(t, 10, book.OrderCount())
}

func TestSimulatorDrivesHandler(t *testing.T) {
	book := orderbook.NewOrderBook(1 << 16)
	h := NewHandler(Config{RingCapacity: 1 << 12, DrainBatch: 256, DetectGaps: true}, book, nil)
	sim := NewSimulator(DefaultSimulatorConfig())

	for i := 0; i < 5000; i++ {
		msg := sim.Next(orderbook.Timestamp(i))
		require.True(t, h.Enqueue(msg))
		h.Drain(256)
	}

	stats := h.Stats()
	assert.Equal(t, uint64(5000), stats.MessagesProcessed)
	assert.Zero(t, stats.SequenceGaps, "simulator sequence is contiguous")
	assert.Greater(t, book.OrderCount(), 0)
}

func TestSimulatorDeterministic(t *testing.T) {
	a := NewSimulator(DefaultSimulatorConfig())
	b := NewSimulator(DefaultSimulatorConfig())
	for i := 0; i < 1000; i++ {
		assert.Equal(t, a.Next(orderbook.Timestamp(i)), b.Next(orderbook.Timestamp(i)))
	}
}
