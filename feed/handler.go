package feed

import (
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"atlas/domain/orderbook"
	"atlas/infra/ring"
)

// GapCallback reports a sequence discontinuity.
type GapCallback func(expected, received uint64)

// L2Callback observes every processed message.
type L2Callback func(L2Message)

// Config controls the handler's ring and drain loop.
type Config struct {
	RingCapacity uint64
	DrainBatch   int
	DetectGaps   bool
}

func DefaultConfig() Config {
	return Config{
		RingCapacity: 1 << 16,
		DrainBatch:   256,
		DetectGaps:   true,
	}
}

// Stats are updated with atomics so any goroutine may snapshot them while
// the handler runs.
type Stats struct {
	MessagesReceived  uint64
	MessagesProcessed uint64
	SequenceGaps      uint64
	Dropped           uint64
	LastSequence      uint64
}

// Handler is the L2 feed adapter. The producer side calls Enqueue; the
// consumer goroutine drains the ring and drives the book through its
// mutation API only. Each (side, price) level is mirrored by one synthetic
// resting order, so Modify/Delete/Execute resolve without order ids on the
// wire.
type Handler struct {
	ring *ring.SPSC[L2Message]
	book *orderbook.OrderBook
	cfg  Config
	log  *zap.Logger

	gapCb GapCallback
	l2Cb  L2Callback

	// consumer-side state
	expectedSeq uint64
	levels      map[levelKey]orderbook.OrderID
	nextID      orderbook.OrderID

	stopped atomic.Bool
	done    chan struct{}

	received  atomic.Uint64
	processed atomic.Uint64
	gaps      atomic.Uint64
	dropped   atomic.Uint64
	lastSeq   atomic.Uint64
}

type levelKey struct {
	side  orderbook.Side
	price orderbook.Price
}

func NewHandler(cfg Config, book *orderbook.OrderBook, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RingCapacity == 0 {
		cfg.RingCapacity = DefaultConfig().RingCapacity
	}
	if cfg.DrainBatch <= 0 {
		cfg.DrainBatch = DefaultConfig().DrainBatch
	}
	return &Handler{
		ring:   ring.NewSPSC[L2Message](cfg.RingCapacity),
		book:   book,
		cfg:    cfg,
		log:    log,
		levels: make(map[levelKey]orderbook.OrderID),
		nextID: 1,
		done:   make(chan struct{}),
	}
}

func (h *Handler) SetGapCallback(cb GapCallback) { h.gapCb = cb }
func (h *Handler) SetL2Callback(cb L2Callback)   { h.l2Cb = cb }

// Enqueue hands a message to the book goroutine. Returns false when the ring
// is full; the producer retries or drops and the drop is counted either way.
func (h *Handler) Enqueue(msg L2Message) bool {
	if !h.ring.TryPush(msg) {
		h.dropped.Add(1)
		return false
	}
	h.received.Add(1)
	return true
}

// Start launches the consumer loop on its own goroutine.
func (h *Handler) Start() {
	go h.Run()
}

// Run drains the ring until Stop. When a pass finds nothing it yields the
// scheduler instead of sleeping.
func (h *Handler) Run() {
	defer close(h.done)
	for !h.stopped.Load() {
		if h.Drain(h.cfg.DrainBatch) == 0 {
			runtime.Gosched()
		}
	}
}

// Stop flags the consumer loop and waits for it to exit.
func (h *Handler) Stop() {
	if h.stopped.Swap(true) {
		return
	}
	<-h.done
}

// Drain pops and processes up to max messages. Callable directly when the
// caller owns the consumer thread.
func (h *Handler) Drain(max int) int {
	var msg L2Message
	n := 0
	for n < max && h.ring.TryPop(&msg) {
		h.process(msg)
		n++
	}
	if n > 0 {
		h.processed.Add(uint64(n))
	}
	return n
}

// Stats snapshots the counters.
func (h *Handler) Stats() Stats {
	return Stats{
		MessagesReceived:  h.received.Load(),
		MessagesProcessed: h.processed.Load(),
		SequenceGaps:      h.gaps.Load(),
		Dropped:           h.dropped.Load(),
		LastSequence:      h.lastSeq.Load(),
	}
}

func (h *Handler) process(msg L2Message) {
	if h.cfg.DetectGaps {
		h.checkSequence(msg.Sequence)
	}
	h.lastSeq.Store(msg.Sequence)

	if h.l2Cb != nil {
		h.l2Cb(msg)
	}
	h.apply(msg)
}

func (h *Handler) checkSequence(seq uint64) {
	if h.expectedSeq != 0 && seq != h.expectedSeq {
		h.gaps.Add(1)
		h.log.Warn("sequence gap",
			zap.Uint64("expected", h.expectedSeq),
			zap.Uint64("received", seq),
		)
		if h.gapCb != nil {
			h.gapCb(h.expectedSeq, seq)
		}
	}
	h.expectedSeq = seq + 1
}

// apply mirrors the L2 action onto the book. One synthetic order per level:
// Add accretes into it, Modify sets it, Delete cancels it, Execute debits it.
func (h *Handler) apply(msg L2Message) {
	key := levelKey{side: msg.Side, price: msg.Price}
	id, exists := h.levels[key]

	switch msg.Action {
	case ActionAdd:
		if exists {
			if o := h.book.GetOrder(id); o != nil {
				_, _ = h.book.Modify(id, msg.Price, o.Remaining()+msg.Quantity)
				return
			}
			delete(h.levels, key)
		}
		h.addLevel(key, msg)

	case ActionModify:
		if msg.Quantity == 0 {
			if exists {
				h.book.Cancel(id)
				delete(h.levels, key)
			}
			return
		}
		if exists {
			_, _ = h.book.Modify(id, msg.Price, msg.Quantity)
			return
		}
		h.addLevel(key, msg)

	case ActionDelete:
		if exists {
			h.book.Cancel(id)
			delete(h.levels, key)
		}

	case ActionExecute:
		if !exists {
			return
		}
		h.book.ExecuteDebit(id, msg.Quantity)
		if h.book.GetOrder(id) == nil {
			delete(h.levels, key)
		}
	}
}

func (h *Handler) addLevel(key levelKey, msg L2Message) {
	if msg.Quantity == 0 {
		return
	}
	id := h.nextID
	h.nextID++
	_, err := h.book.AddResting(id, msg.Price, msg.Quantity, msg.Side, orderbook.Limit, msg.Timestamp, 0)
	if err != nil {
		h.log.Error("feed add failed",
			zap.Int64("price", msg.Price),
			zap.Uint64("qty", msg.Quantity),
			zap.Error(err),
		)
		return
	}
	h.levels[key] = id
}
