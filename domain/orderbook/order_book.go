package orderbook

import (
	"errors"

	"github.com/google/btree"

	"atlas/infra/memory"
)

const DefaultPoolCapacity = 100000

const btreeDegree = 32

var (
	ErrDuplicateOrderID = errors.New("orderbook: duplicate order id")
	ErrPoolExhausted    = errors.New("orderbook: order pool exhausted")
	ErrOrderNotFound    = errors.New("orderbook: order not found")
)

// OrderBook is a two-sided price-level book for a single symbol. All
// mutation and all reads happen on one owning goroutine; per-symbol sharding
// is the scaling axis, not locks.
type OrderBook struct {
	bids *btree.BTreeG[*PriceLevel] // Min() is the highest price
	asks *btree.BTreeG[*PriceLevel] // Min() is the lowest price

	index map[OrderID]*Order
	pool  *memory.Pool[Order]

	totalBidVolume Quantity
	totalAskVolume Quantity

	bookUpdateCb BookUpdateCallback
}

// NewOrderBook creates an empty book owning a pool of poolCapacity order
// slots.
func NewOrderBook(poolCapacity int) *OrderBook {
	if poolCapacity <= 0 {
		poolCapacity = DefaultPoolCapacity
	}
	return &OrderBook{
		bids: btree.NewG(btreeDegree, func(a, b *PriceLevel) bool {
			return a.price > b.price
		}),
		asks: btree.NewG(btreeDegree, func(a, b *PriceLevel) bool {
			return a.price < b.price
		}),
		index: make(map[OrderID]*Order),
		pool:  memory.NewPool[Order](poolCapacity),
	}
}

// SetBookUpdateCallback registers a callback fired synchronously on the book
// goroutine after every level mutation. Implementers must not block.
func (b *OrderBook) SetBookUpdateCallback(cb BookUpdateCallback) {
	b.bookUpdateCb = cb
}

// AddResting places a new resting order on the book without matching.
// The returned order is owned by the book.
func (b *OrderBook) AddResting(id OrderID, price Price, qty Quantity, side Side, typ OrderType, ts Timestamp, participant uint64) (*Order, error) {
	if _, dup := b.index[id]; dup {
		return nil, ErrDuplicateOrderID
	}
	o := b.pool.Get()
	if o == nil {
		return nil, ErrPoolExhausted
	}
	*o = Order{
		ID:          id,
		Price:       price,
		Quantity:    qty,
		Timestamp:   ts,
		Participant: participant,
		Side:        side,
		Type:        typ,
		Status:      New,
	}

	level := b.getOrCreateLevel(side, price)
	level.Append(o)
	if side == Buy {
		b.totalBidVolume += qty
	} else {
		b.totalAskVolume += qty
	}
	b.index[id] = o

	b.notifyBookUpdate(price, level.TotalQuantity(), side, ts)
	return o, nil
}

// Cancel removes an order by id. Returns false when the id is unknown or the
// order is already terminal.
func (b *OrderBook) Cancel(id OrderID) bool {
	o, ok := b.index[id]
	if !ok || !o.IsActive() {
		return false
	}

	price, side, ts := o.Price, o.Side, o.Timestamp
	remaining := o.Remaining()

	level := o.level
	level.Remove(o)
	if side == Buy {
		b.totalBidVolume -= remaining
	} else {
		b.totalAskVolume -= remaining
	}
	b.removeLevelIfEmpty(side, level)

	o.Status = Cancelled
	delete(b.index, id)
	b.pool.Put(o)

	b.notifyBookUpdate(price, b.levelQuantity(side, price), side, ts)
	return true
}

// Modify is cancel-then-add at the new price and quantity. Time priority is
// forfeited: the order re-enters at the tail of the target level's queue.
func (b *OrderBook) Modify(id OrderID, newPrice Price, newQty Quantity) (*Order, error) {
	o, ok := b.index[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	side, typ, ts, participant := o.Side, o.Type, o.Timestamp, o.Participant
	b.Cancel(id)
	return b.AddResting(id, newPrice, newQty, side, typ, ts, participant)
}

// ExecuteDebit reduces a resting order's remaining quantity without any
// matching, as when a feed reports an execution against it. Returns the
// quantity actually debited. A fully consumed order is removed as filled.
func (b *OrderBook) ExecuteDebit(id OrderID, qty Quantity) (Quantity, bool) {
	o, ok := b.index[id]
	if !ok || !o.IsActive() {
		return 0, false
	}

	price, side, ts := o.Price, o.Side, o.Timestamp
	level := o.level
	debited := o.Fill(qty)
	level.ReduceQuantity(debited)
	if side == Buy {
		b.totalBidVolume -= debited
	} else {
		b.totalAskVolume -= debited
	}

	if o.IsFilled() {
		level.Remove(o)
		b.removeLevelIfEmpty(side, level)
		delete(b.index, id)
		b.pool.Put(o)
	}

	b.notifyBookUpdate(price, b.levelQuantity(side, price), side, ts)
	return debited, true
}

// GetOrder returns the resting order for id, or nil.
func (b *OrderBook) GetOrder(id OrderID) *Order {
	return b.index[id]
}

// ---- Queries ----

func (b *OrderBook) BestBid() Price {
	if lvl, ok := b.bids.Min(); ok {
		return lvl.price
	}
	return InvalidPrice
}

func (b *OrderBook) BestAsk() Price {
	if lvl, ok := b.asks.Min(); ok {
		return lvl.price
	}
	return InvalidPrice
}

func (b *OrderBook) BestBidQuantity() Quantity {
	if lvl, ok := b.bids.Min(); ok {
		return lvl.totalQty
	}
	return 0
}

func (b *OrderBook) BestAskQuantity() Quantity {
	if lvl, ok := b.asks.Min(); ok {
		return lvl.totalQty
	}
	return 0
}

func (b *OrderBook) GetBBO() BBO {
	bbo := BBO{BidPrice: InvalidPrice, AskPrice: InvalidPrice}
	if lvl, ok := b.bids.Min(); ok {
		bbo.BidPrice = lvl.price
		bbo.BidQuantity = lvl.totalQty
	}
	if lvl, ok := b.asks.Min(); ok {
		bbo.AskPrice = lvl.price
		bbo.AskQuantity = lvl.totalQty
	}
	return bbo
}

func (b *OrderBook) MidPrice() Price { return b.GetBBO().MidPrice() }
func (b *OrderBook) Spread() Price   { return b.GetBBO().Spread() }

// Depth returns up to maxLevels aggregated levels per side, best first.
// maxLevels <= 0 means all levels.
func (b *OrderBook) Depth(maxLevels int) (bids, asks []DepthLevel) {
	bids = walkDepth(b.bids, maxLevels)
	asks = walkDepth(b.asks, maxLevels)
	return bids, asks
}

func walkDepth(side *btree.BTreeG[*PriceLevel], maxLevels int) []DepthLevel {
	n := side.Len()
	if maxLevels > 0 && maxLevels < n {
		n = maxLevels
	}
	out := make([]DepthLevel, 0, n)
	side.Ascend(func(lvl *PriceLevel) bool {
		out = append(out, DepthLevel{
			Price:      lvl.price,
			Quantity:   lvl.totalQty,
			OrderCount: lvl.orderCount,
		})
		return maxLevels <= 0 || len(out) < maxLevels
	})
	return out
}

func (b *OrderBook) TotalBidVolume() Quantity { return b.totalBidVolume }
func (b *OrderBook) TotalAskVolume() Quantity { return b.totalAskVolume }

func (b *OrderBook) LevelCount(side Side) int {
	if side == Buy {
		return b.bids.Len()
	}
	return b.asks.Len()
}

func (b *OrderBook) OrderCount() int { return len(b.index) }
func (b *OrderBook) Empty() bool     { return len(b.index) == 0 }

// WouldCross reports whether an order at price on side would match
// immediately against the opposite side.
func (b *OrderBook) WouldCross(price Price, side Side) bool {
	if side == Buy {
		ask := b.BestAsk()
		return ask != InvalidPrice && price >= ask
	}
	bid := b.BestBid()
	return bid != InvalidPrice && price <= bid
}

// VWAP walks the opposite side best-first (asks ascending for a buy, bids
// descending for a sell) and returns the volume-weighted average price for
// filling up to targetQty. Partial availability still yields a VWAP over
// what was there; ok is false only when nothing would fill.
func (b *OrderBook) VWAP(side Side, targetQty Quantity) (Price, bool) {
	opposite := b.asks
	if side == Sell {
		opposite = b.bids
	}

	remaining := targetQty
	var weightedSum int64
	var totalFilled Quantity

	opposite.Ascend(func(lvl *PriceLevel) bool {
		fill := min(lvl.totalQty, remaining)
		weightedSum += lvl.price * int64(fill)
		totalFilled += fill
		remaining -= fill
		return remaining > 0
	})

	if totalFilled == 0 {
		return 0, false
	}
	return weightedSum / int64(totalFilled), true
}

// Clear drops every order and returns all slots to the pool.
func (b *OrderBook) Clear() {
	for id, o := range b.index {
		delete(b.index, id)
		b.pool.Put(o)
	}
	b.bids.Clear(false)
	b.asks.Clear(false)
	b.totalBidVolume = 0
	b.totalAskVolume = 0
}

// Pool exposes the slot pool for conservation checks.
func (b *OrderBook) Pool() *memory.Pool[Order] { return b.pool }

// ---- internals shared with the matching engine ----

func (b *OrderBook) sideTree(side Side) *btree.BTreeG[*PriceLevel] {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

func (b *OrderBook) bestLevel(side Side) *PriceLevel {
	if lvl, ok := b.sideTree(side).Min(); ok {
		return lvl
	}
	return nil
}

func (b *OrderBook) getOrCreateLevel(side Side, price Price) *PriceLevel {
	tree := b.sideTree(side)
	if lvl, ok := tree.Get(&PriceLevel{price: price}); ok {
		return lvl
	}
	lvl := NewPriceLevel(price)
	tree.ReplaceOrInsert(lvl)
	return lvl
}

func (b *OrderBook) removeLevelIfEmpty(side Side, lvl *PriceLevel) {
	if lvl.Empty() {
		b.sideTree(side).Delete(lvl)
	}
}

func (b *OrderBook) levelQuantity(side Side, price Price) Quantity {
	if lvl, ok := b.sideTree(side).Get(&PriceLevel{price: price}); ok {
		return lvl.totalQty
	}
	return 0
}

// debitVolume adjusts the aggregate side volume after a fill.
func (b *OrderBook) debitVolume(side Side, qty Quantity) {
	if side == Buy {
		b.totalBidVolume -= qty
	} else {
		b.totalAskVolume -= qty
	}
}

// unlinkFilled removes a fully consumed resting order and recycles its slot.
func (b *OrderBook) unlinkFilled(o *Order) {
	level := o.level
	side := o.Side
	level.Remove(o)
	b.removeLevelIfEmpty(side, level)
	delete(b.index, o.ID)
	b.pool.Put(o)
}

func (b *OrderBook) notifyBookUpdate(price Price, qty Quantity, side Side, ts Timestamp) {
	if b.bookUpdateCb != nil {
		b.bookUpdateCb(BookUpdate{Price: price, Quantity: qty, Side: side, Timestamp: ts})
	}
}
