package orderbook

// STPPolicy selects what happens when an incoming order would trade against
// the same participant's resting order.
type STPPolicy uint8

const (
	// STPCancelResting removes the resting order without a trade and keeps
	// matching. This is the baseline policy.
	STPCancelResting STPPolicy = iota
	// STPCancelAggressor cancels the incoming order's remainder instead.
	STPCancelAggressor
)

// Config controls per-engine matching behaviour.
type Config struct {
	SelfTradePrevention bool
	STPPolicy           STPPolicy
	AllowMarketOrders   bool
	AllowIOCOrders      bool
	AllowFOKOrders      bool
	MaxOrderQuantity    Quantity
}

func DefaultConfig() Config {
	return Config{
		SelfTradePrevention: true,
		STPPolicy:           STPCancelResting,
		AllowMarketOrders:   true,
		AllowIOCOrders:      true,
		AllowFOKOrders:      true,
		MaxOrderQuantity:    1_000_000,
	}
}

// MatchingEngine applies order-type semantics and price-time priority on top
// of a single book. Like the book it is single-threaded: one goroutine owns
// all submissions and reads.
type MatchingEngine struct {
	book *OrderBook
	cfg  Config

	trades  []Trade
	tradeCb TradeCallback

	totalTrades    uint64
	totalVolume    uint64
	totalSubmitted uint64
	totalCancelled uint64
	nextTradeID    uint64
}

func NewMatchingEngine(cfg Config, poolCapacity int) *MatchingEngine {
	return &MatchingEngine{
		book:        NewOrderBook(poolCapacity),
		cfg:         cfg,
		nextTradeID: 1,
	}
}

// Book exposes the underlying order book for queries.
func (e *MatchingEngine) Book() *OrderBook { return e.book }

// SetTradeCallback registers a callback invoked synchronously for every
// trade, before Submit returns. Implementers must not block.
func (e *MatchingEngine) SetTradeCallback(cb TradeCallback) { e.tradeCb = cb }

// SetBookUpdateCallback registers the book-update callback on the book.
func (e *MatchingEngine) SetBookUpdateCallback(cb BookUpdateCallback) {
	e.book.SetBookUpdateCallback(cb)
}

// SubmitOrder validates, matches, and rests (or cancels) an incoming order.
// All failure modes are statuses on the result, never panics.
func (e *MatchingEngine) SubmitOrder(id OrderID, price Price, qty Quantity, side Side, typ OrderType, ts Timestamp, participant uint64) ExecutionResult {
	e.totalSubmitted++

	result := ExecutionResult{OrderID: id, Status: Rejected}

	if !e.validate(id, price, qty, typ) {
		return result
	}

	// FOK is two-phase: a dry run first, so an infeasible order leaves no
	// trace on the book.
	if typ == FOK {
		if e.availableQuantity(side, price, qty, participant) < qty {
			result.Status = Cancelled
			return result
		}
	}

	filled, cost, tradeCount, stpAborted := e.sweep(id, price, qty, side, typ, ts, participant)

	result.Filled = filled
	result.TradeCount = tradeCount
	if filled > 0 {
		result.AvgFillPrice = cost / int64(filled)
	}

	remaining := qty - filled
	switch {
	case remaining == 0:
		result.Status = Filled
	case stpAborted:
		// Cancel-aggressor policy: the remainder dies with the prevention.
		if filled > 0 {
			result.Status = PartiallyFilled
		} else {
			result.Status = Cancelled
		}
	case typ == Limit:
		if err := e.restResidual(id, price, qty, filled, side, typ, ts, participant); err != nil {
			result.Status = Rejected
			return result
		}
		if filled > 0 {
			result.Status = PartiallyFilled
		} else {
			result.Status = New
		}
	default: // Market, IOC; FOK fills fully by construction
		if filled > 0 {
			result.Status = PartiallyFilled
		} else {
			result.Status = Cancelled
		}
	}

	return result
}

// SubmitMarketOrder submits an order that sweeps until the opposite side is
// empty; any residual is cancelled.
func (e *MatchingEngine) SubmitMarketOrder(id OrderID, qty Quantity, side Side, ts Timestamp, participant uint64) ExecutionResult {
	return e.SubmitOrder(id, 0, qty, side, Market, ts, participant)
}

// CancelOrder cancels a resting order. Returns false when the id is unknown
// or terminal.
func (e *MatchingEngine) CancelOrder(id OrderID) bool {
	cancelled := e.book.Cancel(id)
	if cancelled {
		e.totalCancelled++
	}
	return cancelled
}

// ModifyOrder is cancel-then-resubmit at the new price and quantity. The
// replacement loses time priority and may match on the way in.
func (e *MatchingEngine) ModifyOrder(id OrderID, newPrice Price, newQty Quantity) ExecutionResult {
	o := e.book.GetOrder(id)
	if o == nil {
		return ExecutionResult{OrderID: id, Status: Rejected}
	}
	side, typ, ts, participant := o.Side, o.Type, o.Timestamp, o.Participant
	e.CancelOrder(id)
	return e.SubmitOrder(id, newPrice, newQty, side, typ, ts, participant)
}

// GetTrades drains and returns the trade buffer.
func (e *MatchingEngine) GetTrades() []Trade {
	out := e.trades
	e.trades = nil
	return out
}

// PeekTrades returns the buffered trades without draining. The slice is
// owned by the engine; callers must not mutate it.
func (e *MatchingEngine) PeekTrades() []Trade { return e.trades }

func (e *MatchingEngine) TotalTrades() uint64          { return e.totalTrades }
func (e *MatchingEngine) TotalVolume() uint64          { return e.totalVolume }
func (e *MatchingEngine) TotalOrdersSubmitted() uint64 { return e.totalSubmitted }
func (e *MatchingEngine) TotalOrdersCancelled() uint64 { return e.totalCancelled }

// Reset clears the book, the trade buffer, and all counters. Every pool slot
// is returned.
func (e *MatchingEngine) Reset() {
	e.book.Clear()
	e.trades = nil
	e.totalTrades = 0
	e.totalVolume = 0
	e.totalSubmitted = 0
	e.totalCancelled = 0
	e.nextTradeID = 1
}

// ---- internals ----

func (e *MatchingEngine) validate(id OrderID, price Price, qty Quantity, typ OrderType) bool {
	if id == InvalidOrderID || qty == 0 || qty > e.cfg.MaxOrderQuantity {
		return false
	}
	switch typ {
	case Market:
		if !e.cfg.AllowMarketOrders {
			return false
		}
	case IOC:
		if !e.cfg.AllowIOCOrders {
			return false
		}
	case FOK:
		if !e.cfg.AllowFOKOrders {
			return false
		}
	}
	// Every priced type sweeps by its limit price.
	if typ != Market && price <= 0 {
		return false
	}
	// A live id cannot be resubmitted; matching before rejecting would
	// corrupt the id index.
	if e.book.GetOrder(id) != nil {
		return false
	}
	return true
}

func (e *MatchingEngine) crosses(price Price, best Price, side Side) bool {
	if side == Buy {
		return PricesCross(price, best)
	}
	return PricesCross(best, price)
}

// sweep walks the head of the opposite-side FIFO one resting order at a
// time, emitting a trade per fill. Returns the cumulative fill, the
// price-weighted cost, the trade count, and whether a cancel-aggressor
// prevention aborted the walk.
func (e *MatchingEngine) sweep(id OrderID, price Price, qty Quantity, side Side, typ OrderType, ts Timestamp, participant uint64) (Quantity, int64, uint32, bool) {
	opposite := side.Opposite()
	remaining := qty
	var filled Quantity
	var cost int64
	var tradeCount uint32

	for remaining > 0 {
		lvl := e.book.bestLevel(opposite)
		if lvl == nil {
			break
		}
		if typ != Market && !e.crosses(price, lvl.price, side) {
			break
		}

		passive := lvl.Front()

		if e.cfg.SelfTradePrevention && participant != 0 && passive.Participant == participant {
			if e.cfg.STPPolicy == STPCancelAggressor {
				return filled, cost, tradeCount, true
			}
			e.cancelResting(passive)
			continue
		}

		q := min(remaining, passive.Remaining())
		tradePrice := passive.Price

		trade := Trade{
			TradeID:       e.nextTradeID,
			Price:         tradePrice,
			Quantity:      q,
			Timestamp:     ts,
			AggressorSide: side,
		}
		if side == Buy {
			trade.BuyerOrderID = id
			trade.SellerOrderID = passive.ID
		} else {
			trade.BuyerOrderID = passive.ID
			trade.SellerOrderID = id
		}
		e.nextTradeID++
		e.emitTrade(trade)

		passive.Fill(q)
		lvl.ReduceQuantity(q)
		e.book.debitVolume(opposite, q)

		remaining -= q
		filled += q
		cost += tradePrice * int64(q)
		tradeCount++
		e.totalTrades++
		e.totalVolume += q

		levelQty := lvl.totalQty
		if passive.IsFilled() {
			e.book.unlinkFilled(passive)
		}
		e.book.notifyBookUpdate(tradePrice, levelQty, opposite, ts)
	}

	return filled, cost, tradeCount, false
}

// availableQuantity is the FOK dry run: how much could fill at acceptable
// prices, honouring the same self-trade skips the real sweep would take.
func (e *MatchingEngine) availableQuantity(side Side, price Price, target Quantity, participant uint64) Quantity {
	opposite := side.Opposite()
	var available Quantity

	e.book.sideTree(opposite).Ascend(func(lvl *PriceLevel) bool {
		if !e.crosses(price, lvl.price, side) {
			return false
		}
		for o := lvl.head; o != nil; o = o.next {
			if e.cfg.SelfTradePrevention && participant != 0 && o.Participant == participant {
				if e.cfg.STPPolicy == STPCancelAggressor {
					// The real sweep would abort here.
					return false
				}
				continue // the real sweep would cancel it without trading
			}
			available += o.Remaining()
			if available >= target {
				return false
			}
		}
		return true
	})
	return available
}

// cancelResting removes a passive order under the cancel-resting prevention
// policy: no trade, slot recycled, level erased if emptied.
func (e *MatchingEngine) cancelResting(o *Order) {
	price, side, ts := o.Price, o.Side, o.Timestamp
	remaining := o.Remaining()
	lvl := o.level
	lvl.Remove(o)
	e.book.debitVolume(side, remaining)
	e.book.removeLevelIfEmpty(side, lvl)
	o.Status = Cancelled
	delete(e.book.index, o.ID)
	e.book.pool.Put(o)
	e.totalCancelled++
	e.book.notifyBookUpdate(price, e.book.levelQuantity(side, price), side, ts)
}

// restResidual places the unfilled remainder on the book, carrying the
// cumulative fill so the resting record keeps its arithmetic.
func (e *MatchingEngine) restResidual(id OrderID, price Price, qty, filled Quantity, side Side, typ OrderType, ts Timestamp, participant uint64) error {
	o := e.book.pool.Get()
	if o == nil {
		return ErrPoolExhausted
	}
	status := New
	if filled > 0 {
		status = PartiallyFilled
	}
	*o = Order{
		ID:          id,
		Price:       price,
		Quantity:    qty,
		Filled:      filled,
		Timestamp:   ts,
		Participant: participant,
		Side:        side,
		Type:        typ,
		Status:      status,
	}

	lvl := e.book.getOrCreateLevel(side, price)
	lvl.Append(o)
	if side == Buy {
		e.book.totalBidVolume += o.Remaining()
	} else {
		e.book.totalAskVolume += o.Remaining()
	}
	e.book.index[id] = o
	e.book.notifyBookUpdate(price, lvl.totalQty, side, ts)
	return nil
}

func (e *MatchingEngine) emitTrade(t Trade) {
	e.trades = append(e.trades, t)
	if e.tradeCb != nil {
		e.tradeCb(t)
	}
}
