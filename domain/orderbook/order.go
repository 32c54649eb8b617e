package orderbook

// Order is a pooled, cache-line padded order record. The prev/next links
// thread it into its price level's FIFO; level points back to that level so
// removal by id is O(1). Both are owned by the book and never escape it.
type Order struct {
	ID          OrderID
	Price       Price
	Quantity    Quantity
	Filled      Quantity
	Timestamp   Timestamp
	Participant uint64
	Side        Side
	Type        OrderType
	Status      OrderStatus

	prev  *Order
	next  *Order
	level *PriceLevel

	_ [48]byte // pad the record to two cache lines
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() Quantity {
	return o.Quantity - o.Filled
}

func (o *Order) IsFilled() bool {
	return o.Filled >= o.Quantity
}

// IsActive reports whether the order can still be matched or cancelled.
func (o *Order) IsActive() bool {
	return o.Status == New || o.Status == PartiallyFilled
}

func (o *Order) Next() *Order { return o.next }
func (o *Order) Prev() *Order { return o.prev }

// Fill applies up to qty against the order and returns the quantity actually
// filled. Filled never exceeds Quantity.
func (o *Order) Fill(qty Quantity) Quantity {
	actual := min(qty, o.Remaining())
	o.Filled += actual
	if o.IsFilled() {
		o.Status = Filled
	} else if o.Filled > 0 {
		o.Status = PartiallyFilled
	}
	return actual
}

// Trade is an immutable match record. Price is always the passive order's
// resting price.
type Trade struct {
	TradeID       uint64
	BuyerOrderID  OrderID
	SellerOrderID OrderID
	Price         Price
	Quantity      Quantity
	Timestamp     Timestamp
	AggressorSide Side
}

// BookUpdate reports the new total quantity at a price level.
// Quantity 0 means the level was removed.
type BookUpdate struct {
	Price     Price
	Quantity  Quantity
	Side      Side
	Timestamp Timestamp
}

// ExecutionResult is returned synchronously from Submit/Modify.
type ExecutionResult struct {
	OrderID      OrderID
	Status       OrderStatus
	Filled       Quantity
	AvgFillPrice Price // VWAP of fills, fixed-point; 0 if no fills
	TradeCount   uint32
}

func (r ExecutionResult) IsAccepted() bool {
	return r.Status != Rejected
}

func (r ExecutionResult) IsFilled() bool {
	return r.Status == Filled
}

// BBO is a best-bid-and-offer snapshot.
type BBO struct {
	BidPrice    Price
	BidQuantity Quantity
	AskPrice    Price
	AskQuantity Quantity
}

func (b BBO) HasBid() bool  { return b.BidPrice != InvalidPrice }
func (b BBO) HasAsk() bool  { return b.AskPrice != InvalidPrice }
func (b BBO) HasBoth() bool { return b.HasBid() && b.HasAsk() }

func (b BBO) Spread() Price {
	if !b.HasBoth() {
		return InvalidPrice
	}
	return b.AskPrice - b.BidPrice
}

func (b BBO) MidPrice() Price {
	if !b.HasBoth() {
		return InvalidPrice
	}
	return (b.BidPrice + b.AskPrice) / 2
}

// DepthLevel is one aggregated entry of a depth snapshot.
type DepthLevel struct {
	Price      Price
	Quantity   Quantity
	OrderCount int
}

type TradeCallback func(Trade)
type BookUpdateCallback func(BookUpdate)
