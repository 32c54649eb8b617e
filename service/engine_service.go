package service

import (
	"go.uber.org/zap"

	"atlas/domain/orderbook"
	"atlas/infra/journal"
)

/*
EngineService is the write entry point for order commands (submit, cancel,
modify, reset). L2 feed updates do not pass through it: the feed handler
applies them to the book directly through the book's mutation API.

Coordination of order commands between:
  - domain (orderbook, matching)
  - infra (journal)
  - jobs (broadcaster, via the journal)

happens here. Like the engine it wraps, it is single-threaded: every call
must come from the one goroutine that owns the book.
*/
type EngineService struct {
	engine  *orderbook.MatchingEngine
	journal *journal.Journal
	log     *zap.Logger

	userTradeCb orderbook.TradeCallback
}

// New wires the engine to its journal. journal may be nil when trades need
// no durable outbox (tests, backtests).
func New(engine *orderbook.MatchingEngine, j *journal.Journal, log *zap.Logger) *EngineService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &EngineService{
		engine:  engine,
		journal: j,
		log:     log,
	}
	engine.SetTradeCallback(s.onTrade)
	return s
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// SubmitOrder validates and matches an incoming order, resting any limit
// residual.
func (s *EngineService) SubmitOrder(id orderbook.OrderID, price orderbook.Price, qty orderbook.Quantity, side orderbook.Side, typ orderbook.OrderType, ts orderbook.Timestamp, participant uint64) orderbook.ExecutionResult {
	return s.engine.SubmitOrder(id, price, qty, side, typ, ts, participant)
}

// SubmitMarketOrder sweeps until the opposite side is exhausted.
func (s *EngineService) SubmitMarketOrder(id orderbook.OrderID, qty orderbook.Quantity, side orderbook.Side, ts orderbook.Timestamp, participant uint64) orderbook.ExecutionResult {
	return s.engine.SubmitMarketOrder(id, qty, side, ts, participant)
}

// CancelOrder cancels a resting order by id.
func (s *EngineService) CancelOrder(id orderbook.OrderID) bool {
	return s.engine.CancelOrder(id)
}

// ModifyOrder cancels and resubmits at the new price and quantity.
func (s *EngineService) ModifyOrder(id orderbook.OrderID, newPrice orderbook.Price, newQty orderbook.Quantity) orderbook.ExecutionResult {
	return s.engine.ModifyOrder(id, newPrice, newQty)
}

// Reset clears the book, trade buffer, and counters.
func (s *EngineService) Reset() {
	s.engine.Reset()
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

func (s *EngineService) GetBBO() orderbook.BBO {
	return s.engine.Book().GetBBO()
}

func (s *EngineService) GetDepth(maxLevels int) (bids, asks []orderbook.DepthLevel) {
	return s.engine.Book().Depth(maxLevels)
}

func (s *EngineService) CalculateVWAP(side orderbook.Side, targetQty orderbook.Quantity) (orderbook.Price, bool) {
	return s.engine.Book().VWAP(side, targetQty)
}

func (s *EngineService) GetTrades() []orderbook.Trade {
	return s.engine.GetTrades()
}

func (s *EngineService) PeekTrades() []orderbook.Trade {
	return s.engine.PeekTrades()
}

// Engine exposes the wrapped engine for stats and advanced queries.
func (s *EngineService) Engine() *orderbook.MatchingEngine {
	return s.engine
}

//
// ──────────────────────────────────────────────────────────
// Callbacks
// ──────────────────────────────────────────────────────────
//

// SetTradeCallback registers an observer invoked after journalling.
func (s *EngineService) SetTradeCallback(cb orderbook.TradeCallback) {
	s.userTradeCb = cb
}

func (s *EngineService) SetBookUpdateCallback(cb orderbook.BookUpdateCallback) {
	s.engine.SetBookUpdateCallback(cb)
}

func (s *EngineService) onTrade(t orderbook.Trade) {
	if s.journal != nil {
		if err := s.journal.Append(t); err != nil {
			s.log.Error("journal append failed",
				zap.Uint64("trade_id", t.TradeID),
				zap.Error(err),
			)
		}
	}
	if s.userTradeCb != nil {
		s.userTradeCb(t)
	}
}
