package feed

import (
	"math/rand"

	"atlas/domain/orderbook"
	"atlas/infra/sequence"
)

// SimulatorConfig shapes the synthetic L2 stream.
type SimulatorConfig struct {
	SymbolID      uint32
	BasePrice     float64 // starting mid, decimal
	TickSize      float64
	SpreadTicks   float64 // mean spread in ticks
	Volatility    float64 // per-message relative std dev of the mid walk
	CancelRatio   float64 // fraction of messages that delete a level
	ExecuteRatio  float64 // fraction that execute against a level
	MeanOrderSize float64
	DepthTicks    int // levels are placed at most this many ticks beyond the half spread
	Seed          int64
}

func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		SymbolID:      1,
		BasePrice:     100.0,
		TickSize:      0.01,
		SpreadTicks:   2.0,
		Volatility:    1e-5,
		CancelRatio:   0.3,
		ExecuteRatio:  0.1,
		MeanOrderSize: 100.0,
		DepthTicks:    20,
		Seed:          42,
	}
}

// Simulator produces a deterministic random-walk L2 stream for driving the
// handler without a live feed. Single-goroutine use, matching the SPSC
// producer role.
type Simulator struct {
	cfg SimulatorConfig
	rng *rand.Rand
	seq *sequence.Sequencer
	mid float64

	live []levelKey // levels announced and not yet deleted
}

func NewSimulator(cfg SimulatorConfig) *Simulator {
	return &Simulator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		seq: sequence.New(0),
		mid: cfg.BasePrice,
	}
}

// Next generates one message stamped with ts.
func (s *Simulator) Next(ts orderbook.Timestamp) L2Message {
	s.mid += s.mid * s.rng.NormFloat64() * s.cfg.Volatility
	if s.mid < s.cfg.TickSize {
		s.mid = s.cfg.TickSize
	}

	msg := L2Message{
		Timestamp: ts,
		SymbolID:  s.cfg.SymbolID,
		Sequence:  s.seq.Next(),
	}

	roll := s.rng.Float64()
	switch {
	case roll < s.cfg.CancelRatio && len(s.live) > 8:
		k := s.pickLive()
		msg.Side = k.side
		msg.Price = k.price
		msg.Action = ActionDelete

	case roll < s.cfg.CancelRatio+s.cfg.ExecuteRatio && len(s.live) > 0:
		k := s.live[s.rng.Intn(len(s.live))]
		msg.Side = k.side
		msg.Price = k.price
		msg.Action = ActionExecute
		msg.Quantity = s.orderSize()

	default:
		msg.Action = ActionAdd
		msg.Quantity = s.orderSize()
		msg.Side = orderbook.Buy
		if s.rng.Float64() < 0.5 {
			msg.Side = orderbook.Sell
		}
		msg.Price = s.quotePrice(msg.Side)
		s.live = append(s.live, levelKey{side: msg.Side, price: msg.Price})
	}
	return msg
}

func (s *Simulator) pickLive() levelKey {
	i := s.rng.Intn(len(s.live))
	k := s.live[i]
	s.live[i] = s.live[len(s.live)-1]
	s.live = s.live[:len(s.live)-1]
	return k
}

func (s *Simulator) orderSize() orderbook.Quantity {
	size := s.rng.ExpFloat64() * s.cfg.MeanOrderSize
	if size < 1 {
		size = 1
	}
	return orderbook.Quantity(size)
}

// quotePrice places the level a few ticks away from the mid on the passive
// side, deeper with exponentially decaying probability.
func (s *Simulator) quotePrice(side orderbook.Side) orderbook.Price {
	halfSpread := s.cfg.SpreadTicks * s.cfg.TickSize / 2
	depth := s.rng.ExpFloat64() * float64(s.cfg.DepthTicks) / 4
	if depth > float64(s.cfg.DepthTicks) {
		depth = float64(s.cfg.DepthTicks)
	}
	offset := halfSpread + depth*s.cfg.TickSize
	if side == orderbook.Buy {
		return orderbook.ToPrice(s.mid - offset)
	}
	return orderbook.ToPrice(s.mid + offset)
}
