package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas/domain/orderbook"
	"atlas/infra/journal"
)

func newTestService(t *testing.T, withJournal bool) (*EngineService, *journal.Journal) {
	t.Helper()
	engine := orderbook.NewMatchingEngine(orderbook.DefaultConfig(), 1024)

	var j *journal.Journal
	if withJournal {
		var err error
		j, err = journal.Open(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { j.Close() })
	}
	return New(engine, j, nil), j
}

func TestSubmitJournalsTrades(t *testing.T) {
	svc, j := newTestService(t, true)

	svc.SubmitOrder(1, orderbook.ToPrice(100), 50, orderbook.Sell, orderbook.Limit, 1, 10)
	res := svc.SubmitOrder(2, orderbook.ToPrice(100), 50, orderbook.Buy, orderbook.Limit, 2, 20)
	require.Equal(t, orderbook.Filled, res.Status)

	rec, err := j.Get(1)
	require.NoError(t, err)
	assert.Equal(t, journal.StateNew, rec.State)
	assert.Equal(t, orderbook.Quantity(50), rec.Trade.Quantity)
	assert.Equal(t, orderbook.OrderID(2), rec.Trade.BuyerOrderID)
}

func TestUserCallbackAfterJournal(t *testing.T) {
	svc, j := newTestService(t, true)

	var seen []orderbook.Trade
	journalled := false
	svc.SetTradeCallback(func(tr orderbook.Trade) {
		seen = append(seen, tr)
		_, err := j.Get(tr.TradeID)
		journalled = err == nil
	})

	svc.SubmitOrder(1, orderbook.ToPrice(100), 10, orderbook.Sell, orderbook.Limit, 1, 10)
	svc.SubmitMarketOrder(2, 10, orderbook.Buy, 2, 20)

	require.Len(t, seen, 1)
	assert.Equal(t, orderbook.Quantity(10), seen[0].Quantity)
	assert.True(t, journalled, "trade is journalled before the user callback runs")
}

func TestQueriesPassThrough(t *testing.T) {
	svc, _ := newTestService(t, false)

	svc.SubmitOrder(1, orderbook.ToPrice(100), 50, orderbook.Buy, orderbook.Limit, 1, 0)
	svc.SubmitOrder(2, orderbook.ToPrice(101), 30, orderbook.Sell, orderbook.Limit, 2, 0)

	bbo := svc.GetBBO()
	assert.Equal(t, orderbook.ToPrice(100), bbo.BidPrice)
	assert.Equal(t, orderbook.ToPrice(101), bbo.AskPrice)

	bids, asks := svc.GetDepth(10)
	require.Len(t, bids, 1)
	require.Len(t, asks, 1)

	vwap, ok := svc.CalculateVWAP(orderbook.Buy, 30)
	require.True(t, ok)
	assert.Equal(t, int64(orderbook.ToPrice(101)), vwap)

	assert.True(t, svc.CancelOrder(1))
	assert.False(t, svc.CancelOrder(1))

	res := svc.ModifyOrder(2, orderbook.ToPrice(102), 40)
	assert.Equal(t, orderbook.New, res.Status)

	svc.Reset()
	assert.True(t, svc.Engine().Book().Empty())
	assert.Empty(t, svc.PeekTrades())
}
