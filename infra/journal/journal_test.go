package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas/domain/orderbook"
)

func testTrade(id uint64) orderbook.Trade {
	return orderbook.Trade{
		TradeID:       id,
		BuyerOrderID:  100 + id,
		SellerOrderID: 200 + id,
		Price:         orderbook.ToPrice(101.5),
		Quantity:      40,
		Timestamp:     12345,
		AggressorSide: orderbook.Buy,
	}
}

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordCodecRoundTrip(t *testing.T) {
	rec := Record{
		State:       StateSent,
		Retries:     3,
		LastAttempt: 987654321,
		Trade:       testTrade(7),
	}
	got, err := decodeRecord(encodeRecord(rec))
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = decodeRecord([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestAppendAndGet(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Append(testTrade(1)))

	rec, err := j.Get(1)
	require.NoError(t, err)
	assert.Equal(t, StateNew, rec.State)
	assert.Equal(t, testTrade(1), rec.Trade)
}

func TestUpdateState(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Append(testTrade(1)))
	require.NoError(t, j.UpdateState(1, StateSent, 1))

	rec, err := j.Get(1)
	require.NoError(t, err)
	assert.Equal(t, StateSent, rec.State)
	assert.Equal(t, uint32(1), rec.Retries)
	assert.NotZero(t, rec.LastAttempt)
	assert.Equal(t, testTrade(1), rec.Trade, "trade payload survives state changes")
}

func TestScanByState(t *testing.T) {
	j := openTestJournal(t)

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, j.Append(testTrade(i)))
	}
	require.NoError(t, j.UpdateState(2, StateAcked, 0))
	require.NoError(t, j.UpdateState(4, StateSent, 1))

	var newIDs []uint64
	err := j.ScanByState(StateNew, func(rec Record) error {
		newIDs = append(newIDs, rec.Trade.TradeID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3, 5}, newIDs, "scan returns trade-id order")
}

func TestDelete(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Append(testTrade(1)))
	require.NoError(t, j.Delete(1))

	_, err := j.Get(1)
	assert.Error(t, err)
}
