package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jonathan-Vandenberg/arbot/internal/domain"
)

func lvl(price, qty string) domain.PriceLevel {
	return domain.PriceLevel{Price: price, Quantity: qty}
}

func TestApplySnapshotSortsAndTruncates(t *testing.T) {
	b := New("binance", "BTCUSDT", 3)

	err := b.ApplySnapshot(
		[]domain.PriceLevel{lvl("100", "1"), lvl("102", "2"), lvl("101", "3"), lvl("99", "4")},
		[]domain.PriceLevel{lvl("105", "1"), lvl("103", "2"), lvl("104", "3"), lvl("106", "4")},
		1000, 7,
	)
	require.NoError(t, err)

	snap := b.Snapshot()
	assert.Equal(t, []domain.PriceLevel{lvl("102", "2"), lvl("101", "3"), lvl("100", "1")}, snap.Bids)
	assert.Equal(t, []domain.PriceLevel{lvl("103", "2"), lvl("104", "3"), lvl("105", "1")}, snap.Asks)
	assert.Equal(t, int64(1000), snap.TimestampMs)
	assert.Equal(t, int64(7), snap.SeqID)
}

func TestApplySnapshotDropsZeroQuantityAndDuplicates(t *testing.T) {
	b := New("binance", "BTCUSDT", 10)

	err := b.ApplySnapshot(
		[]domain.PriceLevel{lvl("100", "1"), lvl("100", "9"), lvl("98", "0")},
		[]domain.PriceLevel{lvl("101", "0.5")},
		1, 0,
	)
	require.NoError(t, err)

	snap := b.Snapshot()
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, lvl("100", "1"), snap.Bids[0])
}

func TestApplyDeltaInsertUpdateRemove(t *testing.T) {
	b := New("binance", "BTCUSDT", 10)
	require.NoError(t, b.ApplySnapshot(
		[]domain.PriceLevel{lvl("100", "1"), lvl("99", "2")},
		[]domain.PriceLevel{lvl("101", "1"), lvl("102", "2")},
		1, 0,
	))

	// Insert a new best bid, update an ask, remove a bid.
	err := b.ApplyDelta(
		[]domain.PriceLevel{lvl("100.5", "3"), lvl("99", "0")},
		[]domain.PriceLevel{lvl("101", "9")},
		2, 0,
	)
	require.NoError(t, err)

	snap := b.Snapshot()
	assert.Equal(t, []domain.PriceLevel{lvl("100.5", "3"), lvl("100", "1")}, snap.Bids)
	assert.Equal(t, []domain.PriceLevel{lvl("101", "9"), lvl("102", "2")}, snap.Asks)
}

func TestApplyDeltaIsIdempotent(t *testing.T) {
	b := New("binance", "BTCUSDT", 10)
	require.NoError(t, b.ApplySnapshot(
		[]domain.PriceLevel{lvl("100", "1")},
		[]domain.PriceLevel{lvl("101", "1")},
		1, 0,
	))

	delta := []domain.PriceLevel{lvl("100.5", "2")}
	require.NoError(t, b.ApplyDelta(delta, nil, 2, 0))
	once := b.Snapshot()

	require.NoError(t, b.ApplyDelta(delta, nil, 3, 0))
	twice := b.Snapshot()

	assert.Equal(t, once.Bids, twice.Bids)
	assert.Equal(t, once.Asks, twice.Asks)
}

func TestApplyDeltaSkipsStaleSequence(t *testing.T) {
	b := New("binance", "BTCUSDT", 10)
	require.NoError(t, b.ApplySnapshot(
		[]domain.PriceLevel{lvl("100", "1")},
		[]domain.PriceLevel{lvl("101", "1")},
		1, 50,
	))

	err := b.ApplyDelta([]domain.PriceLevel{lvl("100.5", "2")}, nil, 2, 50)
	assert.ErrorIs(t, err, domain.ErrStaleUpdate)

	snap := b.Snapshot()
	assert.Equal(t, []domain.PriceLevel{lvl("100", "1")}, snap.Bids)
	assert.Equal(t, int64(50), snap.SeqID)

	// An advancing sequence applies and moves the id.
	require.NoError(t, b.ApplyDelta([]domain.PriceLevel{lvl("100.5", "2")}, nil, 3, 51))
	assert.Equal(t, int64(51), b.Snapshot().SeqID)
}

func TestApplySnapshotRejectsCrossedBook(t *testing.T) {
	b := New("binance", "BTCUSDT", 10)
	require.NoError(t, b.ApplySnapshot(
		[]domain.PriceLevel{lvl("97", "1")},
		[]domain.PriceLevel{lvl("101", "1")},
		1, 0,
	))

	// bids [100,99] vs asks [98,101]: resorting cannot uncross.
	err := b.ApplySnapshot(
		[]domain.PriceLevel{lvl("100", "1"), lvl("99", "1")},
		[]domain.PriceLevel{lvl("98", "1"), lvl("101", "1")},
		2, 0,
	)
	assert.ErrorIs(t, err, domain.ErrCrossedBook)

	// Previous state is preserved.
	snap := b.Snapshot()
	assert.Equal(t, []domain.PriceLevel{lvl("97", "1")}, snap.Bids)
}

func TestApplyDeltaRejectsCrossedBook(t *testing.T) {
	b := New("binance", "BTCUSDT", 10)
	require.NoError(t, b.ApplySnapshot(
		[]domain.PriceLevel{lvl("100", "1")},
		[]domain.PriceLevel{lvl("101", "1")},
		1, 0,
	))

	err := b.ApplyDelta([]domain.PriceLevel{lvl("102", "1")}, nil, 2, 0)
	assert.ErrorIs(t, err, domain.ErrCrossedBook)
	assert.Equal(t, []domain.PriceLevel{lvl("100", "1")}, b.Snapshot().Bids)
}

func TestUpdateTopRewritesBestLevels(t *testing.T) {
	b := New("coinbase", "BTC-USD", 10)
	require.NoError(t, b.ApplySnapshot(
		[]domain.PriceLevel{lvl("100", "1"), lvl("99", "2")},
		[]domain.PriceLevel{lvl("101", "1"), lvl("102", "2")},
		1, 0,
	))

	require.NoError(t, b.UpdateTop("100.5", "4", "100.9", "5", 2))

	snap := b.Snapshot()
	assert.Equal(t, lvl("100.5", "4"), snap.Bids[0])
	assert.Equal(t, lvl("100.9", "5"), snap.Asks[0])
	// Depth below the top stays primed.
	assert.Contains(t, snap.Bids, lvl("99", "2"))
	assert.Contains(t, snap.Asks, lvl("102", "2"))
}

func TestUpdateTopKeepsQuantityWhenAbsent(t *testing.T) {
	b := New("coinbase", "BTC-USD", 10)
	require.NoError(t, b.ApplySnapshot(
		[]domain.PriceLevel{lvl("100", "7")},
		[]domain.PriceLevel{lvl("101", "1")},
		1, 0,
	))

	require.NoError(t, b.UpdateTop("100.2", "", "", "", 2))
	snap := b.Snapshot()
	assert.Equal(t, lvl("100.2", "7"), snap.Bids[0])
	assert.Equal(t, lvl("101", "1"), snap.Asks[0])
}

func TestSnapshotIsACopy(t *testing.T) {
	b := New("binance", "BTCUSDT", 10)
	require.NoError(t, b.ApplySnapshot(
		[]domain.PriceLevel{lvl("100", "1")},
		[]domain.PriceLevel{lvl("101", "1")},
		1, 0,
	))

	snap := b.Snapshot()
	snap.Bids[0] = lvl("0", "0")
	assert.Equal(t, lvl("100", "1"), b.Snapshot().Bids[0])
}

func TestPrimedFlag(t *testing.T) {
	b := New("binance", "BTCUSDT", 10)
	assert.False(t, b.Primed())
	require.NoError(t, b.ApplySnapshot(nil, []domain.PriceLevel{lvl("101", "1")}, 1, 0))
	assert.True(t, b.Primed())
}
