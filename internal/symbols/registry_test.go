package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jonathan-Vandenberg/arbot/internal/domain"
)

func TestToNativePerVenue(t *testing.T) {
	r := NewRegistry(true)

	tests := []struct {
		venue     string
		canonical string
		want      string
	}{
		{VenueBinance, "BTCUSD", "BTCUSDT"},
		{VenueCoinbase, "BTCUSD", "BTC-USD"},
		{VenueKraken, "BTCUSD", "XBT/USD"},
		{VenueBybit, "BTCUSD", "BTCUSDT"},
		{VenueKuCoin, "BTCUSD", "BTC-USDT"},
		{VenueGemini, "BTCUSD", "btcusd"},
		{VenueBinance, "ETHUSD", "ETHUSDT"},
		{VenueKraken, "ETHUSD", "ETH/USD"},
	}
	for _, tt := range tests {
		got, err := r.ToNative(tt.canonical, tt.venue)
		require.NoError(t, err, "%s on %s", tt.canonical, tt.venue)
		assert.Equal(t, tt.want, got, "%s on %s", tt.canonical, tt.venue)
	}
}

func TestCanonicalizeRoundTrip(t *testing.T) {
	r := NewRegistry(true)

	for _, venueID := range Venues() {
		for _, canonical := range []string{"BTCUSD", "ETHUSD", "SOLUSD"} {
			native, err := r.ToNative(canonical, venueID)
			require.NoError(t, err)

			back, err := r.Canonicalize(venueID, native)
			require.NoError(t, err)
			assert.Equal(t, canonical, back, "round trip %s via %s (%s)", canonical, venueID, native)
		}
	}
}

func TestCanonicalizeAliasesAndStables(t *testing.T) {
	r := NewRegistry(true)

	got, err := r.Canonicalize(VenueKraken, "XBT/USDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSD", got)

	got, err = r.Canonicalize(VenueKuCoin, "ETH-BUSD")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSD", got)
}

func TestCanonicalizeWithoutQuoteEquivalence(t *testing.T) {
	r := NewRegistry(false)

	got, err := r.Canonicalize(VenueBinance, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", got)
}

func TestCanonicalizeErrors(t *testing.T) {
	r := NewRegistry(true)

	_, err := r.Canonicalize("hyperliquid", "BTCUSD")
	assert.ErrorIs(t, err, domain.ErrUnknownVenue)

	_, err = r.Canonicalize(VenueBinance, "NOTASYMBOL")
	assert.ErrorIs(t, err, domain.ErrUnparseableSymbol)

	_, err = r.Canonicalize(VenueCoinbase, "BTCUSD") // missing separator
	assert.ErrorIs(t, err, domain.ErrUnparseableSymbol)
}

func TestLongestQuoteWins(t *testing.T) {
	r := NewRegistry(false)

	// USDT must be tried before USD.
	got, err := r.Canonicalize(VenueBinance, "SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDT", got)

	got, err = r.Canonicalize(VenueBinance, "SOLUSDC")
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDC", got)
}

func TestCommonSymbolsIntersection(t *testing.T) {
	r := NewRegistry(true)

	// Binance discovery knows BTC and ETH pairs but no DOGE.
	require.NoError(t, r.RegisterPairs(VenueBinance, []domain.TradingPair{
		{NativeSymbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT", Active: true},
		{NativeSymbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT", Active: true},
	}))

	venues := []string{VenueBinance, VenueCoinbase, VenueKraken}
	got := r.CommonSymbols(venues, []string{"BTC", "ETH", "DOGE"})

	require.Len(t, got, 2)
	assert.Equal(t, map[string]string{
		VenueBinance:  "BTCUSDT",
		VenueCoinbase: "BTC-USD",
		VenueKraken:   "XBT/USD",
	}, got["BTCUSD"])
	assert.Contains(t, got, "ETHUSD")
	assert.NotContains(t, got, "DOGEUSD")
}

func TestCommonSymbolsEmptyVenueSet(t *testing.T) {
	r := NewRegistry(true)
	assert.Empty(t, r.CommonSymbols(nil, []string{"BTC"}))
}

func TestResolvePrefersDiscoveredPairs(t *testing.T) {
	r := NewRegistry(true)

	require.NoError(t, r.RegisterPairs(VenueKraken, []domain.TradingPair{
		{NativeSymbol: "XBT/USD", BaseAsset: "XBT", QuoteAsset: "USD", Active: true},
	}))

	native, ok := r.Resolve("BTCUSD", VenueKraken)
	require.True(t, ok)
	assert.Equal(t, "XBT/USD", native)

	// Kraken discovery lacks ETH, so the symbol does not resolve there.
	_, ok = r.Resolve("ETHUSD", VenueKraken)
	assert.False(t, ok)

	// A venue without discovery falls back to recipe formatting.
	native, ok = r.Resolve("ETHUSD", VenueBybit)
	require.True(t, ok)
	assert.Equal(t, "ETHUSDT", native)
}

func TestRegisterPairsUnknownVenue(t *testing.T) {
	r := NewRegistry(true)
	err := r.RegisterPairs("hyperliquid", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownVenue)
}
