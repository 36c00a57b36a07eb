package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameTopologyIgnoresOrder(t *testing.T) {
	a := BotConfig{
		Exchanges: []string{"binance", "coinbase"},
		Symbols:   []string{"BTCUSD", "ETHUSD"},
	}
	b := BotConfig{
		Exchanges:        []string{"coinbase", "binance"},
		Symbols:          []string{"ETHUSD", "BTCUSD"},
		MinProfitPercent: 0.5, // tunables do not affect topology
	}
	assert.True(t, a.SameTopology(b))
}

func TestSameTopologyDetectsChanges(t *testing.T) {
	a := BotConfig{Exchanges: []string{"binance"}, Symbols: []string{"BTCUSD"}}

	assert.False(t, a.SameTopology(BotConfig{
		Exchanges: []string{"binance", "kraken"},
		Symbols:   []string{"BTCUSD"},
	}))
	assert.False(t, a.SameTopology(BotConfig{
		Exchanges: []string{"binance"},
		Symbols:   []string{"ETHUSD"},
	}))
}

func TestBotConfigJSONShape(t *testing.T) {
	payload := []byte(`{
		"exchanges": ["binance","coinbase","kraken"],
		"symbols": ["BTCUSD","ETHUSD"],
		"minProfitPercent": 0.1,
		"tradeAmount": 1000,
		"isActive": true
	}`)

	var cfg BotConfig
	require.NoError(t, json.Unmarshal(payload, &cfg))
	assert.Equal(t, []string{"binance", "coinbase", "kraken"}, cfg.Exchanges)
	assert.Equal(t, 0.1, cfg.MinProfitPercent)
	assert.Equal(t, 1000.0, cfg.TradeAmount)
	assert.True(t, cfg.IsActive)
}

func TestBotStatusJSONShape(t *testing.T) {
	status := BotStatus{
		IsRunning:          true,
		ConnectedExchanges: []string{"binance"},
		Uptime:             1700000000000,
		Config:             BotConfig{Exchanges: []string{"binance"}},
	}
	payload, err := json.Marshal(status)
	require.NoError(t, err)

	assert.Contains(t, string(payload), `"isRunning":true`)
	assert.Contains(t, string(payload), `"connectedExchanges":["binance"]`)
	assert.Contains(t, string(payload), `"uptime":1700000000000`)
}
