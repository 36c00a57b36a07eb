package domain

import "sort"

// BotConfig is the authoritative runtime configuration. It lives under the
// "bot:config" key and is replaced wholesale by messages on the
// "bot:config:update" channel.
type BotConfig struct {
	Exchanges        []string `json:"exchanges"`
	Symbols          []string `json:"symbols"`
	MinProfitPercent float64  `json:"minProfitPercent"`
	TradeAmount      float64  `json:"tradeAmount"`
	IsActive         bool     `json:"isActive"`
}

// SameTopology reports whether two configs select the same venue and symbol
// sets, ignoring order. Tunable-only changes do not require a client restart.
func (c BotConfig) SameTopology(other BotConfig) bool {
	return equalUnordered(c.Exchanges, other.Exchanges) &&
		equalUnordered(c.Symbols, other.Symbols)
}

func equalUnordered(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// BotStatus is the health snapshot the manager publishes under "bot:status".
// Uptime is the unix-milliseconds timestamp the manager started at.
type BotStatus struct {
	IsRunning          bool      `json:"isRunning"`
	ConnectedExchanges []string  `json:"connectedExchanges"`
	Uptime             int64     `json:"uptime"`
	Config             BotConfig `json:"config"`
}
