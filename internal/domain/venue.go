package domain

// VenueDescriptor holds the static metadata for one exchange venue.
// TakerFee and MakerFee are fractional rates (0.001 = 10 bps).
type VenueDescriptor struct {
	ID              string  `json:"id"`
	DisplayName     string  `json:"displayName"`
	WsURL           string  `json:"wsUrl"`
	RestURL         string  `json:"restUrl"`
	TakerFee        float64 `json:"takerFee"`
	MakerFee        float64 `json:"makerFee"`
	RateLimitPerMin int     `json:"rateLimitPerMin"`
}

// TradingPair is one tradable pair as a venue spells it, linked to the
// registry's canonical identity.
type TradingPair struct {
	NativeSymbol    string  `json:"nativeSymbol"`
	BaseAsset       string  `json:"baseAsset"`
	QuoteAsset      string  `json:"quoteAsset"`
	CanonicalSymbol string  `json:"canonicalSymbol"`
	Active          bool    `json:"active"`
	MinOrderSize    float64 `json:"minOrderSize,omitempty"`
	TickSize        float64 `json:"tickSize,omitempty"`
}
