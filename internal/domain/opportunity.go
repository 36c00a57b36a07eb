package domain

import "time"

// ArbitrageOpportunity is one qualifying two-leg opportunity: buy the base
// asset on BuyVenue at BuyPrice, sell it on SellVenue at SellPrice. All fee
// and profit figures are USD amounts for the configured trade size; Spread is
// the gross sell-minus-buy value and SpreadPercent the net profit relative to
// the buy value.
type ArbitrageOpportunity struct {
	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	BuyVenue        string    `json:"buyExchange"`
	SellVenue       string    `json:"sellExchange"`
	BuyPrice        float64   `json:"buyPrice"`
	SellPrice       float64   `json:"sellPrice"`
	Spread          float64   `json:"spread"`
	SpreadPercent   float64   `json:"spreadPercent"`
	EstimatedProfit float64   `json:"estimatedProfit"`
	BuyFee          float64   `json:"buyFee"`
	SellFee         float64   `json:"sellFee"`
	TotalFee        float64   `json:"totalFee"`
	DetectedAt      time.Time `json:"timestamp"`
}
