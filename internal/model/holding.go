package model

import "time"

// Holding represents one investment position in a synced account. The
// total_value, gain_loss and gain_loss_pct columns are derived from shares,
// avg_cost and current_price at write time and rounded to two decimals.
type Holding struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"accountId"`
	Symbol       string    `json:"symbol"`
	SecurityName string    `json:"securityName"`
	Shares       float64   `json:"shares"`
	AvgCost      float64   `json:"avgCost"`
	CurrentPrice float64   `json:"currentPrice"`
	TotalValue   float64   `json:"totalValue"`
	GainLoss     float64   `json:"gainLoss"`
	GainLossPct  float64   `json:"gainLossPct"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
