// Package trade holds the journal's domain types: exchange orders in their
// wire and canonical forms, and the positions reconstructed from them.
package trade

import (
	"github.com/shopspring/decimal"
)

// Side is the exchange order side.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// PositionSide is the hedge-mode leg an order applies to.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// StatusFilled is the only exchange order status that takes part in
// reconciliation.
const StatusFilled = "FILLED"

// RawOrder is an order as the exchange sends it. Numeric fields arrive as
// either JSON strings or numbers and are kept in their textual form until
// the normalizer coerces them.
type RawOrder struct {
	OrderID         Loose  `json:"orderId"`
	Symbol          string `json:"symbol"`
	Side            string `json:"side"`
	PositionSide    string `json:"positionSide"`
	Status          string `json:"status"`
	AvgPrice        Loose  `json:"avgPrice"`
	ExecutedQty     Loose  `json:"executedQty"`
	Commission      Loose  `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
	ReduceOnly      bool   `json:"reduceOnly"`
	Time            Loose  `json:"time"`
	UpdateTime      Loose  `json:"updateTime"`
}

// Order is a normalized exchange order. Times are epoch milliseconds.
type Order struct {
	OrderID         string          `json:"orderId"`
	Symbol          string          `json:"symbol"`
	Side            Side            `json:"side"`
	PositionSide    PositionSide    `json:"positionSide"`
	Status          string          `json:"status"`
	AvgPrice        decimal.Decimal `json:"avgPrice"`
	ExecutedQty     decimal.Decimal `json:"executedQty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
	ReduceOnly      bool            `json:"reduceOnly"`
	Time            int64           `json:"time"`
	UpdateTime      int64           `json:"updateTime"`
}

// Filled reports whether the order was completely executed.
func (o Order) Filled() bool {
	return o.Status == StatusFilled
}
