package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradejournal/trade"
)

// UnrealizedPnL is the profit of p marked at price. It reports false when
// no price is available (zero).
func UnrealizedPnL(p trade.Position, price decimal.Decimal) (decimal.Decimal, bool) {
	if price.IsZero() {
		return decimal.Zero, false
	}
	if p.Side == trade.Short {
		return p.EntryPrice.Sub(price).Mul(p.Quantity), true
	}
	return price.Sub(p.EntryPrice).Mul(p.Quantity), true
}
