// Package reconcile turns a raw stream of exchange fills into journal
// positions.
package reconcile

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradejournal/pkg/logging"
	"github.com/rustyeddy/tradejournal/trade"
)

// Normalizer coerces raw exchange orders into canonical form. It repairs
// bad timestamps instead of rejecting orders.
type Normalizer struct {
	log *zap.Logger
	now func() time.Time
}

// NewNormalizer returns a normalizer. A nil logger or clock falls back to a
// no-op logger and time.Now.
func NewNormalizer(logger *zap.Logger, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{log: logging.OrNop(logger), now: now}
}

// Normalize converts every raw order. The output has the same length and
// order as the input.
func (n *Normalizer) Normalize(raw []trade.RawOrder) []trade.Order {
	out := make([]trade.Order, 0, len(raw))
	for _, r := range raw {
		out = append(out, n.normalize(r))
	}
	return out
}

func (n *Normalizer) normalize(r trade.RawOrder) trade.Order {
	id := r.OrderID.String()
	o := trade.Order{
		OrderID:         id,
		Symbol:          strings.ToUpper(strings.TrimSpace(r.Symbol)),
		Side:            trade.Side(strings.ToUpper(strings.TrimSpace(r.Side))),
		PositionSide:    trade.PositionSide(strings.ToUpper(strings.TrimSpace(r.PositionSide))),
		Status:          strings.ToUpper(strings.TrimSpace(r.Status)),
		AvgPrice:        n.decimal(id, "avgPrice", r.AvgPrice),
		ExecutedQty:     n.decimal(id, "executedQty", r.ExecutedQty),
		Commission:      n.decimal(id, "commission", r.Commission),
		CommissionAsset: strings.TrimSpace(r.CommissionAsset),
		ReduceOnly:      r.ReduceOnly,
	}

	ts, ok := r.Time.Int64()
	if !ok || ts <= 0 {
		ts = n.now().UnixMilli()
		n.log.Warn("order has invalid time, using current time",
			zap.String("order_id", id),
			zap.String("time", r.Time.String()),
			zap.Int64("repaired", ts))
	}
	o.Time = ts

	upd, ok := r.UpdateTime.Int64()
	if !ok || upd <= 0 || upd < ts {
		n.log.Debug("order has invalid updateTime, using order time",
			zap.String("order_id", id),
			zap.String("update_time", r.UpdateTime.String()))
		upd = ts
	}
	o.UpdateTime = upd

	return o
}

// decimal parses v; empty values are zero, unparsable values are zero and
// logged.
func (n *Normalizer) decimal(orderID, field string, v trade.Loose) decimal.Decimal {
	s := strings.TrimSpace(v.String())
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		n.log.Warn("order has unparsable number, using zero",
			zap.String("order_id", orderID),
			zap.String("field", field),
			zap.String("value", s))
		return decimal.Zero
	}
	return d
}
