package trade

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a position.
type Status string

const (
	Open   Status = "OPEN"
	Closed Status = "CLOSED"
)

// Action marks a history entry as adding to or taking from a position.
type Action string

const (
	Increase Action = "INCREASE"
	Decrease Action = "DECREASE"
)

// DateLayout is the ISO-8601 layout used for history entry dates.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// Default psychological ratings for a freshly imported position.
const (
	DefaultConfidence = 1
	DefaultGreed      = 1
)

// HistoryEntry is one fill applied to a position.
type HistoryEntry struct {
	Date       string          `json:"date"`
	Quantity   decimal.Decimal `json:"quantity"`
	Percentage decimal.Decimal `json:"percentage"`
	Price      decimal.Decimal `json:"price"`
	PnL        decimal.Decimal `json:"pnl"`
	OrderID    string          `json:"orderId"`
	Action     Action          `json:"action"`
	Timestamp  int64           `json:"timestamp"`
}

// NewHistoryEntry builds an entry stamped at ts (epoch ms).
func NewHistoryEntry(action Action, orderID string, ts int64, qty, pct, price, pnl decimal.Decimal) HistoryEntry {
	return HistoryEntry{
		Date:       MillisToTime(ts).Format(DateLayout),
		Quantity:   qty,
		Percentage: pct.Round(2),
		Price:      price,
		PnL:        pnl,
		OrderID:    orderID,
		Action:     action,
		Timestamp:  ts,
	}
}

// Position is a directional holding in one symbol, built from one or more
// fills and tracked from first open to full close.
type Position struct {
	ID              string              `json:"id"`
	Symbol          string              `json:"symbol"`
	Side            PositionSide        `json:"side"`
	Status          Status              `json:"status"`
	EntryDate       time.Time           `json:"entryDate"`
	EntryPrice      decimal.Decimal     `json:"entryPrice"`
	Quantity        decimal.Decimal     `json:"quantity"`
	TotalQuantity   decimal.Decimal     `json:"totalQuantity"`
	Amount          decimal.Decimal     `json:"amount"`
	Commission      decimal.Decimal     `json:"commission"`
	CommissionAsset string              `json:"commissionAsset"`
	PnL             decimal.Decimal     `json:"pnl"`
	ExitDate        *time.Time          `json:"exitDate"`
	ExitPrice       decimal.NullDecimal `json:"exitPrice"`
	Orders          []Order             `json:"orders"`
	History         []HistoryEntry      `json:"positionHistory"`
	Synthetic       bool                `json:"synthetic"`

	// Journal annotations, owned by the user once imported.
	Confidence int      `json:"confidence"`
	Greed      int      `json:"greed"`
	Tags       []string `json:"tags"`
	Notes      string   `json:"notes"`
}

// Key returns the working-set key for a symbol and side.
func Key(symbol string, side PositionSide) string {
	return symbol + "_" + string(side)
}

// PositionID derives a stable identifier from the key and the order that
// opened the position.
func PositionID(symbol string, side PositionSide, firstOrderID string) string {
	return fmt.Sprintf("%s_%s_%s", symbol, side, firstOrderID)
}

// Key returns the position's working-set key.
func (p Position) Key() string {
	return Key(p.Symbol, p.Side)
}

// IsOpen reports whether the position still carries quantity.
func (p Position) IsOpen() bool {
	return p.Status == Open
}

// OrderIDs lists the ids of every order applied to the position.
func (p Position) OrderIDs() []string {
	ids := make([]string, 0, len(p.Orders))
	for _, o := range p.Orders {
		ids = append(ids, o.OrderID)
	}
	return ids
}

// HistoryBalance returns INCREASE quantity minus DECREASE quantity.
func (p Position) HistoryBalance() decimal.Decimal {
	bal := decimal.Zero
	for _, h := range p.History {
		switch h.Action {
		case Increase:
			bal = bal.Add(h.Quantity)
		case Decrease:
			bal = bal.Sub(h.Quantity)
		}
	}
	return bal
}

// MillisToTime converts epoch milliseconds to a UTC time.
func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
