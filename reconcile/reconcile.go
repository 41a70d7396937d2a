package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradejournal/pkg/logging"
	"github.com/rustyeddy/tradejournal/trade"
)

var hundred = decimal.NewFromInt(100)

// AnomalyKind names a fallback taken while reconciling.
type AnomalyKind string

const (
	// DuplicateOrder: an orderId seen more than once; later copies are skipped.
	DuplicateOrder AnomalyKind = "duplicate_order"
	// UnclassifiedOrder: side/positionSide/reduceOnly match neither an open
	// nor a close pattern; the order is skipped.
	UnclassifiedOrder AnomalyKind = "unclassified_order"
	// SynthesizedPosition: a close arrived for an untracked key and a
	// zero-PnL closed position was emitted for it.
	SynthesizedPosition AnomalyKind = "synthesized_position"
	// NonPositiveExitPrice: a close had exit price <= 0; quantity was
	// removed but no PnL realized.
	NonPositiveExitPrice AnomalyKind = "non_positive_exit_price"
)

// Anomaly records one fallback decision.
type Anomaly struct {
	Kind    AnomalyKind
	OrderID string
	Symbol  string
}

// Result is the outcome of a reconciliation run.
type Result struct {
	Positions []trade.Position
	Anomalies []Anomaly
}

// Count returns how many anomalies of kind k were recorded.
func (r Result) Count(k AnomalyKind) int {
	n := 0
	for _, a := range r.Anomalies {
		if a.Kind == k {
			n++
		}
	}
	return n
}

// Reconciler rebuilds positions from filled orders. It keeps no state
// between calls.
type Reconciler struct {
	log *zap.Logger
}

// NewReconciler returns a reconciler logging through logger (nil for none).
func NewReconciler(logger *zap.Logger) *Reconciler {
	return &Reconciler{log: logging.OrNop(logger)}
}

// Reconcile returns the open and closed positions described by orders.
func (r *Reconciler) Reconcile(orders []trade.Order) []trade.Position {
	return r.Run(orders).Positions
}

// Run reconciles orders and also reports every fallback taken. Orders may
// be unordered and span many symbols and sides.
func (r *Reconciler) Run(orders []trade.Order) Result {
	s := &scan{
		log:  r.log,
		open: make(map[string]*trade.Position),
	}

	for _, o := range s.prepare(orders) {
		switch classify(o) {
		case increase:
			s.increase(o)
		case decrease:
			s.decrease(o)
		default:
			s.note(UnclassifiedOrder, o)
		}
	}

	keys := make([]string, 0, len(s.open))
	for k := range s.open {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p := s.open[k]
		p.ExitDate = nil
		p.ExitPrice = decimal.NullDecimal{}
		s.done = append(s.done, *p)
	}

	for i := range s.done {
		if s.done[i].Status == trade.Closed {
			fixExitDate(&s.done[i])
		}
	}

	sort.SliceStable(s.done, func(i, j int) bool {
		if !s.done[i].EntryDate.Equal(s.done[j].EntryDate) {
			return s.done[i].EntryDate.Before(s.done[j].EntryDate)
		}
		return s.done[i].ID < s.done[j].ID
	})

	return Result{Positions: s.done, Anomalies: s.anomalies}
}

type intent int

const (
	ignore intent = iota
	increase
	decrease
)

// classify maps an order to the position change it causes.
func classify(o trade.Order) intent {
	switch {
	case o.PositionSide == trade.Long && o.Side == trade.Buy && !o.ReduceOnly:
		return increase
	case o.PositionSide == trade.Short && o.Side == trade.Sell && !o.ReduceOnly:
		return increase
	case o.PositionSide == trade.Long && o.Side == trade.Sell && o.ReduceOnly:
		return decrease
	case o.PositionSide == trade.Short && o.Side == trade.Buy && o.ReduceOnly:
		return decrease
	}
	return ignore
}

// realizedPnL is the profit of closing qty at exit against entry. It
// reports false, with zero PnL, when exit is not a positive price.
func realizedPnL(side trade.PositionSide, entry, exit, qty decimal.Decimal) (decimal.Decimal, bool) {
	if !exit.IsPositive() {
		return decimal.Zero, false
	}
	if side == trade.Short {
		return entry.Sub(exit).Mul(qty), true
	}
	return exit.Sub(entry).Mul(qty), true
}

// share returns part/whole as a percentage, 100 when whole is zero.
func share(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return hundred
	}
	return part.Div(whole).Mul(hundred)
}

type scan struct {
	log       *zap.Logger
	open      map[string]*trade.Position
	done      []trade.Position
	anomalies []Anomaly
}

func (s *scan) note(kind AnomalyKind, o trade.Order) {
	s.anomalies = append(s.anomalies, Anomaly{Kind: kind, OrderID: o.OrderID, Symbol: o.Symbol})
	s.log.Debug("reconcile fallback",
		zap.String("kind", string(kind)),
		zap.String("order_id", o.OrderID),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.String("position_side", string(o.PositionSide)),
		zap.Bool("reduce_only", o.ReduceOnly))
}

// prepare keeps filled orders, drops repeated order ids and sorts by
// updateTime. Ties keep input order.
func (s *scan) prepare(orders []trade.Order) []trade.Order {
	seen := make(map[string]struct{}, len(orders))
	out := make([]trade.Order, 0, len(orders))
	for _, o := range orders {
		if !o.Filled() {
			continue
		}
		if _, dup := seen[o.OrderID]; dup {
			s.note(DuplicateOrder, o)
			continue
		}
		seen[o.OrderID] = struct{}{}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdateTime < out[j].UpdateTime
	})
	return out
}

func (s *scan) increase(o trade.Order) {
	key := trade.Key(o.Symbol, o.PositionSide)
	p, ok := s.open[key]
	if !ok {
		s.open[key] = openPosition(o)
		return
	}

	before := p.Quantity
	after := before.Add(o.ExecutedQty)
	if after.IsPositive() {
		p.EntryPrice = p.EntryPrice.Mul(before).Add(o.AvgPrice.Mul(o.ExecutedQty)).Div(after)
	}

	// Percentage is relative to the quantity held before this fill.
	p.History = append(p.History, trade.NewHistoryEntry(trade.Increase, o.OrderID, o.UpdateTime,
		o.ExecutedQty, share(o.ExecutedQty, before), o.AvgPrice, decimal.Zero))

	p.Quantity = after
	p.TotalQuantity = p.TotalQuantity.Add(o.ExecutedQty)
	p.Amount = p.EntryPrice.Mul(p.Quantity)
	s.addFill(p, o)
}

func (s *scan) decrease(o trade.Order) {
	key := trade.Key(o.Symbol, o.PositionSide)
	p, ok := s.open[key]
	if !ok {
		s.note(SynthesizedPosition, o)
		s.done = append(s.done, synthesize(o))
		return
	}

	before := p.Quantity
	applied := o.ExecutedQty
	full := !applied.LessThan(before)
	if full {
		applied = before
	}

	// PnL is realized on the full executed quantity; history only records
	// what was still open.
	exit := o.AvgPrice
	pnl, ok := realizedPnL(p.Side, p.EntryPrice, exit, o.ExecutedQty)
	if !ok {
		s.note(NonPositiveExitPrice, o)
	}
	p.PnL = p.PnL.Add(pnl)
	s.addFill(p, o)

	if !full {
		p.History = append(p.History, trade.NewHistoryEntry(trade.Decrease, o.OrderID, o.UpdateTime,
			applied, share(applied, before), exit, pnl))
		p.Quantity = before.Sub(applied)
		p.Amount = p.EntryPrice.Mul(p.Quantity)
		return
	}

	p.History = append(p.History, trade.NewHistoryEntry(trade.Decrease, o.OrderID, o.UpdateTime,
		applied, hundred, exit, pnl))
	sort.SliceStable(p.History, func(i, j int) bool {
		return p.History[i].Timestamp < p.History[j].Timestamp
	})

	exitDate := trade.MillisToTime(o.UpdateTime)
	p.Status = trade.Closed
	p.Quantity = decimal.Zero
	p.Amount = decimal.Zero
	p.ExitDate = &exitDate
	p.ExitPrice = decimal.NewNullDecimal(exit)

	delete(s.open, key)
	s.done = append(s.done, *p)
}

func (s *scan) addFill(p *trade.Position, o trade.Order) {
	p.Commission = p.Commission.Add(o.Commission)
	if p.CommissionAsset == "" {
		p.CommissionAsset = o.CommissionAsset
	}
	p.Orders = append(p.Orders, o)
}

func openPosition(o trade.Order) *trade.Position {
	return &trade.Position{
		ID:              trade.PositionID(o.Symbol, o.PositionSide, o.OrderID),
		Symbol:          o.Symbol,
		Side:            o.PositionSide,
		Status:          trade.Open,
		EntryDate:       trade.MillisToTime(o.UpdateTime),
		EntryPrice:      o.AvgPrice,
		Quantity:        o.ExecutedQty,
		TotalQuantity:   o.ExecutedQty,
		Amount:          o.AvgPrice.Mul(o.ExecutedQty),
		Commission:      o.Commission,
		CommissionAsset: o.CommissionAsset,
		PnL:             decimal.Zero,
		Orders:          []trade.Order{o},
		History: []trade.HistoryEntry{
			trade.NewHistoryEntry(trade.Increase, o.OrderID, o.UpdateTime, o.ExecutedQty, hundred, o.AvgPrice, decimal.Zero),
		},
		Confidence: trade.DefaultConfidence,
		Greed:      trade.DefaultGreed,
	}
}

// synthesize builds the closed, zero-PnL position implied by a close whose
// opening fills predate the order history.
func synthesize(o trade.Order) trade.Position {
	at := trade.MillisToTime(o.UpdateTime)
	return trade.Position{
		ID:              trade.PositionID(o.Symbol, o.PositionSide, o.OrderID),
		Symbol:          o.Symbol,
		Side:            o.PositionSide,
		Status:          trade.Closed,
		EntryDate:       at,
		EntryPrice:      o.AvgPrice,
		Quantity:        decimal.Zero,
		TotalQuantity:   o.ExecutedQty,
		Amount:          decimal.Zero,
		Commission:      o.Commission,
		CommissionAsset: o.CommissionAsset,
		PnL:             decimal.Zero,
		ExitDate:        &at,
		ExitPrice:       decimal.NewNullDecimal(o.AvgPrice),
		Orders:          []trade.Order{o},
		History: []trade.HistoryEntry{
			trade.NewHistoryEntry(trade.Increase, o.OrderID, o.UpdateTime, o.ExecutedQty, hundred, o.AvgPrice, decimal.Zero),
			trade.NewHistoryEntry(trade.Decrease, o.OrderID, o.UpdateTime, o.ExecutedQty, hundred, o.AvgPrice, decimal.Zero),
		},
		Synthetic:  true,
		Confidence: trade.DefaultConfidence,
		Greed:      trade.DefaultGreed,
	}
}

// fixExitDate sets the exit date to the latest DECREASE in the history.
func fixExitDate(p *trade.Position) {
	var latest int64
	found := false
	for _, h := range p.History {
		if h.Action != trade.Decrease {
			continue
		}
		if !found || h.Timestamp > latest {
			latest = h.Timestamp
			found = true
		}
	}
	if !found {
		return
	}
	at := trade.MillisToTime(latest)
	p.ExitDate = &at
}
