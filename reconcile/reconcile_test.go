package reconcile

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradejournal/trade"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fill(id string, side trade.Side, ps trade.PositionSide, qty, price string, reduce bool, ts int64) trade.Order {
	return trade.Order{
		OrderID:      id,
		Symbol:       "BTCUSDT",
		Side:         side,
		PositionSide: ps,
		Status:       trade.StatusFilled,
		AvgPrice:     d(price),
		ExecutedQty:  d(qty),
		Commission:   d("0.1"),
		ReduceOnly:   reduce,
		Time:         ts,
		UpdateTime:   ts,
	}
}

func assertBalanced(t *testing.T, p trade.Position) {
	t.Helper()
	assert.True(t, p.HistoryBalance().Equal(p.Quantity),
		"position %s: history balance %s != quantity %s", p.ID, p.HistoryBalance(), p.Quantity)
	if p.Status == trade.Closed {
		assert.True(t, p.Quantity.IsZero())
		require.NotNil(t, p.ExitDate)
		var latest int64
		for _, h := range p.History {
			if h.Action == trade.Decrease && h.Timestamp > latest {
				latest = h.Timestamp
			}
		}
		assert.Equal(t, latest, p.ExitDate.UnixMilli())
	}
	for i := 1; i < len(p.History); i++ {
		assert.LessOrEqual(t, p.History[i-1].Timestamp, p.History[i].Timestamp)
	}
}

func TestOpenAndCloseScenario(t *testing.T) {
	t.Parallel()

	orders := []trade.Order{
		fill("1", trade.Buy, trade.Long, "5", "100", false, 1),
		fill("2", trade.Sell, trade.Long, "5", "110", true, 2),
	}

	got := NewReconciler(nil).Reconcile(orders)
	require.Len(t, got, 1)

	p := got[0]
	assert.Equal(t, trade.Closed, p.Status)
	assert.True(t, p.PnL.Equal(d("50")), p.PnL.String())
	assert.Len(t, p.History, 2)
	assert.True(t, p.ExitPrice.Valid)
	assert.True(t, p.ExitPrice.Decimal.Equal(d("110")))
	assert.True(t, p.Commission.Equal(d("0.2")))
	assert.Equal(t, []string{"1", "2"}, p.OrderIDs())
	assert.Equal(t, "BTCUSDT_LONG_1", p.ID)
	assertBalanced(t, p)
}

func TestWeightedAverageEntry(t *testing.T) {
	t.Parallel()

	orders := []trade.Order{
		fill("1", trade.Buy, trade.Long, "10", "100", false, 1),
		fill("2", trade.Buy, trade.Long, "10", "200", false, 2),
	}

	got := NewReconciler(nil).Reconcile(orders)
	require.Len(t, got, 1)

	p := got[0]
	assert.Equal(t, trade.Open, p.Status)
	assert.True(t, p.EntryPrice.Equal(d("150")), p.EntryPrice.String())
	assert.True(t, p.Quantity.Equal(d("20")))
	assert.True(t, p.Amount.Equal(d("3000")))
	assert.Nil(t, p.ExitDate)
	assert.False(t, p.ExitPrice.Valid)

	require.Len(t, p.History, 2)
	assert.True(t, p.History[0].Percentage.Equal(d("100")))
	// Second fill is measured against the 10 already held, not the new 20.
	assert.True(t, p.History[1].Percentage.Equal(d("100")))
	assertBalanced(t, p)
}

func TestIncreasePercentageUsesPriorQuantity(t *testing.T) {
	t.Parallel()

	orders := []trade.Order{
		fill("1", trade.Sell, trade.Short, "8", "50", false, 1),
		fill("2", trade.Sell, trade.Short, "2", "40", false, 2),
	}

	got := NewReconciler(nil).Reconcile(orders)
	require.Len(t, got, 1)
	assert.True(t, got[0].History[1].Percentage.Equal(d("25")))
	assert.True(t, got[0].EntryPrice.Equal(d("48")))
}

func TestPartialClose(t *testing.T) {
	t.Parallel()

	orders := []trade.Order{
		fill("1", trade.Buy, trade.Long, "10", "100", false, 1),
		fill("2", trade.Sell, trade.Long, "4", "120", true, 2),
	}

	got := NewReconciler(nil).Reconcile(orders)
	require.Len(t, got, 1)

	p := got[0]
	assert.Equal(t, trade.Open, p.Status)
	assert.True(t, p.PnL.Equal(d("80")), p.PnL.String())
	assert.True(t, p.Quantity.Equal(d("6")))
	assert.True(t, p.Amount.Equal(d("600")))
	require.Len(t, p.History, 2)
	assert.Equal(t, trade.Decrease, p.History[1].Action)
	assert.True(t, p.History[1].Percentage.Equal(d("40")))
	assert.True(t, p.History[1].PnL.Equal(d("80")))
	assertBalanced(t, p)
}

func TestShortRoundTrip(t *testing.T) {
	t.Parallel()

	orders := []trade.Order{
		fill("1", trade.Sell, trade.Short, "3", "200", false, 10),
		fill("2", trade.Buy, trade.Short, "1", "180", true, 20),
		fill("3", trade.Buy, trade.Short, "2", "210", true, 30),
	}

	got := NewReconciler(nil).Reconcile(orders)
	require.Len(t, got, 1)

	p := got[0]
	assert.Equal(t, trade.Closed, p.Status)
	// +20 on the first unit, -20 on the last two.
	assert.True(t, p.PnL.Equal(d("0")), p.PnL.String())
	assert.True(t, p.ExitPrice.Decimal.Equal(d("210")))
	assert.Equal(t, int64(30), p.ExitDate.UnixMilli())
	assertBalanced(t, p)
}

func TestCloseOnUntrackedKeySynthesizes(t *testing.T) {
	t.Parallel()

	orders := []trade.Order{
		fill("9", trade.Sell, trade.Long, "2", "123.5", true, 5),
	}

	res := NewReconciler(nil).Run(orders)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, 1, res.Count(SynthesizedPosition))

	p := res.Positions[0]
	assert.Equal(t, trade.Closed, p.Status)
	assert.True(t, p.Synthetic)
	assert.True(t, p.PnL.IsZero())
	assert.True(t, p.EntryPrice.Equal(d("123.5")))
	assert.True(t, p.ExitPrice.Decimal.Equal(d("123.5")))
	require.Len(t, p.History, 2)
	assert.Equal(t, trade.Increase, p.History[0].Action)
	assert.Equal(t, trade.Decrease, p.History[1].Action)
	assertBalanced(t, p)
}

func TestReopenAfterCloseIsNewPosition(t *testing.T) {
	t.Parallel()

	orders := []trade.Order{
		fill("1", trade.Buy, trade.Long, "1", "100", false, 1),
		fill("2", trade.Sell, trade.Long, "1", "105", true, 2),
		fill("3", trade.Buy, trade.Long, "2", "90", false, 3),
	}

	got := NewReconciler(nil).Reconcile(orders)
	require.Len(t, got, 2)

	assert.Equal(t, "BTCUSDT_LONG_1", got[0].ID)
	assert.Equal(t, trade.Closed, got[0].Status)
	assert.Equal(t, "BTCUSDT_LONG_3", got[1].ID)
	assert.Equal(t, trade.Open, got[1].Status)
	assert.True(t, got[1].EntryPrice.Equal(d("90")))
	for _, p := range got {
		assertBalanced(t, p)
	}
}

func TestOverCloseRealizesExecutedQuantity(t *testing.T) {
	t.Parallel()

	orders := []trade.Order{
		fill("1", trade.Buy, trade.Long, "2", "100", false, 1),
		fill("2", trade.Sell, trade.Long, "5", "110", true, 2),
	}

	got := NewReconciler(nil).Reconcile(orders)
	require.Len(t, got, 1)
	assert.Equal(t, trade.Closed, got[0].Status)
	assert.True(t, got[0].PnL.Equal(d("50")), got[0].PnL.String())
	last := got[0].History[len(got[0].History)-1]
	assert.Equal(t, trade.Decrease, last.Action)
	assert.True(t, last.Quantity.Equal(d("2")))
	assert.True(t, last.PnL.Equal(d("50")))
	assertBalanced(t, got[0])
}

func TestNonPositiveExitPriceSkipsPnL(t *testing.T) {
	t.Parallel()

	orders := []trade.Order{
		fill("1", trade.Buy, trade.Long, "10", "100", false, 1),
		fill("2", trade.Sell, trade.Long, "4", "0", true, 2),
	}

	res := NewReconciler(nil).Run(orders)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, 1, res.Count(NonPositiveExitPrice))

	p := res.Positions[0]
	assert.True(t, p.PnL.IsZero())
	assert.True(t, p.Quantity.Equal(d("6")))
	assertBalanced(t, p)
}

func TestUnclassifiedOrdersIgnored(t *testing.T) {
	t.Parallel()

	orders := []trade.Order{
		fill("1", trade.Sell, trade.Long, "1", "100", false, 1),
		fill("2", trade.Buy, trade.Long, "1", "100", true, 2),
		fill("3", trade.Buy, trade.PositionSide("BOTH"), "1", "100", false, 3),
	}

	res := NewReconciler(nil).Run(orders)
	assert.Empty(t, res.Positions)
	assert.Equal(t, 3, res.Count(UnclassifiedOrder))
}

func TestNonFilledOrdersIgnored(t *testing.T) {
	t.Parallel()

	o := fill("1", trade.Buy, trade.Long, "1", "100", false, 1)
	o.Status = "CANCELED"

	res := NewReconciler(nil).Run([]trade.Order{o})
	assert.Empty(t, res.Positions)
	assert.Empty(t, res.Anomalies)
}

func TestDuplicateOrderIsIdempotent(t *testing.T) {
	t.Parallel()

	orders := []trade.Order{
		fill("1", trade.Buy, trade.Long, "10", "100", false, 1),
		fill("2", trade.Buy, trade.Long, "10", "200", false, 2),
		fill("3", trade.Sell, trade.Long, "5", "180", true, 3),
	}

	r := NewReconciler(nil)
	want := r.Reconcile(orders)

	withDup := append(append([]trade.Order{}, orders...), orders[1])
	res := r.Run(withDup)
	assert.Equal(t, want, res.Positions)
	assert.Equal(t, 1, res.Count(DuplicateOrder))
}

func TestInputOrderDoesNotMatter(t *testing.T) {
	t.Parallel()

	var orders []trade.Order
	ts := int64(1000)
	for i := 0; i < 6; i++ {
		ts++
		orders = append(orders, fill(strconv.Itoa(len(orders)), trade.Buy, trade.Long, "1", strconv.Itoa(100+i), false, ts))
		ts++
		orders = append(orders, fill(strconv.Itoa(len(orders)), trade.Sell, trade.Short, "2", strconv.Itoa(300-i), false, ts))
	}
	ts++
	orders = append(orders, fill(strconv.Itoa(len(orders)), trade.Sell, trade.Long, "4", "120", true, ts))
	ts++
	orders = append(orders, fill(strconv.Itoa(len(orders)), trade.Buy, trade.Short, "12", "250", true, ts))

	r := NewReconciler(nil)
	want := r.Reconcile(orders)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5; i++ {
		shuffled := append([]trade.Order{}, orders...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, r.Reconcile(shuffled))
	}

	for _, p := range want {
		assertBalanced(t, p)
	}
}

func TestExitDateFollowsLatestDecrease(t *testing.T) {
	t.Parallel()

	p := trade.Position{
		Status: trade.Closed,
		History: []trade.HistoryEntry{
			{Action: trade.Increase, Timestamp: 1},
			{Action: trade.Decrease, Timestamp: 9},
			{Action: trade.Decrease, Timestamp: 4},
			{Action: trade.Increase, Timestamp: 12},
		},
	}
	fixExitDate(&p)
	require.NotNil(t, p.ExitDate)
	assert.Equal(t, int64(9), p.ExitDate.UnixMilli())
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		side   trade.Side
		ps     trade.PositionSide
		reduce bool
		want   intent
	}{
		{"open long", trade.Buy, trade.Long, false, increase},
		{"open short", trade.Sell, trade.Short, false, increase},
		{"close long", trade.Sell, trade.Long, true, decrease},
		{"close short", trade.Buy, trade.Short, true, decrease},
		{"sell long not reduce", trade.Sell, trade.Long, false, ignore},
		{"buy short not reduce", trade.Buy, trade.Short, false, ignore},
		{"buy long reduce", trade.Buy, trade.Long, true, ignore},
		{"one-way mode", trade.Buy, trade.PositionSide("BOTH"), false, ignore},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := trade.Order{Side: tt.side, PositionSide: tt.ps, ReduceOnly: tt.reduce}
			assert.Equal(t, tt.want, classify(o))
		})
	}
}

func TestRealizedPnL(t *testing.T) {
	t.Parallel()

	pnl, ok := realizedPnL(trade.Long, d("100"), d("120"), d("4"))
	assert.True(t, ok)
	assert.True(t, pnl.Equal(d("80")))

	pnl, ok = realizedPnL(trade.Short, d("100"), d("120"), d("4"))
	assert.True(t, ok)
	assert.True(t, pnl.Equal(d("-80")))

	pnl, ok = realizedPnL(trade.Long, d("100"), d("-1"), d("4"))
	assert.False(t, ok)
	assert.True(t, pnl.IsZero())
}
