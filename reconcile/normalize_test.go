package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rustyeddy/tradejournal/trade"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestNormalizeCoercesFields(t *testing.T) {
	t.Parallel()

	raw := []trade.RawOrder{{
		OrderID:         "42",
		Symbol:          " ethusdt ",
		Side:            "buy",
		PositionSide:    "long",
		Status:          "filled",
		AvgPrice:        "2500.50",
		ExecutedQty:     "0.300",
		Commission:      "0.0125",
		CommissionAsset: "USDT",
		Time:            "1700000000000",
		UpdateTime:      "1700000000500",
	}}

	got := NewNormalizer(nil, fixedClock).Normalize(raw)
	require.Len(t, got, 1)

	o := got[0]
	assert.Equal(t, "42", o.OrderID)
	assert.Equal(t, "ETHUSDT", o.Symbol)
	assert.Equal(t, trade.Buy, o.Side)
	assert.Equal(t, trade.Long, o.PositionSide)
	assert.True(t, o.Filled())
	assert.True(t, o.AvgPrice.Equal(d("2500.5")))
	assert.True(t, o.ExecutedQty.Equal(d("0.3")))
	assert.True(t, o.Commission.Equal(d("0.0125")))
	assert.Equal(t, int64(1700000000000), o.Time)
	assert.Equal(t, int64(1700000000500), o.UpdateTime)
}

func TestNormalizeRepairsTimestamps(t *testing.T) {
	t.Parallel()

	now := fixedClock().UnixMilli()

	tests := []struct {
		name       string
		time       trade.Loose
		updateTime trade.Loose
		wantTime   int64
		wantUpdate int64
	}{
		{"valid", "100", "200", 100, 200},
		{"missing time", "", "200", now, now},
		{"zero time", "0", "200", now, now},
		{"negative time", "-5", "", now, now},
		{"garbage time", "soon", "200", now, now},
		{"missing update", "100", "", 100, 100},
		{"garbage update", "100", "later", 100, 100},
		{"update before time", "100", "50", 100, 100},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NewNormalizer(nil, fixedClock).Normalize([]trade.RawOrder{{OrderID: "1", Time: tt.time, UpdateTime: tt.updateTime}})
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantTime, got[0].Time)
			assert.Equal(t, tt.wantUpdate, got[0].UpdateTime)
		})
	}
}

func TestNormalizeLogsAnomalies(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	n := NewNormalizer(zap.New(core), fixedClock)

	got := n.Normalize([]trade.RawOrder{
		{OrderID: "1", Time: "bad", UpdateTime: "1", AvgPrice: "x1"},
		{OrderID: "2", Time: "10", UpdateTime: "11", AvgPrice: "1"},
	})
	require.Len(t, got, 2)
	assert.True(t, got[0].AvgPrice.IsZero())

	assert.Equal(t, 1, logs.FilterMessage("order has invalid time, using current time").Len())
	assert.Equal(t, 1, logs.FilterMessage("order has unparsable number, using zero").Len())
}

func TestNormalizeFeedsReconciler(t *testing.T) {
	t.Parallel()

	raw := []trade.RawOrder{
		{OrderID: "2", Symbol: "BTCUSDT", Side: "SELL", PositionSide: "LONG", Status: "FILLED",
			AvgPrice: "110", ExecutedQty: "5", ReduceOnly: true, Time: "2", UpdateTime: "2"},
		{OrderID: "1", Symbol: "BTCUSDT", Side: "BUY", PositionSide: "LONG", Status: "FILLED",
			AvgPrice: "100", ExecutedQty: "5", Time: "1", UpdateTime: "1"},
	}

	orders := NewNormalizer(nil, fixedClock).Normalize(raw)
	got := NewReconciler(nil).Reconcile(orders)
	require.Len(t, got, 1)
	assert.True(t, got[0].PnL.Equal(d("50")))
}
