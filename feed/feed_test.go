package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarkPrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		msg     string
		ok      bool
		wantErr bool
		symbol  string
		price   string
	}{
		{
			name:   "combined envelope",
			msg:    `{"stream":"btcusdt@markPrice@1s","data":{"e":"markPriceUpdate","E":1562305380000,"s":"BTCUSDT","p":"11794.15000000","r":"0.00038167"}}`,
			ok:     true,
			symbol: "BTCUSDT",
			price:  "11794.15",
		},
		{
			name:   "bare event with numeric price",
			msg:    `{"e":"markPriceUpdate","E":1562305380000,"s":"ethusdt","p":3021.5}`,
			ok:     true,
			symbol: "ETHUSDT",
			price:  "3021.5",
		},
		{
			name: "other event",
			msg:  `{"stream":"x","data":{"e":"aggTrade","s":"BTCUSDT"}}`,
		},
		{
			name: "subscription ack",
			msg:  `{"result":null,"id":1}`,
		},
		{
			name:    "bad price",
			msg:     `{"e":"markPriceUpdate","E":1,"s":"BTCUSDT","p":"abc"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			msg:     `hello`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tick, ok, err := ParseMarkPrice([]byte(tt.msg))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.symbol, tick.Symbol)
			assert.Equal(t, tt.price, tick.Price.String())
			assert.True(t, time.Date(2019, 7, 5, 5, 43, 0, 0, time.UTC).Equal(tick.Time))
		})
	}
}

func TestStreamURL(t *testing.T) {
	t.Parallel()

	got, err := StreamURL("wss://fstream.binance.com/stream", []string{"BTCUSDT", " ethusdt ", ""})
	require.NoError(t, err)
	assert.Equal(t, "wss://fstream.binance.com/stream?streams=btcusdt@markPrice@1s/ethusdt@markPrice@1s", got)

	_, err = StreamURL("wss://fstream.binance.com/stream", []string{" "})
	assert.Error(t, err)
}

// markServer sends each connection the given frames, then hangs up.
func markServer(t *testing.T, frames []string, conns *atomic.Int32, streams chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conns.Add(1)
		select {
		case streams <- r.URL.Query().Get("streams"):
		default:
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"), time.Now().Add(time.Second))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestMarkPriceFeedReconnects(t *testing.T) {
	t.Parallel()

	frames := []string{
		`{"stream":"btcusdt@markPrice@1s","data":{"e":"markPriceUpdate","E":1700000000000,"s":"BTCUSDT","p":"37000.1"}}`,
		`{"result":null,"id":1}`,
		`{"stream":"ethusdt@markPrice@1s","data":{"e":"markPriceUpdate","E":1700000001000,"s":"ETHUSDT","p":"2000"}}`,
	}
	var conns atomic.Int32
	streams := make(chan string, 1)
	server := markServer(t, frames, &conns, streams)

	f := NewMarkPriceFeed(Options{
		URL:     "ws" + strings.TrimPrefix(server.URL, "http") + "/stream",
		BackOff: backoff.NewConstantBackOff(10 * time.Millisecond),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make(chan Tick)
	errCh := make(chan error, 1)
	go func() { errCh <- f.Run(ctx, []string{"BTCUSDT", "ETHUSDT"}, out) }()

	var got []Tick
	for len(got) < 4 {
		select {
		case tick := <-out:
			got = append(got, tick)
		case <-ctx.Done():
			t.Fatalf("timed out after %d ticks", len(got))
		}
	}
	cancel()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, "btcusdt@markPrice@1s/ethusdt@markPrice@1s", <-streams)
	assert.GreaterOrEqual(t, conns.Load(), int32(2), "feed reconnects after the server hangs up")
	assert.Equal(t, "BTCUSDT", got[0].Symbol)
	assert.Equal(t, "37000.1", got[0].Price.String())
	assert.Equal(t, "ETHUSDT", got[1].Symbol)
	assert.Equal(t, "BTCUSDT", got[2].Symbol)
}

func TestMarkPriceFeedRequiresSymbols(t *testing.T) {
	t.Parallel()

	f := NewMarkPriceFeed(Options{})
	assert.Error(t, f.Run(context.Background(), nil, make(chan Tick)))
}

func TestMarkPriceFeedStopsWhileDialFails(t *testing.T) {
	t.Parallel()

	f := NewMarkPriceFeed(Options{
		URL:     "ws://127.0.0.1:1/stream",
		BackOff: backoff.NewConstantBackOff(5 * time.Millisecond),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := f.Run(ctx, []string{"BTCUSDT"}, make(chan Tick))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
