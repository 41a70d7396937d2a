// Package feed streams live mark prices from the futures websocket API.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradejournal/pkg/logging"
	"github.com/rustyeddy/tradejournal/trade"
)

// DefaultURL is the combined-stream endpoint.
const DefaultURL = "wss://fstream.binance.com/stream"

const (
	defaultReadTimeout      = 60 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	maxReconnectInterval    = 30 * time.Second
)

// Tick is one mark price update.
type Tick struct {
	Symbol string
	Price  decimal.Decimal
	Time   time.Time
}

type Options struct {
	URL         string
	ReadTimeout time.Duration
	Logger      *zap.Logger
	// BackOff paces reconnects; exponential capped at 30s when nil.
	BackOff backoff.BackOff
}

// MarkPriceFeed subscribes to <symbol>@markPrice@1s for a set of symbols.
type MarkPriceFeed struct {
	opts Options
	log  *zap.Logger
}

func NewMarkPriceFeed(opts Options) *MarkPriceFeed {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.BackOff == nil {
		b := backoff.NewExponentialBackOff()
		b.MaxInterval = maxReconnectInterval
		opts.BackOff = b
	}
	return &MarkPriceFeed{opts: opts, log: logging.OrNop(opts.Logger)}
}

// Run delivers ticks to out until ctx is done, reconnecting on any
// connection failure. It returns ctx's error.
func (f *MarkPriceFeed) Run(ctx context.Context, symbols []string, out chan<- Tick) error {
	if len(symbols) == 0 {
		return errors.New("no symbols to watch")
	}
	streamURL, err := StreamURL(f.opts.URL, symbols)
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := f.session(ctx, streamURL, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.log.Warn("mark price stream disconnected", zap.Error(err))

		sleep := f.opts.BackOff.NextBackOff()
		if sleep == backoff.Stop {
			sleep = maxReconnectInterval
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// session runs one connection until it fails.
func (f *MarkPriceFeed) session(ctx context.Context, streamURL string, out chan<- Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", streamURL, err)
	}
	f.log.Info("mark price stream connected", zap.String("url", streamURL))

	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(f.opts.ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	connected := false
	for {
		_ = conn.SetReadDeadline(time.Now().Add(f.opts.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if !connected {
			// Only a session that delivered data resets the reconnect delay.
			f.opts.BackOff.Reset()
			connected = true
		}

		tick, ok, err := ParseMarkPrice(msg)
		if err != nil {
			f.log.Debug("skip unparsable message", zap.ByteString("msg", msg), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// StreamURL builds the combined-stream URL for symbols.
func StreamURL(base string, symbols []string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse feed url: %w", err)
	}
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			streams = append(streams, s+"@markPrice@1s")
		}
	}
	if len(streams) == 0 {
		return "", errors.New("no symbols to watch")
	}
	// The stream list is not query-escaped; '/' and '@' are taken literally.
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

type markPriceEvent struct {
	Event     string      `json:"e"`
	EventTime int64       `json:"E"`
	Symbol    string      `json:"s"`
	Price     trade.Loose `json:"p"`
}

// ParseMarkPrice decodes a mark price event, bare or wrapped in a combined
// stream envelope. ok is false for other events.
func ParseMarkPrice(msg []byte) (Tick, bool, error) {
	var envelope struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil {
		return Tick{}, false, err
	}
	payload := msg
	if len(envelope.Data) > 0 {
		payload = envelope.Data
	}

	var ev markPriceEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Tick{}, false, err
	}
	if ev.Event != "markPriceUpdate" {
		return Tick{}, false, nil
	}

	price, err := decimal.NewFromString(ev.Price.String())
	if err != nil {
		return Tick{}, false, fmt.Errorf("mark price %q: %w", ev.Price.String(), err)
	}
	return Tick{
		Symbol: strings.ToUpper(ev.Symbol),
		Price:  price,
		Time:   trade.MillisToTime(ev.EventTime),
	}, true, nil
}
