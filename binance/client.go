// Package binance is a minimal Binance USDⓈ-M futures REST client covering
// what the journal needs: server time, filled order history and a
// credential check.
package binance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/tradejournal/pkg/logging"
	"github.com/rustyeddy/tradejournal/trade"
)

// Client talks to the futures REST API. Signed requests are paced so that
// consecutive calls are at least Options.RequestDelay apart.
type Client struct {
	opts       Options
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

// NewClient creates a client. See Options for defaults.
func NewClient(opts Options) *Client {
	opts = withDefaults(opts)
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.HTTPTimeout},
		limiter:    rate.NewLimiter(rate.Every(opts.RequestDelay), 1),
		log:        logging.OrNop(opts.Logger),
	}
}

// Account is the subset of the futures account summary the journal shows.
type Account struct {
	TotalWalletBalance    decimal.Decimal `json:"totalWalletBalance"`
	TotalUnrealizedProfit decimal.Decimal `json:"totalUnrealizedProfit"`
	AvailableBalance      decimal.Decimal `json:"availableBalance"`
	CanTrade              bool            `json:"canTrade"`
}

// ServerTime returns the exchange clock in epoch ms. When the exchange
// can't be reached it returns the local clock instead, so callers must
// tolerate skew.
func (c *Client) ServerTime(ctx context.Context) int64 {
	body, err := c.get(ctx, c.opts.endpoint(timePath), "")
	if err != nil {
		c.log.Warn("server time unavailable, using local clock", zap.Error(err))
		return c.opts.Clock().UnixMilli()
	}

	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.ServerTime <= 0 {
		c.log.Warn("server time malformed, using local clock", zap.ByteString("body", body))
		return c.opts.Clock().UnixMilli()
	}
	return resp.ServerTime
}

// FetchFilledOrders returns every FILLED order updated in [startMs, endMs].
// The range is requested in windows no wider than Options.Window. A failed
// window aborts the fetch and nothing is returned.
func (c *Client) FetchFilledOrders(ctx context.Context, apiKey, secretKey string, startMs, endMs int64) ([]trade.RawOrder, error) {
	return c.FetchFilledOrdersForSymbol(ctx, apiKey, secretKey, "", startMs, endMs)
}

// FetchFilledOrdersForSymbol is FetchFilledOrders restricted to one symbol.
// An empty symbol means all symbols.
func (c *Client) FetchFilledOrdersForSymbol(ctx context.Context, apiKey, secretKey, symbol string, startMs, endMs int64) ([]trade.RawOrder, error) {
	if startMs > endMs {
		return nil, fmt.Errorf("start %d is after end %d", startMs, endMs)
	}

	offset := c.ServerTime(ctx) - c.opts.Clock().UnixMilli()
	secret := []byte(secretKey)

	var out []trade.RawOrder
	for _, w := range Windows(startMs, endMs, c.opts.Window) {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(c.opts.PageLimit))
		params.Set("startTime", strconv.FormatInt(w.Start, 10))
		params.Set("endTime", strconv.FormatInt(w.End, 10))
		if symbol != "" {
			params.Set("symbol", strings.ToUpper(symbol))
		}

		body, err := c.signedGet(ctx, ordersPath, apiKey, secret, params, offset)
		if err != nil {
			return nil, fmt.Errorf("fetch orders %s..%s: %w",
				trade.MillisToTime(w.Start).Format(time.RFC3339), trade.MillisToTime(w.End).Format(time.RFC3339), err)
		}

		var page []trade.RawOrder
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode orders: %w", err)
		}

		filled := 0
		for _, o := range page {
			if strings.EqualFold(strings.TrimSpace(o.Status), trade.StatusFilled) {
				out = append(out, o)
				filled++
			}
		}
		c.log.Debug("fetched order window",
			zap.Int64("start", w.Start),
			zap.Int64("end", w.End),
			zap.Int("orders", len(page)),
			zap.Int("filled", filled))
		if len(page) >= c.opts.PageLimit {
			c.log.Warn("order window hit page limit, some orders may be missing",
				zap.Int64("start", w.Start), zap.Int64("end", w.End), zap.Int("limit", c.opts.PageLimit))
		}
	}
	return out, nil
}

// AccountSummary fetches the futures account summary.
func (c *Client) AccountSummary(ctx context.Context, apiKey, secretKey string) (Account, error) {
	offset := c.ServerTime(ctx) - c.opts.Clock().UnixMilli()
	body, err := c.signedGet(ctx, accountPath, apiKey, []byte(secretKey), url.Values{}, offset)
	if err != nil {
		return Account{}, fmt.Errorf("account summary: %w", err)
	}
	var acct Account
	if err := json.Unmarshal(body, &acct); err != nil {
		return Account{}, fmt.Errorf("decode account: %w", err)
	}
	return acct, nil
}

// VerifyCredentials checks that the key pair is accepted by the exchange.
func (c *Client) VerifyCredentials(ctx context.Context, apiKey, secretKey string) error {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(secretKey) == "" {
		return fmt.Errorf("api key and secret are required")
	}
	_, err := c.AccountSummary(ctx, apiKey, secretKey)
	return err
}

func (c *Client) signedGet(ctx context.Context, path, apiKey string, secret []byte, params url.Values, offset int64) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	params.Set("timestamp", strconv.FormatInt(c.opts.Clock().UnixMilli()+offset, 10))
	return c.get(ctx, c.opts.endpoint(path)+"?"+SignedQuery(secret, params), apiKey)
}

func (c *Client) get(ctx context.Context, apiURL, apiKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return body, nil
}

// Window is an inclusive [Start, End] range in epoch ms.
type Window struct {
	Start int64
	End   int64
}

// Windows splits [start, end] into consecutive inclusive windows no wider
// than span. Each window starts one millisecond after the previous ends.
func Windows(start, end int64, span time.Duration) []Window {
	if start > end {
		return nil
	}
	step := span.Milliseconds()
	if step <= 0 {
		return []Window{{Start: start, End: end}}
	}

	var out []Window
	for s := start; s <= end; {
		e := end
		if end-s > step {
			e = s + step
		}
		out = append(out, Window{Start: s, End: e})
		if e == end {
			break
		}
		s = e + 1
	}
	return out
}
