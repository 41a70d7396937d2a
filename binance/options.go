package binance

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// FuturesURL is the USDⓈ-M futures REST endpoint.
	FuturesURL = "https://fapi.binance.com"
	// TestnetURL is the futures testnet REST endpoint.
	TestnetURL = "https://testnet.binancefuture.com"

	timePath    = "/fapi/v1/time"
	ordersPath  = "/fapi/v1/allOrders"
	accountPath = "/fapi/v2/account"
)

const (
	// MaxWindow is the widest startTime/endTime span allOrders accepts.
	MaxWindow = 7 * 24 * time.Hour
	// MinRequestDelay is the shortest pause between paged requests.
	MinRequestDelay = 200 * time.Millisecond

	defaultRequestDelay = 250 * time.Millisecond
	defaultHTTPTimeout  = 15 * time.Second
	defaultPageLimit    = 1000
	maxPageLimit        = 1000
)

// Options configure a Client. Zero values take defaults.
type Options struct {
	BaseURL      string
	HTTPTimeout  time.Duration
	RequestDelay time.Duration
	Window       time.Duration
	PageLimit    int
	Logger       *zap.Logger
	Clock        func() time.Time
}

func withDefaults(in Options) Options {
	in.BaseURL = strings.TrimSuffix(strings.TrimSpace(in.BaseURL), "/")
	if in.BaseURL == "" {
		in.BaseURL = FuturesURL
	}
	if in.HTTPTimeout <= 0 {
		in.HTTPTimeout = defaultHTTPTimeout
	}
	if in.RequestDelay <= 0 {
		in.RequestDelay = defaultRequestDelay
	}
	if in.RequestDelay < MinRequestDelay {
		in.RequestDelay = MinRequestDelay
	}
	if in.Window <= 0 || in.Window > MaxWindow {
		in.Window = MaxWindow
	}
	if in.PageLimit <= 0 || in.PageLimit > maxPageLimit {
		in.PageLimit = defaultPageLimit
	}
	if in.Clock == nil {
		in.Clock = time.Now
	}
	return in
}

func (o Options) endpoint(path string) string {
	return o.BaseURL + path
}
