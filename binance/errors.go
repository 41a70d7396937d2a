package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// APIError is a non-2xx response from the exchange.
type APIError struct {
	Status int
	Code   int
	Msg    string
}

func (e *APIError) Error() string {
	switch {
	case e.Msg != "" && e.Code != 0:
		return fmt.Sprintf("binance api error (status %d, code %d): %s", e.Status, e.Code, e.Msg)
	case e.Msg != "":
		return fmt.Sprintf("binance api error (status %d): %s", e.Status, e.Msg)
	default:
		return fmt.Sprintf("binance api error (status %d)", e.Status)
	}
}

// Temporary reports whether retrying the request may succeed: rate limits,
// IP bans that expire, and server-side failures.
func (e *APIError) Temporary() bool {
	switch {
	case e.Status == http.StatusTooManyRequests, e.Status == 418:
		return true
	case e.Status >= http.StatusInternalServerError:
		return true
	}
	return false
}

// IsTemporary reports whether err is an APIError worth retrying, or a
// transport failure. Cancellation is never temporary.
func IsTemporary(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

func parseAPIError(status int, body []byte) error {
	e := &APIError{Status: status}
	var payload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Msg != "" {
		e.Code = payload.Code
		e.Msg = payload.Msg
		return e
	}
	e.Msg = strings.TrimSpace(string(body))
	return e
}
