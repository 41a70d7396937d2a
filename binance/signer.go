package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// Sign returns the hex HMAC-SHA256 of message keyed with secret.
func Sign(secret []byte, message string) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedQuery encodes params and appends the signature as the last
// parameter, which is the order Binance verifies.
func SignedQuery(secret []byte, params url.Values) string {
	payload := params.Encode()
	return payload + "&signature=" + Sign(secret, payload)
}
