package mexc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Sign returns the lowercase hex HMAC-SHA256 of apiKey+timestamp+body.
func Sign(secret, apiKey, timestamp, body string) (string, error) {
	if secret == "" {
		return "", &AuthError{Reason: "empty api secret"}
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(apiKey + timestamp + body))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// signingQuery renders GET parameters as the signed body: keys sorted,
// joined as k=v with '&', values not escaped.
func signingQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		fmt.Fprintf(&b, "%s=%s", k, params[k])
	}
	return b.String()
}
