// Package synctoken implements opaque sync_token encode/decode and the
// RFC 3339-or-token fallback used to parse ?since=/?until= query
// parameters.
package synctoken

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

type payload struct {
	T string `json:"t"`
}

// Encode wraps asOf (an RFC 3339 timestamp) into an opaque base64(JSON)
// sync_token. The token carries no meaning beyond what Decode extracts.
func Encode(asOf time.Time) string {
	raw, _ := json.Marshal(payload{T: asOf.UTC().Format(time.RFC3339)})
	return base64.StdEncoding.EncodeToString(raw)
}

// Decode extracts the timestamp embedded in a sync_token produced by
// Encode. It returns false if token is not valid base64/JSON or its "t"
// field is not a parseable timestamp.
func Decode(token string) (time.Time, bool) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, false
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, p.T)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Parse parses a ?since=/?until= value: it tries RFC 3339 first, then
// falls back to treating raw as an opaque sync_token.
func Parse(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	return Decode(raw)
}
