package synctoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 12, 30, 0, 0, time.UTC)
	token := Encode(asOf)

	decoded, ok := Decode(token)
	require.True(t, ok)
	assert.True(t, asOf.Equal(decoded))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, ok := Decode("not-valid-base64!!!")
	assert.False(t, ok)

	_, ok = Decode("eyJub3RfdCI6InZhbHVlIn0=") // valid base64/JSON, wrong shape
	assert.False(t, ok)
}

func TestParseAcceptsRFC3339(t *testing.T) {
	parsed, ok := Parse("2026-06-01T12:30:00Z")
	require.True(t, ok)
	assert.Equal(t, 2026, parsed.Year())
}

func TestParseFallsBackToSyncToken(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 12, 30, 0, 0, time.UTC)
	token := Encode(asOf)

	parsed, ok := Parse(token)
	require.True(t, ok)
	assert.True(t, asOf.Equal(parsed))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, ok := Parse("definitely not a timestamp or token")
	assert.False(t, ok)
}

func TestParseEmptyString(t *testing.T) {
	_, ok := Parse("")
	assert.False(t, ok)
}
