package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBuy = `{
  "token": "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm",
  "signature": "5sig",
  "buyer": "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
  "native_spent": "0.5",
  "quote_value": "10",
  "received": "1,000",
  "block_time": "2024-05-01T12:00:00Z",
  "name": "dogwifhat",
  "symbol": "WIF",
  "market_cap": "$1.23M",
  "published_at": "2024-05-01T12:00:01Z"
}`

func TestMatchesFilters(t *testing.T) {
	tests := []struct {
		name    string
		filters []string
		want    bool
	}{
		{name: "no filters", want: true},
		{name: "equality", filters: []string{`.symbol == "WIF"`}, want: true},
		{name: "numeric", filters: []string{`(.native_spent | tonumber) > 1`}, want: false},
		{name: "all must pass", filters: []string{`.quote_value != null`, `.symbol == "BONK"`}, want: false},
		{name: "missing field is null", filters: []string{`.nope`}, want: false},
		{name: "string is truthy", filters: []string{`.buyer`}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes, err := compileFilters(tt.filters)
			require.NoError(t, err)

			var out bytes.Buffer
			printed, err := handleBuyMessage(&out, []byte(sampleBuy), codes, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, printed)
			if tt.want {
				assert.Contains(t, out.String(), "dogwifhat (WIF)")
				assert.Contains(t, out.String(), "0.5000 SOL ($10.00)")
			} else {
				assert.Empty(t, out.String())
			}
		})
	}
}

func TestCompileFilters_InvalidExpression(t *testing.T) {
	_, err := compileFilters([]string{".symbol =="})
	assert.Error(t, err)
}

func TestHandleBuyMessage_JSONPassthrough(t *testing.T) {
	var out bytes.Buffer
	printed, err := handleBuyMessage(&out, []byte(`{"token":"x","native_spent":"1"}`), nil, true)
	require.NoError(t, err)
	assert.True(t, printed)
	assert.JSONEq(t, `{"token":"x","native_spent":"1"}`, out.String())
}

func TestHandleBuyMessage_BadPayload(t *testing.T) {
	_, err := handleBuyMessage(&bytes.Buffer{}, []byte("nope"), nil, false)
	assert.Error(t, err)
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy(0))
	assert.True(t, isTruthy(""))
}
