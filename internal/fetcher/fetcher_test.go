package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dex-gem-sentry/internal/observability"
	"dex-gem-sentry/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T, handler http.HandlerFunc) (*DataFetcher, *observability.Metrics) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	metrics := observability.NewMetrics("test")
	f := NewDataFetcher(types.FeedConfig{URL: server.URL}, types.NetworkConfig{Timeout: 2 * time.Second}, metrics)
	return f, metrics
}

const feedBody = `{
  "schemaVersion": "1.0.0",
  "pairs": [
    {
      "chainId": "solana",
      "dexId": "raydium",
      "url": "https://dexscreener.com/solana/pair1",
      "pairAddress": "pair1",
      "baseToken": {"address": "mint1", "name": "Gem One", "symbol": "GEM1"},
      "priceUsd": "0.001234",
      "txns": {"h1": {"buys": 200, "sells": 150}, "h24": {"buys": 2000, "sells": 1500}},
      "liquidity": {"usd": 40000.5, "base": 1, "quote": 2},
      "fdv": 600000,
      "pairCreatedAt": 1700000000000
    },
    {
      "pairAddress": "pair2",
      "baseToken": {"name": "No Liquidity", "symbol": "NOLIQ"},
      "fdv": "750000"
    },
    {
      "pairAddress": "broken",
      "fdv": "not-a-number"
    },
    null
  ]
}`

func TestDataFetcher_Fetch(t *testing.T) {
	f, metrics := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(feedBody))
	})

	pairs := f.Fetch(context.Background())
	require.Len(t, pairs, 2, "无法解析的记录应被跳过，其余记录保留")

	first := pairs[0]
	assert.Equal(t, "pair1", first.PairAddress)
	assert.Equal(t, "GEM1", first.Symbol())
	assert.Equal(t, "40000.5", first.LiquidityUSD().String())
	assert.Equal(t, "600000", first.FDV().String())
	assert.Equal(t, int64(350), first.TxnTotal(types.TxnWindowH1))
	assert.True(t, first.PriceUsd.Valid)

	second := pairs[1]
	assert.True(t, second.LiquidityUSD().IsZero(), "缺失的流动性按0处理")
	assert.Equal(t, "750000", second.FDV().String(), "数字字符串可以解析")
	_, ok := second.CreatedAt()
	assert.False(t, ok)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MalformedRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FetchRequests.WithLabelValues("ok")))
}

func TestDataFetcher_FailuresYieldEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
		},
		{
			name:    "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {},
		},
		{
			name: "malformed top level",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"pairs": [`))
			},
		},
		{
			name: "pairs not an array",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"pairs": "nope"}`))
			},
		},
		{
			name: "null pairs",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"pairs": null}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newTestFetcher(t, tt.handler)
			pairs := f.Fetch(context.Background())
			assert.NotNil(t, pairs)
			assert.Empty(t, pairs)
		})
	}
}

func TestDataFetcher_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	f := NewDataFetcher(types.FeedConfig{URL: url}, types.NetworkConfig{Timeout: time.Second}, nil)
	assert.Empty(t, f.Fetch(context.Background()))
}

func TestDataFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	f := NewDataFetcher(types.FeedConfig{URL: server.URL}, types.NetworkConfig{Timeout: 100 * time.Millisecond}, nil)

	start := time.Now()
	assert.Empty(t, f.Fetch(context.Background()))
	assert.Less(t, time.Since(start), 2*time.Second, "挂起的请求应在超时后返回")
}

func TestDecodePairs(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`{"pairAddress": "a", "liquidity": {"usd": "12.5"}}`),
		json.RawMessage(`{"pairAddress": "b", "txns": {"h1": {"buys": "many"}}}`),
		json.RawMessage(`{"pairAddress": "c", "liquidity": null, "fdv": null}`),
	}

	pairs, malformed := DecodePairs(raw)
	require.Len(t, pairs, 2)
	assert.Equal(t, 1, malformed)
	assert.Equal(t, "12.5", pairs[0].LiquidityUSD().String())
	assert.True(t, pairs[1].FDV().IsZero())
}
