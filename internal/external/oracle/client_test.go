package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/metrics"
	"github.com/wonny/moves/backend/pkg/config"
	"github.com/wonny/moves/backend/pkg/httputil"
	"github.com/wonny/moves/backend/pkg/logger"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	hc := httputil.New(logger.NewNop(), 2*time.Second).DisableRetry()
	return NewClient(config.OracleConfig{BaseURL: srv.URL + "/"}, hc, nil, metrics.New(), logger.NewNop())
}

func TestMarketContext(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/market/NVDA", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"symbol":        "NVDA",
			"price":         131.2,
			"sector":        "Semiconductors",
			"domain":        "AI",
			"next_earnings": "2026-11-19",
			"in_blackout":   false,
			"as_of":         "2026-10-18T14:00:00Z",
		})
	}))

	mc, err := c.MarketContext(context.Background(), "nvda")
	require.NoError(t, err)

	assert.Equal(t, "NVDA", mc.Symbol)
	assert.Equal(t, "Semiconductors", mc.Sector)
	require.NotNil(t, mc.NextEarnings)
	assert.Equal(t, time.Date(2026, 11, 19, 0, 0, 0, 0, time.UTC), *mc.NextEarnings)
	assert.Equal(t, 2026, mc.AsOf.Year())
}

func TestMarketContext_NotFound(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())

	_, err := c.MarketContext(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestMarketContext_RequiresSymbol(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())

	_, err := c.MarketContext(context.Background(), "  ")
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
}

func TestSnapshot(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/portfolio", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"nav": 100000, "peak_nav": 110000, "daily_realized_pnl": -500,
			"positions": [
				{"symbol": "msft", "sector": "Software", "side": "long", "market_value": 12000},
				{"symbol": "TSLA", "sector": "Automobiles", "side": "SHORT", "market_value": 3000}
			]
		}`))
	}))

	snap, err := c.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 100000.0, snap.NAV)
	require.Len(t, snap.Positions, 2)
	assert.Equal(t, "MSFT", snap.Positions[0].Symbol)
	assert.Equal(t, contracts.SideShort, snap.Positions[1].Side)
	assert.InDelta(t, 9000.0, snap.NetExposure(), 1e-9)
}

func TestSnapshot_RejectsUnknownSide(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"nav": 1, "positions": [{"symbol": "X", "side": "sideways", "market_value": 1}]}`))
	}))

	_, err := c.Snapshot(context.Background())
	assert.Error(t, err)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	for i := 0; i < 5; i++ {
		_, err := c.Snapshot(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	_, err := c.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(5), hits.Load(), "open breaker must not reach upstream")
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())

	for i := 0; i < 8; i++ {
		_, err := c.MarketContext(context.Background(), "ZZZZ")
		require.ErrorIs(t, err, contracts.ErrNotFound)
	}
}

func TestNotifyPending(t *testing.T) {
	var got contracts.Signal
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/signals/pending", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))

	err := c.NotifyPending(context.Background(), &contracts.Signal{ID: 9, Symbol: "NVDA", Action: contracts.ActionBuy})
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.ID)
}
