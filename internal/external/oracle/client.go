// Package oracle adapts the market/portfolio sidecar to the core's
// MarketOracle, PortfolioProvider and Notifier contracts.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/metrics"
	"github.com/wonny/moves/backend/pkg/config"
	"github.com/wonny/moves/backend/pkg/httputil"
	"github.com/wonny/moves/backend/pkg/logger"
	"github.com/wonny/moves/backend/pkg/redis"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("oracle unavailable")

// Endpoint labels used in metrics.
const (
	endpointMarket    = "market_context"
	endpointPortfolio = "portfolio"
	endpointNotify    = "notify"
)

// Client talks to the oracle sidecar over HTTP
// ⭐ SSOT: market context and portfolio snapshots enter the core here only
type Client struct {
	http    *httputil.Client
	baseURL string
	breaker *gobreaker.CircuitBreaker
	cache   *redis.Cache // nil = no shared caching
	local   *LocalCache  // used when cache is nil
	metrics *metrics.Registry
	logger  *logger.Logger
}

// BreakerSettings trips after consecutive upstream failures.
func BreakerSettings(name string, failures uint32, cooldown time.Duration) gobreaker.Settings {
	return gobreaker.Settings{
		Name:    name,
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// a 4xx is the caller's fault, not an outage
		IsSuccessful: func(err error) bool {
			var se *httputil.StatusError
			if errors.As(err, &se) {
				return se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
			}
			return err == nil
		},
	}
}

// NewClient creates an oracle client. cache may be nil.
func NewClient(cfg config.OracleConfig, hc *httputil.Client, cache *redis.Cache, m *metrics.Registry, log *logger.Logger) *Client {
	log = log.WithComponent("oracle")
	settings := BreakerSettings("oracle", 5, 30*time.Second)
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		log.WithFields(map[string]interface{}{
			"breaker": name,
			"from":    from.String(),
			"to":      to.String(),
		}).Warn("Oracle circuit breaker state changed")
	}

	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		breaker: gobreaker.NewCircuitBreaker(settings),
		cache:   cache,
		metrics: m,
		logger:  log,
	}
}

// WithLocalCache caches market contexts in process when no Redis cache is
// configured.
func (c *Client) WithLocalCache(local *LocalCache) *Client {
	c.local = local
	return c
}

var (
	_ contracts.MarketOracle      = (*Client)(nil)
	_ contracts.PortfolioProvider = (*Client)(nil)
	_ contracts.Notifier          = (*Client)(nil)
)

// call runs fn through the breaker and records the outcome.
func (c *Client) call(endpoint string, fn func() error) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	switch {
	case err == nil:
		c.metrics.ObserveOracle(endpoint, "ok")
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.ObserveOracle(endpoint, "breaker_open")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var se *httputil.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		c.metrics.ObserveOracle(endpoint, "not_found")
		return fmt.Errorf("%s: %w", endpoint, contracts.ErrNotFound)
	}
	c.metrics.ObserveOracle(endpoint, "error")
	return err
}

// MarketContext returns price, sector, earnings and trading window for a
// symbol. Results are cached briefly in Redis when a cache is configured.
func (c *Client) MarketContext(ctx context.Context, symbol string) (*contracts.MarketContext, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", contracts.ErrInvalidInput)
	}

	if c.cache == nil && c.local != nil {
		if mc, ok := c.local.Get(symbol); ok {
			c.metrics.ObserveOracle(endpointMarket, "cache_hit")
			return mc, nil
		}
	}

	if c.cache != nil {
		var cached contracts.MarketContext
		hit, err := c.cache.Get(ctx, redis.MarketContextKey(symbol), &cached)
		if err != nil {
			c.logger.WithError(err).Warn("Market context cache read failed")
		}
		if hit {
			c.metrics.ObserveOracle(endpointMarket, "cache_hit")
			return &cached, nil
		}
	}

	var dto marketContextDTO
	err := c.call(endpointMarket, func() error {
		return c.http.GetJSON(ctx, c.baseURL+"/v1/market/"+url.PathEscape(symbol), &dto)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market context for %s: %w", symbol, err)
	}

	mc, err := dto.toContract(symbol)
	if err != nil {
		return nil, err
	}

	switch {
	case c.cache != nil:
		if err := c.cache.Set(ctx, redis.MarketContextKey(symbol), mc, redis.TTLMarketContext); err != nil {
			c.logger.WithError(err).Warn("Market context cache write failed")
		}
	case c.local != nil:
		c.local.Update(mc)
	}
	return mc, nil
}

// Snapshot returns the current book. Never cached.
func (c *Client) Snapshot(ctx context.Context) (*contracts.PortfolioSnapshot, error) {
	var dto portfolioDTO
	err := c.call(endpointPortfolio, func() error {
		return c.http.GetJSON(ctx, c.baseURL+"/v1/portfolio", &dto)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch portfolio snapshot: %w", err)
	}
	return dto.toContract()
}

// NotifyPending forwards a pending signal to the approval channel behind
// the sidecar.
func (c *Client) NotifyPending(ctx context.Context, s *contracts.Signal) error {
	return c.call(endpointNotify, func() error {
		return c.http.PostJSON(ctx, c.baseURL+"/v1/signals/pending", s, nil)
	})
}
