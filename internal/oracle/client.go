package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL       = "https://api.coingecko.com/api/v3"
	defaultCoinId        = "solana"
	defaultCacheTTL      = 60 * time.Second
	defaultMaxStaleness  = 30 * time.Minute
	defaultTimeout       = 10 * time.Second
	defaultRatePerMinute = 30
)

type simplePrice struct {
	USD float64 `json:"usd"`
}

// Client fetches the native coin's USD price. A fresh value is cached for the
// TTL; when a fetch fails the last good value is served until it is older
// than the maximum staleness.
type Client struct {
	baseURL      string
	apiKey       string
	coinId       string
	cacheTTL     time.Duration
	maxStaleness time.Duration
	timeout      time.Duration

	httpClient  http.Client
	rateLimiter *rate.Limiter
	now         func() time.Time
	onFallback  func()

	mu        sync.Mutex
	lastGood  decimal.Decimal
	fetchedAt time.Time
}

func NewClient(cfg models.OracleConfig, httpClient http.Client) *Client {
	c := &Client{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		coinId:       cfg.CoinId,
		cacheTTL:     cfg.CacheTTL,
		maxStaleness: cfg.MaxStaleness,
		timeout:      cfg.Timeout,
		httpClient:   httpClient,
		now:          time.Now,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.coinId == "" {
		c.coinId = defaultCoinId
	}
	if c.cacheTTL <= 0 {
		c.cacheTTL = defaultCacheTTL
	}
	if c.maxStaleness < c.cacheTTL {
		c.maxStaleness = defaultMaxStaleness
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = defaultRatePerMinute
	}
	c.rateLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	return c
}

// OnFallback registers a hook invoked whenever a stale value is served.
func (c *Client) OnFallback(fn func()) {
	c.onFallback = fn
}

// RateUSD returns the USD price of one whole native coin.
func (c *Client) RateUSD(ctx context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < c.cacheTTL {
		return c.lastGood, nil
	}

	price, err := c.fetch(ctx)
	if err == nil {
		c.lastGood = price
		c.fetchedAt = now
		return price, nil
	}

	age := now.Sub(c.fetchedAt)
	if c.fetchedAt.IsZero() || age > c.maxStaleness {
		zap.L().Error("Price oracle unavailable and no usable fallback",
			zap.String("coin_id", c.coinId),
			zap.Error(err))
		return decimal.Zero, fmt.Errorf("%w: price oracle: %v", store.ErrServiceUnavailable, err)
	}

	zap.L().Warn("Price oracle fetch failed, serving last known good rate",
		zap.String("coin_id", c.coinId),
		zap.String("rate", c.lastGood.String()),
		zap.Duration("age", age),
		zap.Error(err))
	if c.onFallback != nil {
		c.onFallback()
	}
	return c.lastGood, nil
}

func (c *Client) fetch(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, url.QueryEscape(c.coinId))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-pro-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("network error: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close oracle response body", zap.Error(err))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var prices map[string]simplePrice
	if err := json.Unmarshal(body, &prices); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse response: %w", err)
	}
	p, ok := prices[c.coinId]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s", c.coinId)
	}
	price := decimal.NewFromFloat(p.USD)
	if !price.IsPositive() {
		return decimal.Zero, errors.New("non-positive price")
	}
	return price, nil
}
