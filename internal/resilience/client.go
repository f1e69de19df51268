// Package resilience wraps outbound HTTP calls to upstream imagery sources
// with retry, circuit-breaking, and politeness-pause behavior, so scrapers
// never talk to net/http directly.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/quay/zlog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned by Get when a host's circuit breaker is open.
// Get's error wraps both this sentinel and gobreaker's own error, so callers
// can errors.Is against this package's sentinel rather than reaching into
// gobreaker directly.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// Config tunes the retry/breaker/politeness behavior.
type Config struct {
	MaxRetries          int
	InitialBackoff      time.Duration
	BackoffMultiplier   float64
	MaxBackoff          time.Duration
	CircuitThreshold    uint32
	CircuitOpenDuration time.Duration
	PolitenessPause     time.Duration
	RequestTimeout      time.Duration
}

// DefaultConfig returns the standard resilience parameters: 3 retries at
// 2s/4s/8s, a breaker that opens after 5 consecutive failures for 60s, and
// a 1s politeness pause between requests to the same host.
func DefaultConfig() Config {
	return Config{
		MaxRetries:          3,
		InitialBackoff:      2 * time.Second,
		BackoffMultiplier:   2,
		MaxBackoff:          8 * time.Second,
		CircuitThreshold:    5,
		CircuitOpenDuration: 60 * time.Second,
		PolitenessPause:     1 * time.Second,
		RequestTimeout:      30 * time.Second,
	}
}

// Client issues GETs against upstream hosts, retrying transient failures,
// tripping a per-host circuit breaker after sustained failure, and pacing
// requests to the same host apart.
type Client struct {
	http *http.Client
	cfg  Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*http.Response]
	limiters map[string]*rate.Limiter
}

// New returns a Client configured with cfg. A zero-value http.Client with
// cfg.RequestTimeout is used for the underlying transport.
func New(cfg Config) *Client {
	return &Client{
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*http.Response]),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Get performs an HTTP GET against url, applying this host's politeness
// pause, circuit breaker, and retry-with-backoff. The returned response's
// Body must be closed by the caller. A non-nil, non-2xx/404 response is not
// an error by itself: callers classify status codes themselves rather than
// the transport baking that judgment in.
func (c *Client) Get(ctx context.Context, url, host string) (*http.Response, error) {
	limiter := c.limiterFor(host)
	breaker := c.breakerFor(host)

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("politeness pause for %s: %w", host, err)
	}

	resp, err := breaker.Execute(func() (*http.Response, error) {
		return c.doWithRetry(ctx, url)
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		return nil, fmt.Errorf("request to %s: %w: %w", host, ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, fmt.Errorf("request to %s: %w", host, err)
	}
	return resp, nil
}

// doWithRetry performs the request, retrying network errors, 5xx, and 429
// responses up to cfg.MaxRetries times with exponential backoff. Any other
// outcome (2xx, 404, other 4xx) returns immediately and is not treated as a
// breaker failure: 404 means "no data for this unit", not a fault.
func (c *Client) doWithRetry(ctx context.Context, url string) (*http.Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.Multiplier = c.cfg.BackoffMultiplier
	b.MaxInterval = c.cfg.MaxBackoff
	b.RandomizationFactor = 0
	b.Reset()

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			ctx = zlog.ContextWithValues(ctx, "attempt", fmt.Sprintf("%d", attempt))
			zlog.Warn(ctx).Str("url", url).Msg("retrying request")
			select {
			case <-time.After(b.NextBackOff()):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			drainAndClose(resp)
			lastErr = fmt.Errorf("retryable status %s", resp.Status)
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("exhausted %d retries: %w", c.cfg.MaxRetries, lastErr)
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(c.cfg.PolitenessPause), 1)
		c.limiters[host] = l
	}
	return l
}

func (c *Client) breakerFor(host string) *gobreaker.CircuitBreaker[*http.Response] {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[host]
	if !ok {
		b = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        "upstream:" + host,
			MaxRequests: 1,
			Timeout:     c.cfg.CircuitOpenDuration,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= c.cfg.CircuitThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				zlog.Info(context.Background()).
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state change")
			},
		})
		c.breakers[host] = b
	}
	return b
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
	resp.Body.Close()
}
