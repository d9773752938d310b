// Package real implements provider adapters backed by live third-party
// script/voice/video/image/research APIs, wrapped in the project's
// standard backoff + circuit breaker + rate limiter stack (spec §4.4).
package real

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clipforge/clipforge/internal/adapter/observability"
	"github.com/clipforge/clipforge/internal/adapter/ratelimit"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/provider"
)

// caller is the shared HTTP transport used by every real provider adapter:
// otelhttp tracing, exponential backoff, a named circuit breaker, and an
// optional rate limiter bucket keyed by provider name.
type caller struct {
	name    string
	hc      *http.Client
	cfg     config.Config
	breaker *provider.CircuitBreaker
	limiter ratelimit.Limiter
}

func newCaller(name string, cfg config.Config, cb *provider.CircuitBreaker, lim ratelimit.Limiter, timeout time.Duration) *caller {
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("provider %s %s", name, r.URL.Host)
		}),
	)
	return &caller{
		name:    name,
		hc:      &http.Client{Timeout: timeout, Transport: transport},
		cfg:     cfg,
		breaker: cb,
		limiter: lim,
	}
}

func (c *caller) backoff(ctx context.Context) backoff.BackOff {
	maxElapsed, initial, maxInterval, mult := c.cfg.GetProviderBackoffConfig()
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = mult
	return backoff.WithContext(expo, ctx)
}

// doJSON performs one HTTP round trip under rate limiting, circuit
// breaking, and retry-with-backoff, decoding a JSON response into out when
// non-nil. operation names the call in errors and metrics. Each attempt
// builds the request and maps the response status: 429 and 5xx are
// retried, other 4xx fail at once (backoff.Permanent).
func (c *caller) doJSON(ctx domain.Context, operation string, method, url string, headers map[string]string, reqBody any, out any) error {
	if c.limiter != nil {
		allowed, retryAfter, err := c.limiter.Allow(ctx, c.name, 1)
		if err != nil {
			slog.Error("rate limiter error", slog.String("provider", c.name), slog.Any("error", err))
		} else if !allowed {
			return fmt.Errorf("%w: %s rate limited locally, retry after %s", domain.ErrRateLimited, c.name, retryAfter)
		}
	}

	var b []byte
	if reqBody != nil {
		var err error
		b, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("op=provider.%s.%s: %w", c.name, operation, err)
		}
	}

	start := time.Now()
	var respBody []byte
	var respStatus int

	run := func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		respStatus = resp.StatusCode
		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s status 429", domain.ErrUpstreamRateLimit, c.name)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(fmt.Errorf("%w: %s status %d: %s", domain.ErrProviderPermanent, c.name, resp.StatusCode, truncate(respBody, 512)))
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: %s status %d", domain.ErrUpstreamTimeout, c.name, resp.StatusCode)
		}
		return nil
	}

	callErr := func() error {
		if c.breaker != nil {
			return c.breaker.Call(func() error {
				return backoff.Retry(run, c.backoff(ctx))
			})
		}
		return backoff.Retry(run, c.backoff(ctx))
	}()

	observability.RecordProviderCall(c.name, operation, outcomeLabel(callErr), time.Since(start))

	if callErr != nil {
		slog.Warn("provider call failed", slog.String("provider", c.name), slog.String("operation", operation), slog.Int("status", respStatus), slog.Any("error", callErr))
		return callErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("op=provider.%s.%s decode: %w", c.name, operation, err)
		}
	}
	return nil
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n]
	}
	return s
}
