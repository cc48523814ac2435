package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.uber.org/zap"
)

// maxResponseSize is the maximum allowed response size from a provider API (10MB)
const maxResponseSize = 10 * 1024 * 1024

const (
	DefaultJobNimbusBaseURL = "https://app.jobnimbus.com/api1"
	DefaultAccuLynxBaseURL  = "https://api.acculynx.com/api/v2"
	DefaultPageSize         = 100
)

// RetryPolicy bounds retries of transient provider failures
type RetryPolicy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:     5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// Config holds settings shared by all provider adapters
type Config struct {
	PageSize         int
	HTTPTimeout      time.Duration
	Retry            RetryPolicy
	JobNimbusBaseURL string
	AccuLynxBaseURL  string
}

// DefaultConfig returns the default adapter configuration
func DefaultConfig() Config {
	return Config{
		PageSize:         DefaultPageSize,
		HTTPTimeout:      30 * time.Second,
		Retry:            DefaultRetryPolicy(),
		JobNimbusBaseURL: DefaultJobNimbusBaseURL,
		AccuLynxBaseURL:  DefaultAccuLynxBaseURL,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = d.HTTPTimeout
	}
	if c.Retry.Attempts <= 0 {
		c.Retry.Attempts = d.Retry.Attempts
	}
	if c.Retry.InitialDelay <= 0 {
		c.Retry.InitialDelay = d.Retry.InitialDelay
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = d.Retry.MaxDelay
	}
	if c.JobNimbusBaseURL == "" {
		c.JobNimbusBaseURL = d.JobNimbusBaseURL
	}
	if c.AccuLynxBaseURL == "" {
		c.AccuLynxBaseURL = d.AccuLynxBaseURL
	}
	return c
}

// Option configures an adapter
type Option func(*apiClient)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(a *apiClient) {
		a.httpClient = c
	}
}

// WithClock sets the clock used for backoff sleeps
func WithClock(c clock.Clock) Option {
	return func(a *apiClient) {
		a.clock = c
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(a *apiClient) {
		a.logger = l
	}
}

// apiClient performs authenticated GET requests with retry of transient failures
type apiClient struct {
	source     migration.Source
	httpClient *http.Client
	clock      clock.Clock
	logger     *zap.Logger
	retry      RetryPolicy
}

func newAPIClient(source migration.Source, cfg Config, opts ...Option) *apiClient {
	c := &apiClient{
		source:     source,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		clock:      clock.WallClock,
		logger:     zap.NewNop(),
		retry:      cfg.Retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("source", string(source)))
	return c
}

// authorizer sets the credential header on an outgoing request
type authorizer func(req *http.Request)

// getJSON fetches url, retrying transient failures with capped exponential
// backoff. A Retry-After hint raises the next delay up to MaxDelay.
func (c *apiClient) getJSON(ctx context.Context, url string, authorize authorizer) ([]byte, error) {
	var (
		body       []byte
		lastErr    error
		retryAfter time.Duration
	)

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			body, err = c.do(ctx, url, authorize)
			lastErr = err
			return err
		},
		IsFatalError: func(err error) bool {
			var transient *migration.TransientProviderError
			if errors.As(err, &transient) {
				retryAfter = transient.RetryAfter
				return false
			}
			return true
		},
		NotifyFunc: func(err error, attempt int) {
			c.logger.Warn("Provider request failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.retry.Attempts),
				zap.Duration("retry_after", retryAfter),
				zap.Error(err),
			)
		},
		Attempts: c.retry.Attempts,
		Delay:    c.retry.InitialDelay,
		MaxDelay: c.retry.MaxDelay,
		BackoffFunc: func(delay time.Duration, attempt int) time.Duration {
			next := retry.DoubleDelay(delay, attempt)
			if retryAfter > next {
				next = retryAfter
			}
			return next
		},
		Clock: c.clock,
		Stop:  ctx.Done(),
	})
	if err == nil {
		return body, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if retry.IsAttemptsExceeded(err) {
		return nil, fmt.Errorf("%w: %d attempts: %v", migration.ErrRetryBudgetExhausted, c.retry.Attempts, lastErr)
	}
	return nil, lastErr
}

// do performs a single request and classifies the outcome
func (c *apiClient) do(ctx context.Context, url string, authorize authorizer) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", c.source, err)
	}
	req.Header.Set("Accept", "application/json")
	authorize(req)

	start := c.clock.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &migration.TransientProviderError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &migration.TransientProviderError{StatusCode: resp.StatusCode, Err: err}
	}

	c.logger.Debug("Provider request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", c.clock.Now().Sub(start)),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &migration.CredentialError{Source: c.source, StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &migration.TransientProviderError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.clock.Now()),
		}
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: %s HTTP %d", migration.ErrProviderRequestFailed, c.source, resp.StatusCode)
	}
	return body, nil
}

// parseRetryAfter accepts delay-seconds or an HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// splitObjects decodes a JSON array of records, separating objects with an
// external id from malformed entries.
func splitObjects(source migration.Source, kind crm.EntityKind, items []json.RawMessage, idField string) ([]migration.ProviderRecord, []migration.RecordFailure) {
	records := make([]migration.ProviderRecord, 0, len(items))
	var malformed []migration.RecordFailure
	for _, raw := range items {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			malformed = append(malformed, migration.RecordFailure{
				Payload: raw,
				Err:     fmt.Errorf("%w: not a JSON object", migration.ErrMalformedRecord),
			})
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			malformed = append(malformed, migration.RecordFailure{
				Payload: raw,
				Err:     fmt.Errorf("%w: %v", migration.ErrMalformedRecord, err),
			})
			continue
		}
		id := rawID(fields[idField])
		if id == "" {
			malformed = append(malformed, migration.RecordFailure{
				Payload: raw,
				Err:     fmt.Errorf("%w: missing %s", migration.ErrMalformedRecord, idField),
			})
			continue
		}
		records = append(records, migration.ProviderRecord{
			Source:     source,
			Kind:       kind,
			ExternalID: id,
			Payload:    trimmed,
		})
	}
	return records, malformed
}

// rawID reads an identifier sent either as a JSON string or a number
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return cleanText(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
