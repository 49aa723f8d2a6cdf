// internal/pkg/apiclient/client.go
package apiclient

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

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/your-org/photo-print-storefront/internal/config"
	"github.com/your-org/photo-print-storefront/internal/pkg/auth"
	"github.com/your-org/photo-print-storefront/internal/pkg/envelope"
	"github.com/your-org/photo-print-storefront/internal/pkg/logger"
	"github.com/your-org/photo-print-storefront/internal/pkg/metrics"
)

const maxBodyBytes = 4 << 20

var errUpstreamStatus = errors.New("upstream server error")

// TokenSource supplies the bearer token for each request
type TokenSource interface {
	Token() (string, error)
}

// Client talks to the storefront REST backend using the JSON envelope
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	breaker *gobreaker.CircuitBreaker[rawResponse]
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

type rawResponse struct {
	status int
	body   []byte
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithMetrics records request counters and latency
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a backend client
func New(api config.APIConfig, brk config.BreakerConfig, tokens TokenSource, log logrus.FieldLogger, opts ...Option) *Client {
	timeout := api.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxFailures := brk.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	c := &Client{
		baseURL: api.BaseURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tokens: tokens,
		log:    logger.Component(log, "apiclient"),
	}
	c.breaker = gobreaker.NewCircuitBreaker[rawResponse](gobreaker.Settings{
		Name:        "storefront-backend",
		MaxRequests: 1,
		Timeout:     brk.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Backend circuit breaker changed state")
		},
	})

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestOption decorates a single outgoing request
type RequestOption func(*http.Request)

// WithIdempotencyKey marks a request so the backend can deduplicate retries
func WithIdempotencyKey(key string) RequestOption {
	return func(r *http.Request) {
		if key != "" {
			r.Header.Set("Idempotency-Key", key)
		}
	}
}

// Do sends a request and unwraps the envelope. A successful envelope with a null
// data field yields (nil, nil).
func Do[T any](ctx context.Context, c *Client, method, path string, body any, opts ...RequestOption) (*T, error) {
	raw, err := c.send(ctx, method, path, body, opts...)
	if err != nil {
		return nil, err
	}

	resp, decodeErr := envelope.Decode[T](raw.body)
	if decodeErr != nil {
		if raw.status >= http.StatusBadRequest {
			return nil, &envelope.Error{
				Kind:    envelope.KindFromStatus(raw.status),
				Status:  raw.status,
				Message: http.StatusText(raw.status),
			}
		}
		return nil, &envelope.Error{
			Kind:    envelope.KindRejected,
			Status:  raw.status,
			Message: "malformed response from server",
			Err:     decodeErr,
		}
	}

	if raw.status >= http.StatusBadRequest && resp.Success {
		resp.Success = false
	}
	return resp.Unwrap(raw.status)
}

func (c *Client) send(ctx context.Context, method, path string, body any, opts ...RequestOption) (rawResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return rawResponse{}, fmt.Errorf("failed to marshal request data: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return rawResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		switch {
		case errors.Is(err, auth.ErrSessionExpired):
			return rawResponse{}, &envelope.Error{Kind: envelope.KindUnauthorized, Message: "session expired", Err: err}
		case err == nil:
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for _, opt := range opts {
		opt(req)
	}

	start := time.Now()
	raw, err := c.breaker.Execute(func() (rawResponse, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return rawResponse{}, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return rawResponse{}, err
		}
		out := rawResponse{status: resp.StatusCode, body: data}
		if resp.StatusCode >= http.StatusInternalServerError {
			return out, errUpstreamStatus
		}
		return out, nil
	})
	latency := time.Since(start)

	entry := c.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       path,
		"latency":    latency,
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		entry.WithError(err).Warn("Backend request short-circuited")
		c.metrics.ObserveBackend(method, "breaker_open", float64(latency.Milliseconds()))
		return rawResponse{}, envelope.Transient("backend temporarily unavailable", err)
	case errors.Is(err, errUpstreamStatus):
		// fall through with the body so the envelope message survives
	case err != nil:
		entry.WithError(err).Warn("Backend request failed")
		c.metrics.ObserveBackend(method, "transport_error", float64(latency.Milliseconds()))
		return rawResponse{}, envelope.Transient("request failed", err)
	}

	entry = entry.WithField("status_code", raw.status)
	switch {
	case raw.status >= http.StatusInternalServerError:
		entry.Error("Backend request completed with server error")
	case raw.status >= http.StatusBadRequest:
		entry.Warn("Backend request completed with client error")
	default:
		entry.Debug("Backend request completed successfully")
	}
	c.metrics.ObserveBackend(method, strconv.Itoa(raw.status), float64(latency.Milliseconds()))

	return raw, nil
}
