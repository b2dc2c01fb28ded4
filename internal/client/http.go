package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bioprotocol-io/bioprotocol/internal/metrics"
)

// maxErrorBody caps how much of an error response is kept for logs and errors.
const maxErrorBody = 512

// ErrUnexpectedStatus is wrapped by every StatusError.
var ErrUnexpectedStatus = errors.New("unexpected response status")

type (
	// StatusError reports a completed request whose status was not 2xx.
	StatusError struct {
		Method     string
		URL        string
		StatusCode int
		Body       string
	}

	// Option configures a client.
	Option func(*requester)

	// requester performs one logical request with retries.
	requester struct {
		target string
		http   *http.Client
		policy *Config
		logger *slog.Logger
	}
)

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Retryable reports whether the status is worth retrying: 429 and 5xx.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *requester) {
		r.http = client
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(r *requester) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func newRequester(target string, cfg *Config, opts ...Option) *requester {
	r := &requester{
		target: target,
		http:   &http.Client{Timeout: cfg.Timeout},
		policy: cfg,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *requester) newBackOff(ctx context.Context) backoff.BackOffContext {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = r.policy.InitialInterval
	exponential.MaxInterval = r.policy.MaxInterval
	exponential.MaxElapsedTime = 0

	return backoff.WithContext(
		backoff.WithMaxRetries(exponential, uint64(r.policy.MaxRetries)), // #nosec G115 - validated non-negative
		ctx,
	)
}

// do sends the request and returns the body of a 2xx response.
//
// Transport errors, 429 and 5xx are retried with exponential backoff; any other status is
// returned at once as a *StatusError.
func (r *requester) do(
	ctx context.Context,
	method, endpoint string,
	body []byte,
	header http.Header,
) ([]byte, error) {
	startTime := time.Now()
	attempts := 0

	operation := func() ([]byte, error) {
		attempts++

		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		for key, values := range header {
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}

		resp, err := r.http.Do(req)
		if err != nil {
			metrics.RecordOutbound(r.target, 0)

			return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
		}

		defer func() {
			_ = resp.Body.Close()
		}()

		metrics.RecordOutbound(r.target, resp.StatusCode)

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			statusErr := &StatusError{
				Method:     method,
				URL:        endpoint,
				StatusCode: resp.StatusCode,
				Body:       truncate(payload, maxErrorBody),
			}

			if statusErr.Retryable() {
				return nil, statusErr
			}

			return nil, backoff.Permanent(statusErr)
		}

		return payload, nil
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("Retrying outbound request",
			slog.String("target", r.target),
			slog.String("method", method),
			slog.String("url", endpoint),
			slog.Int("attempt", attempts),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	payload, err := backoff.RetryNotifyWithData(operation, r.newBackOff(ctx), notify)
	if err != nil {
		r.logger.Error("Outbound request failed",
			slog.String("target", r.target),
			slog.String("method", method),
			slog.String("url", endpoint),
			slog.Int("attempts", attempts),
			slog.Int64("duration_ms", time.Since(startTime).Milliseconds()),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	r.logger.Debug("Outbound request completed",
		slog.String("target", r.target),
		slog.String("method", method),
		slog.String("url", endpoint),
		slog.Int("attempts", attempts),
		slog.Int64("duration_ms", time.Since(startTime).Milliseconds()),
	)

	return payload, nil
}

func truncate(payload []byte, limit int) string {
	if len(payload) <= limit {
		return string(payload)
	}

	return string(payload[:limit]) + "…"
}
