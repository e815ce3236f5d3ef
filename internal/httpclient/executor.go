package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bonuspilot/loyalty-engine/internal/rate"
)

// Backoff returns the retry sleep duration for the given attempt number.
func Backoff(attempt int) time.Duration {
	switch attempt {
	case 0:
		return 100 * time.Millisecond
	case 1:
		return 250 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

// Executor handles rate-limited, retrying HTTP execution with JSON decoding.
// Retries apply to transport failures and 5xx responses only; a fresh request
// is built per attempt so POST bodies survive the retry.
type Executor struct {
	logger       *zap.Logger
	rateMgr      *rate.Manager
	http         *http.Client
	providerTag  string
	errorHandler func(status int, body []byte) error
}

// Request describes one JSON call. Header entries are applied verbatim;
// BasicUser/BasicPass set HTTP basic auth when BasicUser is non-empty.
type Request struct {
	Method    string
	URL       string
	Header    http.Header
	Body      []byte
	BasicUser string
	BasicPass string
}

// New creates an Executor. errorHandler is called on 4xx failure responses to
// produce a provider-specific error. If nil, a default error is returned.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	providerTag string,
	errorHandler func(status int, body []byte) error,
) *Executor {
	return &Executor{
		logger:       logger,
		rateMgr:      rateMgr,
		http:         httpClient,
		providerTag:  providerTag,
		errorHandler: errorHandler,
	}
}

// DoJSON executes r with rate limiting and up to retryMax retries, then
// JSON-decodes the response into out (skipped when out is nil).
// rateLimitKey scopes the rate limiter per provider endpoint.
func (e *Executor) DoJSON(ctx context.Context, r Request, rateLimitKey string, retryMax int, out any) error {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, rateLimitKey); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= retryMax; attempt++ {
		req, err := e.build(ctx, r)
		if err != nil {
			return err
		}

		start := time.Now()
		resp, err := e.http.Do(req)
		if err != nil {
			lastErr = err
			e.logger.Warn(e.providerTag+".http_failed",
				zap.String("url", r.URL),
				zap.Error(err),
				zap.Int("attempt", attempt))
			if attempt < retryMax {
				time.Sleep(Backoff(attempt))
			}
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		elapsed := time.Since(start)

		if resp.StatusCode >= 500 {
			e.logger.Warn(e.providerTag+".server_error",
				zap.Int("status", resp.StatusCode),
				zap.String("url", r.URL),
				zap.Duration("latency", elapsed))
			lastErr = fmt.Errorf("%s server error: %d", e.providerTag, resp.StatusCode)
			if attempt < retryMax {
				time.Sleep(Backoff(attempt))
			}
			continue
		}

		if resp.StatusCode >= 400 {
			if e.errorHandler != nil {
				return e.errorHandler(resp.StatusCode, body)
			}
			return fmt.Errorf("%s returned %d", e.providerTag, resp.StatusCode)
		}

		if out != nil && len(body) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				e.logger.Warn(e.providerTag+".decode_failed",
					zap.Error(err),
					zap.String("url", r.URL))
				return fmt.Errorf("decode failed: %w", err)
			}
		}

		e.logger.Debug(e.providerTag+".http_success",
			zap.String("url", r.URL),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed))

		return nil
	}

	return fmt.Errorf("%s request failed after %d attempts: %w", e.providerTag, retryMax+1, lastErr)
}

// build constructs a fresh *http.Request for one attempt.
func (e *Executor) build(ctx context.Context, r Request) (*http.Request, error) {
	var rd io.Reader
	if len(r.Body) > 0 {
		rd = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, rd)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.BasicUser != "" {
		req.SetBasicAuth(r.BasicUser, r.BasicPass)
	}
	return req, nil
}
