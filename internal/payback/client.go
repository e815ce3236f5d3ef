package payback

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bonuspilot/loyalty-engine/internal/httpclient"
	"github.com/bonuspilot/loyalty-engine/internal/rate"
)

// retryMax applies to authentication, coupon query and balance calls, which
// are fatal to the whole account run on failure. Activation is never retried:
// the endpoint is not documented as idempotent.
const retryMax = 2

// payback rejects RFC 3339 colons in the zone offset, so the reference and
// activation timestamps use the numeric offset layout the app sends.
const dateLayout = "2006-01-02T15:04:05-0700"

// Client wraps low-level HTTP communication with the Payback partner API.
type Client struct {
	logger *zap.Logger
	exec   *httpclient.Executor
}

// NewClient constructs a new Payback HTTP client instance.
func NewClient(logger *zap.Logger, rateMgr *rate.Manager) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	exec := httpclient.New(logger, rateMgr, httpClient, "payback", func(status int, body []byte) error {
		logger.Warn("payback.client_error",
			zap.Int("status", status),
			zap.ByteString("body", body))
		return fmt.Errorf("payback returned %d: %s", status, body)
	})
	return &Client{
		logger: logger,
		exec:   exec,
	}
}

// SecureAuthenticate logs the member in and returns the standardAuthentication
// block, which subsequent calls echo back as their "authentication" field.
// POST /json/secureauthenticate
func (c *Client) SecureAuthenticate(ctx context.Context, cfg *Config, req *AuthRequest) (map[string]any, error) {
	var resp AuthResponse
	if err := c.postJSON(ctx, cfg, "/json/secureauthenticate", req, retryMax, &resp); err != nil {
		return nil, err
	}
	if len(resp.StandardAuthentication) == 0 {
		return nil, fmt.Errorf("payback auth response missing standardAuthentication")
	}
	return resp.StandardAuthentication, nil
}

// GetCoupons returns the coupon catalog for the member.
// POST /json/getcoupons
func (c *Client) GetCoupons(ctx context.Context, cfg *Config, req *CouponsRequest) (*CouponsResponse, error) {
	var resp CouponsResponse
	if err := c.postJSON(ctx, cfg, "/json/getcoupons", req, retryMax, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ActivateCoupon activates one coupon for the member. Never retried.
// POST /json/activatecoupon
func (c *Client) ActivateCoupon(ctx context.Context, cfg *Config, req *ActivateRequest) error {
	return c.postJSON(ctx, cfg, "/json/activatecoupon", req, 0, nil)
}

// GetAccountBalance returns the member's point balance.
// POST /json/getaccountbalance
func (c *Client) GetAccountBalance(ctx context.Context, cfg *Config, req *BalanceRequest) (*BalanceResponse, error) {
	var resp BalanceResponse
	if err := c.postJSON(ctx, cfg, "/json/getaccountbalance", req, retryMax, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// postJSON performs a basic-auth POST request with a JSON body against the
// principal-scoped API base.
func (c *Client) postJSON(ctx context.Context, cfg *Config, path string, body any, retries int, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json; charset=utf8")
	header.Set("Accept", "application/json; charset=utf-8")
	header.Set("User-Agent", cfg.UserAgent)

	return c.exec.DoJSON(ctx, httpclient.Request{
		Method:    http.MethodPost,
		URL:       cfg.apiBase() + path,
		Header:    header,
		Body:      data,
		BasicUser: cfg.AuthUser,
		BasicPass: cfg.Credential,
	}, cfg.rateLimitKey(), retries, out)
}
