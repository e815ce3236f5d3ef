package deutschlandcard

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

// retryMax applies to login, coupon query and points calls, which are fatal to
// the whole account run on failure. Activation is never retried: the endpoint
// is not documented as idempotent.
const retryMax = 2

// Client wraps low-level HTTP communication with the DeutschlandCard app API.
// Configuration (base URL, API token) is supplied per-request via Config so a
// single Client instance can serve fixture and production endpoints alike.
type Client struct {
	logger *zap.Logger
	exec   *httpclient.Executor
}

// NewClient constructs a new DeutschlandCard HTTP client instance.
func NewClient(logger *zap.Logger, rateMgr *rate.Manager) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	exec := httpclient.New(logger, rateMgr, httpClient, "deutschlandcard", func(status int, body []byte) error {
		var errResp ErrorResponse
		_ = json.Unmarshal(body, &errResp)

		logger.Warn("deutschlandcard.client_error",
			zap.Int("status", status),
			zap.String("message", errResp.Message))

		errMsg := errResp.Message
		if errMsg == "" {
			errMsg = string(body)
		}
		return fmt.Errorf("deutschlandcard returned %d: %s", status, errMsg)
	})
	return &Client{
		logger: logger,
		exec:   exec,
	}
}

// Login performs the app login and returns the x-auth-token required on all
// subsequent calls.
// POST /members/login
func (c *Client) Login(ctx context.Context, cfg *Config, req *LoginRequest) (string, error) {
	var resp LoginResponse
	if err := c.postJSON(ctx, cfg, "/members/login", "", req, retryMax, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("deutschlandcard login response missing x-auth-token")
	}
	return resp.Token, nil
}

// QueryCoupons returns the coupons currently visible to the member.
// POST /members/coupons/query
func (c *Client) QueryCoupons(ctx context.Context, cfg *Config, token string, req *CouponQueryRequest) (*CouponQueryResponse, error) {
	var resp CouponQueryResponse
	if err := c.postJSON(ctx, cfg, "/members/coupons/query", token, req, retryMax, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ActivateCoupon registers one coupon for the member. Never retried.
// POST /members/coupons/registration
func (c *Client) ActivateCoupon(ctx context.Context, cfg *Config, token string, req *ActivationRequest) error {
	return c.postJSON(ctx, cfg, "/members/coupons/registration", token, req, 0, nil)
}

// Points returns the member's point balance and expiry information.
// POST /members/points
func (c *Client) Points(ctx context.Context, cfg *Config, token string, req *PointsRequest) (*PointsResponse, error) {
	var resp PointsResponse
	if err := c.postJSON(ctx, cfg, "/members/points", token, req, retryMax, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// postJSON performs an authenticated POST request with a JSON body.
// token may be empty for the login call itself.
func (c *Client) postJSON(ctx context.Context, cfg *Config, path, token string, body any, retries int, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("x-api-token", cfg.APIToken)
	header.Set("x-auth-token", token)
	header.Set("User-Agent", cfg.UserAgent)
	header.Set("Content-Type", "application/json")

	return c.exec.DoJSON(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    cfg.BaseURL + path,
		Header: header,
		Body:   data,
	}, cfg.rateLimitKey(), retries, out)
}
