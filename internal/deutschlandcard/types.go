package deutschlandcard

// Wire types for the DeutschlandCard app API
// (reverse-engineered from the Android app, base path /dlc-integration/app-dc/v2).

// Config holds the static provider configuration, injected at construction.
// The API token is a shared app-level secret, not an account credential.
type Config struct {
	BaseURL   string // e.g. "https://wsp.deutschlandcard.de/dlc-integration/app-dc/v2"
	APIToken  string // static x-api-token header value
	UserAgent string // the app's okhttp user agent
}

// rateLimitKey scopes the rate limiter to this provider endpoint.
func (c *Config) rateLimitKey() string {
	return "deutschlandcard:" + c.BaseURL
}

//
// ────────────────────────────────────────────────
//   Login
// ────────────────────────────────────────────────
//

// LoginRequest is the payload for POST /members/login.
// Password is the member's birthdate and postal code joined by "|".
type LoginRequest struct {
	CardNumber string `json:"cardNumber"`
	Password   string `json:"password"`
}

// LoginResponse carries the per-session auth token required on all
// subsequent calls.
type LoginResponse struct {
	Token string `json:"x-auth-token"`
}

//
// ────────────────────────────────────────────────
//   Coupon query
// ────────────────────────────────────────────────
//

// CouponQueryRequest is the payload for POST /members/coupons/query.
// The app queries only coupons visible within ±1 day of now.
type CouponQueryRequest struct {
	VisibleFrom string `json:"visibleFrom"`
	VisibleTo   string `json:"visibleTo"`
	CardNumber  string `json:"cardNumber"`
}

// CouponQueryResponse is the catalog visible to the member.
type CouponQueryResponse struct {
	Coupons []Coupon `json:"coupons"`
}

// Coupon is one coupon as returned by the coupon query.
// Status "NRG" (not yet registered) is the activatable state.
type Coupon struct {
	PublicPromotionID string        `json:"publicPromotionId"`
	PartnerSubgroup   string        `json:"partnerSubgroup"`
	Status            string        `json:"status"`
	VisibleFrom       string        `json:"visibleFrom"`
	VisibleTo         string        `json:"visibleTo"`
	Content           CouponContent `json:"content"`
}

// CouponContent carries the display metadata and the affiliate URLs that mark
// coupons requiring an external redirect flow.
type CouponContent struct {
	Headline         string `json:"headline"`
	ShortDescription string `json:"shortDescription"`
	PartnerName      string `json:"partnerName"`
	AffiliateURLApp  string `json:"affiliateURLApp"`
	AffiliateURLWeb  string `json:"affiliateURLWeb"`
}

//
// ────────────────────────────────────────────────
//   Coupon activation
// ────────────────────────────────────────────────
//

// ActivationRequest is the payload for POST /members/coupons/registration.
type ActivationRequest struct {
	CardNumber        string `json:"cardNumber"`
	PublicPromotionID string `json:"publicPromotionId"`
	PartnerSubgroup   string `json:"partnerSubgroup"`
}

//
// ────────────────────────────────────────────────
//   Points
// ────────────────────────────────────────────────
//

// PointsRequest is the payload for POST /members/points.
type PointsRequest struct {
	CardNumber string `json:"cardNumber"`
}

// PointsResponse carries the member's balance and upcoming point expiry.
type PointsResponse struct {
	Balance          int64  `json:"balance"`
	ExpiringPoints   int64  `json:"expiringPoints"`
	DateOfNextExpiry string `json:"dateOfNextExpiry"` // "YYYY-MM-DD..."
}

//
// ────────────────────────────────────────────────
//   Errors
// ────────────────────────────────────────────────
//

// ErrorResponse is the provider's error shape on 4xx responses.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
