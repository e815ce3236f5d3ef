package payback

// Wire types for the Payback partner API
// (reverse-engineered from the iOS app, base path /{principal}/v1/json).

// Config holds the static provider configuration. The basic auth pair and the
// principal identify the API consumer (the app itself), not a member account,
// and are echoed in every request body as consumerIdentification.
type Config struct {
	BaseURL    string // e.g. "https://services-ext.payback.de"
	Principal  string // numeric consumer principal, part of the URL path
	AuthUser   string // HTTP basic auth username
	Credential string // HTTP basic auth password, also sent in request bodies
	UserAgent  string // the app's user agent
}

// rateLimitKey scopes the rate limiter to this provider endpoint.
func (c *Config) rateLimitKey() string {
	return "payback:" + c.BaseURL
}

// apiBase is the versioned base URL including the consumer principal.
func (c *Config) apiBase() string {
	return c.BaseURL + "/" + c.Principal + "/v1"
}

// ConsumerIdentification identifies the API consumer in every request body.
type ConsumerIdentification struct {
	ConsumerAuthentication ConsumerAuthentication `json:"consumerAuthentication"`
}

type ConsumerAuthentication struct {
	Credential string `json:"credential"`
	Principal  string `json:"principal"`
}

//
// ────────────────────────────────────────────────
//   Authentication
// ────────────────────────────────────────────────
//

// Alias types accepted by secureauthenticate.
const (
	AliasTypeCustomerNumber = 1
	AliasTypeEmail          = 5
)

// SecretTypePassword is the only secret type the app uses.
const SecretTypePassword = 3

// AuthRequest is the payload for POST /json/secureauthenticate.
type AuthRequest struct {
	ConsumerIdentification ConsumerIdentification `json:"consumerIdentification"`
	ValidityDuration       int                    `json:"authorizationRequestValidityDuration"`
	Authentication         AuthCredentials        `json:"authentication"`
	ClientDisplayName      string                 `json:"clientDisplayName"`
	ManagedDeviceIDs       []string               `json:"managedMemberDeviceIdentifiers"`
}

type AuthCredentials struct {
	Identification Identification `json:"identification"`
	Security       Security       `json:"security"`
}

type Identification struct {
	Alias     string `json:"alias"`
	AliasType int    `json:"aliasType"`
}

type Security struct {
	Secret     string `json:"secret"`
	SecretType int    `json:"secretType"`
}

// AuthResponse carries the standardAuthentication block. Its shape varies by
// principal so it is kept as an opaque map and echoed back verbatim (minus the
// refresh token) as the "authentication" field of subsequent calls.
type AuthResponse struct {
	StandardAuthentication map[string]any `json:"standardAuthentication"`
}

//
// ────────────────────────────────────────────────
//   Coupons
// ────────────────────────────────────────────────
//

// CouponsRequest is the payload for POST /json/getcoupons, replicating the
// app's filter set: distribution channel 5, period query 9 anchored at now,
// and the geographic centre of Germany as the location.
type CouponsRequest struct {
	Authentication         map[string]any         `json:"authentication"`
	CouponFilter           CouponFilter           `json:"couponFilter"`
	CouponPeriodFilter     []CouponPeriodFilter   `json:"couponPeriodFilter"`
	LocationFilter         LocationFilter         `json:"locationFilter"`
	ConsumerIdentification ConsumerIdentification `json:"consumerIdentification"`
}

type CouponFilter struct {
	CouponDistributionChannel []int `json:"couponDistributionChannel"`
}

type CouponPeriodFilter struct {
	PeriodQuery   int    `json:"periodQuery"`
	ReferenceDate string `json:"referenceDate"`
}

type LocationFilter struct {
	Position Position `json:"position"`
}

type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CouponsResponse is the coupon catalog for the member.
type CouponsResponse struct {
	CouponListItem []CouponListItem `json:"couponListItem"`
}

type CouponListItem struct {
	Coupon Coupon `json:"coupon"`
}

// Coupon statuses observed on the wire. Values 3 and 4 both appear for
// redeemed coupons.
const (
	StatusAvailable = 1
	StatusActivated = 2
)

type Coupon struct {
	CouponID         string           `json:"couponID"`
	CouponStatus     int              `json:"couponStatus"`
	Validity         Validity         `json:"validity"`
	Partner          []Partner        `json:"partner"`
	CouponContentSet CouponContentSet `json:"couponContentSet"`
}

type Validity struct {
	ValidFrom string `json:"validFrom"`
	ValidTo   string `json:"validTo"`
}

type Partner struct {
	PartnerDisplayName string `json:"partnerDisplayName"`
}

// CouponContentSet holds positional text items. The app renders item 2 as the
// headline and item 3 as the description.
type CouponContentSet struct {
	TextItem []TextItem `json:"textItem"`
}

type TextItem struct {
	TextValue string `json:"textValue"`
}

//
// ────────────────────────────────────────────────
//   Activation
// ────────────────────────────────────────────────
//

// ActivateRequest is the payload for POST /json/activatecoupon.
type ActivateRequest struct {
	ActivatedAt            string                 `json:"activatedAt"`
	Authentication         map[string]any         `json:"authentication"`
	CouponID               string                 `json:"couponID"`
	Force                  bool                   `json:"force"`
	ConsumerIdentification ConsumerIdentification `json:"consumerIdentification"`
}

//
// ────────────────────────────────────────────────
//   Balance
// ────────────────────────────────────────────────
//

// BalanceRequest is the payload for POST /json/getaccountbalance.
type BalanceRequest struct {
	Authentication         map[string]any         `json:"authentication"`
	ConsumerIdentification ConsumerIdentification `json:"consumerIdentification"`
}

// BalanceResponse carries the member's balance. Only the first detail entry is
// populated in practice.
type BalanceResponse struct {
	AccountBalanceDetails []AccountBalanceDetail `json:"accountBalanceDetails"`
}

type AccountBalanceDetail struct {
	TotalPointsAmount  int64              `json:"totalPointsAmount"`
	ExpiryAnnouncement ExpiryAnnouncement `json:"expiryAnnouncement"`
}

type ExpiryAnnouncement struct {
	PointsToExpireAmount int64 `json:"pointsToExpireAmount"`
}
