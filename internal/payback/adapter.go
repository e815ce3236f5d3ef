package payback

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bonuspilot/loyalty-engine/internal/provider"
	"github.com/bonuspilot/loyalty-engine/pkg/model"
)

// Position filters in the coupon query use the geographic centre of Germany,
// matching what the app sends regardless of the member's actual location.
var centreOfGermany = Position{Latitude: 51.165691, Longitude: 10.451526}

// Adapter implements the provider contract against the Payback API.
type Adapter struct {
	logger *zap.Logger
	client *Client
	cfg    Config
	now    func() time.Time
}

// NewAdapter constructs the Payback provider adapter.
func NewAdapter(logger *zap.Logger, client *Client, cfg Config) *Adapter {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "DSA/24.02.0101(1707819571) iOS/16.1.1"
	}
	return &Adapter{
		logger: logger,
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}
}

// session carries the opaque standardAuthentication block echoed back on
// every call after login. The refresh token is stripped before storage.
type session struct {
	auth  map[string]any
	label string
}

func (s *session) Account() string { return s.label }

func (a *Adapter) Kind() model.Kind { return model.KindPayback }

// Authenticate logs in via secureauthenticate. An all-digit identifier is
// treated as a customer number, anything else as an email address.
func (a *Adapter) Authenticate(ctx context.Context, cred model.Credential) (provider.Session, error) {
	aliasType := AliasTypeEmail
	if allDigits(cred.Identifier) {
		aliasType = AliasTypeCustomerNumber
	}

	auth, err := a.client.SecureAuthenticate(ctx, &a.cfg, &AuthRequest{
		ConsumerIdentification: a.consumerIdentification(),
		ValidityDuration:       120,
		Authentication: AuthCredentials{
			Identification: Identification{Alias: cred.Identifier, AliasType: aliasType},
			Security:       Security{Secret: cred.Secret, SecretType: SecretTypePassword},
		},
		ClientDisplayName: "iPhone",
		ManagedDeviceIDs:  []string{},
	})
	if err != nil {
		return nil, fmt.Errorf("payback login: %w", err)
	}

	// The refresh token must not be echoed back on subsequent calls.
	delete(auth, "refreshToken")

	a.logger.Info("payback.authenticated",
		zap.String("account", cred.Redacted()),
		zap.Int("alias_type", aliasType))

	return &session{auth: auth, label: cred.Redacted()}, nil
}

// FetchCoupons queries the catalog with the app's standard filter set.
func (a *Adapter) FetchCoupons(ctx context.Context, sess provider.Session) ([]model.Coupon, error) {
	s, err := a.session(sess)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.GetCoupons(ctx, &a.cfg, &CouponsRequest{
		Authentication: s.auth,
		CouponFilter:   CouponFilter{CouponDistributionChannel: []int{5}},
		CouponPeriodFilter: []CouponPeriodFilter{
			{PeriodQuery: 9, ReferenceDate: a.now().Format(dateLayout)},
		},
		LocationFilter:         LocationFilter{Position: centreOfGermany},
		ConsumerIdentification: a.consumerIdentification(),
	})
	if err != nil {
		return nil, fmt.Errorf("payback coupon query: %w", err)
	}

	coupons := make([]model.Coupon, 0, len(resp.CouponListItem))
	for _, item := range resp.CouponListItem {
		coupons = append(coupons, mapCoupon(item.Coupon))
	}
	return coupons, nil
}

// Activate activates one coupon for the member.
func (a *Adapter) Activate(ctx context.Context, sess provider.Session, coupon model.Coupon) error {
	s, err := a.session(sess)
	if err != nil {
		return err
	}

	if err := a.client.ActivateCoupon(ctx, &a.cfg, &ActivateRequest{
		ActivatedAt:            a.now().Format(dateLayout),
		Authentication:         s.auth,
		CouponID:               coupon.ID,
		Force:                  false,
		ConsumerIdentification: a.consumerIdentification(),
	}); err != nil {
		return fmt.Errorf("payback activate %s: %w", coupon.ID, err)
	}
	return nil
}

// FetchBalance returns the member's points. Payback does not expose the expiry
// date itself; points always expire at the end of September.
func (a *Adapter) FetchBalance(ctx context.Context, sess provider.Session) (model.AccountBalance, error) {
	s, err := a.session(sess)
	if err != nil {
		return model.AccountBalance{}, err
	}

	resp, err := a.client.GetAccountBalance(ctx, &a.cfg, &BalanceRequest{
		Authentication:         s.auth,
		ConsumerIdentification: a.consumerIdentification(),
	})
	if err != nil {
		return model.AccountBalance{}, fmt.Errorf("payback balance: %w", err)
	}
	if len(resp.AccountBalanceDetails) == 0 {
		return model.AccountBalance{}, fmt.Errorf("payback balance response missing accountBalanceDetails")
	}

	detail := resp.AccountBalanceDetails[0]
	now := a.now()
	return model.AccountBalance{
		Points:         detail.TotalPointsAmount,
		ExpiringPoints: detail.ExpiryAnnouncement.PointsToExpireAmount,
		NextExpiry:     time.Date(now.Year(), time.September, 30, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (a *Adapter) consumerIdentification() ConsumerIdentification {
	return ConsumerIdentification{
		ConsumerAuthentication: ConsumerAuthentication{
			Credential: a.cfg.Credential,
			Principal:  a.cfg.Principal,
		},
	}
}

func (a *Adapter) session(sess provider.Session) (*session, error) {
	s, ok := sess.(*session)
	if !ok {
		return nil, fmt.Errorf("session does not belong to the payback adapter")
	}
	return s, nil
}

// mapCoupon converts a wire coupon to the canonical shape. Statuses 3 and 4
// both appear for redeemed coupons and map to used.
func mapCoupon(wc Coupon) model.Coupon {
	status := model.StatusUnknown
	switch wc.CouponStatus {
	case StatusAvailable:
		status = model.StatusAvailable
	case StatusActivated:
		status = model.StatusActivated
	case 3, 4:
		status = model.StatusUsed
	}

	partner := ""
	if len(wc.Partner) > 0 {
		partner = wc.Partner[0].PartnerDisplayName
	}

	// The app renders text item 2 as the headline and item 3 as the
	// description; shorter content sets simply omit them.
	headline, description := "", ""
	if items := wc.CouponContentSet.TextItem; len(items) > 2 {
		headline = items[2].TextValue
		if len(items) > 3 {
			description = items[3].TextValue
		}
	}

	return model.Coupon{
		ID:          wc.CouponID,
		Partner:     partner,
		Headline:    headline,
		Description: description,
		Status:      status,
		RawStatus:   fmt.Sprintf("%d", wc.CouponStatus),
		ValidFrom:   parseTime(wc.Validity.ValidFrom),
		ValidTo:     parseTime(wc.Validity.ValidTo),
	}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseTime parses the timestamp shapes observed on the wire. A zero time is
// returned on failure, which the eligibility filter treats as out of window.
func parseTime(s string) time.Time {
	for _, layout := range []string{
		time.RFC3339,
		dateLayout,
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
