package deutschlandcard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bonuspilot/loyalty-engine/internal/provider"
	"github.com/bonuspilot/loyalty-engine/pkg/model"
)

// Adapter implements the provider contract against the DeutschlandCard API.
type Adapter struct {
	logger *zap.Logger
	client *Client
	cfg    Config
	now    func() time.Time
}

// NewAdapter constructs the DeutschlandCard provider adapter.
func NewAdapter(logger *zap.Logger, client *Client, cfg Config) *Adapter {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "okhttp/3.12.1"
	}
	return &Adapter{
		logger: logger,
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}
}

// session carries the per-run auth token plus the card number the API expects
// echoed back on every call.
type session struct {
	token      string
	cardNumber string
	label      string
}

func (s *session) Account() string { return s.label }

func (a *Adapter) Kind() model.Kind { return model.KindDeutschlandCard }

// Authenticate logs in with card number and birthdate|postalcode password.
func (a *Adapter) Authenticate(ctx context.Context, cred model.Credential) (provider.Session, error) {
	token, err := a.client.Login(ctx, &a.cfg, &LoginRequest{
		CardNumber: cred.Identifier,
		Password:   cred.BirthDate + "|" + cred.PostalCode,
	})
	if err != nil {
		return nil, fmt.Errorf("deutschlandcard login: %w", err)
	}

	a.logger.Info("deutschlandcard.authenticated",
		zap.String("account", cred.Redacted()))

	return &session{
		token:      token,
		cardNumber: cred.Identifier,
		label:      cred.Redacted(),
	}, nil
}

// FetchCoupons queries the catalog with the app's ±1 day visibility window.
func (a *Adapter) FetchCoupons(ctx context.Context, sess provider.Session) ([]model.Coupon, error) {
	s, err := a.session(sess)
	if err != nil {
		return nil, err
	}

	now := a.now()
	resp, err := a.client.QueryCoupons(ctx, &a.cfg, s.token, &CouponQueryRequest{
		VisibleFrom: now.Add(-24 * time.Hour).Format("2006-01-02T15:04:05"),
		VisibleTo:   now.Add(24 * time.Hour).Format("2006-01-02T15:04:05"),
		CardNumber:  s.cardNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("deutschlandcard coupon query: %w", err)
	}

	coupons := make([]model.Coupon, 0, len(resp.Coupons))
	for _, wc := range resp.Coupons {
		coupons = append(coupons, mapCoupon(wc))
	}
	return coupons, nil
}

// Activate registers one coupon for the member's card.
func (a *Adapter) Activate(ctx context.Context, sess provider.Session, coupon model.Coupon) error {
	s, err := a.session(sess)
	if err != nil {
		return err
	}

	if err := a.client.ActivateCoupon(ctx, &a.cfg, s.token, &ActivationRequest{
		CardNumber:        s.cardNumber,
		PublicPromotionID: coupon.ID,
		PartnerSubgroup:   coupon.PartnerSubgroup,
	}); err != nil {
		return fmt.Errorf("deutschlandcard activate %s: %w", coupon.ID, err)
	}
	return nil
}

// FetchBalance returns the member's points and next expiry.
func (a *Adapter) FetchBalance(ctx context.Context, sess provider.Session) (model.AccountBalance, error) {
	s, err := a.session(sess)
	if err != nil {
		return model.AccountBalance{}, err
	}

	resp, err := a.client.Points(ctx, &a.cfg, s.token, &PointsRequest{CardNumber: s.cardNumber})
	if err != nil {
		return model.AccountBalance{}, fmt.Errorf("deutschlandcard points: %w", err)
	}

	return model.AccountBalance{
		Points:         resp.Balance,
		ExpiringPoints: resp.ExpiringPoints,
		NextExpiry:     parseTime(resp.DateOfNextExpiry),
	}, nil
}

func (a *Adapter) session(sess provider.Session) (*session, error) {
	s, ok := sess.(*session)
	if !ok {
		return nil, fmt.Errorf("session does not belong to the deutschlandcard adapter")
	}
	return s, nil
}

// mapCoupon converts a wire coupon to the canonical shape.
// "NRG" (not yet registered) is the only activatable status the app exposes.
func mapCoupon(wc Coupon) model.Coupon {
	status := model.StatusUnknown
	switch wc.Status {
	case "NRG":
		status = model.StatusAvailable
	case "RG":
		status = model.StatusActivated
	}

	return model.Coupon{
		ID:               wc.PublicPromotionID,
		Partner:          wc.Content.PartnerName,
		Headline:         wc.Content.Headline,
		Description:      wc.Content.ShortDescription,
		Status:           status,
		RawStatus:        wc.Status,
		ValidFrom:        parseTime(wc.VisibleFrom),
		ValidTo:          parseTime(wc.VisibleTo),
		ExternalRedirect: wc.Content.AffiliateURLApp != "" || wc.Content.AffiliateURLWeb != "",
		PartnerSubgroup:  wc.PartnerSubgroup,
	}
}

// parseTime parses the timestamp shapes observed on the wire. A zero time is
// returned on failure, which the eligibility filter treats as out of window.
func parseTime(s string) time.Time {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	// Expiry dates arrive as "YYYY-MM-DD" with a provider-specific suffix.
	if len(s) > 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t
		}
	}
	return time.Time{}
}
