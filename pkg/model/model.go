package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/bonuspilot/loyalty-engine/pkg/utils"
)

// Kind identifies a loyalty provider.
type Kind string

const (
	KindDeutschlandCard Kind = "deutschlandcard"
	KindPayback         Kind = "payback"
)

// Kinds lists all supported providers, in run order.
var Kinds = []Kind{KindDeutschlandCard, KindPayback}

// Credential holds one account's login data. It is owned by the account store
// and passed into the engine by value per run; the engine never persists it.
type Credential struct {
	Kind       Kind   `json:"kind"`
	Identifier string `json:"identifier"`            // card number, customer number or email
	Secret     string `json:"secret,omitempty"`      // account password (Payback)
	BirthDate  string `json:"birth_date,omitempty"`  // "YYYY-MM-DD" (DeutschlandCard)
	PostalCode string `json:"postal_code,omitempty"` // (DeutschlandCard)
}

// Redacted returns a log-safe account label. No secret material is included.
func (c Credential) Redacted() string {
	return string(c.Kind) + ":" + utils.MaskIdentifier(c.Identifier)
}

// CouponStatus is the canonical coupon status across providers. Provider
// adapters map their wire enumeration onto it; anything they cannot map with
// confidence becomes StatusUnknown, which the filter treats as not available.
type CouponStatus string

const (
	StatusAvailable CouponStatus = "available"
	StatusActivated CouponStatus = "activated"
	StatusUsed      CouponStatus = "used"
	StatusUnknown   CouponStatus = "unknown"
)

// Coupon is a provider coupon normalized for the engine. Immutable once fetched
// within a run.
type Coupon struct {
	ID          string       `json:"id"`
	Partner     string       `json:"partner"`
	Headline    string       `json:"headline"`
	Description string       `json:"description"`
	Status      CouponStatus `json:"status"`
	RawStatus   string       `json:"raw_status"` // provider wire value, for logs
	ValidFrom   time.Time    `json:"valid_from"`
	ValidTo     time.Time    `json:"valid_to"`

	// ExternalRedirect marks coupons that require an affiliate/external flow
	// and therefore cannot be activated in-engine.
	ExternalRedirect bool `json:"external_redirect"`

	// PartnerSubgroup is required by DeutschlandCard's activation endpoint;
	// empty for other providers.
	PartnerSubgroup string `json:"partner_subgroup,omitempty"`
}

// Label returns a compact human-readable coupon description for logs.
func (c Coupon) Label() string {
	s := c.Partner
	if c.Headline != "" {
		s += " " + c.Headline
	}
	return s
}

// Outcome classifies what happened to a single coupon in one run.
type Outcome string

const (
	OutcomeActivated Outcome = "activated"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeErrored   Outcome = "errored"
)

// CouponOutcome records one coupon's outcome. Cause is the error text for
// errored coupons (kept as a string so outcomes serialize cleanly).
type CouponOutcome struct {
	CouponID string  `json:"coupon_id"`
	Partner  string  `json:"partner"`
	Outcome  Outcome `json:"outcome"`
	Reason   string  `json:"reason,omitempty"`
	Cause    string  `json:"cause,omitempty"`
}

// AccountBalance is the point balance reported at the end of a run.
type AccountBalance struct {
	Points         int64     `json:"points"`
	ExpiringPoints int64     `json:"expiring_points"`
	NextExpiry     time.Time `json:"next_expiry"`
}

// ActivationResult aggregates one run for one account. The three counts and
// the balance are the guaranteed minimum shape; Outcomes carries the per-coupon
// detail for richer reporting.
type ActivationResult struct {
	RunID      uuid.UUID       `json:"run_id"`
	Kind       Kind            `json:"kind"`
	Account    string          `json:"account"` // redacted label, log/event safe
	Activated  int             `json:"activated"`
	Skipped    int             `json:"skipped"`
	Errored    int             `json:"errored"`
	Balance    AccountBalance  `json:"balance"`
	Outcomes   []CouponOutcome `json:"outcomes,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Considered returns the number of coupons that yielded an outcome. Always
// equals the catalog size for a completed run.
func (r *ActivationResult) Considered() int {
	return r.Activated + r.Skipped + r.Errored
}
