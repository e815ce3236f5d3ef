package engine

import (
	"time"

	"github.com/bonuspilot/loyalty-engine/pkg/model"
)

// SkipReason names why a coupon was not activated.
type SkipReason string

const (
	SkipExternalRedirect SkipReason = "affiliate/external"
	SkipNotAvailable     SkipReason = "not available"
	SkipOutsideWindow    SkipReason = "outside validity window"
)

// Decision is the outcome of the eligibility filter for one coupon.
type Decision struct {
	Eligible bool
	Reason   SkipReason // set when not eligible
}

// Decide determines whether a coupon should be activated at time now.
// First match wins, evaluated per coupon with no shared state:
//
//  1. external redirect/affiliate target → skip
//  2. status other than available → skip
//  3. now not strictly inside (ValidFrom, ValidTo) → skip; both bounds are
//     exclusive, matching provider-observed semantics
//  4. otherwise → eligible
//
// Pure function: same coupon and now always yield the same decision.
func Decide(c model.Coupon, now time.Time) Decision {
	if c.ExternalRedirect {
		return Decision{Reason: SkipExternalRedirect}
	}
	if c.Status != model.StatusAvailable {
		return Decision{Reason: SkipNotAvailable}
	}
	if !now.After(c.ValidFrom) || !now.Before(c.ValidTo) {
		return Decision{Reason: SkipOutsideWindow}
	}
	return Decision{Eligible: true}
}
