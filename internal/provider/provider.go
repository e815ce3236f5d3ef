// Package provider defines the contract every loyalty provider adapter
// implements. The orchestrator is written once against this interface; the
// wire differences between providers live entirely inside the adapters.
package provider

import (
	"context"

	"github.com/bonuspilot/loyalty-engine/pkg/model"
)

// Session is the provider-issued auth bundle for one run. It is opaque to the
// orchestrator: each adapter type-asserts its own session back. Lifetime is a
// single run; sessions are never cached across runs.
type Session interface {
	// Account returns a redacted account label, safe for logs and events.
	Account() string
}

// Provider is the capability set shared by all loyalty providers.
type Provider interface {
	Kind() model.Kind

	// Authenticate performs the provider login. Any non-success response or
	// missing token fails the whole account run.
	Authenticate(ctx context.Context, cred model.Credential) (Session, error)

	// FetchCoupons returns the complete coupon catalog visible to the account,
	// materialized in memory. A partial catalog is never returned.
	FetchCoupons(ctx context.Context, sess Session) ([]model.Coupon, error)

	// Activate activates a single eligible coupon. Errors are absorbed per
	// coupon by the orchestrator; the call is never retried.
	Activate(ctx context.Context, sess Session, coupon model.Coupon) error

	// FetchBalance returns the account's point balance and next expiry.
	FetchBalance(ctx context.Context, sess Session) (model.AccountBalance, error)
}
