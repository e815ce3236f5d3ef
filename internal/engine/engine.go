// Package engine implements the coupon activation orchestrator: one linear
// run per account (authenticate → catalog → coupon loop → balance) with
// whole-run failures for the outer phases and per-coupon fault isolation
// inside the loop.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bonuspilot/loyalty-engine/internal/metrics"
	"github.com/bonuspilot/loyalty-engine/internal/provider"
	"github.com/bonuspilot/loyalty-engine/pkg/model"
)

// Engine runs coupon activation for registered accounts. It holds no mutable
// state beyond its provider set; Run is safe to call concurrently for
// different accounts.
type Engine struct {
	logger    *zap.Logger
	providers map[model.Kind]provider.Provider
	now       func() time.Time
}

// New constructs an Engine over the given provider adapters.
func New(logger *zap.Logger, providers ...provider.Provider) *Engine {
	m := make(map[model.Kind]provider.Provider, len(providers))
	for _, p := range providers {
		m[p.Kind()] = p
	}
	return &Engine{
		logger:    logger,
		providers: m,
		now:       time.Now,
	}
}

// Run executes one activation run for one account and returns the aggregated
// result. Authentication, catalog and balance failures abort the run with a
// *model.RunError; coupon activation failures are absorbed into the errored
// count and never abort the loop.
func (e *Engine) Run(ctx context.Context, cred model.Credential) (*model.ActivationResult, error) {
	account := cred.Redacted()

	prov, ok := e.providers[cred.Kind]
	if !ok {
		return nil, model.NewRunError(model.PhaseAuthenticate, cred.Kind, account,
			fmt.Errorf("no provider registered for kind %q", cred.Kind))
	}

	e.logger.Info("engine.run.start",
		zap.String("provider", string(cred.Kind)),
		zap.String("account", account))

	result := &model.ActivationResult{
		RunID:     uuid.New(),
		Kind:      cred.Kind,
		Account:   account,
		StartedAt: e.now().UTC(),
	}

	sess, err := prov.Authenticate(ctx, cred)
	if err != nil {
		metrics.IncRunFailure(string(cred.Kind), string(model.PhaseAuthenticate))
		return nil, model.NewRunError(model.PhaseAuthenticate, cred.Kind, account, err)
	}

	coupons, err := prov.FetchCoupons(ctx, sess)
	if err != nil {
		metrics.IncRunFailure(string(cred.Kind), string(model.PhaseCatalog))
		return nil, model.NewRunError(model.PhaseCatalog, cred.Kind, account, err)
	}

	e.logger.Info("engine.catalog_fetched",
		zap.String("provider", string(cred.Kind)),
		zap.String("account", account),
		zap.Int("coupons", len(coupons)))

	now := e.now()
	for _, coupon := range coupons {
		outcome := e.processCoupon(ctx, prov, sess, coupon, now)
		result.Outcomes = append(result.Outcomes, outcome)

		switch outcome.Outcome {
		case model.OutcomeActivated:
			result.Activated++
		case model.OutcomeSkipped:
			result.Skipped++
		case model.OutcomeErrored:
			result.Errored++
		}
		metrics.IncCouponOutcome(string(cred.Kind), string(outcome.Outcome))
	}

	// Balance is reported regardless of how many coupons errored.
	balance, err := prov.FetchBalance(ctx, sess)
	if err != nil {
		metrics.IncRunFailure(string(cred.Kind), string(model.PhaseBalance))
		return nil, model.NewRunError(model.PhaseBalance, cred.Kind, account, err)
	}
	result.Balance = balance
	result.FinishedAt = e.now().UTC()

	e.logger.Info("engine.run.done",
		zap.String("provider", string(cred.Kind)),
		zap.String("account", account),
		zap.Int("activated", result.Activated),
		zap.Int("skipped", result.Skipped),
		zap.Int("errored", result.Errored),
		zap.Int64("points", balance.Points))

	return result, nil
}

// processCoupon decides and, when eligible, activates a single coupon.
// Every coupon yields exactly one outcome; activation failures stay inside
// this boundary.
func (e *Engine) processCoupon(ctx context.Context, prov provider.Provider, sess provider.Session, coupon model.Coupon, now time.Time) model.CouponOutcome {
	outcome := model.CouponOutcome{
		CouponID: coupon.ID,
		Partner:  coupon.Partner,
	}

	decision := Decide(coupon, now)
	if !decision.Eligible {
		outcome.Outcome = model.OutcomeSkipped
		outcome.Reason = string(decision.Reason)
		e.logger.Debug("engine.coupon_skipped",
			zap.String("provider", string(prov.Kind())),
			zap.String("coupon", coupon.Label()),
			zap.String("status", coupon.RawStatus),
			zap.String("reason", outcome.Reason))
		return outcome
	}

	if err := e.activate(ctx, prov, sess, coupon); err != nil {
		outcome.Outcome = model.OutcomeErrored
		outcome.Cause = err.Error()
		e.logger.Error("engine.coupon_activation_failed",
			zap.String("provider", string(prov.Kind())),
			zap.String("coupon_id", coupon.ID),
			zap.String("coupon", coupon.Label()),
			zap.Error(err))
		return outcome
	}

	outcome.Outcome = model.OutcomeActivated
	e.logger.Debug("engine.coupon_activated",
		zap.String("provider", string(prov.Kind())),
		zap.String("coupon", coupon.Label()))
	return outcome
}

// activate wraps the provider call so that even a panicking adapter cannot
// abort the remaining coupons in the batch.
func (e *Engine) activate(ctx context.Context, prov provider.Provider, sess provider.Session, coupon model.Coupon) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("activation panic: %v", r)
		}
	}()
	return prov.Activate(ctx, sess, coupon)
}
