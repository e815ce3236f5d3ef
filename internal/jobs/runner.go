package jobs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/bonuspilot/loyalty-engine/internal/metrics"
	"github.com/bonuspilot/loyalty-engine/pkg/model"
)

// CouponEngine runs the activation flow for one account.
type CouponEngine interface {
	Run(ctx context.Context, cred model.Credential) (*model.ActivationResult, error)
}

// AccountLister supplies the enrolled accounts to process each cycle.
type AccountLister interface {
	ListAllAccounts(ctx context.Context) ([]model.Credential, error)
}

// ResultSink persists completed runs and whole-run failures.
type ResultSink interface {
	SaveResult(ctx context.Context, result *model.ActivationResult) error
	RecordRunFailure(ctx context.Context, kind model.Kind, account, phase, cause string) error
}

// EventPublisher emits activation events for downstream consumers.
type EventPublisher interface {
	PublishResult(ctx context.Context, result *model.ActivationResult) error
	PublishRunFailed(ctx context.Context, runErr *model.RunError) error
}

// Runner triggers the activation cycle on a fixed interval, typically daily.
// One failed account never blocks the remaining accounts in the cycle.
type Runner struct {
	logger        *zap.Logger
	engine        CouponEngine
	accounts      AccountLister
	sink          ResultSink
	publisher     EventPublisher
	interval      time.Duration
	firstRunDelay time.Duration
	stopCh        chan struct{}
}

// NewRunner constructs the periodic activation job.
func NewRunner(logger *zap.Logger, engine CouponEngine, accounts AccountLister, sink ResultSink, pub EventPublisher, interval, firstRunDelay time.Duration) *Runner {
	return &Runner{
		logger:        logger,
		engine:        engine,
		accounts:      accounts,
		sink:          sink,
		publisher:     pub,
		interval:      interval,
		firstRunDelay: firstRunDelay,
		stopCh:        make(chan struct{}),
	}
}

// Start runs the activation loop. The first cycle fires after a short delay
// so the process can finish wiring up before provider traffic starts.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("runner.started",
		zap.Duration("interval", r.interval),
		zap.Duration("first_run_delay", r.firstRunDelay))

	first := time.NewTimer(r.firstRunDelay)
	defer first.Stop()

	select {
	case <-first.C:
		r.RunAll(ctx)
	case <-r.stopCh:
		r.logger.Info("runner.stopped (manual stop)")
		return
	case <-ctx.Done():
		r.logger.Info("runner.stopped (context canceled)")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunAll(ctx)
		case <-r.stopCh:
			r.logger.Info("runner.stopped (manual stop)")
			return
		case <-ctx.Done():
			r.logger.Info("runner.stopped (context canceled)")
			return
		}
	}
}

// Stop gracefully halts the runner.
func (r *Runner) Stop() {
	close(r.stopCh)
}

// RunAll executes one activation cycle across every enrolled account.
func (r *Runner) RunAll(ctx context.Context) {
	start := time.Now()

	creds, err := r.accounts.ListAllAccounts(ctx)
	if err != nil {
		r.logger.Error("runner.list_accounts_failed", zap.Error(err))
		metrics.IncError("runner", "list_accounts_failed")
		return
	}

	r.logger.Info("runner.cycle_started", zap.Int("accounts", len(creds)))

	for _, cred := range creds {
		select {
		case <-ctx.Done():
			r.logger.Info("runner.cycle_aborted")
			return
		default:
		}
		r.runAccount(ctx, cred)
	}

	r.logger.Info("runner.cycle_finished",
		zap.Int("accounts", len(creds)),
		zap.Duration("duration", time.Since(start)))
}

// runAccount runs one account and records the outcome. Failures are logged
// and published but never propagated to the cycle.
func (r *Runner) runAccount(ctx context.Context, cred model.Credential) {
	result, err := r.engine.Run(ctx, cred)
	if err != nil {
		metrics.IncRun(string(cred.Kind), "failed")

		var runErr *model.RunError
		if errors.As(err, &runErr) {
			if serr := r.sink.RecordRunFailure(ctx, runErr.Kind, runErr.Account, string(runErr.Phase), err.Error()); serr != nil {
				r.logger.Warn("runner.record_failure_failed", zap.Error(serr))
			}
			if perr := r.publisher.PublishRunFailed(ctx, runErr); perr != nil {
				r.logger.Warn("runner.publish_failure_failed", zap.Error(perr))
			}
		}
		r.logger.Error("runner.account_failed",
			zap.String("account", cred.Redacted()),
			zap.Error(err))
		return
	}

	metrics.IncRun(string(cred.Kind), "ok")
	metrics.SetLastRun(string(cred.Kind), time.Now())

	if err := r.sink.SaveResult(ctx, result); err != nil {
		r.logger.Warn("runner.save_result_failed",
			zap.String("account", result.Account),
			zap.Error(err))
	}
	if err := r.publisher.PublishResult(ctx, result); err != nil {
		r.logger.Warn("runner.publish_result_failed",
			zap.String("account", result.Account),
			zap.Error(err))
	}

	r.logger.Info("runner.account_finished",
		zap.String("account", result.Account),
		zap.Int("activated", result.Activated),
		zap.Int("skipped", result.Skipped),
		zap.Int("errored", result.Errored),
		zap.Int64("points", result.Balance.Points))
}
