package model

import (
	"errors"
	"fmt"
)

// Whole-run failure kinds. A RunError wraps one of these depending on the
// phase that failed; per-coupon activation errors are never surfaced this way.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrCatalogFetch   = errors.New("coupon catalog fetch failed")
	ErrBalanceFetch   = errors.New("balance fetch failed")
)

// Phase names the orchestration step a whole-run failure occurred in.
type Phase string

const (
	PhaseAuthenticate Phase = "authenticate"
	PhaseCatalog      Phase = "catalog"
	PhaseBalance      Phase = "balance"
)

// RunError is a whole-run failure for one account. It is fatal to that
// account's run only; other accounts in the same cycle are unaffected.
type RunError struct {
	Phase   Phase
	Kind    Kind
	Account string // redacted label
	Cause   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s run failed for %s in phase %s: %v", e.Kind, e.Account, e.Phase, e.Cause)
}

func (e *RunError) Unwrap() error { return e.Cause }

// Is maps the failed phase onto the corresponding sentinel, so callers can
// test errors.Is(err, model.ErrAuthentication) etc.
func (e *RunError) Is(target error) bool {
	switch e.Phase {
	case PhaseAuthenticate:
		return target == ErrAuthentication
	case PhaseCatalog:
		return target == ErrCatalogFetch
	case PhaseBalance:
		return target == ErrBalanceFetch
	}
	return false
}

// NewRunError builds a RunError for the given phase and account.
func NewRunError(phase Phase, kind Kind, account string, cause error) *RunError {
	return &RunError{Phase: phase, Kind: kind, Account: account, Cause: cause}
}
