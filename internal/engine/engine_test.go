package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bonuspilot/loyalty-engine/internal/provider"
	"github.com/bonuspilot/loyalty-engine/pkg/model"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type fakeSession struct{ label string }

func (s *fakeSession) Account() string { return s.label }

// fakeProvider scripts one account run and records which calls were made.
type fakeProvider struct {
	kind model.Kind

	authErr    error
	catalogErr error
	balanceErr error

	coupons []model.Coupon
	balance model.AccountBalance

	// activateErr maps coupon ID to the error its activation should return.
	activateErr map[string]error
	// activatePanic panics activation for the given coupon ID.
	activatePanic string

	catalogCalls  int
	balanceCalls  int
	activatedIDs  []string
	authenticated bool
}

func (p *fakeProvider) Kind() model.Kind { return p.kind }

func (p *fakeProvider) Authenticate(_ context.Context, cred model.Credential) (provider.Session, error) {
	if p.authErr != nil {
		return nil, p.authErr
	}
	p.authenticated = true
	return &fakeSession{label: cred.Redacted()}, nil
}

func (p *fakeProvider) FetchCoupons(_ context.Context, _ provider.Session) ([]model.Coupon, error) {
	p.catalogCalls++
	if p.catalogErr != nil {
		return nil, p.catalogErr
	}
	return p.coupons, nil
}

func (p *fakeProvider) Activate(_ context.Context, _ provider.Session, c model.Coupon) error {
	if c.ID == p.activatePanic {
		panic("adapter bug")
	}
	if err, ok := p.activateErr[c.ID]; ok {
		return err
	}
	p.activatedIDs = append(p.activatedIDs, c.ID)
	return nil
}

func (p *fakeProvider) FetchBalance(_ context.Context, _ provider.Session) (model.AccountBalance, error) {
	p.balanceCalls++
	if p.balanceErr != nil {
		return model.AccountBalance{}, p.balanceErr
	}
	return p.balance, nil
}

func newTestEngine(p *fakeProvider) *Engine {
	e := New(zap.NewNop(), p)
	e.now = func() time.Time { return testNow }
	return e
}

func inWindow(id string) model.Coupon {
	return model.Coupon{
		ID:        id,
		Partner:   "REWE",
		Status:    model.StatusAvailable,
		ValidFrom: testNow.Add(-24 * time.Hour),
		ValidTo:   testNow.Add(24 * time.Hour),
	}
}

func testCred() model.Credential {
	return model.Credential{Kind: model.KindPayback, Identifier: "30812345678", Secret: "pw"}
}

func TestRun_MixedCatalog(t *testing.T) {
	used := inWindow("c2")
	used.Status = model.StatusUsed
	affiliate := inWindow("c3")
	affiliate.ExternalRedirect = true

	prov := &fakeProvider{
		kind:    model.KindPayback,
		coupons: []model.Coupon{inWindow("c1"), used, affiliate},
		balance: model.AccountBalance{Points: 1234, ExpiringPoints: 50},
	}

	res, err := newTestEngine(prov).Run(context.Background(), testCred())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Activated)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 0, res.Errored)
	assert.Equal(t, []string{"c1"}, prov.activatedIDs)
	assert.Equal(t, int64(1234), res.Balance.Points)
	assert.Equal(t, len(prov.coupons), res.Considered())
}

func TestRun_AuthFailureAbortsBeforeCatalog(t *testing.T) {
	prov := &fakeProvider{
		kind:    model.KindPayback,
		authErr: errors.New("login rejected"),
	}

	res, err := newTestEngine(prov).Run(context.Background(), testCred())
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAuthentication))

	// No catalog, activation or balance calls after a failed login.
	assert.Equal(t, 0, prov.catalogCalls)
	assert.Equal(t, 0, prov.balanceCalls)
	assert.Empty(t, prov.activatedIDs)
}

func TestRun_CatalogFailureIsWholeRun(t *testing.T) {
	prov := &fakeProvider{
		kind:       model.KindPayback,
		catalogErr: errors.New("502 from provider"),
	}

	res, err := newTestEngine(prov).Run(context.Background(), testCred())
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrCatalogFetch))
	assert.Equal(t, 0, prov.balanceCalls)
}

func TestRun_ActivationErrorIsIsolated(t *testing.T) {
	prov := &fakeProvider{
		kind:        model.KindPayback,
		coupons:     []model.Coupon{inWindow("c1"), inWindow("c2")},
		activateErr: map[string]error{"c1": errors.New("promotion gone")},
		balance:     model.AccountBalance{Points: 99},
	}

	res, err := newTestEngine(prov).Run(context.Background(), testCred())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Activated)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 1, res.Errored)
	assert.Equal(t, []string{"c2"}, prov.activatedIDs, "remaining coupons still attempted")
	assert.Equal(t, 1, prov.balanceCalls, "balance still fetched after coupon errors")
	assert.Equal(t, int64(99), res.Balance.Points)

	// The errored outcome carries the cause.
	var errored *model.CouponOutcome
	for i := range res.Outcomes {
		if res.Outcomes[i].Outcome == model.OutcomeErrored {
			errored = &res.Outcomes[i]
		}
	}
	require.NotNil(t, errored)
	assert.Equal(t, "c1", errored.CouponID)
	assert.Contains(t, errored.Cause, "promotion gone")
}

func TestRun_ActivationPanicIsIsolated(t *testing.T) {
	prov := &fakeProvider{
		kind:          model.KindPayback,
		coupons:       []model.Coupon{inWindow("c1"), inWindow("c2")},
		activatePanic: "c1",
		balance:       model.AccountBalance{Points: 7},
	}

	res, err := newTestEngine(prov).Run(context.Background(), testCred())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Activated)
	assert.Equal(t, 1, res.Errored)
	assert.Equal(t, 1, prov.balanceCalls)
}

func TestRun_EmptyCatalog(t *testing.T) {
	prov := &fakeProvider{
		kind:    model.KindPayback,
		coupons: nil,
		balance: model.AccountBalance{Points: 500},
	}

	res, err := newTestEngine(prov).Run(context.Background(), testCred())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Activated)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 0, res.Errored)
	assert.Equal(t, 1, prov.balanceCalls, "balance still fetched for empty catalog")
	assert.Equal(t, int64(500), res.Balance.Points)
}

func TestRun_BalanceFailureIsWholeRun(t *testing.T) {
	prov := &fakeProvider{
		kind:       model.KindPayback,
		coupons:    []model.Coupon{inWindow("c1")},
		balanceErr: errors.New("timeout"),
	}

	res, err := newTestEngine(prov).Run(context.Background(), testCred())
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrBalanceFetch))

	// The coupon loop completed before the balance fetch failed.
	assert.Equal(t, []string{"c1"}, prov.activatedIDs)
}

func TestRun_UnknownProviderKind(t *testing.T) {
	e := New(zap.NewNop()) // no providers registered

	res, err := e.Run(context.Background(), testCred())
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAuthentication))
}

func TestRun_CountsInvariant(t *testing.T) {
	expired := inWindow("c3")
	expired.ValidTo = testNow.Add(-time.Hour)

	prov := &fakeProvider{
		kind:        model.KindPayback,
		coupons:     []model.Coupon{inWindow("c1"), inWindow("c2"), expired, inWindow("c4")},
		activateErr: map[string]error{"c2": errors.New("boom")},
	}

	res, err := newTestEngine(prov).Run(context.Background(), testCred())
	require.NoError(t, err)

	assert.Equal(t, len(prov.coupons), res.Considered(), "every coupon yields exactly one outcome")
	assert.Len(t, res.Outcomes, len(prov.coupons))
}
