package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bonuspilot/loyalty-engine/internal/accounts"
	"github.com/bonuspilot/loyalty-engine/pkg/model"
)

// --- Mocks ---

type mockTrigger struct {
	mu    sync.Mutex
	calls int
	done  chan struct{}
}

func (m *mockTrigger) RunAll(context.Context) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.done != nil {
		close(m.done)
	}
}

type mockResults struct {
	results map[string]*model.ActivationResult
	err     error
}

func (m *mockResults) LastResult(_ context.Context, kind model.Kind, identifier string) (*model.ActivationResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.results[string(kind)+"/"+identifier], nil
}

type mockAccounts struct {
	upserted []model.Credential
	deleted  []string
	delErr   error
}

func (m *mockAccounts) ListAccounts(context.Context, model.Kind) ([]model.Credential, error) {
	return nil, nil
}
func (m *mockAccounts) ListAllAccounts(context.Context) ([]model.Credential, error) {
	return nil, nil
}
func (m *mockAccounts) UpsertAccount(_ context.Context, cred model.Credential) error {
	m.upserted = append(m.upserted, cred)
	return nil
}
func (m *mockAccounts) DeleteAccount(_ context.Context, kind model.Kind, identifier string) error {
	if m.delErr != nil {
		return m.delErr
	}
	m.deleted = append(m.deleted, string(kind)+"/"+identifier)
	return nil
}
func (m *mockAccounts) HealthCheck(context.Context) error { return nil }
func (m *mockAccounts) Close() error                      { return nil }

// --- Test Helpers ---

func newTestApp(trigger *mockTrigger, results *mockResults, accts *mockAccounts) *fiber.App {
	app := fiber.New()
	handler := NewHandler(zap.NewNop(), trigger, results, accts)
	v1 := app.Group("/api/v1")
	v1.Post("/activate", handler.TriggerActivation)
	v1.Get("/results/:kind/:identifier", handler.LastResult)
	v1.Post("/accounts", handler.EnrollAccount)
	v1.Delete("/accounts/:kind/:identifier", handler.DeleteAccount)
	return app
}

// --- Tests ---

func TestTriggerActivation(t *testing.T) {
	trigger := &mockTrigger{done: make(chan struct{})}
	app := newTestApp(trigger, &mockResults{}, &mockAccounts{})

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/activate", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	<-trigger.done
	assert.Equal(t, 1, trigger.calls)
}

func TestLastResult_Found(t *testing.T) {
	label := model.Credential{Kind: model.KindPayback, Identifier: "30812345678"}.Redacted()
	results := &mockResults{results: map[string]*model.ActivationResult{
		"payback/" + label: {
			RunID:     uuid.New(),
			Kind:      model.KindPayback,
			Account:   label,
			Activated: 5,
			Balance:   model.AccountBalance{Points: 1234},
		},
	}}
	app := newTestApp(&mockTrigger{}, results, &mockAccounts{})

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/results/payback/30812345678", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result model.ActivationResult
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 5, result.Activated)
	assert.Equal(t, label, result.Account)
}

func TestLastResult_NotFound(t *testing.T) {
	app := newTestApp(&mockTrigger{}, &mockResults{}, &mockAccounts{})

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/results/payback/30812345678", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestLastResult_BadKind(t *testing.T) {
	app := newTestApp(&mockTrigger{}, &mockResults{}, &mockAccounts{})

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/results/clubcard/123", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestEnrollAccount_Payback(t *testing.T) {
	accts := &mockAccounts{}
	app := newTestApp(&mockTrigger{}, &mockResults{}, accts)

	body := `{"kind":"payback","identifier":"30812345678","secret":"hunter2"}`
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/accounts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	require.Len(t, accts.upserted, 1)
	assert.Equal(t, model.KindPayback, accts.upserted[0].Kind)

	// The response echoes the redacted label, not the secret.
	respBody, _ := io.ReadAll(resp.Body)
	assert.NotContains(t, string(respBody), "hunter2")
}

func TestEnrollAccount_DeutschlandCardRequiresBirthDate(t *testing.T) {
	accts := &mockAccounts{}
	app := newTestApp(&mockTrigger{}, &mockResults{}, accts)

	body := `{"kind":"deutschlandcard","identifier":"6394560000012345"}`
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/accounts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, accts.upserted)
}

func TestDeleteAccount(t *testing.T) {
	accts := &mockAccounts{}
	app := newTestApp(&mockTrigger{}, &mockResults{}, accts)

	req, _ := http.NewRequest(http.MethodDelete, "/api/v1/accounts/payback/30812345678", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"payback/30812345678"}, accts.deleted)
}

func TestDeleteAccount_NotFound(t *testing.T) {
	accts := &mockAccounts{delErr: accounts.ErrNotFound}
	app := newTestApp(&mockTrigger{}, &mockResults{}, accts)

	req, _ := http.NewRequest(http.MethodDelete, "/api/v1/accounts/payback/30812345678", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
