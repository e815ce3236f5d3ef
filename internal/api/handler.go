package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/bonuspilot/loyalty-engine/internal/accounts"
	"github.com/bonuspilot/loyalty-engine/pkg/model"
)

// CycleTrigger starts one activation cycle across all enrolled accounts.
type CycleTrigger interface {
	RunAll(ctx context.Context)
}

// ResultReader returns the latest cached run for an account.
type ResultReader interface {
	LastResult(ctx context.Context, kind model.Kind, identifier string) (*model.ActivationResult, error)
}

// Handler handles HTTP API requests for the loyalty engine.
type Handler struct {
	logger   *zap.Logger
	trigger  CycleTrigger
	results  ResultReader
	accounts accounts.Store
}

// NewHandler creates a new Handler.
func NewHandler(logger *zap.Logger, trigger CycleTrigger, results ResultReader, accts accounts.Store) *Handler {
	return &Handler{
		logger:   logger,
		trigger:  trigger,
		results:  results,
		accounts: accts,
	}
}

// TriggerActivation kicks off an activation cycle in the background and
// returns immediately. A full cycle can take minutes against slow providers.
func (h *Handler) TriggerActivation(c *fiber.Ctx) error {
	h.logger.Info("api.activation_triggered")
	go h.trigger.RunAll(context.Background())
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "started"})
}

// LastResult returns the latest cached run for one account.
func (h *Handler) LastResult(c *fiber.Ctx) error {
	kind, err := parseKind(c.Params("kind"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	identifier := c.Params("identifier")

	// Results are cached under the redacted account label, never the raw
	// identifier.
	label := model.Credential{Kind: kind, Identifier: identifier}.Redacted()
	result, err := h.results.LastResult(c.Context(), kind, label)
	if err != nil {
		h.logger.Error("api.last_result.failed",
			zap.String("account", label),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if result == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no result for account"})
	}
	return c.JSON(result)
}

// EnrollRequest is the payload for account enrollment.
type EnrollRequest struct {
	Kind       string `json:"kind"`
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	BirthDate  string `json:"birthDate"`
	PostalCode string `json:"postalCode"`
}

// Validate checks the provider-specific required fields.
func (r *EnrollRequest) Validate() error {
	if r.Identifier == "" {
		return errors.New("identifier is required")
	}
	switch model.Kind(r.Kind) {
	case model.KindDeutschlandCard:
		if r.BirthDate == "" || r.PostalCode == "" {
			return errors.New("birthDate and postalCode are required for deutschlandcard")
		}
	case model.KindPayback:
		if r.Secret == "" {
			return errors.New("secret is required for payback")
		}
	default:
		return errors.New("unknown provider kind")
	}
	return nil
}

// EnrollAccount enrolls an account or replaces its credential fields.
func (h *Handler) EnrollAccount(c *fiber.Ctx) error {
	var req EnrollRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	cred := model.Credential{
		Kind:       model.Kind(req.Kind),
		Identifier: req.Identifier,
		Secret:     req.Secret,
		BirthDate:  req.BirthDate,
		PostalCode: req.PostalCode,
	}
	if err := h.accounts.UpsertAccount(c.Context(), cred); err != nil {
		h.logger.Error("api.enroll.failed",
			zap.String("account", cred.Redacted()),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	h.logger.Info("api.enrolled", zap.String("account", cred.Redacted()))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"account": cred.Redacted()})
}

// DeleteAccount removes an enrolled account.
func (h *Handler) DeleteAccount(c *fiber.Ctx) error {
	kind, err := parseKind(c.Params("kind"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	identifier := c.Params("identifier")

	if err := h.accounts.DeleteAccount(c.Context(), kind, identifier); err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "account not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func parseKind(s string) (model.Kind, error) {
	for _, k := range model.Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", errors.New("unknown provider kind: " + s)
}
