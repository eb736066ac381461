package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/lofari/DynamicForms-sub000/internal/form"
	"github.com/lofari/DynamicForms-sub000/internal/formdef"
	"github.com/lofari/DynamicForms-sub000/internal/idempotency"
	"github.com/lofari/DynamicForms-sub000/internal/remote"
	"github.com/lofari/DynamicForms-sub000/internal/rules"
)

type Handler struct {
	registry    *formdef.Registry
	submissions *SubmissionStore
	guard       *idempotency.Guard
	policy      *bluemonday.Policy
	logger      *zap.Logger
}

// NewHandler builds the API handler. A nil guard disables idempotent replay.
func NewHandler(reg *formdef.Registry, subs *SubmissionStore, guard *idempotency.Guard, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry:    reg,
		submissions: subs,
		guard:       guard,
		policy:      bluemonday.StrictPolicy(),
		logger:      logger,
	}
}

// ListForms handles GET /api/forms
func (h *Handler) ListForms(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.registry.Summaries()})
}

// GetForm handles GET /api/forms/:id
func (h *Handler) GetForm(c *fiber.Ctx) error {
	def, err := h.resolveForm(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": def})
}

// ListSubmissions handles GET /api/forms/:id/submissions
func (h *Handler) ListSubmissions(c *fiber.Ctx) error {
	def, err := h.resolveForm(c)
	if err != nil {
		return err
	}
	subs, err := h.submissions.List(c.UserContext(), def.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": subs})
}

// Submit handles POST /api/forms/:id/submissions
func (h *Handler) Submit(c *fiber.Ctx) error {
	def, err := h.resolveForm(c)
	if err != nil {
		return err
	}

	var body remote.SubmitRequest
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "Invalid JSON body")
	}
	if body.Values == nil {
		body.Values = form.Values{}
	}

	key := strings.Clone(strings.TrimSpace(c.Get(remote.IdempotencyHeader)))
	run := func(ctx context.Context) (idempotency.Outcome, error) {
		return h.process(ctx, def, body.Values, key)
	}

	var (
		out      idempotency.Outcome
		replayed bool
	)
	if key == "" || h.guard == nil {
		out, err = run(c.UserContext())
	} else {
		out, replayed, err = h.guard.Do(c.UserContext(), idempotency.Key(def.ID, key), run)
	}
	if err != nil {
		return err
	}

	if replayed {
		c.Set(remote.ReplayedHeader, "true")
		h.logger.Info("submission replayed", zap.String("form_id", def.ID), zap.String("idempotency_key", key))
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(out.Status).Send(out.Body)
}

// process validates, sanitises and stores one submission. Validation and rule
// failures are structured 422 outcomes, not errors.
func (h *Handler) process(ctx context.Context, def *form.Definition, values form.Values, key string) (idempotency.Outcome, error) {
	if errs := rules.ValidateAll(def.Pages, values); len(errs) > 0 {
		return outcome(fiber.StatusUnprocessableEntity, remote.SubmitResponse{
			Message:     "Validation failed",
			FieldErrors: errs,
		})
	}

	violations, broken := rules.EvaluateExpressions(def.Rules, values)
	for _, err := range broken {
		h.logger.Warn("expression rule skipped", zap.String("form_id", def.ID), zap.Error(err))
	}
	if len(violations) > 0 {
		msgs := make([]string, 0, len(violations))
		for _, v := range violations {
			msgs = append(msgs, v.Message)
		}
		return outcome(fiber.StatusUnprocessableEntity, remote.SubmitResponse{
			Message: strings.Join(msgs, "; "),
		})
	}

	id, err := h.submissions.Insert(ctx, def.ID, h.sanitize(values), key)
	if err != nil {
		return idempotency.Outcome{}, err
	}
	h.logger.Info("submission stored", zap.String("form_id", def.ID), zap.String("submission_id", id))
	return outcome(fiber.StatusOK, remote.SubmitResponse{Success: true, SubmissionID: id})
}

// sanitize strips markup from every value, keeping the text.
func (h *Handler) sanitize(values form.Values) form.Values {
	out := make(form.Values, len(values))
	for k, v := range values {
		out[k] = html.UnescapeString(h.policy.Sanitize(v))
	}
	return out
}

func (h *Handler) resolveForm(c *fiber.Ctx) (*form.Definition, error) {
	id := c.Params("id")
	def := h.registry.Get(id)
	if def == nil {
		return nil, NotFoundError("form", id)
	}
	return def, nil
}

func outcome(status int, resp remote.SubmitResponse) (idempotency.Outcome, error) {
	body, err := json.Marshal(resp)
	if err != nil {
		return idempotency.Outcome{}, fmt.Errorf("encode response: %w", err)
	}
	return idempotency.Outcome{Status: status, Body: body}, nil
}
