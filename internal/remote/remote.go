// Package remote is the client side of the forms API.
package remote

import (
	"context"

	"github.com/lofari/DynamicForms-sub000/internal/form"
)

// SubmitResponse is the server's structured answer to a submission. A
// transport failure is never represented as a SubmitResponse.
type SubmitResponse struct {
	Success      bool              `json:"success"`
	SubmissionID string            `json:"submissionId,omitempty"`
	Message      string            `json:"message,omitempty"`
	FieldErrors  map[string]string `json:"fieldErrors,omitempty"`
}

// Submitter delivers one submission. Calls repeated with the same
// idempotencyKey must yield the same response without duplicating effects.
type Submitter interface {
	Submit(ctx context.Context, formID string, values form.Values, idempotencyKey string) (*SubmitResponse, error)
}

// FormSource fetches form definitions.
type FormSource interface {
	ListFormSummaries(ctx context.Context) ([]form.Summary, error)
	GetForm(ctx context.Context, formID string) (*form.Definition, error)
}

// SubmitRequest is the submission body.
type SubmitRequest struct {
	Values form.Values `json:"values"`
}

// IdempotencyHeader carries the idempotency key of a submission.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader is set by the server on a replayed response.
const ReplayedHeader = "Idempotent-Replayed"
