package queue

import (
	"errors"
	"time"

	"github.com/lofari/DynamicForms-sub000/internal/form"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSyncing Status = "SYNCING"
	StatusFailed  Status = "FAILED"
)

var (
	ErrNotFound    = errors.New("submission not found")
	ErrNotEligible = errors.New("submission not eligible")
)

// Submission is a durable queue record. Its ID doubles as the idempotency key
// sent to the server.
type Submission struct {
	ID           string      `json:"id"`
	FormID       string      `json:"formId"`
	FormTitle    string      `json:"formTitle"`
	Values       form.Values `json:"values"`
	Status       Status      `json:"status"`
	ErrorMessage *string     `json:"errorMessage,omitempty"`
	AttemptCount int         `json:"attemptCount"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Update is a partial status update. Nil fields keep their stored value; an
// ErrorMessage pointing at "" clears it.
type Update struct {
	Status       Status
	ErrorMessage *string
	AttemptCount *int
}

func Message(s string) *string { return &s }

func Attempts(n int) *int { return &n }
