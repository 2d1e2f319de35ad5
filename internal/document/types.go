package document

import (
	"errors"
	"time"
)

// Statuses a verification document moves through. Rejection is terminal and
// reachable from any pre-minted state.
const (
	StatusPending     = "pending"
	StatusUnderReview = "under_review"
	StatusAttested    = "attested"
	StatusMinted      = "minted"
	StatusRejected    = "rejected"
)

// Document is one project-verification submission.
type Document struct {
	ID               string    `json:"id"`
	Owner            string    `json:"owner"`
	ProjectName      string    `json:"project_name"`
	ProjectType      string    `json:"project_type,omitempty"`
	Status           string    `json:"status"`
	EstimatedCredits int64     `json:"estimated_credits"`
	Note             string    `json:"note,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

var (
	ErrNotFound          = errors.New("document not found")
	ErrInvalidInput      = errors.New("invalid document input")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Statuses lists all document statuses, used for count maps and validation.
func Statuses() []string {
	return []string{StatusPending, StatusUnderReview, StatusAttested, StatusMinted, StatusRejected}
}

// CanTransition reports whether the review state machine permits from -> to.
func CanTransition(from, to string) bool {
	return validTransition(from, to)
}

// validTransition encodes the review state machine.
func validTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusUnderReview || to == StatusRejected
	case StatusUnderReview:
		return to == StatusAttested || to == StatusRejected
	case StatusAttested:
		return to == StatusMinted || to == StatusRejected
	default:
		return false
	}
}
