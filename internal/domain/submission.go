package domain

import (
	"time"
)

const (
	// SubmissionPending is the initial state of every submission.
	SubmissionPending SubmissionStatus = "pending"

	// SubmissionApproved is terminal; the submission materialized an extension.
	SubmissionApproved SubmissionStatus = "approved"

	// SubmissionRejected is terminal; the submitter received reviewer notes.
	SubmissionRejected SubmissionStatus = "rejected"

	// SubmissionNeedsChanges is terminal for this record; the submitter may
	// address the notes and create a new submission.
	SubmissionNeedsChanges SubmissionStatus = "needs_changes"
)

// SubmissionStatus is the review lifecycle state of a community submission.
type SubmissionStatus string

// Valid reports whether s is one of the known lifecycle states.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionPending, SubmissionApproved, SubmissionRejected, SubmissionNeedsChanges:
		return true
	default:
		return false
	}
}

// Submission is a community request to list an extension on the marketplace.
// Once a submission leaves pending, its decision fields are never mutated
// again; review history is append-only at the record level.
type Submission struct {
	ID             string           `json:"id"`
	RepositoryURL  string           `json:"repository_url"`
	SubmitterEmail string           `json:"submitter_email"`
	SubmitterName  string           `json:"submitter_name,omitempty"`
	Category       string           `json:"category"`
	Status         SubmissionStatus `json:"status"`
	ReviewerNotes  string           `json:"reviewer_notes,omitempty"`
	ReviewerEmail  string           `json:"reviewer_email,omitempty"`
	ReviewedAt     *time.Time       `json:"reviewed_at,omitempty"`
	ExtensionID    string           `json:"extension_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Decision captures the immutable outcome of an admin review action.
type Decision struct {
	Status        SubmissionStatus
	ReviewerEmail string
	Notes         string
	ReviewedAt    time.Time
	ExtensionID   string
}
