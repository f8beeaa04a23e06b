// Package contracts defines the interfaces through which the sync pipeline and
// the submission review flow consume their collaborators. Implementations live
// in internal/store, internal/ratelimit and internal/upstream; tests substitute
// fakes.
package contracts

import (
	"context"
	"time"

	"github.com/bpx-store/bpxd/internal/domain"
)

// ExtensionStore persists extensions and their version histories.
type ExtensionStore interface {
	// GetExtensionByName resolves an extension by its public name.
	// Returns errors.ErrExtensionNotFound when absent.
	GetExtensionByName(ctx context.Context, name string) (*domain.Extension, error)

	// ListExtensions returns all extensions known to the store.
	ListExtensions(ctx context.Context) ([]domain.Extension, error)

	// GetVersions returns the persisted versions for an extension.
	GetVersions(ctx context.Context, extensionID string) ([]domain.ExtensionVersion, error)

	// AppendVersion atomically persists a new version record and advances the
	// extension's latest-version pointer when the new version supersedes it.
	// Appending a version that already exists fails with
	// errors.ErrVersionDigestMismatch if the digest differs, so persisted
	// digests are immutable.
	AppendVersion(ctx context.Context, extensionID string, version domain.ExtensionVersion) error
}

// SubmissionStore persists community submissions and their review decisions.
type SubmissionStore interface {
	// CreateSubmission persists a new pending submission and returns it with
	// its assigned ID.
	CreateSubmission(ctx context.Context, sub domain.Submission) (*domain.Submission, error)

	// GetSubmission resolves a submission by ID.
	// Returns errors.ErrSubmissionNotFound when absent.
	GetSubmission(ctx context.Context, id string) (*domain.Submission, error)

	// RecordDecision atomically applies a review decision to a pending
	// submission. It fails with errors.ErrSubmissionDecided when the
	// submission has already left pending; decision fields are written once
	// and never mutated again.
	RecordDecision(ctx context.Context, id string, decision domain.Decision) (*domain.Submission, error)

	// ApproveSubmission atomically creates the extension, its first version
	// and the approval decision in one unit: either all three commit or none
	// do. The created extension is returned with its assigned ID.
	ApproveSubmission(
		ctx context.Context,
		id string,
		decision domain.Decision,
		ext domain.Extension,
		first domain.ExtensionVersion,
	) (*domain.Submission, *domain.Extension, error)
}

// RateLimiter bounds how often a given key may trigger an operation within a
// fixed window. Increments are atomic per key.
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (domain.RateDecision, error)
}
