// Package store persists extensions, version histories and submissions.
// MemoryStore backs tests and development mode; PostgresStore backs
// production deployments. Both enforce the same invariants: persisted
// artifact digests are immutable and review decisions are written once.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bpx-store/bpxd/internal/domain"
	"github.com/bpx-store/bpxd/internal/errors"
	"github.com/bpx-store/bpxd/internal/version"
)

// MemoryStore is a mutex-guarded in-memory implementation of the extension
// and submission store contracts.
// NewMemoryStore should be used to create instances of MemoryStore.
type MemoryStore struct {
	mu          sync.RWMutex
	extensions  map[string]domain.Extension          // keyed by extension ID
	versions    map[string][]domain.ExtensionVersion // keyed by extension ID
	submissions map[string]domain.Submission         // keyed by submission ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		extensions:  make(map[string]domain.Extension),
		versions:    make(map[string][]domain.ExtensionVersion),
		submissions: make(map[string]domain.Submission),
	}
}

// GetExtensionByName resolves an extension by its public name.
func (s *MemoryStore) GetExtensionByName(_ context.Context, name string) (*domain.Extension, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ext := range s.extensions {
		if ext.Name == name {
			found := ext
			return &found, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", errors.ErrExtensionNotFound, name)
}

// ListExtensions returns a copy of all known extensions.
func (s *MemoryStore) ListExtensions(_ context.Context) ([]domain.Extension, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Extension, 0, len(s.extensions))
	for _, ext := range s.extensions {
		out = append(out, ext)
	}

	return out, nil
}

// GetVersions returns a copy of the persisted versions for an extension.
func (s *MemoryStore) GetVersions(_ context.Context, extensionID string) ([]domain.ExtensionVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.versions[extensionID]
	out := make([]domain.ExtensionVersion, len(versions))
	copy(out, versions)

	return out, nil
}

// CreateExtensionWithFirstVersion atomically creates an extension with its
// first version. The manifest name must not already be taken.
func (s *MemoryStore) CreateExtensionWithFirstVersion(
	_ context.Context,
	ext domain.Extension,
	first domain.ExtensionVersion,
) (*domain.Extension, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createExtensionLocked(ext, first)
}

func (s *MemoryStore) createExtensionLocked(
	ext domain.Extension,
	first domain.ExtensionVersion,
) (*domain.Extension, error) {
	for _, existing := range s.extensions {
		if existing.Name == ext.Name {
			return nil, fmt.Errorf("%w: %s", errors.ErrNameCollision, ext.Name)
		}
	}

	now := time.Now().UTC()
	ext.ID = uuid.NewString()
	ext.CreatedAt = now
	ext.UpdatedAt = now
	if version.Supersedes(first, "") {
		ext.LatestVersion = first.Version
	}

	first.ExtensionID = ext.ID
	s.extensions[ext.ID] = ext
	s.versions[ext.ID] = []domain.ExtensionVersion{first}

	created := ext
	return &created, nil
}

// AppendVersion atomically persists a new version and advances the extension's
// latest-version pointer when superseded. Re-appending an identical version is
// a no-op; a differing digest for an existing version fails, keeping persisted
// digests immutable.
func (s *MemoryStore) AppendVersion(_ context.Context, extensionID string, v domain.ExtensionVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ext, ok := s.extensions[extensionID]
	if !ok {
		return fmt.Errorf("%w: id %s", errors.ErrExtensionNotFound, extensionID)
	}

	for _, existing := range s.versions[extensionID] {
		if version.Normalize(existing.Version) != version.Normalize(v.Version) {
			continue
		}
		if existing.ArtifactDigest != v.ArtifactDigest {
			return fmt.Errorf(
				"%w: version %s has digest %s, refusing %s",
				errors.ErrVersionDigestMismatch, existing.Version, existing.ArtifactDigest, v.ArtifactDigest,
			)
		}
		return nil
	}

	v.ExtensionID = extensionID
	s.versions[extensionID] = append(s.versions[extensionID], v)

	if version.Supersedes(v, ext.LatestVersion) {
		ext.LatestVersion = v.Version
	}
	ext.UpdatedAt = time.Now().UTC()
	s.extensions[extensionID] = ext

	return nil
}

// CreateSubmission persists a new pending submission.
func (s *MemoryStore) CreateSubmission(_ context.Context, sub domain.Submission) (*domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub.ID = uuid.NewString()
	sub.Status = domain.SubmissionPending
	sub.CreatedAt = time.Now().UTC()
	s.submissions[sub.ID] = sub

	created := sub
	return &created, nil
}

// GetSubmission resolves a submission by ID.
func (s *MemoryStore) GetSubmission(_ context.Context, id string) (*domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.submissions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrSubmissionNotFound, id)
	}

	found := sub
	return &found, nil
}

// RecordDecision applies a review decision to a pending submission exactly
// once. Decision fields are never mutated after the submission leaves pending.
func (s *MemoryStore) RecordDecision(_ context.Context, id string, decision domain.Decision) (*domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.recordDecisionLocked(id, decision)
}

func (s *MemoryStore) recordDecisionLocked(id string, decision domain.Decision) (*domain.Submission, error) {
	sub, ok := s.submissions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrSubmissionNotFound, id)
	}
	if sub.Status != domain.SubmissionPending {
		return nil, fmt.Errorf("%w: %s is %s", errors.ErrSubmissionDecided, id, sub.Status)
	}

	reviewedAt := decision.ReviewedAt
	sub.Status = decision.Status
	sub.ReviewerEmail = decision.ReviewerEmail
	sub.ReviewerNotes = decision.Notes
	sub.ReviewedAt = &reviewedAt
	sub.ExtensionID = decision.ExtensionID
	s.submissions[id] = sub

	updated := sub
	return &updated, nil
}

// ApproveSubmission atomically creates the extension, its first version and
// the approval decision: either all three commit or none do.
func (s *MemoryStore) ApproveSubmission(
	_ context.Context,
	id string,
	decision domain.Decision,
	ext domain.Extension,
	first domain.ExtensionVersion,
) (*domain.Submission, *domain.Extension, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", errors.ErrSubmissionNotFound, id)
	}
	if sub.Status != domain.SubmissionPending {
		return nil, nil, fmt.Errorf("%w: %s is %s", errors.ErrSubmissionDecided, id, sub.Status)
	}

	created, err := s.createExtensionLocked(ext, first)
	if err != nil {
		return nil, nil, err
	}

	decision.ExtensionID = created.ID
	updated, err := s.recordDecisionLocked(id, decision)
	if err != nil {
		// Roll the extension back so the unit stays atomic.
		delete(s.extensions, created.ID)
		delete(s.versions, created.ID)
		return nil, nil, err
	}

	return updated, created, nil
}
