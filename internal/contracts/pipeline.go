package contracts

import (
	"context"

	"github.com/bpx-store/bpxd/internal/domain"
	"github.com/bpx-store/bpxd/internal/repo"
)

// ReleaseSource is the boundary to the upstream release host.
type ReleaseSource interface {
	// ListReleases returns published releases for a repository, newest first,
	// up to a bounded page count. A missing repository or one with zero
	// releases yields an empty slice and a nil error; transport and auth
	// failures are errors.
	ListReleases(ctx context.Context, ref repo.Ref) ([]domain.Release, error)

	// FetchManifest retrieves the raw extension manifest content from the
	// repository at the given tag ref.
	FetchManifest(ctx context.Context, ref repo.Ref, tag string) ([]byte, error)
}

// ArtifactFetcher downloads a package asset and computes its digest and size
// over the bytes actually received.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, url string) (domain.ArtifactInfo, error)
}

// SyncService drives release synchronization for one or all extensions.
// Implemented by syncer.Syncer; the API layer depends on this interface.
type SyncService interface {
	// SyncExtension runs a single-extension sync by public name.
	SyncExtension(ctx context.Context, name string) (domain.SyncResult, error)

	// SyncAll runs the bulk sync over all eligible extensions, isolating
	// per-extension failures.
	SyncAll(ctx context.Context) (domain.BulkSyncResult, error)
}

// SubmissionReviewer governs the submission lifecycle from intake through
// admin disposition. Implemented by submission.Service.
type SubmissionReviewer interface {
	Create(ctx context.Context, repositoryURL, submitterEmail, submitterName, category string) (*domain.Submission, error)
	Approve(ctx context.Context, id, reviewerEmail, notes string) (*domain.Submission, error)
	Reject(ctx context.Context, id, reviewerEmail, notes string) (*domain.Submission, error)
	RequestChanges(ctx context.Context, id, reviewerEmail, notes string) (*domain.Submission, error)
}
