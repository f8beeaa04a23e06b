// Package submission governs the community submission lifecycle: intake of
// repository URLs, and the admin review actions that approve, reject or send
// a submission back for changes. Approval is the only path that creates an
// extension, and it runs the full release pipeline before committing.
package submission

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/bpx-store/bpxd/internal/changelog"
	"github.com/bpx-store/bpxd/internal/contracts"
	"github.com/bpx-store/bpxd/internal/domain"
	"github.com/bpx-store/bpxd/internal/errors"
	"github.com/bpx-store/bpxd/internal/manifest"
	"github.com/bpx-store/bpxd/internal/repo"
	"github.com/bpx-store/bpxd/internal/upstream"
	"github.com/bpx-store/bpxd/internal/version"
)

// MinReviewNotes is the minimum length of reviewer notes on a rejection or a
// request for changes. The submitter has to receive something actionable.
const MinReviewNotes = 10

// Dependencies contains the required external dependencies for the Service.
type Dependencies struct {
	Logger      hclog.Logger
	Submissions contracts.SubmissionStore
	Source      contracts.ReleaseSource
	Artifacts   contracts.ArtifactFetcher
	Sanitizer   *changelog.Sanitizer
}

// Validate ensures all required dependencies are provided.
func (d Dependencies) Validate() error {
	if d.Logger == nil {
		return fmt.Errorf("logger cannot be nil")
	}
	if d.Submissions == nil {
		return fmt.Errorf("submission store cannot be nil")
	}
	if d.Source == nil {
		return fmt.Errorf("release source cannot be nil")
	}
	if d.Artifacts == nil {
		return fmt.Errorf("artifact fetcher cannot be nil")
	}
	if d.Sanitizer == nil {
		return fmt.Errorf("sanitizer cannot be nil")
	}
	return nil
}

// Service implements the SubmissionReviewer contract.
// NewService should be used to create instances of Service.
type Service struct {
	logger      hclog.Logger
	submissions contracts.SubmissionStore
	source      contracts.ReleaseSource
	artifacts   contracts.ArtifactFetcher
	sanitizer   *changelog.Sanitizer
}

// NewService creates a submission review service.
func NewService(deps Dependencies) (*Service, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies for submission service: %w", err)
	}

	return &Service{
		logger:      deps.Logger.Named("submission"),
		submissions: deps.Submissions,
		source:      deps.Source,
		artifacts:   deps.Artifacts,
		sanitizer:   deps.Sanitizer,
	}, nil
}

// Create records a new pending submission. Intake is deliberately cheap: the
// repository URL is parsed and the email checked for shape, but no upstream
// call happens until an admin approves.
func (s *Service) Create(
	ctx context.Context,
	repositoryURL, submitterEmail, submitterName, category string,
) (*domain.Submission, error) {
	ref, err := repo.Parse(repositoryURL)
	if err != nil {
		return nil, err
	}

	if err := validEmail(submitterEmail); err != nil {
		return nil, fmt.Errorf("%w: submitter email: %w", errors.ErrBadRequest, err)
	}

	category = strings.TrimSpace(category)
	if category == "" {
		return nil, fmt.Errorf("%w: category is required", errors.ErrBadRequest)
	}

	sub, err := s.submissions.CreateSubmission(ctx, domain.Submission{
		RepositoryURL:  ref.URL(),
		SubmitterEmail: submitterEmail,
		SubmitterName:  strings.TrimSpace(submitterName),
		Category:       category,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Submission received", "id", sub.ID, "repository", sub.RepositoryURL)

	return sub, nil
}

// Approve runs the full release pipeline against the submitted repository and,
// when everything checks out, atomically creates the extension with its first
// version and marks the submission approved. Any pipeline failure leaves the
// submission pending so the admin can retry after the cause is fixed.
func (s *Service) Approve(ctx context.Context, id, reviewerEmail, notes string) (*domain.Submission, error) {
	sub, err := s.submissions.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.SubmissionPending {
		return nil, fmt.Errorf("%w: %s is %s", errors.ErrSubmissionDecided, id, sub.Status)
	}
	if err := validEmail(reviewerEmail); err != nil {
		return nil, fmt.Errorf("%w: reviewer email: %w", errors.ErrBadRequest, err)
	}

	ref, err := repo.Parse(sub.RepositoryURL)
	if err != nil {
		return nil, err
	}

	releases, err := s.source.ListReleases(ctx, ref)
	if err != nil {
		return nil, err
	}

	release, asset, err := upstream.FindLatestReleaseWithBpx(releases, false)
	if err != nil {
		return nil, err
	}
	if release == nil {
		return nil, fmt.Errorf("%w: no stable release of %s carries a package asset", errors.ErrNoInstallableAsset, ref)
	}

	raw, err := s.source.FetchManifest(ctx, ref, release.Tag)
	if err != nil {
		return nil, err
	}

	validated := manifest.Validate(raw, release.Tag)
	if !validated.Valid() {
		return nil, validated.Err()
	}

	info, err := s.artifacts.Fetch(ctx, asset.DownloadURL)
	if err != nil {
		return nil, err
	}

	ext := domain.Extension{
		Name:          validated.Manifest.Name,
		DisplayName:   validated.Manifest.DisplayName,
		Category:      validated.Manifest.Category,
		RepositoryURL: sub.RepositoryURL,
	}
	first := domain.ExtensionVersion{
		Version:           version.Normalize(validated.Manifest.Version),
		ArtifactDigest:    info.Digest,
		ArtifactSizeBytes: info.SizeBytes,
		Changelog:         s.sanitizer.Sanitize(release.NotesRaw),
		PublishedAt:       release.PublishedAt,
	}
	decision := domain.Decision{
		Status:        domain.SubmissionApproved,
		ReviewerEmail: reviewerEmail,
		Notes:         strings.TrimSpace(notes),
		ReviewedAt:    time.Now().UTC(),
	}

	approved, created, err := s.submissions.ApproveSubmission(ctx, id, decision, ext, first)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Submission approved",
		"id", id,
		"extension", created.Name,
		"version", first.Version,
	)

	return approved, nil
}

// Reject records a terminal rejection with actionable reviewer notes.
func (s *Service) Reject(ctx context.Context, id, reviewerEmail, notes string) (*domain.Submission, error) {
	return s.decide(ctx, id, reviewerEmail, notes, domain.SubmissionRejected)
}

// RequestChanges closes the submission with notes the submitter can act on
// before submitting again.
func (s *Service) RequestChanges(ctx context.Context, id, reviewerEmail, notes string) (*domain.Submission, error) {
	return s.decide(ctx, id, reviewerEmail, notes, domain.SubmissionNeedsChanges)
}

func (s *Service) decide(
	ctx context.Context,
	id, reviewerEmail, notes string,
	status domain.SubmissionStatus,
) (*domain.Submission, error) {
	if err := validEmail(reviewerEmail); err != nil {
		return nil, fmt.Errorf("%w: reviewer email: %w", errors.ErrBadRequest, err)
	}

	notes = strings.TrimSpace(notes)
	if len(notes) < MinReviewNotes {
		return nil, fmt.Errorf(
			"%w: a %s decision needs at least %d characters of notes",
			errors.ErrNotesTooShort, status, MinReviewNotes,
		)
	}

	decided, err := s.submissions.RecordDecision(ctx, id, domain.Decision{
		Status:        status,
		ReviewerEmail: reviewerEmail,
		Notes:         notes,
		ReviewedAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Submission decided", "id", id, "status", status)

	return decided, nil
}

func validEmail(addr string) error {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return fmt.Errorf("%q is not a valid address", addr)
	}
	// Reject the name-and-brackets form; stores keep the bare address.
	if parsed.Address != addr {
		return fmt.Errorf("%q must be a bare address", addr)
	}
	return nil
}
