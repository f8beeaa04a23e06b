package submission

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/bpx-store/bpxd/internal/changelog"
	"github.com/bpx-store/bpxd/internal/domain"
	"github.com/bpx-store/bpxd/internal/errors"
	"github.com/bpx-store/bpxd/internal/repo"
	"github.com/bpx-store/bpxd/internal/store"
)

type fakeSource struct {
	releases  map[string][]domain.Release
	manifests map[string]string
	listErr   error
}

func (f *fakeSource) ListReleases(_ context.Context, ref repo.Ref) ([]domain.Release, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.releases[ref.Owner+"/"+ref.Name], nil
}

func (f *fakeSource) FetchManifest(_ context.Context, ref repo.Ref, tag string) ([]byte, error) {
	raw, ok := f.manifests[ref.Owner+"/"+ref.Name+"@"+tag]
	if !ok {
		return nil, fmt.Errorf("%w: no manifest at %s", errors.ErrManifestFetchFailed, tag)
	}
	return []byte(raw), nil
}

type fakeArtifacts struct {
	infos map[string]domain.ArtifactInfo
}

func (f *fakeArtifacts) Fetch(_ context.Context, url string) (domain.ArtifactInfo, error) {
	info, ok := f.infos[url]
	if !ok {
		return domain.ArtifactInfo{}, fmt.Errorf("%w: %s", errors.ErrArtifactDownloadFailed, url)
	}
	return info, nil
}

func newTestService(t *testing.T, s *store.MemoryStore, source *fakeSource, artifacts *fakeArtifacts) *Service {
	t.Helper()

	svc, err := NewService(Dependencies{
		Logger:      hclog.NewNullLogger(),
		Submissions: s,
		Source:      source,
		Artifacts:   artifacts,
		Sanitizer:   changelog.NewSanitizer(),
	})
	require.NoError(t, err)

	return svc
}

func createPending(t *testing.T, svc *Service) *domain.Submission {
	t.Helper()

	sub, err := svc.Create(t.Context(), "https://github.com/acme/widget", "dev@example.com", "Dev", "productivity")
	require.NoError(t, err)
	require.Equal(t, domain.SubmissionPending, sub.Status)

	return sub
}

func TestService_Create_Validation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, store.NewMemoryStore(), &fakeSource{}, &fakeArtifacts{})

	tests := []struct {
		name     string
		url      string
		email    string
		category string
		wantErr  error
	}{
		{name: "bad repository url", url: "ftp://github.com/a/b", email: "dev@example.com", category: "tools", wantErr: errors.ErrInvalidRepositoryURL},
		{name: "bad email", url: "https://github.com/acme/widget", email: "not-an-email", category: "tools", wantErr: errors.ErrBadRequest},
		{name: "missing category", url: "https://github.com/acme/widget", email: "dev@example.com", category: "  ", wantErr: errors.ErrBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := svc.Create(t.Context(), tc.url, tc.email, "Dev", tc.category)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestService_Create_NormalizesRepositoryURL(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, store.NewMemoryStore(), &fakeSource{}, &fakeArtifacts{})

	sub, err := svc.Create(t.Context(), "github.com/acme/widget.git", "dev@example.com", "", "tools")
	require.NoError(t, err)
	require.Equal(t, "https://github.com/acme/widget", sub.RepositoryURL)
}

func TestService_Approve_CreatesExtension(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	source := &fakeSource{
		releases: map[string][]domain.Release{
			"acme/widget": {
				{
					Tag:         "v2.0.0",
					PublishedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
					NotesRaw:    "Adds <script>alert(1)</script> dark mode",
					Assets: []domain.Asset{
						{Filename: "widget-2.0.0.bpx", DownloadURL: "https://dl/widget-2.0.0.bpx"},
						{Filename: "source.tar.gz", DownloadURL: "https://dl/src"},
					},
				},
			},
		},
		manifests: map[string]string{
			"acme/widget@v2.0.0": `{"name":"acme.widget","displayName":"Widget","version":"2.0.0","category":"productivity","entryPoint":"main.js"}`,
		},
	}
	artifacts := &fakeArtifacts{infos: map[string]domain.ArtifactInfo{
		"https://dl/widget-2.0.0.bpx": {Digest: "sha256:deadbeef", SizeBytes: 4096},
	}}

	svc := newTestService(t, s, source, artifacts)
	sub := createPending(t, svc)

	approved, err := svc.Approve(t.Context(), sub.ID, "admin@example.com", "looks good")
	require.NoError(t, err)
	require.Equal(t, domain.SubmissionApproved, approved.Status)
	require.NotEmpty(t, approved.ExtensionID)
	require.NotNil(t, approved.ReviewedAt)

	ext, err := s.GetExtensionByName(t.Context(), "acme.widget")
	require.NoError(t, err)
	require.Equal(t, approved.ExtensionID, ext.ID)
	require.Equal(t, "Widget", ext.DisplayName)
	require.Equal(t, "2.0.0", ext.LatestVersion)

	versions, err := s.GetVersions(t.Context(), ext.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "sha256:deadbeef", versions[0].ArtifactDigest)
	require.NotContains(t, versions[0].Changelog, "<script>")

	// The decision is immutable; a second approval is refused.
	_, err = svc.Approve(t.Context(), sub.ID, "admin@example.com", "again")
	require.ErrorIs(t, err, errors.ErrSubmissionDecided)
}

func TestService_Approve_NoInstallableAsset(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	source := &fakeSource{
		releases: map[string][]domain.Release{
			"acme/widget": {
				{Tag: "v1.0.0", PublishedAt: time.Now(), Assets: []domain.Asset{{Filename: "source.zip", DownloadURL: "https://dl/zip"}}},
				{Tag: "v2.0.0-rc.1", Prerelease: true, PublishedAt: time.Now(), Assets: []domain.Asset{{Filename: "widget.bpx", DownloadURL: "https://dl/rc"}}},
			},
		},
	}

	svc := newTestService(t, s, source, &fakeArtifacts{})
	sub := createPending(t, svc)

	// Only a prerelease carries a package, which does not count.
	_, err := svc.Approve(t.Context(), sub.ID, "admin@example.com", "")
	require.ErrorIs(t, err, errors.ErrNoInstallableAsset)

	// The submission stays pending for a later retry.
	got, err := s.GetSubmission(t.Context(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SubmissionPending, got.Status)
}

func TestService_Approve_InvalidManifest(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	source := &fakeSource{
		releases: map[string][]domain.Release{
			"acme/widget": {
				{Tag: "v1.0.0", PublishedAt: time.Now(), Assets: []domain.Asset{{Filename: "widget.bpx", DownloadURL: "https://dl/w"}}},
			},
		},
		manifests: map[string]string{
			"acme/widget@v1.0.0": `{"name":"acme.widget","version":"1.0.0"}`,
		},
	}

	svc := newTestService(t, s, source, &fakeArtifacts{})
	sub := createPending(t, svc)

	_, err := svc.Approve(t.Context(), sub.ID, "admin@example.com", "")
	require.ErrorIs(t, err, errors.ErrManifestSchemaInvalid)
}

func TestService_Approve_NameCollision(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	_, err := s.CreateExtensionWithFirstVersion(
		t.Context(),
		domain.Extension{Name: "acme.widget", RepositoryURL: "https://github.com/other/widget"},
		domain.ExtensionVersion{Version: "1.0.0", ArtifactDigest: "sha256:x"},
	)
	require.NoError(t, err)

	source := &fakeSource{
		releases: map[string][]domain.Release{
			"acme/widget": {
				{Tag: "v1.0.0", PublishedAt: time.Now(), Assets: []domain.Asset{{Filename: "widget.bpx", DownloadURL: "https://dl/w"}}},
			},
		},
		manifests: map[string]string{
			"acme/widget@v1.0.0": `{"name":"acme.widget","displayName":"Widget","version":"1.0.0","category":"tools","entryPoint":"main.js"}`,
		},
	}
	artifacts := &fakeArtifacts{infos: map[string]domain.ArtifactInfo{
		"https://dl/w": {Digest: "sha256:y", SizeBytes: 1},
	}}

	svc := newTestService(t, s, source, artifacts)
	sub := createPending(t, svc)

	_, err = svc.Approve(t.Context(), sub.ID, "admin@example.com", "")
	require.ErrorIs(t, err, errors.ErrNameCollision)

	got, err := s.GetSubmission(t.Context(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SubmissionPending, got.Status)
}

func TestService_RejectAndRequestChanges(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	svc := newTestService(t, s, &fakeSource{}, &fakeArtifacts{})

	sub := createPending(t, svc)

	// Notes shorter than the floor are refused.
	_, err := svc.Reject(t.Context(), sub.ID, "admin@example.com", "nope")
	require.ErrorIs(t, err, errors.ErrNotesTooShort)

	rejected, err := svc.Reject(t.Context(), sub.ID, "admin@example.com", "repository has no releases yet")
	require.NoError(t, err)
	require.Equal(t, domain.SubmissionRejected, rejected.Status)
	require.Equal(t, "admin@example.com", rejected.ReviewerEmail)

	// Terminal states refuse further decisions.
	_, err = svc.RequestChanges(t.Context(), sub.ID, "admin@example.com", "please add a changelog")
	require.ErrorIs(t, err, errors.ErrSubmissionDecided)

	other, err := svc.Create(t.Context(), "https://github.com/acme/gadget", "dev@example.com", "", "tools")
	require.NoError(t, err)

	changed, err := svc.RequestChanges(t.Context(), other.ID, "admin@example.com", "manifest is missing an entry point")
	require.NoError(t, err)
	require.Equal(t, domain.SubmissionNeedsChanges, changed.Status)
}
