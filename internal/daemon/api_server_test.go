package daemon

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/bpx-store/bpxd/internal/domain"
	"github.com/bpx-store/bpxd/internal/errors"
)

type stubSyncService struct{}

func (stubSyncService) SyncExtension(context.Context, string) (domain.SyncResult, error) {
	return domain.SyncResult{}, nil
}

func (stubSyncService) SyncAll(context.Context) (domain.BulkSyncResult, error) {
	return domain.BulkSyncResult{}, nil
}

type stubReviewer struct{}

func (stubReviewer) Create(context.Context, string, string, string, string) (*domain.Submission, error) {
	return &domain.Submission{}, nil
}

func (stubReviewer) Approve(context.Context, string, string, string) (*domain.Submission, error) {
	return &domain.Submission{}, nil
}

func (stubReviewer) Reject(context.Context, string, string, string) (*domain.Submission, error) {
	return &domain.Submission{}, nil
}

func (stubReviewer) RequestChanges(context.Context, string, string, string) (*domain.Submission, error) {
	return &domain.Submission{}, nil
}

type stubLimiter struct {
	decision domain.RateDecision
	err      error
}

func (s *stubLimiter) CheckAndIncrement(context.Context, string, int, time.Duration) (domain.RateDecision, error) {
	return s.decision, s.err
}

func newTestAPIServer(t *testing.T, limiter *stubLimiter, opt ...APIOption) *APIServer {
	t.Helper()

	deps, err := NewAPIDependencies(hclog.NewNullLogger(), &stubSyncService{}, &stubReviewer{}, limiter, "localhost:8090")
	require.NoError(t, err)

	srv, err := NewAPIServer(deps, opt...)
	require.NoError(t, err)

	return srv
}

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "bad request", err: errors.ErrBadRequest, wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
		{name: "invalid repository url", err: errors.ErrInvalidRepositoryURL, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REPOSITORY_URL"},
		{name: "notes too short", err: errors.ErrNotesTooShort, wantStatus: http.StatusBadRequest, wantCode: "NOTES_TOO_SHORT"},
		{name: "not authenticated", err: errors.ErrNotAuthenticated, wantStatus: http.StatusUnauthorized, wantCode: "NOT_AUTHENTICATED"},
		{name: "not authorized", err: errors.ErrNotAuthorized, wantStatus: http.StatusForbidden, wantCode: "NOT_AUTHORIZED"},
		{name: "extension not found", err: errors.ErrExtensionNotFound, wantStatus: http.StatusNotFound, wantCode: "EXTENSION_NOT_FOUND"},
		{name: "submission not found", err: errors.ErrSubmissionNotFound, wantStatus: http.StatusNotFound, wantCode: "SUBMISSION_NOT_FOUND"},
		{name: "name collision", err: errors.ErrNameCollision, wantStatus: http.StatusConflict, wantCode: "NAME_COLLISION"},
		{name: "submission decided", err: errors.ErrSubmissionDecided, wantStatus: http.StatusConflict, wantCode: "SUBMISSION_DECIDED"},
		{name: "digest mismatch", err: errors.ErrVersionDigestMismatch, wantStatus: http.StatusConflict, wantCode: "VERSION_DIGEST_MISMATCH"},
		{name: "no installable asset", err: errors.ErrNoInstallableAsset, wantStatus: http.StatusUnprocessableEntity, wantCode: "NO_INSTALLABLE_ASSET"},
		{name: "ambiguous asset", err: errors.ErrAmbiguousInstallableAsset, wantStatus: http.StatusUnprocessableEntity, wantCode: "AMBIGUOUS_INSTALLABLE_ASSET"},
		{name: "manifest schema invalid", err: errors.ErrManifestSchemaInvalid, wantStatus: http.StatusUnprocessableEntity, wantCode: "MANIFEST_SCHEMA_INVALID"},
		{name: "manifest version mismatch", err: errors.ErrManifestVersionMismatch, wantStatus: http.StatusUnprocessableEntity, wantCode: "MANIFEST_VERSION_MISMATCH"},
		{name: "artifact too large", err: errors.ErrArtifactTooLarge, wantStatus: http.StatusUnprocessableEntity, wantCode: "ARTIFACT_TOO_LARGE"},
		{name: "rate limit exceeded", err: errors.ErrRateLimitExceeded, wantStatus: http.StatusTooManyRequests, wantCode: "RATE_LIMIT_EXCEEDED"},
		{name: "upstream rate limited", err: errors.ErrUpstreamRateLimited, wantStatus: http.StatusBadGateway, wantCode: "UPSTREAM_RATE_LIMITED"},
		{name: "manifest fetch failed", err: errors.ErrManifestFetchFailed, wantStatus: http.StatusBadGateway, wantCode: "MANIFEST_FETCH_FAILED"},
		{name: "artifact download failed", err: errors.ErrArtifactDownloadFailed, wantStatus: http.StatusBadGateway, wantCode: "ARTIFACT_DOWNLOAD_FAILED"},
		{name: "upstream not found", err: errors.ErrUpstreamNotFound, wantStatus: http.StatusBadGateway, wantCode: "UPSTREAM_NOT_FOUND"},
		{name: "unexpected error", err: fmt.Errorf("boom"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL"},
		{name: "wrapped error", err: fmt.Errorf("checking: %w", errors.ErrNameCollision), wantStatus: http.StatusConflict, wantCode: "NAME_COLLISION"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := mapError(hclog.NewNullLogger(), tc.err)
			require.Equal(t, tc.wantStatus, got.GetStatus())

			p, ok := got.(*problem)
			require.True(t, ok)
			require.Equal(t, tc.wantCode, p.Code)
		})
	}
}

func TestAdminAuthMiddleware(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		token      string
		path       string
		authHeader string
		wantStatus int
		wantCode   string
	}{
		{name: "non-admin path passes through", token: "secret", path: "/api/v1/store/submissions", wantStatus: http.StatusOK},
		{name: "no token configured hides admin routes", token: "", path: "/api/v1/admin/sync/all", wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "missing header", token: "secret", path: "/api/v1/admin/sync/all", wantStatus: http.StatusUnauthorized, wantCode: "NOT_AUTHENTICATED"},
		{name: "wrong token", token: "secret", path: "/api/v1/admin/sync/all", authHeader: "Bearer nope", wantStatus: http.StatusForbidden, wantCode: "NOT_AUTHORIZED"},
		{name: "correct token", token: "secret", path: "/api/v1/admin/sync/all", authHeader: "Bearer secret", wantStatus: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestAPIServer(t, &stubLimiter{}, WithAdminToken(tc.token))

			req := httptest.NewRequest(http.MethodPost, tc.path, nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			rec := httptest.NewRecorder()

			srv.adminAuthMiddleware(next).ServeHTTP(rec, req)
			require.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantCode != "" {
				require.Contains(t, rec.Body.String(), fmt.Sprintf(`"code":%q`, tc.wantCode))
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("exhausted quota answers 429 with Retry-After", func(t *testing.T) {
		t.Parallel()

		limiter := &stubLimiter{decision: domain.RateDecision{
			Allowed: false,
			ResetAt: time.Now().Add(30 * time.Minute),
		}}
		srv := newTestAPIServer(t, limiter)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/store/submissions", nil)
		rec := httptest.NewRecorder()

		srv.rateLimitMiddleware(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Contains(t, rec.Body.String(), `"code":"RATE_LIMIT_EXCEEDED"`)
	})

	t.Run("allowed request passes through", func(t *testing.T) {
		t.Parallel()

		limiter := &stubLimiter{decision: domain.RateDecision{Allowed: true, Remaining: 4}}
		srv := newTestAPIServer(t, limiter)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/store/extensions/acme.widget/sync", nil)
		rec := httptest.NewRecorder()

		srv.rateLimitMiddleware(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unlimited routes skip the limiter", func(t *testing.T) {
		t.Parallel()

		limiter := &stubLimiter{err: fmt.Errorf("limiter must not be consulted")}
		srv := newTestAPIServer(t, limiter)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		rec := httptest.NewRecorder()

		srv.rateLimitMiddleware(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("limiter failure fails open", func(t *testing.T) {
		t.Parallel()

		limiter := &stubLimiter{err: fmt.Errorf("connection refused")}
		srv := newTestAPIServer(t, limiter)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/store/submissions", nil)
		rec := httptest.NewRecorder()

		srv.rateLimitMiddleware(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}
