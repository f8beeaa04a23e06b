package daemon

import (
	"context"
	"crypto/subtle"
	stdErrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hashicorp/go-hclog"

	"github.com/bpx-store/bpxd/internal/api"
	"github.com/bpx-store/bpxd/internal/contracts"
	"github.com/bpx-store/bpxd/internal/errors"
)

// rateLimitWindow is the fixed window backing the per-caller quotas.
const rateLimitWindow = time.Hour

// APIServer manages the HTTP API for the daemon.
// NewAPIServer should be used to create instances of APIServer.
type APIServer struct {
	// Logger for API server operations.
	logger hclog.Logger

	// SyncService drives release synchronization.
	syncService contracts.SyncService

	// Reviewer governs the submission lifecycle.
	reviewer contracts.SubmissionReviewer

	// Limiter enforces the per-caller request quotas.
	limiter contracts.RateLimiter

	// Addr specifies the network address to bind.
	addr string

	// CORS configuration for cross-origin requests.
	cors CORSConfig

	// AdminToken protects /admin routes; empty means they answer 404.
	adminToken string

	// Quotas for the rate-limited route classes.
	syncPerHour        int
	submissionsPerHour int

	// ShutdownTimeout specifies how long to wait for graceful shutdown.
	shutdownTimeout time.Duration
}

// NewAPIServer creates a new API server with the provided dependencies and options.
// Applies default options first, then user-provided options to ensure all fields have valid values.
func NewAPIServer(deps APIDependencies, opt ...APIOption) (*APIServer, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies for API server: %w", err)
	}

	// Ensure we always start with defaults and apply user options on top.
	apiOpts, err := NewAPIOptions(opt...)
	if err != nil {
		return nil, fmt.Errorf("invalid API options: %w", err)
	}

	return &APIServer{
		logger:             deps.Logger.Named("api"),
		syncService:        deps.SyncService,
		reviewer:           deps.Reviewer,
		limiter:            deps.Limiter,
		addr:               deps.Addr,
		cors:               apiOpts.CORS,
		adminToken:         apiOpts.AdminToken,
		syncPerHour:        apiOpts.SyncPerHour,
		submissionsPerHour: apiOpts.SubmissionsPerHour,
		shutdownTimeout:    apiOpts.ShutdownTimeout,
	}, nil
}

// Start starts the API server and blocks until the context is canceled or an error occurs.
func (a *APIServer) Start(ctx context.Context) error {
	// Create router.
	mux := chi.NewMux()
	mux.Use(middleware.StripSlashes)

	// Add CORS middleware if enabled.
	if a.cors.Enabled {
		a.applyCORS(mux)
	}

	// Admin auth and quota checks run before route handling so they can see
	// the raw request.
	mux.Use(a.adminAuthMiddleware)
	mux.Use(a.rateLimitMiddleware)

	config := huma.DefaultConfig("bpxd docs", api.APIVersion)
	router := humachi.New(mux, config)

	// Configure the error handling wrapping.
	huma.NewErrorWithContext = errorHandler(a.logger)

	apiPathPrefix, err := api.RegisterRoutes(router, a.syncService, a.reviewer)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    a.addr,
		Handler: mux,
	}
	errCh := make(chan error, 1)

	// Start the API.
	go func() {
		a.logger.Info("Starting API server", "address", a.addr, "prefix", apiPathPrefix)
		if a.cors.Enabled {
			a.logger.Info("CORS enabled", "origins", a.cors.AllowOrigins)
		}
		if err := srv.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Handle graceful shutdown.
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		a.logger.Info("Shutting down API server...")
		_ = srv.Shutdown(shutdownCtx)
		a.logger.Info("Shutdown complete")
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// applyCORS applies CORS middleware to the router based on the configured options.
func (a *APIServer) applyCORS(mux *chi.Mux) {
	a.logger.Info("Enabling CORS", "origins", a.cors.AllowOrigins)

	corsOptions := cors.Options{
		AllowedOrigins:   a.cors.AllowOrigins,
		AllowedMethods:   a.cors.AllowMethods,
		AllowedHeaders:   a.cors.AllowedHeaders,
		ExposedHeaders:   a.cors.ExposedHeaders,
		AllowCredentials: a.cors.AllowCredentials,
		MaxAge:           int(a.cors.MaxAge.Seconds()),
	}

	// Handle wildcard origins properly.
	for i, origin := range corsOptions.AllowedOrigins {
		if origin == "*" {
			corsOptions.AllowedOrigins = []string{"*"}
			corsOptions.AllowCredentials = false
			break
		}
		corsOptions.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	mux.Use(cors.Handler(corsOptions))
}

// adminAuthMiddleware gates every /admin route behind the configured bearer
// token. With no token configured the routes answer 404 so their existence is
// not advertised.
func (a *APIServer) adminAuthMiddleware(next http.Handler) http.Handler {
	prefix := "/api/" + api.APIVersion + "/admin"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, prefix) {
			next.ServeHTTP(w, r)
			return
		}

		if a.adminToken == "" {
			writeProblem(w, http.StatusNotFound, "NOT_FOUND", "Not Found", "admin routes are not enabled")
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			a.refuse(w, fmt.Errorf("%w: missing bearer token", errors.ErrNotAuthenticated))
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.adminToken)) != 1 {
			a.refuse(w, fmt.Errorf("%w: invalid bearer token", errors.ErrNotAuthorized))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware enforces the per-caller fixed-window quotas on the
// public write endpoints. Admin routes are exempt; the bearer token already
// gates them.
func (a *APIServer) rateLimitMiddleware(next http.Handler) http.Handler {
	storePrefix := "/api/" + api.APIVersion + "/store"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class, limit := a.classifyQuota(r, storePrefix)
		if class == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := class + ":" + clientIP(r)
		decision, err := a.limiter.CheckAndIncrement(r.Context(), key, limit, rateLimitWindow)
		if err != nil {
			// The limiter failing is no reason to refuse service.
			a.logger.Error("Rate limiter check failed, allowing request", "key", key, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if !decision.Allowed {
			retryAfter := max(int(time.Until(decision.ResetAt).Seconds()), 1)
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			a.refuse(w, fmt.Errorf("%w: quota exhausted, retry after %s",
				errors.ErrRateLimitExceeded, decision.ResetAt.UTC().Format(time.RFC3339)))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// classifyQuota returns the quota class and limit for the request, or an
// empty class when the route is not rate limited.
func (a *APIServer) classifyQuota(r *http.Request, storePrefix string) (string, int) {
	if r.Method != http.MethodPost {
		return "", 0
	}

	switch {
	case r.URL.Path == storePrefix+"/submissions":
		return "submit", a.submissionsPerHour
	case strings.HasPrefix(r.URL.Path, storePrefix+"/extensions/") && strings.HasSuffix(r.URL.Path, "/sync"):
		return "sync", a.syncPerHour
	default:
		return "", 0
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// problem is the RFC 9457 body produced for request failures, extended with a
// stable machine-readable code so clients can switch on it instead of parsing
// the human-readable detail.
type problem struct {
	huma.ErrorModel
	Code string `json:"code,omitempty"`
}

// withCode attaches the stable code to a huma error.
func withCode(code string, serr huma.StatusError) huma.StatusError {
	if em, ok := serr.(*huma.ErrorModel); ok {
		return &problem{ErrorModel: *em, Code: code}
	}
	return serr
}

// codeForStatus derives a fallback code for errors huma raises itself, such
// as request validation failures.
func codeForStatus(status int) string {
	return strings.ReplaceAll(strings.ToUpper(http.StatusText(status)), " ", "_")
}

// refuse renders a domain error raised outside huma's handler path (the auth
// and quota middlewares), reusing the same mapping handler errors get.
func (a *APIServer) refuse(w http.ResponseWriter, err error) {
	serr := mapError(a.logger, err)
	code := codeForStatus(serr.GetStatus())
	if p, ok := serr.(*problem); ok {
		code = p.Code
	}
	writeProblem(w, serr.GetStatus(), code, http.StatusText(serr.GetStatus()), serr.Error())
}

// writeProblem writes a minimal RFC 9457 style body, matching the error shape
// huma produces for handler errors.
func writeProblem(w http.ResponseWriter, status int, code, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"title":%q,"status":%d,"detail":%q,"code":%q}`, title, status, detail, code)
}

// mapError maps application domain errors to appropriate HTTP status codes
// and stable machine-readable codes.
//
// This function is the central place where domain errors from internal/errors are converted to HTTP responses.
// When adding new errors to internal/errors/errors.go, you MUST add them here to prevent them from falling
// through to the default case which returns HTTP 500.
//
// NOTE: Keep this function in sync with internal/errors/errors.go.
// Every error defined there should have an explicit case here otherwise it will default to 500.
//
// Mapping guidelines:
//   - 400: Client errors (bad input, invalid requests)
//   - 401/403: Authentication and authorization errors
//   - 404: Resource not found errors
//   - 409: Conflicts with persisted state
//   - 422: Requests that are well-formed but fail a pipeline check
//   - 429: Quota exhaustion
//   - 502: External service/dependency failures
//   - 500: Unexpected internal errors (default case)
//
// Don't forget to:
// 1. Add test cases to TestMapError (internal/daemon/api_server_test.go)
// 2. Update the documentation in internal/errors/errors.go
func mapError(logger hclog.Logger, err error) huma.StatusError {
	switch {
	case stdErrors.Is(err, errors.ErrBadRequest):
		return withCode("BAD_REQUEST", huma.Error400BadRequest(err.Error()))
	case stdErrors.Is(err, errors.ErrInvalidRepositoryURL):
		return withCode("INVALID_REPOSITORY_URL", huma.Error400BadRequest(err.Error()))
	case stdErrors.Is(err, errors.ErrNotesTooShort):
		return withCode("NOTES_TOO_SHORT", huma.Error400BadRequest(err.Error()))
	case stdErrors.Is(err, errors.ErrNotAuthenticated):
		return withCode("NOT_AUTHENTICATED", huma.Error401Unauthorized(err.Error()))
	case stdErrors.Is(err, errors.ErrNotAuthorized):
		return withCode("NOT_AUTHORIZED", huma.Error403Forbidden(err.Error()))
	case stdErrors.Is(err, errors.ErrExtensionNotFound):
		return withCode("EXTENSION_NOT_FOUND", huma.Error404NotFound(err.Error()))
	case stdErrors.Is(err, errors.ErrSubmissionNotFound):
		return withCode("SUBMISSION_NOT_FOUND", huma.Error404NotFound(err.Error()))
	case stdErrors.Is(err, errors.ErrNameCollision):
		return withCode("NAME_COLLISION", huma.Error409Conflict(err.Error()))
	case stdErrors.Is(err, errors.ErrSubmissionDecided):
		return withCode("SUBMISSION_DECIDED", huma.Error409Conflict(err.Error()))
	case stdErrors.Is(err, errors.ErrVersionDigestMismatch):
		return withCode("VERSION_DIGEST_MISMATCH", huma.Error409Conflict(err.Error()))
	case stdErrors.Is(err, errors.ErrNoInstallableAsset):
		return withCode("NO_INSTALLABLE_ASSET", huma.Error422UnprocessableEntity(err.Error()))
	case stdErrors.Is(err, errors.ErrAmbiguousInstallableAsset):
		return withCode("AMBIGUOUS_INSTALLABLE_ASSET", huma.Error422UnprocessableEntity(err.Error()))
	case stdErrors.Is(err, errors.ErrManifestSchemaInvalid):
		return withCode("MANIFEST_SCHEMA_INVALID", huma.Error422UnprocessableEntity(err.Error()))
	case stdErrors.Is(err, errors.ErrManifestVersionMismatch):
		return withCode("MANIFEST_VERSION_MISMATCH", huma.Error422UnprocessableEntity(err.Error()))
	case stdErrors.Is(err, errors.ErrArtifactTooLarge):
		return withCode("ARTIFACT_TOO_LARGE", huma.Error422UnprocessableEntity(err.Error()))
	case stdErrors.Is(err, errors.ErrRateLimitExceeded):
		return withCode("RATE_LIMIT_EXCEEDED", huma.Error429TooManyRequests(err.Error()))
	case stdErrors.Is(err, errors.ErrUpstreamRateLimited):
		logger.Error("Upstream rate limited", "error", err)
		return withCode("UPSTREAM_RATE_LIMITED", huma.Error502BadGateway("Release host rate limit exhausted", err))
	case stdErrors.Is(err, errors.ErrManifestFetchFailed):
		logger.Error("Manifest fetch failed", "error", err)
		return withCode("MANIFEST_FETCH_FAILED", huma.Error502BadGateway("Release host error fetching manifest", err))
	case stdErrors.Is(err, errors.ErrArtifactDownloadFailed):
		logger.Error("Artifact download failed", "error", err)
		return withCode("ARTIFACT_DOWNLOAD_FAILED", huma.Error502BadGateway("Release host error downloading artifact", err))
	case stdErrors.Is(err, errors.ErrUpstreamNotFound):
		logger.Error("Upstream resource missing", "error", err)
		return withCode("UPSTREAM_NOT_FOUND", huma.Error502BadGateway("Release host resource not found", err))
	default:
		logger.Error("Unexpected error handling request", "error", err)
		return withCode("INTERNAL", huma.Error500InternalServerError("Internal server error", err))
	}
}

// errorHandler wraps error handling for the application when converting to API friendly errors.
// It allows the logger to be supplied to functions that resolve huma.StatusError,
// and it supports different behaviors based on the variadic errors parameter.
func errorHandler(logger hclog.Logger) func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
	return func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		switch len(errs) {
		case 0:
			// No errors provided; return a generic error.
			return withCode(codeForStatus(status), huma.NewError(status, msg))
		case 1:
			// Single error; map it directly.
			return mapError(logger, errs[0])
		default:
			// Multiple errors; join them and map.
			combinedErr := stdErrors.Join(errs...)
			return mapError(logger, combinedErr)
		}
	}
}
