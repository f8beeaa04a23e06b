// Package errors defines domain-level errors used throughout the application.
// These errors represent business logic failures and are mapped to appropriate HTTP status codes
// and stable machine-readable codes at the API boundary.
//
// NOTE: Important for developers
// When adding a new error here, you MUST consider how it should be handled when returned from API endpoints.
//
// Unmapped errors will default to HTTP 500 Internal Server Error with code INTERNAL.
//
// Don't forget to:
// 1. Add your error to mapError (internal/daemon/api_server.go)
// 2. Add a test case to TestMapError (internal/daemon/api_server_test.go)
package errors

import (
	"errors"
)

var (
	// ErrBadRequest indicates that the client provided invalid input or made a malformed request.
	// Recommended to map to HTTP 400 Bad Request.
	ErrBadRequest = errors.New("bad request")

	// ErrInvalidRepositoryURL indicates that a supplied repository URL could not be parsed into
	// an owner/name pair, or points at an unsupported host.
	// Recommended to map to HTTP 400 Bad Request.
	ErrInvalidRepositoryURL = errors.New("invalid repository url")

	// ErrUpstreamNotFound indicates that a repository, ref or file expected to exist on the
	// upstream release host could not be found.
	// Recommended to map to HTTP 502 Bad Gateway.
	ErrUpstreamNotFound = errors.New("upstream resource not found")

	// ErrUpstreamRateLimited indicates that the upstream release host refused requests due to
	// rate limiting and the retry ceiling was exhausted.
	// Recommended to map to HTTP 502 Bad Gateway.
	ErrUpstreamRateLimited = errors.New("upstream rate limited")

	// ErrNoInstallableAsset indicates that no release with an installable .bpx package asset
	// could be found for the repository.
	// Recommended to map to HTTP 422 Unprocessable Entity.
	ErrNoInstallableAsset = errors.New("no installable asset")

	// ErrAmbiguousInstallableAsset indicates that a release carries more than one .bpx package
	// asset, so the installable artifact cannot be chosen without guessing.
	// Recommended to map to HTTP 422 Unprocessable Entity.
	ErrAmbiguousInstallableAsset = errors.New("ambiguous installable asset")

	// ErrManifestFetchFailed indicates that the extension manifest could not be retrieved from
	// the repository at the requested ref.
	// Recommended to map to HTTP 502 Bad Gateway.
	ErrManifestFetchFailed = errors.New("manifest fetch failed")

	// ErrManifestSchemaInvalid indicates that the extension manifest failed schema validation.
	// The wrapping error may carry the accumulated list of validation failures.
	// Recommended to map to HTTP 422 Unprocessable Entity.
	ErrManifestSchemaInvalid = errors.New("manifest schema invalid")

	// ErrManifestVersionMismatch indicates that the version declared in the manifest does not
	// match the release tag it was fetched for.
	// Recommended to map to HTTP 422 Unprocessable Entity.
	ErrManifestVersionMismatch = errors.New("manifest version mismatch")

	// ErrArtifactTooLarge indicates that a package download exceeded the configured size ceiling.
	// Recommended to map to HTTP 422 Unprocessable Entity.
	ErrArtifactTooLarge = errors.New("artifact too large")

	// ErrArtifactDownloadFailed indicates a transport failure while downloading a package asset.
	// Recommended to map to HTTP 502 Bad Gateway.
	ErrArtifactDownloadFailed = errors.New("artifact download failed")

	// ErrVersionDigestMismatch indicates that the recomputed digest for an already persisted
	// version differs from the stored digest. This is reported, never fatal to a sync run, and
	// the stored record is never overwritten.
	ErrVersionDigestMismatch = errors.New("version digest mismatch")

	// ErrNameCollision indicates that approving a submission would create an extension whose
	// manifest name is already taken.
	// Recommended to map to HTTP 409 Conflict.
	ErrNameCollision = errors.New("extension name collision")

	// ErrExtensionNotFound indicates that the requested extension does not exist.
	// Recommended to map to HTTP 404 Not Found.
	ErrExtensionNotFound = errors.New("extension not found")

	// ErrSubmissionNotFound indicates that the requested submission does not exist.
	// Recommended to map to HTTP 404 Not Found.
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrSubmissionDecided indicates that a review action was attempted on a submission that
	// has already left the pending state. Decisions are immutable.
	// Recommended to map to HTTP 409 Conflict.
	ErrSubmissionDecided = errors.New("submission already decided")

	// ErrNotesTooShort indicates that a reject or request-changes action carried reviewer notes
	// shorter than the configured minimum. Submitters always receive actionable feedback.
	// Recommended to map to HTTP 400 Bad Request.
	ErrNotesTooShort = errors.New("reviewer notes too short")

	// ErrRateLimitExceeded indicates that the caller exhausted its quota for the current window.
	// Recommended to map to HTTP 429 Too Many Requests with a Retry-After header.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrNotAuthenticated indicates that an admin endpoint was called without credentials.
	// Recommended to map to HTTP 401 Unauthorized.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNotAuthorized indicates that the presented credentials do not grant admin access.
	// Recommended to map to HTTP 403 Forbidden.
	ErrNotAuthorized = errors.New("not authorized")
)
