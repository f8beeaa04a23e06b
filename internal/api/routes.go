// Package api defines the HTTP operations exposed by the daemon: the public
// store surface (submission intake, single-extension sync) and the admin
// surface (review decisions, bulk sync).
package api

import (
	"fmt"
	"net/url"
	"reflect"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bpx-store/bpxd/internal/contracts"
)

// APIVersion is the version used in the OpenAPI spec and URL paths.
const APIVersion = "v1"

// RegisterRoutes registers all API routes on the provided Huma router.
// This is the single source of truth for the API route structure.
// Returns the API path prefix (e.g., "/api/v1") under which the routes are created.
func RegisterRoutes(
	router huma.API,
	syncService contracts.SyncService,
	reviewer contracts.SubmissionReviewer,
) (string, error) {
	if router == nil || reflect.ValueOf(router).IsNil() {
		return "", fmt.Errorf("router cannot be nil")
	}
	if syncService == nil || reflect.ValueOf(syncService).IsNil() {
		return "", fmt.Errorf("sync service cannot be nil")
	}
	if reviewer == nil || reflect.ValueOf(reviewer).IsNil() {
		return "", fmt.Errorf("submission reviewer cannot be nil")
	}

	// Extract API version from the router's OpenAPI spec.
	apiVersionID := router.OpenAPI().Info.Version

	// Safe way to ensure /api/{version}.
	apiPathPrefix, err := url.JoinPath("/api", apiVersionID)
	if err != nil {
		return "", fmt.Errorf("failed to construct API path prefix: %w", err)
	}

	// Group all routes under the /api/{version} prefix.
	versionedGroup := huma.NewGroup(router, apiPathPrefix)
	RegisterHealthRoutes(versionedGroup, "/health")
	RegisterSyncRoutes(versionedGroup, syncService)
	RegisterSubmissionRoutes(versionedGroup, reviewer)

	return apiPathPrefix, nil
}
