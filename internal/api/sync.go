package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bpx-store/bpxd/internal/contracts"
	"github.com/bpx-store/bpxd/internal/domain"
)

// SyncExtensionRequest represents the incoming request to sync one extension.
type SyncExtensionRequest struct {
	Name string `doc:"Public name of the extension to sync" example:"acme.widget" path:"name"`
}

// SyncResponse represents the wrapped API response for a single-extension sync.
type SyncResponse struct {
	Body domain.SyncResult
}

// BulkSyncResponse represents the wrapped API response for an admin bulk sync.
type BulkSyncResponse struct {
	Body domain.BulkSyncResult
}

// RegisterSyncRoutes sets up the sync endpoints: the public single-extension
// trigger under /store and the admin bulk trigger under /admin.
func RegisterSyncRoutes(routerAPI huma.API, syncService contracts.SyncService) {
	tags := []string{"Sync"}

	huma.Register(
		routerAPI,
		huma.Operation{
			OperationID: "syncExtension",
			Method:      http.MethodPost,
			Path:        "/store/extensions/{name}/sync",
			Summary:     "Sync one extension's releases from its upstream repository",
			Tags:        tags,
		},
		func(ctx context.Context, input *SyncExtensionRequest) (*SyncResponse, error) {
			return handleSyncExtension(ctx, syncService, input.Name)
		},
	)

	huma.Register(
		routerAPI,
		huma.Operation{
			OperationID: "syncAllExtensions",
			Method:      http.MethodPost,
			Path:        "/admin/sync/all",
			Summary:     "Sync all eligible extensions",
			Tags:        append(tags, "Admin"),
		},
		func(ctx context.Context, _ *struct{}) (*BulkSyncResponse, error) {
			return handleSyncAll(ctx, syncService)
		},
	)
}

// handleSyncExtension runs a blocking sync for one extension and reports the
// imported versions and any digest mismatches.
func handleSyncExtension(ctx context.Context, syncService contracts.SyncService, name string) (*SyncResponse, error) {
	result, err := syncService.SyncExtension(ctx, name)
	if err != nil {
		return nil, err
	}

	resp := &SyncResponse{}
	resp.Body = result

	return resp, nil
}

// handleSyncAll runs the bulk sync; per-extension failures are reported in the
// body rather than failing the request.
func handleSyncAll(ctx context.Context, syncService contracts.SyncService) (*BulkSyncResponse, error) {
	result, err := syncService.SyncAll(ctx)
	if err != nil {
		return nil, err
	}

	resp := &BulkSyncResponse{}
	resp.Body = result

	return resp, nil
}
