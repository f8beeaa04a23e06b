package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Body struct {
		Status string    `doc:"Daemon status"               example:"ok" json:"status"`
		Time   time.Time `doc:"Server time of the response"              json:"time"`
	}
}

// RegisterHealthRoutes sets up the liveness endpoint.
func RegisterHealthRoutes(routerAPI huma.API, apiPathPrefix string) {
	huma.Register(
		routerAPI,
		huma.Operation{
			OperationID: "getHealth",
			Method:      http.MethodGet,
			Path:        apiPathPrefix,
			Summary:     "Daemon liveness check",
			Tags:        []string{"Health"},
		},
		func(_ context.Context, _ *struct{}) (*HealthResponse, error) {
			resp := &HealthResponse{}
			resp.Body.Status = "ok"
			resp.Body.Time = time.Now().UTC()
			return resp, nil
		},
	)
}
