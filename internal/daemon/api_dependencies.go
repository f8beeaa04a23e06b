package daemon

import (
	"fmt"
	"reflect"

	"github.com/hashicorp/go-hclog"

	"github.com/bpx-store/bpxd/internal/contracts"
)

// APIDependencies contains the required external dependencies for the API server.
// NewAPIDependencies should be used to create instances of APIDependencies.
type APIDependencies struct {
	// Addr specifies the network address to bind (e.g., "0.0.0.0:8090").
	Addr string

	// SyncService drives single and bulk release synchronization.
	SyncService contracts.SyncService

	// Reviewer governs the submission lifecycle.
	Reviewer contracts.SubmissionReviewer

	// Limiter enforces the per-caller request quotas.
	Limiter contracts.RateLimiter

	// Logger for API server operations.
	Logger hclog.Logger
}

// NewAPIDependencies creates and validates APIDependencies.
func NewAPIDependencies(
	logger hclog.Logger,
	syncService contracts.SyncService,
	reviewer contracts.SubmissionReviewer,
	limiter contracts.RateLimiter,
	addr string,
) (APIDependencies, error) {
	deps := APIDependencies{
		Addr:        addr,
		SyncService: syncService,
		Reviewer:    reviewer,
		Limiter:     limiter,
		Logger:      logger,
	}

	if err := deps.Validate(); err != nil {
		return APIDependencies{}, err
	}

	return deps, nil
}

// Validate ensures all required dependencies are provided and valid.
func (d APIDependencies) Validate() error {
	if err := validateAddr(d.Addr); err != nil {
		return fmt.Errorf("invalid API address '%s': %w", d.Addr, err)
	}
	if d.SyncService == nil || reflect.ValueOf(d.SyncService).IsNil() {
		return fmt.Errorf("sync service cannot be nil")
	}
	if d.Reviewer == nil || reflect.ValueOf(d.Reviewer).IsNil() {
		return fmt.Errorf("submission reviewer cannot be nil")
	}
	if d.Limiter == nil || reflect.ValueOf(d.Limiter).IsNil() {
		return fmt.Errorf("rate limiter cannot be nil")
	}
	if d.Logger == nil || reflect.ValueOf(d.Logger).IsNil() {
		return fmt.Errorf("logger cannot be nil")
	}
	return nil
}
