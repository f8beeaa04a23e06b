// Package syncer drives release synchronization: it reconciles the releases
// discoverable upstream against the persisted version history for one
// extension, or for all eligible extensions under a bounded worker pool.
package syncer

import (
	"context"
	stdErrors "errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/bpx-store/bpxd/internal/changelog"
	"github.com/bpx-store/bpxd/internal/contracts"
	"github.com/bpx-store/bpxd/internal/domain"
	"github.com/bpx-store/bpxd/internal/manifest"
	"github.com/bpx-store/bpxd/internal/repo"
	"github.com/bpx-store/bpxd/internal/upstream"
	"github.com/bpx-store/bpxd/internal/version"
)

// Dependencies contains the required external dependencies for the Syncer.
type Dependencies struct {
	Logger    hclog.Logger
	Store     contracts.ExtensionStore
	Source    contracts.ReleaseSource
	Artifacts contracts.ArtifactFetcher
	Sanitizer *changelog.Sanitizer
}

// Validate ensures all required dependencies are provided.
func (d Dependencies) Validate() error {
	if d.Logger == nil {
		return fmt.Errorf("logger cannot be nil")
	}
	if d.Store == nil {
		return fmt.Errorf("extension store cannot be nil")
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

// Option defines a functional option for configuring the Syncer.
type Option func(*Syncer) error

// WithWorkers bounds bulk sync concurrency. Bulk runs stay deliberately
// conservative to avoid tripping upstream rate limits.
func WithWorkers(n int) Option {
	return func(s *Syncer) error {
		if n < 1 {
			return fmt.Errorf("worker count must be at least 1, got %d", n)
		}
		s.workers = n
		return nil
	}
}

// WithBulkBudget sets the wall-clock budget for one bulk run. Extensions not
// yet processed when the budget is exhausted are reported as skipped.
func WithBulkBudget(d time.Duration) Option {
	return func(s *Syncer) error {
		if d <= 0 {
			return fmt.Errorf("bulk budget must be positive, got %s", d)
		}
		s.bulkBudget = d
		return nil
	}
}

// Syncer implements the SyncService contract.
// NewSyncer should be used to create instances of Syncer.
type Syncer struct {
	logger     hclog.Logger
	store      contracts.ExtensionStore
	source     contracts.ReleaseSource
	artifacts  contracts.ArtifactFetcher
	sanitizer  *changelog.Sanitizer
	workers    int
	bulkBudget time.Duration
}

// NewSyncer creates a Syncer with defaults applied first and user-provided
// options on top.
func NewSyncer(deps Dependencies, opt ...Option) (*Syncer, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies for syncer: %w", err)
	}

	s := &Syncer{
		logger:     deps.Logger.Named("syncer"),
		store:      deps.Store,
		source:     deps.Source,
		artifacts:  deps.Artifacts,
		sanitizer:  deps.Sanitizer,
		workers:    2,
		bulkBudget: 10 * time.Minute,
	}

	for _, o := range opt {
		if o == nil {
			continue
		}
		if err := o(s); err != nil {
			return nil, fmt.Errorf("invalid syncer option: %w", err)
		}
	}

	return s, nil
}

// SyncExtension runs a single-extension sync by public name. Any failure is
// returned to the caller; there is no partial suppression because there is
// only one unit of work.
func (s *Syncer) SyncExtension(ctx context.Context, name string) (domain.SyncResult, error) {
	ext, err := s.store.GetExtensionByName(ctx, name)
	if err != nil {
		return domain.SyncResult{ExtensionName: name}, err
	}

	return s.syncOne(ctx, *ext)
}

// syncOne executes the full pipeline for one extension: list releases, select
// assets, validate manifests, hash artifacts, sanitize changelogs, reconcile
// and persist. New versions are imported oldest to newest so the latest
// pointer only ever advances within a run.
func (s *Syncer) syncOne(ctx context.Context, ext domain.Extension) (domain.SyncResult, error) {
	result := domain.SyncResult{ExtensionName: ext.Name}

	ref, err := repo.Parse(ext.RepositoryURL)
	if err != nil {
		return result, err
	}

	releases, err := s.source.ListReleases(ctx, ref)
	if err != nil {
		return result, err
	}

	persisted, err := s.store.GetVersions(ctx, ext.ID)
	if err != nil {
		return result, err
	}
	known := make(map[string]struct{}, len(persisted))
	for _, v := range persisted {
		known[version.Normalize(v.Version)] = struct{}{}
	}

	observed, err := s.observeReleases(ctx, ref, releases, known)
	if err != nil {
		return result, err
	}

	plan := version.Reconcile(observed, persisted)

	for _, m := range plan.Mismatched {
		s.logger.Warn("Artifact digest changed upstream for a published version, not overwriting",
			"extension", ext.Name,
			"version", m.Version,
			"stored", m.StoredDigest,
			"observed", m.ObservedDigest,
		)
		result.Mismatches = append(result.Mismatches, m.Version)
	}

	for _, v := range plan.New {
		if err := s.store.AppendVersion(ctx, ext.ID, v); err != nil {
			return result, err
		}
		result.NewVersions = append(result.NewVersions, v.Version)
		s.logger.Info("Imported new version", "extension", ext.Name, "version", v.Version)
	}
	result.Updated = len(result.NewVersions) > 0

	return result, nil
}

// observeReleases turns upstream releases into version records carrying the
// digest computed over the actual artifact bytes. Known versions only need
// the digest recomputed for mismatch detection; new versions additionally
// get their manifest validated and changelog sanitized. Releases without an
// installable asset are ignored.
func (s *Syncer) observeReleases(
	ctx context.Context,
	ref repo.Ref,
	releases []domain.Release,
	known map[string]struct{},
) ([]domain.ExtensionVersion, error) {
	var observed []domain.ExtensionVersion

	for _, release := range releases {
		asset, err := upstream.FindBpxAsset(release)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			continue
		}

		if _, ok := known[version.Normalize(release.Tag)]; ok {
			info, err := s.artifacts.Fetch(ctx, asset.DownloadURL)
			if err != nil {
				return nil, err
			}
			observed = append(observed, domain.ExtensionVersion{
				Version:        version.Normalize(release.Tag),
				ArtifactDigest: info.Digest,
			})
			continue
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

		observed = append(observed, domain.ExtensionVersion{
			Version:           version.Normalize(validated.Manifest.Version),
			ArtifactDigest:    info.Digest,
			ArtifactSizeBytes: info.SizeBytes,
			Changelog:         s.sanitizer.Sanitize(release.NotesRaw),
			PublishedAt:       release.PublishedAt,
			Prerelease:        release.Prerelease,
		})
	}

	return observed, nil
}

// SyncAll runs the single-extension path for every eligible extension,
// isolating per-extension failures: one extension's upstream outage or
// manifest error never aborts the run for the others. Failures are retried
// only on the next scheduled sync, never within the same run.
func (s *Syncer) SyncAll(ctx context.Context) (domain.BulkSyncResult, error) {
	extensions, err := s.store.ListExtensions(ctx)
	if err != nil {
		return domain.BulkSyncResult{}, err
	}

	var eligible []domain.Extension
	for _, ext := range extensions {
		if ext.Deprecated {
			continue
		}
		if _, err := repo.Parse(ext.RepositoryURL); err != nil {
			continue
		}
		eligible = append(eligible, ext)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.bulkBudget)
	defer cancel()

	results := make([]domain.SyncResult, len(eligible))

	var g errgroup.Group
	g.SetLimit(s.workers)

	for i, ext := range eligible {
		if runCtx.Err() != nil {
			results[i] = domain.SyncResult{ExtensionName: ext.Name, Skipped: true}
			continue
		}

		g.Go(func() error {
			res, err := s.syncOne(runCtx, ext)
			if err != nil {
				if stdErrors.Is(err, context.DeadlineExceeded) || runCtx.Err() != nil {
					res.Skipped = true
				} else {
					res.Error = err.Error()
					s.logger.Error("Extension sync failed", "extension", ext.Name, "error", err)
				}
			}
			results[i] = res
			return nil
		})
	}

	_ = g.Wait()

	slices.SortFunc(results, func(a, b domain.SyncResult) int {
		return strings.Compare(a.ExtensionName, b.ExtensionName)
	})

	bulk := domain.BulkSyncResult{Results: results}
	for _, r := range results {
		switch {
		case r.Skipped:
			bulk.Skipped++
		case r.Error != "":
			bulk.Failed++
		default:
			bulk.Succeeded++
		}
	}

	s.logger.Info("Bulk sync finished",
		"eligible", len(eligible),
		"succeeded", bulk.Succeeded,
		"failed", bulk.Failed,
		"skipped", bulk.Skipped,
	)

	return bulk, nil
}
