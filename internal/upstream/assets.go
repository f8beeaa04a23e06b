package upstream

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bpx-store/bpxd/internal/domain"
	"github.com/bpx-store/bpxd/internal/errors"
)

// BpxExtension is the file suffix of installable package assets.
const BpxExtension = ".bpx"

// FindBpxAsset scans a single release's assets for the installable package.
// It returns nil with a nil error when the release has no .bpx asset; more
// than one candidate is a data-quality error rather than a guess.
func FindBpxAsset(release domain.Release) (*domain.Asset, error) {
	var found *domain.Asset
	for i := range release.Assets {
		a := release.Assets[i]
		if !strings.HasSuffix(strings.ToLower(a.Filename), BpxExtension) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf(
				"%w: release %s has both %s and %s",
				errors.ErrAmbiguousInstallableAsset, release.Tag, found.Filename, a.Filename,
			)
		}
		found = &a
	}

	return found, nil
}

// FindLatestReleaseWithBpx scans releases newest-first for the first one that
// carries an installable package, skipping prereleases unless explicitly
// included. Both returns are nil when no release qualifies.
func FindLatestReleaseWithBpx(releases []domain.Release, includePrerelease bool) (*domain.Release, *domain.Asset, error) {
	ordered := slices.Clone(releases)
	slices.SortStableFunc(ordered, func(a, b domain.Release) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})

	for i := range ordered {
		r := ordered[i]
		if r.Prerelease && !includePrerelease {
			continue
		}

		asset, err := FindBpxAsset(r)
		if err != nil {
			return nil, nil, err
		}
		if asset != nil {
			return &r, asset, nil
		}
	}

	return nil, nil, nil
}
