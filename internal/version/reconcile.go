// Package version reconciles the set of releases discoverable upstream
// against the version history already persisted for an extension.
package version

import (
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/bpx-store/bpxd/internal/domain"
)

// Mismatch records a persisted version whose recomputed upstream digest
// differs from the stored one. Mismatches are reported, never imported and
// never overwritten: a silent auto-update of a previously distributed
// artifact is more dangerous than a stale record.
type Mismatch struct {
	Version        string
	StoredDigest   string
	ObservedDigest string
}

// Plan is the outcome of reconciling upstream state against the store.
// New versions are ordered oldest to newest so latest-version bookkeeping
// only ever advances monotonically within one sync run. Versions present
// only in the persisted set are untouched: upstream release deletion does
// not retract a published version.
type Plan struct {
	New        []domain.ExtensionVersion
	Mismatched []Mismatch
}

// Updated reports whether the plan imports anything.
func (p Plan) Updated() bool {
	return len(p.New) > 0
}

// Reconcile diffs the observed upstream versions against the persisted ones.
// Version identity is the normalized version string (leading "v" stripped).
func Reconcile(observed []domain.ExtensionVersion, persisted []domain.ExtensionVersion) Plan {
	stored := make(map[string]domain.ExtensionVersion, len(persisted))
	for _, v := range persisted {
		stored[Normalize(v.Version)] = v
	}

	var plan Plan
	seen := make(map[string]struct{}, len(observed))
	for _, candidate := range observed {
		key := Normalize(candidate.Version)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		existing, known := stored[key]
		if !known {
			plan.New = append(plan.New, candidate)
			continue
		}

		if existing.ArtifactDigest != candidate.ArtifactDigest {
			plan.Mismatched = append(plan.Mismatched, Mismatch{
				Version:        existing.Version,
				StoredDigest:   existing.ArtifactDigest,
				ObservedDigest: candidate.ArtifactDigest,
			})
		}
	}

	slices.SortStableFunc(plan.New, func(a, b domain.ExtensionVersion) int {
		return Compare(a.Version, b.Version)
	})

	return plan
}

// Normalize strips the conventional leading "v" from a version or tag.
func Normalize(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// Compare orders two version strings by semantic version precedence, falling
// back to lexical order when either side does not parse.
func Compare(a, b string) int {
	av, aErr := semver.NewVersion(Normalize(a))
	bv, bErr := semver.NewVersion(Normalize(b))
	if aErr != nil || bErr != nil {
		return strings.Compare(Normalize(a), Normalize(b))
	}
	return av.Compare(bv)
}

// Supersedes reports whether candidate should replace current as the
// latest-version pointer. Prereleases never supersede a stable version, and
// an empty current pointer is always superseded.
func Supersedes(candidate domain.ExtensionVersion, current string) bool {
	if candidate.Prerelease {
		return false
	}
	if strings.TrimSpace(current) == "" {
		return true
	}
	return Compare(candidate.Version, current) > 0
}
