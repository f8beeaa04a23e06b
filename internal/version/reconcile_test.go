package version

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpx-store/bpxd/internal/domain"
)

func ver(version, digest string) domain.ExtensionVersion {
	return domain.ExtensionVersion{Version: version, ArtifactDigest: digest}
}

func TestReconcile_NewVersionsOrderedOldestFirst(t *testing.T) {
	t.Parallel()

	observed := []domain.ExtensionVersion{
		ver("2.0.0", "sha256:c"),
		ver("1.1.0", "sha256:b"),
		ver("1.0.0", "sha256:a"),
	}

	plan := Reconcile(observed, nil)
	require.True(t, plan.Updated())
	require.Empty(t, plan.Mismatched)

	got := make([]string, 0, len(plan.New))
	for _, v := range plan.New {
		got = append(got, v.Version)
	}
	require.Equal(t, []string{"1.0.0", "1.1.0", "2.0.0"}, got)
}

func TestReconcile_OnlyUnknownVersionsAreNew(t *testing.T) {
	t.Parallel()

	observed := []domain.ExtensionVersion{
		ver("1.0.0", "sha256:a"),
		ver("1.1.0", "sha256:b"),
	}
	persisted := []domain.ExtensionVersion{ver("1.0.0", "sha256:a")}

	plan := Reconcile(observed, persisted)
	require.Len(t, plan.New, 1)
	require.Equal(t, "1.1.0", plan.New[0].Version)
	require.Empty(t, plan.Mismatched)
}

func TestReconcile_TagPrefixDoesNotDuplicate(t *testing.T) {
	t.Parallel()

	observed := []domain.ExtensionVersion{ver("v1.0.0", "sha256:a")}
	persisted := []domain.ExtensionVersion{ver("1.0.0", "sha256:a")}

	plan := Reconcile(observed, persisted)
	require.False(t, plan.Updated())
	require.Empty(t, plan.Mismatched)
}

func TestReconcile_DigestChangeIsMismatchNotUpdate(t *testing.T) {
	t.Parallel()

	observed := []domain.ExtensionVersion{ver("1.0.0", "sha256:changed")}
	persisted := []domain.ExtensionVersion{ver("1.0.0", "sha256:original")}

	plan := Reconcile(observed, persisted)
	require.False(t, plan.Updated())
	require.Len(t, plan.Mismatched, 1)
	require.Equal(t, "1.0.0", plan.Mismatched[0].Version)
	require.Equal(t, "sha256:original", plan.Mismatched[0].StoredDigest)
	require.Equal(t, "sha256:changed", plan.Mismatched[0].ObservedDigest)
}

func TestReconcile_UpstreamDeletionLeavesPersistedUntouched(t *testing.T) {
	t.Parallel()

	persisted := []domain.ExtensionVersion{ver("1.0.0", "sha256:a"), ver("1.1.0", "sha256:b")}

	plan := Reconcile(nil, persisted)
	require.False(t, plan.Updated())
	require.Empty(t, plan.Mismatched)
}

func TestCompare(t *testing.T) {
	t.Parallel()

	require.Negative(t, Compare("1.2.0", "1.10.0"))
	require.Positive(t, Compare("v2.0.0", "1.9.9"))
	require.Zero(t, Compare("v1.0.0", "1.0.0"))

	// Non-semver tags fall back to lexical ordering.
	require.Negative(t, Compare("alpha", "beta"))
}

func TestSupersedes(t *testing.T) {
	t.Parallel()

	require.True(t, Supersedes(ver("1.0.0", ""), ""))
	require.True(t, Supersedes(ver("2.0.0", ""), "1.9.0"))
	require.False(t, Supersedes(ver("1.0.0", ""), "1.1.0"))

	pre := domain.ExtensionVersion{Version: "3.0.0-rc.1", Prerelease: true}
	require.False(t, Supersedes(pre, "2.0.0"))
	require.False(t, Supersedes(pre, ""))
}
