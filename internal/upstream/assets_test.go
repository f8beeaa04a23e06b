package upstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bpx-store/bpxd/internal/domain"
	"github.com/bpx-store/bpxd/internal/errors"
)

func release(tag string, prerelease bool, published time.Time, assets ...domain.Asset) domain.Release {
	return domain.Release{
		Tag:         tag,
		Prerelease:  prerelease,
		PublishedAt: published,
		Assets:      assets,
	}
}

func TestFindBpxAsset(t *testing.T) {
	t.Parallel()

	bpx := domain.Asset{Filename: "widget-1.0.0.bpx", DownloadURL: "https://example.test/widget-1.0.0.bpx"}
	tarball := domain.Asset{Filename: "widget-1.0.0.tar.gz"}

	t.Run("single candidate", func(t *testing.T) {
		t.Parallel()

		got, err := FindBpxAsset(release("v1.0.0", false, time.Now(), tarball, bpx))
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, bpx.Filename, got.Filename)
	})

	t.Run("case insensitive suffix", func(t *testing.T) {
		t.Parallel()

		got, err := FindBpxAsset(release("v1.0.0", false, time.Now(), domain.Asset{Filename: "Widget.BPX"}))
		require.NoError(t, err)
		require.NotNil(t, got)
	})

	t.Run("absent", func(t *testing.T) {
		t.Parallel()

		got, err := FindBpxAsset(release("v1.0.0", false, time.Now(), tarball))
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("ambiguous", func(t *testing.T) {
		t.Parallel()

		_, err := FindBpxAsset(release("v1.0.0", false, time.Now(), bpx, domain.Asset{Filename: "other.bpx"}))
		require.Error(t, err)
		require.ErrorIs(t, err, errors.ErrAmbiguousInstallableAsset)
	})
}

func TestFindLatestReleaseWithBpx(t *testing.T) {
	t.Parallel()

	now := time.Now()
	bpx := domain.Asset{Filename: "widget.bpx"}

	releases := []domain.Release{
		release("v3.0.0-rc.1", true, now, bpx),
		release("v2.0.0", false, now.Add(-time.Hour)),
		release("v1.5.0", false, now.Add(-2*time.Hour), bpx),
		release("v1.0.0", false, now.Add(-3*time.Hour), bpx),
	}

	t.Run("skips prereleases and asset-less releases", func(t *testing.T) {
		t.Parallel()

		got, asset, err := FindLatestReleaseWithBpx(releases, false)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, "v1.5.0", got.Tag)
		require.Equal(t, bpx.Filename, asset.Filename)
	})

	t.Run("includes prereleases when asked", func(t *testing.T) {
		t.Parallel()

		got, _, err := FindLatestReleaseWithBpx(releases, true)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, "v3.0.0-rc.1", got.Tag)
	})

	t.Run("orders by publish time regardless of input order", func(t *testing.T) {
		t.Parallel()

		shuffled := []domain.Release{releases[3], releases[1], releases[2], releases[0]}
		got, _, err := FindLatestReleaseWithBpx(shuffled, false)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, "v1.5.0", got.Tag)
	})

	t.Run("none qualifies", func(t *testing.T) {
		t.Parallel()

		got, asset, err := FindLatestReleaseWithBpx([]domain.Release{release("v2.0.0", false, now)}, false)
		require.NoError(t, err)
		require.Nil(t, got)
		require.Nil(t, asset)
	})

	t.Run("ambiguity surfaces", func(t *testing.T) {
		t.Parallel()

		bad := []domain.Release{release("v1.0.0", false, now, bpx, domain.Asset{Filename: "dup.bpx"})}
		_, _, err := FindLatestReleaseWithBpx(bad, false)
		require.ErrorIs(t, err, errors.ErrAmbiguousInstallableAsset)
	})
}
