package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/bpx-store/bpxd/internal/errors"
)

func TestFetch_DigestAndSizeFromReceivedBytes(t *testing.T) {
	t.Parallel()

	payload := []byte("bpx package bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Lie about the size; only received bytes count.
		w.Header().Set("Content-Length", "17")
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	fetcher, err := NewFetcher(hclog.NewNullLogger())
	require.NoError(t, err)

	info, err := fetcher.Fetch(t.Context(), srv.URL)
	require.NoError(t, err)

	sum := sha256.Sum256(payload)
	require.Equal(t, "sha256:"+hex.EncodeToString(sum[:]), info.Digest)
	require.Equal(t, int64(len(payload)), info.SizeBytes)
}

func TestFetch_RejectsOversizedDownload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 128)))
	}))
	t.Cleanup(srv.Close)

	fetcher, err := NewFetcher(hclog.NewNullLogger(), WithMaxSizeBytes(64))
	require.NoError(t, err)

	_, err = fetcher.Fetch(t.Context(), srv.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, errors.ErrArtifactTooLarge)
}

func TestFetch_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	fetcher, err := NewFetcher(hclog.NewNullLogger())
	require.NoError(t, err)

	_, err = fetcher.Fetch(t.Context(), srv.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, errors.ErrArtifactDownloadFailed)
}
