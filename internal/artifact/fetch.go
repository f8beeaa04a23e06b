// Package artifact downloads installable package assets and computes a
// content digest over the bytes actually received. The upstream-declared
// size and filename are never trusted as authoritative.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/bpx-store/bpxd/internal/domain"
	"github.com/bpx-store/bpxd/internal/errors"
)

// Fetcher downloads package assets with a bounded size ceiling and timeout.
// NewFetcher should be used to create instances of Fetcher.
type Fetcher struct {
	logger       hclog.Logger
	httpClient   *http.Client
	maxSizeBytes int64
}

// Option defines a functional option for configuring the Fetcher.
type Option func(*Fetcher) error

// WithMaxSizeBytes sets the download size ceiling.
func WithMaxSizeBytes(n int64) Option {
	return func(f *Fetcher) error {
		if n < 1 {
			return fmt.Errorf("size ceiling must be positive, got %d", n)
		}
		f.maxSizeBytes = n
		return nil
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) error {
		if hc == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		f.httpClient = hc
		return nil
	}
}

// NewFetcher creates a Fetcher with defaults applied first and user-provided
// options on top.
func NewFetcher(logger hclog.Logger, opt ...Option) (*Fetcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	f := &Fetcher{
		logger:       logger.Named("artifact"),
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
		maxSizeBytes: 64 << 20, // 64 MiB
	}

	for _, o := range opt {
		if o == nil {
			continue
		}
		if err := o(f); err != nil {
			return nil, fmt.Errorf("invalid artifact fetcher option: %w", err)
		}
	}

	return f, nil
}

// Fetch streams the asset at url, enforcing the size ceiling while reading so
// oversized downloads are rejected before being fully buffered. It returns
// the SHA-256 digest and byte count computed over the received bytes.
func (f *Fetcher) Fetch(ctx context.Context, url string) (domain.ArtifactInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.ArtifactInfo{}, fmt.Errorf("%w: building request for '%s': %w", errors.ErrArtifactDownloadFailed, url, err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return domain.ArtifactInfo{}, fmt.Errorf("%w: '%s': %w", errors.ErrArtifactDownloadFailed, url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return domain.ArtifactInfo{}, fmt.Errorf(
			"%w: received non-OK HTTP status from '%s': %d",
			errors.ErrArtifactDownloadFailed, url, resp.StatusCode,
		)
	}

	hasher := sha256.New()

	// Read one byte past the ceiling so an oversized body is detected without
	// buffering the whole thing.
	limited := io.LimitReader(resp.Body, f.maxSizeBytes+1)
	size, err := io.Copy(hasher, limited)
	if err != nil {
		return domain.ArtifactInfo{}, fmt.Errorf("%w: reading '%s': %w", errors.ErrArtifactDownloadFailed, url, err)
	}
	if size > f.maxSizeBytes {
		return domain.ArtifactInfo{}, fmt.Errorf(
			"%w: '%s' exceeds the %d byte ceiling",
			errors.ErrArtifactTooLarge, url, f.maxSizeBytes,
		)
	}

	info := domain.ArtifactInfo{
		Digest:    "sha256:" + hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes: size,
	}

	f.logger.Debug("Fetched artifact", "url", url, "digest", info.Digest, "size", info.SizeBytes)

	return info, nil
}
