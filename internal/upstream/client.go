// Package upstream talks to the release host: it lists published releases,
// fetches manifest content at a ref and selects installable package assets.
package upstream

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v82/github"
	"github.com/hashicorp/go-hclog"

	"github.com/bpx-store/bpxd/internal/domain"
	"github.com/bpx-store/bpxd/internal/errors"
	"github.com/bpx-store/bpxd/internal/repo"
)

const (
	// ManifestFilename is the extension manifest path within a repository.
	ManifestFilename = "extension.json"

	releasesPerPage = 100
)

// Client implements the ReleaseSource contract on top of the GitHub API.
// NewClient should be used to create instances of Client.
type Client struct {
	gh       *github.Client
	logger   hclog.Logger
	maxPages int
	backoff  BackoffPolicy
}

// Option defines a functional option for configuring the Client.
type Option func(*clientOptions) error

type clientOptions struct {
	token      string
	baseURL    string
	maxPages   int
	backoff    BackoffPolicy
	httpClient *http.Client
}

// WithToken sets the API token used to authenticate upstream calls.
func WithToken(token string) Option {
	return func(o *clientOptions) error {
		o.token = strings.TrimSpace(token)
		return nil
	}
}

// WithBaseURL overrides the API base URL (tests, self-hosted mirrors).
func WithBaseURL(baseURL string) Option {
	return func(o *clientOptions) error {
		o.baseURL = strings.TrimSpace(baseURL)
		return nil
	}
}

// WithMaxPages bounds upstream release pagination.
func WithMaxPages(pages int) Option {
	return func(o *clientOptions) error {
		if pages < 1 {
			return fmt.Errorf("max pages must be at least 1, got %d", pages)
		}
		o.maxPages = pages
		return nil
	}
}

// WithBackoff sets the retry policy for rate-limited calls.
func WithBackoff(policy BackoffPolicy) Option {
	return func(o *clientOptions) error {
		o.backoff = policy
		return nil
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) error {
		if hc == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		o.httpClient = hc
		return nil
	}
}

// NewClient creates an upstream client with defaults applied first and
// user-provided options on top.
func NewClient(logger hclog.Logger, opt ...Option) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	options := clientOptions{
		maxPages: 3,
		backoff:  DefaultBackoffPolicy(),
	}
	for _, o := range opt {
		if o == nil {
			continue
		}
		if err := o(&options); err != nil {
			return nil, fmt.Errorf("invalid upstream client option: %w", err)
		}
	}

	gh := github.NewClient(options.httpClient)
	if options.token != "" {
		gh = gh.WithAuthToken(options.token)
	}
	if options.baseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(options.baseURL, options.baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream base URL '%s': %w", options.baseURL, err)
		}
	}

	return &Client{
		gh:       gh,
		logger:   logger.Named("upstream"),
		maxPages: options.maxPages,
		backoff:  options.backoff,
	}, nil
}

// ListReleases returns published releases for the repository, newest first,
// up to the configured page bound. Draft releases are excluded. A missing
// repository or one without releases yields an empty result with a nil error.
func (c *Client) ListReleases(ctx context.Context, ref repo.Ref) ([]domain.Release, error) {
	opts := &github.ListOptions{PerPage: releasesPerPage}

	var out []domain.Release
	for page := 0; page < c.maxPages; page++ {
		var (
			releases []*github.RepositoryRelease
			resp     *github.Response
		)
		err := c.withRetry(ctx, "list releases", func() error {
			var inner error
			releases, resp, inner = c.gh.Repositories.ListReleases(ctx, ref.Owner, ref.Name, opts)
			return inner
		})
		if err != nil {
			if isNotFound(err) {
				c.logger.Debug("Repository not found upstream", "repo", ref.String())
				return nil, nil
			}
			return nil, fmt.Errorf("failed to list releases for %s: %w", ref.String(), err)
		}

		for _, r := range releases {
			if r.GetDraft() {
				continue
			}
			out = append(out, convertRelease(r))
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return out, nil
}

// FetchManifest retrieves the manifest file content at the given tag ref.
func (c *Client) FetchManifest(ctx context.Context, ref repo.Ref, tag string) ([]byte, error) {
	var body io.ReadCloser
	err := c.withRetry(ctx, "fetch manifest", func() error {
		var inner error
		body, _, inner = c.gh.Repositories.DownloadContents(
			ctx,
			ref.Owner,
			ref.Name,
			ManifestFilename,
			&github.RepositoryContentGetOptions{Ref: tag},
		)
		return inner
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf(
				"%w: %s missing in %s@%s: %w",
				errors.ErrManifestFetchFailed, ManifestFilename, ref.String(), tag, errors.ErrUpstreamNotFound,
			)
		}
		return nil, fmt.Errorf("%w: %s@%s: %w", errors.ErrManifestFetchFailed, ref.String(), tag, err)
	}
	defer func() {
		_ = body.Close()
	}()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s@%s: %w", errors.ErrManifestFetchFailed, ref.String(), tag, err)
	}

	return data, nil
}

// withRetry runs fn, retrying rate-limited calls per the backoff policy.
// All other failures surface immediately; exhausting the attempt ceiling
// fails with ErrUpstreamRateLimited.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		retryAfter, limited := retryAfterHint(err)
		if !limited {
			return err
		}

		if attempt+1 >= c.backoff.MaxAttempts {
			return fmt.Errorf("%w: %s gave up after %d attempts", errors.ErrUpstreamRateLimited, op, c.backoff.MaxAttempts)
		}

		delay := c.backoff.Delay(attempt, retryAfter)
		c.logger.Warn("Upstream rate limited, backing off",
			"operation", op,
			"attempt", attempt+1,
			"delay", delay,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// retryAfterHint extracts the upstream retry-after hint from a rate limit
// error. The second return reports whether the error was a rate limit at all.
func retryAfterHint(err error) (time.Duration, bool) {
	var rateErr *github.RateLimitError
	if stdErrors.As(err, &rateErr) {
		return time.Until(rateErr.Rate.Reset.Time), true
	}

	var abuseErr *github.AbuseRateLimitError
	if stdErrors.As(err, &abuseErr) {
		return abuseErr.GetRetryAfter(), true
	}

	return 0, false
}

func isNotFound(err error) bool {
	var respErr *github.ErrorResponse
	return stdErrors.As(err, &respErr) &&
		respErr.Response != nil &&
		respErr.Response.StatusCode == http.StatusNotFound
}

func convertRelease(r *github.RepositoryRelease) domain.Release {
	release := domain.Release{
		Tag:        r.GetTagName(),
		Prerelease: r.GetPrerelease(),
		NotesRaw:   r.GetBody(),
	}

	if published := r.GetPublishedAt(); !published.IsZero() {
		release.PublishedAt = published.Time
	} else {
		release.PublishedAt = r.GetCreatedAt().Time
	}

	for _, a := range r.Assets {
		release.Assets = append(release.Assets, domain.Asset{
			Filename:          a.GetName(),
			DownloadURL:       a.GetBrowserDownloadURL(),
			DeclaredSizeBytes: int64(a.GetSize()),
		})
	}

	return release
}
