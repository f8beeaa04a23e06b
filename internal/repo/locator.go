// Package repo resolves user-supplied repository URLs into owner/name pairs.
// Parsing is a local, fast check performed before any network call.
package repo

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/bpx-store/bpxd/internal/errors"
)

// DefaultHost is the only release host currently supported.
const DefaultHost = "github.com"

// identPattern matches URL-safe owner and repository name segments.
var identPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Ref identifies a repository on the release host.
// It is derived deterministically from a URL and immutable once parsed.
type Ref struct {
	Host  string
	Owner string
	Name  string
}

// String returns the canonical owner/name form of the reference.
func (r Ref) String() string {
	return r.Owner + "/" + r.Name
}

// URL returns the canonical web URL for the repository.
func (r Ref) URL() string {
	return fmt.Sprintf("https://%s/%s/%s", r.Host, r.Owner, r.Name)
}

// Parse turns a raw string into a Ref. It accepts the canonical web URL form
// (with or without scheme, with optional trailing path, ".git" suffix or
// trailing slash) and the bare "owner/name" shorthand.
// Empty input, foreign hosts and paths with fewer than two segments fail with
// errors.ErrInvalidRepositoryURL.
func Parse(raw string) (Ref, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Ref{}, fmt.Errorf("%w: empty input", errors.ErrInvalidRepositoryURL)
	}

	candidate := trimmed
	if !strings.Contains(candidate, "://") {
		// Bare "owner/name" shorthand or a scheme-less host form.
		if strings.HasPrefix(candidate, DefaultHost+"/") {
			candidate = "https://" + candidate
		} else {
			candidate = "https://" + DefaultHost + "/" + candidate
		}
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %q", errors.ErrInvalidRepositoryURL, raw)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return Ref{}, fmt.Errorf("%w: unsupported scheme %q", errors.ErrInvalidRepositoryURL, u.Scheme)
	}

	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	if host != DefaultHost {
		return Ref{}, fmt.Errorf("%w: unsupported host %q", errors.ErrInvalidRepositoryURL, u.Hostname())
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return Ref{}, fmt.Errorf("%w: expected owner/name in path %q", errors.ErrInvalidRepositoryURL, u.Path)
	}

	owner := segments[0]
	name := strings.TrimSuffix(segments[1], ".git")

	if !identPattern.MatchString(owner) || !identPattern.MatchString(name) {
		return Ref{}, fmt.Errorf("%w: owner and name must be URL-safe identifiers", errors.ErrInvalidRepositoryURL)
	}

	return Ref{Host: DefaultHost, Owner: owner, Name: name}, nil
}
