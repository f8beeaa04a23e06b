// Package domain holds the data types shared between the sync pipeline, the
// submission review flow and the persistence contracts.
package domain

import (
	"time"
)

// Extension is a published marketplace extension that owns a set of versions.
// Extensions are created only through an approved submission; sync runs can
// add versions to an existing extension but never create one.
type Extension struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	DisplayName   string    `json:"display_name"`
	Category      string    `json:"category"`
	RepositoryURL string    `json:"repository_url"`
	Deprecated    bool      `json:"deprecated"`
	LatestVersion string    `json:"latest_version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ExtensionVersion is one published, installable version of an extension.
// ArtifactDigest is immutable once persisted: a later sync observing different
// bytes for the same version is a mismatch, never an update.
type ExtensionVersion struct {
	ExtensionID       string    `json:"extension_id"`
	Version           string    `json:"version"`
	ArtifactDigest    string    `json:"artifact_digest"`
	ArtifactSizeBytes int64     `json:"artifact_size_bytes"`
	Changelog         string    `json:"changelog"`
	PublishedAt       time.Time `json:"published_at"`
	Prerelease        bool      `json:"prerelease"`
}

// Release is a single upstream release as discovered on the release host.
// Releases are never stored verbatim; NotesRaw is sanitized before persistence.
type Release struct {
	Tag         string
	Prerelease  bool
	PublishedAt time.Time
	NotesRaw    string
	Assets      []Asset
}

// Asset is a downloadable file attached to a release.
// DeclaredSizeBytes is advisory only and never trusted as authoritative.
type Asset struct {
	Filename          string
	DownloadURL       string
	DeclaredSizeBytes int64
}

// ArtifactInfo carries the digest and size computed over the actual bytes
// received when downloading a package asset.
type ArtifactInfo struct {
	Digest    string `json:"digest"`
	SizeBytes int64  `json:"size_bytes"`
}

// RateDecision is the outcome of consulting the rate limiter for one key.
type RateDecision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}
