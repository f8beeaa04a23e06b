// Package manifest validates extension manifests fetched from upstream
// repositories. Validation is schema-based and accumulates every problem
// instead of failing fast, so a submitter can fix everything in one pass.
package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/xeipuuv/gojsonschema"

	"github.com/bpx-store/bpxd/internal/errors"
)

// schema is the fixed JSON schema every extension manifest must satisfy.
const schema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name", "displayName", "version", "category", "entryPoint"],
	"properties": {
		"name": {
			"type": "string",
			"minLength": 3,
			"maxLength": 214,
			"pattern": "^[a-z0-9]+(\\.[a-z0-9][a-z0-9-]*)+$"
		},
		"displayName": {"type": "string", "minLength": 1, "maxLength": 120},
		"version": {"type": "string", "minLength": 1, "maxLength": 64},
		"category": {"type": "string", "minLength": 1, "maxLength": 64},
		"entryPoint": {"type": "string", "minLength": 1, "maxLength": 255},
		"description": {"type": "string", "maxLength": 2000},
		"homepage": {"type": "string", "maxLength": 500},
		"permissions": {
			"type": "array",
			"maxItems": 32,
			"items": {"type": "string", "minLength": 1, "maxLength": 64}
		}
	}
}`

// Manifest is the parsed extension metadata file (extension.json).
type Manifest struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Version     string   `json:"version"`
	Category    string   `json:"category"`
	EntryPoint  string   `json:"entryPoint"`
	Description string   `json:"description,omitempty"`
	Homepage    string   `json:"homepage,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Result carries either the parsed manifest or the accumulated list of
// human-readable validation problems.
type Result struct {
	Manifest *Manifest
	Problems []string

	versionMismatch bool
}

// Valid reports whether the manifest passed schema validation and the
// version cross-check.
func (r Result) Valid() bool {
	return len(r.Problems) == 0
}

// Err converts an invalid result into the matching domain error. Version
// mismatches get their own sentinel; everything else is a schema failure
// carrying the full problem list.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	if r.versionMismatch && len(r.Problems) == 1 {
		return fmt.Errorf("%w: %s", errors.ErrManifestVersionMismatch, r.Problems[0])
	}
	return fmt.Errorf("%w: %s", errors.ErrManifestSchemaInvalid, strings.Join(r.Problems, "; "))
}

// Validate checks raw manifest content against the schema and cross-checks the
// declared version against the release tag it was fetched for. All problems
// are accumulated; the returned result is invalid if any were found.
func Validate(data []byte, releaseTag string) Result {
	var result Result

	schemaResult, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		result.Problems = append(result.Problems, fmt.Sprintf("manifest is not valid JSON: %v", err))
		return result
	}

	for _, problem := range schemaResult.Errors() {
		result.Problems = append(result.Problems, fmt.Sprintf("%s: %s", problem.Field(), problem.Description()))
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		result.Problems = append(result.Problems, fmt.Sprintf("manifest could not be decoded: %v", err))
		return result
	}

	if m.Version != "" {
		if err := checkVersionMatch(m.Version, releaseTag); err != nil {
			result.Problems = append(result.Problems, err.Error())
			result.versionMismatch = true
		}
	}

	if result.Valid() {
		result.Manifest = &m
	}

	return result
}

// NormalizeVersion strips the conventional leading "v" from a version or tag.
func NormalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// checkVersionMatch enforces the semantic rule that the normalized manifest
// version equals the normalized release tag. This is the primary defense
// against a maintainer tagging a release without updating the manifest.
func checkVersionMatch(manifestVersion, releaseTag string) error {
	mv, err := semver.NewVersion(NormalizeVersion(manifestVersion))
	if err != nil {
		return fmt.Errorf("manifest version %q is not a parseable version", manifestVersion)
	}

	tv, err := semver.NewVersion(NormalizeVersion(releaseTag))
	if err != nil {
		return fmt.Errorf("release tag %q is not a parseable version", releaseTag)
	}

	if !mv.Equal(tv) {
		return fmt.Errorf("manifest declares version %q but the release is tagged %q", manifestVersion, releaseTag)
	}

	return nil
}
