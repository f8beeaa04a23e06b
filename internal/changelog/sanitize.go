// Package changelog strips unsafe markup from release notes before they are
// persisted or rendered. Release notes arrive as arbitrary markdown/text from
// an untrusted third party.
package changelog

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer removes script-bearing markup and raw HTML event handlers while
// preserving plain text and safe markdown.
// NewSanitizer should be used to create instances of Sanitizer.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer creates a sanitizer with the user-generated-content policy.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.UGCPolicy()}
}

// Sanitize returns notes with unsafe constructs stripped. Sanitizing already
// sanitized text is a no-op.
func (s *Sanitizer) Sanitize(notes string) string {
	return strings.TrimSpace(s.policy.Sanitize(notes))
}
