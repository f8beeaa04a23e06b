package repo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpx-store/bpxd/internal/errors"
)

func TestParse_ValidVariants(t *testing.T) {
	t.Parallel()

	want := Ref{Host: "github.com", Owner: "acme", Name: "widget"}

	tests := []struct {
		name  string
		input string
	}{
		{"canonical url", "https://github.com/acme/widget"},
		{"http scheme", "http://github.com/acme/widget"},
		{"trailing slash", "https://github.com/acme/widget/"},
		{"git suffix", "https://github.com/acme/widget.git"},
		{"extra path segments", "https://github.com/acme/widget/releases/tag/v1.0.0"},
		{"www prefix", "https://www.github.com/acme/widget"},
		{"scheme-less host", "github.com/acme/widget"},
		{"shorthand", "acme/widget"},
		{"surrounding whitespace", "  https://github.com/acme/widget  "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(tc.input)
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}
}

func TestParse_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"wrong host", "https://gitlab.com/acme/widget"},
		{"single path segment", "https://github.com/acme"},
		{"single shorthand segment", "acme"},
		{"unsupported scheme", "ftp://github.com/acme/widget"},
		{"unsafe owner", "https://github.com/ac me/widget"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(tc.input)
			require.Error(t, err)
			require.ErrorIs(t, err, errors.ErrInvalidRepositoryURL)
		})
	}
}

func TestParse_Deterministic(t *testing.T) {
	t.Parallel()

	a, err := Parse("acme/widget")
	require.NoError(t, err)

	b, err := Parse("https://github.com/acme/widget.git")
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.Equal(t, "acme/widget", a.String())
	require.Equal(t, "https://github.com/acme/widget", a.URL())
}
