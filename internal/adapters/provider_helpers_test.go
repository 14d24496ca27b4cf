package adapters

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"webkernel-modules/internal/core"
)

func mustRef(t *testing.T, identifier string) core.GitRepoRef {
	t.Helper()
	ref, ok := core.ParseGitIdentifier(identifier)
	require.True(t, ok, identifier)
	return ref
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	return parsed
}
