package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webkernel-modules/internal/types"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want int
	}{
		{name: "semver equal with prefix", a: "v1.2.0", b: "1.2.0", want: 0},
		{name: "semver numeric ordering", a: "1.2.0", b: "1.10.0", want: -1},
		{name: "semver prerelease before release", a: "2.0.0-beta.1", b: "v2.0.0", want: -1},
		{name: "pep440 release candidate", a: "1.0.0rc1", b: "1.0.0", want: -1},
		{name: "pep440 calendar versions", a: "2024.01", b: "2023.12", want: 1},
		{name: "semver major", a: "v3.0.0", b: "v2.9.9", want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CompareVersions(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompareVersionsInvalid(t *testing.T) {
	_, err := CompareVersions("not-a-version!!!", "1.0.0")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrorKindModule))
}

func TestVersionCacheMemoizes(t *testing.T) {
	cache := newVersionCache()
	v1, err := cache.pepVersion("1.2.3")
	require.NoError(t, err)
	v2, err := cache.pepVersion("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Len(t, cache.pep, 1)
}

func TestTrimVersionPrefix(t *testing.T) {
	assert.Equal(t, "1.0.0", trimVersionPrefix("v1.0.0"))
	assert.Equal(t, "1.0.0", trimVersionPrefix(" V1.0.0 "))
	assert.Equal(t, "version", trimVersionPrefix("version"))
	assert.Equal(t, "v", trimVersionPrefix("v"))
}
