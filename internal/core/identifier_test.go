package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestParseGitIdentifier(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		want       GitRepoRef
		ok         bool
	}{
		{name: "short form", identifier: "acme/blog", want: GitRepoRef{Host: "github.com", Owner: "acme", Repo: "blog"}, ok: true},
		{name: "github url", identifier: "https://github.com/acme/blog.git", want: GitRepoRef{Host: "github.com", Owner: "acme", Repo: "blog"}, ok: true},
		{name: "enterprise url", identifier: "https://git.example.com/team/shop/", want: GitRepoRef{Host: "git.example.com", Owner: "team", Repo: "shop"}, ok: true},
		{name: "registry scheme", identifier: "wk://blog", ok: false},
		{name: "too many segments", identifier: "a/b/c", ok: false},
		{name: "empty", identifier: " ", ok: false},
		{name: "unsupported scheme", identifier: "ftp://github.com/acme/blog", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseGitIdentifier(tt.identifier)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("unexpected ref (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRegistryIdentifier(t *testing.T) {
	tests := []struct {
		identifier string
		want       string
		ok         bool
	}{
		{identifier: "wk://blog", want: "blog", ok: true},
		{identifier: "wk://acme/blog", want: "acme/blog", ok: true},
		{identifier: "registry.webkernel.dev/blog", want: "blog", ok: true},
		{identifier: "acme/blog", ok: false},
		{identifier: "wk://", ok: false},
		{identifier: "wk://Blog Module", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			got, ok := ParseRegistryIdentifier(tt.identifier, "registry.webkernel.dev")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
