package ports

import (
	"context"
	"io"

	"webkernel-modules/internal/types"
)

// SourceProviderPort resolves an identifier to releases and delivers their
// archives.
type SourceProviderPort interface {
	Name() string
	Supports(identifier string) bool
	FetchReleases(ctx context.Context, identifier string, includePrereleases bool) ([]types.Release, error)
	// DownloadRelease fetches, verifies and extracts the release archive so
	// the module files sit directly under targetDir.
	DownloadRelease(ctx context.Context, release types.Release, targetDir string) error
	VerifyChecksum(ctx context.Context, content io.Reader, release types.Release) (bool, error)
}

// TokenStorePort persists provider credentials. Lookups prefer a repository
// scoped token over an owner scoped one.
type TokenStorePort interface {
	LookupToken(owner string, repo string) (string, error)
	SaveToken(owner string, repo string, scope types.TokenScope, token string) error
	ForgetToken(owner string, repo string) error
}

// SettingsStorePort keeps operator settings next to the tokens.
type SettingsStorePort interface {
	Get(key string) (string, bool, error)
	Set(key string, value string) error
	Settings() (map[string]string, error)
}

// PrompterPort asks the operator for credentials. A nil prompter means the
// session is not interactive.
type PrompterPort interface {
	ConfirmRepository(ctx context.Context, owner string, repo string) (bool, error)
	RequestToken(ctx context.Context, owner string, repo string) (string, types.TokenScope, error)
}
