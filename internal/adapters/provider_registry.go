package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"webkernel-modules/internal/core"
	"webkernel-modules/internal/ports"
	"webkernel-modules/internal/shared"
	"webkernel-modules/internal/types"
)

const (
	registryProviderName   = "registry"
	defaultRegistryAPIBase = "https://registry.webkernel.dev/api/v1"
	registryAuthRequired   = "authentication_required"
	registryTokenPrefix    = "registry:"
)

// RegistryProviderAdapter talks to the dedicated module registry. Releases
// carry their sha256 inline.
type RegistryProviderAdapter struct {
	Config HTTPProviderConfig
	Tokens ports.TokenStorePort
}

func NewRegistryProviderAdapter(cfg HTTPProviderConfig, tokens ports.TokenStorePort) RegistryProviderAdapter {
	return RegistryProviderAdapter{
		Config: normalizeHTTPProviderConfig(cfg, defaultRegistryAPIBase),
		Tokens: tokens,
	}
}

type registryRelease struct {
	Tag         string `json:"tag"`
	Name        string `json:"name"`
	PublishedAt string `json:"published_at"`
	Prerelease  bool   `json:"prerelease"`
	Draft       bool   `json:"draft"`
	DownloadURL string `json:"download_url"`
	SHA256      string `json:"sha256"`
}

type registryResponse struct {
	Releases []registryRelease `json:"releases"`
	Error    string            `json:"error"`
	Message  string            `json:"message"`
}

func (a RegistryProviderAdapter) Name() string {
	return registryProviderName
}

// Host is the registry host, which doubles as the identifier prefix in the
// <host>/name form.
func (a RegistryProviderAdapter) Host() string {
	parsed, err := url.Parse(a.Config.APIBase)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// TokenOwner is the config store key under which the registry token lives.
func (a RegistryProviderAdapter) TokenOwner() string {
	return registryTokenPrefix + a.Host()
}

func (a RegistryProviderAdapter) Supports(identifier string) bool {
	_, ok := core.ParseRegistryIdentifier(identifier, a.Host())
	return ok
}

func (a RegistryProviderAdapter) token(ctx context.Context) string {
	if token := types.SessionTokenFrom(ctx); token != "" {
		return token
	}
	if a.Tokens == nil {
		return ""
	}
	token, err := a.Tokens.LookupToken(a.TokenOwner(), "")
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("stored registry token could not be read")
		return ""
	}
	return token
}

func (a RegistryProviderAdapter) FetchReleases(ctx context.Context, identifier string, includePrereleases bool) ([]types.Release, error) {
	name, ok := core.ParseRegistryIdentifier(identifier, a.Host())
	if !ok {
		return nil, types.NewModuleError("not a registry identifier: "+identifier, nil)
	}
	endpoint := a.Config.APIBase + "/modules/" + escapeModuleName(name) + "/releases"
	if includePrereleases {
		endpoint += "?include_prereleases=1"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewNetworkError("failed to build registry request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.Config.UserAgent)
	if token := a.token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: a.Config.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, types.NewNetworkError("registry request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONResponseBytes))
	if err != nil {
		return nil, types.NewNetworkError("failed to read registry response", err)
	}
	var payload registryResponse
	decodeErr := json.Unmarshal(body, &payload)
	if decodeErr == nil && payload.Error != "" {
		if payload.Error == registryAuthRequired {
			return nil, types.NewNetworkError(
				fmt.Sprintf("registry requires authentication for %s; store a token with \"token set %s\"", name, a.TokenOwner()),
				types.ErrAuthenticationRequired)
		}
		message := payload.Error
		if payload.Message != "" {
			message += ": " + payload.Message
		}
		return nil, types.NewNetworkError("registry error for "+name, errors.New(message))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewNetworkError("unexpected registry response", shared.HTTPStatusErrorWithBody(resp.StatusCode, endpoint, string(body)))
	}
	if decodeErr != nil {
		return nil, types.NewNetworkError("failed to decode registry response", decodeErr)
	}
	releases := make([]types.Release, 0, len(payload.Releases))
	for _, item := range payload.Releases {
		release := types.Release{
			Identifier:  identifier,
			Provider:    registryProviderName,
			Tag:         item.Tag,
			Name:        item.Name,
			PublishedAt: parseReleaseTime(item.PublishedAt),
			Prerelease:  item.Prerelease,
			Draft:       item.Draft,
			DownloadURL: item.DownloadURL,
			Checksum:    strings.TrimSpace(item.SHA256),
		}
		if release.Name == "" {
			release.Name = item.Tag
		}
		releases = append(releases, release)
	}
	return core.FilterReleases(releases, includePrereleases), nil
}

func escapeModuleName(name string) string {
	parts := strings.Split(name, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func (a RegistryProviderAdapter) DownloadRelease(ctx context.Context, release types.Release, targetDir string) error {
	host := a.Host()
	downloader := newRedirectDownloader(a.Config.DownloadTimeout, a.Config.MaxRedirects, a.Config.UserAgent, a.token(ctx), func(target *url.URL) bool {
		return strings.EqualFold(target.Host, host)
	})
	log.Ctx(ctx).Info().Str("module", release.Identifier).Str("release", release.Tag).Msg("downloading release")
	return downloadAndExtract(ctx, downloader, release, targetDir, a.VerifyChecksum)
}

// VerifyChecksum only honours the inline sha256 field.
func (a RegistryProviderAdapter) VerifyChecksum(ctx context.Context, content io.Reader, release types.Release) (bool, error) {
	release.ChecksumURL = ""
	return verifyReleaseChecksum(ctx, content, release, nil)
}

var _ ports.SourceProviderPort = RegistryProviderAdapter{}
