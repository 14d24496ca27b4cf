package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog/log"

	"webkernel-modules/internal/core"
	"webkernel-modules/internal/ports"
	"webkernel-modules/internal/shared"
	"webkernel-modules/internal/types"
)

const (
	githubProviderName   = "github"
	defaultGitHubAPIBase = "https://api.github.com"
	githubAcceptHeader   = "application/vnd.github+json"
	githubReleasesLimit  = 100
)

// GitHubProviderAdapter resolves releases from a GitHub compatible REST API.
// Enterprise hosts are addressed through https://<host>/api/v3.
type GitHubProviderAdapter struct {
	Config   HTTPProviderConfig
	Tokens   ports.TokenStorePort
	Prompter ports.PrompterPort
}

func NewGitHubProviderAdapter(cfg HTTPProviderConfig, tokens ports.TokenStorePort, prompter ports.PrompterPort) GitHubProviderAdapter {
	return GitHubProviderAdapter{
		Config:   normalizeHTTPProviderConfig(cfg, defaultGitHubAPIBase),
		Tokens:   tokens,
		Prompter: prompter,
	}
}

type githubRepository struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type githubRelease struct {
	TagName     string        `json:"tag_name"`
	Name        string        `json:"name"`
	PublishedAt string        `json:"published_at"`
	Prerelease  bool          `json:"prerelease"`
	Draft       bool          `json:"draft"`
	ZipballURL  string        `json:"zipball_url"`
	Assets      []githubAsset `json:"assets"`
}

func (a GitHubProviderAdapter) Name() string {
	return githubProviderName
}

func (a GitHubProviderAdapter) Supports(identifier string) bool {
	_, ok := core.ParseGitIdentifier(identifier)
	return ok
}

func (a GitHubProviderAdapter) apiBase(ref core.GitRepoRef) string {
	if ref.IsPublicHost() {
		return a.Config.APIBase
	}
	return "https://" + ref.Host + "/api/v3"
}

// trusted reports whether credentials for ref may be sent to target.
func (a GitHubProviderAdapter) trusted(ref core.GitRepoRef, target *url.URL) bool {
	if api, err := url.Parse(a.apiBase(ref)); err == nil && strings.EqualFold(api.Host, target.Host) {
		return true
	}
	host := strings.ToLower(target.Hostname())
	if ref.IsPublicHost() {
		return host == "github.com" ||
			strings.HasSuffix(host, ".github.com") ||
			strings.HasSuffix(host, ".githubusercontent.com")
	}
	return strings.EqualFold(target.Host, ref.Host)
}

func (a GitHubProviderAdapter) storedToken(ctx context.Context, ref core.GitRepoRef) string {
	if token := types.SessionTokenFrom(ctx); token != "" {
		return token
	}
	if a.Tokens == nil {
		return ""
	}
	token, err := a.Tokens.LookupToken(ref.Owner, ref.Repo)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("repository", ref.FullName()).Msg("stored token could not be read")
		return ""
	}
	return token
}

func (a GitHubProviderAdapter) FetchReleases(ctx context.Context, identifier string, includePrereleases bool) ([]types.Release, error) {
	ref, ok := core.ParseGitIdentifier(identifier)
	if !ok {
		return nil, types.NewModuleError("not a git repository identifier: "+identifier, nil)
	}
	repo, token, err := a.checkRepository(ctx, ref, a.storedToken(ctx, ref))
	if err != nil {
		return nil, err
	}
	var raw []githubRelease
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d", a.apiBase(ref), ref.Owner, ref.Repo, githubReleasesLimit)
	status, err := a.getJSON(ctx, endpoint, token, &raw)
	if err != nil && status != http.StatusNotFound {
		return nil, err
	}
	if len(raw) == 0 {
		log.Ctx(ctx).Info().Str("repository", ref.FullName()).Str("branch", repo.DefaultBranch).Msg("no releases published, falling back to default branch")
		return []types.Release{a.branchRelease(identifier, ref, repo)}, nil
	}
	releases := make([]types.Release, 0, len(raw))
	for _, item := range raw {
		releases = append(releases, a.convertRelease(identifier, item))
	}
	return core.FilterReleases(releases, includePrereleases), nil
}

// checkRepository checks the repository is visible, asking the operator for
// a token when an anonymous request gets a 404.
func (a GitHubProviderAdapter) checkRepository(ctx context.Context, ref core.GitRepoRef, token string) (githubRepository, string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s", a.apiBase(ref), ref.Owner, ref.Repo)
	var repo githubRepository
	status, err := a.getJSON(ctx, endpoint, token, &repo)
	if err == nil {
		return repo, token, nil
	}
	if status != http.StatusNotFound {
		return repo, token, err
	}
	if token != "" {
		return repo, token, repositoryAccessGuidance(ref)
	}
	if a.Prompter == nil {
		return repo, token, types.NewNetworkError(
			fmt.Sprintf("repository %s not found; if it is private, pass a token with --token", ref.FullName()), err)
	}
	confirmed, promptErr := a.Prompter.ConfirmRepository(ctx, ref.Owner, ref.Repo)
	if promptErr != nil {
		return repo, token, types.NewNetworkError("repository confirmation aborted", promptErr)
	}
	if !confirmed {
		return repo, token, types.NewNetworkError("repository "+ref.FullName()+" not found", err)
	}
	entered, scope, promptErr := a.Prompter.RequestToken(ctx, ref.Owner, ref.Repo)
	if promptErr != nil {
		return repo, token, types.NewNetworkError("token prompt aborted", promptErr)
	}
	entered = strings.TrimSpace(entered)
	if entered == "" {
		return repo, token, types.NewNetworkError("repository "+ref.FullName()+" not found and no token was provided", err)
	}
	status, err = a.getJSON(ctx, endpoint, entered, &repo)
	if err != nil {
		if status == http.StatusNotFound {
			return repo, entered, repositoryAccessGuidance(ref)
		}
		return repo, entered, err
	}
	if a.Tokens != nil {
		repoScope := ref.Repo
		if scope == types.TokenScopeOwner {
			repoScope = ""
		}
		if err := a.Tokens.SaveToken(ref.Owner, repoScope, scope, entered); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("token works but could not be saved")
		}
	}
	return repo, entered, nil
}

func repositoryAccessGuidance(ref core.GitRepoRef) error {
	return types.NewNetworkError(fmt.Sprintf(
		"repository %s is not visible with the provided token: use a classic token with the \"repo\" scope, "+
			"or grant the fine-grained token explicit access to %s", ref.FullName(), ref.FullName()), nil)
}

// getJSON performs an API GET and decodes a 2xx body into out. The status is
// returned even on failure so callers can branch on 404.
func (a GitHubProviderAdapter) getJSON(ctx context.Context, endpoint string, token string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, types.NewNetworkError("failed to build request", err)
	}
	req.Header.Set("Accept", githubAcceptHeader)
	req.Header.Set("User-Agent", a.Config.UserAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: a.Config.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return 0, types.NewNetworkError("request to "+shared.RedactURL(endpoint)+" failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		statusErr := shared.HTTPStatusErrorWithBody(resp.StatusCode, endpoint, string(body))
		switch {
		case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
			return resp.StatusCode, types.NewNetworkError("API rate limit exceeded, retry later or authenticate", statusErr)
		case resp.StatusCode == http.StatusUnauthorized:
			return resp.StatusCode, types.NewNetworkError("authentication failed, check the token", statusErr)
		case resp.StatusCode == http.StatusNotFound:
			return resp.StatusCode, types.NewNetworkError("not found", statusErr)
		default:
			return resp.StatusCode, types.NewNetworkError("unexpected API response", statusErr)
		}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(out); err != nil {
		return resp.StatusCode, types.NewNetworkError("failed to decode API response", err)
	}
	return resp.StatusCode, nil
}

func (a GitHubProviderAdapter) convertRelease(identifier string, item githubRelease) types.Release {
	release := types.Release{
		Identifier:  identifier,
		Provider:    githubProviderName,
		Tag:         item.TagName,
		Name:        item.Name,
		PublishedAt: parseReleaseTime(item.PublishedAt),
		Prerelease:  item.Prerelease,
		Draft:       item.Draft,
		DownloadURL: item.ZipballURL,
	}
	if release.Name == "" {
		release.Name = item.TagName
	}
	archive := ""
	for _, asset := range item.Assets {
		if isArchiveAsset(asset.Name) {
			archive = asset.Name
			release.DownloadURL = asset.BrowserDownloadURL
			break
		}
	}
	if archive == "" {
		return release
	}
	for _, asset := range item.Assets {
		if asset.Name == archive+".sha256" {
			release.ChecksumURL = asset.BrowserDownloadURL
			return release
		}
	}
	for _, asset := range item.Assets {
		if strings.HasSuffix(asset.Name, ".sha256") {
			release.ChecksumURL = asset.BrowserDownloadURL
			return release
		}
	}
	return release
}

func isArchiveAsset(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".zip") || strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz")
}

func (a GitHubProviderAdapter) branchRelease(identifier string, ref core.GitRepoRef, repo githubRepository) types.Release {
	branch := repo.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	return types.Release{
		Identifier:       identifier,
		Provider:         githubProviderName,
		Tag:              branch,
		Name:             "branch " + branch,
		DownloadURL:      fmt.Sprintf("%s/repos/%s/%s/zipball/%s", a.apiBase(ref), ref.Owner, ref.Repo, url.PathEscape(branch)),
		IsBranchFallback: true,
	}
}

func (a GitHubProviderAdapter) DownloadRelease(ctx context.Context, release types.Release, targetDir string) error {
	ref, ok := core.ParseGitIdentifier(release.Identifier)
	if !ok {
		return types.NewModuleError("release does not belong to a git repository: "+release.Identifier, nil)
	}
	token := a.storedToken(ctx, ref)
	downloader := newRedirectDownloader(a.Config.DownloadTimeout, a.Config.MaxRedirects, a.Config.UserAgent, token, func(target *url.URL) bool {
		return a.trusted(ref, target)
	})
	log.Ctx(ctx).Info().
		Str("repository", ref.FullName()).
		Str("release", release.Tag).
		Str("asset", path.Base(shared.RedactURL(release.DownloadURL))).
		Msg("downloading release")
	return downloadAndExtract(ctx, downloader, release, targetDir, a.VerifyChecksum)
}

func (a GitHubProviderAdapter) VerifyChecksum(ctx context.Context, content io.Reader, release types.Release) (bool, error) {
	fetch := func(ctx context.Context, rawURL string) (string, error) {
		ref, _ := core.ParseGitIdentifier(release.Identifier)
		downloader := newRedirectDownloader(a.Config.Timeout, a.Config.MaxRedirects, a.Config.UserAgent, a.storedToken(ctx, ref), func(target *url.URL) bool {
			return a.trusted(ref, target)
		})
		return downloader.fetchText(ctx, rawURL)
	}
	return verifyReleaseChecksum(ctx, content, release, fetch)
}

var _ ports.SourceProviderPort = GitHubProviderAdapter{}
