package core

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	registryScheme = "wk://"
	defaultGitHost = "github.com"
)

var (
	repoSegmentPattern    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	registryModulePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*(/[a-z0-9][a-z0-9._-]*)?$`)
)

// GitRepoRef names a repository on a Git host.
type GitRepoRef struct {
	Host  string
	Owner string
	Repo  string
}

func (r GitRepoRef) FullName() string {
	return r.Owner + "/" + r.Repo
}

// IsPublicHost reports whether the reference points at github.com rather
// than an enterprise installation.
func (r GitRepoRef) IsPublicHost() bool {
	return r.Host == defaultGitHost
}

// ParseGitIdentifier accepts owner/repo, https://github.com/owner/repo(.git)
// and https://<host>/owner/repo.
func ParseGitIdentifier(identifier string) (GitRepoRef, bool) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" || strings.HasPrefix(trimmed, registryScheme) {
		return GitRepoRef{}, false
	}
	host := defaultGitHost
	path := trimmed
	if strings.Contains(trimmed, "://") {
		parsed, err := url.Parse(trimmed)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "https" && parsed.Scheme != "http") {
			return GitRepoRef{}, false
		}
		host = strings.ToLower(parsed.Host)
		path = parsed.Path
	}
	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		return GitRepoRef{}, false
	}
	if !repoSegmentPattern.MatchString(parts[0]) || !repoSegmentPattern.MatchString(parts[1]) {
		return GitRepoRef{}, false
	}
	return GitRepoRef{Host: host, Owner: parts[0], Repo: parts[1]}, true
}

// ParseRegistryIdentifier accepts wk://name and <registryHost>/name and
// returns the module name.
func ParseRegistryIdentifier(identifier string, registryHost string) (string, bool) {
	trimmed := strings.TrimSpace(identifier)
	var name string
	switch {
	case strings.HasPrefix(trimmed, registryScheme):
		name = strings.TrimPrefix(trimmed, registryScheme)
	case registryHost != "" && strings.HasPrefix(strings.ToLower(trimmed), strings.ToLower(registryHost)+"/"):
		name = trimmed[len(registryHost)+1:]
	default:
		return "", false
	}
	name = strings.Trim(name, "/")
	if !registryModulePattern.MatchString(name) {
		return "", false
	}
	return name, true
}
