package core

import (
	"fmt"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
	debversion "github.com/knqyf263/go-deb-version"
	"golang.org/x/mod/semver"

	"webkernel-modules/internal/types"
)

// versionCache memoizes parsed versions so repeated comparisons of release
// tags do not re-parse them. Schemes are tried in order: semantic versions,
// PEP 440 and finally Debian version strings, which accept almost anything.
type versionCache struct {
	pep map[string]pep440.Version
	deb map[string]debversion.Version
}

func newVersionCache() *versionCache {
	return &versionCache{
		pep: map[string]pep440.Version{},
		deb: map[string]debversion.Version{},
	}
}

// canonicalSemver returns value with a "v" prefix when it is a valid
// semantic version, or "" otherwise.
func canonicalSemver(value string) string {
	candidate := "v" + trimVersionPrefix(value)
	if !semver.IsValid(candidate) {
		return ""
	}
	return candidate
}

func (c *versionCache) pepVersion(value string) (pep440.Version, error) {
	if parsed, ok := c.pep[value]; ok {
		return parsed, nil
	}
	parsed, err := pep440.Parse(trimVersionPrefix(value))
	if err != nil {
		return pep440.Version{}, err
	}
	c.pep[value] = parsed
	return parsed, nil
}

func (c *versionCache) debVersion(value string) (debversion.Version, error) {
	if parsed, ok := c.deb[value]; ok {
		return parsed, nil
	}
	parsed, err := debversion.NewVersion(trimVersionPrefix(value))
	if err != nil {
		return debversion.Version{}, err
	}
	c.deb[value] = parsed
	return parsed, nil
}

func (c *versionCache) compare(a string, b string) (int, error) {
	if sa, sb := canonicalSemver(a), canonicalSemver(b); sa != "" && sb != "" {
		return semver.Compare(sa, sb), nil
	}
	if pa, err := c.pepVersion(a); err == nil {
		if pb, err := c.pepVersion(b); err == nil {
			return pa.Compare(pb), nil
		}
	}
	da, errA := c.debVersion(a)
	db, errB := c.debVersion(b)
	if errA != nil || errB != nil {
		return 0, types.NewModuleError(fmt.Sprintf("cannot compare versions %q and %q", a, b), nil)
	}
	return da.Compare(db), nil
}

// CompareVersions returns -1, 0 or 1 comparing two release versions. A
// leading "v" is ignored.
func CompareVersions(a string, b string) (int, error) {
	return newVersionCache().compare(strings.TrimSpace(a), strings.TrimSpace(b))
}

func trimVersionPrefix(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) > 1 && (trimmed[0] == 'v' || trimmed[0] == 'V') && trimmed[1] >= '0' && trimmed[1] <= '9' {
		return trimmed[1:]
	}
	return trimmed
}
