package core

import (
	"fmt"
	"strings"

	"webkernel-modules/internal/types"
)

const maxListedTags = 10

// FilterReleases drops drafts always and prereleases unless requested,
// keeping provider order.
func FilterReleases(releases []types.Release, includePrereleases bool) []types.Release {
	out := make([]types.Release, 0, len(releases))
	for _, release := range releases {
		if release.Draft {
			continue
		}
		if release.Prerelease && !includePrereleases {
			continue
		}
		out = append(out, release)
	}
	return out
}

// SelectRelease picks the release whose tag equals version. An empty version
// selects the first, newest, release.
func SelectRelease(releases []types.Release, version string) (types.Release, error) {
	candidates := FilterReleases(releases, true)
	if len(candidates) == 0 {
		return types.Release{}, types.NewModuleNotFoundError("no releases available", nil)
	}
	version = strings.TrimSpace(version)
	if version == "" {
		return candidates[0], nil
	}
	for _, release := range candidates {
		if release.Tag == version {
			return release, nil
		}
	}
	for _, release := range candidates {
		if TagsMatch(release.Tag, version) {
			return release, nil
		}
	}
	return types.Release{}, types.NewModuleNotFoundError(
		fmt.Sprintf("version %s not found (available: %s)", version, availableTags(candidates)), nil)
}

// TagsMatch compares two tags exactly, tolerating a "v" prefix on either side.
func TagsMatch(a string, b string) bool {
	return trimVersionPrefix(a) == trimVersionPrefix(b)
}

func availableTags(releases []types.Release) string {
	tags := make([]string, 0, maxListedTags)
	for i, release := range releases {
		if i == maxListedTags {
			tags = append(tags, "...")
			break
		}
		tags = append(tags, release.Tag)
	}
	return strings.Join(tags, ", ")
}
