package types

import "time"

// Release is a fetchable, versioned artifact resolved by a source provider.
// Providers return releases newest first.
type Release struct {
	Identifier       string
	Provider         string
	Tag              string
	Name             string
	PublishedAt      time.Time
	Prerelease       bool
	Draft            bool
	DownloadURL      string
	Checksum         string
	ChecksumURL      string
	IsBranchFallback bool
}

// HasChecksum reports whether the release declares an inline checksum or a
// checksum asset.
func (r Release) HasChecksum() bool {
	return r.Checksum != "" || r.ChecksumURL != ""
}
