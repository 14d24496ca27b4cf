package types

import "time"

type BackupInfo struct {
	Label     string    `json:"label"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
	// Dir and ModTime are filled in when listing and never persisted.
	Dir     string    `json:"-"`
	ModTime time.Time `json:"-"`
}
