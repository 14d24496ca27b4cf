package types

import "time"

// LockInfo is the diagnostic payload written into a held lock file.
type LockInfo struct {
	Operation string    `json:"operation"`
	PID       int       `json:"pid"`
	Timestamp time.Time `json:"timestamp"`
	Hostname  string    `json:"hostname"`
}
