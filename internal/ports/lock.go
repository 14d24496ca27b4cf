package ports

import (
	"context"
	"time"

	"webkernel-modules/internal/types"
)

// LockPort hands out named cross-process locks.
type LockPort interface {
	Lock(operation string) LockHandle
	ForceRelease(operation string) error
	CleanStale(ctx context.Context) ([]string, error)
	Inspect(operation string) (*types.LockInfo, error)
}

// LockHandle is one lock for one operation name. Release is idempotent and
// safe to call after a failed Acquire.
type LockHandle interface {
	Operation() string
	Acquire(ctx context.Context, timeout time.Duration) error
	Release() error
}
