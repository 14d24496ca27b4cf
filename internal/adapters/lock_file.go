package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/process"

	"webkernel-modules/internal/ports"
	"webkernel-modules/internal/types"
)

const (
	defaultLockTimeout      = 5 * time.Minute
	defaultLockStaleAfter   = time.Hour
	defaultLockPollInterval = 100 * time.Millisecond
	lockFileSuffix          = ".lock"
)

// errLockBusy is returned by the platform lock primitive when another
// descriptor holds the lock.
var errLockBusy = errors.New("lock is held by another process")

// FileLockAdapter issues cross-process locks backed by an OS advisory lock
// on one file per operation name.
type FileLockAdapter struct {
	Dir          string
	StaleAfter   time.Duration
	PollInterval time.Duration
	Clock        func() time.Time
}

func NewFileLockAdapter(dir string, staleAfter time.Duration) FileLockAdapter {
	if staleAfter <= 0 {
		staleAfter = defaultLockStaleAfter
	}
	return FileLockAdapter{
		Dir:          dir,
		StaleAfter:   staleAfter,
		PollInterval: defaultLockPollInterval,
		Clock:        time.Now,
	}
}

// LockID is the stable identity of an operation name.
func LockID(operation string) string {
	sum := sha256.Sum256([]byte(operation))
	return hex.EncodeToString(sum[:])[:16]
}

func (a FileLockAdapter) lockPath(operation string) string {
	return filepath.Join(a.Dir, LockID(operation)+lockFileSuffix)
}

func (a FileLockAdapter) now() time.Time {
	if a.Clock == nil {
		return time.Now().UTC()
	}
	return a.Clock().UTC()
}

func (a FileLockAdapter) Lock(operation string) ports.LockHandle {
	return &FileLock{adapter: a, operation: operation, path: a.lockPath(operation)}
}

func (a FileLockAdapter) ForceRelease(operation string) error {
	if strings.TrimSpace(operation) == "" {
		return types.NewLockError("operation name is empty", nil)
	}
	if err := os.Remove(a.lockPath(operation)); err != nil && !os.IsNotExist(err) {
		return types.NewLockError("failed to remove lock file", err)
	}
	return nil
}

func (a FileLockAdapter) Inspect(operation string) (*types.LockInfo, error) {
	content, err := os.ReadFile(a.lockPath(operation))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.NewLockError("failed to read lock file", err)
	}
	var info types.LockInfo
	if err := json.Unmarshal(content, &info); err != nil {
		return nil, types.NewLockError("lock file payload is not valid json", err)
	}
	return &info, nil
}

// CleanStale removes lock files older than StaleAfter whose owner is
// verifiably gone. Locks recorded by another host are kept since their pid
// cannot be checked from here.
func (a FileLockAdapter) CleanStale(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(a.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.NewLockError("failed to read lock directory", err)
	}
	hostname, _ := os.Hostname()
	now := a.now()
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), lockFileSuffix) {
			continue
		}
		path := filepath.Join(a.Dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < a.StaleAfter {
			continue
		}
		if !a.ownerGone(ctx, path, hostname) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, types.NewLockError("failed to remove stale lock", err)
		}
		log.Ctx(ctx).Debug().Str("lock", path).Msg("removed stale lock")
		removed = append(removed, path)
	}
	return removed, nil
}

func (a FileLockAdapter) ownerGone(ctx context.Context, path string, hostname string) bool {
	content, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var info types.LockInfo
	if err := json.Unmarshal(content, &info); err != nil {
		return true
	}
	if info.Hostname != "" && hostname != "" && info.Hostname != hostname {
		return false
	}
	if info.PID <= 0 {
		return true
	}
	running, err := process.PidExistsWithContext(ctx, int32(info.PID))
	if err != nil {
		return false
	}
	return !running
}

// FileLock is a single named lock. The zero state holds nothing.
type FileLock struct {
	mu        sync.Mutex
	adapter   FileLockAdapter
	operation string
	path      string
	file      *os.File
}

func (l *FileLock) Operation() string {
	return l.operation
}

func (l *FileLock) Acquire(ctx context.Context, timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return types.NewLockError(fmt.Sprintf("lock %q is already held by this handle", l.operation), nil)
	}
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	if err := os.MkdirAll(l.adapter.Dir, 0755); err != nil {
		return types.NewLockError("failed to create lock directory", err)
	}
	if _, err := l.adapter.CleanStale(ctx); err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("stale lock cleanup failed")
	}
	poll := l.adapter.PollInterval
	if poll <= 0 {
		poll = defaultLockPollInterval
	}
	deadline := time.Now().Add(timeout)
	for {
		file, err := tryLockFile(l.path)
		if err != nil {
			return types.NewLockError("failed to lock "+l.path, err)
		}
		if file != nil {
			l.file = file
			if err := l.writeInfo(); err != nil {
				_ = l.releaseLocked()
				return types.NewLockError("failed to write lock info", err)
			}
			log.Ctx(ctx).Debug().Str("operation", l.operation).Str("lock", l.path).Msg("lock acquired")
			return nil
		}
		if !time.Now().Before(deadline) {
			return types.NewLockError(fmt.Sprintf("timed out after %s waiting for lock %q", timeout, l.operation), nil)
		}
		select {
		case <-ctx.Done():
			return types.NewLockError(fmt.Sprintf("gave up waiting for lock %q", l.operation), ctx.Err())
		case <-time.After(poll):
		}
	}
}

func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.releaseLocked()
}

func (l *FileLock) releaseLocked() error {
	file := l.file
	l.file = nil
	if err := closeLockFile(file, l.path); err != nil {
		return types.NewLockError("failed to release lock "+l.path, err)
	}
	return nil
}

func (l *FileLock) writeInfo() error {
	hostname, _ := os.Hostname()
	payload, err := json.Marshal(types.LockInfo{
		Operation: l.operation,
		PID:       os.Getpid(),
		Timestamp: l.adapter.now(),
		Hostname:  hostname,
	})
	if err != nil {
		return err
	}
	if err := l.file.Truncate(0); err != nil {
		return err
	}
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := l.file.Write(payload); err != nil {
		return err
	}
	return l.file.Sync()
}

// tryLockFile returns a locked handle, or nil when the lock is busy. A lock
// won on a file that was unlinked by its previous holder in the meantime is
// dropped so the caller retries on the current path.
func tryLockFile(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if err := lockFile(file); err != nil {
		_ = file.Close()
		if errors.Is(err, errLockBusy) {
			return nil, nil
		}
		return nil, err
	}
	held, err := file.Stat()
	if err != nil {
		_ = unlockFile(file)
		_ = file.Close()
		return nil, err
	}
	current, err := os.Stat(path)
	if err != nil || !os.SameFile(held, current) {
		_ = unlockFile(file)
		_ = file.Close()
		return nil, nil
	}
	return file, nil
}

var _ ports.LockPort = FileLockAdapter{}
var _ ports.LockHandle = (*FileLock)(nil)
