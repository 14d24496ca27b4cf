package adapters

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"webkernel-modules/internal/ports"
	"webkernel-modules/internal/types"
)

const (
	backupStampLayout   = "20060102-150405.000000000"
	backupSidecarSuffix = ".json"
)

// BackupStoreAdapter keeps full directory snapshots under Root, each with a
// JSON sidecar next to it.
type BackupStoreAdapter struct {
	Root  string
	Clock func() time.Time
}

func NewBackupStoreAdapter(root string) BackupStoreAdapter {
	return BackupStoreAdapter{Root: root, Clock: time.Now}
}

func (a BackupStoreAdapter) now() time.Time {
	if a.Clock == nil {
		return time.Now().UTC()
	}
	return a.Clock().UTC()
}

func (a BackupStoreAdapter) CreateBackup(ctx context.Context, targetDir string, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(a.Root) == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("backup root is empty")
	}
	label = sanitizeBackupLabel(label)
	if label == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("backup label is empty")
	}
	info, err := os.Stat(targetDir)
	if err != nil || !info.IsDir() {
		return "", types.NewModuleError("backup source does not exist: "+targetDir, err)
	}
	if err := os.MkdirAll(a.Root, 0755); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create backup root").
			WithCause(err)
	}
	createdAt := a.now()
	backupDir := filepath.Join(a.Root, label+"_"+createdAt.Format(backupStampLayout))
	if err := CopyTree(targetDir, backupDir); err != nil {
		_ = os.RemoveAll(backupDir)
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to copy " + targetDir + " into backup").
			WithCause(err)
	}
	size, err := DirSize(backupDir)
	if err != nil {
		_ = os.RemoveAll(backupDir)
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to measure backup size").
			WithCause(err)
	}
	sidecar, err := json.MarshalIndent(types.BackupInfo{
		Label:     label,
		Source:    targetDir,
		CreatedAt: createdAt,
		SizeBytes: size,
	}, "", "  ")
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode backup sidecar").
			WithCause(err)
	}
	if err := os.WriteFile(backupDir+backupSidecarSuffix, sidecar, 0644); err != nil {
		_ = os.RemoveAll(backupDir)
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write backup sidecar").
			WithCause(err)
	}
	log.Ctx(ctx).Debug().Str("backup", backupDir).Int64("size_bytes", size).Msg("backup created")
	return backupDir, nil
}

func (a BackupStoreAdapter) ListBackups(ctx context.Context, label string) ([]types.BackupInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(a.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.BackupInfo{}, nil
		}
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read backup root").
			WithCause(err)
	}
	label = sanitizeBackupLabel(label)
	backups := []types.BackupInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(a.Root, entry.Name())
		backup, err := readBackupSidecar(dir)
		if err != nil {
			log.Ctx(ctx).Debug().Err(err).Str("dir", dir).Msg("skipping directory without readable sidecar")
			continue
		}
		if label != "" && backup.Label != label {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backup.Dir = dir
		backup.ModTime = info.ModTime().UTC()
		backups = append(backups, backup)
	}
	sortBackupsNewestFirst(backups)
	return backups, nil
}

func (a BackupStoreAdapter) RestoreBackup(ctx context.Context, backupDir string, targetDir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(backupDir)
	if err != nil || !info.IsDir() {
		return types.NewModuleError("backup does not exist: "+backupDir, err)
	}
	if err := os.MkdirAll(filepath.Dir(targetDir), 0755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create restore parent").
			WithCause(err)
	}
	staged := targetDir + ".restoring-" + uuid.NewString()
	if err := CopyTree(backupDir, staged); err != nil {
		_ = os.RemoveAll(staged)
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to stage backup copy").
			WithCause(err)
	}
	if err := os.RemoveAll(targetDir); err != nil {
		_ = os.RemoveAll(staged)
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to remove " + targetDir + " before restore").
			WithCause(err)
	}
	if err := os.Rename(staged, targetDir); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to move restored tree into place, copy left at " + staged).
			WithCause(err)
	}
	log.Ctx(ctx).Info().Str("backup", backupDir).Str("target", targetDir).Msg("backup restored")
	return nil
}

// CleanOldBackups keeps the newest keep backups per label and deletes the
// rest. An empty label applies the rule to every label.
func (a BackupStoreAdapter) CleanOldBackups(ctx context.Context, label string, keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}
	backups, err := a.ListBackups(ctx, label)
	if err != nil {
		return nil, err
	}
	seen := map[string]int{}
	var removed []string
	for _, backup := range backups {
		seen[backup.Label]++
		if seen[backup.Label] <= keep {
			continue
		}
		if err := os.RemoveAll(backup.Dir); err != nil {
			return removed, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to delete backup " + backup.Dir).
				WithCause(err)
		}
		_ = os.Remove(backup.Dir + backupSidecarSuffix)
		removed = append(removed, backup.Dir)
	}
	return removed, nil
}

func readBackupSidecar(dir string) (types.BackupInfo, error) {
	content, err := os.ReadFile(dir + backupSidecarSuffix)
	if err != nil {
		return types.BackupInfo{}, err
	}
	var backup types.BackupInfo
	if err := json.Unmarshal(content, &backup); err != nil {
		return types.BackupInfo{}, err
	}
	return backup, nil
}

func sortBackupsNewestFirst(backups []types.BackupInfo) {
	sort.SliceStable(backups, func(i, j int) bool {
		if !backups[i].ModTime.Equal(backups[j].ModTime) {
			return backups[i].ModTime.After(backups[j].ModTime)
		}
		return backups[i].Dir > backups[j].Dir
	})
}

func sanitizeBackupLabel(label string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", " ", "-")
	return strings.Trim(replacer.Replace(strings.TrimSpace(label)), "-.")
}

var _ ports.BackupPort = BackupStoreAdapter{}
