package app

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"webkernel-modules/internal/core"
	"webkernel-modules/internal/types"
)

func (s Service) ListBackups(ctx context.Context, label string) ([]types.BackupInfo, error) {
	return s.Backups.ListBackups(ctx, label)
}

// RestoreBackup puts backupDir back at target, a path relative to the app
// root. Restores of the same target are serialized.
func (s Service) RestoreBackup(ctx context.Context, backupDir string, target string) error {
	dest, err := core.ResolveInstallTarget(s.Settings.AppRoot, target)
	if err != nil {
		return err
	}
	backupDir, err = filepath.Abs(backupDir)
	if err != nil {
		return types.NewModuleError("invalid backup path", err)
	}
	release, err := s.acquire(ctx, restoreLockPrefix+filepath.ToSlash(filepath.Clean(target)))
	defer release()
	if err != nil {
		return err
	}
	return s.Backups.RestoreBackup(ctx, backupDir, dest)
}

func (s Service) CleanStaleLocks(ctx context.Context) ([]string, error) {
	removed, err := s.Locks.CleanStale(ctx)
	if err != nil {
		return removed, err
	}
	log.Ctx(ctx).Info().Int("removed", len(removed)).Msg("stale locks cleaned")
	return removed, nil
}

func (s Service) ForceReleaseLock(ctx context.Context, operation string) error {
	operation = strings.TrimSpace(operation)
	if err := s.Locks.ForceRelease(operation); err != nil {
		return err
	}
	log.Ctx(ctx).Warn().Str("lock", operation).Msg("lock force released")
	return nil
}

// InspectLock returns the holder of operation's lock, or nil when it is free.
func (s Service) InspectLock(operation string) (*types.LockInfo, error) {
	return s.Locks.Inspect(strings.TrimSpace(operation))
}

func (s Service) SaveToken(ctx context.Context, owner string, repo string, scope types.TokenScope, token string) error {
	if err := s.Tokens.SaveToken(owner, repo, scope, token); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("owner", owner).Str("repo", repo).Str("scope", string(scope)).Msg("token saved")
	return nil
}

func (s Service) ForgetToken(ctx context.Context, owner string, repo string) error {
	if err := s.Tokens.ForgetToken(owner, repo); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("owner", owner).Str("repo", repo).Msg("token forgotten")
	return nil
}

func (s Service) GetSetting(key string) (string, bool, error) {
	return s.Config.Get(key)
}

func (s Service) SetSetting(ctx context.Context, key string, value string) error {
	if err := s.Config.Set(key, value); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("key", key).Msg("setting saved")
	return nil
}

// StoredSettings returns every setting saved with SetSetting.
func (s Service) StoredSettings() (map[string]string, error) {
	return s.Config.Settings()
}

// PruneBackups keeps the newest keep backups per label. A negative keep
// falls back to the configured backup_keep.
func (s Service) PruneBackups(ctx context.Context, label string, keep int) ([]string, error) {
	if keep < 0 {
		keep = s.Settings.BackupKeep
	}
	removed, err := s.Backups.CleanOldBackups(ctx, label, keep)
	if err != nil {
		return removed, err
	}
	log.Ctx(ctx).Info().Str("label", label).Int("keep", keep).Int("removed", len(removed)).Msg("backups pruned")
	return removed, nil
}

// ValidateModule checks an unpacked module directory without installing it.
func (s Service) ValidateModule(dir string) types.ValidationResult {
	return s.Validator.Validate(dir)
}

// InspectModule parses the declaration found in dir.
func (s Service) InspectModule(dir string) (*types.ModuleDeclaration, error) {
	path, err := s.Metadata.FindDeclarationFile(dir)
	if err != nil {
		return nil, err
	}
	return s.Metadata.Parse(path)
}
