package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"webkernel-modules/internal/adapters"
	"webkernel-modules/internal/core"
	"webkernel-modules/internal/types"
)

const (
	kernelStagingDir   = ".updating"
	kernelVersionFile  = "VERSION"
	kernelBackupLabel  = "kernel"
	stagingNewDir      = "new"
	stagingPreserveDir = "preserved"
)

// UpdateKernel replaces the kernel directory with a release of the kernel
// source, carrying the preserved subdirectories over.
func (s Service) UpdateKernel(ctx context.Context, req UpdateKernelRequest) KernelUpdateResult {
	result := KernelUpdateResult{DryRun: req.DryRun}
	logger := log.Ctx(ctx).With().Str("identifier", s.Settings.KernelSource).Logger()
	ctx = logger.WithContext(withToken(ctx, req.Token))

	if err := s.updateKernel(ctx, req, &result); err != nil {
		result.Error, result.ErrorKind = describeFailure(err)
		logger.Error().Str("kind", string(result.ErrorKind)).Msg(result.Error)
		return result
	}
	result.Success = true
	return result
}

func (s Service) updateKernel(ctx context.Context, req UpdateKernelRequest, result *KernelUpdateResult) error {
	kernelDir, err := core.ResolveInstallTarget(s.Settings.AppRoot, s.Settings.KernelDir)
	if err != nil {
		return err
	}
	result.KernelDir = kernelDir
	provider, err := s.providerFor(s.Settings.KernelSource)
	if err != nil {
		return err
	}
	result.Provider = provider.Name()
	if req.DryRun {
		result.PreviousVersion = s.currentKernelVersion(ctx, kernelDir)
		log.Ctx(ctx).Info().Str("provider", provider.Name()).Str("current", result.PreviousVersion).Msg("dry run, nothing changed")
		return nil
	}

	release, err := s.acquire(ctx, kernelLockName)
	defer release()
	if err != nil {
		return err
	}

	staging := filepath.Join(s.Settings.AppRoot, kernelStagingDir)
	if err := os.RemoveAll(staging); err != nil {
		return types.NewModuleError("failed to clear leftover "+staging, err)
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return types.NewModuleError("failed to create "+staging, err)
	}
	defer removeStaging(ctx, staging)

	current := s.currentKernelVersion(ctx, kernelDir)
	result.PreviousVersion = current
	selected, err := s.resolveRelease(ctx, provider, s.Settings.KernelSource, req.Version, req.IncludePrereleases)
	if err != nil {
		return err
	}
	result.Version = selected.Tag

	if current != "" && !req.Force {
		skip, err := kernelVersionGuard(ctx, current, selected.Tag)
		if err != nil {
			return err
		}
		if skip {
			result.Skipped = true
			log.Ctx(ctx).Info().Str("version", current).Msg("kernel already at requested version")
			return nil
		}
	}

	preserved, err := s.preserveKernelPaths(kernelDir, filepath.Join(staging, stagingPreserveDir))
	if err != nil {
		return err
	}
	result.Preserved = preserved

	fresh := filepath.Join(staging, stagingNewDir)
	if err := provider.DownloadRelease(ctx, selected, fresh); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("staging", fresh).Msg("release downloaded")

	if req.RunHooks {
		if err := s.Hooks.Execute(ctx, filepath.Join(fresh, types.HookTypeUpdate.HookFile()), types.HookTypeUpdate); err != nil {
			return err
		}
	}
	if req.Validate {
		if err := s.validateKernelTree(fresh); err != nil {
			return err
		}
		log.Ctx(ctx).Info().Msg("kernel validated")
	}
	if err := mergePreserved(filepath.Join(staging, stagingPreserveDir), fresh, preserved); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(fresh, kernelVersionFile), []byte(selected.Tag+"\n"), 0644); err != nil {
		return types.NewModuleError("failed to write kernel version file", err)
	}

	_, statErr := os.Lstat(kernelDir)
	existed := statErr == nil
	if req.CreateBackup && existed {
		backup, err := s.Backups.CreateBackup(ctx, kernelDir, kernelBackupLabel)
		if err != nil {
			return err
		}
		result.Backup = backup
		log.Ctx(ctx).Info().Str("backup", backup).Msg("backup created")
	}

	if err := adapters.SwapDirectory(fresh, kernelDir); err != nil {
		return types.NewModuleError("failed to move kernel into "+kernelDir, err)
	}
	log.Ctx(ctx).Info().Str("target", kernelDir).Msg("kernel swapped into place")

	if req.RunHooks {
		if err := s.Hooks.Execute(ctx, filepath.Join(kernelDir, types.HookTypePostUpdate.HookFile()), types.HookTypePostUpdate); err != nil {
			s.rollback(ctx, kernelDir, result.Backup, existed)
			return err
		}
	}

	result.DependenciesRegenerated, result.Warnings = s.regenerateDependencies(ctx, result.Warnings)
	if result.Backup != "" && s.Settings.BackupKeep > 0 {
		removed, err := s.Backups.CleanOldBackups(ctx, kernelBackupLabel, s.Settings.BackupKeep)
		if err != nil {
			result.Warnings = append(result.Warnings, "backup pruning failed: "+err.Error())
		} else {
			result.PrunedBackups = removed
		}
	}
	if s.Ledger != nil {
		entry := types.LedgerEntry{
			Identifier:  types.LedgerKernelKey,
			Provider:    provider.Name(),
			Version:     selected.Tag,
			InstallPath: filepath.ToSlash(s.Settings.KernelDir),
			InstalledAt: timeNow(s.Clock),
			Backup:      result.Backup,
			Branch:      selected.IsBranchFallback,
		}
		if err := s.Ledger.RecordKernel(entry); err != nil {
			result.Warnings = append(result.Warnings, "install ledger not updated: "+err.Error())
		}
	}
	log.Ctx(ctx).Info().Str("from", current).Str("to", selected.Tag).Msg("kernel updated")
	return nil
}

// kernelVersionGuard reports whether the update is a no-op and refuses
// downgrades. Tags that do not compare as versions are let through.
func kernelVersionGuard(ctx context.Context, current string, target string) (bool, error) {
	if core.TagsMatch(current, target) {
		return true, nil
	}
	cmp, err := core.CompareVersions(target, current)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("current", current).Str("target", target).Msg("kernel versions not comparable, updating anyway")
		return false, nil
	}
	if cmp == 0 {
		return true, nil
	}
	if cmp < 0 {
		return false, types.NewModuleError(fmt.Sprintf("refusing to downgrade kernel from %s to %s without force", current, target), nil)
	}
	return false, nil
}

// currentKernelVersion prefers the ledger and falls back to the VERSION
// file shipped in the kernel directory.
func (s Service) currentKernelVersion(ctx context.Context, kernelDir string) string {
	if s.Ledger != nil {
		ledger, err := s.Ledger.Load()
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("install ledger unreadable")
		} else if ledger.Kernel != nil && ledger.Kernel.Version != "" {
			return ledger.Kernel.Version
		}
	}
	data, err := os.ReadFile(filepath.Join(kernelDir, kernelVersionFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// preserveKernelPaths copies the configured subdirectories of the live
// kernel aside and returns those that existed.
func (s Service) preserveKernelPaths(kernelDir string, dest string) ([]string, error) {
	var preserved []string
	for _, rel := range s.Settings.KernelPreserve {
		rel = filepath.Clean(filepath.FromSlash(strings.TrimSpace(rel)))
		if rel == "." || !filepath.IsLocal(rel) {
			return nil, types.NewModuleError("preserved kernel path must be relative: "+rel, nil)
		}
		src := filepath.Join(kernelDir, rel)
		if _, err := os.Lstat(src); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, types.NewModuleError("cannot read preserved path "+src, err)
		}
		if err := os.MkdirAll(filepath.Dir(filepath.Join(dest, rel)), 0755); err != nil {
			return nil, types.NewModuleError("failed to prepare preserve area", err)
		}
		if err := adapters.CopyTree(src, filepath.Join(dest, rel)); err != nil {
			return nil, types.NewModuleError("failed to preserve "+rel, err)
		}
		preserved = append(preserved, filepath.ToSlash(rel))
	}
	return preserved, nil
}

// mergePreserved moves preserved paths into the new tree, replacing what
// the release ships at the same location.
func mergePreserved(from string, into string, preserved []string) error {
	for _, rel := range preserved {
		src := filepath.Join(from, filepath.FromSlash(rel))
		dst := filepath.Join(into, filepath.FromSlash(rel))
		if err := os.RemoveAll(dst); err != nil {
			return types.NewModuleError("failed to clear "+rel+" in new kernel", err)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return types.NewModuleError("failed to create parent of "+rel, err)
		}
		if err := os.Rename(src, dst); err != nil {
			return types.NewModuleError("failed to restore preserved "+rel, err)
		}
	}
	return nil
}

func (s Service) validateKernelTree(dir string) error {
	var missing []string
	for _, rel := range s.Settings.KernelRequiredFiles {
		rel = strings.TrimSpace(rel)
		if rel == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			missing = append(missing, rel)
		}
	}
	if len(missing) > 0 {
		return types.NewValidationError("kernel release is missing required files: "+strings.Join(missing, ", "), nil)
	}
	return nil
}
