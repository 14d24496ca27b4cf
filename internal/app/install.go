package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"webkernel-modules/internal/adapters"
	"webkernel-modules/internal/core"
	"webkernel-modules/internal/types"
)

// InstallModule downloads, checks and installs one module release. Handled
// failures are reported in the result, never as a panic or error value.
func (s Service) InstallModule(ctx context.Context, req InstallRequest) InstallResult {
	req.Identifier = strings.TrimSpace(req.Identifier)
	result := InstallResult{Identifier: req.Identifier, DryRun: req.DryRun}
	logger := log.Ctx(ctx).With().Str("identifier", req.Identifier).Logger()
	ctx = logger.WithContext(withToken(ctx, req.Token))

	if err := s.installModule(ctx, req, &result); err != nil {
		result.Error, result.ErrorKind = describeFailure(err)
		logger.Error().Str("kind", string(result.ErrorKind)).Msg(result.Error)
		return result
	}
	result.Success = true
	return result
}

func (s Service) installModule(ctx context.Context, req InstallRequest, result *InstallResult) error {
	if req.Identifier == "" {
		return types.NewModuleError("module identifier is required", nil)
	}
	assert.NotEmpty(ctx, s.Settings.AppRoot, "app root must be set")
	provider, err := s.providerFor(req.Identifier)
	if err != nil {
		return err
	}
	result.Provider = provider.Name()
	if req.DryRun {
		log.Ctx(ctx).Info().Str("provider", provider.Name()).Msg("dry run, nothing changed")
		return nil
	}

	release, err := s.acquire(ctx, installLockName(provider.Name(), req.Identifier))
	defer release()
	if err != nil {
		return err
	}

	selected, err := s.resolveRelease(ctx, provider, req.Identifier, req.Version, req.IncludePrereleases)
	if err != nil {
		return err
	}
	result.Version = selected.Tag

	staging := filepath.Join(s.Settings.AppRoot, ".installing-"+uuid.NewString())
	defer removeStaging(ctx, staging)
	if err := provider.DownloadRelease(ctx, selected, staging); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("staging", staging).Msg("release downloaded")

	if req.RunHooks {
		if err := s.Hooks.Execute(ctx, filepath.Join(staging, types.HookTypeInstall.HookFile()), types.HookTypeInstall); err != nil {
			return err
		}
		log.Ctx(ctx).Info().Str("hook", string(types.HookTypeInstall)).Msg("hook finished")
	}

	if req.Validate {
		validation := s.Validator.Validate(staging)
		result.Warnings = append(result.Warnings, validation.Warnings...)
		if !validation.IsValid {
			return types.NewValidationError("module validation failed: "+strings.Join(validation.Errors, "; "), nil)
		}
		log.Ctx(ctx).Info().Int("warnings", len(validation.Warnings)).Msg("module validated")
	}

	meta, err := s.extractMetadata(staging)
	if err != nil {
		return err
	}
	result.Metadata = meta
	result.InstallPath = meta.InstallPath
	target, err := core.ResolveInstallTarget(s.Settings.AppRoot, meta.InstallPath)
	if err != nil {
		return err
	}
	if err := core.CheckModuleTarget(s.Settings.ModulesPath(), target, s.Settings.StatePath(), s.Settings.KernelPath()); err != nil {
		return err
	}
	result.TargetDir = target
	releaseTarget, err := s.acquire(ctx, targetLockPrefix+filepath.ToSlash(target))
	defer releaseTarget()
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("namespace", meta.Namespace).Str("install_path", meta.InstallPath).Msg("metadata extracted")

	_, statErr := os.Lstat(target)
	existed := statErr == nil
	label := core.BackupLabel("module", meta.InstallPath)
	if req.CreateBackup && existed {
		backup, err := s.Backups.CreateBackup(ctx, target, label)
		if err != nil {
			return err
		}
		result.Backup = backup
		log.Ctx(ctx).Info().Str("backup", backup).Msg("backup created")
	}

	if err := adapters.SwapDirectory(staging, target); err != nil {
		return types.NewModuleError("failed to move module into "+target, err)
	}
	log.Ctx(ctx).Info().Str("target", target).Msg("module swapped into place")

	if req.RunHooks {
		hookPath := filepath.Join(target, types.HookTypePostInstall.HookFile())
		if err := s.Hooks.Execute(ctx, hookPath, types.HookTypePostInstall); err != nil {
			s.rollback(ctx, target, result.Backup, existed)
			return err
		}
	}

	result.DependenciesRegenerated, result.Warnings = s.regenerateDependencies(ctx, result.Warnings)
	if result.Backup != "" && s.Settings.BackupKeep > 0 {
		removed, err := s.Backups.CleanOldBackups(ctx, label, s.Settings.BackupKeep)
		if err != nil {
			result.Warnings = append(result.Warnings, "backup pruning failed: "+err.Error())
		} else {
			result.PrunedBackups = removed
			log.Ctx(ctx).Info().Int("removed", len(removed)).Msg("old backups pruned")
		}
	}
	if s.Ledger != nil {
		entry := types.LedgerEntry{
			Identifier:  req.Identifier,
			Provider:    provider.Name(),
			Version:     selected.Tag,
			InstallPath: meta.InstallPath,
			Namespace:   meta.Namespace,
			InstalledAt: timeNow(s.Clock),
			Backup:      result.Backup,
			Branch:      selected.IsBranchFallback,
		}
		if err := s.Ledger.RecordModule(entry); err != nil {
			result.Warnings = append(result.Warnings, "install ledger not updated: "+err.Error())
		}
	}
	log.Ctx(ctx).Info().Str("release", selected.Tag).Str("target", target).Msg("module installed")
	return nil
}

// extractMetadata reads the declaration of an extracted bundle. A module
// without install path or namespace cannot be placed.
func (s Service) extractMetadata(dir string) (*types.ModuleMetadata, error) {
	declaration, err := s.Metadata.FindDeclarationFile(dir)
	if err != nil {
		return nil, err
	}
	meta, err := s.Metadata.FromDeclarationFile(declaration)
	if err != nil {
		return nil, err
	}
	if meta == nil || strings.TrimSpace(meta.Namespace) == "" {
		return nil, types.NewModuleError("module declaration "+filepath.Base(declaration)+" declares no namespace", nil)
	}
	if strings.TrimSpace(meta.InstallPath) == "" {
		return nil, types.NewModuleError("module declaration "+filepath.Base(declaration)+" declares no install path", nil)
	}
	return meta, nil
}

// rollback undoes a swap after a later step failed: the backup comes back,
// or a target that did not exist before is removed.
func (s Service) rollback(ctx context.Context, target string, backup string, existed bool) {
	logger := log.Ctx(ctx)
	switch {
	case backup != "":
		if err := s.Backups.RestoreBackup(ctx, backup, target); err != nil {
			logger.Error().Err(err).Str("backup", backup).Msg("restore after failure did not complete")
			return
		}
		logger.Warn().Str("target", target).Msg("previous version restored")
	case !existed:
		if err := os.RemoveAll(target); err != nil {
			logger.Error().Err(err).Str("target", target).Msg("failed to remove partially installed target")
			return
		}
		logger.Warn().Str("target", target).Msg("new install removed")
	default:
		logger.Warn().Str("target", target).Msg("no backup was taken, the new version stays in place")
	}
}

func (s Service) regenerateDependencies(ctx context.Context, warnings []string) (bool, []string) {
	if s.Deps == nil {
		return false, warnings
	}
	outcome, err := s.Deps.Regenerate(ctx)
	if err != nil {
		return false, append(warnings, "dependency regeneration interrupted: "+err.Error())
	}
	if !outcome.Success {
		detail := outcome.Stderr
		if detail == "" {
			detail = "command failed"
		}
		return false, append(warnings, "dependency regeneration failed: "+detail)
	}
	log.Ctx(ctx).Info().Str("command", strings.Join(outcome.Command, " ")).Msg("dependencies regenerated")
	return true, warnings
}
