package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webkernel-modules/internal/types"
)

func TestRestoreBackup(t *testing.T) {
	service := newTestService(t, newFakeProvider(nil, nil))
	target := filepath.Join(service.Settings.AppRoot, "modules", "acme", "blog")
	original := map[string]string{"BlogModule.hcl": "v1", "src/a.php": "a"}
	writeFiles(t, target, original)

	backup, err := service.Backups.CreateBackup(t.Context(), target, "module-modules-acme-blog")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(target))
	writeFiles(t, target, map[string]string{"BlogModule.hcl": "v2"})

	require.NoError(t, service.RestoreBackup(t.Context(), backup, "modules/acme/blog"))
	if diff := cmp.Diff(original, readFiles(t, target)); diff != "" {
		t.Fatalf("restored tree mismatch (-want +got):\n%s", diff)
	}

	backups, err := service.ListBackups(t.Context(), "")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, target, backups[0].Source)
}

func TestRestoreBackupRejectsTargetOutsideRoot(t *testing.T) {
	service := newTestService(t, newFakeProvider(nil, nil))

	err := service.RestoreBackup(t.Context(), t.TempDir(), "../elsewhere")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrorKindModule))
}

func TestForceReleaseLock(t *testing.T) {
	service := newTestService(t, newFakeProvider(nil, nil))
	held := service.Locks.Lock(kernelLockName)
	require.NoError(t, held.Acquire(t.Context(), service.Settings.LockTimeout))

	info, err := service.InspectLock(kernelLockName)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, os.Getpid(), info.PID)

	require.NoError(t, service.ForceReleaseLock(t.Context(), kernelLockName))
	info, err = service.InspectLock(kernelLockName)
	require.NoError(t, err)
	assert.Nil(t, info)
	require.NoError(t, held.Release())
}

func TestCleanStaleLocksKeepsLiveHolders(t *testing.T) {
	service := newTestService(t, newFakeProvider(nil, nil))
	held := service.Locks.Lock(kernelLockName)
	require.NoError(t, held.Acquire(t.Context(), service.Settings.LockTimeout))
	defer func() { require.NoError(t, held.Release()) }()

	removed, err := service.CleanStaleLocks(t.Context())
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestSaveAndForgetToken(t *testing.T) {
	service := newTestService(t, newFakeProvider(nil, nil))
	ctx := t.Context()

	require.NoError(t, service.SaveToken(ctx, "acme", "blog", types.TokenScopeRepo, "ghp_repo"))
	require.NoError(t, service.SaveToken(ctx, "acme", "", types.TokenScopeOwner, "ghp_owner"))

	token, err := service.Tokens.LookupToken("acme", "blog")
	require.NoError(t, err)
	assert.Equal(t, "ghp_repo", token)

	require.NoError(t, service.ForgetToken(ctx, "acme", "blog"))
	token, err = service.Tokens.LookupToken("acme", "blog")
	require.NoError(t, err)
	assert.Equal(t, "ghp_owner", token)

	require.Error(t, service.SaveToken(ctx, "", "", types.TokenScopeOwner, "x"))
}

func TestSetAndGetSetting(t *testing.T) {
	service := newTestService(t, newFakeProvider(nil, nil))
	ctx := t.Context()

	stored, err := service.StoredSettings()
	require.NoError(t, err)
	assert.Empty(t, stored)

	require.NoError(t, service.SetSetting(ctx, "backup_keep", "2"))
	require.NoError(t, service.SetSetting(ctx, "kernel_source", "acme/kernel"))

	value, ok, err := service.GetSetting("backup_keep")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", value)

	stored, err = NewService(service.Settings).StoredSettings()
	require.NoError(t, err)
	if diff := cmp.Diff(map[string]string{"backup_keep": "2", "kernel_source": "acme/kernel"}, stored); diff != "" {
		t.Fatalf("stored settings mismatch (-want +got):\n%s", diff)
	}

	require.Error(t, service.SetSetting(ctx, "", "x"))
}

func TestPruneBackupsDefaultsToConfiguredKeep(t *testing.T) {
	service := newTestService(t, newFakeProvider(nil, nil))
	service.Settings.BackupKeep = 1
	target := filepath.Join(service.Settings.AppRoot, "bootstrap")
	writeFiles(t, target, map[string]string{"Kernel.php": "<?php"})

	first, err := service.Backups.CreateBackup(t.Context(), target, "kernel")
	require.NoError(t, err)
	_, err = service.Backups.CreateBackup(t.Context(), target, "kernel")
	require.NoError(t, err)

	removed, err := service.PruneBackups(t.Context(), "kernel", -1)
	require.NoError(t, err)
	assert.Equal(t, []string{first}, removed)
}

func TestInspectAndValidateModule(t *testing.T) {
	service := newTestService(t, newFakeProvider(nil, nil))
	dir := t.TempDir()
	writeFiles(t, dir, blogBundle("1.1.0", nil))

	declaration, err := service.InspectModule(dir)
	require.NoError(t, err)
	assert.Equal(t, "BlogModule", declaration.ClassName)
	require.NotNil(t, declaration.Metadata)
	assert.Equal(t, "modules/acme/blog", declaration.Metadata.InstallPath)

	result := service.ValidateModule(dir)
	assert.True(t, result.IsValid, result.Errors)

	_, err = service.InspectModule(t.TempDir())
	require.Error(t, err)
}
