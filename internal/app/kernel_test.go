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

func kernelReleases() []types.Release {
	return []types.Release{{Tag: "v1.1.0"}, {Tag: "v1.0.0"}}
}

func kernelBundle(version string) map[string]string {
	return map[string]string{
		"Kernel.php":           "<?php // kernel " + version + "\n",
		"cache/shipped.txt":    "from release",
		"config/app.php":       "<?php return ['v' => '" + version + "'];\n",
		"hooks/post-update.sh": "echo updated > post-update.txt\n",
	}
}

func installedKernel(t *testing.T, service Service, version string) string {
	t.Helper()
	dir := filepath.Join(service.Settings.AppRoot, service.Settings.KernelDir)
	writeFiles(t, dir, map[string]string{
		"Kernel.php":           "<?php // kernel " + version + "\n",
		"VERSION":              version + "\n",
		"cache/compiled.php":   "local cache",
		"cache/views/home.php": "rendered",
	})
	return dir
}

func TestUpdateKernelPreservesConfiguredDirectories(t *testing.T) {
	provider := newFakeProvider(kernelReleases(), map[string]map[string]string{"v1.1.0": kernelBundle("1.1.0")})
	service := newTestService(t, provider)
	kernelDir := installedKernel(t, service, "1.0.0")

	result := service.UpdateKernel(t.Context(), UpdateKernelRequest{CreateBackup: true, RunHooks: true, Validate: true})
	require.True(t, result.Success, result.Error)
	assert.False(t, result.Skipped)
	assert.Equal(t, "1.0.0", result.PreviousVersion)
	assert.Equal(t, "v1.1.0", result.Version)
	assert.Equal(t, []string{"cache"}, result.Preserved)
	assert.NotEmpty(t, result.Backup)

	want := map[string]string{
		"Kernel.php":            "<?php // kernel 1.1.0\n",
		"VERSION":               "v1.1.0\n",
		"cache/compiled.php":    "local cache",
		"cache/views/home.php":  "rendered",
		"config/app.php":        "<?php return ['v' => '1.1.0'];\n",
		"hooks/post-update.sh":  "echo updated > post-update.txt\n",
		"hooks/post-update.txt": "updated\n",
	}
	if diff := cmp.Diff(want, readFiles(t, kernelDir)); diff != "" {
		t.Fatalf("kernel tree mismatch (-want +got):\n%s", diff)
	}
	_, err := os.Stat(filepath.Join(service.Settings.AppRoot, kernelStagingDir))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(kernelDir + ".old")
	assert.True(t, os.IsNotExist(err))

	ledger, err := service.Ledger.Load()
	require.NoError(t, err)
	require.NotNil(t, ledger.Kernel)
	assert.Equal(t, "v1.1.0", ledger.Kernel.Version)
	assert.Equal(t, types.LedgerKernelKey, ledger.Kernel.Identifier)
}

func TestUpdateKernelVersionGuard(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		req      UpdateKernelRequest
		success  bool
		skipped  bool
		contains string
	}{
		{name: "same version is a no-op", current: "1.1.0", success: true, skipped: true},
		{name: "same version with v prefix", current: "v1.1.0", success: true, skipped: true},
		{name: "downgrade refused", current: "2.0.0", contains: "refusing to downgrade kernel from 2.0.0 to v1.1.0"},
		{name: "downgrade forced", current: "2.0.0", req: UpdateKernelRequest{Force: true}, success: true},
		{name: "upgrade", current: "1.0.0", success: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider(kernelReleases(), map[string]map[string]string{"v1.1.0": kernelBundle("1.1.0")})
			service := newTestService(t, provider)
			kernelDir := installedKernel(t, service, tt.current)

			result := service.UpdateKernel(t.Context(), tt.req)
			assert.Equal(t, tt.success, result.Success, result.Error)
			assert.Equal(t, tt.skipped, result.Skipped)
			if tt.contains != "" {
				assert.Equal(t, types.ErrorKindModule, result.ErrorKind)
				assert.Contains(t, result.Error, tt.contains)
			}
			if !tt.success || tt.skipped {
				assert.Equal(t, 0, provider.downloadCount())
				content, err := os.ReadFile(filepath.Join(kernelDir, "VERSION"))
				require.NoError(t, err)
				assert.Equal(t, tt.current+"\n", string(content))
			}
		})
	}
}

func TestUpdateKernelPrefersLedgerVersion(t *testing.T) {
	provider := newFakeProvider(kernelReleases(), map[string]map[string]string{"v1.1.0": kernelBundle("1.1.0")})
	service := newTestService(t, provider)
	installedKernel(t, service, "1.0.0")
	require.NoError(t, service.Ledger.RecordKernel(types.LedgerEntry{Version: "v1.1.0", InstallPath: "bootstrap"}))

	result := service.UpdateKernel(t.Context(), UpdateKernelRequest{})
	require.True(t, result.Success, result.Error)
	assert.True(t, result.Skipped)
	assert.Equal(t, "v1.1.0", result.PreviousVersion)
}

func TestUpdateKernelMissingRequiredFiles(t *testing.T) {
	bundle := kernelBundle("1.1.0")
	delete(bundle, "Kernel.php")
	provider := newFakeProvider(kernelReleases(), map[string]map[string]string{"v1.1.0": bundle})
	service := newTestService(t, provider)
	kernelDir := installedKernel(t, service, "1.0.0")
	before := readFiles(t, kernelDir)

	result := service.UpdateKernel(t.Context(), UpdateKernelRequest{Validate: true, CreateBackup: true})
	require.False(t, result.Success)
	assert.Equal(t, types.ErrorKindValidation, result.ErrorKind)
	assert.Contains(t, result.Error, "Kernel.php")
	if diff := cmp.Diff(before, readFiles(t, kernelDir)); diff != "" {
		t.Fatalf("kernel changed (-want +got):\n%s", diff)
	}
	_, err := os.Stat(filepath.Join(service.Settings.AppRoot, kernelStagingDir))
	assert.True(t, os.IsNotExist(err))
}

func TestUpdateKernelPostUpdateFailureRestoresBackup(t *testing.T) {
	bundle := kernelBundle("1.1.0")
	bundle["hooks/post-update.sh"] = "exit 2\n"
	provider := newFakeProvider(kernelReleases(), map[string]map[string]string{"v1.1.0": bundle})
	service := newTestService(t, provider)
	kernelDir := installedKernel(t, service, "1.0.0")
	before := readFiles(t, kernelDir)

	result := service.UpdateKernel(t.Context(), UpdateKernelRequest{CreateBackup: true, RunHooks: true})
	require.False(t, result.Success)
	assert.Equal(t, types.ErrorKindHook, result.ErrorKind)
	if diff := cmp.Diff(before, readFiles(t, kernelDir)); diff != "" {
		t.Fatalf("kernel not restored (-want +got):\n%s", diff)
	}
}

func TestUpdateKernelRemovesLeftoverStaging(t *testing.T) {
	provider := newFakeProvider(kernelReleases(), map[string]map[string]string{"v1.1.0": kernelBundle("1.1.0")})
	service := newTestService(t, provider)
	writeFiles(t, filepath.Join(service.Settings.AppRoot, kernelStagingDir), map[string]string{"new/stale.txt": "from a crashed run"})

	result := service.UpdateKernel(t.Context(), UpdateKernelRequest{})
	require.True(t, result.Success, result.Error)
	assert.Empty(t, result.PreviousVersion)
	_, err := os.Stat(filepath.Join(result.KernelDir, "stale.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestUpdateKernelRejectsPreservedPathOutsideKernel(t *testing.T) {
	provider := newFakeProvider(kernelReleases(), map[string]map[string]string{"v1.1.0": kernelBundle("1.1.0")})
	service := newTestService(t, provider)
	service.Settings.KernelPreserve = []string{"../secrets"}
	installedKernel(t, service, "1.0.0")

	result := service.UpdateKernel(t.Context(), UpdateKernelRequest{})
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "preserved kernel path must be relative")
}

func TestUpdateKernelDryRun(t *testing.T) {
	provider := newFakeProvider(kernelReleases(), nil)
	service := newTestService(t, provider)
	installedKernel(t, service, "1.0.0")

	result := service.UpdateKernel(t.Context(), UpdateKernelRequest{DryRun: true})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "1.0.0", result.PreviousVersion)
	assert.Equal(t, 0, provider.downloadCount())
}
