package adapters

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webkernel-modules/internal/types"
)

func TestInstallLedgerRecordsModulesAndKernel(t *testing.T) {
	adapter := NewInstallLedgerAdapter(t.TempDir())
	at := time.Date(2025, 5, 4, 3, 2, 1, 0, time.UTC)

	ledger, err := adapter.Load()
	require.NoError(t, err)
	assert.Empty(t, ledger.Modules)
	assert.Nil(t, ledger.Kernel)

	require.NoError(t, adapter.RecordModule(types.LedgerEntry{Identifier: "acme/shop", Provider: "github", Version: "v1.0.0", InstallPath: "modules/acme/shop", InstalledAt: at}))
	require.NoError(t, adapter.RecordModule(types.LedgerEntry{Identifier: "acme/blog", Provider: "github", Version: "v1.0.0", InstallPath: "modules/acme/blog", InstalledAt: at}))
	require.NoError(t, adapter.RecordModule(types.LedgerEntry{Identifier: "wk://blog", Provider: "registry", Version: "2.0.0", InstallPath: "modules/acme/blog", InstalledAt: at, Backup: "/b/modules-acme-blog_x"}))
	require.NoError(t, adapter.RecordKernel(types.LedgerEntry{Provider: "github", Version: "v3.1.0", InstallPath: "bootstrap", InstalledAt: at}))

	ledger, err = adapter.Load()
	require.NoError(t, err)
	want := types.Ledger{
		Kernel: &types.LedgerEntry{Identifier: types.LedgerKernelKey, Provider: "github", Version: "v3.1.0", InstallPath: "bootstrap", InstalledAt: at},
		Modules: []types.LedgerEntry{
			{Identifier: "wk://blog", Provider: "registry", Version: "2.0.0", InstallPath: "modules/acme/blog", InstalledAt: at, Backup: "/b/modules-acme-blog_x"},
			{Identifier: "acme/shop", Provider: "github", Version: "v1.0.0", InstallPath: "modules/acme/shop", InstalledAt: at},
		},
	}
	if diff := cmp.Diff(want, ledger); diff != "" {
		t.Fatalf("unexpected ledger (-want +got):\n%s", diff)
	}
}

func TestInstallLedgerErrors(t *testing.T) {
	adapter := NewInstallLedgerAdapter(t.TempDir())
	require.Error(t, adapter.RecordModule(types.LedgerEntry{Identifier: "acme/blog"}))

	require.NoError(t, os.WriteFile(adapter.Path, []byte("modules: {broken"), 0644))
	_, err := adapter.Load()
	require.Error(t, err)
}
