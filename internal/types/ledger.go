package types

import "time"

// LedgerKernelKey is the ledger identifier reserved for the kernel entry.
const LedgerKernelKey = "kernel"

// LedgerEntry records what was installed where, and from which release.
type LedgerEntry struct {
	Identifier  string    `yaml:"identifier"`
	Provider    string    `yaml:"provider"`
	Version     string    `yaml:"version"`
	InstallPath string    `yaml:"install_path"`
	Namespace   string    `yaml:"namespace,omitempty"`
	InstalledAt time.Time `yaml:"installed_at"`
	Backup      string    `yaml:"backup,omitempty"`
	Branch      bool      `yaml:"branch,omitempty"`
}

type Ledger struct {
	Kernel  *LedgerEntry  `yaml:"kernel,omitempty"`
	Modules []LedgerEntry `yaml:"modules"`
}
