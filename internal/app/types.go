package app

import "webkernel-modules/internal/types"

// InstallRequest asks for one module release. Version is an exact release
// tag; empty selects the newest release.
type InstallRequest struct {
	Identifier         string
	Version            string
	IncludePrereleases bool
	Token              string
	CreateBackup       bool
	RunHooks           bool
	Validate           bool
	DryRun             bool
}

// InstallResult reports the outcome of InstallModule. A failed dependency
// regeneration leaves DependenciesRegenerated false without failing the
// install.
type InstallResult struct {
	Success                 bool
	Error                   string
	ErrorKind               types.ErrorKind
	DryRun                  bool
	Identifier              string
	Provider                string
	Version                 string
	InstallPath             string
	TargetDir               string
	Backup                  string
	Metadata                *types.ModuleMetadata
	Warnings                []string
	DependenciesRegenerated bool
	PrunedBackups           []string
}

type UpdateKernelRequest struct {
	Version            string
	IncludePrereleases bool
	Token              string
	CreateBackup       bool
	RunHooks           bool
	Validate           bool
	DryRun             bool
	Force              bool
}

type KernelUpdateResult struct {
	Success                 bool
	Error                   string
	ErrorKind               types.ErrorKind
	DryRun                  bool
	Skipped                 bool
	Provider                string
	PreviousVersion         string
	Version                 string
	KernelDir               string
	Backup                  string
	Preserved               []string
	Warnings                []string
	DependenciesRegenerated bool
	PrunedBackups           []string
}

type ListResult struct {
	Success bool
	Error   string
	Modules []types.InstalledModule
}
