package ports

import (
	"context"

	"webkernel-modules/internal/types"
)

type HookPort interface {
	Execute(ctx context.Context, hookPath string, hookType types.HookType) error
}

type ValidatorPort interface {
	Validate(modulePath string) types.ValidationResult
}

type MetadataPort interface {
	FindDeclarationFile(dir string) (string, error)
	Parse(path string) (*types.ModuleDeclaration, error)
	FromDeclarationFile(path string) (*types.ModuleMetadata, error)
}

// DependencyGraphPort regenerates the application's autoload/dependency
// graph after files change on disk.
type DependencyGraphPort interface {
	Regenerate(ctx context.Context) (types.CommandResult, error)
}

type LedgerPort interface {
	Load() (types.Ledger, error)
	RecordModule(entry types.LedgerEntry) error
	RecordKernel(entry types.LedgerEntry) error
}
