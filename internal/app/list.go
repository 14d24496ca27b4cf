package app

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"webkernel-modules/internal/types"
)

// ListInstalledModules enumerates <modules_dir>/<vendor>/<module>. A module
// whose declaration cannot be read is still listed, under vendor/module.
func (s Service) ListInstalledModules(ctx context.Context) ListResult {
	logger := log.Ctx(ctx)
	root := s.Settings.ModulesPath()
	vendors, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug().Str("root", root).Msg("module root does not exist")
			return ListResult{Success: true, Modules: []types.InstalledModule{}}
		}
		return ListResult{Error: "failed to read module root " + root + ": " + err.Error()}
	}

	entries := s.ledgerByPath(ctx)
	modules := []types.InstalledModule{}
	for _, vendor := range vendors {
		if !listable(vendor) {
			continue
		}
		vendorDir := filepath.Join(root, vendor.Name())
		children, err := os.ReadDir(vendorDir)
		if err != nil {
			logger.Warn().Err(err).Str("vendor", vendor.Name()).Msg("skipping unreadable vendor directory")
			continue
		}
		for _, child := range children {
			if !listable(child) {
				continue
			}
			module := types.InstalledModule{
				Vendor: vendor.Name(),
				Name:   child.Name(),
				Path:   filepath.Join(vendorDir, child.Name()),
			}
			module.Metadata = s.readInstalledMetadata(ctx, module.Path)
			if rel, err := filepath.Rel(s.Settings.AppRoot, module.Path); err == nil {
				if entry, ok := entries[path.Clean(filepath.ToSlash(rel))]; ok {
					module.Ledger = &entry
				}
			}
			modules = append(modules, module)
		}
	}
	sort.Slice(modules, func(i, j int) bool {
		if modules[i].Vendor != modules[j].Vendor {
			return modules[i].Vendor < modules[j].Vendor
		}
		return modules[i].Name < modules[j].Name
	})
	logger.Debug().Int("modules", len(modules)).Msg("installed modules listed")
	return ListResult{Success: true, Modules: modules}
}

func listable(entry os.DirEntry) bool {
	name := entry.Name()
	return entry.IsDir() && !strings.HasPrefix(name, ".") && !strings.HasSuffix(name, ".old")
}

func (s Service) readInstalledMetadata(ctx context.Context, dir string) *types.ModuleMetadata {
	if s.Metadata == nil {
		return nil
	}
	declaration, err := s.Metadata.FindDeclarationFile(dir)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("dir", dir).Msg("no readable declaration")
		return nil
	}
	meta, err := s.Metadata.FromDeclarationFile(declaration)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("declaration", declaration).Msg("declaration not parsed")
		return nil
	}
	return meta
}

func (s Service) ledgerByPath(ctx context.Context) map[string]types.LedgerEntry {
	entries := map[string]types.LedgerEntry{}
	if s.Ledger == nil {
		return entries
	}
	ledger, err := s.Ledger.Load()
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("install ledger unreadable, versions omitted")
		return entries
	}
	for _, entry := range ledger.Modules {
		entries[path.Clean(entry.InstallPath)] = entry
	}
	return entries
}
