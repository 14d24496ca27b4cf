package core

import (
	"path"
	"path/filepath"
	"strings"

	"webkernel-modules/internal/types"
)

// JoinInstallPath builds the repository relative install path from the
// in/for pair of a module declaration.
func JoinInstallPath(in string, forPath string) string {
	in = normalizeSlashes(in)
	forPath = normalizeSlashes(forPath)
	if in == "" && forPath == "" {
		return ""
	}
	joined := path.Join(in, forPath)
	if joined == "." {
		return ""
	}
	return joined
}

// ResolveInstallTarget maps a declared install path onto root. The result is
// always strictly inside root.
func ResolveInstallTarget(root string, installPath string) (string, error) {
	cleaned := path.Clean(normalizeSlashes(installPath))
	if cleaned == "" || cleaned == "." || cleaned == "/" {
		return "", types.NewModuleError("install path is empty", nil)
	}
	if path.IsAbs(cleaned) || filepath.IsAbs(installPath) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", types.NewModuleError("install path escapes the application root: "+installPath, nil)
	}
	return filepath.Join(root, filepath.FromSlash(cleaned)), nil
}

// CheckModuleTarget accepts only <modulesRoot>/<vendor>/<module>[/...]
// targets without hidden segments that neither contain nor sit inside one of
// the reserved directories.
func CheckModuleTarget(modulesRoot string, target string, reserved ...string) error {
	rel, err := filepath.Rel(modulesRoot, target)
	if err != nil || !filepath.IsLocal(rel) {
		return types.NewModuleError("module install path must be inside "+modulesRoot+": "+target, nil)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return types.NewModuleError("module install path must name a vendor and a module directory: "+target, nil)
	}
	for _, part := range parts {
		if strings.HasPrefix(part, ".") {
			return types.NewModuleError("module install path must not use hidden directories: "+target, nil)
		}
	}
	for _, dir := range reserved {
		if dir == "" {
			continue
		}
		if pathWithin(dir, target) || pathWithin(target, dir) {
			return types.NewModuleError("module install path overlaps "+dir, nil)
		}
	}
	return nil
}

// pathWithin reports whether child is parent or lies beneath it.
func pathWithin(parent string, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || filepath.IsLocal(rel)
}

// BackupLabel derives a filesystem safe backup label for an install path.
func BackupLabel(prefix string, installPath string) string {
	cleaned := strings.Trim(path.Clean(normalizeSlashes(installPath)), "/.")
	cleaned = strings.ReplaceAll(cleaned, "/", "-")
	if cleaned == "" {
		return prefix
	}
	return prefix + "-" + cleaned
}

func normalizeSlashes(value string) string {
	return strings.ReplaceAll(strings.TrimSpace(value), "\\", "/")
}
