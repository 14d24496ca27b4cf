package types

// ModuleMetadata is recovered from a module declaration file without
// executing any module code.
type ModuleMetadata struct {
	ID              string
	Name            string
	Version         string
	Description     string
	InstallPath     string
	Namespace       string
	SupportElements map[string]string
	Extra           map[string]string
}

// ModuleDeclaration is the structural view of a declaration file used by the
// validator. Metadata is nil when the file has no module block.
type ModuleDeclaration struct {
	Path         string
	ClassName    string
	Extends      string
	HasConfigure bool
	Metadata     *ModuleMetadata
}

type ValidationResult struct {
	IsValid  bool
	Errors   []string
	Warnings []string
}

func (r *ValidationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.IsValid = false
}

func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// InstalledModule is one vendor/module directory found under the module
// root. Metadata is nil when the declaration could not be read.
type InstalledModule struct {
	Vendor   string
	Name     string
	Path     string
	Metadata *ModuleMetadata
	Ledger   *LedgerEntry
}

// DisplayName falls back to vendor/name when no metadata name is known.
func (m InstalledModule) DisplayName() string {
	if m.Metadata != nil && m.Metadata.Name != "" {
		return m.Metadata.Name
	}
	return m.Vendor + "/" + m.Name
}
