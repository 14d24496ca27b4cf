package adapters

import (
	"fmt"
	"os"
	"path/filepath"

	"webkernel-modules/internal/ports"
	"webkernel-modules/internal/types"
)

const requiredBaseClass = "WebModule"

// ModuleValidatorAdapter checks the structure of an extracted module bundle.
type ModuleValidatorAdapter struct {
	Declarations ModuleDeclarationAdapter
}

func NewModuleValidatorAdapter() ModuleValidatorAdapter {
	return ModuleValidatorAdapter{Declarations: NewModuleDeclarationAdapter()}
}

func (a ModuleValidatorAdapter) Validate(modulePath string) types.ValidationResult {
	result := types.ValidationResult{IsValid: true}
	info, err := os.Stat(modulePath)
	if err != nil || !info.IsDir() {
		result.AddError("module directory does not exist: " + modulePath)
		return result
	}
	files, err := declarationFiles(modulePath)
	if err != nil {
		result.AddError("cannot read module directory: " + err.Error())
		return result
	}
	if len(files) == 0 {
		result.AddError("no *" + declarationSuffix + " declaration file at the module root")
		return result
	}
	if len(files) > 1 {
		result.AddWarning(fmt.Sprintf("%d declaration files found, using %s", len(files), filepath.Base(files[0])))
	}
	decl, err := a.Declarations.Parse(files[0])
	if err != nil {
		result.AddError(err.Error())
		return result
	}
	name := filepath.Base(files[0])
	if decl.ClassName == "" {
		result.AddError(name + " has no module \"<Class>\" block")
		return result
	}
	if decl.Extends != requiredBaseClass {
		result.AddError(fmt.Sprintf("module %s must extend %s", decl.ClassName, requiredBaseClass))
	}
	if !decl.HasConfigure {
		result.AddError(fmt.Sprintf("module %s has no configure block", decl.ClassName))
	}
	if decl.Metadata == nil || decl.Metadata.Namespace == "" {
		result.AddWarning(fmt.Sprintf("module %s declares no namespace", decl.ClassName))
	}
	if decl.Metadata == nil || decl.Metadata.InstallPath == "" {
		result.AddWarning(fmt.Sprintf("module %s declares no install path", decl.ClassName))
	}
	return result
}

var _ ports.ValidatorPort = ModuleValidatorAdapter{}
