package adapters

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"webkernel-modules/internal/core"
	"webkernel-modules/internal/ports"
	"webkernel-modules/internal/types"
)

const (
	declarationSuffix  = "Module.hcl"
	moduleBlockType    = "module"
	configureBlockType = "configure"
	installPathBlock   = "install_path"
)

// configure attributes with a dedicated metadata field.
var knownConfigureAttributes = map[string]struct{}{
	"id":               {},
	"name":             {},
	"version":          {},
	"description":      {},
	"support_elements": {},
}

// ModuleDeclarationAdapter reads <Name>Module.hcl declarations as a syntax
// tree. Only literal expressions are evaluated.
type ModuleDeclarationAdapter struct{}

func NewModuleDeclarationAdapter() ModuleDeclarationAdapter {
	return ModuleDeclarationAdapter{}
}

// declarationFiles lists the declaration candidates at the root of dir in
// lexical order.
func declarationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, declarationSuffix) && len(name) > len(declarationSuffix) {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (a ModuleDeclarationAdapter) FindDeclarationFile(dir string) (string, error) {
	files, err := declarationFiles(dir)
	if err != nil {
		return "", types.NewModuleError("cannot read module directory "+dir, err)
	}
	if len(files) == 0 {
		return "", types.NewModuleNotFoundError("no *"+declarationSuffix+" declaration in "+dir, nil)
	}
	return files[0], nil
}

func (a ModuleDeclarationAdapter) Parse(path string) (*types.ModuleDeclaration, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewModuleError("cannot read module declaration", err)
	}
	file, diags := hclparse.NewParser().ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, types.NewModuleError("module declaration "+filepath.Base(path)+" is not valid HCL", diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, types.NewModuleError("unexpected HCL body in "+filepath.Base(path), nil)
	}
	decl := &types.ModuleDeclaration{Path: path}
	block := firstBlock(body, moduleBlockType)
	if block == nil || len(block.Labels) == 0 {
		return decl, nil
	}
	decl.ClassName = block.Labels[0]
	decl.Extends = literalString(block.Body, "extends")
	namespace := literalString(block.Body, "namespace")

	configure := firstBlock(block.Body, configureBlockType)
	decl.HasConfigure = configure != nil
	if namespace == "" {
		return decl, nil
	}
	meta := &types.ModuleMetadata{
		Namespace:       namespace,
		SupportElements: map[string]string{},
		Extra:           map[string]string{},
	}
	if configure != nil {
		meta.ID = literalString(configure.Body, "id")
		meta.Name = literalString(configure.Body, "name")
		meta.Version = literalString(configure.Body, "version")
		meta.Description = literalString(configure.Body, "description")
		if attr, ok := configure.Body.Attributes["support_elements"]; ok {
			meta.SupportElements = literalMap(attr.Expr)
		}
		if install := firstBlock(configure.Body, installPathBlock); install != nil {
			meta.InstallPath = core.JoinInstallPath(literalString(install.Body, "in"), literalString(install.Body, "for"))
		}
		for name, attr := range configure.Body.Attributes {
			if _, known := knownConfigureAttributes[name]; known {
				continue
			}
			if value, ok := literalValue(attr.Expr); ok {
				meta.Extra[name] = value
			}
		}
	}
	decl.Metadata = meta
	return decl, nil
}

// FromDeclarationFile returns nil without error when the file declares no
// module or no namespace.
func (a ModuleDeclarationAdapter) FromDeclarationFile(path string) (*types.ModuleMetadata, error) {
	decl, err := a.Parse(path)
	if err != nil {
		return nil, err
	}
	return decl.Metadata, nil
}

func firstBlock(body *hclsyntax.Body, blockType string) *hclsyntax.Block {
	for _, block := range body.Blocks {
		if block.Type == blockType {
			return block
		}
	}
	return nil
}

func literalString(body *hclsyntax.Body, name string) string {
	attr, ok := body.Attributes[name]
	if !ok {
		return ""
	}
	value, _ := literalValue(attr.Expr)
	return strings.TrimSpace(value)
}

// literalValue evaluates expr without variables or functions and converts
// the result to a string. Collections and references yield false.
func literalValue(expr hclsyntax.Expression) (string, bool) {
	value, diags := expr.Value(nil)
	if diags.HasErrors() || value.IsNull() || !value.IsWhollyKnown() {
		return "", false
	}
	if !value.Type().IsPrimitiveType() {
		return "", false
	}
	converted, err := convert.Convert(value, cty.String)
	if err != nil {
		return "", false
	}
	return converted.AsString(), true
}

func literalMap(expr hclsyntax.Expression) map[string]string {
	out := map[string]string{}
	value, diags := expr.Value(nil)
	if diags.HasErrors() || value.IsNull() || !value.IsWhollyKnown() {
		return out
	}
	if !value.Type().IsObjectType() && !value.Type().IsMapType() {
		return out
	}
	for it := value.ElementIterator(); it.Next(); {
		key, element := it.Element()
		if element.IsNull() || !element.Type().IsPrimitiveType() {
			continue
		}
		converted, err := convert.Convert(element, cty.String)
		if err != nil {
			continue
		}
		out[key.AsString()] = converted.AsString()
	}
	return out
}

var _ ports.MetadataPort = ModuleDeclarationAdapter{}
