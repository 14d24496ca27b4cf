package adapters

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleValidator(t *testing.T) {
	tests := []struct {
		name         string
		files        map[string]string
		wantValid    bool
		wantErrors   []string
		wantWarnings []string
	}{
		{
			name:      "valid bundle",
			files:     map[string]string{"BlogModule.hcl": blogDeclaration},
			wantValid: true,
		},
		{
			name:       "no declaration",
			files:      map[string]string{"README.md": "hi"},
			wantErrors: []string{"no *Module.hcl declaration file at the module root"},
		},
		{
			name:       "no module block",
			files:      map[string]string{"BlogModule.hcl": "title = \"x\"\n"},
			wantErrors: []string{`BlogModule.hcl has no module "<Class>" block`},
		},
		{
			name:  "wrong base and no configure",
			files: map[string]string{"BlogModule.hcl": "module \"BlogModule\" {\n  extends = \"Other\"\n  namespace = \"Acme\"\n}\n"},
			wantErrors: []string{
				"module BlogModule must extend WebModule",
				"module BlogModule has no configure block",
			},
			wantWarnings: []string{"module BlogModule declares no install path"},
		},
		{
			name:         "missing namespace is a warning",
			files:        map[string]string{"BlogModule.hcl": "module \"BlogModule\" {\n  extends = \"WebModule\"\n  configure {}\n}\n"},
			wantValid:    true,
			wantWarnings: []string{"module BlogModule declares no namespace", "module BlogModule declares no install path"},
		},
		{
			name:         "several declarations",
			files:        map[string]string{"BlogModule.hcl": blogDeclaration, "ShopModule.hcl": blogDeclaration},
			wantValid:    true,
			wantWarnings: []string{"2 declaration files found, using BlogModule.hcl"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeTree(t, dir, tt.files)
			result := NewModuleValidatorAdapter().Validate(dir)
			assert.Equal(t, tt.wantValid, result.IsValid)
			assert.Equal(t, tt.wantErrors, result.Errors)
			assert.Equal(t, tt.wantWarnings, result.Warnings)
		})
	}
}

func TestModuleValidatorMissingDirectory(t *testing.T) {
	result := NewModuleValidatorAdapter().Validate(filepath.Join(t.TempDir(), "absent"))
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "does not exist")
}
