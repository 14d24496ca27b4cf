package adapters

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"gopkg.in/yaml.v3"

	"webkernel-modules/internal/ports"
	"webkernel-modules/internal/types"
)

const ledgerFileName = "installed.yaml"

// InstallLedgerAdapter keeps <state_dir>/installed.yaml, the record of which
// release sits at which install path.
type InstallLedgerAdapter struct {
	Path string
	mu   *sync.Mutex
}

func NewInstallLedgerAdapter(stateDir string) InstallLedgerAdapter {
	return InstallLedgerAdapter{Path: filepath.Join(stateDir, ledgerFileName), mu: &sync.Mutex{}}
}

func (a InstallLedgerAdapter) lock() func() {
	if a.mu == nil {
		return func() {}
	}
	a.mu.Lock()
	return a.mu.Unlock
}

func (a InstallLedgerAdapter) Load() (types.Ledger, error) {
	defer a.lock()()
	return a.load()
}

func (a InstallLedgerAdapter) load() (types.Ledger, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.Ledger{}, nil
		}
		return types.Ledger{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read install ledger").
			WithCause(err)
	}
	var ledger types.Ledger
	if err := yaml.Unmarshal(data, &ledger); err != nil {
		return types.Ledger{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid install ledger format").
			WithCause(err)
	}
	return ledger, nil
}

// RecordModule replaces any entry for the same install path.
func (a InstallLedgerAdapter) RecordModule(entry types.LedgerEntry) error {
	if entry.InstallPath == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("ledger entry has no install path")
	}
	defer a.lock()()
	ledger, err := a.load()
	if err != nil {
		return err
	}
	modules := ledger.Modules[:0]
	for _, existing := range ledger.Modules {
		if existing.InstallPath != entry.InstallPath {
			modules = append(modules, existing)
		}
	}
	modules = append(modules, entry)
	sort.Slice(modules, func(i, j int) bool {
		return modules[i].InstallPath < modules[j].InstallPath
	})
	ledger.Modules = modules
	return a.save(ledger)
}

func (a InstallLedgerAdapter) RecordKernel(entry types.LedgerEntry) error {
	defer a.lock()()
	ledger, err := a.load()
	if err != nil {
		return err
	}
	if entry.Identifier == "" {
		entry.Identifier = types.LedgerKernelKey
	}
	ledger.Kernel = &entry
	return a.save(ledger)
}

func (a InstallLedgerAdapter) save(ledger types.Ledger) error {
	data, err := yaml.Marshal(ledger)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode install ledger").
			WithCause(err)
	}
	return writeFileAtomic(a.Path, data, 0644)
}

var _ ports.LedgerPort = InstallLedgerAdapter{}
