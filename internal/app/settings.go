package app

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultModulesDir   = "modules"
	DefaultStateDir     = ".webkernel"
	DefaultKernelDir    = "bootstrap"
	DefaultKernelSource = "webkernel/kernel"
	DefaultBackupKeep   = 5
	DefaultLockTimeout  = 5 * time.Minute
	DefaultLockStale    = time.Hour
	DefaultHookTimeout  = 60 * time.Second
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultDownload     = 10 * time.Minute
	DefaultMaxRedirects = 5
	DefaultGitHubAPI    = "https://api.github.com"
	DefaultRegistryAPI  = "https://registry.webkernel.dev/api/v1"
)

// Settings is the resolved configuration of one Service. Relative
// directories are interpreted against AppRoot.
type Settings struct {
	AppRoot             string
	ModulesDir          string
	StateDir            string
	KernelDir           string
	KernelSource        string
	KernelPreserve      []string
	KernelRequiredFiles []string
	BackupKeep          int
	LockTimeout         time.Duration
	LockStaleAfter      time.Duration
	HookTimeout         time.Duration
	HTTPTimeout         time.Duration
	DownloadTimeout     time.Duration
	MaxRedirects        int
	GitHubAPI           string
	RegistryAPI         string
	DependencyCommand   []string
}

func DefaultSettings() Settings {
	return Settings{
		AppRoot:           ".",
		ModulesDir:        DefaultModulesDir,
		StateDir:          DefaultStateDir,
		KernelDir:         DefaultKernelDir,
		KernelSource:      DefaultKernelSource,
		KernelPreserve:    []string{"cache"},
		BackupKeep:        DefaultBackupKeep,
		LockTimeout:       DefaultLockTimeout,
		LockStaleAfter:    DefaultLockStale,
		HookTimeout:       DefaultHookTimeout,
		HTTPTimeout:       DefaultHTTPTimeout,
		DownloadTimeout:   DefaultDownload,
		MaxRedirects:      DefaultMaxRedirects,
		GitHubAPI:         DefaultGitHubAPI,
		RegistryAPI:       DefaultRegistryAPI,
		DependencyCommand: []string{"composer", "dump-autoload", "--optimize"},
	}
}

// withDefaults fills zero values and makes AppRoot absolute.
func (s Settings) withDefaults() Settings {
	defaults := DefaultSettings()
	if strings.TrimSpace(s.AppRoot) == "" {
		s.AppRoot = defaults.AppRoot
	}
	if abs, err := filepath.Abs(s.AppRoot); err == nil {
		s.AppRoot = abs
	}
	if strings.TrimSpace(s.ModulesDir) == "" {
		s.ModulesDir = defaults.ModulesDir
	}
	if strings.TrimSpace(s.StateDir) == "" {
		s.StateDir = defaults.StateDir
	}
	if strings.TrimSpace(s.KernelDir) == "" {
		s.KernelDir = defaults.KernelDir
	}
	if strings.TrimSpace(s.KernelSource) == "" {
		s.KernelSource = defaults.KernelSource
	}
	if s.BackupKeep < 0 {
		s.BackupKeep = 0
	}
	if s.LockTimeout <= 0 {
		s.LockTimeout = defaults.LockTimeout
	}
	if s.LockStaleAfter <= 0 {
		s.LockStaleAfter = defaults.LockStaleAfter
	}
	if s.HookTimeout <= 0 {
		s.HookTimeout = defaults.HookTimeout
	}
	if s.HTTPTimeout <= 0 {
		s.HTTPTimeout = defaults.HTTPTimeout
	}
	if s.DownloadTimeout <= 0 {
		s.DownloadTimeout = defaults.DownloadTimeout
	}
	if s.MaxRedirects <= 0 {
		s.MaxRedirects = defaults.MaxRedirects
	}
	if strings.TrimSpace(s.GitHubAPI) == "" {
		s.GitHubAPI = defaults.GitHubAPI
	}
	if strings.TrimSpace(s.RegistryAPI) == "" {
		s.RegistryAPI = defaults.RegistryAPI
	}
	if len(s.DependencyCommand) == 0 {
		s.DependencyCommand = defaults.DependencyCommand
	}
	return s
}

func (s Settings) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(s.AppRoot, dir)
}

func (s Settings) StatePath() string {
	return s.resolve(s.StateDir)
}

func (s Settings) ModulesPath() string {
	return s.resolve(s.ModulesDir)
}

func (s Settings) KernelPath() string {
	return s.resolve(s.KernelDir)
}
