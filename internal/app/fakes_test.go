package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"webkernel-modules/internal/core"
	"webkernel-modules/internal/ports"
	"webkernel-modules/internal/types"
)

// fakeProvider serves in-memory bundles keyed by tag.
type fakeProvider struct {
	releases []types.Release
	bundles  map[string]map[string]string
	fetchErr error

	mu        *sync.Mutex
	downloads *int
}

func newFakeProvider(releases []types.Release, bundles map[string]map[string]string) fakeProvider {
	return fakeProvider{releases: releases, bundles: bundles, mu: &sync.Mutex{}, downloads: new(int)}
}

func (p fakeProvider) Name() string { return "fake" }

func (p fakeProvider) Supports(string) bool { return true }

func (p fakeProvider) FetchReleases(_ context.Context, _ string, includePrereleases bool) ([]types.Release, error) {
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return core.FilterReleases(p.releases, includePrereleases), nil
}

func (p fakeProvider) DownloadRelease(_ context.Context, release types.Release, targetDir string) error {
	p.mu.Lock()
	*p.downloads++
	p.mu.Unlock()
	files, ok := p.bundles[release.Tag]
	if !ok {
		return types.NewNetworkError("no bundle for "+release.Tag, nil)
	}
	for name, content := range files {
		path := filepath.Join(targetDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

func (p fakeProvider) VerifyChecksum(context.Context, io.Reader, types.Release) (bool, error) {
	return true, nil
}

func (p fakeProvider) downloadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.downloads
}

type stubDeps struct {
	result types.CommandResult
	calls  *int
}

func (s stubDeps) Regenerate(context.Context) (types.CommandResult, error) {
	if s.calls != nil {
		*s.calls++
	}
	return s.result, nil
}

func newTestService(t *testing.T, provider fakeProvider) Service {
	t.Helper()
	settings := DefaultSettings()
	settings.AppRoot = t.TempDir()
	settings.LockTimeout = 300 * time.Millisecond
	settings.HookTimeout = 5 * time.Second
	settings.KernelRequiredFiles = []string{"Kernel.php"}
	t.Setenv("WEBKERNEL_MODULES_KEY", "")
	t.Setenv("APP_KEY", "")
	service := NewService(settings, WithClock(tickingClock()))
	service.Providers = []ports.SourceProviderPort{provider}
	service.Deps = stubDeps{result: types.CommandResult{Success: true, Command: []string{"composer", "dump-autoload"}}}
	return service
}

// tickingClock advances one second per reading so backup names stay unique.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

// readFiles returns every regular file under root keyed by slash path.
func readFiles(t *testing.T, root string) map[string]string {
	t.Helper()
	files := map[string]string{}
	err := filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	require.NoError(t, err)
	return files
}

func declaration(class string, namespace string, forPath string, version string) string {
	return declarationIn(class, namespace, "modules", forPath, version)
}

func declarationIn(class string, namespace string, in string, forPath string, version string) string {
	return `
module "` + class + `" {
  extends   = "WebModule"
  namespace = "` + namespace + `"

  configure {
    name    = "` + class + `"
    version = "` + version + `"

    install_path {
      in  = "` + in + `"
      for = "` + forPath + `"
    }
  }
}
`
}
