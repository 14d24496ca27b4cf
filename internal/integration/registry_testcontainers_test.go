//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"webkernel-modules/internal/app"
	"webkernel-modules/internal/types"
)

type registryRequest struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Auth   string `json:"auth"`
}

func TestRegistryInstallWithTestcontainers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers e2e in short mode")
	}

	ctx := t.Context()
	endpoint, cleanup := startRegistryMock(ctx, t)
	t.Cleanup(cleanup)

	service := newRegistryService(t, endpoint)

	first := service.InstallModule(ctx, app.InstallRequest{
		Identifier:   "wk://acme/blog",
		Version:      "1.0.0",
		CreateBackup: true,
		RunHooks:     true,
		Validate:     true,
	})
	require.True(t, first.Success, first.Error)
	assert.Equal(t, "registry", first.Provider)
	assert.Equal(t, "modules/acme/blog", first.InstallPath)

	controller, err := os.ReadFile(filepath.Join(first.TargetDir, "src", "Controller.php"))
	require.NoError(t, err)
	assert.Contains(t, string(controller), "1.0.0")

	second := service.InstallModule(ctx, app.InstallRequest{
		Identifier:   "wk://acme/blog",
		CreateBackup: true,
		RunHooks:     true,
		Validate:     true,
	})
	require.True(t, second.Success, second.Error)
	assert.Equal(t, "1.1.0", second.Version)
	assert.NotEmpty(t, second.Backup)

	controller, err = os.ReadFile(filepath.Join(second.TargetDir, "src", "Controller.php"))
	require.NoError(t, err)
	assert.Contains(t, string(controller), "1.1.0")

	listed := service.ListInstalledModules(ctx)
	require.True(t, listed.Success, listed.Error)
	require.Len(t, listed.Modules, 1)
	require.NotNil(t, listed.Modules[0].Ledger)
	assert.Equal(t, "wk://acme/blog", listed.Modules[0].Ledger.Identifier)
	assert.Equal(t, "1.1.0", listed.Modules[0].Ledger.Version)

	requests, err := fetchRegistryRequests(endpoint)
	require.NoError(t, err)
	counts := map[string]int{}
	for _, req := range requests {
		require.Equal(t, http.MethodGet, req.Method)
		counts[req.Path]++
	}
	assert.Equal(t, 2, counts["/api/v1/modules/acme/blog/releases"])
	assert.Equal(t, 1, counts["/files/blog-1.0.0.zip"])
	assert.Equal(t, 1, counts["/files/blog-1.1.0.zip"])
}

func TestRegistryPrivateModuleWithTestcontainers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers e2e in short mode")
	}

	ctx := t.Context()
	endpoint, cleanup := startRegistryMock(ctx, t)
	t.Cleanup(cleanup)

	service := newRegistryService(t, endpoint)

	denied := service.InstallModule(ctx, app.InstallRequest{
		Identifier: "wk://acme/private",
		Validate:   true,
	})
	require.False(t, denied.Success)
	assert.Equal(t, types.ErrorKindNetwork, denied.ErrorKind)
	assert.Contains(t, denied.Error, "token set registry:")

	granted := service.InstallModule(ctx, app.InstallRequest{
		Identifier: "wk://acme/private",
		Token:      registryToken,
		Validate:   true,
	})
	require.True(t, granted.Success, granted.Error)
	assert.Equal(t, "modules/acme/private", granted.InstallPath)

	requests, err := fetchRegistryRequests(endpoint)
	require.NoError(t, err)
	var authorized int
	for _, req := range requests {
		if req.Auth == "Bearer "+registryToken {
			authorized++
		}
	}
	assert.GreaterOrEqual(t, authorized, 2)
}

func newRegistryService(t *testing.T, endpoint string) app.Service {
	t.Helper()
	t.Setenv("WEBKERNEL_MODULES_KEY", "integration-key")
	settings := app.DefaultSettings()
	settings.AppRoot = t.TempDir()
	settings.RegistryAPI = endpoint + "/api/v1"
	settings.HTTPTimeout = 10 * time.Second
	settings.DownloadTimeout = 30 * time.Second
	settings.LockTimeout = 5 * time.Second
	settings.HookTimeout = 10 * time.Second
	settings.DependencyCommand = []string{"true"}
	return app.NewService(settings)
}

func startRegistryMock(ctx context.Context, t *testing.T) (string, func()) {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "python:3.12-alpine",
		ExposedPorts: []string{"8080/tcp"},
		Cmd:          []string{"python", "-c", registryMockScript},
		WaitingFor:   wait.ForListeningPort("8080/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8080/tcp")
	require.NoError(t, err)

	endpoint := fmt.Sprintf("http://%s:%s", host, port.Port())
	cleanup := func() {
		_ = container.Terminate(ctx)
	}
	return endpoint, cleanup
}

func fetchRegistryRequests(endpoint string) ([]registryRequest, error) {
	resp, err := http.Get(endpoint + "/requests")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	var requests []registryRequest
	if err := json.NewDecoder(resp.Body).Decode(&requests); err != nil {
		return nil, err
	}
	return requests, nil
}

const registryToken = "s3cret"

// The mock builds one zip per release at startup and answers the registry
// release listing. Download URLs follow the Host header so they resolve
// through the mapped port.
const registryMockScript = `
import hashlib
import io
import json
import zipfile
from http.server import BaseHTTPRequestHandler, ThreadingHTTPServer

TOKEN = "` + registryToken + `"
requests = []

def declaration(cls, namespace, path, version):
    return (
        'module "%s" {\n'
        '  extends   = "WebModule"\n'
        '  namespace = "%s"\n'
        '  configure {\n'
        '    name    = "%s"\n'
        '    version = "%s"\n'
        '    install_path {\n'
        '      in  = "modules"\n'
        '      for = "%s"\n'
        '    }\n'
        '  }\n'
        '}\n'
    ) % (cls, namespace, cls, version, path)

def bundle(root, cls, namespace, path, version):
    buf = io.BytesIO()
    with zipfile.ZipFile(buf, "w") as archive:
        archive.writestr(root + "/" + cls + ".hcl", declaration(cls, namespace, path, version))
        archive.writestr(root + "/src/Controller.php", "<?php // %s\n" % version)
    return buf.getvalue()

files = {
    "blog-1.0.0.zip": bundle("blog-1.0.0", "BlogModule", "Acme\\\\Blog", "acme/blog", "1.0.0"),
    "blog-1.1.0.zip": bundle("blog-1.1.0", "BlogModule", "Acme\\\\Blog", "acme/blog", "1.1.0"),
    "private-0.1.0.zip": bundle("private-0.1.0", "PrivateModule", "Acme\\\\Private", "acme/private", "0.1.0"),
}

modules = {
    "acme/blog": {"private": False, "releases": [("1.1.0", "blog-1.1.0.zip"), ("1.0.0", "blog-1.0.0.zip")]},
    "acme/private": {"private": True, "releases": [("0.1.0", "private-0.1.0.zip")]},
}

class Handler(BaseHTTPRequestHandler):
    def send_json(self, status, payload):
        body = json.dumps(payload).encode("utf-8")
        self.send_response(status)
        self.send_header("Content-Type", "application/json")
        self.send_header("Content-Length", str(len(body)))
        self.end_headers()
        self.wfile.write(body)

    def authorized(self):
        return self.headers.get("Authorization", "") == "Bearer " + TOKEN

    def do_GET(self):
        path = self.path.split("?", 1)[0]
        if path == "/requests":
            self.send_json(200, requests)
            return
        requests.append({"method": "GET", "path": path, "auth": self.headers.get("Authorization", "")})
        prefix = "/api/v1/modules/"
        if path.startswith(prefix) and path.endswith("/releases"):
            name = path[len(prefix):-len("/releases")]
            module = modules.get(name)
            if module is None:
                self.send_json(404, {"error": "not_found", "message": name})
                return
            if module["private"] and not self.authorized():
                self.send_json(401, {"error": "authentication_required"})
                return
            base = "http://" + self.headers.get("Host", "localhost:8080")
            releases = []
            for tag, filename in module["releases"]:
                releases.append({
                    "tag": tag,
                    "name": tag,
                    "published_at": "2026-01-01T00:00:00Z",
                    "download_url": base + "/files/" + filename,
                    "sha256": hashlib.sha256(files[filename]).hexdigest(),
                })
            self.send_json(200, {"releases": releases})
            return
        if path.startswith("/files/"):
            filename = path[len("/files/"):]
            content = files.get(filename)
            if content is None:
                self.send_response(404)
                self.end_headers()
                return
            if filename.startswith("private-") and not self.authorized():
                self.send_response(401)
                self.end_headers()
                return
            self.send_response(200)
            self.send_header("Content-Type", "application/zip")
            self.send_header("Content-Length", str(len(content)))
            self.end_headers()
            self.wfile.write(content)
            return
        self.send_response(404)
        self.end_headers()

    def log_message(self, format, *args):
        return

def main():
    server = ThreadingHTTPServer(("0.0.0.0", 8080), Handler)
    server.serve_forever()

if __name__ == "__main__":
    main()
`
