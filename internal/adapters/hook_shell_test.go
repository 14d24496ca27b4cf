package adapters

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webkernel-modules/internal/types"
)

func writeHook(t *testing.T, dir string, hookType types.HookType, script string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(hookType.HookFile()))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(script), 0644))
	return path
}

func TestShellHookMissingScriptIsNoop(t *testing.T) {
	adapter := NewShellHookAdapter(time.Second, t.TempDir())
	err := adapter.Execute(t.Context(), filepath.Join(t.TempDir(), "hooks", "install.sh"), types.HookTypeInstall)
	require.NoError(t, err)
}

func TestShellHookRunsInScriptDirectory(t *testing.T) {
	bundle := t.TempDir()
	path := writeHook(t, bundle, types.HookTypePostInstall, "echo \"$WEBKERNEL_HOOK_TYPE $WEBKERNEL_APP_ROOT $EXTRA\" > marker.txt\necho done\n")
	var stdout bytes.Buffer
	adapter := NewShellHookAdapter(5*time.Second, "/srv/app")
	adapter.Env = []string{"EXTRA=yes"}
	adapter.Stdout = &stdout

	require.NoError(t, adapter.Execute(t.Context(), path, types.HookTypePostInstall))

	content, err := os.ReadFile(filepath.Join(bundle, "hooks", "marker.txt"))
	require.NoError(t, err)
	assert.Equal(t, "post-install /srv/app yes\n", string(content))
	assert.Equal(t, "done\n", stdout.String())
}

func TestShellHookRejectsForbiddenConstructs(t *testing.T) {
	tests := []struct {
		name        string
		script      string
		wantMessage string
	}{
		{name: "eval", script: "echo hi > marker.txt\neval \"echo pwned\"\n", wantMessage: `line 2: call to "eval"`},
		{name: "nested shell by path", script: "/bin/sh -c 'echo x'\n", wantMessage: `call to "/bin/sh"`},
		{name: "backticks", script: "echo hi > marker.txt\necho `id`\n", wantMessage: "command substitution"},
		{name: "dollar paren", script: "x=$(id)\n", wantMessage: "command substitution"},
		{name: "variable callee", script: "cmd=ls\n$cmd /\n", wantMessage: "line 2: indirect call through a variable"},
		{name: "process substitution", script: "cat <(echo x)\n", wantMessage: "process substitution"},
		{name: "inside a function", script: "run() {\n  source ./other.sh\n}\nrun\n", wantMessage: `line 2: call to "source"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundle := t.TempDir()
			path := writeHook(t, bundle, types.HookTypeInstall, tt.script)
			adapter := NewShellHookAdapter(5*time.Second, bundle)

			err := adapter.Execute(t.Context(), path, types.HookTypeInstall)
			require.Error(t, err)
			assert.True(t, types.IsKind(err, types.ErrorKindHook))
			assert.Contains(t, err.Error(), tt.wantMessage)
			_, statErr := os.Stat(filepath.Join(bundle, "hooks", "marker.txt"))
			assert.True(t, os.IsNotExist(statErr), "hook must not run after a rejected scan")
		})
	}
}

func TestShellHookFailures(t *testing.T) {
	tests := []struct {
		name        string
		script      string
		timeout     time.Duration
		wantMessage string
	}{
		{name: "non zero exit", script: "echo broken >&2\nexit 3\n", timeout: 5 * time.Second, wantMessage: "exited with status 3: broken"},
		{name: "syntax error", script: "if then fi\n", timeout: 5 * time.Second, wantMessage: "not valid shell"},
		{name: "time budget", script: "while true; do :; done\n", timeout: 200 * time.Millisecond, wantMessage: "exceeded its 200ms budget"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundle := t.TempDir()
			path := writeHook(t, bundle, types.HookTypeUpdate, tt.script)
			adapter := NewShellHookAdapter(tt.timeout, bundle)

			err := adapter.Execute(t.Context(), path, types.HookTypeUpdate)
			require.Error(t, err)
			assert.True(t, types.IsKind(err, types.ErrorKindHook))
			assert.Contains(t, err.Error(), tt.wantMessage)
		})
	}
}

func TestDenyCallsAtRuntime(t *testing.T) {
	_, err := denyCalls(t.Context(), []string{"/usr/bin/env", "bash"})
	require.Error(t, err)

	args, err := denyCalls(t.Context(), []string{"echo", "ok"})
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "ok"}, args)

	called := false
	handler := denyExec(func(_ context.Context, _ []string) error {
		called = true
		return nil
	})
	require.Error(t, handler(t.Context(), []string{"sudo", "id"}))
	assert.False(t, called)
	require.NoError(t, handler(t.Context(), []string{"true"}))
	assert.True(t, called)
}
