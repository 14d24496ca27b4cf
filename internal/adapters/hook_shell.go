package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"

	"webkernel-modules/internal/core"
	"webkernel-modules/internal/ports"
	"webkernel-modules/internal/types"
)

const (
	defaultHookTimeout = 60 * time.Second
	hookStderrTail     = 2048
)

// ShellHookAdapter runs bundle hook scripts with the mvdan.cc/sh interpreter
// after a static scan of their syntax tree.
type ShellHookAdapter struct {
	Timeout time.Duration
	AppRoot string
	// Env is appended to the process environment.
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

func NewShellHookAdapter(timeout time.Duration, appRoot string) ShellHookAdapter {
	return ShellHookAdapter{Timeout: timeout, AppRoot: appRoot}
}

func (a ShellHookAdapter) timeout() time.Duration {
	if a.Timeout <= 0 {
		return defaultHookTimeout
	}
	return a.Timeout
}

func (a ShellHookAdapter) Execute(ctx context.Context, hookPath string, hookType types.HookType) error {
	src, err := os.ReadFile(hookPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Ctx(ctx).Debug().Str("hook", string(hookType)).Msg("no hook script, skipping")
			return nil
		}
		return types.NewHookError("failed to read "+string(hookType)+" hook", err)
	}
	file, err := core.ParseHookScript(bytes.NewReader(src), filepath.Base(hookPath))
	if err != nil {
		return types.NewHookError(string(hookType)+" hook is not valid shell", err)
	}
	if findings := core.ScanHookScript(file); len(findings) > 0 {
		lines := make([]string, 0, len(findings))
		for _, finding := range findings {
			lines = append(lines, finding.String())
		}
		return types.NewHookError(fmt.Sprintf("%s hook rejected: %s", hookType, strings.Join(lines, "; ")), nil)
	}

	var stderr bytes.Buffer
	stderrOut := io.Writer(&stderr)
	if a.Stderr != nil {
		stderrOut = io.MultiWriter(&stderr, a.Stderr)
	}
	stdout := a.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	env := append(os.Environ(), a.Env...)
	env = append(env,
		"WEBKERNEL_HOOK_TYPE="+string(hookType),
		"WEBKERNEL_APP_ROOT="+a.AppRoot,
	)
	runner, err := interp.New(
		interp.Dir(filepath.Dir(hookPath)),
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(nil, stdout, stderrOut),
		interp.CallHandler(denyCalls),
		interp.ExecHandlers(denyExec),
	)
	if err != nil {
		return types.NewHookError("failed to prepare hook interpreter", err)
	}

	budget := a.timeout()
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	started := time.Now()
	runErr := runner.Run(runCtx, file)
	elapsed := time.Since(started)
	log.Ctx(ctx).Debug().Str("hook", string(hookType)).Dur("elapsed", elapsed).Msg("hook finished")

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) || elapsed > budget {
		return types.NewHookError(fmt.Sprintf("%s hook exceeded its %s budget (ran %s)", hookType, budget, elapsed.Round(time.Millisecond)), runErr)
	}
	if runErr != nil {
		var status interp.ExitStatus
		if errors.As(runErr, &status) {
			return types.NewHookError(fmt.Sprintf("%s hook exited with status %d%s", hookType, status, stderrSuffix(stderr.Bytes())), runErr)
		}
		return types.NewHookError(string(hookType)+" hook failed", runErr)
	}
	return nil
}

func denyCalls(ctx context.Context, args []string) ([]string, error) {
	if len(args) > 0 && core.IsDeniedCommand(args[0]) {
		return nil, fmt.Errorf("%q is not allowed in hooks", args[0])
	}
	return args, nil
}

func denyExec(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		if len(args) > 0 && core.IsDeniedCommand(args[0]) {
			return fmt.Errorf("%q is not allowed in hooks", args[0])
		}
		return next(ctx, args)
	}
}

func stderrSuffix(stderr []byte) string {
	text := strings.TrimSpace(string(stderr))
	if text == "" {
		return ""
	}
	if len(text) > hookStderrTail {
		text = text[len(text)-hookStderrTail:]
	}
	return ": " + text
}

var _ ports.HookPort = ShellHookAdapter{}
