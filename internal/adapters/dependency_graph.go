package adapters

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	"webkernel-modules/internal/ports"
	"webkernel-modules/internal/shared"
	"webkernel-modules/internal/types"
)

var defaultDependencyCommand = []string{"composer", "dump-autoload", "--optimize"}

// ComposerAdapter regenerates the PHP autoloader after modules change.
type ComposerAdapter struct {
	Command []string
	Dir     string
}

func NewComposerAdapter(command []string, dir string) ComposerAdapter {
	if len(command) == 0 {
		command = defaultDependencyCommand
	}
	return ComposerAdapter{Command: command, Dir: dir}
}

// Regenerate runs the configured command. A missing binary or non-zero exit
// is reported through the result; only context cancellation is an error.
func (a ComposerAdapter) Regenerate(ctx context.Context) (types.CommandResult, error) {
	command := a.Command
	if len(command) == 0 {
		command = defaultDependencyCommand
	}
	result := types.CommandResult{Command: append([]string(nil), command...)}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = a.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	result.Stdout = strings.TrimSpace(stdout.String())
	result.Stderr = strings.TrimSpace(stderr.String())
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			log.Ctx(ctx).Warn().Str("command", command[0]).Msg("dependency command not found, skipping regeneration")
		} else {
			log.Ctx(ctx).Warn().Err(shared.CommandError(stderr.Bytes(), err)).Str("command", strings.Join(command, " ")).Msg("dependency regeneration failed")
		}
		if result.Stderr == "" {
			result.Stderr = err.Error()
		}
		return result, nil
	}
	result.Success = true
	return result, nil
}

var _ ports.DependencyGraphPort = ComposerAdapter{}
