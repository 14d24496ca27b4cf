package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"webkernel-modules/internal/ports"
	"webkernel-modules/internal/types"
)

// terminalPrompter asks for repository credentials on an interactive
// terminal.
type terminalPrompter struct {
	in  io.Reader
	out io.Writer
}

var _ ports.PrompterPort = terminalPrompter{}

// newTerminalPrompter returns nil unless stdin is a terminal, which keeps
// providers from prompting in scripts and CI.
func newTerminalPrompter(in io.Reader, out io.Writer) ports.PrompterPort {
	file, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) {
		return nil
	}
	return terminalPrompter{in: in, out: out}
}

func (p terminalPrompter) ConfirmRepository(ctx context.Context, owner string, repo string) (bool, error) {
	confirmed := false
	field := huh.NewConfirm().
		Title(fmt.Sprintf("%s/%s was not found. Is it a private repository?", owner, repo)).
		Description("Answer yes to provide an access token.").
		Affirmative("Yes").
		Negative("No").
		Value(&confirmed)
	if err := p.run(ctx, huh.NewGroup(field)); err != nil {
		return false, err
	}
	return confirmed, nil
}

func (p terminalPrompter) RequestToken(ctx context.Context, owner string, repo string) (string, types.TokenScope, error) {
	token := ""
	scope := types.TokenScopeRepo
	input := huh.NewInput().
		Title("Access token for " + owner + "/" + repo).
		EchoMode(huh.EchoModePassword).
		Validate(func(value string) error {
			if strings.TrimSpace(value) == "" {
				return errors.New("token is required")
			}
			return nil
		}).
		Value(&token)
	selectScope := huh.NewSelect[types.TokenScope]().
		Title("Remember this token for").
		Options(
			huh.NewOption("this repository", types.TokenScopeRepo),
			huh.NewOption("every repository of "+owner, types.TokenScopeOwner),
			huh.NewOption("this session only", types.TokenScopeSession),
		).
		Value(&scope)
	if err := p.run(ctx, huh.NewGroup(input, selectScope)); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(token), scope, nil
}

func (p terminalPrompter) run(ctx context.Context, group *huh.Group) error {
	err := huh.NewForm(group).
		WithInput(p.in).
		WithOutput(p.out).
		RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return types.NewModuleError("credential prompt aborted", err)
	}
	return err
}
