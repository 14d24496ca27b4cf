package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"webkernel-modules/internal/adapters"
	"webkernel-modules/internal/core"
	"webkernel-modules/internal/ports"
	"webkernel-modules/internal/types"
)

const (
	installLockPrefix = "install-module:"
	targetLockPrefix  = "install-target:"
	kernelLockName    = "update-kernel"
	restoreLockPrefix = "restore-backup:"
)

type Service struct {
	Settings  Settings
	Providers []ports.SourceProviderPort
	Locks     ports.LockPort
	Backups   ports.BackupPort
	Hooks     ports.HookPort
	Validator ports.ValidatorPort
	Metadata  ports.MetadataPort
	Deps      ports.DependencyGraphPort
	Ledger    ports.LedgerPort
	Tokens    ports.TokenStorePort
	Config    ports.SettingsStorePort
	Clock     func() time.Time
}

type serviceOptions struct {
	prompter ports.PrompterPort
	tokens   ports.TokenStorePort
	clock    func() time.Time
}

type Option func(*serviceOptions)

// WithPrompter lets providers ask the operator for credentials.
func WithPrompter(prompter ports.PrompterPort) Option {
	return func(o *serviceOptions) {
		o.prompter = prompter
	}
}

func WithTokenStore(tokens ports.TokenStorePort) Option {
	return func(o *serviceOptions) {
		o.tokens = tokens
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *serviceOptions) {
		o.clock = clock
	}
}

func NewService(settings Settings, opts ...Option) Service {
	settings = settings.withDefaults()
	options := serviceOptions{clock: time.Now}
	for _, opt := range opts {
		opt(&options)
	}
	state := settings.StatePath()
	store := adapters.NewConfigStoreAdapter(state)
	var tokens ports.TokenStorePort = store
	if options.tokens != nil {
		tokens = options.tokens
	}
	httpConfig := func(base string) adapters.HTTPProviderConfig {
		return adapters.HTTPProviderConfig{
			APIBase:         base,
			Timeout:         settings.HTTPTimeout,
			DownloadTimeout: settings.DownloadTimeout,
			MaxRedirects:    settings.MaxRedirects,
		}
	}
	locks := adapters.NewFileLockAdapter(filepath.Join(state, "locks"), settings.LockStaleAfter)
	locks.Clock = options.clock
	backups := adapters.NewBackupStoreAdapter(filepath.Join(state, "backups"))
	backups.Clock = options.clock
	return Service{
		Settings: settings,
		Providers: []ports.SourceProviderPort{
			adapters.NewRegistryProviderAdapter(httpConfig(settings.RegistryAPI), tokens),
			adapters.NewGitHubProviderAdapter(httpConfig(settings.GitHubAPI), tokens, options.prompter),
		},
		Locks:     locks,
		Backups:   backups,
		Hooks:     adapters.NewShellHookAdapter(settings.HookTimeout, settings.AppRoot),
		Validator: adapters.NewModuleValidatorAdapter(),
		Metadata:  adapters.NewModuleDeclarationAdapter(),
		Deps:      adapters.NewComposerAdapter(settings.DependencyCommand, settings.AppRoot),
		Ledger:    adapters.NewInstallLedgerAdapter(state),
		Tokens:    tokens,
		Config:    store,
		Clock:     options.clock,
	}
}

func timeNow(clock func() time.Time) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock().UTC()
}

// providerFor returns the first provider that accepts identifier.
func (s Service) providerFor(identifier string) (ports.SourceProviderPort, error) {
	for _, provider := range s.Providers {
		if provider.Supports(identifier) {
			return provider, nil
		}
	}
	return nil, types.NewModuleError("no provider supports identifier "+identifier, nil)
}

func withToken(ctx context.Context, token string) context.Context {
	if token = strings.TrimSpace(token); token != "" {
		return types.WithSessionToken(ctx, token)
	}
	return ctx
}

// installLockName keys the install lock on the repository rather than on
// the spelling of the identifier.
func installLockName(provider string, identifier string) string {
	if ref, ok := core.ParseGitIdentifier(identifier); ok {
		return installLockPrefix + provider + ":" + strings.ToLower(ref.Host+"/"+ref.FullName())
	}
	return installLockPrefix + provider + ":" + identifier
}

// acquire takes the named lock. The returned release func is safe to defer
// even when acquisition failed.
func (s Service) acquire(ctx context.Context, operation string) (func(), error) {
	handle := s.Locks.Lock(operation)
	release := func() {
		if err := handle.Release(); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("lock", operation).Msg("failed to release lock")
			return
		}
		log.Ctx(ctx).Debug().Str("lock", operation).Msg("lock released")
	}
	if err := handle.Acquire(ctx, s.Settings.LockTimeout); err != nil {
		return release, err
	}
	log.Ctx(ctx).Debug().Str("lock", operation).Msg("lock acquired")
	return release, nil
}

// resolveRelease fetches releases and picks version, or the newest when
// version is empty. An explicit version is looked up among prereleases too.
func (s Service) resolveRelease(ctx context.Context, provider ports.SourceProviderPort, identifier string, version string, includePrereleases bool) (types.Release, error) {
	version = strings.TrimSpace(version)
	releases, err := provider.FetchReleases(ctx, identifier, includePrereleases || version != "")
	if err != nil {
		return types.Release{}, err
	}
	release, err := core.SelectRelease(releases, version)
	if err != nil {
		return types.Release{}, err
	}
	log.Ctx(ctx).Info().
		Str("provider", provider.Name()).
		Str("release", release.Tag).
		Int("candidates", len(releases)).
		Bool("branch", release.IsBranchFallback).
		Msg("release resolved")
	return release, nil
}

func describeFailure(err error) (string, types.ErrorKind) {
	kind := types.KindOf(err)
	if kind == "" {
		kind = types.ErrorKindModule
	}
	return err.Error(), kind
}

func removeStaging(ctx context.Context, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("dir", dir).Msg("failed to remove staging directory")
	}
}
