package adapters

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"webkernel-modules/internal/ports"
	"webkernel-modules/internal/types"
)

const (
	configFileName    = "config.json"
	configKeyFileName = "config.key"
	cipherPrefix      = "enc:v1:"
	hkdfInfo          = "webkernel-modules config v1"

	EnvConfigKey = "WEBKERNEL_MODULES_KEY"
	EnvAppKey    = "APP_KEY"
)

type sessionTokens struct {
	mu     sync.Mutex
	tokens map[string]string
}

// ConfigStoreAdapter persists settings and encrypted provider tokens in
// <dir>/config.json. Session scoped tokens never reach the disk.
type ConfigStoreAdapter struct {
	Dir    string
	Getenv func(string) string
	Clock  func() time.Time

	mu      *sync.Mutex
	session *sessionTokens
}

func NewConfigStoreAdapter(dir string) ConfigStoreAdapter {
	return ConfigStoreAdapter{
		Dir:     dir,
		Getenv:  os.Getenv,
		Clock:   time.Now,
		mu:      &sync.Mutex{},
		session: &sessionTokens{tokens: map[string]string{}},
	}
}

func (a ConfigStoreAdapter) Path() string {
	return filepath.Join(a.Dir, configFileName)
}

func tokenSlot(owner string, repo string) string {
	if repo == "" {
		return owner
	}
	return owner + "/" + repo
}

func (a ConfigStoreAdapter) lock() func() {
	if a.mu == nil {
		return func() {}
	}
	a.mu.Lock()
	return a.mu.Unlock
}

func (a ConfigStoreAdapter) LookupToken(owner string, repo string) (string, error) {
	if a.session != nil {
		a.session.mu.Lock()
		token, ok := a.session.tokens[tokenSlot(owner, repo)]
		if !ok && repo != "" {
			token, ok = a.session.tokens[owner]
		}
		a.session.mu.Unlock()
		if ok {
			return token, nil
		}
	}
	defer a.lock()()
	record, err := a.load()
	if err != nil {
		return "", err
	}
	entry, ok := record.Tokens[owner]
	if !ok {
		return "", nil
	}
	if sealed, ok := entry.Repos[repo]; ok && repo != "" {
		return a.open(sealed, tokenSlot(owner, repo))
	}
	if entry.Token == "" {
		return "", nil
	}
	return a.open(entry.Token, owner)
}

func (a ConfigStoreAdapter) SaveToken(owner string, repo string, scope types.TokenScope, token string) error {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("token owner is empty")
	}
	if strings.TrimSpace(token) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("token is empty")
	}
	if scope == types.TokenScopeOwner {
		repo = ""
	}
	if scope == types.TokenScopeSession {
		if a.session == nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg("config store has no session storage")
		}
		a.session.mu.Lock()
		a.session.tokens[tokenSlot(owner, repo)] = token
		a.session.mu.Unlock()
		return nil
	}
	defer a.lock()()
	record, err := a.load()
	if err != nil {
		return err
	}
	sealed, err := a.seal(token, tokenSlot(owner, repo))
	if err != nil {
		return err
	}
	entry := record.Tokens[owner]
	if repo == "" {
		entry.Token = sealed
	} else {
		if entry.Repos == nil {
			entry.Repos = map[string]string{}
		}
		entry.Repos[repo] = sealed
	}
	record.Tokens[owner] = entry
	return a.save(record)
}

// ForgetToken drops the repository override, or every token of owner when
// repo is empty.
func (a ConfigStoreAdapter) ForgetToken(owner string, repo string) error {
	if a.session != nil {
		a.session.mu.Lock()
		delete(a.session.tokens, tokenSlot(owner, repo))
		a.session.mu.Unlock()
	}
	defer a.lock()()
	record, err := a.load()
	if err != nil {
		return err
	}
	entry, ok := record.Tokens[owner]
	if !ok {
		return nil
	}
	if repo == "" {
		delete(record.Tokens, owner)
	} else {
		delete(entry.Repos, repo)
		if entry.Token == "" && len(entry.Repos) == 0 {
			delete(record.Tokens, owner)
		} else {
			record.Tokens[owner] = entry
		}
	}
	return a.save(record)
}

func (a ConfigStoreAdapter) Get(key string) (string, bool, error) {
	defer a.lock()()
	record, err := a.load()
	if err != nil {
		return "", false, err
	}
	value, ok := record.Settings[key]
	return value, ok, nil
}

// Settings returns a copy of every stored setting.
func (a ConfigStoreAdapter) Settings() (map[string]string, error) {
	defer a.lock()()
	record, err := a.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(record.Settings))
	for key, value := range record.Settings {
		out[key] = value
	}
	return out, nil
}

func (a ConfigStoreAdapter) Set(key string, value string) error {
	if strings.TrimSpace(key) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("setting key is empty")
	}
	defer a.lock()()
	record, err := a.load()
	if err != nil {
		return err
	}
	record.Settings[key] = value
	return a.save(record)
}

func (a ConfigStoreAdapter) load() (types.ConfigRecord, error) {
	record := types.ConfigRecord{Tokens: map[string]types.OwnerTokens{}, Settings: map[string]string{}}
	data, err := os.ReadFile(a.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return record, nil
		}
		return record, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read config store").
			WithCause(err)
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("config store is corrupt: " + a.Path()).
			WithCause(err)
	}
	if record.Tokens == nil {
		record.Tokens = map[string]types.OwnerTokens{}
	}
	if record.Settings == nil {
		record.Settings = map[string]string{}
	}
	return record, nil
}

func (a ConfigStoreAdapter) save(record types.ConfigRecord) error {
	record.UpdatedAt = a.now()
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode config store").
			WithCause(err)
	}
	return writeFileAtomic(a.Path(), append(data, '\n'), 0600)
}

func (a ConfigStoreAdapter) now() time.Time {
	if a.Clock == nil {
		return time.Now().UTC()
	}
	return a.Clock().UTC()
}

// writeFileAtomic replaces path through a temporary sibling so readers never
// observe a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create " + dir).
			WithCause(err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create temporary file").
			WithCause(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to set permissions on " + tmpName).
			WithCause(err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write " + tmpName).
			WithCause(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to sync " + tmpName).
			WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to close " + tmpName).
			WithCause(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to replace " + path).
			WithCause(err)
	}
	return nil
}

// key returns the 32 byte encryption key: an explicit base64 key from the
// environment, a key derived from the application key, or a generated key
// file next to the store.
func (a ConfigStoreAdapter) key() ([]byte, error) {
	getenv := a.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if raw := strings.TrimSpace(getenv(EnvConfigKey)); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil || len(key) != chacha20poly1305.KeySize {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(EnvConfigKey + " must be 32 bytes of base64")
		}
		return key, nil
	}
	if appKey := strings.TrimSpace(getenv(EnvAppKey)); appKey != "" {
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(appKey), nil, []byte(hkdfInfo)), key); err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to derive config key").
				WithCause(err)
		}
		return key, nil
	}
	return a.keyFile()
}

func (a ConfigStoreAdapter) keyFile() ([]byte, error) {
	path := filepath.Join(a.Dir, configKeyFileName)
	data, err := os.ReadFile(path)
	if err == nil {
		key, decodeErr := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if decodeErr != nil || len(key) != chacha20poly1305.KeySize {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("config key file is corrupt: " + path)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read config key").
			WithCause(err)
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to generate config key").
			WithCause(err)
	}
	if err := writeFileAtomic(path, []byte(base64.StdEncoding.EncodeToString(key)+"\n"), 0600); err != nil {
		return nil, err
	}
	return key, nil
}

// seal encrypts plaintext bound to slot, so a ciphertext copied to another
// owner or repository fails to open.
func (a ConfigStoreAdapter) seal(plaintext string, slot string) (string, error) {
	key, err := a.key()
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to initialise cipher").
			WithCause(err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to generate nonce").
			WithCause(err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(slot))
	return cipherPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (a ConfigStoreAdapter) open(value string, slot string) (string, error) {
	if !strings.HasPrefix(value, cipherPrefix) {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("stored token for " + slot + " is not encrypted")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, cipherPrefix))
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("stored token for " + slot + " is corrupt").
			WithCause(err)
	}
	key, err := a.key()
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to initialise cipher").
			WithCause(err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("stored token for " + slot + " is truncated")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(slot))
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("stored token for " + slot + " cannot be decrypted with the current key").
			WithCause(err)
	}
	return string(plaintext), nil
}

var (
	_ ports.TokenStorePort    = ConfigStoreAdapter{}
	_ ports.SettingsStorePort = ConfigStoreAdapter{}
)
