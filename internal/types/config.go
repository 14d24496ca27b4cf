package types

import (
	"strings"
	"time"
)

type TokenScope string

const (
	TokenScopeRepo    TokenScope = "repo"
	TokenScopeOwner   TokenScope = "owner"
	TokenScopeSession TokenScope = "session"
)

func ParseTokenScope(value string) (TokenScope, bool) {
	switch TokenScope(strings.ToLower(strings.TrimSpace(value))) {
	case TokenScopeRepo:
		return TokenScopeRepo, true
	case TokenScopeOwner:
		return TokenScopeOwner, true
	case TokenScopeSession:
		return TokenScopeSession, true
	default:
		return "", false
	}
}

// OwnerTokens holds the encrypted owner-wide token and per-repository
// overrides for one owner.
type OwnerTokens struct {
	Token string            `json:"token,omitempty"`
	Repos map[string]string `json:"repos,omitempty"`
}

// ConfigRecord is the on-disk shape of the config store. Token values are
// ciphertext.
type ConfigRecord struct {
	Tokens    map[string]OwnerTokens `json:"tokens"`
	Settings  map[string]string      `json:"settings"`
	UpdatedAt time.Time              `json:"updated_at"`
}
