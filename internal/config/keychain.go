package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"strings"
)

const (
	apiTokenAccount   = "api_token"
	openRouterAccount = "openrouter_api_key"
)

// Keychain abstracts the platform secret store.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the secret store: the file named by
// QDSUPPORT_SECRETS_FILE when set, the platform store otherwise.
func NewKeychain() Keychain {
	if p := os.Getenv(secretsFileEnv); p != "" {
		return fileKeychain{secretsFile(p)}
	}
	return platformKeychain{}
}

type platformKeychain struct{}

func (platformKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

type fileKeychain struct{ file secretsFile }

func (k fileKeychain) Get(service, account string) (string, error) {
	return k.file.get(service, account)
}

func (k fileKeychain) Set(service, account, value string) error {
	return k.file.set(service, account, value)
}

// GetAPIToken returns the bearer token protecting the HTTP API.
// QDSUPPORT_API_TOKEN wins; otherwise the token is read from the secret store
// and generated on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if tok := os.Getenv("QDSUPPORT_API_TOKEN"); tok != "" {
		return tok, nil
	}
	if tok, err := kc.Get(keychainService, apiTokenAccount); err == nil && tok != "" {
		return tok, nil
	}
	tok := rand.Text()
	if err := kc.Set(keychainService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing generated API token: %w", err)
	}
	return tok, nil
}
