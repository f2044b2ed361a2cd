package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ConfigBackend is where persisted settings live. Keys are the dotted names
// listed by ValidKeys.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// These variables point qdsupport at explicit files instead of the platform
// stores, on every OS. Containers and tests use them.
const (
	configFileEnv  = "QDSUPPORT_CONFIG_FILE"
	secretsFileEnv = "QDSUPPORT_SECRETS_FILE"
)

func newPlatformBackend() ConfigBackend {
	if p := os.Getenv(configFileEnv); p != "" {
		return openFileBackend(p)
	}
	return nativeBackend()
}

// appPath returns name inside qdsupport's directory under the XDG base named
// by env, defaulting to $HOME/homeRel.
func appPath(env, homeRel, name string) string {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join("qdsupport-data", name)
		}
		base = filepath.Join(home, homeRel)
	}
	return filepath.Join(base, "qdsupport", name)
}

// apiKeyHint completes MissingAPIKeyHint with where the key can be stored.
func apiKeyHint() string {
	where := nativeSecretStore()
	if p := os.Getenv(secretsFileEnv); p != "" {
		where = p
	}
	return fmt.Sprintf(" or store it in %s (service: %s, account: %s)", where, keychainService, openRouterAccount)
}

// fileBackend keeps settings in one flat JSON object. Numbers stay
// json.Number so integers round-trip exactly.
type fileBackend struct {
	path string
	data map[string]any

	// broken is set when the file exists but cannot be used; writes are then
	// refused so the user's file is never clobbered.
	broken error
}

func openFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, data: make(map[string]any)}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return b
	}
	if err == nil {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		err = dec.Decode(&b.data)
	}
	if err != nil {
		b.broken = err
		b.data = make(map[string]any)
		slog.Warn("config file unusable, using defaults", "path", path, "error", err)
		return b
	}
	for k := range b.data {
		if _, ok := lookupSpec(k); !ok {
			slog.Warn("ignoring unknown config key", "path", path, "key", k)
		}
	}
	return b
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	switch val := v.(type) {
	case string:
		return val, true, nil
	case json.Number:
		return val.String(), true, nil
	case bool:
		return strconv.FormatBool(val), true, nil
	default:
		return "", true, fmt.Errorf("%s: want a scalar, got %T", key, v)
	}
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	var raw string
	switch val := v.(type) {
	case json.Number:
		raw = val.String()
	case string:
		raw = strings.TrimSpace(val)
	default:
		return 0, true, fmt.Errorf("%s: want an integer, got %T", key, v)
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return i, true, nil
}

func (b *fileBackend) SetString(key, val string) error {
	b.data[key] = val
	return b.save()
}

func (b *fileBackend) SetInt(key string, val int) error {
	b.data[key] = json.Number(strconv.Itoa(val))
	return b.save()
}

func (b *fileBackend) Delete(key string) error {
	if _, ok := b.data[key]; !ok {
		return nil
	}
	delete(b.data, key)
	return b.save()
}

func (b *fileBackend) save() error {
	if b.broken != nil {
		return fmt.Errorf("refusing to rewrite %s, fix or remove it first: %w", b.path, b.broken)
	}
	return writeJSONFile(b.path, b.data)
}

// errSecretNotFound is returned by secret stores when nothing is stored
// under the service and account.
var errSecretNotFound = errors.New("secret not found")

// secretsFile is a JSON secret store laid out as service -> account -> value.
type secretsFile string

func (p secretsFile) read() (map[string]map[string]string, error) {
	secrets := make(map[string]map[string]string)
	raw, err := os.ReadFile(string(p))
	if errors.Is(err, fs.ErrNotExist) {
		return secrets, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	if err := json.Unmarshal(raw, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file %s: %w", p, err)
	}
	return secrets, nil
}

func (p secretsFile) get(service, account string) (string, error) {
	secrets, err := p.read()
	if err != nil {
		return "", err
	}
	val, ok := secrets[service][account]
	if !ok {
		return "", fmt.Errorf("%s/%s: %w", service, account, errSecretNotFound)
	}
	return val, nil
}

func (p secretsFile) set(service, account, value string) error {
	secrets, err := p.read()
	if err != nil {
		return err
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value
	return writeJSONFile(string(p), secrets)
}

// writeJSONFile replaces path with the indented JSON of v. The file is
// written next to path and renamed into place, readable by the owner only.
func writeJSONFile(path string, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(out, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
