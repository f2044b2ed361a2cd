//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestXDGLocations(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))

	if got, want := defaultDataDir(), filepath.Join(root, "data", "qdsupport"); got != want {
		t.Errorf("defaultDataDir = %q, want %q", got, want)
	}

	if err := SetKey("log.level", "debug"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "config", "qdsupport", "config.json")); err != nil {
		t.Errorf("config file not under XDG_CONFIG_HOME: %v", err)
	}

	if err := NewKeychain().Set(keychainService, apiTokenAccount, "tok"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	secrets := filepath.Join(root, "data", "qdsupport", "secrets.json")
	if _, err := os.Stat(secrets); err != nil {
		t.Errorf("secrets file not under XDG_DATA_HOME: %v", err)
	}
	if got, err := NewKeychain().Get(keychainService, apiTokenAccount); err != nil || got != "tok" {
		t.Errorf("Get = %q, %v", got, err)
	}
	if hint := MissingAPIKeyHint(); !strings.Contains(hint, secrets) {
		t.Errorf("hint %q does not name %s", hint, secrets)
	}
}
