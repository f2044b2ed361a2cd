//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// On macOS settings live in UserDefaults under defaultsDomain and secrets in
// the login Keychain.
const defaultsDomain = "com.quickdeliver.qdsupport"

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "qdsupport-data"
	}
	return filepath.Join(home, "Library", "Application Support", "qdsupport")
}

func nativeBackend() ConfigBackend { return defaultsBackend(defaultsDomain) }

func nativeSecretStore() string { return "the macOS Keychain" }

// defaultsBackend drives the `defaults` tool for one domain.
type defaultsBackend string

// run executes `defaults <verb> <domain> args...`. missing reports the exit
// status 1 that `defaults` uses for an absent key.
func (d defaultsBackend) run(verb string, args ...string) (out string, missing bool, err error) {
	argv := append([]string{verb, string(d)}, args...)
	raw, err := exec.Command("defaults", argv...).CombinedOutput()
	out = strings.TrimSpace(string(raw))
	if err == nil {
		return out, false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && verb != "write" {
		return "", true, nil
	}
	return "", false, fmt.Errorf("defaults %s %s: %w: %s", verb, strings.Join(args, " "), err, out)
}

func (d defaultsBackend) GetString(key string) (string, bool, error) {
	out, missing, err := d.run("read", key)
	return out, !missing && err == nil, err
}

func (d defaultsBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := d.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %q is not an integer", key, s)
	}
	return i, true, nil
}

func (d defaultsBackend) SetString(key, val string) error {
	_, _, err := d.run("write", key, "-string", val)
	return err
}

func (d defaultsBackend) SetInt(key string, val int) error {
	_, _, err := d.run("write", key, "-int", strconv.Itoa(val))
	return err
}

func (d defaultsBackend) Delete(key string) error {
	_, _, err := d.run("delete", key)
	return err
}

func keychainGet(service, account string) (string, error) {
	out, err := exec.Command("security", "find-generic-password", "-s", service, "-a", account, "-w").Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 44 {
			return "", fmt.Errorf("%s/%s: %w", service, account, errSecretNotFound)
		}
		return "", fmt.Errorf("reading keychain item %s/%s: %w", service, account, err)
	}
	return string(out), nil
}

func keychainSet(service, account, value string) error {
	if err := exec.Command("security", "add-generic-password", "-U", "-s", service, "-a", account, "-w", value).Run(); err != nil {
		return fmt.Errorf("writing keychain item %s/%s: %w", service, account, err)
	}
	return nil
}
