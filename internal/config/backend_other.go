//go:build !darwin

package config

// Outside macOS settings live in $XDG_CONFIG_HOME/qdsupport/config.json and
// secrets in $XDG_DATA_HOME/qdsupport/secrets.json.

func defaultDataDir() string {
	return appPath("XDG_DATA_HOME", ".local/share", "")
}

func nativeBackend() ConfigBackend {
	return openFileBackend(appPath("XDG_CONFIG_HOME", ".config", "config.json"))
}

func defaultSecretsFile() secretsFile {
	return secretsFile(appPath("XDG_DATA_HOME", ".local/share", "secrets.json"))
}

func nativeSecretStore() string { return string(defaultSecretsFile()) }

func keychainGet(service, account string) (string, error) {
	return defaultSecretsFile().get(service, account)
}

func keychainSet(service, account, value string) error {
	return defaultSecretsFile().set(service, account, value)
}
