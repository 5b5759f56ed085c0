package config

import (
	"os"
	"path/filepath"
)

// WeftPath returns the root directory for weft data.
// It uses $WEFT_PATH if set, otherwise defaults to ~/.weft.
func WeftPath() string {
	if v := os.Getenv("WEFT_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".weft")
	}
	return filepath.Join(home, ".weft")
}

// ConfigPath returns the path to the weft config file.
func ConfigPath() string {
	return filepath.Join(WeftPath(), "config.yaml")
}

// DotenvPath returns the path to the weft .env file.
func DotenvPath() string {
	return filepath.Join(WeftPath(), ".env")
}
