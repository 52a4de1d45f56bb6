package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvFile is read from the working directory before defaults are resolved.
const EnvFile = ".env"

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables, optionally supplied through a .env file:
//   - GS_CONFIG_PATH: config file location (default: ~/.config/gs.toml)
//   - GS_HOME: base directory for gs data (default: ~/.local/share/gs)
func GetDefaults() (map[string]string, error) {
	if err := loadEnv(EnvFile); err != nil {
		return nil, err
	}

	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// loadEnv sets variables from path without overriding the environment.
// A missing file is not an error.
func loadEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// getConfigPath returns the config file path, checking GS_CONFIG_PATH env var first,
// then falling back to the default ~/.config/gs.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("GS_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "gs.toml"), nil
}

// getBaseDir returns the base directory for gs data, checking GS_HOME env var first,
// then falling back to the XDG default ~/.local/share/gs.
func getBaseDir() (string, error) {
	if path := os.Getenv("GS_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "gs"), nil
}
