package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("GS_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("GS_HOME", "/custom/gs")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/config.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/config.toml")
		}
		if defaults["base_dir"] != "/custom/gs" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/custom/gs")
		}
		if defaults["log_dir"] != "/custom/gs/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/custom/gs/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("GS_CONFIG_PATH", "")
		t.Setenv("GS_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "gs.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "gs")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}

		wantLog := filepath.Join(wantBase, "log")
		if defaults["log_dir"] != wantLog {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], wantLog)
		}
	})
}

func TestLoadEnv(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		if err := loadEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
			t.Fatalf("loadEnv() error = %v", err)
		}
	})

	t.Run("does not override the environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		content := "GS_HOME=/from/dotenv\nGS_PASSPHRASE=secret\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("GS_HOME", "/from/env")
		t.Setenv("GS_PASSPHRASE", "")
		os.Unsetenv("GS_PASSPHRASE")

		if err := loadEnv(path); err != nil {
			t.Fatalf("loadEnv() error = %v", err)
		}
		if got := os.Getenv("GS_HOME"); got != "/from/env" {
			t.Errorf("GS_HOME = %q, want /from/env", got)
		}
		if got := os.Getenv("GS_PASSPHRASE"); got != "secret" {
			t.Errorf("GS_PASSPHRASE = %q, want secret", got)
		}
	})
}
