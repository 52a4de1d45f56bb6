package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("/home/user/.local/share/gs", "laptop")
	original.Server.Vault = VaultConfig{Type: "minio", MinioEndpoint: "localhost:9000", MinioBucket: "gs"}
	original.Client.ClientID = "c-123"
	original.Client.WatchGroups = []WatchGroupConfig{
		{LocalPath: "/home/user/notes", GroupName: "notes", ExcludeDotDirs: true, ExcludedDirs: []string{"build"}},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.Server.Vault.Type != "minio" || got.Server.Vault.MinioEndpoint != "localhost:9000" {
		t.Errorf("Server.Vault = %+v", got.Server.Vault)
	}
	if got.Server.Database.Path != original.Server.Database.Path {
		t.Errorf("Server.Database.Path = %q, want %q", got.Server.Database.Path, original.Server.Database.Path)
	}
	if got.Client.ClientID != "c-123" {
		t.Errorf("Client.ClientID = %q, want %q", got.Client.ClientID, "c-123")
	}
	if len(got.Client.WatchGroups) != 1 {
		t.Fatalf("len(Client.WatchGroups) = %d, want 1", len(got.Client.WatchGroups))
	}
	wg := got.Client.WatchGroups[0]
	if wg.GroupName != "notes" || !wg.ExcludeDotDirs || len(wg.ExcludedDirs) != 1 {
		t.Errorf("WatchGroups[0] = %+v", wg)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/gs", "host-1")

	if cfg.LogDir != "/data/gs/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/gs/log")
	}
	if cfg.Client.HostName != "host-1" {
		t.Errorf("Client.HostName = %q, want %q", cfg.Client.HostName, "host-1")
	}
	if cfg.Server.Database.Type != "sqlite" {
		t.Errorf("Server.Database.Type = %q, want sqlite", cfg.Server.Database.Type)
	}
	if cfg.Server.Encryption.PublicKeyPath != "/data/gs/keys/gs.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Server.Encryption.PublicKeyPath, "/data/gs/keys/gs.pub")
	}
	if len(cfg.Client.Ignore) != 1 || cfg.Client.Ignore[0] != ".DS_Store" {
		t.Errorf("Client.Ignore = %v, want [.DS_Store]", cfg.Client.Ignore)
	}
}

func TestClientConfig_Intervals(t *testing.T) {
	t.Run("defaults when unset", func(t *testing.T) {
		var c ClientConfig
		if got := c.MinPollInterval(); got != 2*time.Second {
			t.Errorf("MinPollInterval() = %v, want 2s", got)
		}
		if got := c.PollInterval(); got != 30*time.Second {
			t.Errorf("PollInterval() = %v, want 30s", got)
		}
		if got := c.RequestTimeout(); got != time.Minute {
			t.Errorf("RequestTimeout() = %v, want 1m", got)
		}
	})

	t.Run("poll interval never below floor", func(t *testing.T) {
		c := ClientConfig{MinPollIntervalMs: 10_000, PollIntervalMs: 1_000}
		if got := c.PollInterval(); got != 10*time.Second {
			t.Errorf("PollInterval() = %v, want 10s", got)
		}
	})
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "gs.toml")

		if err := Init(path, NewConfig(dir, "h1")); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "gs.toml")
		cfg := NewConfig(dir, "h1")

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gs.toml")
	cfg := NewConfig(dir, "h1")

	if err := Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	cfg.Client.ClientID = "assigned-id"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile() error = %v", err)
	}
	if got.Client.ClientID != "assigned-id" {
		t.Errorf("Client.ClientID = %q, want %q", got.Client.ClientID, "assigned-id")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want only the config file", len(entries))
	}
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "gs.toml")
		cfg := NewConfig(dir, "read-test")
		cfg.Server.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Client.HostName != "read-test" {
			t.Errorf("Client.HostName = %q, want %q", got.Client.HostName, "read-test")
		}
		if got.Server.Database.Type != "memory" {
			t.Errorf("Server.Database.Type = %q, want memory", got.Server.Database.Type)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/gs.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
