package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the configuration shared by the gs server and client. A host
// normally fills in only the section it runs.
type Config struct {
	BaseDir string       `toml:"base_dir"`
	LogDir  string       `toml:"log_dir"`
	Log     LogConfig    `toml:"log"`
	Server  ServerConfig `toml:"server"`
	Client  ClientConfig `toml:"client"`
}

// LogConfig controls the file and stderr logger.
type LogConfig struct {
	MinLevel   string `toml:"min_level"` // "debug", "info", "warn" or "error"
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// ServerConfig holds everything the sync server needs.
type ServerConfig struct {
	ListenAddr     string           `toml:"listen_addr"`
	MaxUploadBytes int64            `toml:"max_upload_bytes"`
	ReadTimeoutMs  int64            `toml:"read_timeout_ms"`
	WriteTimeoutMs int64            `toml:"write_timeout_ms"`
	Database       DatabaseConfig   `toml:"database"`
	Vault          VaultConfig      `toml:"vault"`
	Staging        StagingConfig    `toml:"staging"`
	Encryption     EncryptionConfig `toml:"encryption"`
}

// DatabaseConfig represents configuration for the event and registry store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// VaultConfig represents configuration for the content backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "filesystem", "memory", "s3" or "minio"

	// filesystem
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`

	// s3
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`

	// Static credentials; when empty the default AWS chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// minio
	MinioEndpoint  string `toml:"minio_endpoint,omitempty"`
	MinioBucket    string `toml:"minio_bucket,omitempty"`
	MinioAccessKey string `toml:"minio_access_key,omitempty"`
	MinioSecretKey string `toml:"minio_secret_key,omitempty"`
	MinioUseSSL    bool   `toml:"minio_use_ssl,omitempty"`
}

// StagingConfig represents configuration for the upload staging area.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StagingConfig struct {
	Type       string `toml:"type"`                  // "filesystem" or "memory"
	StagingDir string `toml:"staging_dir,omitempty"` // only used for type=filesystem
	MaxSize    int64  `toml:"max_size"`              // total bytes held at once
}

// EncryptionConfig selects at-rest encryption of vault content.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path,omitempty"`
	PrivateKeyPath string `toml:"private_key_path,omitempty"`
}

// ClientConfig holds the client identity, server address and mapped
// directories.
type ClientConfig struct {
	ClientID          string             `toml:"client_id"`
	HostName          string             `toml:"host_name"`
	ServerURL         string             `toml:"server_url"`
	StateDir          string             `toml:"state_dir"`
	MinPollIntervalMs int64              `toml:"min_poll_interval_ms"`
	PollIntervalMs    int64              `toml:"poll_interval_ms"`
	RequestTimeoutMs  int64              `toml:"request_timeout_ms"`
	Ignore            []string           `toml:"ignore"`
	WatchGroups       []WatchGroupConfig `toml:"watch_groups"`
}

// WatchGroupConfig maps one local directory to a server group by name.
type WatchGroupConfig struct {
	LocalPath      string   `toml:"local_path"`
	GroupName      string   `toml:"group_name"`
	ExcludeDotDirs bool     `toml:"exclude_dot_dirs"`
	ExcludedDirs   []string `toml:"excluded_dirs"`
}

const (
	DefaultListenAddr        = "127.0.0.1:8731"
	DefaultServerURL         = "http://127.0.0.1:8731"
	DefaultMaxUploadBytes    = 1 << 30
	DefaultStagingMaxSize    = 4 << 30
	DefaultMinPollIntervalMs = 2_000
	DefaultPollIntervalMs    = 30_000
	DefaultRequestTimeoutMs  = 60_000
)

// NewConfig creates a Config rooted at baseDir with working defaults for both
// sections.
func NewConfig(baseDir, hostName string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Log:     LogConfig{MinLevel: "info", MaxSizeMB: 10, MaxBackups: 3},
		Server: ServerConfig{
			ListenAddr:     DefaultListenAddr,
			MaxUploadBytes: DefaultMaxUploadBytes,
			ReadTimeoutMs:  300_000,
			WriteTimeoutMs: 300_000,
			Database:       DatabaseConfig{Type: "sqlite", Path: filepath.Join(baseDir, "server", "gs.db")},
			Vault:          VaultConfig{Type: "filesystem", FSVaultRoot: filepath.Join(baseDir, "server", "vault")},
			Staging: StagingConfig{
				Type:       "filesystem",
				StagingDir: filepath.Join(baseDir, "server", "staging"),
				MaxSize:    DefaultStagingMaxSize,
			},
			Encryption: EncryptionConfig{
				Type:           "none",
				PublicKeyPath:  filepath.Join(baseDir, "keys", "gs.pub"),
				PrivateKeyPath: filepath.Join(baseDir, "keys", "gs.key"),
			},
		},
		Client: ClientConfig{
			HostName:          hostName,
			ServerURL:         DefaultServerURL,
			StateDir:          filepath.Join(baseDir, "client"),
			MinPollIntervalMs: DefaultMinPollIntervalMs,
			PollIntervalMs:    DefaultPollIntervalMs,
			RequestTimeoutMs:  DefaultRequestTimeoutMs,
			Ignore:            []string{".DS_Store"},
		},
	}
}

// MinPollInterval is the shortest gap allowed between two cycle starts.
func (c ClientConfig) MinPollInterval() time.Duration {
	return millis(c.MinPollIntervalMs, DefaultMinPollIntervalMs)
}

// PollInterval is the longest gap between two cycles without a file
// notification.
func (c ClientConfig) PollInterval() time.Duration {
	d := millis(c.PollIntervalMs, DefaultPollIntervalMs)
	if floor := c.MinPollInterval(); d < floor {
		return floor
	}
	return d
}

// RequestTimeout bounds every call to the server.
func (c ClientConfig) RequestTimeout() time.Duration {
	return millis(c.RequestTimeoutMs, DefaultRequestTimeoutMs)
}

func (s ServerConfig) ReadTimeout() time.Duration {
	return millis(s.ReadTimeoutMs, 300_000)
}

func (s ServerConfig) WriteTimeout() time.Duration {
	return millis(s.WriteTimeoutMs, 300_000)
}

func millis(v, def int64) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Millisecond
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile replaces path with cfg through a temp file and rename, so a
// crash never leaves a truncated config.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		f.Close()
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

// Save overwrites the config file at path. The client uses it to persist the
// id the server assigned on first registration.
func Save(path string, cfg *Config) error {
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}
