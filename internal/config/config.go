package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for dstash.
type Config struct {
	BaseDir     string           `toml:"base_dir"`
	Database    DatabaseConfig   `toml:"database"`
	Log         LogConfig        `toml:"log"`
	Transfer    TransferConfig   `toml:"transfer"`
	Pile        PileConfig       `toml:"pile"`
	Chunk       ChunkConfig      `toml:"chunk"`
	Placement   PlacementConfig  `toml:"placement"`
	Credentials []CredentialSeed `toml:"credential"`
}

// DatabaseConfig selects the durable store.
// Tagged union: Type determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// LogConfig places the operation log and decides how much of it is
// echoed to stderr. The log file always gets every record.
type LogConfig struct {
	Dir         string `toml:"dir"`
	StderrLevel string `toml:"stderr_level,omitempty"` // "debug", "info", "warn" or "error"
}

// TransferConfig selects the remote object transfer backend.
// Tagged union: Type determines which other fields are relevant.
type TransferConfig struct {
	Type string `toml:"type"` // "s3" or "memory"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // custom endpoint for S3-compatible services

	// Static credentials. When empty the default AWS chain is used.
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// Memory-specific: per-owner byte quota, 0 means unlimited
	// (only used when Type == "memory")
	MemoryQuota int64 `toml:"memory_quota,omitempty"`
}

// PileConfig holds the age key pair paths and the frame compression used
// for content written to local pile cells.
type PileConfig struct {
	RecipientPath string `toml:"recipient_path"` // age public key, plaintext
	IdentityPath  string `toml:"identity_path"`  // age identity, passphrase-protected
	Compression   string `toml:"compression"`    // "none", "lz4" or "zstd"
}

// ChunkConfig bounds the content-defined chunking of the remote write
// path. Zero values fall back to the built-in defaults. The polynomial
// must stay stable for chunk boundaries to be reproducible.
type ChunkConfig struct {
	MinSize    int64  `toml:"min_size,omitempty"`
	MaxSize    int64  `toml:"max_size,omitempty"`
	Polynomial uint64 `toml:"polynomial,omitempty"`
}

// PlacementConfig drives the built-in rule policy. Rules are evaluated in
// order; the first rule whose matchers all apply decides the placement. A
// rule with no matchers always applies, so a final catch-all rule acts as
// the default.
type PlacementConfig struct {
	Rules []PlacementRule `toml:"rules"`
}

// PlacementRule matches new files by path and size and names where their
// content should be stored.
type PlacementRule struct {
	PathPrefix string `toml:"path_prefix,omitempty"`
	PathSuffix string `toml:"path_suffix,omitempty"`
	MinSize    int64  `toml:"min_size,omitempty"` // applies when size >= min_size
	MaxSize    int64  `toml:"max_size,omitempty"` // applies when size <= max_size; 0 = unbounded

	Inline      bool     `toml:"inline,omitempty"`
	Piles       []int64  `toml:"piles,omitempty"`
	RemotePools []string `toml:"remote_pools,omitempty"`
}

// CredentialSeed declares a remote account in the config file. Seeds
// whose (pool, owner) pair is not registered yet are added on startup.
type CredentialSeed struct {
	Pool  string `toml:"pool"`
	Owner string `toml:"owner"`
}

// NewConfig creates a Config with the provided base directory and
// sensible defaults.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "dstash.db"),
		},
		Log: LogConfig{
			Dir:         filepath.Join(baseDir, "log"),
			StderrLevel: "info",
		},
		Transfer: TransferConfig{
			Type: "memory",
		},
		Pile: PileConfig{
			RecipientPath: filepath.Join(baseDir, "keys", "pile.pub"),
			IdentityPath:  filepath.Join(baseDir, "keys", "pile.key"),
			Compression:   "zstd",
		},
		Placement: PlacementConfig{
			Rules: []PlacementRule{
				{MaxSize: 4096, Inline: true},
				{RemotePools: []string{"default"}},
			},
		},
	}
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

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path. Refuses to
// overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
