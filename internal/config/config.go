// Package config owns the process-level configuration for de1coreserver:
// data directory layout, companion server bind address and TLS, the daily
// backup hour, and logging. It is distinct from internal/settings, which
// is the in-app key/value store the DE1 core engines read at runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds de1coreserver's process configuration.
type Config struct {
	// DataDir is the root directory for the shot database, settings store,
	// profiles, media, backups, and logs.
	DataDir string `yaml:"data_dir"`

	Server  ServerConfig  `yaml:"server"`
	Backup  BackupConfig  `yaml:"backup"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the companion HTTP(S) server.
type ServerConfig struct {
	Port            int    `yaml:"port"`
	DiscoveryPort   int    `yaml:"discovery_port"`
	TLSEnabled      bool   `yaml:"tls_enabled"`
	TLSCertFile     string `yaml:"tls_cert_file"`
	TLSKeyFile      string `yaml:"tls_key_file"`
	SessionLifetime string `yaml:"session_lifetime"`
}

// BackupConfig configures the daily backup/restore engine.
type BackupConfig struct {
	// DailyHour is a local hour (0-23) saved with the config file. The
	// backup scheduler does not read it: it takes the hour from the
	// dailyBackupHour settings key, where -1 disables scheduled backups.
	DailyHour     int `yaml:"daily_hour"`
	RetentionDays int `yaml:"retention_days"`
}

// DefaultConfig returns the default process configuration.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return &Config{
		DataDir: filepath.Join(home, ".decenza"),

		Server: ServerConfig{
			Port:            8888,
			DiscoveryPort:   8889,
			TLSEnabled:      true,
			TLSCertFile:     "server.crt",
			TLSKeyFile:      "server.key",
			SessionLifetime: "2160h", // 90 days
		},

		Backup: BackupConfig{
			DailyHour:     3,
			RetentionDays: 5,
		},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			DebugMode: false,
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults for
// any field the file omits. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// SessionLifetimeDuration parses the configured session lifetime, falling
// back to 90 days if unset or invalid.
func (c *Config) SessionLifetimeDuration() time.Duration {
	d, err := time.ParseDuration(c.Server.SessionLifetime)
	if err != nil {
		return 90 * 24 * time.Hour
	}
	return d
}

// ShotDBPath returns the path to the shot history SQLite database.
func (c *Config) ShotDBPath() string {
	return filepath.Join(c.DataDir, "shots.db")
}

// SettingsPath returns the path to the settings key/value JSON file.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.json")
}

// ProfilesDir returns the root directory for profile JSON files.
func (c *Config) ProfilesDir() string {
	return filepath.Join(c.DataDir, "profiles")
}

// MediaDir returns the root directory for screensaver media files.
func (c *Config) MediaDir() string {
	return filepath.Join(c.DataDir, "media")
}

// BackupDir returns the root directory where backup archives are written.
func (c *Config) BackupDir() string {
	return filepath.Join(c.DataDir, "backups")
}

// StagingDir returns the scratch directory used for chunked uploads and
// backup/restore staging.
func (c *Config) StagingDir() string {
	return filepath.Join(c.DataDir, "staging")
}

// UserProfilesDir returns the directory for user-authored profiles, as
// distinct from DownloadedProfilesDir; both live under ProfilesDir.
func (c *Config) UserProfilesDir() string {
	return filepath.Join(c.DataDir, "profiles", "user")
}

// DownloadedProfilesDir returns the directory for profiles fetched from
// the visualizer or shared by other users.
func (c *Config) DownloadedProfilesDir() string {
	return filepath.Join(c.DataDir, "profiles", "downloaded")
}

// TOTPSecretPath returns the path to the persisted TOTP shared secret,
// generated on first run (§4.6 "Authentication").
func (c *Config) TOTPSecretPath() string {
	return filepath.Join(c.DataDir, "totp_secret")
}
