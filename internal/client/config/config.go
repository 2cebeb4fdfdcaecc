// Package config holds runtime settings for the envault CLI.
//
// Precedence is defaults, then an optional JSON config file, then
// command-line flags (applied by the CLI layer).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// StateDirName is the per-user directory (under the home directory) holding
// the local database and the default config file.
const StateDirName = ".envault"

// Config holds runtime settings for the CLI.
type Config struct {
	// ServerURL is the base URL of the sync server.
	ServerURL string `json:"server_url"`
	// DBPath is the path of the local SQLite database.
	DBPath string `json:"db_path"`
}

// LoadDefaults populates c with defaults. DBPath defaults to
// ~/.envault/envault.db; a missing home directory leaves it empty and Open
// will fail with a clear error.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	if home, err := os.UserHomeDir(); err == nil {
		c.DBPath = filepath.Join(home, StateDirName, "envault.db")
	}
}

// defaultConfigPath returns ~/.envault/config.json, or "" when the home
// directory cannot be resolved.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, StateDirName, "config.json")
}

// Load constructs a Config from defaults overlaid with the JSON file at
// path. An empty path falls back to the default location; a missing file at
// the default location is not an error, a missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var jc Config
	if err := json.Unmarshal(data, &jc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.DBPath != "" {
		cfg.DBPath = jc.DBPath
	}
	return cfg, nil
}
