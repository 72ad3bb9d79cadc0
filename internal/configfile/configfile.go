// Package configfile reads and writes .beads/metadata.json, which names the
// files that make up a project.
package configfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const ConfigFileName = "metadata.json"

// Default file names inside .beads/.
const (
	DefaultDatabase    = "beads.db"
	DefaultJSONLExport = "issues.jsonl"
	DefaultAttachments = "attachments"
)

type Config struct {
	Database    string `json:"database"`
	JSONLExport string `json:"jsonl_export,omitempty"`
	Attachments string `json:"attachments,omitempty"`
	BDVersion   string `json:"bd_version,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Database:    DefaultDatabase,
		JSONLExport: DefaultJSONLExport,
		Attachments: DefaultAttachments,
	}
}

func ConfigPath(beadsDir string) string {
	return filepath.Join(beadsDir, ConfigFileName)
}

// Load reads metadata.json. A missing file returns (nil, nil); a legacy
// config.json is migrated to metadata.json on first read.
func Load(beadsDir string) (*Config, error) {
	configPath := ConfigPath(beadsDir)

	data, err := os.ReadFile(configPath) // #nosec G304 - controlled path from config
	if os.IsNotExist(err) {
		legacyPath := filepath.Join(beadsDir, "config.json")
		data, err = os.ReadFile(legacyPath) // #nosec G304 - controlled path from config
		if os.IsNotExist(err) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading legacy config: %w", err)
		}

		var cfg Config
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing legacy config: %w", err)
		}
		if err := cfg.Save(beadsDir); err != nil {
			return nil, fmt.Errorf("migrating config to metadata.json: %w", err)
		}
		_ = os.Remove(legacyPath)
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault returns the stored config, or DefaultConfig when none exists.
func LoadOrDefault(beadsDir string) (*Config, error) {
	cfg, err := Load(beadsDir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return DefaultConfig(), nil
	}
	return cfg, nil
}

func (c *Config) Save(beadsDir string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(ConfigPath(beadsDir), append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (c *Config) DatabasePath(beadsDir string) string {
	if c.Database == "" {
		return filepath.Join(beadsDir, DefaultDatabase)
	}
	return filepath.Join(beadsDir, c.Database)
}

func (c *Config) JSONLPath(beadsDir string) string {
	if c.JSONLExport == "" {
		return filepath.Join(beadsDir, DefaultJSONLExport)
	}
	return filepath.Join(beadsDir, c.JSONLExport)
}

// AttachmentsPath is where attachment files referenced by issues live.
func (c *Config) AttachmentsPath(beadsDir string) string {
	if c.Attachments == "" {
		return filepath.Join(beadsDir, DefaultAttachments)
	}
	if filepath.IsAbs(c.Attachments) {
		return c.Attachments
	}
	return filepath.Join(beadsDir, c.Attachments)
}
