// Package config loads bd settings from .beads/config.yaml, BD_* environment
// variables and built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/debug"
)

// FileName is the project config file inside .beads/.
const FileName = "config.yaml"

var v *viper.Viper

// Initialize sets up the viper configuration singleton, searching for
// .beads/config.yaml from the current directory upwards.
// Should be called once at application startup.
func Initialize() error {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	return InitializeFrom(cwd)
}

// InitializeFrom is Initialize with an explicit starting directory.
// Precedence: env var > project .beads/config.yaml > ~/.config/bd/config.yaml > default.
func InitializeFrom(startDir string) error {
	v = viper.New()
	v.SetConfigType("yaml")

	configPath := findConfigFile(startDir)

	// E.g. BD_JSON, BD_ACTOR, BD_SYNC_COOLDOWN
	v.SetEnvPrefix("BD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("json", false)
	v.SetDefault("actor", "")
	v.SetDefault("db", "")
	v.SetDefault("issue-prefix", "")

	v.SetDefault("sync.cooldown", "30s")
	v.SetDefault("sync.no-push", false)
	v.SetDefault("sync.commit-message", "bd sync: update issues")
	v.SetDefault("sync.remote", "origin")

	v.SetDefault("log.file", "")
	v.SetDefault("log.max-size-mb", 10)

	v.SetDefault("watch.debounce", "500ms")

	if configPath == "" {
		debug.Logf("no config.yaml found; using defaults and environment variables\n")
		return nil
	}
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	debug.Logf("loaded config from %s\n", v.ConfigFileUsed())
	return nil
}

func findConfigFile(startDir string) string {
	if startDir != "" {
		for dir := startDir; ; dir = filepath.Dir(dir) {
			candidate := filepath.Join(dir, ".beads", FileName)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
			if dir == filepath.Dir(dir) {
				break
			}
		}
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		candidate := filepath.Join(configDir, "bd", FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// ResetForTesting clears the config state, allowing Initialize() to be called again.
// Not thread-safe.
func ResetForTesting() {
	v = nil
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set sets a configuration value
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// IsSet reports whether key came from a config file, environment variable
// or explicit Set rather than a default.
func IsSet(key string) bool {
	if v == nil {
		return false
	}
	return v.InConfig(key) || os.Getenv(envKey(key)) != ""
}

// ConfigFileUsed returns the path to the config file that was loaded, or "".
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// AllSettings returns all configuration settings as a map
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

func envKey(key string) string {
	return "BD_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}
