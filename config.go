package soletic

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	defaultSettingsFilename = ".soletic_config.json"
	defaultLogFile          = ".soletic_logs/soletic.log"
)

// Settings are the user preferences persisted by the command line tool.
type Settings struct {
	Network Network `json:"network,omitempty"`
	Cache   *bool   `json:"cache,omitempty"`
	Verbose bool    `json:"verbose,omitempty"`
	LogFile string  `json:"log_file,omitempty"`
}

// SettingKeys lists the keys accepted by Settings.Delete, in display order.
var SettingKeys = []string{"network", "cache", "verbose", "log_file"}

// DefaultSettingsPath returns SOLETIC_CONFIG_PATH or ~/.soletic_config.json.
func DefaultSettingsPath() (string, error) {
	if path := os.Getenv(ConfigPathEnv); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, defaultSettingsFilename), nil
}

// LoadSettings reads the settings file. A missing file yields empty settings.
func LoadSettings(path string) (Settings, error) {
	var settings Settings
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return settings, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("decode settings %s: %w", path, err)
	}
	return settings, nil
}

// SaveSettings writes the settings file, creating its directory if needed.
func SaveSettings(path string, settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "    ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	return writeFileAtomic(path, ".soletic-config-*.tmp", data)
}

// IsEmpty reports whether no preference has been stored.
func (s Settings) IsEmpty() bool {
	return s.Network == "" && s.Cache == nil && !s.Verbose && s.LogFile == ""
}

// Effective fills unset preferences with their defaults.
func (s Settings) Effective() Settings {
	if s.Network == "" {
		s.Network = Mainnet
	}
	if s.Cache == nil {
		enabled := true
		s.Cache = &enabled
	}
	return s
}

// CacheEnabled reports the cache preference, defaulting to enabled.
func (s Settings) CacheEnabled() bool {
	return s.Cache == nil || *s.Cache
}

// LogFilePath resolves the log file relative to the home directory.
func (s Settings) LogFilePath() (string, error) {
	path := s.LogFile
	if path == "" {
		path = defaultLogFile
	}
	if filepath.IsAbs(path) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, path), nil
}

// Delete unsets one preference by its file key.
func (s *Settings) Delete(key string) error {
	switch key {
	case "network":
		s.Network = ""
	case "cache":
		s.Cache = nil
	case "verbose":
		s.Verbose = false
	case "log_file":
		s.LogFile = ""
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

// Value renders one preference for display. ok is false when it is unset.
func (s Settings) Value(key string) (value string, ok bool) {
	switch key {
	case "network":
		return string(s.Network), s.Network != ""
	case "cache":
		if s.Cache == nil {
			return "", false
		}
		return strconv.FormatBool(*s.Cache), true
	case "verbose":
		return strconv.FormatBool(s.Verbose), s.Verbose
	case "log_file":
		return s.LogFile, s.LogFile != ""
	default:
		return "", false
	}
}
