// Package conf loads and persists the rewind-go configuration.
package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Settings contains all configuration options for the rewind-go application.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"` // Version from build
	BuildDate string `yaml:"-"` // Build date from build

	Main struct {
		Name string    // name of this rewind-go node
		Log  LogConfig // logging configuration
	}

	Audio struct {
		Source          string `validate:"required"`        // capture device name or ID ("sysdefault", "USB Audio", ...)
		Channels        int    `validate:"min=1,max=32"`    // number of capture channels
		BufferDuration  int    `validate:"min=1,max=3600"`  // pre-roll ring buffer length in seconds
		QueueSize       int    `validate:"min=1,max=4096"`  // writer queue depth in audio blocks
		ShutdownTimeout int    `validate:"min=1,max=120"`   // writer join timeout in seconds
		BlockSize       int    `validate:"min=64,max=8192"` // frames per capture block
	}

	Detector struct {
		BeginThresholdDB float64 // dB level that triggers auto-record start
		EndThresholdDB   float64 // dB level below which silence is counted
		SilenceDuration  float64 `validate:"gt=0"` // seconds of silence that stops a recording
		RMSWindow        float64 `validate:"gt=0"` // RMS sliding window in seconds
	}

	AutoRecord struct {
		Enabled bool // true to arm the controller on startup
	}

	Output struct {
		Path string // directory for recordings saved outside a session
	}

	Session struct {
		TempRoot        string // root directory for temporary session storage
		AutoCleanupDays int    `validate:"min=0"` // unsaved sessions older than this are removed, 0 disables
	}
}

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled  bool   // true to enable this log
	Path     string // Path to the log file
	MaxSize  int64  // Max size in bytes before rotation
	MaxAge   int    // Days to retain rotated files
	MaxFiles int    // Number of rotated files to keep
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings instance and stores it as the active configuration.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter,
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create one with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes a config file populated with the default values
// to the primary config path.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := viper.SafeWriteConfigAs(configPath); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the config file search paths in priority order.
func GetDefaultConfigPaths() ([]string, error) {
	var paths []string

	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return nil, fmt.Errorf("unable to determine config directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	paths = append(paths, filepath.Join(configDir, "rewind"))
	paths = append(paths, ".")

	return paths, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SaveSettings saves the current settings to the configuration file.
func SaveSettings() error {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()

	settingsCopy := *settingsInstance

	configPath, err := FindConfigFile()
	if err != nil {
		return fmt.Errorf("error finding config file: %w", err)
	}

	if err := SaveYAMLConfig(configPath, &settingsCopy); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	return nil
}

// FindConfigFile returns the path of the config file currently in use.
func FindConfigFile() (string, error) {
	if used := viper.ConfigFileUsed(); used != "" {
		return used, nil
	}

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	return filepath.Join(configPaths[0], "config.yaml"), nil
}

// SaveYAMLConfig updates the YAML configuration file with new settings.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write to a temporary file first so the replace is atomic
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}

// GetAutoRecordEnabled reports whether auto-record is enabled in the
// persisted configuration.
func (s *Settings) GetAutoRecordEnabled() bool {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return s.AutoRecord.Enabled
}

// SetAutoRecordEnabled updates the auto-record flag and persists the change.
// A persistence failure is returned but the in-memory value is kept.
func (s *Settings) SetAutoRecordEnabled(enabled bool) error {
	settingsMutex.Lock()
	s.AutoRecord.Enabled = enabled
	settingsMutex.Unlock()

	if s != settingsInstance {
		// Detached settings (tests), nothing to persist
		return nil
	}
	return SaveSettings()
}
