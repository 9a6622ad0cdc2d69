package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultProfile = "default"

	inherited       = "inherited"
	profileSpecific = "profile-specific"

	minStopTimeoutMs = 100
)

var (
	validBackends   = []string{"auto", "malgo"}
	validLogLevels  = []string{"none", "error", "warn", "info", "debug"}
	validLogFormats = []string{"text", "json"}
)

type GlobalsConfig struct {
	Output GlobalOutputConfig `mapstructure:"output" yaml:"output"`
}

type GlobalOutputConfig struct {
	RecordingsDirectory string `mapstructure:"recordings_directory" yaml:"recordings_directory"`
}

// RootConfig mirrors the file layout
type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Globals      *GlobalsConfig            `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Log          LogConfig                 `mapstructure:"log" yaml:"log"`
	Server       ServerConfig              `mapstructure:"server" yaml:"server"`
	Catalog      CatalogConfig             `mapstructure:"catalog" yaml:"catalog"`
	Configs      map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
}

// Config is a resolved profile plus the application-wide sections
type Config struct {
	Profile string        `mapstructure:"-" yaml:"profile"`
	Audio   AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Sources []string      `mapstructure:"sources" yaml:"sources"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

type ConfigProfile struct {
	Audio   AudioConfig  `mapstructure:"audio" yaml:"audio"`
	Output  OutputConfig `mapstructure:"output" yaml:"output"`
	Sources []string     `mapstructure:"sources" yaml:"sources"`
}

type InheritanceInfo struct {
	Audio struct {
		Backend       string // "inherited" or "profile-specific"
		BufferSeconds string
		StopTimeout   string
	}
	Output struct {
		Directory  string
		FilePrefix string
	}
	Sources string
}

type AudioConfig struct {
	Backend       string `mapstructure:"backend" yaml:"backend"` // "malgo", "auto"
	BufferSeconds int    `mapstructure:"buffer_seconds" yaml:"buffer_seconds"`
	StopTimeoutMs int    `mapstructure:"stop_timeout_ms" yaml:"stop_timeout_ms"`
}

type OutputConfig struct {
	Directory  string `mapstructure:"directory" yaml:"directory"`
	FilePrefix string `mapstructure:"file_prefix" yaml:"file_prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // none, error, warn, info, debug
	Format string `mapstructure:"format" yaml:"format"` // text, json
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

var defaultConfig = Config{
	Profile: DefaultProfile,
	Audio: AudioConfig{
		Backend:       "auto",
		BufferSeconds: 5,
		StopTimeoutMs: 2000,
	},
	Output: OutputConfig{
		Directory:  "~/Music/MixCapture",
		FilePrefix: "recording",
	},
	Log: LogConfig{
		Level:  "info",
		Format: "text",
	},
	Server: ServerConfig{
		Port: "8080",
	},
	Catalog: CatalogConfig{
		Path: "~/.local/share/mixcapture/recordings.db",
	},
}

// Default returns the built-in configuration with paths expanded.
func Default() *Config {
	cfg := mergeConfigs(&defaultConfig, nil)
	cfg.Profile = DefaultProfile
	cfg.Log = defaultConfig.Log
	cfg.Server = defaultConfig.Server
	cfg.Catalog = defaultConfig.Catalog
	cfg.expandPaths()
	return cfg
}

// LoadWithProfile resolves profile from configFile. An empty profile selects
// active_config, then "default". A missing file yields the built-in defaults.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if profile != "" && profile != DefaultProfile {
			return nil, fmt.Errorf("configuration profile '%s' not found (no config file at %s)", profile, configFile)
		}
		return Default(), nil
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return resolve(rootConfig, profile)
}

func resolve(rootConfig *RootConfig, profile string) (*Config, error) {
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = DefaultProfile
	}

	// Built-in values are the base of the default profile, which in turn is
	// the base of every other profile.
	base := mergeConfigs(&defaultConfig, profileToConfig(rootConfig.Configs[DefaultProfile]))

	selectedConfig := base
	if configName != DefaultProfile {
		selectedProfile, exists := rootConfig.Configs[configName]
		if !exists {
			return nil, fmt.Errorf("configuration profile '%s' not found", configName)
		}
		selectedConfig = mergeConfigs(base, profileToConfig(selectedProfile))
	}
	selectedConfig.Profile = configName

	selectedConfig.Log = rootConfig.Log
	if selectedConfig.Log.Level == "" {
		selectedConfig.Log.Level = defaultConfig.Log.Level
	}
	if selectedConfig.Log.Format == "" {
		selectedConfig.Log.Format = defaultConfig.Log.Format
	}
	selectedConfig.Server = rootConfig.Server
	if selectedConfig.Server.Port == "" {
		selectedConfig.Server.Port = defaultConfig.Server.Port
	}
	selectedConfig.Catalog = rootConfig.Catalog
	if selectedConfig.Catalog.Path == "" {
		selectedConfig.Catalog.Path = defaultConfig.Catalog.Path
	}

	// Global recordings directory takes priority over any profile directory
	if rootConfig.Globals != nil && rootConfig.Globals.Output.RecordingsDirectory != "" {
		selectedConfig.Output.Directory = rootConfig.Globals.Output.RecordingsDirectory
	}

	selectedConfig.expandPaths()

	if err := Validate(selectedConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selectedConfig, nil
}

func profileToConfig(profile *ConfigProfile) *Config {
	if profile == nil {
		return nil
	}
	return &Config{
		Audio:   profile.Audio,
		Output:  profile.Output,
		Sources: profile.Sources,
	}
}

// mergeConfigs fills every field profile leaves unset from base and records
// where each value came from.
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{Inheritance: &InheritanceInfo{}}

	if base != nil {
		result.Audio = base.Audio
		result.Output = base.Output
		result.Sources = slices.Clone(base.Sources)

		result.Inheritance.Audio.Backend = inherited
		result.Inheritance.Audio.BufferSeconds = inherited
		result.Inheritance.Audio.StopTimeout = inherited
		result.Inheritance.Output.Directory = inherited
		result.Inheritance.Output.FilePrefix = inherited
		result.Inheritance.Sources = inherited
	}

	if profile == nil {
		return result
	}

	if profile.Audio.Backend != "" {
		result.Audio.Backend = profile.Audio.Backend
		result.Inheritance.Audio.Backend = profileSpecific
	}
	if profile.Audio.BufferSeconds != 0 {
		result.Audio.BufferSeconds = profile.Audio.BufferSeconds
		result.Inheritance.Audio.BufferSeconds = profileSpecific
	}
	if profile.Audio.StopTimeoutMs != 0 {
		result.Audio.StopTimeoutMs = profile.Audio.StopTimeoutMs
		result.Inheritance.Audio.StopTimeout = profileSpecific
	}

	if profile.Output.Directory != "" {
		result.Output.Directory = profile.Output.Directory
		result.Inheritance.Output.Directory = profileSpecific
	}
	if profile.Output.FilePrefix != "" {
		result.Output.FilePrefix = profile.Output.FilePrefix
		result.Inheritance.Output.FilePrefix = profileSpecific
	}

	// An explicit selection replaces the inherited one, it is never merged.
	if len(profile.Sources) > 0 {
		result.Sources = slices.Clone(profile.Sources)
		result.Inheritance.Sources = profileSpecific
	}

	return result
}

func (c *Config) expandPaths() {
	c.Output.Directory = expandPath(c.Output.Directory)
	c.Catalog.Path = expandPath(c.Catalog.Path)
	c.Log.File = expandPath(c.Log.File)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if newActiveConfig != DefaultProfile && !v.IsSet("configs."+newActiveConfig) {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// SaveSelectedSources persists ids as the source selection of profile (or the
// active profile when empty). The file is created when it does not exist.
func SaveSelectedSources(configFile, profile string, ids []string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}
	for i, id := range ids {
		if !isValidSourceID(id) {
			return fmt.Errorf("sources[%d] must be a device id like 'out:<hex>' or 'in:<hex>', got: %s", i, id)
		}
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(configFile); !errors.Is(statErr, fs.ErrNotExist) {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
	}

	if profile == "" {
		profile = v.GetString("active_config")
	}
	if profile == "" {
		profile = DefaultProfile
	}

	v.Set("configs."+profile+".sources", ids)

	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}
	return nil
}

// ValidateConfigurationFormat reads the configuration file, applies
// MIXCAPTURE_* environment overrides and checks every profile.
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("MIXCAPTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	for configName, configProfile := range rootConfig.Configs {
		if configProfile == nil {
			continue
		}
		if err := validateProfile(configProfile); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	return &rootConfig, nil
}

// setDefaults registers the application-wide keys so that environment
// overrides apply even when the file omits them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", defaultConfig.Log.Level)
	v.SetDefault("log.format", defaultConfig.Log.Format)
	v.SetDefault("log.file", defaultConfig.Log.File)
	v.SetDefault("server.port", defaultConfig.Server.Port)
	v.SetDefault("catalog.path", defaultConfig.Catalog.Path)
}

// validateProfile checks the values a profile sets. Unset values are
// inherited and checked after resolution.
func validateProfile(profile *ConfigProfile) error {
	if profile.Audio.Backend != "" && !slices.Contains(validBackends, strings.ToLower(profile.Audio.Backend)) {
		return fmt.Errorf("audio.backend must be one of %v, got: %s", validBackends, profile.Audio.Backend)
	}
	if profile.Audio.BufferSeconds < 0 {
		return fmt.Errorf("audio.buffer_seconds must be > 0, got: %d", profile.Audio.BufferSeconds)
	}
	if profile.Audio.StopTimeoutMs != 0 && profile.Audio.StopTimeoutMs < minStopTimeoutMs {
		return fmt.Errorf("audio.stop_timeout_ms must be >= %d, got: %d", minStopTimeoutMs, profile.Audio.StopTimeoutMs)
	}
	for i, id := range profile.Sources {
		if !isValidSourceID(id) {
			return fmt.Errorf("sources[%d] must be a device id like 'out:<hex>' or 'in:<hex>', got: %s", i, id)
		}
	}
	return nil
}

// Validate checks a resolved configuration
func Validate(cfg *Config) error {
	if !slices.Contains(validBackends, strings.ToLower(cfg.Audio.Backend)) {
		return fmt.Errorf("audio.backend must be one of %v, got: %s", validBackends, cfg.Audio.Backend)
	}
	if cfg.Audio.BufferSeconds <= 0 {
		return fmt.Errorf("audio.buffer_seconds must be > 0, got: %d", cfg.Audio.BufferSeconds)
	}
	if cfg.Audio.StopTimeoutMs < minStopTimeoutMs {
		return fmt.Errorf("audio.stop_timeout_ms must be >= %d, got: %d", minStopTimeoutMs, cfg.Audio.StopTimeoutMs)
	}
	if strings.TrimSpace(cfg.Output.Directory) == "" {
		return fmt.Errorf("output.directory is required")
	}
	if strings.TrimSpace(cfg.Output.FilePrefix) == "" {
		return fmt.Errorf("output.file_prefix is required")
	}
	if strings.ContainsAny(cfg.Output.FilePrefix, `/\`) {
		return fmt.Errorf("output.file_prefix must not contain path separators, got: %s", cfg.Output.FilePrefix)
	}
	if !slices.Contains(validLogLevels, strings.ToLower(cfg.Log.Level)) {
		return fmt.Errorf("log.level must be one of %v, got: %s", validLogLevels, cfg.Log.Level)
	}
	if !slices.Contains(validLogFormats, strings.ToLower(cfg.Log.Format)) {
		return fmt.Errorf("log.format must be one of %v, got: %s", validLogFormats, cfg.Log.Format)
	}
	return nil
}

// isValidSourceID checks the "<direction>:<hex device id>" form produced by
// source enumeration.
func isValidSourceID(id string) bool {
	id = strings.TrimSpace(id)

	direction, device, ok := strings.Cut(id, ":")
	if !ok {
		return false
	}
	if direction != "out" && direction != "in" {
		return false
	}
	if len(device) == 0 || len(device)%2 != 0 {
		return false
	}
	return isHex(device)
}

// isHex checks if a string contains only hexadecimal digits
func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
