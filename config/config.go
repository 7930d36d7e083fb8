package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brettbedarf/bastion/internal/util"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// Bytes per MB
const MB = 1024 * 1024

// CLI verbosity levels, lowest is quietest
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultLogLvl = util.WarnLevel

	// DefaultBlockSize is both the initial capacity of a new file and the
	// increment its capacity grows by
	DefaultBlockSize = 4096

	// DefaultTotalSize is the fixed overhead reserved for the volume (20MB)
	DefaultTotalSize = 20 * MB

	// DefaultStore is the backing store used when none is configured
	DefaultStore = "nop"

	DefaultPrompt = "bastion> "
)

// Config contains runtime configuration values for the filesystem and shell.
type Config struct {
	ShellOptions
	LogLvl      util.LogLevel // Internal log level (Default warn)
	LogFile     string        // Rotating log file; console (stderr) when empty
	BlockSize   int64         // File capacity allocation unit in bytes (Default 4096)
	TotalSize   int64         // Volume overhead in bytes restored on every format (Default 20MB)
	Store       string        // Registered backing store name (Default "nop")
	MetricsAddr string        // Address to serve prometheus metrics on; disabled when empty
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	Prompt      *string `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	HistoryFile *string `yaml:"history_file,omitempty" json:"history_file,omitempty"`
	// LogLvl is a CLI verbosity between 1 (error) and 5 (trace); out of range
	// values are clamped
	LogLvl      *int    `yaml:"log_lvl,omitempty" json:"log_lvl,omitempty"`
	LogFile     *string `yaml:"log_file,omitempty" json:"log_file,omitempty"`
	BlockSize   *int64  `yaml:"block_size,omitempty" json:"block_size,omitempty"`
	TotalSize   *int64  `yaml:"total_size,omitempty" json:"total_size,omitempty"`
	Store       *string `yaml:"store,omitempty" json:"store,omitempty"`
	MetricsAddr *string `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		ShellOptions: ShellOptions{
			Prompt: DefaultPrompt,
		},
		LogLvl:    DefaultLogLvl,
		BlockSize: DefaultBlockSize,
		TotalSize: DefaultTotalSize,
		Store:     DefaultStore,
	}
}

// NewConfig creates a Config from defaults with override applied on top.
// A nil override yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// VerboseToLogLvl maps a CLI verbosity onto an internal log level
func VerboseToLogLvl(verbose int) util.LogLevel {
	logLvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	return logLvls[util.Clamp(verbose, ErrorVerbose, TraceVerbose)-1]
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.Prompt != nil {
		c.Prompt = *override.Prompt
	}
	if override.HistoryFile != nil {
		c.HistoryFile = *override.HistoryFile
	}
	if override.LogLvl != nil {
		c.LogLvl = VerboseToLogLvl(*override.LogLvl)
	}
	if override.LogFile != nil {
		c.LogFile = *override.LogFile
	}
	if override.BlockSize != nil {
		c.BlockSize = *override.BlockSize
	}
	if override.TotalSize != nil {
		c.TotalSize = *override.TotalSize
	}
	if override.Store != nil {
		c.Store = *override.Store
	}
	if override.MetricsAddr != nil {
		c.MetricsAddr = *override.MetricsAddr
	}
}

// Validate reports the first field that cannot be used to build a filesystem
func (c *Config) Validate() error {
	if c.BlockSize <= 0 {
		return fmt.Errorf("block_size must be positive, got %d", c.BlockSize)
	}
	if c.TotalSize < 0 {
		return fmt.Errorf("total_size must not be negative, got %d", c.TotalSize)
	}
	if c.Store == "" {
		return errors.New("store must be set")
	}
	return nil
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports YAML (.yaml, .yml), JSON (.json) and JSON with comments and
// trailing commas (.jsonc, .hujson).
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".jsonc", ".hujson":
		standardized, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		data = standardized
		fallthrough
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)
	return cfg, nil
}
