package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Device    DeviceConfig    `mapstructure:"device" yaml:"device"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Hotspot   HotspotConfig   `mapstructure:"hotspot" yaml:"hotspot"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
	Poll      PollConfig      `mapstructure:"poll" yaml:"poll"`
}

type DeviceConfig struct {
	// BridgeBinary is the vendor device-control tool every device
	// operation is executed through.
	BridgeBinary string   `mapstructure:"bridge_binary" yaml:"bridge_binary"`
	BridgeArgs   []string `mapstructure:"bridge_args" yaml:"bridge_args"`
	ADBPath      string   `mapstructure:"adb_path" yaml:"adb_path"`
	// ModelMatch filters adb device listings down to the wearable devices.
	ModelMatch string `mapstructure:"model_match" yaml:"model_match"`
}

type RecordingConfig struct {
	// Profile is the default recording profile used when the operator
	// does not assign per-device profiles.
	Profile string `mapstructure:"profile" yaml:"profile"`
}

type HotspotConfig struct {
	CountryCode string `mapstructure:"country_code" yaml:"country_code"`
}

type OutputConfig struct {
	// Directory receives downloaded recordings and the session record.
	Directory string `mapstructure:"directory" yaml:"directory"`
}

type PollConfig struct {
	DetectInterval    time.Duration `mapstructure:"detect_interval" yaml:"detect_interval"`
	DetectAttempts    uint64        `mapstructure:"detect_attempts" yaml:"detect_attempts"`
	StabilityInterval time.Duration `mapstructure:"stability_interval" yaml:"stability_interval"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval" yaml:"reconnect_interval"`
}

// DefaultPath is where Load looks when no --config flag was given.
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/ticsync.yaml")
}

// Load reads the config file, applies defaults and validates the result.
// A missing file is not an error; the defaults then apply unchanged.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	if configFile == "" {
		configFile = DefaultPath()
	}
	v.SetConfigFile(configFile)

	v.SetDefault("device.bridge_binary", "wearctl")
	v.SetDefault("device.adb_path", "adb")
	v.SetDefault("device.model_match", "model:Aria")
	v.SetDefault("recording.profile", "profile9")
	v.SetDefault("hotspot.country_code", "US")
	v.SetDefault("output.directory", filepath.Join(os.Getenv("HOME"), "ticsync"))
	v.SetDefault("poll.detect_interval", time.Second)
	v.SetDefault("poll.detect_attempts", 10)
	v.SetDefault("poll.stability_interval", 5*time.Second)
	v.SetDefault("poll.reconnect_interval", 2*time.Second)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", configFile, err)
	}

	cfg.Output.Directory = expandPath(cfg.Output.Directory)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks every field an invocation later depends on, so bad
// values fail here instead of mid-session.
func (c *Config) Validate() error {
	if c.Device.BridgeBinary == "" {
		return fmt.Errorf("device.bridge_binary must not be empty")
	}
	if c.Device.ADBPath == "" {
		return fmt.Errorf("device.adb_path must not be empty")
	}
	if err := validateCountryCode(c.Hotspot.CountryCode); err != nil {
		return err
	}
	if c.Recording.Profile == "" {
		return fmt.Errorf("recording.profile must not be empty")
	}
	if c.Poll.DetectInterval <= 0 {
		return fmt.Errorf("poll.detect_interval must be positive, got %s", c.Poll.DetectInterval)
	}
	if c.Poll.DetectAttempts < 1 {
		return fmt.Errorf("poll.detect_attempts must be at least 1")
	}
	if c.Poll.StabilityInterval <= 0 {
		return fmt.Errorf("poll.stability_interval must be positive, got %s", c.Poll.StabilityInterval)
	}
	if c.Poll.ReconnectInterval <= 0 {
		return fmt.Errorf("poll.reconnect_interval must be positive, got %s", c.Poll.ReconnectInterval)
	}
	return nil
}

func validateCountryCode(code string) error {
	if len(code) != 2 {
		return fmt.Errorf("hotspot.country_code must be a two-letter code, got %q", code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("hotspot.country_code must be upper-case letters, got %q", code)
		}
	}
	return nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "~" {
		return os.Getenv("HOME")
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(os.Getenv("HOME"), path[2:])
	}
	return path
}
