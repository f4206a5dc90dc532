// Package config handles configuration for droid-agent.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/droid-agent/pkg/core"
)

// Environment overrides
const (
	EnvADBPath = "ADB_PATH"
	EnvSerial  = "ANDROID_SERIAL"
)

// Config represents the agent configuration (droid-agent.yaml).
type Config struct {
	// Home anchors relative paths (audit log, templates). Empty uses
	// $DROID_AGENT_HOME, then DefaultHome.
	Home string `yaml:"home"`

	// Device settings
	ADBPath string `yaml:"adbPath"` // adb binary; empty searches $ADB_PATH then PATH
	Device  string `yaml:"device"`  // serial; empty uses the only attached device

	// Gateway
	CommandTimeout Duration `yaml:"commandTimeout"` // per device command
	DumpPath       string   `yaml:"dumpPath"`       // on-device hierarchy dump
	DeviceTempDir  string   `yaml:"deviceTempDir"`  // on-device screenshots

	// Logging
	AuditLog string `yaml:"auditLog"` // action audit trail
	LogFile  string `yaml:"logFile"`  // diagnostic log; empty disables
	LogLevel string `yaml:"logLevel"`

	// Behaviour
	VisualThreshold float64  `yaml:"visualThreshold"`
	PollInterval    Duration `yaml:"pollInterval"`  // wait_for poll period
	WaitPause       Duration `yaml:"waitPause"`     // the "wait" action
	BatchPause      Duration `yaml:"batchPause"`    // between batch steps
	ScriptTimeout   Duration `yaml:"scriptTimeout"` // 0 = no limit
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return core.ErrInvalidConfig.WithMessagef("line %d: invalid duration %q", node.Line, s).WithCause(err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CommandTimeout:  Duration(30 * time.Second),
		DumpPath:        "/sdcard/window_dump.xml",
		DeviceTempDir:   "/sdcard",
		AuditLog:        filepath.Join("logs", "execution.log"),
		LogLevel:        "info",
		VisualThreshold: 0.8,
		PollInterval:    Duration(time.Second),
		WaitPause:       Duration(2 * time.Second),
		BatchPause:      Duration(200 * time.Millisecond),
	}
}

// Load loads configuration from a file. Fields missing from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir looks for droid-agent.yaml or droid-agent.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	// Try droid-agent.yaml first
	configPath := filepath.Join(dir, "droid-agent.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// Try droid-agent.yml
	configPath = filepath.Join(dir, "droid-agent.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return defaults
	return Default(), nil
}

// Resolve loads path when given, otherwise looks in the working directory,
// then applies environment overrides and settles the home directory.
func Resolve(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if path != "" {
		cfg, err = Load(path)
	} else {
		cfg, err = LoadFromDir(".")
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	if cfg.Home == "" {
		cfg.Home = DefaultHome()
	}
	return cfg, nil
}

// ApplyEnv overrides the adb path, device serial and home from the
// environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvHome); v != "" {
		c.Home = v
	}
	if v := getenv(EnvADBPath); v != "" {
		c.ADBPath = v
	}
	if v := getenv(EnvSerial); v != "" {
		c.Device = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.VisualThreshold < 0 || c.VisualThreshold > 1 {
		return core.ErrInvalidConfig.WithMessagef("visualThreshold must be between 0 and 1, got %v", c.VisualThreshold)
	}
	durations := []struct {
		name string
		d    Duration
	}{
		{"commandTimeout", c.CommandTimeout},
		{"pollInterval", c.PollInterval},
		{"waitPause", c.WaitPause},
		{"batchPause", c.BatchPause},
		{"scriptTimeout", c.ScriptTimeout},
	}
	for _, f := range durations {
		if f.d < 0 {
			return core.ErrInvalidConfig.WithMessagef("%s cannot be negative", f.name)
		}
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return core.ErrInvalidConfig.WithMessagef("unknown logLevel %q", c.LogLevel).WithCause(err)
		}
	}
	return nil
}
