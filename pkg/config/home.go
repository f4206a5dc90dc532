package config

import (
	"os"
	"path/filepath"
)

// EnvHome overrides the home directory.
const EnvHome = "DROID_AGENT_HOME"

// DefaultHome is the home directory used when neither the config file nor
// $DROID_AGENT_HOME names one:
//  1. Parent of the binary's directory (if binary is in <home>/bin/)
//  2. Current working directory (development fallback)
func DefaultHome() string {
	if execPath, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}
		binDir := filepath.Dir(execPath)
		if filepath.Base(binDir) == "bin" {
			return filepath.Dir(binDir)
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// TemplatesDir returns <home>/templates, the default place the visual
// matcher looks up named templates.
func (c *Config) TemplatesDir() string {
	return filepath.Join(c.home(), "templates")
}

// ResolvePath makes a relative path absolute against the home directory.
// Absolute and empty paths are returned unchanged.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.home(), p)
}

func (c *Config) home() string {
	if c.Home == "" {
		return "."
	}
	return c.Home
}
