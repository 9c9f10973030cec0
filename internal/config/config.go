// Package config holds the daemon configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for gebrd.
type Config struct {
	Home string `yaml:"-"` // per-user data directory (default ~/.gebr)

	Port       int    `yaml:"port"`        // 0 picks a free port
	Listen     string `yaml:"listen"`      // bind address (default loopback)
	StatusAddr string `yaml:"status_addr"` // HTTP status endpoint, "" disables it
	KeepAlive  bool   `yaml:"keep_alive"`  // stay up after the last client quits
	ServerType string `yaml:"server_type"` // "regular" or "batch"
	Foreground bool   `yaml:"foreground"`  // tee the log to stderr

	// Execution
	Shell       string `yaml:"shell"`        // wraps the command line as "<shell> -l -c"
	XauthCmd    string `yaml:"xauth_cmd"`    // registers display cookies
	DisplayBase int    `yaml:"display_base"` // first X11 display handed out

	// Derived paths
	LogDir   string `yaml:"log_dir"`
	RunDir   string `yaml:"run_dir"`
	AcctDB   string `yaml:"acct_db"`
	Hostname string `yaml:"hostname"` // reported to clients, default os.Hostname
}

// NewConfig creates a Config with defaults for the given home directory.
func NewConfig(home string) *Config {
	host, _ := os.Hostname()
	return &Config{
		Home:        home,
		Listen:      "127.0.0.1",
		ServerType:  "regular",
		Shell:       "bash",
		XauthCmd:    "xauth",
		DisplayBase: 10,
		LogDir:      filepath.Join(home, "log"),
		RunDir:      filepath.Join(home, "run"),
		AcctDB:      filepath.Join(home, "gebrd.db"),
		Hostname:    host,
	}
}

// DefaultHome returns ~/.gebr.
func DefaultHome() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, ".gebr")
}

// DefaultFile returns the configuration file read when none is given.
func (c *Config) DefaultFile() string {
	return filepath.Join(c.Home, "gebrd.yaml")
}

// Load overlays the YAML file at path onto c. A missing file is not an
// error; unknown keys are.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c.Validate()
}

// Validate rejects values the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	switch c.ServerType {
	case "regular", "batch":
	default:
		return fmt.Errorf("config: unknown server_type %q", c.ServerType)
	}
	if c.Shell == "" {
		return errors.New("config: shell must not be empty")
	}
	return nil
}
