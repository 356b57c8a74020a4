package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/yoanbernabeu/codemarks/internal/fileutil"
)

const (
	ConfigDir        = ".codemarks"
	ConfigFileName   = "config.yaml"
	ProjectsFileName = "projects.json"
)

// DefaultPattern matches single-line annotations behind the common comment
// leaders (//, #, <!--, *). Capture 1 is the marker kind, capture 2 the
// trailing message.
const DefaultPattern = `(?i)(?://|#|<!--|\*)\s*(TODO|FIXME|HACK)\s*:?\s*(.*)$`

// DefaultDebounceMs is the quiet period the watcher waits after the last
// change event before flushing a batch.
const DefaultDebounceMs = 500

type Config struct {
	Version int         `yaml:"version"`
	Pattern string      `yaml:"annotation_pattern"`
	Watch   WatchConfig `yaml:"watch"`
	Ignore  []string    `yaml:"ignore"`
}

type WatchConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Pattern: DefaultPattern,
		Watch: WatchConfig{
			DebounceMs: DefaultDebounceMs,
		},
		Ignore: []string{
			".git",
			"node_modules",
			"vendor",
			"target",
			"dist",
			"build",
			"bin",
			"__pycache__",
			".venv",
			"venv",
			".idea",
			".vscode",
		},
	}
}

// Dir returns the per-user state directory (~/.codemarks).
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(homeDir, ConfigDir), nil
}

// Path returns the location of the config document.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// ProjectsPath returns the location of the projects database document.
func ProjectsPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ProjectsFileName), nil
}

// Load reads the config document, applying defaults for absent fields.
// A missing file is not an error and yields the default config.
func Load() (*Config, error) {
	configPath, err := Path()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in missing configuration values so config files
// written by older versions keep working.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Version == 0 {
		c.Version = defaults.Version
	}
	if c.Pattern == "" {
		c.Pattern = defaults.Pattern
	}
	if c.Watch.DebounceMs <= 0 {
		c.Watch.DebounceMs = defaults.Watch.DebounceMs
	}
	if c.Ignore == nil {
		c.Ignore = defaults.Ignore
	}
}

func (c *Config) Save() error {
	configPath, err := Path()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := fileutil.WriteFileAtomic(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func Exists() bool {
	configPath, err := Path()
	if err != nil {
		return false
	}
	_, err = os.Stat(configPath)
	return err == nil
}
