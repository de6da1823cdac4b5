package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fakeyudi/chemvis/internal/dataset"
	"github.com/fakeyudi/chemvis/internal/render"
	"github.com/fakeyudi/chemvis/internal/transport"
)

// Environment variables read by the CLI.
const (
	EnvBaseURL  = "CHEMVIS_BASE_URL"
	EnvUsername = "CHEMVIS_USERNAME"
	EnvPassword = "CHEMVIS_PASSWORD"
)

// ProjectFile is the per-directory config file name.
const ProjectFile = ".chemvis.yaml"

// Config holds all configurable chemvis settings.
type Config struct {
	BaseURL       string   `yaml:"base_url,omitempty"`
	Timeout       Duration `yaml:"timeout,omitempty"`
	UploadTimeout Duration `yaml:"upload_timeout,omitempty"`
	DefaultFormat string   `yaml:"default_format,omitempty"` // text | markdown | json | yaml
	ReportDir     string   `yaml:"report_dir,omitempty"`
	LogLevel      string   `yaml:"log_level,omitempty"`
	Username      string   `yaml:"username,omitempty"`
}

// Duration is a time.Duration written as "5s" in YAML.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		BaseURL:       transport.DefaultBaseURL,
		Timeout:       Duration(transport.DefaultTimeout),
		UploadTimeout: Duration(dataset.DefaultUploadWait),
		DefaultFormat: render.FormatText,
		ReportDir:     ".",
		LogLevel:      "warn",
	}
}

// Dir returns the chemvis config directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "chemvis"), nil
}

// GlobalPath returns the path of the global config file.
func GlobalPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadGlobal reads ~/.config/chemvis/config.yaml.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// LoadProject reads .chemvis.yaml in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(ProjectFile, false)
}

// loadFile reads and parses a YAML config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Save writes cfg to the global config file, creating the directory if needed.
func Save(cfg *Config) (string, error) {
	path, err := GlobalPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0o644)
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	overlay(&result, global)
	overlay(&result, project)
	return result
}

// overlay copies every set field of src over dst.
func overlay(dst, src *Config) {
	if src == nil {
		return
	}
	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}
	if src.Timeout != 0 {
		dst.Timeout = src.Timeout
	}
	if src.UploadTimeout != 0 {
		dst.UploadTimeout = src.UploadTimeout
	}
	if src.DefaultFormat != "" {
		dst.DefaultFormat = src.DefaultFormat
	}
	if src.ReportDir != "" {
		dst.ReportDir = src.ReportDir
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.Username != "" {
		dst.Username = src.Username
	}
}

// LoadDotEnv loads path (normally ".env") into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with the CHEMVIS_* environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(EnvUsername); v != "" {
		cfg.Username = v
	}
}

// Load returns the effective configuration: defaults, then the global file,
// then the project file, then the environment.
func Load() (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Config{}, err
	}
	project, err := LoadProject()
	if err != nil {
		return Config{}, err
	}
	cfg := Merge(global, project)
	ApplyEnv(&cfg)
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if _, err := render.For(c.DefaultFormat); err != nil {
		return fmt.Errorf("default_format: %w", err)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout.Std())
	}
	if c.UploadTimeout < 0 {
		return fmt.Errorf("upload_timeout must not be negative, got %s", c.UploadTimeout.Std())
	}
	return nil
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
