package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Feature: chemvis, Property 10: Config merge precedence
func TestConfigMergePrecedence(t *testing.T) {
	// Generator for a non-empty string field value.
	nonEmptyString := rapid.StringMatching(`[a-zA-Z0-9/_.-]{1,20}`)
	durationGen := rapid.Int64Range(1, int64(time.Hour))

	// Each field is independently either empty or set.
	configGen := rapid.Custom(func(t *rapid.T) *Config {
		cfg := &Config{}
		if rapid.Bool().Draw(t, "hasBaseURL") {
			cfg.BaseURL = nonEmptyString.Draw(t, "baseURL")
		}
		if rapid.Bool().Draw(t, "hasTimeout") {
			cfg.Timeout = Duration(durationGen.Draw(t, "timeout"))
		}
		if rapid.Bool().Draw(t, "hasUploadTimeout") {
			cfg.UploadTimeout = Duration(durationGen.Draw(t, "uploadTimeout"))
		}
		if rapid.Bool().Draw(t, "hasDefaultFormat") {
			cfg.DefaultFormat = nonEmptyString.Draw(t, "defaultFormat")
		}
		if rapid.Bool().Draw(t, "hasReportDir") {
			cfg.ReportDir = nonEmptyString.Draw(t, "reportDir")
		}
		if rapid.Bool().Draw(t, "hasLogLevel") {
			cfg.LogLevel = nonEmptyString.Draw(t, "logLevel")
		}
		if rapid.Bool().Draw(t, "hasUsername") {
			cfg.Username = nonEmptyString.Draw(t, "username")
		}
		return cfg
	})

	rapid.Check(t, func(t *rapid.T) {
		global := configGen.Draw(t, "global")
		project := configGen.Draw(t, "project")

		merged := Merge(global, project)
		defaults := Defaults()

		checkField(t, "BaseURL", global.BaseURL, project.BaseURL, defaults.BaseURL, merged.BaseURL)
		checkField(t, "Timeout", global.Timeout, project.Timeout, defaults.Timeout, merged.Timeout)
		checkField(t, "UploadTimeout", global.UploadTimeout, project.UploadTimeout, defaults.UploadTimeout, merged.UploadTimeout)
		checkField(t, "DefaultFormat", global.DefaultFormat, project.DefaultFormat, defaults.DefaultFormat, merged.DefaultFormat)
		checkField(t, "ReportDir", global.ReportDir, project.ReportDir, defaults.ReportDir, merged.ReportDir)
		checkField(t, "LogLevel", global.LogLevel, project.LogLevel, defaults.LogLevel, merged.LogLevel)
		checkField(t, "Username", global.Username, project.Username, defaults.Username, merged.Username)
	})
}

// checkField asserts the merge precedence rule for a single field:
//   - project set  → merged == project
//   - project unset, global set → merged == global
//   - both unset → merged == defaultVal
func checkField[T comparable](t *rapid.T, name string, globalVal, projectVal, defaultVal, mergedVal T) {
	t.Helper()
	var zero T
	switch {
	case projectVal != zero:
		if mergedVal != projectVal {
			t.Fatalf("%s: both set, expected project value %v, got %v", name, projectVal, mergedVal)
		}
	case globalVal != zero:
		if mergedVal != globalVal {
			t.Fatalf("%s: only global set, expected global value %v, got %v", name, globalVal, mergedVal)
		}
	default:
		if mergedVal != defaultVal {
			t.Fatalf("%s: neither set, expected default %v, got %v", name, defaultVal, mergedVal)
		}
	}
}

func TestDefaultsValues(t *testing.T) {
	d := Defaults()
	if d.BaseURL != "http://localhost:8000/api" {
		t.Errorf("BaseURL: want default API URL, got %q", d.BaseURL)
	}
	if d.Timeout.Std() != 5*time.Second {
		t.Errorf("Timeout: want 5s, got %s", d.Timeout.Std())
	}
	if d.DefaultFormat != "text" {
		t.Errorf("DefaultFormat: want %q, got %q", "text", d.DefaultFormat)
	}
	if err := d.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadGlobalMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config, got nil")
	}
	if *cfg != Defaults() {
		t.Errorf("want defaults, got %+v", cfg)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestLoadProjectMissingFileReturnsNil(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadProject()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config, got %+v", cfg)
	}
}

func TestLoadGlobalParseError(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	cfgDir := filepath.Join(tmp, ".config", "chemvis")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte("timeout: [not a duration"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadGlobal()
	if err == nil {
		t.Fatal("expected an error for invalid YAML, got nil")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected *ParseError, got %T: %v", err, err)
	}
}

func TestBadDurationIsParseError(t *testing.T) {
	tmp := t.TempDir()
	chdir(t, tmp)
	if err := os.WriteFile(ProjectFile, []byte("timeout: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadProject()
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
}

func TestLoadLayersAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvUsername, "")

	if _, err := Save(&Config{BaseURL: "http://global:8000/api", Username: "alice", Timeout: Duration(3 * time.Second)}); err != nil {
		t.Fatal(err)
	}
	chdir(t, t.TempDir())
	if err := os.WriteFile(ProjectFile, []byte("base_url: http://project:8000/api\ndefault_format: json\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "http://project:8000/api" || cfg.Username != "alice" || cfg.DefaultFormat != "json" {
		t.Errorf("unexpected merge result %+v", cfg)
	}
	if cfg.Timeout.Std() != 3*time.Second {
		t.Errorf("Timeout: want 3s, got %s", cfg.Timeout.Std())
	}

	t.Setenv(EnvBaseURL, "http://env:9000/api")
	cfg, err = Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "http://env:9000/api" {
		t.Errorf("env did not override base URL: %q", cfg.BaseURL)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvBaseURL, "")
	os.Unsetenv(EnvBaseURL)

	if err := LoadDotEnv(filepath.Join(dir, ".env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("CHEMVIS_BASE_URL=http://dotenv:8000/api\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv(EnvBaseURL); got != "http://dotenv:8000/api" {
		t.Errorf("want value from .env, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.DefaultFormat = "xml"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "default_format") {
		t.Errorf("expected default_format error, got %v", err)
	}
	cfg = Defaults()
	cfg.Timeout = Duration(-time.Second)
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative timeout")
	}
}

func TestRunSetup(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		"ftp://nope",              // rejected, asked again
		"http://plant:8000/api",   // base URL
		"operator",                // username
		"",                        // timeout keeps default
		"2m",                      // upload timeout
		"yaml",                    // format
		"reports",                 // report dir
		"info",                    // log level
	}, "\n") + "\n")
	var out strings.Builder

	cfg, err := RunSetup(in, &out, nil)
	if err != nil {
		t.Fatalf("RunSetup: %v", err)
	}
	want := Config{
		BaseURL:       "http://plant:8000/api",
		Username:      "operator",
		Timeout:       Duration(5 * time.Second),
		UploadTimeout: Duration(2 * time.Minute),
		DefaultFormat: "yaml",
		ReportDir:     "reports",
		LogLevel:      "info",
	}
	if *cfg != want {
		t.Errorf("want %+v, got %+v", want, *cfg)
	}
	if !strings.Contains(out.String(), "invalid base URL") {
		t.Errorf("expected the rejected URL to be explained, got:\n%s", out.String())
	}
}

func TestRunSetupKeepsExisting(t *testing.T) {
	existing := &Config{BaseURL: "http://kept:8000/api", Username: "bob"}
	in := strings.NewReader(strings.Repeat("\n", 7))

	cfg, err := RunSetup(in, &strings.Builder{}, existing)
	if err != nil {
		t.Fatalf("RunSetup: %v", err)
	}
	if cfg.BaseURL != existing.BaseURL || cfg.Username != existing.Username {
		t.Errorf("existing values not kept: %+v", cfg)
	}
}
