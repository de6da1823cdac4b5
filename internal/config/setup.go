package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fakeyudi/chemvis/internal/render"
	"github.com/fakeyudi/chemvis/internal/transport"
)

// RunSetup runs the interactive setup wizard and returns the resulting config.
// If existing is non-nil, it is used as the default for each prompt (edit mode).
// Invalid answers are asked again.
func RunSetup(in io.Reader, out io.Writer, existing *Config) (*Config, error) {
	r := bufio.NewReader(in)

	ask := func(prompt, defaultVal string) (string, error) {
		if defaultVal != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, defaultVal)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		line, err := r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return defaultVal, nil
		}
		return line, nil
	}

	askValid := func(prompt, defaultVal string, check func(string) error) (string, error) {
		for {
			ans, err := ask(prompt, defaultVal)
			if err != nil {
				return "", err
			}
			if err := check(ans); err != nil {
				fmt.Fprintf(out, "    %v\n", err)
				continue
			}
			return ans, nil
		}
	}

	cfg := Defaults()
	if existing != nil {
		overlay(&cfg, existing)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  ┌─────────────────────────────────┐")
	fmt.Fprintln(out, "  │   chemvis setup                 │")
	fmt.Fprintln(out, "  └─────────────────────────────────┘")
	fmt.Fprintln(out)

	var err error

	cfg.BaseURL, err = askValid("  Backend API URL", cfg.BaseURL, transport.ValidateBaseURL)
	if err != nil {
		return nil, err
	}

	cfg.Username, err = ask("  Default username (blank to ask every time)", cfg.Username)
	if err != nil {
		return nil, err
	}

	timeout, err := askValid("  Request timeout", cfg.Timeout.Std().String(), checkDuration)
	if err != nil {
		return nil, err
	}
	cfg.Timeout = mustDuration(timeout)

	upload, err := askValid("  Upload timeout", cfg.UploadTimeout.Std().String(), checkDuration)
	if err != nil {
		return nil, err
	}
	cfg.UploadTimeout = mustDuration(upload)

	cfg.DefaultFormat, err = askValid("  Default output format ("+strings.Join(render.Formats, "/")+")", cfg.DefaultFormat, func(s string) error {
		_, err := render.For(s)
		return err
	})
	if err != nil {
		return nil, err
	}

	cfg.ReportDir, err = ask("  Directory for saved reports", cfg.ReportDir)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel, err = askValid("  Log level (debug/info/warn/error)", cfg.LogLevel, func(s string) error {
		_, err := log.ParseLevel(s)
		return err
	})
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(out)
	return &cfg, nil
}

func checkDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func mustDuration(s string) Duration {
	d, _ := time.ParseDuration(s)
	return Duration(d)
}
