package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/chemvis/internal/config"
	"github.com/fakeyudi/chemvis/internal/dataset"
	"github.com/fakeyudi/chemvis/internal/session"
	"github.com/fakeyudi/chemvis/internal/transport"
)

// app is one client session: transport, session and dataset controllers
// created together and torn down together.
type app struct {
	client *transport.Client
	auth   *session.Controller
	data   *dataset.Controller
}

// opener is replaced in tests so no browser is launched.
var opener dataset.Opener = dataset.SystemBrowser{}

func newApp(l *log.Logger) (*app, error) {
	client, err := transport.New(cfg.BaseURL,
		transport.WithTimeout(cfg.Timeout.Std()),
		transport.WithLogger(l),
	)
	if err != nil {
		return nil, err
	}
	auth := session.NewController(client, session.WithLogger(l))
	data := dataset.NewController(client, auth,
		dataset.WithLogger(l),
		dataset.WithUploadTimeout(cfg.UploadTimeout.Std()),
		dataset.WithOpener(opener),
	)
	return &app{client: client, auth: auth, data: data}, nil
}

// login resolves credentials from flags, config, environment or the terminal
// and validates them against the server.
func (a *app) login(ctx context.Context, cmd *cobra.Command) error {
	username, err := resolveUsername(cmd)
	if err != nil {
		return err
	}
	password, err := resolvePassword(cmd)
	if err != nil {
		return err
	}
	if err := a.auth.Login(ctx, username, password); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return errors.New(a.auth.Snapshot().AuthError)
	}
	return nil
}

// apiError turns a dataset failure into the message the controller recorded.
func (a *app) apiError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if msg := a.data.Snapshot().APIError; msg != "" {
		return errors.New(msg)
	}
	return err
}

func resolveUsername(cmd *cobra.Command) (string, error) {
	if cfg.Username != "" {
		return cfg.Username, nil
	}
	if !isInteractive() {
		return "", fmt.Errorf("no username: pass --username or set %s", config.EnvUsername)
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Username: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading username: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func resolvePassword(cmd *cobra.Command) (string, error) {
	if flagPasswordStdin {
		return readPasswordLine(cmd.InOrStdin())
	}
	if p := os.Getenv(config.EnvPassword); p != "" {
		return p, nil
	}
	if !isInteractive() {
		return "", fmt.Errorf("no password: use --password-stdin or set %s", config.EnvPassword)
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	b, err := term.ReadPassword(os.Stdin.Fd())
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
