package dataset

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/fakeyudi/chemvis/internal/session"
	"github.com/fakeyudi/chemvis/internal/transport"
)

// Opener hands a URL to something that can navigate to it.
type Opener interface {
	Open(rawURL string) error
}

// SystemBrowser opens URLs with the platform's default handler and does not
// wait for it.
type SystemBrowser struct{}

func (SystemBrowser) Open(rawURL string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.Command("xdg-open", rawURL)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}
	go cmd.Wait()
	return nil
}

// reportQuery carries the credentials the report endpoint expects.
func (c *Controller) reportQuery() (url.Values, error) {
	user, pass, ok := c.session.Credentials()
	if !ok {
		return nil, session.ErrNotLoggedIn
	}
	return url.Values{"username": {user}, "password": {pass}}, nil
}

// ReportURL returns the navigable report link for dataset id. The link embeds
// the credentials in its query string, which is what the report endpoint
// accepts; treat it as a secret.
func (c *Controller) ReportURL(id int) (string, error) {
	q, err := c.reportQuery()
	if err != nil {
		return "", err
	}
	return c.api.URL(transport.ReportPath(id), q), nil
}

// DownloadReport opens the report link in the browser. Whether the download
// then succeeds is not tracked.
func (c *Controller) DownloadReport(id int) error {
	u, err := c.ReportURL(id)
	if err != nil {
		return err
	}
	c.logger.Info("opening report", "id", id)
	return c.opener.Open(u)
}

// SaveReport fetches the report for dataset id and writes it into dir. It
// returns the written path.
func (c *Controller) SaveReport(ctx context.Context, id int, dir string) (string, error) {
	q, err := c.reportQuery()
	if err != nil {
		return "", c.fail(err, MsgReportFailed)
	}
	resp, err := c.api.Do(ctx, transport.Request{
		Method:  http.MethodGet,
		Path:    transport.ReportPath(id),
		Query:   q,
		Header:  http.Header{"Accept": {"*/*"}},
		Timeout: c.uploadTimeout,
	})
	if err != nil {
		return "", c.fail(err, MsgReportFailed)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", c.fail(err, MsgReportFailed)
	}
	path := filepath.Join(dir, reportFilename(resp.Header, id))
	if err := os.WriteFile(path, resp.Body, 0o644); err != nil {
		return "", c.fail(err, MsgReportFailed)
	}
	c.logger.Info("report saved", "id", id, "path", path)
	return path, nil
}

// reportFilename prefers the server's Content-Disposition name.
func reportFilename(h http.Header, id int) string {
	if _, params, err := mime.ParseMediaType(h.Get("Content-Disposition")); err == nil {
		if name := filepath.Base(params["filename"]); name != "." && name != "/" && name != "" {
			return name
		}
	}
	return fmt.Sprintf("report_%d.pdf", id)
}
