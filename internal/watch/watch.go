// Package watch uploads CSV files as they appear in a directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ttlworker "github.com/FloatTech/ttl"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/fakeyudi/chemvis/internal/dataset"
	"github.com/fakeyudi/chemvis/internal/session"
	"github.com/fakeyudi/chemvis/internal/transport"
)

// Defaults for New.
const (
	DefaultSettle = 500 * time.Millisecond
	DefaultDedupe = time.Minute
	DefaultRate   = rate.Limit(1)
	DefaultBurst  = 1
	csvExt        = ".csv"
)

// ErrSessionEnded stops the watcher when the server rejects the credentials.
var ErrSessionEnded = errors.New("session ended")

// Uploader is satisfied by *dataset.Controller.
type Uploader interface {
	UploadFile(ctx context.Context, path string) (*dataset.EquipmentSummary, error)
}

// Result reports one upload attempt.
type Result struct {
	Path    string
	Summary *dataset.EquipmentSummary
	Err     error
}

// fingerprint identifies one version of a file.
type fingerprint struct {
	mod  time.Time
	size int64
}

// Watcher turns file system events into uploads.
type Watcher struct {
	dir      string
	uploader Uploader
	logger   *log.Logger
	settle   time.Duration
	limiter  *rate.Limiter
	recent   *ttlworker.Cache[string, fingerprint]
	onResult func(Result)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(l *log.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithSettle sets how long a file must be quiet before it is uploaded.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// WithRate limits uploads to r per second with the given burst.
func WithRate(r rate.Limit, burst int) Option {
	return func(w *Watcher) { w.limiter = rate.NewLimiter(r, burst) }
}

// WithDedupe sets how long an uploaded file version is remembered.
func WithDedupe(d time.Duration) Option {
	return func(w *Watcher) { w.recent = ttlworker.NewCache[string, fingerprint](d) }
}

// OnResult registers fn to run after every upload attempt.
func OnResult(fn func(Result)) Option {
	return func(w *Watcher) { w.onResult = fn }
}

// New returns a watcher for dir. Run starts it.
func New(dir string, up Uploader, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		uploader: up,
		logger:   log.Default(),
		settle:   DefaultSettle,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.limiter == nil {
		w.limiter = rate.NewLimiter(DefaultRate, DefaultBurst)
	}
	if w.recent == nil {
		w.recent = ttlworker.NewCache[string, fingerprint](DefaultDedupe)
	}
	return w
}

// Watch runs a watcher on dir until ctx is cancelled or the session ends.
func Watch(ctx context.Context, dir string, up Uploader, opts ...Option) error {
	return New(dir, up, opts...).Run(ctx)
}

// Run blocks until ctx is cancelled (nil) or an upload is rejected as
// unauthorized (ErrSessionEnded). Every other upload failure is reported
// through OnResult and watching continues.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", w.dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching for csv files", "dir", w.dir)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.settle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isCSV(event.Name) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.settle)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "err", err)

		case <-timer.C:
			if err := w.flush(ctx, pending); err != nil {
				return err
			}
			clear(pending)
		}
	}
}

// flush uploads every settled path in name order.
func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}) error {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil || st.IsDir() {
			continue
		}
		fp := fingerprint{mod: st.ModTime(), size: st.Size()}
		if prev := w.recent.Get(p); prev == fp {
			w.logger.Debug("skipping unchanged file", "path", p)
			continue
		}
		if err := w.limiter.Wait(ctx); err != nil {
			return nil
		}
		sum, err := w.uploader.UploadFile(ctx, p)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		w.recent.Set(p, fp)
		w.report(Result{Path: p, Summary: sum, Err: err})
		if transport.IsUnauthorized(err) || errors.Is(err, session.ErrNotLoggedIn) {
			return fmt.Errorf("%w: %s", ErrSessionEnded, session.MsgSessionExpired)
		}
	}
	return nil
}

func (w *Watcher) report(r Result) {
	if r.Err != nil {
		w.logger.Warn("upload failed", "path", r.Path, "err", r.Err)
	} else {
		w.logger.Info("uploaded", "path", r.Path, "id", r.Summary.ID, "total", r.Summary.TotalCount)
	}
	if w.onResult != nil {
		w.onResult(r)
	}
}

func isCSV(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), csvExt)
}
