package relayconfig

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadCallback is invoked after a debounced config file change is
// re-parsed. cfg is nil only if Load itself returned a hard read/parse
// error; a present-but-invalid file still yields a non-nil cfg with
// invalid fields reverted to their defaults (see errs).
type ReloadCallback func(cfg *Config, errs []error)

// Watcher monitors the relay's YAML config file and triggers a debounced
// reload on write/create/rename, handing the re-parsed config to its
// callback; the Watcher itself applies nothing to other components.
type Watcher struct {
	path     string
	callback ReloadCallback
	logger   *slog.Logger
	debounce time.Duration
}

// WatcherOption configures a Watcher at construction time.
type WatcherOption func(*Watcher)

// WithDebounce overrides the default 1s debounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher creates a config file watcher. logger may be nil.
func NewWatcher(path string, callback ReloadCallback, logger *slog.Logger, opts ...WatcherOption) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{path: path, callback: callback, logger: logger, debounce: time.Second}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches the config file's parent directory (to catch atomic
// write-temp+rename saves) until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return err
	}

	targetName := filepath.Base(w.path)
	reloadCh := make(chan struct{}, 1)
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != targetName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				select {
				case reloadCh <- struct{}{}:
				default:
				}
			})

		case <-reloadCh:
			cfg, errs := Load(w.path)
			w.callback(cfg, errs)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("relay config watcher: fsnotify error", "error", err)
		}
	}
}
