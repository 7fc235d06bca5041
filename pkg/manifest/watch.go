package manifest

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads a manifest whenever its file changes on disk. Editors
// commonly write via rename, so the parent directory is watched rather
// than the file itself.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   zerolog.Logger
}

// NewWatcher creates a watcher for the manifest at path.
func NewWatcher(path string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		debounce: 250 * time.Millisecond,
		logger:   logger.With().Str("component", "watcher").Logger(),
	}
}

// Watch blocks until ctx is cancelled, invoking onChange with each
// successfully reloaded stack. Reload failures are logged and skipped so
// a half-written file does not kill the watch loop.
func (w *Watcher) Watch(ctx context.Context, onChange func(*Stack)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return err
	}

	w.logger.Info().Str("path", w.path).Msg("watching manifest")

	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Coalesce bursts of events from a single save.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")

		case <-reload:
			stack, err := Load(w.path)
			if err != nil {
				w.logger.Warn().Err(err).Msg("manifest reload failed")
				continue
			}
			w.logger.Info().Str("stack", stack.Name).Int("units", len(stack.Units)).
				Msg("manifest reloaded")
			onChange(stack)
		}
	}
}
