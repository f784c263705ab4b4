package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mahir/coursebot/internal/observability"
	"github.com/rs/zerolog"
)

// Watcher reloads the logging section when the config file changes on disk.
// Only the log level is hot-reloadable; everything else requires a restart.
type Watcher struct {
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger
	configPath string
	onReload   func(*Config)
	debounce   time.Duration
	timer      *time.Timer
	stopCh     chan struct{}
}

// NewWatcher creates a config file watcher. onReload receives the freshly
// loaded config after every change.
func NewWatcher(configPath string, logger zerolog.Logger, onReload func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:    watcher,
		logger:     logger,
		configPath: configPath,
		onReload:   onReload,
		debounce:   500 * time.Millisecond,
		stopCh:     make(chan struct{}),
	}

	// Watch the directory; editors replace files rather than writing in place.
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return nil, err
	}

	go w.run()

	return w, nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Config change detected")

				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Config watcher error")

		case <-w.stopCh:
			return
		}
	}
}

// scheduleReload debounces the reload so editor write bursts collapse into one.
func (w *Watcher) scheduleReload() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.configPath)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to reload config")
		return
	}

	observability.RecordConfigAudit(context.Background(), "config_reloaded", map[string]interface{}{
		"path": w.configPath,
	})
	w.logger.Info().Str("path", w.configPath).Msg("Config reloaded")

	if w.onReload != nil {
		w.onReload(cfg)
	}
}
