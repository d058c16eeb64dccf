package config

import (
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher logs config-file and tier-root changes for a running process. A
// change is never hot-reloaded — watermarks and tier membership are fixed
// for the process's lifetime (spec §5) — it is only surfaced so an operator
// knows a restart picked up stale settings.
type Watcher struct {
	fsw *fsnotify.Watcher
	log *zap.Logger
	done chan struct{}
}

// NewWatcher starts watching the config file and every tier root named in
// cfg. Call Close when the watcher is no longer needed.
func NewWatcher(cfg *Configuration, log *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(cfg.SourcePath); err != nil {
		fsw.Close()
		return nil, err
	}
	for _, t := range cfg.Tiers {
		if err := fsw.Add(t.Path); err != nil {
			log.Warn("config: failed to watch tier root", zap.String("tier", t.ID), zap.Error(err))
		}
	}

	w := &Watcher{fsw: fsw, log: log, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Name == "" {
				continue
			}
			w.log.Warn("config: watched path changed, restart to pick up new settings",
				zap.String("path", event.Name), zap.String("op", event.Op.String()))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("config: watcher error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
