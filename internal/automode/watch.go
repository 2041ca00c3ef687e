package automode

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce absorbs the burst of events editors emit for one save
const watchDebounce = 250 * time.Millisecond

// Watch reloads the config file at path whenever it changes and applies it
// through Update. Invalid files are logged and ignored, leaving the current
// config in place. It blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir, file := filepath.Dir(abs), filepath.Base(abs)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// watch the directory so atomic rename-on-save is seen
	if err := w.Add(dir); err != nil {
		return err
	}
	m.logger.Info("Watching auto-mode config", "path", abs)

	var (
		mu       sync.Mutex
		timer    *time.Timer
		lastHash [32]byte
	)
	if data, err := os.ReadFile(abs); err == nil {
		lastHash = sha256.Sum256(data)
	}

	reload := func() {
		data, err := os.ReadFile(abs)
		if err != nil {
			m.logger.Warn("Auto-mode config unreadable", "path", abs, "error", err)
			return
		}

		mu.Lock()
		h := sha256.Sum256(data)
		unchanged := h == lastHash
		lastHash = h
		mu.Unlock()
		if unchanged {
			return
		}

		cfg, err := Parse(data)
		if err != nil {
			m.logger.Warn("Auto-mode config rejected", "path", abs, "error", err)
			return
		}
		if err := m.Update(ctx, cfg); err != nil {
			m.logger.Error("Failed to apply auto-mode config", "path", abs, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, reload)
			mu.Unlock()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("Auto-mode config watcher error", "error", err)
		}
	}
}
