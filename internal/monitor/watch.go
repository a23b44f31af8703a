package monitor

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"quantsignal/internal/logger"
)

// watch requests a reload whenever path (or its sqlite -wal/-journal siblings) changes.
// The directory is watched because sqlite replaces and truncates these files.
func (m *Monitor) watch(ctx context.Context, path string) (func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}
	base := filepath.Base(abs)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-w.Events:
				if !ok {
					return
				}
				if !strings.HasPrefix(filepath.Base(evt.Name), base) {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				m.RequestReload()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warnf("monitor: watch %s: %v", path, err)
			}
		}
	}()
	logger.Infof("monitor: watching %s for strategy changes", abs)
	return func() {
		_ = w.Close()
		<-done
	}, nil
}
