package notify

import (
	"context"
	"path/filepath"
	"time"

	"github.com/dotsetgreg/pibear/pkg/logger"
	"github.com/fsnotify/fsnotify"
)

const scheduleReloadDebounce = 500 * time.Millisecond

// WatchSchedule reloads message jobs whenever the schedule file changes. It
// watches the parent directory so editors that replace the file by rename are
// still seen. It blocks until ctx is done. If the watcher cannot be set up,
// hot reload is disabled with a warning and nil is returned; SIGHUP still
// reloads.
func (n *Notifier) WatchSchedule(ctx context.Context) error {
	target := filepath.Clean(n.opts.ScheduleFile)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WarnCF("notify", "Schedule hot reload disabled", map[string]interface{}{"error": err.Error()})
		return nil
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		logger.WarnCF("notify", "Schedule hot reload disabled", map[string]interface{}{
			"path":  filepath.Dir(target),
			"error": err.Error(),
		})
		return nil
	}
	logger.InfoCF("notify", "Watching schedule file", map[string]interface{}{"path": target})

	var (
		reloadTimer *time.Timer
		reloadCh    <-chan time.Time
	)
	resetReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(scheduleReloadDebounce)
		} else {
			if !reloadTimer.Stop() {
				select {
				case <-reloadTimer.C:
				default:
				}
			}
			reloadTimer.Reset(scheduleReloadDebounce)
		}
		reloadCh = reloadTimer.C
	}
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				resetReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WarnCF("notify", "Schedule watcher error", map[string]interface{}{"error": err.Error()})
		case <-reloadCh:
			reloadCh = nil
			if _, err := n.ReloadMessageJobs(); err != nil {
				logger.WarnCF("notify", "Keeping previous message jobs", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}
