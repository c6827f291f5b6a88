package simhost

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/go-permit/permit/pkg/errors"
)

const watchDebounce = 200 * time.Millisecond

// Watch monitors the state file and reloads it when it changes, so edits
// from another process (or an editor) turn into change events here. Events
// are debounced; a burst of writes produces one reload. The method blocks
// until ctx is cancelled.
func (h *Host) Watch(ctx context.Context) error {
	if h.statePath == "" {
		return ErrNoStateFile
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory rather than the file: editors and atomic saves
	// replace the inode, which drops a direct file watch.
	if err := watcher.Add(filepath.Dir(h.statePath)); err != nil {
		return err
	}
	base := filepath.Base(h.statePath)

	var (
		mu            sync.Mutex
		pending       bool
		debounceTimer *time.Timer
	)
	doReload := func() {
		mu.Lock()
		pending = false
		mu.Unlock()
		if err := h.Load(ctx); err != nil {
			errors.Report(&errors.PermitError{
				Op:   "simhost.reload",
				Kind: errors.KindHost,
				Err:  err,
			})
		}
	}
	defer func() {
		mu.Lock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			// Debounce: reset the timer on each event
			mu.Lock()
			if !pending {
				pending = true
				debounceTimer = time.AfterFunc(watchDebounce, doReload)
			} else {
				debounceTimer.Reset(watchDebounce)
			}
			mu.Unlock()

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are not fatal for a simulated provider
		}
	}
}
