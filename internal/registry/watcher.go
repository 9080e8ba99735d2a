package registry

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher refreshes the registry when descriptor files change in the
// project- or user-tier directories.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// Watch starts an fsnotify watcher over the registry's tier directories.
// Directories that do not exist are skipped. Returns nil (no watcher)
// when neither tier directory could be watched; the registry then relies
// on explicit Refresh calls only.
func (r *Registry) Watch() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watched := 0
	for _, dir := range []string{r.projectDir, r.userDir} {
		if dir == "" {
			continue
		}
		if err := fsw.Add(dir); err == nil {
			watched++
		}
	}
	if watched == 0 {
		fsw.Close()
		return nil, nil
	}

	w := &Watcher{
		registry: r,
		watcher:  fsw,
		done:     make(chan struct{}),
	}
	go w.loop()

	return w, nil
}

// loop rebuilds the index whenever a descriptor file is written,
// created, removed, or renamed.
func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !descriptorExts[filepath.Ext(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.registry.Refresh(); err != nil {
				log.Printf("registry refresh after %s: %v", filepath.Base(event.Name), err)
			}
		case <-w.watcher.Errors:
			// Keep watching; a transient error should not stop refreshes.
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
