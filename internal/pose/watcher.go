package pose

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads a pose document when it changes on disk. A document that
// fails to load is logged and the previous library stays in use.
type Watcher struct {
	watcher    *fsnotify.Watcher
	path       string
	defaultKey string
	onReload   func(*Library)
	log        zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWatcher watches the directory holding path, so editors that replace the
// file by rename are picked up too.
func NewWatcher(path, defaultKey string, log zerolog.Logger, onReload func(*Library)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		watcher:    fw,
		path:       abs,
		defaultKey: defaultKey,
		onReload:   onReload,
		log:        log,
		done:       make(chan struct{}),
	}

	w.wg.Add(1)
	go w.watchLoop()

	return w, nil
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("pose watcher error")
		}
	}
}

func (w *Watcher) reload() {
	lib, err := LoadFile(w.path, w.defaultKey)
	if err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("pose reload failed, keeping previous library")
		return
	}
	w.log.Info().Str("path", w.path).Int("poses", lib.Len()).Msg("pose library reloaded")
	if w.onReload != nil {
		w.onReload(lib)
	}
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
