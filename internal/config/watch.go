// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a Watcher waits after the last change to
// a settings file before reloading it.
const DefaultDebounce = 100 * time.Millisecond

// A ChangeFunc receives reloaded settings, or the error that prevented
// a reload. It is never called concurrently with itself.
type ChangeFunc func(s Settings, err error)

// A Watcher reloads a settings file whenever it changes.
//
// The directory holding the file is watched, rather than the file,
// because many editors save by writing a temporary file and renaming
// it over the original.
type Watcher struct {
	path     string
	onChange ChangeFunc
	debounce time.Duration
	fs       *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	done    chan struct{}
	cbMu    sync.Mutex
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the debounce interval. Non-positive values are
// ignored.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watch starts watching the settings file at path and calls onChange
// after each change. Call Stop to release the watcher.
func Watch(path string, onChange ChangeFunc, opts ...WatchOption) (*Watcher, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if onChange == nil {
		panic("config: nil change func")
	}
	if _, err := DetectFormat(path); err != nil {
		return nil, err
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fs.Add(dir); err != nil {
		return nil, errors.Join(fmt.Errorf("config: watch %s: %w", dir, err), fs.Close())
	}
	w := &Watcher{
		path:     path,
		onChange: onChange,
		debounce: DefaultDebounce,
		fs:       fs,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.run()
	return w, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Stop stops watching and waits for the event loop to exit. A reload
// already in progress may still deliver its result. Stop is idempotent.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	err := w.fs.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	name := filepath.Base(w.path)
	for {
		select {
		case evt, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Base(evt.Name) != name {
				continue
			}
			if evt.Has(fsnotify.Write) || evt.Has(fsnotify.Create) || evt.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.deliver(Settings{}, fmt.Errorf("config: watch: %w", err))
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}
	s, err := Load(w.path)
	w.deliver(s, err)
}

func (w *Watcher) deliver(s Settings, err error) {
	w.cbMu.Lock()
	defer w.cbMu.Unlock()
	w.onChange(s, err)
}
