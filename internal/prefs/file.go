package prefs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// fileDocument is the layout of a preference file:
//
//	[preferences]
//	screen_off_gesture_250 = "camera"
type fileDocument struct {
	Preferences map[string]string `toml:"preferences"`
}

// FileStore keeps preferences in a TOML file and reloads them when the file
// changes on disk, so edits made by a settings application apply to the
// next gesture without restarting the daemon.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	values map[string]string

	watcher  *fsnotify.Watcher
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	onReload []func()
}

// OpenFile loads the preference file at path. A missing file is treated as
// empty.
func OpenFile(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &FileStore{
		path:   path,
		logger: logger,
		values: map[string]string{},
		ctx:    ctx,
		cancel: cancel,
	}
	if err := f.reload(); err != nil {
		cancel()
		return nil, err
	}
	return f, nil
}

// GetString implements Store.
func (f *FileStore) GetString(key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok, nil
}

// SetString implements WritableStore. The whole file is rewritten.
func (f *FileStore) SetString(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := make(map[string]string, len(f.values)+1)
	for k, v := range f.values {
		next[k] = v
	}
	next[key] = value
	if err := f.write(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

// Delete implements WritableStore.
func (f *FileStore) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.values[key]; !ok {
		return nil
	}
	next := make(map[string]string, len(f.values))
	for k, v := range f.values {
		if k != key {
			next[k] = v
		}
	}
	if err := f.write(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

// OnReload registers a callback invoked after each successful reload.
// Must be called before Watch.
func (f *FileStore) OnReload(cb func()) {
	f.onReload = append(f.onReload, cb)
}

// Watch starts watching the preference file for changes.
func (f *FileStore) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory so that atomic replace-by-rename is seen.
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		watcher.Close()
		return fmt.Errorf("create preference directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	f.watcher = watcher
	f.done = make(chan struct{})
	go f.watchLoop()
	return nil
}

// Close stops watching.
func (f *FileStore) Close() error {
	f.cancel()
	if f.watcher == nil {
		return nil
	}
	err := f.watcher.Close()
	<-f.done
	return err
}

func (f *FileStore) watchLoop() {
	defer close(f.done)

	// Editors often write in several steps; reload once things settle.
	var debounce *time.Timer
	const debounceDelay = 100 * time.Millisecond
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-f.ctx.Done():
			return

		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(f.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				if err := f.reload(); err != nil {
					f.logger.Warn("preference reload failed", "path", f.path, "error", err)
					return
				}
				for _, cb := range f.onReload {
					cb()
				}
			})

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("preference watcher error", "error", err)
		}
	}
}

// reload replaces the in-memory values with the file contents. On a parse
// error the previous values are kept.
func (f *FileStore) reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			f.mu.Lock()
			f.values = map[string]string{}
			f.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read preferences: %w", err)
	}

	var doc fileDocument
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return fmt.Errorf("decode TOML: %w", err)
	}
	if doc.Preferences == nil {
		doc.Preferences = map[string]string{}
	}

	f.mu.Lock()
	f.values = doc.Preferences
	f.mu.Unlock()
	return nil
}

// write persists values atomically. Caller holds f.mu.
func (f *FileStore) write(values map[string]string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(fileDocument{Preferences: values}); err != nil {
		return fmt.Errorf("encode TOML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("create preference directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}
