// Package settings implements the §6.7 key/value configuration contract:
// a JSON-backed map with typed accessors, persisted to disk and watched
// for external changes via fsnotify so both in-process writes and an
// out-of-band edit trigger the same change signal.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/decenza/de1core/internal/logging"
)

// Store is a JSON-backed key/value settings store with typed accessors.
// All keys consumed by the core per §6.7 (bleHealthRefreshEnabled,
// dailyBackupHour, visualizerUsername, aiProvider, mqtt*, etc.) live here
// as plain entries; the store itself has no knowledge of key semantics.
type Store struct {
	mu       sync.RWMutex
	path     string
	values   map[string]any
	watchers []func(key string)

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// sensitiveKeys holds keys excluded from the backup engine's settings
// export (§4.5 backup algorithm step 1).
var sensitiveKeys = map[string]bool{
	"visualizerPassword": true,
	"aiApiKey":           true,
	"mqttPassword":       true,
}

// Open loads the settings file at path, creating it if missing, and starts
// an fsnotify watch on it so external edits trigger Watch callbacks.
func Open(path string) (*Store, error) {
	s := &Store{
		path:   path,
		values: make(map[string]any),
		done:   make(chan struct{}),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create settings watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch settings directory: %w", err)
	}
	s.watcher = w

	go s.watchLoop()

	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read settings %s: %w", s.path, err)
	}

	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse settings %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

func (s *Store) watchLoop() {
	logger := logging.Get(logging.CategoryConfig)
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := s.load(); err != nil {
				logger.Warn("reload settings after external change: %v", err)
				continue
			}
			s.notifyAll()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("settings watcher error: %v", err)
		}
	}
}

func (s *Store) notifyAll() {
	s.mu.RLock()
	watchers := append([]func(string){}, s.watchers...)
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	for _, fn := range watchers {
		for _, k := range keys {
			fn(k)
		}
	}
}

// Close stops the file watch.
func (s *Store) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Watch registers fn to be called with the affected key after an
// in-process Set. Whenever the settings file is written or created on
// disk (by an external edit, or by Set itself), the file is reloaded and
// fn is also called once for every key in the store.
func (s *Store) Watch(fn func(key string)) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

func (s *Store) notify(key string) {
	s.mu.RLock()
	watchers := append([]func(string){}, s.watchers...)
	s.mu.RUnlock()
	for _, fn := range watchers {
		fn(key)
	}
}

// Set stores a value and persists the store to disk, then fires Watch
// callbacks for key.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	s.values[key] = value
	err := s.persistLocked()
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notify(key)
	return nil
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

// Bool returns the boolean value at key, or def if absent or the wrong type.
func (s *Store) Bool(key string, def bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key].(bool); ok {
		return v
	}
	return def
}

// Int returns the integer value at key, or def if absent or the wrong type.
// JSON numbers decode as float64, so this accepts any numeric value with
// no fractional part.
func (s *Store) Int(key string, def int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch v := s.values[key].(type) {
	case float64:
		if float64(int(v)) == v {
			return int(v)
		}
	case int:
		return v
	}
	return def
}

// String returns the string value at key, or def if absent or the wrong type.
func (s *Store) String(key string, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key].(string); ok {
		return v
	}
	return def
}

// All returns a shallow copy of the entire store, for the backup engine's
// settings export. Keys in sensitiveKeys are omitted.
func (s *Store) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		if sensitiveKeys[k] {
			continue
		}
		out[k] = v
	}
	return out
}
