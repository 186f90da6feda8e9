package resolve

import (
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FileSource is a YAML-backed Source that hot-reloads on write, using
// the same atomic-pointer-swap-plus-debounced-watcher shape as the
// gateway's config Manager, scoped down to a flat key/value document.
type FileSource struct {
	path    string
	log     *slog.Logger
	values  atomic.Pointer[map[string]string]
	watcher *fsnotify.Watcher
}

// NewFileSource loads path once and returns a FileSource. Call Watch
// to enable hot-reload.
func NewFileSource(path string, log *slog.Logger) (*FileSource, error) {
	if log == nil {
		log = slog.Default()
	}
	fs := &FileSource{path: path, log: log}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileSource) load() error {
	values, err := loadYAMLFile(fs.path)
	if err != nil {
		return err
	}
	fs.values.Store(&values)
	return nil
}

// Get implements Source.
func (fs *FileSource) Get(key string) (string, bool) {
	m := fs.values.Load()
	if m == nil {
		return "", false
	}
	v, ok := (*m)[key]
	return v, ok
}

// Watch starts watching path for writes, debouncing rapid changes
// (500ms, matching the gateway manager's debounce window) and
// reloading atomically. A reload error is logged and the previous
// values are kept in place.
func (fs *FileSource) Watch(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(fs.path); err != nil {
		_ = watcher.Close()
		return err
	}
	fs.watcher = watcher

	go fs.watchLoop(stop)
	return nil
}

func (fs *FileSource) watchLoop(stop <-chan struct{}) {
	const debounceDelay = 500 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case <-stop:
			if timer != nil {
				timer.Stop()
			}
			_ = fs.watcher.Close()
			return
		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceDelay, func() {
				if err := fs.load(); err != nil {
					fs.log.Error("config source reload failed, keeping previous values", "error", err)
				}
			})
		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			fs.log.Error("config source watcher error", "error", err)
		}
	}
}

// Close stops the file watcher, if running.
func (fs *FileSource) Close() error {
	if fs.watcher == nil {
		return nil
	}
	return fs.watcher.Close()
}

func loadYAMLFile(path string) (map[string]string, error) {
	// #nosec G304 -- path is caller-configured; reading a config file is expected.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var values map[string]string
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}
