package config

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/nghyane/llm-relay/internal/logging"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher monitors the configuration file and invokes a callback with the
// reloaded configuration. Only runtime-tunable settings (rate limit, quota
// limits, debug) are expected to change; the provider registry is immutable.
type Watcher struct {
	configPath     string
	reloadCallback func(*Config)
	watcher        *fsnotify.Watcher
	reloadMu       sync.Mutex
	reloadTimer    *time.Timer
	lastHash       string
	done           chan struct{}
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(configPath string, callback func(*Config)) *Watcher {
	return &Watcher{
		configPath:     configPath,
		reloadCallback: callback,
		done:           make(chan struct{}),
	}
}

// Start begins watching the config file's directory. Watching the directory
// instead of the file survives editors that replace the file on save.
func (w *Watcher) Start() error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fsWatcher
	w.lastHash = fileHash(w.configPath)

	if err = fsWatcher.Add(filepath.Dir(w.configPath)); err != nil {
		_ = fsWatcher.Close()
		return err
	}

	go w.loop()
	log.Debugf("config watcher started for %s", w.configPath)
	return nil
}

// Stop terminates the watcher.
func (w *Watcher) Stop() {
	close(w.done)
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("config watcher error")
		}
	}
}

// scheduleReload debounces bursts of write events into a single reload.
func (w *Watcher) scheduleReload() {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()
	if w.reloadTimer != nil {
		w.reloadTimer.Stop()
	}
	w.reloadTimer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	hash := fileHash(w.configPath)
	if hash != "" && hash == w.lastHash {
		return
	}

	cfg, err := LoadConfig(w.configPath, false)
	if err != nil {
		log.WithError(err).Warnf("failed to reload config from %s, keeping previous settings", w.configPath)
		return
	}
	w.lastHash = hash
	log.Infof("config reloaded from %s", w.configPath)
	if w.reloadCallback != nil {
		w.reloadCallback(cfg)
	}
}

func fileHash(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
