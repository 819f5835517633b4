// Package watcher reloads the service section of the config file while the server runs.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/estateiq/estateiq/internal/config"
	log "github.com/sirupsen/logrus"
)

// defaultPollInterval controls how often the config file is checked.
const defaultPollInterval = 5 * time.Second

// ReloadFunc receives every successfully parsed service config.
type ReloadFunc func(cfg config.ServiceConfig)

// ConfigWatcher polls the config file and applies changed service settings.
type ConfigWatcher struct {
	configPath   string
	pollInterval time.Duration
	reload       ReloadFunc

	mu      sync.Mutex
	cfgHash string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewConfigWatcher constructs a ConfigWatcher. A non-positive interval uses the default.
func NewConfigWatcher(configPath string, interval time.Duration, reload ReloadFunc) *ConfigWatcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &ConfigWatcher{
		configPath:   strings.TrimSpace(configPath),
		pollInterval: interval,
		reload:       reload,
	}
}

// Start launches the polling goroutine. The current file contents are treated as applied.
func (w *ConfigWatcher) Start(ctx context.Context) {
	if w == nil || w.configPath == "" || w.reload == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	if data, errRead := os.ReadFile(w.configPath); errRead == nil {
		w.cfgHash = hashBytes(data)
	}
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(runCtx)
	}()
	log.Infof("config watcher started (poll_interval=%s)", w.pollInterval)
}

// Stop cancels polling and waits for the goroutine to exit.
func (w *ConfigWatcher) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *ConfigWatcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll()
		}
	}
}

// Poll reloads the config when its contents changed since the last poll and
// reports whether a reload happened.
func (w *ConfigWatcher) Poll() bool {
	if w == nil || w.configPath == "" || w.reload == nil {
		return false
	}
	data, errRead := os.ReadFile(w.configPath)
	if errRead != nil || len(data) == 0 {
		return false
	}
	hash := hashBytes(data)

	w.mu.Lock()
	prevHash := w.cfgHash
	w.mu.Unlock()
	if prevHash != "" && prevHash == hash {
		return false
	}

	cfg, errLoad := config.LoadServiceConfig(w.configPath)
	if errLoad != nil {
		log.WithError(errLoad).Warn("config watcher: load config failed")
		return false
	}

	w.mu.Lock()
	w.cfgHash = hash
	w.mu.Unlock()

	w.reload(cfg)
	log.Info("config watcher: service settings reloaded")
	return true
}

// hashBytes returns the SHA-256 hex digest of the input bytes.
func hashBytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
