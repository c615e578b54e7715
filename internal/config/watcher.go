package config

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/KilimcininKorOglu/obaidx/internal/logging"
)

// ConfigWatcher polls a config file and hands every valid new version to
// OnChange. Invalid versions are logged and skipped; the last valid
// configuration stays current.
type ConfigWatcher struct {
	filePath     string
	pollInterval time.Duration
	debounce     time.Duration
	onChange     func(oldCfg, newCfg *Config)
	logger       logging.Logger

	mu          sync.Mutex
	lastModTime time.Time
	lastSize    int64
	lastConfig  *Config
	cancel      context.CancelFunc
	stoppedCh   chan struct{}
}

// WatcherConfig holds config watcher configuration.
type WatcherConfig struct {
	FilePath     string
	PollInterval time.Duration // Default: 100ms
	Debounce     time.Duration // Default: 200ms
	OnChange     func(oldCfg, newCfg *Config)
	Logger       logging.Logger
}

// NewConfigWatcher creates a new config file watcher and loads the
// current file.
func NewConfigWatcher(cfg *WatcherConfig) (*ConfigWatcher, error) {
	if cfg.FilePath == "" {
		return nil, ErrMissingConfigFile
	}
	if cfg.OnChange == nil {
		return nil, ErrMissingOnChange
	}

	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 100 * time.Millisecond
	}
	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = 200 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	info, err := os.Stat(cfg.FilePath)
	if err != nil {
		return nil, err
	}
	initialConfig, err := LoadConfig(cfg.FilePath)
	if err != nil {
		return nil, err
	}

	return &ConfigWatcher{
		filePath:     cfg.FilePath,
		pollInterval: pollInterval,
		debounce:     debounce,
		onChange:     cfg.OnChange,
		logger:       logger.WithFields("config", cfg.FilePath),
		lastModTime:  info.ModTime(),
		lastSize:     info.Size(),
		lastConfig:   initialConfig,
	}, nil
}

// Start begins watching until ctx is done or Stop is called.
func (w *ConfigWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.stoppedCh = make(chan struct{})
	go w.watchLoop(ctx, w.stoppedCh)
}

// Stop stops watching and waits for the polling loop to exit.
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	cancel, stopped := w.cancel, w.stoppedCh
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (w *ConfigWatcher) watchLoop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case <-ticker.C:
			if !w.checkFileChanged() {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounce)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			w.triggerReload()
			debounceTimer = nil
			debounceCh = nil
		}
	}
}

func (w *ConfigWatcher) checkFileChanged() bool {
	info, err := os.Stat(w.filePath)
	if err != nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if info.ModTime() == w.lastModTime && info.Size() == w.lastSize {
		return false
	}
	w.lastModTime = info.ModTime()
	w.lastSize = info.Size()
	return true
}

func (w *ConfigWatcher) triggerReload() {
	newConfig, err := LoadConfig(w.filePath)
	if err != nil {
		w.logger.Warn("config reload failed", "error", err)
		return
	}
	if errs := ValidateConfig(newConfig); len(errs) > 0 {
		w.logger.Warn("config reload rejected", "error", errs[0], "problems", len(errs))
		return
	}

	w.mu.Lock()
	oldConfig := w.lastConfig
	w.lastConfig = newConfig
	w.mu.Unlock()

	w.logger.Info("config reloaded")
	w.onChange(oldConfig, newConfig)
}

// IsRunning returns true if the watcher is running.
func (w *ConfigWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// GetCurrentConfig returns the last loaded config.
func (w *ConfigWatcher) GetCurrentConfig() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastConfig
}
