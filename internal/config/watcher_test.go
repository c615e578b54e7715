package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigWatcherErrors(t *testing.T) {
	_, err := NewConfigWatcher(&WatcherConfig{OnChange: func(_, _ *Config) {}})
	assert.ErrorIs(t, err, ErrMissingConfigFile)

	_, err = NewConfigWatcher(&WatcherConfig{FilePath: "x.yaml"})
	assert.ErrorIs(t, err, ErrMissingOnChange)

	_, err = NewConfigWatcher(&WatcherConfig{FilePath: filepath.Join(t.TempDir(), "missing.yaml"), OnChange: func(_, _ *Config) {}})
	assert.Error(t, err)
}

func TestConfigWatcherReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obaidx.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  indexEntryLimit: 10\n"), 0o644))

	changes := make(chan [2]*Config, 4)
	w, err := NewConfigWatcher(&WatcherConfig{
		FilePath:     path,
		PollInterval: 10 * time.Millisecond,
		Debounce:     20 * time.Millisecond,
		OnChange:     func(oldCfg, newCfg *Config) { changes <- [2]*Config{oldCfg, newCfg} },
	})
	require.NoError(t, err)
	assert.Equal(t, 10, w.GetCurrentConfig().Backend.IndexEntryLimit)

	w.Start(context.Background())
	defer w.Stop()
	assert.True(t, w.IsRunning())

	require.NoError(t, os.WriteFile(path, []byte("backend:\n  indexEntryLimit: 2500\n"), 0o644))
	select {
	case c := <-changes:
		assert.Equal(t, 10, c[0].Backend.IndexEntryLimit)
		assert.Equal(t, 2500, c[1].Backend.IndexEntryLimit)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}

	// An invalid version is skipped.
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  substringLength: -3\n"), 0o644))
	select {
	case <-changes:
		t.Fatal("invalid config was applied")
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, 2500, w.GetCurrentConfig().Backend.IndexEntryLimit)

	w.Stop()
	assert.False(t, w.IsRunning())
}

func TestConfigWatcherStopsWithContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obaidx.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w, err := NewConfigWatcher(&WatcherConfig{FilePath: path, PollInterval: 5 * time.Millisecond, OnChange: func(_, _ *Config) {}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	w.Start(ctx)
	cancel()
	w.Stop()
	assert.False(t, w.IsRunning())
}
