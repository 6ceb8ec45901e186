package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[requests]\ndisplay_limit = 5\n"), 0644); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config, err error) {
		if err == nil && cfg != nil {
			reloaded <- cfg
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.SetDebounce(20 * time.Millisecond)
	w.Start(context.Background())
	defer w.Stop()

	if err := os.WriteFile(path, []byte("[requests]\ndisplay_limit = 9\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Requests.DisplayLimit != 9 {
			t.Errorf("DisplayLimit = %d, want 9", cfg.Requests.DisplayLimit)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(""), 0644); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(cfg *Config, err error) {
		reloaded <- struct{}{}
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.SetDebounce(10 * time.Millisecond)
	w.Start(context.Background())
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
		t.Error("callback fired for an unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}
