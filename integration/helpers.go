//go:build integration

package integration

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/hochfrequenz/nf-ci-console/internal/config"
	"github.com/hochfrequenz/nf-ci-console/internal/gateway"
	"github.com/hochfrequenz/nf-ci-console/internal/taskstore"
	"github.com/hochfrequenz/nf-ci-console/web/api"
)

// Backend is a development backend served from httptest plus a client
// configured against it
type Backend struct {
	Server *api.Server
	HTTP   *httptest.Server
	Store  *taskstore.Store
	Config *config.Config
	Client *gateway.Client
}

// TempDBPath creates a temporary database path for testing
func TempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

// TempConfigPath creates a temporary config file path for testing
func TempConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "config.toml")
}

// WriteConfig writes content to a fresh config file and returns its path
func WriteConfig(t *testing.T, content string) string {
	t.Helper()
	path := TempConfigPath(t)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func nullLog() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

// StartBackend runs the development backend on a file-backed SQLite store.
// The running collection uses the default /api/running endpoint.
func StartBackend(t *testing.T, ingestDelay time.Duration) *Backend {
	t.Helper()

	store, err := taskstore.New(TempDBPath(t))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	cfg.DevServer.IngestDelay = config.Duration{Duration: ingestDelay}
	cfg.Requests.GraceWindow = config.Duration{Duration: 2 * time.Second}
	cfg.Download.Dir = t.TempDir()

	srv := api.NewServer(store, cfg.DevServer, nullLog())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Stop()
		ts.Close()
	})

	cfg.Server.BaseURL = ts.URL
	return &Backend{
		Server: srv,
		HTTP:   ts,
		Store:  store,
		Config: cfg,
		Client: gateway.New(cfg, nullLog()),
	}
}

// Eventually polls cond until it holds or the timeout passes
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}
