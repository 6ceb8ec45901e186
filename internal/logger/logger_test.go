package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetup_FileOutput(t *testing.T) {
	origOut := Log.Out
	origLevel := Log.GetLevel()
	defer func() {
		Log.SetOutput(origOut)
		Log.SetLevel(origLevel)
	}()

	path := filepath.Join(t.TempDir(), "logs", "nfci.log")
	closer, err := Setup("debug", path)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	PollLog.Debug("queue refreshed")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "category=Poll") {
		t.Errorf("log output %q missing category field", data)
	}
	if Log.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", Log.GetLevel())
	}
}

func TestSetup_InvalidLevel(t *testing.T) {
	if _, err := Setup("loud", ""); err == nil {
		t.Error("Setup(loud) error = nil, want error")
	}
}
