// Package logger holds the process-wide logrus logger and its category entries.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

var (
	Log          *logrus.Logger
	MainLog      *logrus.Entry
	GatewayLog   *logrus.Entry
	PollLog      *logrus.Entry
	RequestsLog  *logrus.Entry
	SubmitLog    *logrus.Entry
	PreviewLog   *logrus.Entry
	TUILog       *logrus.Entry
	DevServerLog *logrus.Entry
)

func init() {
	Log = logrus.New()
	Log.SetReportCaller(false)
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	MainLog = Category("Main")
	GatewayLog = Category("Gateway")
	PollLog = Category("Poll")
	RequestsLog = Category("Requests")
	SubmitLog = Category("Submit")
	PreviewLog = Category("Preview")
	TUILog = Category("TUI")
	DevServerLog = Category("DevServer")
}

// Category returns an entry of the root logger tagged with a category field
func Category(name string) *logrus.Entry {
	return Log.WithFields(logrus.Fields{"category": name})
}

// Setup applies the level and output file. An empty file keeps the current
// output; "-" discards everything, which the TUI uses to keep the terminal clean.
func Setup(level, file string) (io.Closer, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	Log.SetLevel(lvl)

	switch file {
	case "":
		return nopCloser{}, nil
	case "-":
		Log.SetOutput(io.Discard)
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	Log.SetOutput(f)
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
