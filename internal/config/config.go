package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// LocalConfigName is the per-directory config file looked up by FindLocalConfig
const LocalConfigName = ".nfci.toml"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Endpoints EndpointsConfig `toml:"endpoints" yaml:"endpoints"`
	Requests  RequestsConfig  `toml:"requests" yaml:"requests"`
	Poll      PollConfig      `toml:"poll" yaml:"poll"`
	Download  DownloadConfig  `toml:"download" yaml:"download"`
	Log       LogConfig       `toml:"log" yaml:"log"`
	DevServer DevServerConfig `toml:"devserver" yaml:"devserver"`
}

// ServerConfig locates the dashboard backend
type ServerConfig struct {
	BaseURL string   `toml:"base_url" yaml:"base_url"`
	Timeout Duration `toml:"timeout" yaml:"timeout"`
}

// EndpointsConfig holds the backend paths. {id} and {test} are substituted
// (path-escaped) at call time. An empty Running path disables that collection.
type EndpointsConfig struct {
	ClearShortlist string `toml:"clear_shortlist" yaml:"clear_shortlist"`
	IngestRequests string `toml:"ingest_requests" yaml:"ingest_requests"`
	Shortlist      string `toml:"shortlist" yaml:"shortlist"`
	SubmitBatch    string `toml:"submit_batch" yaml:"submit_batch"`
	Queue          string `toml:"queue" yaml:"queue"`
	DeleteQueued   string `toml:"delete_queued" yaml:"delete_queued"`
	Running        string `toml:"running" yaml:"running"`
	History        string `toml:"history" yaml:"history"`
	Task           string `toml:"task" yaml:"task"`
	Download       string `toml:"download" yaml:"download"`
	DownloadSingle string `toml:"download_single" yaml:"download_single"`
}

// RequestsConfig tunes the review-request selector
type RequestsConfig struct {
	Owner      string            `toml:"owner" yaml:"owner"`
	Components []string          `toml:"components" yaml:"components"`
	Aliases    map[string]string `toml:"aliases" yaml:"aliases"`
	// GraceWindow is a workaround for ingestion racing the shortlist read,
	// not a completion signal.
	GraceWindow  Duration `toml:"grace_window" yaml:"grace_window"`
	DisplayLimit int      `toml:"display_limit" yaml:"display_limit"`
	TitleLimit   int      `toml:"title_limit" yaml:"title_limit"`
}

// PollConfig holds the two independent polling cadences
type PollConfig struct {
	StatusInterval   Duration `toml:"status_interval" yaml:"status_interval"`
	RequestsInterval Duration `toml:"requests_interval" yaml:"requests_interval"`
}

// DownloadConfig holds artifact download settings
type DownloadConfig struct {
	Dir string `toml:"dir" yaml:"dir"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
	File  string `toml:"file" yaml:"file"`
}

// DevServerConfig configures the development stand-in backend
type DevServerConfig struct {
	Addr         string                   `toml:"addr" yaml:"addr"`
	DatabasePath string                   `toml:"database_path" yaml:"database_path"`
	IngestDelay  Duration                 `toml:"ingest_delay" yaml:"ingest_delay"`
	StepInterval Duration                 `toml:"step_interval" yaml:"step_interval"`
	Requests     map[string][]SeedRequest `toml:"requests" yaml:"requests"`
}

// SeedRequest is a review request served by the development backend
type SeedRequest struct {
	Number int    `toml:"number" yaml:"number"`
	Title  string `toml:"title" yaml:"title"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://127.0.0.1:8080",
			Timeout: Duration{5 * time.Second},
		},
		Endpoints: EndpointsConfig{
			ClearShortlist: "/api/prs/clear",
			IngestRequests: "/api/prs/add_github",
			Shortlist:      "/api/prs",
			SubmitBatch:    "/api/queue/run-pr",
			Queue:          "/api/queue/list",
			DeleteQueued:   "/api/queue/delete/{id}",
			Running:        "/api/running",
			History:        "/api/history",
			Task:           "/api/task/{id}",
			Download:       "/api/download/{id}",
			DownloadSingle: "/api/download/single/{id}/{test}",
		},
		Requests: RequestsConfig{
			Owner: "free5gc",
			Components: []string{
				"amf", "ausf", "chf", "n3iwf", "nef", "nrf", "nssf",
				"pcf", "smf", "tngf", "udm", "udr", "upf", "webconsole",
			},
			Aliases:      map[string]string{"upf": "go-upf"},
			GraceWindow:  Duration{4 * time.Second},
			DisplayLimit: 5,
			TitleLimit:   100,
		},
		Poll: PollConfig{
			StatusInterval:   Duration{time.Second},
			RequestsInterval: Duration{time.Second},
		},
		Download: DownloadConfig{
			Dir: ".",
		},
		Log: LogConfig{
			Level: "info",
		},
		DevServer: DevServerConfig{
			Addr:         "127.0.0.1:8080",
			DatabasePath: ":memory:",
			IngestDelay:  Duration{2 * time.Second},
			StepInterval: Duration{5 * time.Second},
		},
	}
}

// Load reads configuration from a TOML (or .yml/.yaml) file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.Download.Dir = ExpandPath(cfg.Download.Dir)
	cfg.Log.File = ExpandPath(cfg.Log.File)
	cfg.DevServer.DatabasePath = ExpandPath(cfg.DevServer.DatabasePath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadWithLocalFallback uses the explicit path if given, then a local
// .nfci.toml found in the working directory or its parents, then the
// default config path.
func LoadWithLocalFallback(explicit string) (*Config, error) {
	if explicit != "" {
		return Load(explicit)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}

// Validate checks the config is usable
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("server.base_url must be an absolute URL, got %q", c.Server.BaseURL)
	}
	if c.Server.Timeout.Duration <= 0 {
		return fmt.Errorf("server.timeout must be positive")
	}
	if c.Poll.StatusInterval.Duration <= 0 || c.Poll.RequestsInterval.Duration <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if c.Requests.GraceWindow.Duration < 0 {
		return fmt.Errorf("requests.grace_window must not be negative")
	}
	if c.Requests.DisplayLimit < 1 {
		return fmt.Errorf("requests.display_limit must be at least 1")
	}
	if c.Requests.Owner == "" {
		return fmt.Errorf("requests.owner is required")
	}
	return nil
}

// RepoFor maps a component to its upstream repository slug
func (c *RequestsConfig) RepoFor(component string) string {
	if repo, ok := c.Aliases[component]; ok && repo != "" {
		return repo
	}
	return component
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "nfci", "config.toml")
}

// FindLocalConfig walks from the working directory up to the filesystem
// root looking for LocalConfigName. Returns "" if none is found.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
