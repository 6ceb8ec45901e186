package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/nf-ci-console/internal/config"
	"github.com/hochfrequenz/nf-ci-console/internal/gateway"
	"github.com/hochfrequenz/nf-ci-console/internal/logger"
	"github.com/hochfrequenz/nf-ci-console/internal/poller"
	"github.com/hochfrequenz/nf-ci-console/internal/scheduler"
	"github.com/hochfrequenz/nf-ci-console/internal/taskstore"
	"github.com/hochfrequenz/nf-ci-console/tui"
	"github.com/hochfrequenz/nf-ci-console/web/api"
)

var (
	noReload      bool
	watchInterval time.Duration
	devAddr       string
	devDatabase   string
)

func init() {
	// tui command
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch TUI dashboard",
		RunE:  runTUI,
	}
	tuiCmd.Flags().BoolVar(&noReload, "no-reload", false, "do not watch the config file for changes")
	rootCmd.AddCommand(tuiCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Print queue and history changes as they are polled",
		RunE:  runWatch,
	}
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "poll interval (default [poll] status_interval)")
	rootCmd.AddCommand(watchCmd)

	// devserver command
	devCmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local stand-in CI backend for demos and tests",
		RunE:  runDevServer,
	}
	devCmd.Flags().StringVar(&devAddr, "addr", "", "listen address (default [devserver] addr)")
	devCmd.Flags().StringVar(&devDatabase, "db", "", "SQLite database path (default [devserver] database_path)")
	rootCmd.AddCommand(devCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runTUI(cmd *cobra.Command, args []string) error {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	// logs never go to the terminal the dashboard draws on
	closer, err := setupLogging(cfg, "-")
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var reloads chan tui.ConfigReloadMsg
	if !noReload {
		reloads = make(chan tui.ConfigReloadMsg, 1)
		watcher, err := config.NewWatcher(path, func(c *config.Config, err error) {
			select {
			case reloads <- tui.ConfigReloadMsg{Config: c, Err: err}:
			default:
				logger.TUILog.Warn("config reload dropped, previous one still pending")
			}
		})
		if err != nil {
			logger.TUILog.WithError(err).Warn("config hot reload disabled")
			reloads = nil
		} else {
			watcher.Start(ctx)
			defer watcher.Stop()
		}
	}

	model, err := tui.NewModel(tui.ModelConfig{
		Context: ctx,
		Config:  cfg,
		Gateway: gateway.New(cfg, logger.GatewayLog),
		Reloads: reloads,
	})
	if err != nil {
		return err
	}

	logger.MainLog.WithField("base_url", cfg.Server.BaseURL).Info("starting dashboard")
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closer, err := setupLogging(cfg, "")
	if err != nil {
		return err
	}
	defer closer.Close()

	interval := watchInterval
	if interval <= 0 {
		interval = cfg.Poll.StatusInterval.Duration
	}

	ctx, cancel := signalContext()
	defer cancel()

	sync := poller.New(gateway.New(cfg, logger.GatewayLog), scheduler.RealClock{}, logger.PollLog)
	sched := scheduler.New(scheduler.RealClock{})
	var last string
	err = sched.Add("status", interval, func(ctx context.Context) {
		sync.Cycle(ctx)
		line := summarize(sync)
		if line != last {
			fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), line)
			last = line
		}
	})
	if err != nil {
		return err
	}

	fmt.Printf("Watching %s every %s (ctrl+c to stop)\n", cfg.Server.BaseURL, interval)
	sched.Run(ctx, interval/4)
	return nil
}

func summarize(s *poller.Synchronizer) string {
	q, r, h := s.Queue(), s.Running(), s.History()
	out := "queue: " + describe(q.State, len(q.Rows), q.Placeholder, q.Err)
	if r.State != poller.StateDisabled {
		out += " | running: " + describe(r.State, len(r.Rows), r.Placeholder, r.Err)
	}
	out += " | history: " + describe(h.State, len(h.Rows), h.Placeholder, h.Err)
	if len(h.Rows) > 0 {
		latest := h.Rows[0]
		out += fmt.Sprintf(" | latest: %s %s", latest.Result, joinLines(latest.Lines))
	}
	return out
}

func describe(state poller.State, n int, placeholder string, err error) string {
	s := placeholder
	if state == poller.StateRows {
		s = humanize.Comma(int64(n))
	}
	if err != nil {
		s += " (stale)"
	}
	return s
}

func runDevServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closer, err := setupLogging(cfg, "")
	if err != nil {
		return err
	}
	defer closer.Close()

	dev := cfg.DevServer
	if devAddr != "" {
		dev.Addr = devAddr
	}
	if devDatabase != "" {
		dev.DatabasePath = config.ExpandPath(devDatabase)
	}

	store, err := taskstore.New(dev.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	server := api.NewServer(store, dev, logger.DevServerLog)
	defer server.Stop()

	fmt.Printf("Dev backend listening at http://%s\n", dev.Addr)
	return server.Start(ctx)
}
