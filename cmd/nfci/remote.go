package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/nf-ci-console/internal/config"
	"github.com/hochfrequenz/nf-ci-console/internal/domain"
	"github.com/hochfrequenz/nf-ci-console/internal/gateway"
	"github.com/hochfrequenz/nf-ci-console/internal/logger"
	"github.com/hochfrequenz/nf-ci-console/internal/poller"
	"github.com/hochfrequenz/nf-ci-console/internal/preview"
	"github.com/hochfrequenz/nf-ci-console/internal/requests"
	"github.com/hochfrequenz/nf-ci-console/internal/scheduler"
	"github.com/hochfrequenz/nf-ci-console/internal/staging"
	"github.com/hochfrequenz/nf-ci-console/internal/submit"
)

var (
	requestsAll   bool
	previewTest   int
	downloadTest  string
	downloadIndex int
	downloadDir   string
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "queue",
		Short: "List queued and running tasks",
		RunE:  runQueue,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "history",
		Short: "List finished tasks",
		RunE:  runHistory,
	})

	requestsCmd := &cobra.Command{
		Use:   "requests COMPONENT",
		Short: "Ingest and list open review requests of a component",
		Args:  cobra.ExactArgs(1),
		RunE:  runRequests,
	}
	requestsCmd.Flags().BoolVar(&requestsAll, "all", false, "list every request instead of the first page")
	rootCmd.AddCommand(requestsCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "submit COMPONENT:NUMBER...",
		Short: "Submit review requests as one batch",
		Example: `  nfci submit amf:142 smf:87
  nfci submit upf:31`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSubmit,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "cancel TASK_ID",
		Short: "Remove a task that is still queueing",
		Args:  cobra.ExactArgs(1),
		RunE:  runCancel,
	})

	previewCmd := &cobra.Command{
		Use:   "preview TASK_ID|?taskId=ID",
		Short: "Show the detail and logs of a task",
		Args:  cobra.ExactArgs(1),
		RunE:  runPreview,
	}
	previewCmd.Flags().IntVar(&previewTest, "test", 0, "index of the failed test whose log to show")
	rootCmd.AddCommand(previewCmd)

	downloadCmd := &cobra.Command{
		Use:   "download TASK_ID",
		Short: "Download the logs of a task",
		Args:  cobra.ExactArgs(1),
		RunE:  runDownload,
	}
	downloadCmd.Flags().StringVar(&downloadTest, "test", "", "download only the log of this failed test")
	downloadCmd.Flags().IntVar(&downloadIndex, "index", -1, "download only the log of the failed test at this index")
	downloadCmd.Flags().StringVar(&downloadDir, "dir", "", "target directory (default [download] dir)")
	rootCmd.AddCommand(downloadCmd)
}

// remote loads config, sets up logging and builds the gateway client
func remote() (*config.Config, *gateway.Client, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	closer, err := setupLogging(cfg, "")
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, gateway.New(cfg, logger.GatewayLog), func() { closer.Close() }, nil
}

func cycle(ctx context.Context, gw *gateway.Client) *poller.Synchronizer {
	s := poller.New(gw, scheduler.RealClock{}, logger.PollLog)
	s.Cycle(ctx)
	return s
}

func runQueue(cmd *cobra.Command, args []string) error {
	_, gw, done, err := remote()
	if err != nil {
		return err
	}
	defer done()

	s := cycle(cmd.Context(), gw)
	q := s.Queue()
	if q.Err != nil {
		return fmt.Errorf("%s: %w", poller.QueueFailed, q.Err)
	}
	if q.State != poller.StateRows {
		fmt.Println(q.Placeholder)
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tREQUESTS")
		for _, row := range q.Rows {
			fmt.Fprintf(w, "%s\t%s\t%s\n", row.ID, row.StatusText, joinLines(row.Lines))
		}
		w.Flush()
	}

	r := s.Running()
	if r.State == poller.StateRows {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUNNING\tPROGRESS\tREMAINING")
		for _, row := range r.Rows {
			fmt.Fprintf(w, "%s\t%d%%\t%s\n", row.Name, row.Percent, row.Remaining)
		}
		w.Flush()
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	_, gw, done, err := remote()
	if err != nil {
		return err
	}
	defer done()

	h := cycle(cmd.Context(), gw).History()
	if h.Err != nil {
		return fmt.Errorf("%s: %w", poller.HistoryFailed, h.Err)
	}
	if h.State != poller.StateRows {
		fmt.Println(h.Placeholder)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTASK\tRESULT\tREQUESTS")
	for _, row := range h.Rows {
		id := row.TaskID
		if !row.CanPreview {
			id = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", row.Time, id, row.Result, joinLines(row.Lines))
	}
	w.Flush()
	return nil
}

func runRequests(cmd *cobra.Command, args []string) error {
	cfg, gw, done, err := remote()
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	loader := requests.New(gw, cfg.Requests, scheduler.RealClock{}, logger.RequestsLog)
	req, err := loader.Select(args[0])
	if err != nil {
		return err
	}
	if err := loader.Ingest(ctx, req); err != nil {
		return err
	}

	// empty answers count as loading until the grace window closes
	for {
		if err := loader.Refresh(ctx); err != nil {
			return err
		}
		if loader.Selected().Kind != requests.KindLoading {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Poll.RequestsInterval.Duration):
		}
	}

	if requestsAll {
		if err := loader.ChooseValue(requests.LoadMoreValue); err != nil {
			return err
		}
	}
	for _, opt := range loader.Options() {
		if opt.Kind == requests.KindPlaceholder {
			continue
		}
		fmt.Println(opt.Text)
	}
	return nil
}

// parsePair reads "component:number"
func parsePair(arg string) (string, int, error) {
	component, number, ok := strings.Cut(arg, ":")
	if !ok {
		return "", 0, fmt.Errorf("%q: want COMPONENT:NUMBER", arg)
	}
	n, err := staging.ParseNumber(strings.TrimPrefix(number, "#"))
	if err != nil {
		return "", 0, err
	}
	return strings.TrimSpace(component), n, nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	_, gw, done, err := remote()
	if err != nil {
		return err
	}
	defer done()

	list := staging.New()
	for _, arg := range args {
		component, n, err := parsePair(arg)
		if err != nil {
			return err
		}
		if _, err := list.Add(component, n, ""); err != nil {
			return err
		}
	}

	flow := submit.New(gw, list, logger.SubmitLog)
	if _, err := flow.Submit(cmd.Context()); err != nil {
		return err
	}
	fmt.Println(flow.Message())
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	_, gw, done, err := remote()
	if err != nil {
		return err
	}
	defer done()

	s := cycle(cmd.Context(), gw)
	if err := s.Queue().Err; err != nil {
		return fmt.Errorf("%s: %w", poller.QueueFailed, err)
	}
	if err := s.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed task %s\n", args[0])
	return nil
}

func taskArg(arg string) (string, error) {
	if strings.Contains(arg, "=") {
		return preview.TaskIDFromQuery(arg)
	}
	if strings.TrimSpace(arg) == "" {
		return "", &domain.UserInputError{Prompt: preview.MissingIDText}
	}
	return arg, nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	_, gw, done, err := remote()
	if err != nil {
		return err
	}
	defer done()

	id, err := taskArg(args[0])
	if err != nil {
		return err
	}
	r := preview.New(gw, scheduler.RealClock{}, logger.PreviewLog)
	p, err := r.Load(cmd.Context(), id)
	if err != nil {
		return errors.New(preview.ErrorText(err))
	}

	fmt.Printf("Task:   %s\n", p.TaskID)
	fmt.Printf("Status: %s\n", p.StatusLabel)
	if p.Relative != "" {
		fmt.Printf("Time:   %s (%s)\n", p.Time, p.Relative)
	} else {
		fmt.Printf("Time:   %s\n", p.Time)
	}

	if p.Mode == preview.ModePerTest {
		fmt.Println("\nFailed tests:")
		for i, name := range p.Tests() {
			marker := " "
			if i == previewTest {
				marker = ">"
			}
			fmt.Printf(" %s %d  %s\n", marker, i, name)
		}
		p.Select(previewTest)
	}

	fmt.Println()
	fmt.Println(p.Log())
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, gw, done, err := remote()
	if err != nil {
		return err
	}
	defer done()

	id, err := taskArg(args[0])
	if err != nil {
		return err
	}
	dir := cfg.Download.Dir
	if downloadDir != "" {
		dir = config.ExpandPath(downloadDir)
	}
	r := preview.New(gw, scheduler.RealClock{}, logger.PreviewLog)

	var saved preview.Saved
	switch {
	case downloadTest != "":
		p := &preview.Preview{TaskID: id, Mode: preview.ModePerTest}
		p.Detail.FailedTests = []string{downloadTest}
		saved, err = r.DownloadSelected(cmd.Context(), p, dir)
	case downloadIndex >= 0:
		var p *preview.Preview
		p, err = r.Load(cmd.Context(), id)
		if err != nil {
			return errors.New(preview.ErrorText(err))
		}
		p.Select(downloadIndex)
		saved, err = r.DownloadSelected(cmd.Context(), p, dir)
	default:
		saved, err = r.DownloadAll(cmd.Context(), id, dir)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", saved)
	return nil
}

func joinLines(lines []string) string {
	return strings.Join(lines, ", ")
}
