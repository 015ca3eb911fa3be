package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/sitebook/internal/cli"
	"github.com/theirongolddev/sitebook/internal/config"
	"github.com/theirongolddev/sitebook/internal/daemon"
)

// daemonRecord is kept on disk while a daemon runs so that status and stop
// can find it. A record whose PID is dead is stale.
type daemonRecord struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
	APIURL    string    `json:"api_url"`
	LogFile   string    `json:"log_file,omitempty"`
}

func (r daemonRecord) alive() bool {
	return r.PID > 0 && processAlive(r.PID)
}

var (
	flagDaemonAddr         string
	flagDaemonInterval     time.Duration
	flagDaemonDetach       bool
	flagDaemonStateFile    string
	flagDaemonLogFile      string
	flagDaemonEventsBuffer int
	flagDaemonChild        bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run a background dashboard poller with HTTP/SSE endpoints",
	RunE:  runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon process and API status",
	RunE:  runDaemonStatus,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

func init() {
	defaultState := filepath.Join(config.DataDir(), "sitebookd.json")
	defaultLog := filepath.Join(config.DataDir(), "sitebookd.log")

	daemonCmd.PersistentFlags().StringVar(&flagDaemonAddr, "addr", "", "HTTP listen address (default from config)")
	daemonCmd.PersistentFlags().DurationVar(&flagDaemonInterval, "interval", 0, "Polling interval (default from config)")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonStateFile, "state-file", defaultState, "Daemon state file path")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonLogFile, "log-file", defaultLog, "Log file path for detached mode")
	daemonCmd.PersistentFlags().IntVar(&flagDaemonEventsBuffer, "events-buffer", 0, "Max in-memory events retained (default from config)")

	daemonCmd.Flags().BoolVar(&flagDaemonDetach, "detach", false, "Run daemon as a background process")
	daemonCmd.Flags().BoolVar(&flagDaemonChild, "child", false, "Internal: mark detached child process")
	_ = daemonCmd.Flags().MarkHidden("child")

	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}

// daemonSettings merges the daemon flags over the config file.
func daemonSettings(cfg config.Config) daemon.Config {
	dc := daemon.Config{
		Addr:         cfg.Daemon.Addr,
		Interval:     time.Duration(cfg.Daemon.IntervalSec) * time.Second,
		EventsBuffer: cfg.Daemon.EventsBuffer,
	}
	if flagDaemonAddr != "" {
		dc.Addr = flagDaemonAddr
	}
	if flagDaemonInterval > 0 {
		dc.Interval = flagDaemonInterval
	}
	if flagDaemonEventsBuffer > 0 {
		dc.EventsBuffer = flagDaemonEventsBuffer
	}
	return dc
}

func runDaemon(_ *cobra.Command, _ []string) error {
	if flagDaemonDetach && flagDaemonChild {
		return errors.New("invalid daemon launch mode")
	}

	if flagDaemonDetach {
		return startDaemonDetached()
	}

	return runDaemonForeground()
}

func startDaemonDetached() error {
	if err := claimRecord(flagDaemonStateFile); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr := daemonSettings(cfg).Addr

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(flagDaemonLogFile), 0o750); err != nil {
		return fmt.Errorf("create daemon log directory: %w", err)
	}
	//nolint:gosec // daemon log path is configured by the local user
	logf, err := os.OpenFile(flagDaemonLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open daemon log file: %w", err)
	}
	defer func() { _ = logf.Close() }()

	child := exec.Command(exe, append(filterDetachArg(os.Args[1:]), "--child")...) //nolint:gosec // re-exec of ourselves
	child.Stdout = logf
	child.Stderr = logf
	child.Env = os.Environ()
	if err := child.Start(); err != nil {
		return fmt.Errorf("start detached daemon: %w", err)
	}

	fmt.Printf("  Started daemon (pid %d)\n", child.Process.Pid)
	fmt.Printf("  State: %s\n", flagDaemonStateFile)
	fmt.Printf("  API: http://%s/v1/status\n", addr)
	fmt.Printf("  Log: %s\n", flagDaemonLogFile)
	return child.Process.Release()
}

func runDaemonForeground() error {
	if err := claimRecord(flagDaemonStateFile); err != nil {
		return err
	}

	opts := sessionOptions{}
	if flagDaemonChild {
		opts.LogFile = flagDaemonLogFile
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.provider.Init(ctx); err != nil {
		// The poller retries; the first fetch is allowed to fail.
		fmt.Printf("  %s\n", cli.RenderWarning("Initial load failed: "+err.Error()))
	}
	if !s.provider.Get().LoggedIn() {
		return errNotLoggedIn
	}

	dc := daemonSettings(s.cfg)
	dc.Budget = s.metrics
	if s.events != nil {
		dc.Publisher = s.events
	}
	dc.Logger = s.log

	rec := daemonRecord{
		PID:       os.Getpid(),
		Addr:      dc.Addr,
		StartedAt: time.Now(),
		APIURL:    s.client.BaseURL(),
		LogFile:   opts.LogFile,
	}
	if err := writeRecord(flagDaemonStateFile, rec); err != nil {
		return err
	}
	defer func() { _ = os.Remove(flagDaemonStateFile) }()

	svc := daemon.New(dc, s.provider)

	fmt.Printf("  sitebook daemon listening on http://%s\n", dc.Addr)
	fmt.Printf("  Polling %s every %s\n", s.client.BaseURL(), dc.Interval)
	fmt.Printf("  Stop with: sitebook daemon stop --state-file %s\n", flagDaemonStateFile)

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	rec, err := readRecord(flagDaemonStateFile)
	if err != nil {
		fmt.Printf("  Daemon: not running (%s)\n", describeRecordErr(err))
		return nil
	}
	if !rec.alive() {
		fmt.Printf("  Daemon: stale state file (pid %d not alive)\n", rec.PID)
		return nil
	}

	addr := rec.Addr
	if addr == "" {
		addr = config.DefaultConfig().Daemon.Addr
	}

	fmt.Printf("  Daemon PID: %d\n", rec.PID)
	fmt.Printf("  Address: http://%s\n", addr)
	fmt.Printf("  Started: %s\n", rec.StartedAt.Local().Format(time.RFC3339))
	fmt.Printf("  Backend: %s\n", rec.APIURL)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/v1/status") //nolint:noctx // short status check
	if err != nil {
		fmt.Printf("  API status: unreachable (%v)\n", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("  API status: HTTP %d\n", resp.StatusCode)
		return nil
	}

	var st daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		fmt.Printf("  API status: malformed response (%v)\n", err)
		return nil
	}

	if st.LastPollAt.IsZero() {
		fmt.Printf("  Last poll: pending\n")
	} else {
		fmt.Printf("  Last poll: %s\n", st.LastPollAt.Local().Format(time.RFC3339))
	}
	fmt.Printf("  Poll count: %d\n", st.PollCount)
	if st.User != "" {
		fmt.Printf("  User: %s\n", st.User)
	}
	sum := st.Summary
	if sum.Project != "" {
		fmt.Printf("  Project: %s\n", sum.Project)
	}
	fmt.Printf("  Progress: %d%% (%d of %d phases)\n", sum.Progress, sum.CompletedPhases, sum.TotalPhases)
	fmt.Printf("  Spent: %s (%s of budget)\n", cli.FormatMoney(sum.TotalSpent), cli.FormatPercent(sum.BudgetPercent))
	fmt.Printf("  Open tasks: %d, low stock: %d\n", sum.OpenTasks, sum.LowStock)
	if st.LastError != "" {
		fmt.Printf("  Last error: %s\n", st.LastError)
	}
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	rec, err := readRecord(flagDaemonStateFile)
	if err != nil || !rec.alive() {
		_ = os.Remove(flagDaemonStateFile)
		return errors.New("daemon is not running")
	}

	proc, err := os.FindProcess(rec.PID)
	if err != nil {
		return fmt.Errorf("find daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon process: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	if err := waitExit(ctx, rec.PID); err != nil {
		return fmt.Errorf("daemon (pid %d) did not exit in time", rec.PID)
	}
	_ = os.Remove(flagDaemonStateFile)
	fmt.Printf("  Stopped daemon (pid %d)\n", rec.PID)
	return nil
}

func waitExit(ctx context.Context, pid int) error {
	tick := time.NewTicker(150 * time.Millisecond)
	defer tick.Stop()
	for processAlive(pid) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

func filterDetachArg(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--detach" || strings.HasPrefix(a, "--detach=") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// claimRecord fails if a live daemon owns path and clears stale or corrupt
// records otherwise.
func claimRecord(path string) error {
	rec, err := readRecord(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err == nil && rec.alive():
		return fmt.Errorf("daemon already running (pid %d on %s)", rec.PID, rec.Addr)
	}
	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return fmt.Errorf("clear stale daemon state: %w", rmErr)
	}
	return nil
}

func readRecord(path string) (daemonRecord, error) {
	var rec daemonRecord
	//nolint:gosec // daemon state path is configured by the local user
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("parse %s: %w", path, err)
	}
	if rec.PID <= 0 {
		return rec, fmt.Errorf("%s: no pid recorded", path)
	}
	return rec, nil
}

// writeRecord replaces path atomically so readers never see a partial file.
func writeRecord(path string, rec daemonRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create daemon directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func describeRecordErr(err error) string {
	if errors.Is(err, os.ErrNotExist) {
		return "no state file"
	}
	return err.Error()
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
