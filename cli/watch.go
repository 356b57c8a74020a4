package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/codemarks/config"
	"github.com/yoanbernabeu/codemarks/daemon"
	"github.com/yoanbernabeu/codemarks/project"
	"github.com/yoanbernabeu/codemarks/scanner"
	"github.com/yoanbernabeu/codemarks/store"
	"github.com/yoanbernabeu/codemarks/watcher"
)

var (
	watchDirectory  string
	watchDebounceMs int
	watchIgnore     []string
	watchPattern    string
	watchEphemeral  bool
	watchNoUI       bool
	watchVerbose    bool
	watchBackground bool
	watchStatus     bool
	watchStop       bool
	watchLogDir     string
)

const (
	// How long --background waits for the child to become ready.
	startupTimeout = 30 * time.Second
	startupPoll    = 250 * time.Millisecond

	// How long --stop waits for the daemon to exit after the stop signal.
	shutdownTimeout = 30 * time.Second
	shutdownPoll    = 500 * time.Millisecond
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a directory and keep its code annotations up to date",
	Long: `Watch a directory for file changes and keep the project's code
annotations up to date. Changes are debounced and merged incrementally:
only the files that changed are rescanned, and annotations in untouched
files keep their resolved state.

On an interactive terminal a live dashboard is shown; use --no-ui for
plain log output. With --background the watcher runs as a detached
process managed via --status and --stop.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchDirectory, "directory", "d", ".", "Directory to watch")
	watchCmd.Flags().IntVar(&watchDebounceMs, "debounce", 0, "Debounce window in milliseconds (0 = use config)")
	watchCmd.Flags().StringArrayVar(&watchIgnore, "ignore", nil, "Additional ignore glob (can be repeated)")
	watchCmd.Flags().StringVar(&watchPattern, "pattern", "", "Override the configured annotation pattern")
	watchCmd.Flags().BoolVar(&watchEphemeral, "ephemeral", false, "Do not touch the global projects database")
	watchCmd.Flags().BoolVar(&watchNoUI, "no-ui", false, "Disable the terminal dashboard")
	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "Report skipped files")
	watchCmd.Flags().BoolVar(&watchBackground, "background", false, "Run the watcher as a background process")
	watchCmd.Flags().BoolVar(&watchStatus, "status", false, "Show the status of the background watcher")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "Stop the background watcher")
	watchCmd.Flags().StringVar(&watchLogDir, "log-dir", "", "Directory for background watcher logs and PID files")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	activeFlags := 0
	for _, flag := range []bool{watchBackground, watchStatus, watchStop} {
		if flag {
			activeFlags++
		}
	}
	if activeFlags > 1 {
		return fmt.Errorf("flags --background, --status, and --stop are mutually exclusive")
	}

	logDir := watchLogDir
	if logDir == "" {
		var err error
		logDir, err = daemon.DefaultLogDir()
		if err != nil {
			return err
		}
	}

	dir, err := resolveDirectory(watchDirectory)
	if err != nil {
		return err
	}
	projectName := project.DetectName(dir)

	switch {
	case watchStatus:
		return showWatchStatus(logDir, projectName)
	case watchStop:
		return stopWatchDaemon(logDir, projectName)
	case watchBackground:
		return startBackgroundWatch(logDir, dir, projectName)
	}

	backgroundChild := os.Getenv(daemon.BackgroundEnv) == "1"

	if !backgroundChild {
		pid, err := daemon.GetRunningPID(logDir, projectName)
		if err != nil {
			return err
		}
		if pid > 0 {
			return fmt.Errorf("watcher is already running in background (PID %d)\nUse 'codemarks watch --stop' to stop it", pid)
		}
	}

	useUI := watchUseUI(isInteractiveTerminal(), watchNoUI, backgroundChild)
	return runWatchForeground(dir, logDir, projectName, backgroundChild, useUI)
}

// watchUseUI decides between the dashboard and plain log output.
func watchUseUI(interactive, noUI, backgroundChild bool) bool {
	if backgroundChild || noUI {
		return false
	}
	return interactive
}

func showWatchStatus(logDir, projectName string) error {
	pid, err := daemon.GetRunningPID(logDir, projectName)
	if err != nil {
		return err
	}
	if pid == 0 {
		fmt.Println("No background watcher is running")
		return nil
	}

	fmt.Printf("Background watcher is running (PID %d)\n", pid)
	fmt.Printf("Project: %s\n", projectName)
	fmt.Printf("Logs: %s\n", daemon.LogFilePath(logDir, projectName))
	return nil
}

func stopWatchDaemon(logDir, projectName string) error {
	pid, err := daemon.GetRunningPID(logDir, projectName)
	if err != nil {
		return err
	}
	if pid == 0 {
		fmt.Println("No background watcher is running")
		return nil
	}

	fmt.Printf("Stopping background watcher (PID %d)...\n", pid)
	if err := daemon.StopProcess(pid); err != nil {
		return fmt.Errorf("failed to stop process %d: %w", pid, err)
	}

	deadline := time.Now().Add(shutdownTimeout)
	lastProgress := time.Now()
	for time.Now().Before(deadline) {
		if !daemon.IsProcessRunning(pid) {
			_ = daemon.RemovePIDFile(logDir, projectName)
			fmt.Println("Background watcher stopped")
			return nil
		}
		if time.Since(lastProgress) >= 5*time.Second {
			fmt.Println("Waiting for graceful shutdown...")
			lastProgress = time.Now()
		}
		time.Sleep(shutdownPoll)
	}

	return fmt.Errorf("process did not stop within %v\nStill running? Try: kill -9 %d\nOr check logs at: %s",
		shutdownTimeout, pid, daemon.LogFilePath(logDir, projectName))
}

func startBackgroundWatch(logDir, dir, projectName string) error {
	pid, err := daemon.GetRunningPID(logDir, projectName)
	if err != nil {
		return err
	}
	if pid > 0 {
		return fmt.Errorf("watcher is already running (PID %d)", pid)
	}

	args := []string{"watch", "-d", dir}
	if watchDebounceMs > 0 {
		args = append(args, "--debounce", strconv.Itoa(watchDebounceMs))
	}
	for _, glob := range watchIgnore {
		args = append(args, "--ignore", glob)
	}
	if watchPattern != "" {
		args = append(args, "--pattern", watchPattern)
	}
	if watchEphemeral {
		args = append(args, "--ephemeral")
	}
	if watchVerbose {
		args = append(args, "--verbose")
	}
	if watchLogDir != "" {
		args = append(args, "--log-dir", watchLogDir)
	}

	childPID, exitCh, err := daemon.SpawnBackground(logDir, projectName, args)
	if err != nil {
		return fmt.Errorf("failed to start background process: %w", err)
	}

	logPath := daemon.LogFilePath(logDir, projectName)
	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		if daemon.IsReady(logDir, projectName) {
			fmt.Printf("Background watcher started (PID %d)\n", childPID)
			fmt.Printf("Logs: %s\n", logPath)
			fmt.Println()
			fmt.Println("Use 'codemarks watch --status' to check on it")
			fmt.Println("Use 'codemarks watch --stop' to stop it")
			return nil
		}
		select {
		case <-exitCh:
			return fmt.Errorf("background process failed to start (check logs at %s)", logPath)
		default:
		}
		time.Sleep(startupPoll)
	}

	return fmt.Errorf("timeout waiting for process to become ready after %v (check logs at %s)", startupTimeout, logPath)
}

// cycleReport summarizes one scan-and-merge cycle for display.
type cycleReport struct {
	BatchID string
	Files   int
	Added   int
	Kept    int
	Removed int
	Dropped int
	Total   int
	Skipped []scanner.SkippedFile
	At      time.Time
}

// watchSession bundles what one watch run shares between the initial
// scan, the incremental cycles, and shutdown.
type watchSession struct {
	root        string
	projectName string
	pattern     string
	ignoreGlobs []string
	debounce    time.Duration

	sc *scanner.Scanner
	st store.Store
	w  *watcher.Watcher
}

func newWatchSession(dir, projectName string) (*watchSession, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	pattern := cfg.Pattern
	if watchPattern != "" {
		pattern = watchPattern
	}

	debounceMs := cfg.Watch.DebounceMs
	if watchDebounceMs > 0 {
		debounceMs = watchDebounceMs
	}
	if debounceMs <= 0 {
		debounceMs = config.DefaultDebounceMs
	}
	debounce := time.Duration(debounceMs) * time.Millisecond

	matcher, filter, err := buildMatcherFilter(dir, cfg, watchIgnore, watchPattern)
	if err != nil {
		return nil, err
	}

	st, err := openStore(watchEphemeral)
	if err != nil {
		return nil, err
	}

	w, err := watcher.NewWatcher(dir, filter, debounce)
	if err != nil {
		return nil, err
	}

	globs := make([]string, 0, len(cfg.Ignore)+len(watchIgnore))
	globs = append(globs, cfg.Ignore...)
	globs = append(globs, watchIgnore...)

	return &watchSession{
		root:        dir,
		projectName: projectName,
		pattern:     pattern,
		ignoreGlobs: globs,
		debounce:    debounce,
		sc:          scanner.New(dir, matcher, filter),
		st:          st,
		w:           w,
	}, nil
}

func (s *watchSession) close() error {
	var firstErr error
	if err := s.w.Close(); err != nil {
		firstErr = err
	}
	if err := s.st.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// initialScan runs the full scan that seeds the session.
func (s *watchSession) initialScan(ctx context.Context) (cycleReport, error) {
	result, err := s.sc.ScanRoot(ctx)
	if err != nil {
		return cycleReport{}, fmt.Errorf("error scanning directory: %w", err)
	}

	merge := s.st.Merge(s.projectName, result.Annotations, nil)
	if err := s.st.Persist(); err != nil {
		return cycleReport{}, err
	}

	return s.report("initial", result.FilesScanned, merge, result.Skipped), nil
}

// runCycle rescans the files named in one batch and merges the result,
// confined to those paths.
func (s *watchSession) runCycle(ctx context.Context, batch watcher.Batch) (cycleReport, error) {
	paths := batch.Paths()

	// A removed or renamed directory arrives as a single event for the
	// directory itself. Stored annotations underneath it enter the
	// scope explicitly so the merge sees them gone.
	if p, ok := s.st.Project(s.projectName); ok {
		for _, ev := range batch.Events {
			if !ev.IsDir {
				continue
			}
			prefix := ev.Path + "/"
			for _, a := range p.Annotations {
				if strings.HasPrefix(a.File, prefix) {
					paths = append(paths, a.File)
				}
			}
		}
	}
	paths = dedupePaths(paths)

	result, err := s.sc.ScanPaths(ctx, paths)
	if err != nil {
		return cycleReport{}, err
	}

	merge := s.st.Merge(s.projectName, result.Annotations, &store.Scope{Files: paths})
	if err := s.st.Persist(); err != nil {
		return cycleReport{}, err
	}

	return s.report(batch.ID, len(batch.Events), merge, result.Skipped), nil
}

func (s *watchSession) report(batchID string, files int, merge store.MergeResult, skipped []scanner.SkippedFile) cycleReport {
	total := 0
	if p, ok := s.st.Project(s.projectName); ok {
		total = len(p.Annotations)
	}
	return cycleReport{
		BatchID: batchID,
		Files:   files,
		Added:   merge.Added,
		Kept:    merge.Kept,
		Removed: merge.Removed,
		Dropped: merge.Dropped,
		Total:   total,
		Skipped: skipped,
		At:      time.Now(),
	}
}

// dedupePaths sorts a path list and drops duplicates in place.
func dedupePaths(paths []string) []string {
	sort.Strings(paths)
	out := paths[:0]
	var last string
	for i, p := range paths {
		if i > 0 && p == last {
			continue
		}
		out = append(out, p)
		last = p
	}
	return out
}

func runWatchForeground(dir, logDir, projectName string, backgroundChild, useUI bool) error {
	if backgroundChild {
		log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
		log.SetPrefix("[codemarks-watch] ")

		if err := daemon.WritePIDFile(logDir, projectName); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() {
			_ = daemon.RemovePIDFile(logDir, projectName)
		}()
	}

	s, err := newWatchSession(dir, projectName)
	if err != nil {
		return err
	}
	defer s.close()

	if useUI {
		return runWatchUI(s)
	}
	return runWatchPlain(s, logDir, backgroundChild)
}

func runWatchPlain(s *watchSession, logDir string, backgroundChild bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	say := func(format string, args ...any) {
		if backgroundChild {
			log.Printf(format, args...)
		} else {
			fmt.Printf(format+"\n", args...)
		}
	}

	say("Watching directory: %s", s.root)
	say("Project name: %s", s.projectName)
	if len(s.ignoreGlobs) > 0 {
		say("Ignore patterns: %v", s.ignoreGlobs)
	}
	say("Annotation pattern: %s", s.pattern)
	say("Debounce: %dms", s.debounce.Milliseconds())
	if !backgroundChild {
		fmt.Println("Press Ctrl+C to stop watching...")
		fmt.Println()
	}

	rep, err := s.initialScan(ctx)
	if err != nil {
		return err
	}
	if watchVerbose {
		for _, skipped := range rep.Skipped {
			say("Skipped %s: %s", skipped.Path, skipped.Reason)
		}
	}
	say("Initial scan: %d added, %d kept, %d removed (%d tracked)", rep.Added, rep.Kept, rep.Removed, rep.Total)

	if err := s.w.Start(ctx); err != nil {
		return err
	}

	if backgroundChild {
		if err := daemon.WriteReadyFile(logDir, s.projectName); err != nil {
			log.Printf("Failed to write ready file: %v", err)
		}
		defer func() {
			_ = daemon.RemoveReadyFile(logDir, s.projectName)
		}()
		log.Println("Watching for changes...")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	stopCh := daemon.StopChannel()

	for {
		select {
		case <-sigChan:
			if backgroundChild {
				log.Println("Shutting down...")
			} else {
				fmt.Println("\nShutting down...")
			}
			return nil
		case <-stopCh:
			log.Println("Stop file detected, shutting down...")
			return nil
		case batch := <-s.w.Batches():
			rep, err := s.runCycle(ctx, batch)
			if err != nil {
				say("Watch error: %v", err)
				continue
			}
			if watchVerbose {
				for _, skipped := range rep.Skipped {
					say("Skipped %s: %s", skipped.Path, skipped.Reason)
				}
			}
			say("Batch %s: %d files changed, %d added, %d kept, %d removed (%d tracked)",
				rep.BatchID, rep.Files, rep.Added, rep.Kept, rep.Removed, rep.Total)
			if rep.Dropped > 0 {
				say("Warning: %d annotations outside batch scope were discarded", rep.Dropped)
			}
			say("Updated project database")
		}
	}
}
