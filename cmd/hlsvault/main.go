package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ashbyte/hlsvault/internal/config"
	"github.com/ashbyte/hlsvault/internal/engine"
	"github.com/ashbyte/hlsvault/internal/httpclient"
	"github.com/ashbyte/hlsvault/internal/ledger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	cfgFile  string
	logLevel string
	noColor  bool

	cfg    *config.Config
	logger *slog.Logger
	ldgr   *ledger.Ledger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "hlsvault",
	Short:   "A resumable HLS/M3U8 download engine",
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		var v *viper.Viper
		cfg, v, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := config.InitializeDirs(cfg); err != nil {
			return fmt.Errorf("failed to initialize directories: %w", err)
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if noColor {
			cfg.Logging.Color = false
		}
		logger, err = config.InitLogger(&cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ldgr, err = ledger.Open(ledger.Config{
			Path:           cfg.Ledger.Path,
			MaxConnections: cfg.Ledger.MaxConnections,
			WALMode:        cfg.Ledger.WALMode,
		})
		if err != nil {
			return fmt.Errorf("failed to open job ledger: %w", err)
		}

		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			logger.Info("config file changed", "name", e.Name)
			if err := v.Unmarshal(cfg); err != nil {
				logger.Error("failed to reload config", "error", err)
			}
		})

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if ldgr != nil {
			if err := ldgr.Close(); err != nil {
				logger.Error("failed to close ledger", "error", err)
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/hlsvault/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(queueCmd)

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	rootCmd.PersistentFlags().IntP("jobs", "j", 0, "max concurrent jobs (default: config engine.job_concurrency)")
	rootCmd.PersistentFlags().IntP("segments", "s", 0, "max concurrent segment fetches per job (default: config engine.segment_concurrency)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hlsvault version %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := cfgFile
		if configPath == "" {
			configPath = filepath.Join(config.GetConfigDir(), "config.yaml")
		}
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s", configPath)
		}
		if err := config.SaveDefaultConfig(configPath); err != nil {
			return fmt.Errorf("failed to save default configuration: %w", err)
		}
		fmt.Printf("Default configuration generated at: %s\n", configPath)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Display configuration file path",
	Run: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			fmt.Println(cfgFile)
		} else {
			fmt.Println(filepath.Join(config.GetConfigDir(), "config.yaml"))
		}
	},
}

// buildExecutor wires an engine.Executor from the loaded config, mirroring
// every job's status/progress into the ledger as the Download-Info Store
// records attempts.
func buildExecutor(jobConcurrency, segmentConcurrency int) *engine.Executor {
	e := cfg.Engine
	if jobConcurrency <= 0 {
		jobConcurrency = e.JobConcurrency
	}
	if segmentConcurrency <= 0 {
		segmentConcurrency = e.SegmentConcurrency
	}

	playlistClient := httpclient.NewClient(httpclient.Options{
		Timeout:      time.Duration(e.RequestTimeoutSecs) * time.Second,
		RetryCount:   e.RetryCount,
		RetryWait:    time.Duration(e.RetryWaitSeconds) * time.Second,
		RetryMaxWait: 10 * time.Second,
		UserAgent:    e.UserAgent,
		Origin:       e.Origin,
		Referer:      e.Referer,
		ProxyURL:     e.ProxyURL,
		Debug:        cfg.Logging.Level == "debug",
	}, logger)
	if cookies := e.Cookies(); len(cookies) > 0 {
		playlistClient.SetCookies(cookies)
	}
	segmentClient := httpclient.NewSegmentClient(time.Duration(e.RequestTimeoutSecs)*time.Second, e.UserAgent, e.Referer)

	temp := engine.NewTempStore(cfg.Directories.Temp)
	store := engine.NewDownloadInfoStore(filepath.Join(cfg.Directories.Downloads, "download_info.json"))
	store.OnAppend(func(id string, rec engine.AttemptRecord) {
		if err := ldgr.Upsert(id, rec.Name, rec.Actress, rec.Status); err != nil {
			logger.Warn("ledger upsert failed", "job", id, "err", err)
		}
	})

	policy := engine.RetryPolicy{Count: e.RetryCount, Base: time.Duration(e.RetryWaitSeconds) * time.Second}
	backend := engine.BackendAuto
	switch e.MergeBackend {
	case "external":
		backend = engine.BackendExternal
	case "in_process":
		backend = engine.BackendInProcess
	}

	newDriver := func() *engine.Driver {
		inv := engine.NewInventory(store, temp)
		pf := engine.NewPlaylistFetcher(playlistClient, temp, store, policy, logger)
		sf := engine.NewSegmentFetcher(segmentClient, temp, policy, segmentConcurrency, logger)
		merger := engine.NewMerger(temp, backend, logger)
		driver := engine.NewDriver(temp, store, inv, pf, sf, merger, cfg.Directories.VideoDir(), cfg.Directories.CoverDir(), logger)
		driver.SetProgressHook(func(id string, done, total int, bytesDone int64) {
			pct := 0.0
			if total > 0 {
				pct = float64(done) / float64(total) * 100
			}
			if err := ldgr.SetProgress(id, pct, bytesDone); err != nil {
				logger.Warn("ledger set-progress failed", "job", id, "err", err)
			}
		})
		return driver
	}

	executor := engine.NewExecutor(newDriver, jobConcurrency, logger)
	executor.ResumeFrom(ldgr)
	executor.OnResult(func(r engine.JobResult) {
		status := string(r.Job.Status)
		errMsg := ""
		if r.Err != nil {
			errMsg = r.Err.Error()
		}
		if err := ldgr.Upsert(r.Job.LowerID(), r.Job.Name, r.Job.Actress, status); err != nil {
			logger.Warn("ledger upsert failed", "job", r.Job.LowerID(), "err", err)
		}
		if errMsg != "" {
			if err := ldgr.SetError(r.Job.LowerID(), errMsg); err != nil {
				logger.Warn("ledger set-error failed", "job", r.Job.LowerID(), "err", err)
			}
		}
	})
	return executor
}

var runCmd = &cobra.Command{
	Use:   "run <queue.yaml>",
	Short: "Run every job in a queue file to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := engine.LoadBatch(args[0])
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return fmt.Errorf("queue file %s has no jobs", args[0])
		}

		jobConcurrency, _ := cmd.Flags().GetInt("jobs")
		segmentConcurrency, _ := cmd.Flags().GetInt("segments")
		executor := buildExecutor(jobConcurrency, segmentConcurrency)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Running %d job(s)...\n", len(jobs))
		results := executor.Run(ctx, jobs)

		failures := 0
		for _, r := range results {
			if r.Err != nil {
				failures++
				fmt.Printf("FAILED  %s: %v\n", r.Job.ID, r.Err)
			} else {
				fmt.Printf("OK      %s\n", r.Job.ID)
			}
		}
		if failures > 0 {
			return fmt.Errorf("%d of %d jobs failed", failures, len(jobs))
		}
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <queue.yaml>",
	Short: "Resume every in-flight or failed job from the ledger using a queue file for job metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, err := engine.LoadBatch(args[0])
		if err != nil {
			return err
		}
		records, err := ldgr.All()
		if err != nil {
			return fmt.Errorf("failed to read ledger: %w", err)
		}
		resumable := map[string]bool{}
		for _, rec := range records {
			if rec.Status != "finished" {
				resumable[rec.ID] = true
			}
		}

		var toRun []engine.Job
		for _, j := range all {
			if resumable[j.LowerID()] {
				toRun = append(toRun, j)
			}
		}
		if len(toRun) == 0 {
			fmt.Println("nothing to resume")
			return nil
		}

		jobConcurrency, _ := cmd.Flags().GetInt("jobs")
		segmentConcurrency, _ := cmd.Flags().GetInt("segments")
		executor := buildExecutor(jobConcurrency, segmentConcurrency)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Resuming %d job(s)...\n", len(toRun))
		results := executor.Run(ctx, toRun)
		for _, r := range results {
			if r.Err != nil {
				fmt.Printf("FAILED  %s: %v\n", r.Job.ID, r.Err)
			} else {
				fmt.Printf("OK      %s\n", r.Job.ID)
			}
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show a single job's ledger entry, or a summary of all jobs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			rec, err := ldgr.Get(args[0])
			if err != nil {
				return fmt.Errorf("job %s not found in ledger: %w", args[0], err)
			}
			fmt.Printf("ID:        %s\n", rec.ID)
			fmt.Printf("Name:      %s\n", rec.Name)
			fmt.Printf("Status:    %s\n", rec.Status)
			fmt.Printf("Progress:  %.1f%%\n", rec.Progress)
			fmt.Printf("Bytes:     %s\n", humanize.Bytes(uint64(rec.BytesDone)))
			if rec.LastError != "" {
				fmt.Printf("LastError: %s\n", rec.LastError)
			}
			fmt.Printf("Updated:   %s\n", humanize.Time(rec.UpdatedAt))
			return nil
		}

		records, err := ldgr.All()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no jobs recorded")
			return nil
		}
		for _, rec := range records {
			fmt.Printf("%-12s %-10s %5.1f%%  %-10s  %s\n", rec.ID, rec.Status, rec.Progress, humanize.Bytes(uint64(rec.BytesDone)), humanize.Time(rec.UpdatedAt))
		}
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List jobs currently pending, downloading, or merging in the ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := ldgr.All()
		if err != nil {
			return fmt.Errorf("failed to read ledger: %w", err)
		}
		var active []ledger.JobRecord
		for _, rec := range records {
			switch rec.Status {
			case "pending", "downloading", "merging":
				active = append(active, rec)
			}
		}
		if len(active) == 0 {
			fmt.Println("no jobs queued")
			return nil
		}
		fmt.Printf("%d job(s) queued:\n", len(active))
		for _, rec := range active {
			fmt.Printf("  %-12s %-10s %5.1f%%  %s\n", rec.ID, rec.Status, rec.Progress, humanize.Time(rec.UpdatedAt))
		}
		return nil
	},
}
