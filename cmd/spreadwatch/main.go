package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rewired-gh/spreadwatch/internal/calendar"
	"github.com/rewired-gh/spreadwatch/internal/config"
	"github.com/rewired-gh/spreadwatch/internal/logger"
	"github.com/rewired-gh/spreadwatch/internal/metrics"
	"github.com/rewired-gh/spreadwatch/internal/monitor"
	"github.com/rewired-gh/spreadwatch/internal/report"
	"github.com/rewired-gh/spreadwatch/internal/sheet"
	"github.com/rewired-gh/spreadwatch/internal/storage"
	"github.com/rewired-gh/spreadwatch/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

const usage = `Usage: spreadwatch [-config path] <command> [flags]

Commands:
  run       capture spread changes until interrupted (default)
  recent    show snapshots from the last minutes
  history   show snapshots for one spread
  stats     show store totals
  moves     show the largest recorded changes
  summary   show per-spread aggregates
`

func main() {
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.InitWithFile(cfg.Logging.Level, cfg.Logging.Format, logger.FileConfig{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer func() { _ = logger.Close() }()
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	command, args := "run", []string(nil)
	if flag.NArg() > 0 {
		command, args = flag.Arg(0), flag.Args()[1:]
	}

	switch command {
	case "run":
		err = runCommand(ctx, cfg, store, args)
	case "recent", "history", "stats", "moves", "summary":
		err = queryCommand(ctx, command, store, args, os.Stdout)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("%s failed: %v", command, err)
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, cfg *config.Config, store *storage.Storage, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	duration := fs.Duration("duration", 0, "Stop after this long and print the captured snapshots (0 = run until interrupted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	startedAt := time.Now()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	var met *metrics.Metrics
	if cfg.Metrics.ListenAddr != "" {
		met = metrics.New()
		go func() {
			if err := met.Serve(ctx, cfg.Metrics.ListenAddr); err != nil {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
	}

	sheetConfig := cfg.SheetConfig()
	connect := func(ctx context.Context) (sheet.Source, error) {
		return sheet.Open(ctx, sheetConfig)
	}
	mon := monitor.New(connect, store, calendar.New(time.Time{}, time.Time{}), met, cfg.MonitorConfig())
	defer func() {
		if err := mon.Close(); err != nil {
			logger.Warn("Failed to close source: %v", err)
		}
	}()

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		var err error
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	// Read by the Telegram command goroutine.
	var tracked, lastPoll atomic.Int64
	if telegramClient != nil {
		telegramClient.SetStatusFunc(func() string {
			last := "never"
			if ns := lastPoll.Load(); ns > 0 {
				last = time.Unix(0, ns).Format("15:04:05")
			}
			return fmt.Sprintf("Tracking %d spreads, last poll %s", tracked.Load(), last)
		})
		telegramClient.ListenForCommands(ctx)
	}

	logger.Info("Starting capture (source: %s %s, interval: %v, stability: %v, min change: %v)",
		cfg.Source.Kind, cfg.Source.Path,
		cfg.Capture.PollInterval, cfg.Capture.StabilityDuration, cfg.Capture.MinChange)

	consecutiveFailures := 0
	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Capture cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	cycle := func() {
		now := time.Now()
		if !cfg.Capture.TradingHours.Contains(now) {
			logger.Debug("Outside trading hours, skipping poll")
			met.ObservePoll(metrics.ResultSkipped, 0)
			return
		}
		handleCycleResult(runCaptureCycle(ctx, mon, telegramClient))
		tracked.Store(int64(mon.Tracked()))
		lastPoll.Store(now.UnixNano())
	}

	ticker := time.NewTicker(cfg.Capture.PollInterval)
	defer ticker.Stop()

	var pruneTicker <-chan time.Time
	if cfg.Storage.Retention > 0 {
		t := time.NewTicker(time.Hour)
		defer t.Stop()
		pruneTicker = t.C
		prune(ctx, store, cfg.Storage.Retention)
	}

	logger.Debug("Running initial capture cycle")
	cycle()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Capture stopped")
			if *duration > 0 {
				return printSince(store, startedAt)
			}
			return nil

		case <-ticker.C:
			cycle()

		case <-pruneTicker:
			prune(ctx, store, cfg.Storage.Retention)
		}
	}
}

func runCaptureCycle(ctx context.Context, mon *monitor.Monitor, telegramClient *telegram.Client) error {
	result, err := mon.Capture(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}
	logger.Debug("Poll complete: %d rows, %d rejected, %d duplicates, %d tracked",
		result.Rows, result.Rejected, result.Duplicates, result.Tracked)

	if len(result.Events) == 0 {
		return nil
	}
	logger.Info("Recorded %d spread changes", len(result.Events))

	if err := report.Changes(os.Stdout, result.Events); err != nil {
		logger.Warn("Failed to print changes: %v", err)
	}

	if telegramClient != nil {
		if err := telegramClient.Send(result.Events); err != nil {
			logger.Error("Failed to send Telegram notification: %v", err)
		}
	}
	return nil
}

func prune(ctx context.Context, store *storage.Storage, retention time.Duration) {
	n, err := store.PruneSnapshots(ctx, time.Now().Add(-retention))
	if err != nil {
		logger.Warn("Failed to prune snapshots: %v", err)
		return
	}
	if n > 0 {
		logger.Info("Pruned %d snapshots older than %v", n, retention)
	}
}

func printSince(store *storage.Storage, since time.Time) error {
	snapshots, err := store.RecentSnapshots(context.Background(), since, false)
	if err != nil {
		return fmt.Errorf("failed to load captured snapshots: %w", err)
	}
	fmt.Printf("\nCaptured %d snapshots since %s\n", len(snapshots), since.Format("15:04:05"))
	return report.Snapshots(os.Stdout, snapshots)
}
