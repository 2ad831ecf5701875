package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"etlwatch/internal/config"
	"etlwatch/internal/dashboard"
	"etlwatch/internal/escalate"
	"etlwatch/internal/monitor"
	"etlwatch/internal/notify"
	"etlwatch/internal/probe"
	"etlwatch/internal/scheduler"
	"etlwatch/internal/server"
	"etlwatch/internal/storage"
	"etlwatch/internal/summary"
	"etlwatch/internal/version"
	"etlwatch/internal/warehouse"
	"etlwatch/internal/watch"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "etlwatch",
		Short:        "Data warehouse pipeline monitor",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "etlwatch.yml", "config file path")

	root.AddCommand(versionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(checkinCmd())
	root.AddCommand(quickCmd())
	root.AddCommand(summaryCmd())
	root.AddCommand(statusCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("etlwatch %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

// app bundles the wired components shared by all run modes.
type app struct {
	cfg      *config.Config
	db       *storage.DB
	wh       *warehouse.Pool
	runner   *monitor.Runner
	reporter *summary.Reporter
	chat     *notify.Chat
	logger   *slog.Logger
}

func buildApp(ctx context.Context) (*app, error) {
	logger := slog.Default()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger.Info("config loaded", "pipelines", len(cfg.Pipelines), "checkins", len(cfg.Checkins))

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a := &app{cfg: cfg, db: db, logger: logger}

	// Warehouse is only dialed when a database-backed check exists.
	var wh probe.Warehouse
	if needsWarehouse(cfg) {
		pool, err := warehouse.Connect(ctx, cfg.Warehouse.DSN, cfg.Warehouse.QueryTimeout.Duration)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connecting to warehouse: %w", err)
		}
		a.wh = pool
		wh = pool
	}

	var chat monitor.ChatSender
	if cfg.Alerts.Chat.Enabled {
		a.chat = notify.NewChat(cfg.Alerts.Chat.WebhookURL, cfg.Alerts.Chat.DashboardURL, logger)
		chat = a.chat
	}
	var email monitor.EmailSender
	if cfg.Alerts.Email.Enabled {
		email = notify.NewEmail(cfg.Alerts.Email, logger)
	}

	tracker := escalate.New(db, escalate.DefaultFollowUpAfter, logger)
	a.runner = monitor.New(cfg, wh, db, tracker, chat, email, logger)

	if a.chat != nil {
		a.reporter = summary.New(cfg, wh, a.chat, logger)
	}
	return a, nil
}

func needsWarehouse(cfg *config.Config) bool {
	for _, p := range cfg.Pipelines {
		if p.Kind == config.KindFreshness || p.Kind == config.KindCount {
			return true
		}
	}
	return false
}

func (a *app) Close() {
	if a.wh != nil {
		a.wh.Close()
	}
	a.db.Close()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor daemon with dashboard and scheduled checks",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	var failChat scheduler.TextSender
	if a.chat != nil {
		failChat = a.chat
	}
	sched := scheduler.New(a.cfg, a.runner, a.reporter, a.db, failChat, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	// Immediate re-check when an expected file lands.
	if w := watch.New(a.cfg.Pipelines, func(string) { sched.TriggerQuick() }, logger); w != nil {
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Warn("file watcher stopped", "error", err)
			}
		}()
	}

	apiServer := server.New(a.runner, a.db, logger)
	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer.Router())
	mux.Handle("/", dashboard.Handler())

	httpServer := &http.Server{
		Addr:    a.cfg.Server.Address,
		Handler: mux,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", a.cfg.Server.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("HTTP server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
