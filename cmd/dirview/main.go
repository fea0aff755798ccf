package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nicktill/dirview/pkg/browse"
	"github.com/nicktill/dirview/pkg/config"
	"github.com/nicktill/dirview/pkg/logging"
	"github.com/nicktill/dirview/pkg/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := server.LoadConfig()

	cmd := &cobra.Command{
		Use:          "dirview [DIRECTORY]",
		Short:        "Browse a directory tree and compute directory sizes on demand",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Init(logging.Config{
				Level:      cfg.LogLevel,
				Format:     cfg.LogFormat,
				OutputPath: "stderr",
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg, args)
		},
	}

	persistent := cmd.PersistentFlags()
	persistent.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	persistent.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (console, json)")

	addServeFlags(cmd.Flags(), &cfg)

	serve := &cobra.Command{
		Use:   "serve [DIRECTORY]",
		Short: "Serve the browser API rooted at DIRECTORY (default: home directory)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg, args)
		},
	}
	addServeFlags(serve.Flags(), &cfg)

	cmd.AddCommand(serve, newSizeCommand(&cfg))
	return cmd
}

func addServeFlags(flags *pflag.FlagSet, cfg *server.Config) {
	flags.StringVarP(&cfg.Port, "port", "p", cfg.Port, "HTTP listen port")
	flags.StringVar(&cfg.Mode, "mode", cfg.Mode, "Size computation mode (sync, async)")
	flags.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent size computations in async mode")
	flags.StringVar(&cfg.Store, "store", cfg.Store, "Size record store (memory, badger)")
	flags.StringVar(&cfg.SizeMode, "size-mode", cfg.SizeMode, "Byte accounting (apparent, allocated)")
	flags.Int64Var(&cfg.MaxMemoryMB, "max-memory-mb", cfg.MaxMemoryMB, "Memory limit for the badger store in MB")
}

func runServe(ctx context.Context, cfg server.Config, args []string) error {
	log := logging.L()

	if len(args) > 0 {
		cfg.Root = args[0]
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return err
	}

	log.Info("starting dirview",
		zap.String("root", cfg.Root),
		zap.String("mode", cfg.Mode),
		zap.String("store", cfg.Store),
		zap.String("size_mode", cfg.SizeMode),
	)

	store, err := server.InitializeStore(cfg)
	if err != nil {
		log.Error("failed to initialize store", zap.Error(err))
		return err
	}
	defer store.Close()

	hub := browse.NewHub()
	p, computeMonitor, err := server.InitializePresenter(cfg, store, hub)
	if err != nil {
		log.Error("failed to initialize presenter", zap.Error(err))
		return err
	}
	handler := server.InitializeHandlers(cfg, p)

	taskCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go server.RunHub(taskCtx, hub, &wg)
	go server.RunPresenter(taskCtx, p, &wg)
	go server.RunStoreStats(taskCtx, store, config.StoreStatsInterval, &wg)

	router := mux.NewRouter()
	server.SetupRoutes(router, server.Deps{
		Handler:   handler,
		Hub:       hub,
		Presenter: p,
		Store:     store,
		Monitor:   computeMonitor,
	}, cfg.Port)

	// A sync trigger holds its response until the walk finishes.
	writeTimeout := config.ServerWriteTimeout
	if cfg.Mode == config.ModeSync {
		writeTimeout = config.SyncComputeTimeout
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: writeTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", "http://localhost:"+cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err, ok := <-serveErr:
		if ok {
			log.Error("server failed", zap.Error(err))
			runErr = err
		}
	}

	// Cancel background tasks before waiting on them.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("background tasks stopped")
	case <-time.After(config.TaskStopTimeout):
		log.Warn("background tasks did not stop in time")
	}

	log.Info("dirview exited")
	return runErr
}
