package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/nicktill/dirview/pkg/browse"
	"github.com/nicktill/dirview/pkg/config"
	"github.com/nicktill/dirview/pkg/dirsize"
	"github.com/nicktill/dirview/pkg/logging"
	"github.com/nicktill/dirview/pkg/presenter"
	"github.com/nicktill/dirview/pkg/server/monitor"
	"github.com/nicktill/dirview/pkg/storage"
	"github.com/nicktill/dirview/pkg/storage/badger"
	"github.com/nicktill/dirview/pkg/storage/memory"
)

// Config holds server configuration.
type Config struct {
	Port        string
	Root        string
	Mode        string
	Workers     int
	Store       string
	SizeMode    string
	LogLevel    string
	LogFormat   string
	MaxMemoryMB int64
}

// LoadConfig loads configuration from environment variables. The root
// defaults to the user's home directory.
func LoadConfig() Config {
	root := os.Getenv("DIRVIEW_ROOT")
	if root == "" {
		if home, err := os.UserHomeDir(); err == nil {
			root = home
		} else {
			root = "."
		}
	}

	return Config{
		Port:        getEnv("DIRVIEW_PORT", config.DefaultPort),
		Root:        root,
		Mode:        getEnv("DIRVIEW_MODE", config.DefaultMode),
		Workers:     int(getEnvInt64("DIRVIEW_WORKERS", config.DefaultWorkers)),
		Store:       getEnv("DIRVIEW_STORE", config.DefaultStore),
		SizeMode:    getEnv("DIRVIEW_SIZE_MODE", config.DefaultSizeMode),
		LogLevel:    getEnv("DIRVIEW_LOG_LEVEL", config.DefaultLogLevel),
		LogFormat:   getEnv("DIRVIEW_LOG_FORMAT", config.DefaultLogFormat),
		MaxMemoryMB: getEnvInt64("DIRVIEW_MAX_MEMORY_MB", config.DefaultMaxMemoryMB),
	}
}

// Validate checks the configuration and makes Root absolute.
func (c *Config) Validate() error {
	switch c.Mode {
	case config.ModeSync, config.ModeAsync:
	default:
		return fmt.Errorf("unknown mode %q (want %s or %s)", c.Mode, config.ModeSync, config.ModeAsync)
	}
	switch c.Store {
	case config.StoreMemory, config.StoreBadger:
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, config.StoreMemory, config.StoreBadger)
	}
	if _, err := dirsize.ParseMode(c.SizeMode); err != nil {
		return err
	}
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}

	root, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %s is not a directory", root)
	}
	c.Root = root
	return nil
}

// InitializeStore opens the configured size record store.
func InitializeStore(cfg Config) (storage.Store, error) {
	if cfg.Store == config.StoreBadger {
		store, err := badger.New(badger.Config{MaxMemoryMB: cfg.MaxMemoryMB})
		if err != nil {
			return nil, err
		}
		logging.L().Info("in-memory BadgerDB store initialized", zap.Int64("max_memory_mb", cfg.MaxMemoryMB))
		return store, nil
	}

	logging.L().Info("memory store initialized")
	return memory.New(), nil
}

// InitializePresenter creates the size cell presenter. Every computation it
// runs is recorded by the returned monitor.
func InitializePresenter(cfg Config, store storage.Store, notifier presenter.Notifier) (*presenter.Presenter, *monitor.ComputeMonitor, error) {
	mode, err := dirsize.ParseMode(cfg.SizeMode)
	if err != nil {
		return nil, nil, err
	}

	sizer := dirsize.New(mode)
	computeMonitor := &monitor.ComputeMonitor{}
	computer := computeMonitor.Instrument(sizer)

	p := presenter.New(computer, store, notifier, presenter.Config{
		Mode:    cfg.Mode,
		Workers: cfg.Workers,
	})
	logging.L().Info("presenter created",
		zap.String("mode", cfg.Mode),
		zap.Int("workers", cfg.Workers),
		zap.String("size_mode", sizer.Mode().String()),
	)
	return p, computeMonitor, nil
}

// InitializeHandlers creates the browse handler serving cfg.Root.
func InitializeHandlers(cfg Config, p *presenter.Presenter) *browse.Handler {
	handler := browse.NewHandler(p, cfg.Root)
	logging.L().Info("browse handler created", zap.String("root", cfg.Root))
	return handler
}

func getEnv(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// getEnvInt64 gets an int64 from environment variable or returns default.
func getEnvInt64(key string, defaultValue int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
		logging.L().Warn("invalid environment value, using default",
			zap.String("key", key), zap.String("value", val), zap.Int64("default", defaultValue))
	}
	return defaultValue
}
