package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"ffqueue/internal/config"
	"ffqueue/internal/ffmpeg"
	"ffqueue/internal/queue"
	"ffqueue/internal/statestore"
)

const logFileName = "ffqueue.log"

type runtimeOptions struct {
	ConfigPath string
	Ephemeral  bool
	// LogToFile sends slog output to <state_dir>/ffqueue.log instead of
	// stderr, for commands that own the terminal.
	LogToFile bool
	// Quiet raises the log level to at least warn so logs do not fight a
	// live progress line.
	Quiet bool
}

// queueRuntime is everything a command needs to drive the queue. Only one
// process may hold it per state directory.
type queueRuntime struct {
	cfg      config.Config
	logger   *slog.Logger
	store    statestore.Store
	lock     statestore.Lock
	launcher ffmpeg.ExecLauncher
	manager  *queue.Manager
	logFile  *os.File
}

func openRuntime(opts runtimeOptions) (*queueRuntime, error) {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Ephemeral {
		cfg.Store = statestore.BackendMemory
	}

	rt := &queueRuntime{cfg: cfg}
	if cfg.Store != statestore.BackendMemory {
		lock, err := statestore.AcquireLock(cfg.StateDir)
		if err != nil {
			return nil, err
		}
		rt.lock = lock
	}

	var sink io.Writer = os.Stderr
	if opts.LogToFile {
		if err := statestore.Mkdir(cfg.StateDir); err != nil {
			rt.Close()
			return nil, err
		}
		f, err := os.OpenFile(filepath.Join(cfg.StateDir, logFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open log file: %w", err)
		}
		rt.logFile = f
		sink = f
	}
	rt.logger, err = newLogger(cfg, sink, opts.Quiet)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if prev := rt.lock.Reclaimed; prev != nil {
		rt.logger.Warn("reclaimed stale lock", "state_dir", cfg.StateDir, "previous_pid", prev.PID, "previous_host", prev.Hostname, "since", prev.CreatedAt)
	}

	store, err := statestore.Open(cfg.Store, cfg.StateDir)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.store = store

	rt.launcher = ffmpeg.ExecLauncher{Binaries: cfg.BinaryMap()}
	rt.manager = queue.New(rt.launcher, store,
		queue.WithLogger(rt.logger),
		queue.WithHistoryLimit(cfg.HistoryLimit),
		queue.WithLogLimit(cfg.LogLimit),
	)
	rt.logger.Debug("runtime ready", "state_dir", cfg.StateDir, "store", cfg.Store)
	return rt, nil
}

func (rt *queueRuntime) Close() error {
	var firstErr error
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			firstErr = err
		}
	}
	if err := rt.lock.Release(); err != nil && firstErr == nil {
		firstErr = err
	}
	if rt.logFile != nil {
		_ = rt.logFile.Close()
	}
	return firstErr
}

func newLogger(cfg config.Config, w io.Writer, quiet bool) (*slog.Logger, error) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if quiet && level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// openStoreReadOnly opens the configured store without taking the lock, for
// commands that only read persisted state.
func openStoreReadOnly(configPath string) (config.Config, statestore.Store, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if cfg.Store == statestore.BackendMemory {
		return config.Config{}, nil, fmt.Errorf("store %q keeps no state between runs", cfg.Store)
	}
	store, err := statestore.Open(cfg.Store, cfg.StateDir)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, store, nil
}
