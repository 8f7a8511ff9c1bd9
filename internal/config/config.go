// Package config loads ffqueue settings from an optional YAML file and the
// environment. Environment variables win over the file; normalization
// fills in defaults for anything left empty or out of range.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"ffqueue/internal/model"
	"ffqueue/internal/statestore"
)

const (
	DefaultPath     = "ffqueue.yaml"
	DefaultStateDir = ".ffqueue"
	DefaultLogLevel = "info"
)

type Binaries struct {
	FFmpeg  string `yaml:"ffmpeg" json:"ffmpeg"`
	FFprobe string `yaml:"ffprobe" json:"ffprobe"`
}

type Config struct {
	StateDir     string   `yaml:"state_dir" json:"state_dir"`
	Store        string   `yaml:"store" json:"store"`
	HistoryLimit int      `yaml:"history_limit" json:"history_limit"`
	LogLimit     int      `yaml:"log_limit" json:"log_limit"`
	LogLevel     string   `yaml:"log_level" json:"log_level"`
	Binaries     Binaries `yaml:"binaries" json:"binaries"`
}

func Default() Config {
	return Config{
		StateDir:     DefaultStateDir,
		Store:        statestore.BackendFile,
		HistoryLimit: model.DefaultHistoryLimit,
		LogLimit:     model.DefaultLogLimit,
		LogLevel:     DefaultLogLevel,
		Binaries: Binaries{
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
		},
	}
}

// LoadConfig reads path (a missing file at the default path is not an
// error), applies environment overrides and normalizes the result.
func LoadConfig(path string) (Config, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultPath
	}

	cfg := Config{}
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("open config: %w", err)
	}

	cfg = applyEnv(cfg)
	return Normalize(cfg)
}

func applyEnv(cfg Config) Config {
	cfg.StateDir = getEnv("FFQUEUE_STATE_DIR", cfg.StateDir)
	cfg.Store = getEnv("FFQUEUE_STORE", cfg.Store)
	cfg.LogLevel = getEnv("FFQUEUE_LOG_LEVEL", cfg.LogLevel)
	cfg.Binaries.FFmpeg = getEnv("FFQUEUE_FFMPEG", cfg.Binaries.FFmpeg)
	cfg.Binaries.FFprobe = getEnv("FFQUEUE_FFPROBE", cfg.Binaries.FFprobe)
	cfg.HistoryLimit = getEnvAsInt("FFQUEUE_HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.LogLimit = getEnvAsInt("FFQUEUE_LOG_LIMIT", cfg.LogLimit)
	return cfg
}

// Normalize fills defaults. Only an unknown store backend or log level is
// rejected; everything else falls back silently.
func Normalize(raw Config) (Config, error) {
	def := Default()
	norm := raw
	norm.StateDir = strings.TrimSpace(norm.StateDir)
	if norm.StateDir == "" {
		norm.StateDir = def.StateDir
	}
	backend, ok := statestore.NormalizeBackend(norm.Store)
	if !ok {
		return Config{}, fmt.Errorf("unknown store backend %q (want file, sqlite or memory)", raw.Store)
	}
	norm.Store = backend
	if norm.HistoryLimit <= 0 {
		norm.HistoryLimit = def.HistoryLimit
	}
	if norm.LogLimit <= 0 {
		norm.LogLimit = def.LogLimit
	}
	norm.LogLevel = strings.ToLower(strings.TrimSpace(norm.LogLevel))
	if norm.LogLevel == "" {
		norm.LogLevel = def.LogLevel
	}
	if _, err := ParseLogLevel(norm.LogLevel); err != nil {
		return Config{}, err
	}
	norm.Binaries.FFmpeg = firstNonEmpty(norm.Binaries.FFmpeg, def.Binaries.FFmpeg)
	norm.Binaries.FFprobe = firstNonEmpty(norm.Binaries.FFprobe, def.Binaries.FFprobe)
	return norm, nil
}

func ParseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// BinaryMap is the alias table handed to the process launcher.
func (c Config) BinaryMap() map[string]string {
	return map[string]string{
		"ffmpeg":  c.Binaries.FFmpeg,
		"ffprobe": c.Binaries.FFprobe,
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
