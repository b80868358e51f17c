// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader. configPath may be empty, in
// which case only defaults and environment variables apply.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load resolves the configuration in strict order: defaults, then file, then
// environment, then validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFile(&cfg, fileCfg)
	}

	applyEnv(&cfg)

	// Input and output dirs default to subdirectories of the data dir.
	if cfg.InputDir == "" {
		cfg.InputDir = filepath.Join(cfg.DataDir, "in")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(cfg.DataDir, "out")
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func defaults() AppConfig {
	return AppConfig{
		DataDir:         "/var/lib/nmfsep",
		InputDir:        "",
		OutputDir:       "",
		ListenAddr:      ":8080",
		LogLevel:        "info",
		LogService:      "nmfsep",
		Workers:         2,
		RateLimit:       60,
		ShutdownTimeout: 10 * time.Second,
		Watch:           false,
		WatchDebounce:   2 * time.Second,
		Defaults: ModelDefaults{
			Model:      "is",
			Rank:       6,
			Iterations: 50,
			Domain:     2,
			Algorithm:  "mm",
			FFTSize:    1024,
			HopSize:    256,
			Tolerance:  0,
		},
	}
}

func (l *Loader) loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, err
	}
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &fc, nil
}

func mergeFile(cfg *AppConfig, fc *fileConfig) {
	if fc == nil {
		return
	}
	setIf(&cfg.DataDir, fc.DataDir)
	setIf(&cfg.InputDir, fc.InputDir)
	setIf(&cfg.OutputDir, fc.OutputDir)
	setIf(&cfg.ListenAddr, fc.ListenAddr)
	setIf(&cfg.LogLevel, fc.LogLevel)
	setIf(&cfg.LogService, fc.LogService)
	setIf(&cfg.Workers, fc.Workers)
	setIf(&cfg.RateLimit, fc.RateLimit)
	setIf(&cfg.ShutdownTimeout, fc.ShutdownTimeout)
	setIf(&cfg.Watch, fc.Watch)
	setIf(&cfg.WatchDebounce, fc.WatchDebounce)
	if fc.Defaults != nil {
		setIf(&cfg.Defaults.Model, fc.Defaults.Model)
		setIf(&cfg.Defaults.Rank, fc.Defaults.Rank)
		setIf(&cfg.Defaults.Iterations, fc.Defaults.Iterations)
		setIf(&cfg.Defaults.Domain, fc.Defaults.Domain)
		setIf(&cfg.Defaults.Algorithm, fc.Defaults.Algorithm)
		setIf(&cfg.Defaults.FFTSize, fc.Defaults.FFTSize)
		setIf(&cfg.Defaults.HopSize, fc.Defaults.HopSize)
		setIf(&cfg.Defaults.Tolerance, fc.Defaults.Tolerance)
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func applyEnv(cfg *AppConfig) {
	cfg.DataDir = ParseString("NMFSEP_DATA", cfg.DataDir)
	cfg.InputDir = ParseString("NMFSEP_INPUT_DIR", cfg.InputDir)
	cfg.OutputDir = ParseString("NMFSEP_OUTPUT_DIR", cfg.OutputDir)
	cfg.ListenAddr = ParseString("NMFSEP_LISTEN", cfg.ListenAddr)
	cfg.LogLevel = ParseString("NMFSEP_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = ParseString("NMFSEP_LOG_SERVICE", cfg.LogService)
	cfg.Workers = ParseInt("NMFSEP_WORKERS", cfg.Workers)
	cfg.RateLimit = ParseInt("NMFSEP_RATE_LIMIT", cfg.RateLimit)
	cfg.ShutdownTimeout = ParseDuration("NMFSEP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.Watch = ParseBool("NMFSEP_WATCH", cfg.Watch)
	cfg.WatchDebounce = ParseDuration("NMFSEP_WATCH_DEBOUNCE", cfg.WatchDebounce)

	cfg.Defaults.Model = ParseString("NMFSEP_MODEL", cfg.Defaults.Model)
	cfg.Defaults.Rank = ParseInt("NMFSEP_RANK", cfg.Defaults.Rank)
	cfg.Defaults.Iterations = ParseInt("NMFSEP_ITERATIONS", cfg.Defaults.Iterations)
	cfg.Defaults.Domain = ParseFloat("NMFSEP_DOMAIN", cfg.Defaults.Domain)
	cfg.Defaults.Algorithm = ParseString("NMFSEP_ALGORITHM", cfg.Defaults.Algorithm)
	cfg.Defaults.FFTSize = ParseInt("NMFSEP_FFT_SIZE", cfg.Defaults.FFTSize)
	cfg.Defaults.HopSize = ParseInt("NMFSEP_HOP_SIZE", cfg.Defaults.HopSize)
	cfg.Defaults.Tolerance = ParseFloat("NMFSEP_TOLERANCE", cfg.Defaults.Tolerance)
}
