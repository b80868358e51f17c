// SPDX-License-Identifier: MIT

// Package config loads and validates daemon configuration with the
// precedence ENV > file > defaults.
package config

import "time"

// ModelDefaults holds the factorization parameters applied to jobs that do
// not specify their own.
type ModelDefaults struct {
	Model      string  `yaml:"model"`      // euc|kl|is|t|cauchy|cnmf|mnmf
	Rank       int     `yaml:"rank"`       // number of basis vectors
	Iterations int     `yaml:"iterations"` // multiplicative update iterations
	Domain     float64 `yaml:"domain"`     // 1 <= domain <= 2
	Algorithm  string  `yaml:"algorithm"`  // mm|me|naive|fast (variant dependent)
	FFTSize    int     `yaml:"fft_size"`
	HopSize    int     `yaml:"hop_size"`
	Tolerance  float64 `yaml:"tolerance"` // relative loss improvement; 0 disables
}

// AppConfig is the resolved daemon configuration.
type AppConfig struct {
	DataDir   string `yaml:"data_dir"`   // job store and reports
	InputDir  string `yaml:"input_dir"`  // watched for new mixtures
	OutputDir string `yaml:"output_dir"` // separated stems

	ListenAddr string `yaml:"listen"` // HTTP API address, e.g. ":8080"

	LogLevel   string `yaml:"log_level"`
	LogService string `yaml:"log_service"`

	Workers         int           `yaml:"workers"`           // concurrent separation jobs
	RateLimit       int           `yaml:"rate_limit"`        // API requests/minute per client
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Watch         bool          `yaml:"watch"`          // enable input dir watcher
	WatchDebounce time.Duration `yaml:"watch_debounce"` // settle time for new files

	Defaults ModelDefaults `yaml:"defaults"`

	// Version is set by the daemon at load time, not from file or env.
	Version string `yaml:"-"`
}

// fileConfig mirrors AppConfig for YAML decoding with pointer fields so the
// loader can tell "absent" from "zero".
type fileConfig struct {
	DataDir   *string `yaml:"data_dir"`
	InputDir  *string `yaml:"input_dir"`
	OutputDir *string `yaml:"output_dir"`

	ListenAddr *string `yaml:"listen"`

	LogLevel   *string `yaml:"log_level"`
	LogService *string `yaml:"log_service"`

	Workers         *int           `yaml:"workers"`
	RateLimit       *int           `yaml:"rate_limit"`
	ShutdownTimeout *time.Duration `yaml:"shutdown_timeout"`

	Watch         *bool          `yaml:"watch"`
	WatchDebounce *time.Duration `yaml:"watch_debounce"`

	Defaults *fileModelDefaults `yaml:"defaults"`
}

type fileModelDefaults struct {
	Model      *string  `yaml:"model"`
	Rank       *int     `yaml:"rank"`
	Iterations *int     `yaml:"iterations"`
	Domain     *float64 `yaml:"domain"`
	Algorithm  *string  `yaml:"algorithm"`
	FFTSize    *int     `yaml:"fft_size"`
	HopSize    *int     `yaml:"hop_size"`
	Tolerance  *float64 `yaml:"tolerance"`
}
