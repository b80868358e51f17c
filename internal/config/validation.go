// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
)

// Known model and algorithm names accepted in job requests and defaults.
var (
	Models     = []string{"euc", "kl", "is", "t", "cauchy", "cnmf", "mnmf"}
	Algorithms = []string{"mm", "me", "naive", "fast"}
)

// ErrInvalidConfig wraps all validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks the resolved configuration for inconsistencies.
func Validate(cfg AppConfig) error {
	var problems []string

	if cfg.DataDir == "" {
		problems = append(problems, "data_dir must not be empty")
	}
	if cfg.Watch && cfg.InputDir == "" {
		problems = append(problems, "watch requires input_dir")
	}
	if cfg.ListenAddr == "" {
		problems = append(problems, "listen address must not be empty")
	}
	if cfg.Workers < 1 {
		problems = append(problems, fmt.Sprintf("workers must be >= 1, got %d", cfg.Workers))
	}
	if cfg.RateLimit < 1 {
		problems = append(problems, fmt.Sprintf("rate_limit must be >= 1, got %d", cfg.RateLimit))
	}
	if cfg.ShutdownTimeout <= 0 {
		problems = append(problems, "shutdown_timeout must be positive")
	}
	if cfg.Watch && cfg.WatchDebounce <= 0 {
		problems = append(problems, "watch_debounce must be positive")
	}

	problems = append(problems, validateDefaults(cfg.Defaults)...)

	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, problems)
	}
	return nil
}

func validateDefaults(d ModelDefaults) []string {
	var problems []string

	if !contains(Models, d.Model) {
		problems = append(problems, fmt.Sprintf("unknown model %q", d.Model))
	}
	if !contains(Algorithms, d.Algorithm) {
		problems = append(problems, fmt.Sprintf("unknown algorithm %q", d.Algorithm))
	}
	if d.Rank < 1 {
		problems = append(problems, fmt.Sprintf("rank must be >= 1, got %d", d.Rank))
	}
	if d.Iterations < 1 {
		problems = append(problems, fmt.Sprintf("iterations must be >= 1, got %d", d.Iterations))
	}
	if d.Domain < 1 || d.Domain > 2 {
		problems = append(problems, fmt.Sprintf("domain must be in [1, 2], got %g", d.Domain))
	}
	if d.FFTSize < 2 || d.FFTSize&(d.FFTSize-1) != 0 {
		problems = append(problems, fmt.Sprintf("fft_size must be a power of two >= 2, got %d", d.FFTSize))
	}
	if d.HopSize < 1 || d.HopSize > d.FFTSize {
		problems = append(problems, fmt.Sprintf("hop_size must be in [1, fft_size], got %d", d.HopSize))
	}
	if d.Tolerance < 0 {
		problems = append(problems, fmt.Sprintf("tolerance must be >= 0, got %g", d.Tolerance))
	}
	return problems
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
