// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/log"
)

// lookup returns the environment value for key, treating empty as unset.
func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func warnInvalid(key, value, kind string) {
	logger := log.WithComponent("config")
	logger.Warn().
		Str("key", key).
		Str("value", value).
		Str("expected", kind).
		Msg("ignoring invalid environment variable")
}

// ParseString returns the environment value for key, or def when unset.
func ParseString(key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

// ParseInt returns the integer value for key, or def when unset or invalid.
func ParseInt(key string, def int) int {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		warnInvalid(key, v, "integer")
		return def
	}
	return i
}

// ParseFloat returns the float value for key, or def when unset or invalid.
func ParseFloat(key string, def float64) float64 {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		warnInvalid(key, v, "float")
		return def
	}
	return f
}

// ParseBool returns the boolean value for key, or def when unset or invalid.
// Accepts everything strconv.ParseBool does, plus "yes" and "no".
func ParseBool(key string, def bool) bool {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "yes":
		return true
	case "no":
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		warnInvalid(key, v, "boolean")
		return def
	}
	return b
}

// ParseDuration returns the duration value for key, or def when unset or
// invalid.
func ParseDuration(key string, def time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		warnInvalid(key, v, "duration")
		return def
	}
	return d
}
