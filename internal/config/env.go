// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamarr/streamarr-server-sub001/internal/log"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STREAMARR_"

// lookup returns the value of key when it is set and non-empty.
func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func logEnv(logger zerolog.Logger, key string, value any) {
	logger.Debug().Str("key", key).Interface("value", value).Str("source", "environment").Msg("using environment variable")
}

func logInvalid(logger zerolog.Logger, key, raw, kind string, fallback any) {
	logger.Warn().Str("key", key).Str("value", raw).Interface("default", fallback).
		Msgf("invalid %s in environment variable, using default", kind)
}

// ParseString returns the environment value of key or def.
func ParseString(key, def string) string {
	logger := log.WithComponent("config")
	v, ok := lookup(key)
	if !ok {
		return def
	}
	lower := strings.ToLower(key)
	if strings.Contains(lower, "token") || strings.Contains(lower, "password") {
		logger.Debug().Str("key", key).Bool("sensitive", true).Str("source", "environment").Msg("using environment variable")
	} else {
		logEnv(logger, key, v)
	}
	return v
}

// ParseInt returns the integer value of key, or def when unset or invalid.
func ParseInt(key string, def int) int {
	logger := log.WithComponent("config")
	v, ok := lookup(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logInvalid(logger, key, v, "integer", def)
		return def
	}
	logEnv(logger, key, i)
	return i
}

// ParseFloat returns the float value of key, or def when unset or invalid.
func ParseFloat(key string, def float64) float64 {
	logger := log.WithComponent("config")
	v, ok := lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		logInvalid(logger, key, v, "float", def)
		return def
	}
	logEnv(logger, key, f)
	return f
}

// ParseDuration parses a Go duration ("5s"), falling back to def.
func ParseDuration(key string, def time.Duration) time.Duration {
	logger := log.WithComponent("config")
	v, ok := lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		logInvalid(logger, key, v, "duration", def.String())
		return def
	}
	logEnv(logger, key, d.String())
	return d
}

// ParseBool accepts true/false, 1/0 and yes/no in any case.
func ParseBool(key string, def bool) bool {
	logger := log.WithComponent("config")
	v, ok := lookup(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		logEnv(logger, key, true)
		return true
	case "false", "0", "no":
		logEnv(logger, key, false)
		return false
	}
	logInvalid(logger, key, v, "boolean", def)
	return def
}
