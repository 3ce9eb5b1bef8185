// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dotandev/rpcmerge/internal/errors"
)

type DemanglerKind string

const (
	DemanglerLocal   DemanglerKind = "local"
	DemanglerCommand DemanglerKind = "command"
	DemanglerRemote  DemanglerKind = "remote"
)

var validDemanglers = map[string]bool{
	string(DemanglerLocal):   true,
	string(DemanglerCommand): true,
	string(DemanglerRemote):  true,
}

var validProfiles = map[string]bool{
	"go":   true,
	"rust": true,
}

const envPrefix = "RPCMERGE_"

// Config represents the general configuration for rpcmerge
type Config struct {
	Profile  string `json:"profile,omitempty"`
	LogLevel string `json:"log_level,omitempty"`

	Demangler        DemanglerKind `json:"demangler,omitempty"`
	DemanglerCommand string        `json:"demangler_command,omitempty"`
	DemanglerURL     string        `json:"demangler_url,omitempty"`
	// DemanglerRetries bounds the attempts made against an external bridge.
	DemanglerRetries uint64        `json:"demangler_retries,omitempty"`
	DemanglerBackoff time.Duration `json:"demangler_backoff,omitempty"`

	// CachePath is the sqlite file holding demangled names and run history.
	CachePath      string `json:"cache_path,omitempty"`
	HistoryEnabled bool   `json:"history_enabled,omitempty"`

	TelemetryEnabled bool   `json:"telemetry_enabled,omitempty"`
	TelemetryURL     string `json:"telemetry_url,omitempty"`

	// PayloadSize and PayloadAlign are used by marshalling elision when the
	// payload type behind a buffer cannot be recovered.
	PayloadSize  uint64 `json:"payload_size,omitempty"`
	PayloadAlign uint64 `json:"payload_align,omitempty"`
}

var defaultConfig = &Config{
	Profile:          "go",
	LogLevel:         "info",
	Demangler:        DemanglerLocal,
	DemanglerCommand: "rustfilt",
	DemanglerURL:     "http://localhost:8090/rpc",
	DemanglerRetries: 5,
	DemanglerBackoff: 500 * time.Millisecond,
	CachePath:        filepath.Join(os.ExpandEnv("$HOME"), ".rpcmerge", "cache.db"),
	HistoryEnabled:   true,
	TelemetryURL:     "localhost:4318",
	PayloadSize:      24,
	PayloadAlign:     8,
}

func DefaultConfig() *Config {
	c := *defaultConfig
	return &c
}

// Load builds the configuration from defaults, the first readable
// .rpcmerge.toml and RPCMERGE_* environment variables, in that order.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func configPaths() []string {
	return []string{
		".rpcmerge.toml",
		filepath.Join(os.ExpandEnv("$HOME"), ".rpcmerge.toml"),
	}
}

func (c *Config) loadFromFile() error {
	for _, path := range configPaths() {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := c.parseTOML(string(data)); err != nil {
			return errors.WrapConfigError(path, err)
		}
		return nil
	}
	return nil
}

func (c *Config) parseTOML(content string) error {
	for n, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), "\"'")

		if err := c.set(key, value); err != nil {
			return fmt.Errorf("line %d: %w", n+1, err)
		}
	}

	return nil
}

// set assigns one setting by its file key. Unknown keys are ignored.
func (c *Config) set(key, value string) error {
	var err error
	switch key {
	case "profile":
		c.Profile = value
	case "log_level":
		c.LogLevel = value
	case "demangler":
		c.Demangler = DemanglerKind(value)
	case "demangler_command":
		c.DemanglerCommand = value
	case "demangler_url":
		c.DemanglerURL = value
	case "demangler_retries":
		c.DemanglerRetries, err = strconv.ParseUint(value, 10, 64)
	case "demangler_backoff":
		c.DemanglerBackoff, err = time.ParseDuration(value)
	case "cache_path":
		c.CachePath = value
	case "history_enabled":
		c.HistoryEnabled = parseBool(value)
	case "telemetry_enabled":
		c.TelemetryEnabled = parseBool(value)
	case "telemetry_url":
		c.TelemetryURL = value
	case "payload_size":
		c.PayloadSize, err = strconv.ParseUint(value, 10, 64)
	case "payload_align":
		c.PayloadAlign, err = strconv.ParseUint(value, 10, 64)
	}
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return nil
}

var envKeys = []string{
	"profile",
	"log_level",
	"demangler",
	"demangler_command",
	"demangler_url",
	"demangler_retries",
	"demangler_backoff",
	"cache_path",
	"history_enabled",
	"telemetry_enabled",
	"telemetry_url",
	"payload_size",
	"payload_align",
}

func (c *Config) applyEnv() error {
	for _, key := range envKeys {
		name := envPrefix + strings.ToUpper(key)
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			continue
		}
		if err := c.set(key, value); err != nil {
			return errors.WrapConfigError(name, err)
		}
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func (c *Config) Validate() error {
	if !validProfiles[c.Profile] {
		return errors.WrapConfigError(fmt.Sprintf("unknown profile %q (want go or rust)", c.Profile), nil)
	}

	if !validDemanglers[string(c.Demangler)] {
		return errors.WrapConfigError(fmt.Sprintf("unknown demangler %q", c.Demangler), nil)
	}

	if c.Demangler == DemanglerCommand && c.DemanglerCommand == "" {
		return errors.WrapConfigError("demangler_command cannot be empty", nil)
	}

	if c.Demangler == DemanglerRemote && c.DemanglerURL == "" {
		return errors.WrapConfigError("demangler_url cannot be empty", nil)
	}

	if c.PayloadSize == 0 {
		return errors.WrapConfigError("payload_size must be positive", nil)
	}

	if c.PayloadAlign == 0 || c.PayloadAlign&(c.PayloadAlign-1) != 0 {
		return errors.WrapConfigError(fmt.Sprintf("payload_align %d is not a power of two", c.PayloadAlign), nil)
	}

	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Profile: %s, Demangler: %s, LogLevel: %s, CachePath: %s}",
		c.Profile, c.Demangler, c.LogLevel, c.CachePath,
	)
}

func (c *Config) WithProfile(profile string) *Config {
	c.Profile = profile
	return c
}

func (c *Config) WithLogLevel(level string) *Config {
	c.LogLevel = level
	return c
}

func (c *Config) WithCachePath(path string) *Config {
	c.CachePath = path
	return c
}
