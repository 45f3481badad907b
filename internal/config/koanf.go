// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/railatlas/config.yaml",
	"/etc/railatlas/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "RAILATLAS_CONFIG"

// envPrefix namespaces RailAtlas environment variables. Double underscore
// separates nesting levels: RAILATLAS_LOG__LEVEL -> log.level.
const envPrefix = "RAILATLAS_"

// Load reads configuration from defaults, an optional config file, and
// environment variables, then decrypts server secrets and validates.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: struct defaults.
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// Layer 2: config file, if one exists.
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables (highest priority).
	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.decryptServerKeys(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, honoring
// the RAILATLAS_CONFIG override.
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps RAILATLAS_* environment variables onto koanf
// config paths: the prefix is stripped, double underscores become dots.
//
// Examples:
//   - RAILATLAS_LOG__LEVEL        -> log.level
//   - RAILATLAS_DATABASE__PATH    -> database.path
//   - RAILATLAS_MASTER_KEY        -> master_key
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, envPrefix)
	key = strings.ToLower(key)
	return strings.ReplaceAll(key, "__", ".")
}

// decryptServerKeys replaces any "enc:" Beacon keys with their decrypted
// values. Requires MasterKey when an encrypted key is present.
func (c *Config) decryptServerKeys() error {
	var enc *SecretBox
	for i := range c.Servers {
		s := &c.Servers[i]
		if !strings.HasPrefix(s.Key, encryptedPrefix) {
			continue
		}
		if enc == nil {
			if c.MasterKey == "" {
				return fmt.Errorf("server %q has an encrypted key but no master key is configured", s.ID)
			}
			var err error
			enc, err = NewSecretBox(c.MasterKey)
			if err != nil {
				return fmt.Errorf("init secret box: %w", err)
			}
		}
		plain, err := enc.Decrypt(s.Key)
		if err != nil {
			return fmt.Errorf("decrypt key for server %q: %w", s.ID, err)
		}
		s.Key = plain
	}
	return nil
}
