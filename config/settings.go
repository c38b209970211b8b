/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tomoncle/sqlharness/database"
)

// DefaultSettingsPath is where settings are read from when no path is given.
const DefaultSettingsPath = "./config.yaml"

// DefaultEnvironment is used when neither a flag nor the settings name one.
const DefaultEnvironment = "rc"

var ErrConfigNotFound = errors.New("config file not found")

// Settings mirrors config.yaml. Keys are upper case to match the .env files
// teams keep next to it.
type Settings struct {
	Environment      string                 `yaml:"ENVIRONMENT"`
	Pipeline         bool                   `yaml:"PIPELINE"`
	Headless         bool                   `yaml:"HEADLESS"`
	SQLScriptsFolder string                 `yaml:"SQL_SCRIPTS_FOLDER"`
	EnvFilesDir      string                 `yaml:"ENV_FILES_DIR"`
	LogLevel         string                 `yaml:"LOG_LEVEL"`
	Database         *DatabaseSettings      `yaml:"DATABASE,omitempty"`
	Extra            map[string]interface{} `yaml:",inline"`
}

// DatabaseSettings holds optional connection tuning. Credentials always
// come from the environment.
type DatabaseSettings struct {
	Type           string `yaml:"TYPE"`
	ConnectTimeout int    `yaml:"CONNECT_TIMEOUT"`
	RetryWindow    int    `yaml:"RETRY_WINDOW"`
	RetryInterval  int    `yaml:"RETRY_INTERVAL"`
	EnableQueryLog bool   `yaml:"ENABLE_QUERY_LOG"`
	SlowQueryTime  int    `yaml:"SLOW_QUERY_MS"`
}

// LoadSettings reads path and applies overrides on top, key by key, using
// the same upper-case keys as the file.
func LoadSettings(path string, overrides map[string]interface{}) (*Settings, error) {
	if path == "" {
		path = DefaultSettingsPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	file := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error reading YAML file %s: %w", path, err)
	}
	raw := make(map[string]interface{}, len(file)+len(overrides))
	for k, v := range file {
		raw[strings.ToUpper(k)] = v
	}
	for k, v := range overrides {
		raw[strings.ToUpper(k)] = v
	}

	merged, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to merge config overrides: %w", err)
	}
	var s Settings
	if err := yaml.Unmarshal(merged, &s); err != nil {
		return nil, fmt.Errorf("invalid config values in %s: %w", path, err)
	}
	return &s, nil
}

// Get returns a top-level setting by key, including keys Settings does not
// model. Modeled scalar keys always report their current value; DATABASE is
// present only when the block was set.
func (s *Settings) Get(key string) (interface{}, bool) {
	key = strings.ToUpper(strings.TrimSpace(key))
	switch key {
	case "ENVIRONMENT":
		return s.Environment, true
	case "PIPELINE":
		return s.Pipeline, true
	case "HEADLESS":
		return s.Headless, true
	case "SQL_SCRIPTS_FOLDER":
		return s.SQLScriptsFolder, true
	case "ENV_FILES_DIR":
		return s.EnvFilesDir, true
	case "LOG_LEVEL":
		return s.LogLevel, true
	case "DATABASE":
		if s.Database == nil {
			return nil, false
		}
		return s.Database, true
	}
	v, ok := s.Extra[key]
	return v, ok
}

// ResolveEnvironment prefers the command-line value, then the settings,
// then DefaultEnvironment.
func ResolveEnvironment(flagValue string, s *Settings) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if s != nil && strings.TrimSpace(s.Environment) != "" {
		return strings.TrimSpace(s.Environment)
	}
	return DefaultEnvironment
}

// ApplyTo copies scripts root and connection tuning into cfg. Values left
// at zero keep what cfg already has.
func (s *Settings) ApplyTo(cfg *database.ConnectionConfig) {
	if s == nil || cfg == nil {
		return
	}
	if s.SQLScriptsFolder != "" {
		cfg.ScriptsRoot = s.SQLScriptsFolder
	}
	d := s.Database
	if d == nil {
		return
	}
	if d.Type != "" {
		cfg.Type = d.Type
	}
	if d.ConnectTimeout > 0 {
		cfg.ConnectTimeout = seconds(d.ConnectTimeout)
	}
	if d.RetryWindow > 0 {
		cfg.RetryWindow = seconds(d.RetryWindow)
	}
	if d.RetryInterval > 0 {
		cfg.RetryInterval = seconds(d.RetryInterval)
	}
	if d.SlowQueryTime > 0 {
		cfg.SlowQueryTime = millis(d.SlowQueryTime)
	}
	cfg.EnableQueryLog = cfg.EnableQueryLog || d.EnableQueryLog
}
