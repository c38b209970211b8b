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

package database

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tomoncle/sqlharness/utils"
)

// OverrideFromEnv copies DB_* variables (and SQL_SCRIPTS_FOLDER) into cfg.
// Unset variables leave the current value in place.
func OverrideFromEnv(cfg *ConnectionConfig) error {
	if cfg == nil {
		return &ConfigError{Reason: "database configuration cannot be empty"}
	}
	if typ := os.Getenv("DB_TYPE"); typ != "" {
		cfg.Type = typ
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := strings.TrimSpace(os.Getenv("DB_PORT")); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return &ConfigError{Reason: fmt.Sprintf("invalid DB_PORT %q: %v", port, err)}
		}
		cfg.Port = p
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.DBName = name
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Username = user
	} else if user := os.Getenv("DB_USERNAME"); user != "" {
		cfg.Username = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.SSLMode = sslmode
	}
	if folder := os.Getenv("SQL_SCRIPTS_FOLDER"); folder != "" {
		cfg.ScriptsRoot = folder
	}

	cfg.ConnectTimeout = utils.EnvDefaultSeconds("DB_CONNECT_TIMEOUT", cfg.ConnectTimeout)
	cfg.RetryWindow = utils.EnvDefaultSeconds("DB_RETRY_WINDOW", cfg.RetryWindow)
	cfg.RetryInterval = utils.EnvDefaultSeconds("DB_RETRY_INTERVAL", cfg.RetryInterval)
	cfg.EnableQueryLog = utils.EnvDefaultBool("DB_ENABLE_QUERY_LOG", cfg.EnableQueryLog)
	return nil
}

// ConnectionConfigFromEnv returns the defaults overridden by the environment.
func ConnectionConfigFromEnv() (*ConnectionConfig, error) {
	cfg := DefaultConnectionConfig()
	if err := OverrideFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewManagerFromEnv builds an unconnected manager from the environment and
// fails when any required parameter is missing.
func NewManagerFromEnv() (*Manager, error) {
	cfg, err := ConnectionConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewManager(cfg), nil
}
