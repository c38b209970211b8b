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

// Package sqlharness wires settings, environment files and a database
// manager together for end-to-end test suites.
package sqlharness

import (
	"context"
	"fmt"

	"github.com/tomoncle/sqlharness/config"
	"github.com/tomoncle/sqlharness/database"
	"github.com/tomoncle/sqlharness/utils"
)

// Options controls New. Zero values fall back to the settings file and then
// to package defaults.
type Options struct {
	ConfigPath  string
	Environment string
	// Pipeline forces pipeline mode even when the settings say otherwise.
	Pipeline  bool
	EnvDir    string
	Overrides map[string]interface{}
	Observer  database.Observer
	Logger    database.Logger
	// SkipConnect returns an unconnected harness.
	SkipConnect bool
}

// Harness is what a test suite holds on to for its whole run.
type Harness struct {
	Settings    *config.Settings
	Environment string
	Vars        map[string]string
	DB          *database.Manager
}

// New loads settings and environment variables, builds the connection
// config and connects with retry.
func New(ctx context.Context, opts Options) (*Harness, error) {
	settings, err := config.LoadSettings(opts.ConfigPath, opts.Overrides)
	if err != nil {
		return nil, err
	}
	if settings.LogLevel != "" {
		utils.ConfigureLogLevel(settings.LogLevel)
	}

	env := config.ResolveEnvironment(opts.Environment, settings)
	envDir := opts.EnvDir
	if envDir == "" {
		envDir = settings.EnvFilesDir
	}
	if envDir == "" {
		envDir = "."
	}
	vars, err := config.LoadEnvironment(opts.Pipeline || settings.Pipeline, env, envDir, settings.Headless)
	if err != nil {
		return nil, err
	}

	cfg := database.DefaultConnectionConfig()
	settings.ApplyTo(cfg)
	if err := database.OverrideFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("database parameters for environment %q: %w", env, err)
	}

	m := database.NewManager(cfg)
	if opts.Logger != nil {
		m.SetLogger(opts.Logger)
	}
	if opts.Observer != nil {
		m.SetObserver(opts.Observer)
	}
	h := &Harness{Settings: settings, Environment: env, Vars: vars, DB: m}
	if opts.SkipConnect {
		return h, nil
	}
	if err := m.Connect(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Run executes a script from the current environment's folder.
func (h *Harness) Run(ctx context.Context, name string, values ...string) (database.Result, error) {
	if len(values) == 0 {
		return h.DB.ExecuteScriptByEnvironment(ctx, h.Environment, name)
	}
	return h.DB.ReplaceValuesAndExecuteScriptByEnvironment(ctx, h.Environment, name, values)
}

// Scripts lists the scripts available to the current environment.
func (h *Harness) Scripts() ([]database.ScriptFile, error) {
	return h.DB.Catalog().List(h.Environment)
}

func (h *Harness) Close() error {
	if h == nil || h.DB == nil {
		return nil
	}
	return h.DB.CloseConnection()
}
